// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler ties together the per-repository queue manager, the
// global job pool, and child process spawning/reaping into the single
// supervisor loop that owns all of snared's mutable state.
package scheduler

import (
	"time"

	"github.com/google/uuid"
	"github.com/softdevteam/snare/lib/config"
)

// Job is one materialised unit of work: a webhook delivery folded
// against its repository's effective settings, ready for admission to
// a RepoQueue and, eventually, the runner pool.
type Job struct {
	ID             string
	Key            string // "owner/repo"
	Owner          string
	Repo           string
	Event          string
	PayloadPath    string
	Settings       config.EffectiveSettings
	Discipline     config.QueueKind
	SubmissionTime time.Time
}

// newJob materialises a Job from a validated fingerprint and its
// resolved settings. The returned Job owns payloadPath until the job
// terminates or is evicted.
func newJob(owner, repo, event, payloadPath string, settings config.EffectiveSettings) *Job {
	return &Job{
		ID:             uuid.NewString(),
		Key:            owner + "/" + repo,
		Owner:          owner,
		Repo:           repo,
		Event:          event,
		PayloadPath:    payloadPath,
		Settings:       settings,
		Discipline:     settings.Queue,
		SubmissionTime: time.Now(),
	}
}
