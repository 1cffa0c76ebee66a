// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue implements the per-repository admission state machine:
// one logical FIFO per "owner/repo" key, whose behaviour on a new
// arrival depends on that arrival's queue discipline (Sequential,
// Parallel, or Evict).
package queue

import (
	"fmt"

	"github.com/softdevteam/snare/lib/config"
)

// Job is the minimal unit the queue manager schedules. Everything
// beyond identity and discipline (the command to run, timeout, etc.)
// lives in the scheduler package, which keeps its own richer job record
// under the same ID.
type Job struct {
	ID         string
	Key        string
	Discipline config.QueueKind
}

// state tags which of the three shapes a RepoQueue is currently in.
// Modelled as an explicit tag plus the fields relevant to that tag,
// rather than separate types, so RepoQueue can live in a plain map
// without boxing — but Running() and the FSM methods enforce the
// invariants a true sum type would give for free.
type state int

const (
	stateIdle state = iota
	stateRunning
	stateRunningAndPending
)

// RepoQueue is the admission state for one repository key. The zero
// value is not meaningful; use newRepoQueue.
type RepoQueue struct {
	key     string
	state   state
	running map[string]*Job // by Job.ID
	pending []*Job          // FIFO order; holds at most one entry once every pending arrival is Evict, but a discipline change can leave several pending behind to be evicted together
}

func newRepoQueue(key string) *RepoQueue {
	return &RepoQueue{key: key, state: stateIdle, running: make(map[string]*Job)}
}

// Running reports the jobs currently admitted to run for this key.
func (q *RepoQueue) Running() []*Job {
	out := make([]*Job, 0, len(q.running))
	for _, j := range q.running {
		out = append(out, j)
	}
	return out
}

// Pending reports jobs waiting for this key, in arrival order.
func (q *RepoQueue) Pending() []*Job {
	return append([]*Job(nil), q.pending...)
}

// IsEmpty reports whether the queue has no running and no pending jobs,
// meaning its Manager entry can be garbage collected.
func (q *RepoQueue) IsEmpty() bool {
	return len(q.running) == 0 && len(q.pending) == 0
}

// Manager owns one RepoQueue per repository key that currently has
// activity. It is not safe for concurrent use: snared's supervisor
// goroutine is its only caller (see lib/scheduler).
type Manager struct {
	maxPending int
	queues     map[string]*RepoQueue
}

// NewManager creates a Manager. maxPending bounds how many jobs a
// Sequential repository queue may hold pending before Enqueue rejects
// further arrivals with ErrPendingFull.
func NewManager(maxPending int) *Manager {
	if maxPending <= 0 {
		maxPending = config.DefaultMaxPending
	}
	return &Manager{maxPending: maxPending, queues: make(map[string]*RepoQueue)}
}

// ErrPendingFull is returned by Enqueue when a Sequential repository
// queue's pending list is already at its cap.
var ErrPendingFull = fmt.Errorf("queue: pending list full")

// Admitted describes the effect of an Enqueue call: zero or more jobs
// that are now ready to be submitted to the runner pool. Eviction never
// produces an Admitted entry — an evicted job never runs.
type Admitted struct {
	Jobs    []*Job
	Evicted []*Job // every previously-pending job this enqueue evicted, oldest first
}

// Enqueue admits job to its repository queue per job.Discipline,
// following the transition table in the per-repo queue design: a
// discipline on an arriving job governs that arrival's admission even
// if jobs already running for the key were enqueued under a different
// discipline.
func (m *Manager) Enqueue(job *Job) (Admitted, error) {
	q, ok := m.queues[job.Key]
	if !ok {
		q = newRepoQueue(job.Key)
		m.queues[job.Key] = q
	}

	switch q.state {
	case stateIdle:
		q.running[job.ID] = job
		q.state = stateRunning
		return Admitted{Jobs: []*Job{job}}, nil

	case stateRunning:
		switch job.Discipline {
		case config.Parallel:
			q.running[job.ID] = job
			return Admitted{Jobs: []*Job{job}}, nil
		default: // Sequential or Evict: nothing pending yet, so there's nothing to evict
			q.pending = append(q.pending, job)
			q.state = stateRunningAndPending
			return Admitted{}, nil
		}

	case stateRunningAndPending:
		switch job.Discipline {
		case config.Parallel:
			q.running[job.ID] = job
			return Admitted{Jobs: []*Job{job}}, nil
		case config.Evict:
			// A discipline change mid-flight (e.g. a reload switching this
			// repository from Sequential to Evict) can leave more than one
			// job pending; all of them are superseded by job, not just the
			// most recent.
			evicted := q.pending
			q.pending = []*Job{job}
			return Admitted{Evicted: evicted}, nil
		default: // Sequential
			if len(q.pending) >= m.maxPending {
				return Admitted{}, fmt.Errorf("%w: repository %q has %d jobs pending", ErrPendingFull, job.Key, len(q.pending))
			}
			q.pending = append(q.pending, job)
			return Admitted{}, nil
		}
	}

	return Admitted{}, fmt.Errorf("queue: unreachable state %d", q.state)
}

// Exit records that the child for (key, jobID) has terminated,
// releasing its running slot and, if a pending job now becomes ready,
// returning it for submission to the runner pool.
func (m *Manager) Exit(key, jobID string) (next *Job, empty bool) {
	q, ok := m.queues[key]
	if !ok {
		return nil, true
	}
	delete(q.running, jobID)

	if len(q.running) > 0 {
		// Parallel siblings still running; nothing new becomes ready.
		return nil, false
	}

	if len(q.pending) == 0 {
		q.state = stateIdle
		if q.IsEmpty() {
			delete(m.queues, key)
			return nil, true
		}
		return nil, false
	}

	next = q.pending[0]
	q.pending = q.pending[1:]
	q.running[next.ID] = next
	q.state = stateRunningAndPending
	if len(q.pending) == 0 {
		q.state = stateRunning
	}
	return next, false
}

// SetMaxPending updates the Sequential pending-list cap applied to
// future Enqueue calls; existing queues already over the new cap are
// left as-is until they drain.
func (m *Manager) SetMaxPending(maxPending int) {
	if maxPending <= 0 {
		maxPending = config.DefaultMaxPending
	}
	m.maxPending = maxPending
}

// Snapshot returns the RepoQueue for key, or nil if the key has no
// current activity. Intended for tests and diagnostics, not for
// mutation.
func (m *Manager) Snapshot(key string) *RepoQueue {
	return m.queues[key]
}
