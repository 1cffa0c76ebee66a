// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates snared's configuration file: a
// small braced, semicolon-terminated grammar (not YAML) describing the
// listen address, global job concurrency, an optional drop-privilege
// user, and an ordered list of regex match rules that control how each
// repository's webhooks are authenticated and run.
package config

import (
	"fmt"
	"regexp"
)

// QueueKind selects how concurrent jobs for the same repository key are
// admitted: run one at a time (Sequential), run without a per-key bound
// (Parallel), or keep only the most recently queued job pending
// (Evict).
type QueueKind int

const (
	Sequential QueueKind = iota
	Parallel
	Evict
)

func (k QueueKind) String() string {
	switch k {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	case Evict:
		return "evict"
	default:
		return "unknown"
	}
}

func parseQueueKind(s string) (QueueKind, error) {
	switch s {
	case "sequential":
		return Sequential, nil
	case "parallel":
		return Parallel, nil
	case "evict":
		return Evict, nil
	default:
		return 0, fmt.Errorf("unknown queue discipline %q (want evict, parallel, or sequential)", s)
	}
}

// DefaultTimeoutSeconds is the synthetic default rule's timeout, applied
// when no match rule overrides it.
const DefaultTimeoutSeconds = 3600

// DefaultMaxPending bounds the number of jobs a Sequential repository
// queue may hold pending before new webhooks are rejected with 503. Not
// exposed in the file grammar; overridable only by tests.
const DefaultMaxPending = 64

// MatchRule is one `match "REGEX" { ... }` block: a compiled, anchored
// pattern paired with the settings overlay it contributes.
type MatchRule struct {
	Source  string
	Pattern *regexp.Regexp
	Overlay Overlay

	// synthetic marks the default rule Parse prepends to every Config;
	// it never appears in, and is never reproduced by, Serialize.
	synthetic bool
}

// Overlay is a partial settings record: every field is optional and
// only overrides EffectiveSettings when non-zero.
type Overlay struct {
	Cmd      *string
	ErrorCmd *string
	Queue    *QueueKind
	Secret   *string
	Timeout  *int
}

// Config is the fully parsed and validated result of Load. It is
// immutable after construction; Rules is always non-empty because Load
// prepends the synthetic default rule.
type Config struct {
	Listen     string
	MaxJobs    int
	User       string
	Rules      []MatchRule
	MaxPending int
}

// EffectiveSettings is the result of folding every MatchRule whose
// Pattern matches a repository key, in order, over the defaults.
type EffectiveSettings struct {
	Cmd      string
	ErrorCmd string
	Queue    QueueKind
	Secret   string
	Timeout  int
}

// Resolve folds every rule matching key ("owner/repo") in order, last
// write wins per field, starting from the synthetic default prepended
// by Load. ok is false when no rule supplied a Cmd, meaning the
// repository is not serviceable.
func (c *Config) Resolve(key string) (settings EffectiveSettings, ok bool) {
	settings.Queue = Sequential
	settings.Timeout = DefaultTimeoutSeconds
	for _, rule := range c.Rules {
		if !rule.Pattern.MatchString(key) {
			continue
		}
		if rule.Overlay.Cmd != nil {
			settings.Cmd = *rule.Overlay.Cmd
		}
		if rule.Overlay.ErrorCmd != nil {
			settings.ErrorCmd = *rule.Overlay.ErrorCmd
		}
		if rule.Overlay.Queue != nil {
			settings.Queue = *rule.Overlay.Queue
		}
		if rule.Overlay.Secret != nil {
			settings.Secret = *rule.Overlay.Secret
		}
		if rule.Overlay.Timeout != nil {
			settings.Timeout = *rule.Overlay.Timeout
		}
	}
	return settings, settings.Cmd != ""
}
