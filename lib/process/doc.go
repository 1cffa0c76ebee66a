// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for snare's
// command-line tools. It centralizes the one legitimate raw I/O pattern
// that exists before the structured logger is initialized: fatal error
// reporting to stderr from main().
package process
