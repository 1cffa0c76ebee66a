// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small generic helpers shared across snare's
// package tests: bounded channel assertions and unique-name generation.
package testutil

import (
	"fmt"
	"sync/atomic"
	"time"
)

// testingT is the subset of *testing.T these helpers need, so they can
// be used from t.Run subtests without importing "testing" twice.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive waits up to timeout for a value on ch and returns it,
// failing the test if the timeout elapses first.
func RequireReceive[T any](t testingT, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		var zero T
		t.Fatalf("timed out after %s waiting to receive%s", timeout, formatMsg(msgAndArgs))
		return zero
	}
}

// RequireSend sends v on ch, failing the test if no receiver is ready
// within timeout.
func RequireSend[T any](t testingT, ch chan<- T, v T, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case ch <- v:
	case <-time.After(timeout):
		t.Fatalf("timed out after %s waiting to send%s", timeout, formatMsg(msgAndArgs))
	}
}

// RequireClosed waits up to timeout for ch to close, failing the test
// otherwise.
func RequireClosed(t testingT, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %s waiting for channel to close%s", timeout, formatMsg(msgAndArgs))
	}
}

func formatMsg(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return ""
	}
	return ": " + formatAny(msgAndArgs)
}

func formatAny(args []any) string {
	if len(args) == 1 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += formatOne(a)
	}
	return out
}

func formatOne(a any) string {
	if s, ok := a.(string); ok {
		return s
	}
	return "<value>"
}

var uniqueCounter atomic.Uint64

// UniqueID returns a monotonically increasing identifier prefixed with
// prefix, suitable for distinguishing repository keys or job IDs across
// table-driven test cases without colliding.
func UniqueID(prefix string) string {
	n := uniqueCounter.Add(1)
	return fmt.Sprintf("%s-%d", prefix, n)
}
