// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"errors"
	"testing"

	"github.com/softdevteam/snare/lib/config"
)

func job(id, key string, discipline config.QueueKind) *Job {
	return &Job{ID: id, Key: key, Discipline: discipline}
}

func TestSequentialSerialises(t *testing.T) {
	t.Parallel()
	m := NewManager(64)

	a1, err := m.Enqueue(job("1", "a/b", config.Sequential))
	if err != nil || len(a1.Jobs) != 1 {
		t.Fatalf("first enqueue: admitted=%v err=%v", a1, err)
	}

	a2, err := m.Enqueue(job("2", "a/b", config.Sequential))
	if err != nil || len(a2.Jobs) != 0 {
		t.Fatalf("second enqueue should be pending, got %v err=%v", a2, err)
	}

	a3, err := m.Enqueue(job("3", "a/b", config.Sequential))
	if err != nil || len(a3.Jobs) != 0 {
		t.Fatalf("third enqueue should be pending, got %v err=%v", a3, err)
	}

	snap := m.Snapshot("a/b")
	if len(snap.Pending()) != 2 {
		t.Fatalf("pending length = %d, want 2", len(snap.Pending()))
	}

	next, empty := m.Exit("a/b", "1")
	if empty || next == nil || next.ID != "2" {
		t.Fatalf("Exit after job 1: next=%v empty=%v", next, empty)
	}

	next, empty = m.Exit("a/b", "2")
	if empty || next == nil || next.ID != "3" {
		t.Fatalf("Exit after job 2: next=%v empty=%v", next, empty)
	}

	next, empty = m.Exit("a/b", "3")
	if !empty || next != nil {
		t.Fatalf("Exit after job 3: next=%v empty=%v, want empty", next, empty)
	}
}

func TestEvictCoalesces(t *testing.T) {
	t.Parallel()
	m := NewManager(64)

	m.Enqueue(job("1", "a/b", config.Evict))
	m.Enqueue(job("2", "a/b", config.Evict))
	a3, _ := m.Enqueue(job("3", "a/b", config.Evict))
	if len(a3.Evicted) != 1 || a3.Evicted[0].ID != "2" {
		t.Fatalf("expected job 2 evicted, got %v", a3.Evicted)
	}
	a4, _ := m.Enqueue(job("4", "a/b", config.Evict))
	if len(a4.Evicted) != 1 || a4.Evicted[0].ID != "3" {
		t.Fatalf("expected job 3 evicted, got %v", a4.Evicted)
	}

	snap := m.Snapshot("a/b")
	if len(snap.Pending()) != 1 {
		t.Fatalf("pending length = %d, want 1", len(snap.Pending()))
	}

	next, _ := m.Exit("a/b", "1")
	if next == nil || next.ID != "4" {
		t.Fatalf("after exit, next = %v, want job 4", next)
	}
}

func TestEvictAfterDisciplineChangeDrainsAllPending(t *testing.T) {
	t.Parallel()
	m := NewManager(64)

	// Two deliveries queue up behind a running job under Sequential...
	m.Enqueue(job("1", "a/b", config.Sequential))
	m.Enqueue(job("2", "a/b", config.Sequential))
	m.Enqueue(job("3", "a/b", config.Sequential))

	snap := m.Snapshot("a/b")
	if len(snap.Pending()) != 2 {
		t.Fatalf("pending length = %d, want 2", len(snap.Pending()))
	}

	// ...then a reload switches the repository to Evict and a fourth
	// delivery arrives: both previously-pending jobs must be evicted,
	// not just the most recent one.
	a4, _ := m.Enqueue(job("4", "a/b", config.Evict))
	if len(a4.Evicted) != 2 {
		t.Fatalf("expected both stale pending jobs evicted, got %v", a4.Evicted)
	}
	if a4.Evicted[0].ID != "2" || a4.Evicted[1].ID != "3" {
		t.Fatalf("expected jobs 2 and 3 evicted in order, got %v", a4.Evicted)
	}

	snap = m.Snapshot("a/b")
	if len(snap.Pending()) != 1 || snap.Pending()[0].ID != "4" {
		t.Fatalf("expected only job 4 pending, got %v", snap.Pending())
	}
}

func TestParallelRunsConcurrently(t *testing.T) {
	t.Parallel()
	m := NewManager(64)

	a1, _ := m.Enqueue(job("1", "a/b", config.Parallel))
	a2, _ := m.Enqueue(job("2", "a/b", config.Parallel))
	a3, _ := m.Enqueue(job("3", "a/b", config.Parallel))

	if len(a1.Jobs) != 1 || len(a2.Jobs) != 1 || len(a3.Jobs) != 1 {
		t.Fatalf("expected all three admitted directly: %v %v %v", a1, a2, a3)
	}

	snap := m.Snapshot("a/b")
	if len(snap.Running()) != 3 {
		t.Fatalf("running count = %d, want 3", len(snap.Running()))
	}
}

func TestSequentialPendingCapRejects(t *testing.T) {
	t.Parallel()
	m := NewManager(1)

	m.Enqueue(job("1", "a/b", config.Sequential))
	_, err := m.Enqueue(job("2", "a/b", config.Sequential))
	if err != nil {
		t.Fatalf("second enqueue should fit within cap: %v", err)
	}
	_, err = m.Enqueue(job("3", "a/b", config.Sequential))
	if !errors.Is(err, ErrPendingFull) {
		t.Fatalf("third enqueue: err = %v, want ErrPendingFull", err)
	}
}

func TestQueueRemovedWhenEmpty(t *testing.T) {
	t.Parallel()
	m := NewManager(64)
	m.Enqueue(job("1", "a/b", config.Sequential))
	m.Exit("a/b", "1")
	if m.Snapshot("a/b") != nil {
		t.Fatal("expected repo queue to be removed once idle")
	}
}
