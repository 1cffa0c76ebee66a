// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// daemonize re-execs the current binary with its original arguments,
// detached into a new session, and returns so the caller can exit.
// This is the idiomatic Go
// approximation of the classic double-fork: Go's multi-threaded
// runtime makes a raw fork() without a following exec() unsafe, so
// instead of forking we start a fresh child process directly and let
// the parent exit once it has started successfully.
func daemonize() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemonize: locating executable: %w", err)
	}

	cmd := exec.Command(executable, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonChildEnv+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemonize: opening %s: %w", os.DevNull, err)
	}
	defer devNull.Close()
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemonize: starting detached child: %w", err)
	}
	return nil
}
