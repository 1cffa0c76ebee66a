// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"os"

	"github.com/softdevteam/snare/lib/config"
	"github.com/softdevteam/snare/lib/scheduler"
)

// watchForReload re-parses configPath on every received signal and
// hands the result to sched.Reload. A parse failure is logged and the
// previous configuration is kept in effect -- a typo in the config
// file must never take down a running daemon.
func watchForReload(signals <-chan os.Signal, configPath string, sched *scheduler.Scheduler, logger *slog.Logger) {
	for range signals {
		cfg, err := config.Load(configPath)
		if err != nil {
			logger.Error("snared: config reload failed, keeping previous configuration", "error", err)
			continue
		}
		sched.Reload(cfg)
	}
}
