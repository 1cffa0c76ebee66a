// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

// Command snared is a daemon that accepts GitHub webhook deliveries,
// authenticates and validates them, and runs a configured shell command
// per repository under a per-repository concurrency policy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/softdevteam/snare/lib/config"
	"github.com/softdevteam/snare/lib/httpapi"
	"github.com/softdevteam/snare/lib/process"
	"github.com/softdevteam/snare/lib/scheduler"
	"github.com/softdevteam/snare/lib/snarelog"
)

const daemonChildEnv = "SNARE_DAEMON_CHILD"

// schedulerShutdownTimeout bounds how long a SIGINT/SIGTERM is willing to
// wait for live children to finish before main gives up on a clean drain.
const schedulerShutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath string
	foreground bool
	verbosity  int
}

func parseFlags(args []string) (*options, error) {
	fs := pflag.NewFlagSet("snared", pflag.ContinueOnError)
	opts := &options{}
	fs.StringVarP(&opts.configPath, "config", "c", "/etc/snare/snare.conf", "path to the configuration file")
	fs.BoolVarP(&opts.foreground, "foreground", "d", false, "stay in the foreground instead of daemonizing")
	fs.CountVarP(&opts.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func run() error {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !opts.foreground && os.Getenv(daemonChildEnv) == "" {
		return daemonize()
	}

	level := snarelog.FromVerbosity(opts.verbosity)
	logger, err := buildLogger(opts.foreground, level)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	if cfg.User == "" && os.Geteuid() == 0 {
		return fmt.Errorf("refusing to run as root without a configured \"user\"")
	}

	payloadDir, err := os.MkdirTemp("", "snare-payloads-*")
	if err != nil {
		return fmt.Errorf("creating payload directory: %w", err)
	}
	payloadDir = filepath.Clean(payloadDir)
	defer os.RemoveAll(payloadDir)

	sched := scheduler.New(cfg, logger)
	handler := httpapi.NewWebhookHandler(sched, payloadDir, logger)
	server := httpapi.NewServer(httpapi.ServerConfig{
		Address: cfg.Listen,
		Handler: handler,
		Logger:  logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	go watchForReload(hangup, opts.configPath, sched, logger)

	schedulerDone := make(chan struct{})
	go func() {
		sched.Run()
		close(schedulerDone)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx)
	}()

	select {
	case <-server.Ready():
		logger.Info("snared: listening", "address", server.Addr())
	case err := <-serveErr:
		return fmt.Errorf("starting http server: %w", err)
	}

	// Privileges are dropped only once the listen socket is bound, so a
	// config binding a privileged port can still drop to an unprivileged
	// user afterwards.
	if cfg.User != "" {
		dropUser, err := dropPrivileges(cfg.User)
		if err != nil {
			return fmt.Errorf("dropping privileges: %w", err)
		}
		sched.SetDropUser(dropUser.name, dropUser.home)
		if err := os.Chown(payloadDir, dropUser.uid, dropUser.gid); err != nil {
			return fmt.Errorf("chowning payload directory to %q: %w", dropUser.name, err)
		}
	}

	// The scheduler drains its live children on its own clock, started the
	// moment ctx is cancelled rather than after server.Serve finishes its
	// own graceful shutdown on the same signal -- the two run concurrently
	// so live jobs get the whole schedulerShutdownTimeout to be reaped and
	// cleaned up instead of being abandoned.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), schedulerShutdownTimeout)
		defer cancel()
		sched.Shutdown(shutdownCtx)
	}()

	err = <-serveErr
	<-shutdownDone
	return err
}

func buildLogger(foreground bool, level snarelog.Level) (*slog.Logger, error) {
	if foreground {
		return snarelog.NewForeground(level), nil
	}
	return snarelog.NewSyslog(level, "snared")
}
