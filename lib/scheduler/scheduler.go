// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/softdevteam/snare/lib/config"
	"github.com/softdevteam/snare/lib/queue"
	"github.com/softdevteam/snare/lib/substitute"
	"github.com/softdevteam/snare/lib/webhook"
)

// DefaultGracePeriod is how long a timed-out child is given after
// SIGTERM before the supervisor escalates to SIGKILL. Zero reproduces
// the SIGTERM-only minimal behaviour.
const DefaultGracePeriod = 5 * time.Second

// requestQueueDepth bounds how many validated-but-not-yet-enqueued
// requests may be in flight before Submit returns 503.
const requestQueueDepth = 64

// Scheduler is the single supervisor for snared: it owns the
// per-repository queue manager, the global job-pool admission gate,
// and the set of live children. Every field below that can change
// after construction is touched only by the Run goroutine, except cfg,
// which is read via an atomic pointer so Submit (called concurrently
// from HTTP handler goroutines) can resolve match rules without
// routing through the supervisor.
type Scheduler struct {
	logger      *slog.Logger
	gracePeriod time.Duration
	dropUser    string
	dropHome    string

	cfg atomic.Pointer[config.Config]

	queues *queue.Manager
	sem    *semaphore.Weighted

	requestCh  chan submitRequest
	admittedCh chan *Job
	exitCh     chan childExit
	reloadCh   chan *config.Config
	shutdownCh chan struct{}
	doneCh     chan struct{}

	live     map[string]*liveEntry // keyed by Job.ID
	jobsByID map[string]*Job       // keyed by Job.ID, covers live and pending jobs
}

type liveEntry struct {
	job  *Job
	proc *spawnedProcess
}

type submitRequest struct {
	job  *Job
	resp chan submitResponse
}

type submitResponse struct {
	httpStatus int
	err        error
}

// New builds a Scheduler from cfg. The scheduler does not start running
// until Run is called.
func New(cfg *config.Config, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		logger:      logger,
		gracePeriod: DefaultGracePeriod,
		queues:      queue.NewManager(cfg.MaxPending),
		sem:         semaphore.NewWeighted(int64(cfg.MaxJobs)),
		requestCh:   make(chan submitRequest, requestQueueDepth),
		admittedCh:  make(chan *Job, requestQueueDepth),
		exitCh:      make(chan childExit, requestQueueDepth),
		reloadCh:    make(chan *config.Config, 1),
		shutdownCh:  make(chan struct{}),
		doneCh:      make(chan struct{}),
		live:        make(map[string]*liveEntry),
		jobsByID:    make(map[string]*Job),
	}
	s.cfg.Store(cfg)
	return s
}

// SetDropUser records the user snared dropped privileges to, so spawned
// children inherit the corresponding HOME/USER environment instead of
// the daemon's original (usually root) environment.
func (s *Scheduler) SetDropUser(userName, homeDir string) {
	s.dropUser = userName
	s.dropHome = homeDir
}

// Reload swaps in a newly parsed configuration. In-flight jobs keep the
// settings snapshot captured at enqueue time. Reload only hands cfg to
// the supervisor; deliveries submitted after the supervisor has applied
// it see the new rules.
func (s *Scheduler) Reload(cfg *config.Config) {
	s.reloadCh <- cfg
}

// Submit resolves match rules for owner/repo against the current
// configuration, authenticates the delivery, and -- if both succeed --
// hands the resulting job to the supervisor for queue admission. It
// blocks until the supervisor has processed the enqueue (or the
// request queue itself is full, in which case it returns promptly).
func (s *Scheduler) Submit(ctx context.Context, fp *webhook.Fingerprint) (httpStatus int, err error) {
	cfg := s.cfg.Load()
	settings, ok := cfg.Resolve(fp.Key())
	if !ok {
		return 400, fmt.Errorf("scheduler: no cmd configured for repository %q", fp.Key())
	}

	if err := webhook.VerifyHMAC([]byte(settings.Secret), fp.Payload, fp.Signature); err != nil {
		return 401, err
	}
	if settings.Secret == "" && fp.Signature == "" {
		s.logger.Warn("scheduler: accepting unauthenticated delivery, no secret configured", "key", fp.Key())
	}

	job := newJob(fp.Owner, fp.Repo, fp.Event, fp.PayloadPath, settings)

	resp := make(chan submitResponse, 1)
	select {
	case s.requestCh <- submitRequest{job: job, resp: resp}:
	default:
		return 503, fmt.Errorf("scheduler: request queue full")
	}

	select {
	case r := <-resp:
		return r.httpStatus, r.err
	case <-ctx.Done():
		return 503, ctx.Err()
	}
}

// Shutdown signals Run to stop accepting new work and wait (bounded by
// ctx) for running children before returning.
func (s *Scheduler) Shutdown(ctx context.Context) {
	close(s.shutdownCh)
	select {
	case <-s.doneCh:
	case <-ctx.Done():
	}
}

// Run is the supervisor loop: the single place scheduler state is read
// or mutated. It returns once Shutdown has been called and every live
// child has been reaped. Run has its own lifetime, independent of any
// caller's context: the only way to stop it is Shutdown, so a live
// child is always given the chance to be reaped and cleaned up rather
// than abandoned the instant a signal arrives.
func (s *Scheduler) Run() {
	defer close(s.doneCh)
	shuttingDown := false

	for {
		if shuttingDown && len(s.live) == 0 {
			return
		}

		select {
		case <-s.shutdownCh:
			shuttingDown = true
			s.shutdownCh = nil // select on a nil channel blocks forever; don't re-fire

		case req := <-s.requestCh:
			if shuttingDown {
				req.resp <- submitResponse{httpStatus: 503, err: fmt.Errorf("scheduler: shutting down")}
				continue
			}
			s.handleEnqueue(req)

		case job := <-s.admittedCh:
			s.spawnJob(job)

		case exit := <-s.exitCh:
			s.handleExit(exit)

		case cfg := <-s.reloadCh:
			s.cfg.Store(cfg)
			s.queues.SetMaxPending(cfg.MaxPending)
			s.logger.Info("scheduler: configuration reloaded")
		}
	}
}

func (s *Scheduler) handleEnqueue(req submitRequest) {
	admitted, err := s.queues.Enqueue(&queue.Job{ID: req.job.ID, Key: req.job.Key, Discipline: req.job.Discipline})
	if err != nil {
		req.resp <- submitResponse{httpStatus: 503, err: err}
		s.removeJobArtifacts(req.job)
		return
	}

	for _, evicted := range admitted.Evicted {
		s.logger.Info("scheduler: evicted pending job", "key", req.job.Key, "job_id", evicted.ID)
		// The richer Job record (with its payload path) lives only in
		// jobsByID; queue.Job itself carries no artifacts to clean up.
		if evictedJob, ok := s.jobsByID[evicted.ID]; ok {
			s.removeJobArtifacts(evictedJob)
			delete(s.jobsByID, evicted.ID)
		}
	}

	s.jobsByID[req.job.ID] = req.job

	for _, j := range admitted.Jobs {
		full := s.jobsByID[j.ID]
		go s.awaitAdmission(full)
	}

	req.resp <- submitResponse{httpStatus: 200}
}

// awaitAdmission blocks (in its own goroutine, never the supervisor's)
// until the global job-pool semaphore grants this job a slot, then
// hands it back to the supervisor to actually spawn.
func (s *Scheduler) awaitAdmission(job *Job) {
	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	s.admittedCh <- job
}

func (s *Scheduler) spawnJob(job *Job) {
	env := []string(nil)
	if s.dropUser != "" {
		env = dropUserEnv(s.dropHome, s.dropUser)
	}

	expanded := substitute.Cmd(job.Settings.Cmd, substitute.CmdVars{
		Event:       job.Event,
		PayloadPath: job.PayloadPath,
		Owner:       job.Owner,
		Repo:        job.Repo,
	})

	proc, err := spawn(context.Background(), spawnOptions{
		command:     expanded,
		timeout:     time.Duration(job.Settings.Timeout) * time.Second,
		gracePeriod: s.gracePeriod,
		env:         env,
	})
	if err != nil {
		s.logger.Error("scheduler: spawn failed", "key", job.Key, "job_id", job.ID, "error", err)
		s.sem.Release(1)
		s.finishJob(job, exitResult{kind: exitUnknown, waitErr: err}, "")
		next, _ := s.queues.Exit(job.Key, job.ID)
		if next != nil {
			go s.awaitAdmission(s.jobsByID[next.ID])
		}
		return
	}

	s.live[job.ID] = &liveEntry{job: job, proc: proc}
	go watchChild(job.ID, job.Key, proc, s.exitCh)
}

func (s *Scheduler) handleExit(exit childExit) {
	entry, ok := s.live[exit.jobID]
	if !ok {
		return
	}
	delete(s.live, exit.jobID)
	s.sem.Release(1)

	capturePath := entry.proc.capturePath
	entry.proc.cleanup()

	s.finishJob(entry.job, exit.result, capturePath)

	next, _ := s.queues.Exit(exit.key, exit.jobID)
	if next != nil {
		full := s.jobsByID[next.ID]
		go s.awaitAdmission(full)
	}
}

// finishJob runs errorcmd (if configured and the job failed), then
// removes the job's payload file and forgets it.
func (s *Scheduler) finishJob(job *Job, result exitResult, capturePath string) {
	defer delete(s.jobsByID, job.ID)
	defer s.removeJobArtifacts(job)

	if result.success {
		s.logger.Info("scheduler: job succeeded", "key", job.Key, "job_id", job.ID)
		return
	}

	s.logger.Warn("scheduler: job failed", "key", job.Key, "job_id", job.ID, "kind", result.kind.String(), "code", result.code)

	if job.Settings.ErrorCmd == "" {
		return
	}

	code := "unknown"
	if result.kind != exitUnknown {
		code = strconv.Itoa(result.code)
	}
	expanded := substitute.ErrorCmd(job.Settings.ErrorCmd, substitute.ErrorCmdVars{
		CmdVars: substitute.CmdVars{
			Event:       job.Event,
			PayloadPath: job.PayloadPath,
			Owner:       job.Owner,
			Repo:        job.Repo,
		},
		CapturePath: capturePath,
		Kind:        result.kind.String(),
		Code:        code,
	})

	proc, err := spawn(context.Background(), spawnOptions{command: expanded})
	if err != nil {
		s.logger.Error("scheduler: errorcmd spawn failed", "key", job.Key, "job_id", job.ID, "error", err)
		return
	}
	// errorcmd's own exit is only logged, never escalated further; wait
	// for it out-of-line so the supervisor isn't blocked.
	go func() {
		waitErr := proc.cmd.Wait()
		proc.cleanup()
		res := classifyExit(waitErr)
		if !res.success {
			s.logger.Error("scheduler: errorcmd failed", "key", job.Key, "job_id", job.ID, "kind", res.kind.String(), "code", res.code)
		}
	}()
}

func (s *Scheduler) removeJobArtifacts(job *Job) {
	if job.PayloadPath != "" {
		os.Remove(job.PayloadPath)
	}
}
