// Package driver runs the escalation loop as a background process. One
// driver per data directory: it polls the store for alert groups whose
// next step is due, executes exactly one step per group per poll under
// the group's file lock, persists the result, and only then releases the
// deferred notification tasks.
package driver

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/OWNER/escalator/internal/auditlog"
	"github.com/OWNER/escalator/internal/directory"
	"github.com/OWNER/escalator/internal/escalation"
	"github.com/OWNER/escalator/internal/store"
	"github.com/OWNER/escalator/internal/taskq"
)

// Driver is the escalation background service.
type Driver struct {
	config    *Config
	store     *store.Store
	audit     escalation.AuditLog
	schedules escalation.ScheduleResolver
	notifier  taskq.Notifier
	rotations *directory.Rotations
	clock     escalation.Clock
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a driver. The schedule resolver, notifier and rotation
// store may be nil: a nil resolver makes every schedule step fail with
// an import error, a nil notifier drops delivered tasks into the driver
// log only, and a nil rotation store keeps rotation cursors snapshot
// local.
func New(cfg *Config, st *store.Store, schedules escalation.ScheduleResolver, notifier taskq.Notifier, rotations *directory.Rotations) (*Driver, error) {
	driverDir := filepath.Dir(cfg.LogFile)
	if err := os.MkdirAll(driverDir, 0755); err != nil {
		return nil, fmt.Errorf("creating driver directory: %w", err)
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := log.New(logFile, "", log.LstdFlags)

	audit, err := auditlog.NewFileLog(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		config:    cfg,
		store:     st,
		audit:     audit,
		schedules: schedules,
		notifier:  notifier,
		rotations: rotations,
		clock:     escalation.SystemClock{},
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Run starts the driver main loop. It blocks until Stop is called or a
// termination signal arrives.
func (d *Driver) Run() error {
	d.logger.Printf("Driver starting (PID %d)", os.Getpid())

	// Exclusive lock prevents two drivers from racing on the same data
	// directory. The lock, not the PID file, is authoritative: it closes
	// the window where concurrent starts all pass an IsRunning check
	// before either writes the PID file.
	fileLock := flock.New(d.config.LockFile)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("driver already running (lock held by another process)")
	}
	defer func() { _ = fileLock.Unlock() }()

	if err := os.WriteFile(d.config.PidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() { _ = os.Remove(d.config.PidFile) }() // best-effort cleanup

	state := &State{
		Running:   true,
		PID:       os.Getpid(),
		StartedAt: time.Now(),
	}
	if err := SaveState(d.config.DataDir, state); err != nil {
		d.logger.Printf("Warning: failed to save state: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	interval := d.config.PollInterval.Std()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	d.logger.Printf("Driver running, poll interval %v", interval)

	d.poll(state)

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Println("Driver context canceled, shutting down")
			return d.shutdown(state)

		case sig := <-sigChan:
			d.logger.Printf("Received signal %v, shutting down", sig)
			return d.shutdown(state)

		case <-timer.C:
			d.poll(state)
			timer.Reset(interval)
		}
	}
}

// Stop signals the driver to stop.
func (d *Driver) Stop() {
	d.cancel()
}

// poll performs one scan over the stored alert groups.
func (d *Driver) poll(state *State) {
	ids, err := d.store.List()
	if err != nil {
		d.logger.Printf("Error listing alert groups: %v", err)
		return
	}

	for _, id := range ids {
		if err := d.processGroup(id); err != nil {
			d.logger.Printf("Error processing alert group %s: %v", id, err)
		}
	}

	state.LastPoll = time.Now()
	state.PollCount++
	if err := SaveState(d.config.DataDir, state); err != nil {
		d.logger.Printf("Warning: failed to save state: %v", err)
	}
}

// processGroup executes at most one due escalation step for one alert
// group. The whole read-execute-write cycle happens under the group's
// execution lock; a held lock means another invocation is mid-flight
// and this poll simply skips the group.
func (d *Driver) processGroup(id string) error {
	release, ok, err := d.store.TryLock(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer release()

	doc, err := d.store.Load(id)
	if err != nil {
		return err
	}
	g := doc.Group
	now := d.clock.Now()

	// Terminal and suppressed groups never escalate. Attached groups
	// follow their root group's escalation instead of their own.
	if g.Resolved || g.Acknowledged || g.Attached() || g.SilencedForever() {
		return nil
	}
	if g.Silenced && g.SilenceRemaining(now) > 0 {
		return nil
	}

	if doc.Snapshot == nil {
		if doc.Route == nil {
			return nil
		}
		doc.Snapshot = escalation.Build(doc.Route)
		eta := now
		doc.Snapshot.NextStepETA = &eta
		d.seedRotationCursors(doc.Snapshot)
		d.logger.Printf("Built escalation snapshot for group %s (%d policies)", id, len(doc.Snapshot.Policies))
	}
	s := doc.Snapshot

	// A new alert on a paused group lifts the pause so the counting step
	// re-evaluates its window immediately.
	unpaused := false
	if s.Paused {
		if p := s.PolicyAt(s.CurrentOrder); p != nil && p.State.PassedLastTime != nil {
			if last := g.LastAlert(); last != nil && last.CreatedAt.After(*p.State.PassedLastTime) {
				s.Unpause(now)
				unpaused = true
				d.logger.Printf("Unpaused escalation for group %s after new alert", id)
			}
		}
	}

	if !s.Due(now) {
		// The unpause moved the eta; it has to survive until that poll.
		if unpaused {
			if err := d.store.Save(doc); err != nil {
				return fmt.Errorf("saving group %s: %w", id, err)
			}
		}
		return nil
	}

	batch := taskq.NewBatch()
	x := escalation.NewExecutor(d.audit, batch, d.schedules)
	x.Clock = d.clock
	if d.rotations != nil {
		x.LivePolicies = d.rotations
	}

	wasFinished := s.Finished
	if err := s.ExecuteStep(x, g, fmt.Sprintf("escalation for alert group %s", id)); err != nil {
		return fmt.Errorf("executing step for group %s: %w", id, err)
	}
	if s.Finished && !wasFinished {
		if err := d.audit.Append(g, finishedRecord(now)); err != nil {
			return fmt.Errorf("recording finish for group %s: %w", id, err)
		}
		d.logger.Printf("Escalation finished for group %s", id)
	}

	// Persist before delivery: a task must never be observable while the
	// snapshot that scheduled it is unwritten.
	if err := d.store.Save(doc); err != nil {
		batch.Discard()
		return fmt.Errorf("saving group %s: %w", id, err)
	}

	if batch.Len() == 0 {
		return nil
	}
	n := d.notifier
	if n == nil {
		n = logNotifier{d.logger}
	}
	delivery := &deliverer{next: n, clock: d.clock, audit: d.audit, group: g}
	if err := batch.Flush(delivery); err != nil {
		d.logger.Printf("Error delivering tasks for group %s: %v (%d pending)", id, err, batch.Len())
	}
	if delivery.mutated {
		if err := d.store.Save(doc); err != nil {
			return fmt.Errorf("saving group %s after delivery: %w", id, err)
		}
	}
	return nil
}

// seedRotationCursors primes a fresh snapshot's users-queue steps with
// the persisted rotation cursor of their originating policy, so the
// rotation continues across escalation runs.
func (d *Driver) seedRotationCursors(s *escalation.Snapshot) {
	if d.rotations == nil {
		return
	}
	for _, p := range s.Policies {
		if p.Step != escalation.StepNotifyUsersQueue || p.ID == "" {
			continue
		}
		if u, ok := d.rotations.LastNotified(p.ID); ok {
			cursor := u
			p.State.LastNotified = &cursor
		}
	}
}

// shutdown performs graceful shutdown.
func (d *Driver) shutdown(state *State) error {
	d.logger.Println("Driver shutting down")
	state.Running = false
	if err := SaveState(d.config.DataDir, state); err != nil {
		d.logger.Printf("Warning: failed to save final state: %v", err)
	}
	d.logger.Println("Driver stopped")
	return nil
}
