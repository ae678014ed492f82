// Package scheduler turns natural-language due phrases on pending tasks
// into concrete fire times and delivers reminders when they arrive.
//
// Two loops run under one goroutine: a slow scan that pulls unscheduled
// tasks from the store and parses their due phrases, and a fast tick that
// fires everything whose time has come. Fired tasks are re-read first so a
// task completed or archived after scheduling never produces a reminder.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mira-notes/mira/internal/config"
	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/pkg/types"
)

// scanCooldown pauses scanning after repeated failures so a broken store
// is not hammered every interval.
const scanCooldown = 5 * time.Minute

// Deliverer sends a due reminder. Implementations log their own failures
// and never propagate them.
type Deliverer interface {
	Deliver(ctx context.Context, task *types.Task)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Scheduler owns the reminder queue. Start it once; it stops when the
// context is canceled.
type Scheduler struct {
	store    storage.TaskStore
	parser   TimeParser
	notifier Deliverer
	clock    Clock
	cfg      config.SchedulerConfig

	mu           sync.Mutex
	queue        *queue
	scanFailures int
	pausedUntil  time.Time
}

// New builds a scheduler. clock may be nil for the system clock.
func New(store storage.TaskStore, parser TimeParser, notifier Deliverer, cfg config.SchedulerConfig, clock Clock) *Scheduler {
	if clock == nil {
		clock = systemClock{}
	}
	return &Scheduler{
		store:    store,
		parser:   parser,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		queue:    newQueue(),
	}
}

// Run bootstraps the queue from the store with a larger first batch and
// then alternates scan and tick work until ctx is canceled. Blocks; call it
// in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("[scheduler] starting (scan every %s, tick every %s)", s.cfg.ScanInterval, s.cfg.TickInterval)

	s.Scan(ctx, s.cfg.BootstrapLimit)

	scanTicker := time.NewTicker(s.cfg.ScanInterval)
	tickTicker := time.NewTicker(s.cfg.TickInterval)
	defer scanTicker.Stop()
	defer tickTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler] stopped")
			return
		case <-scanTicker.C:
			s.Scan(ctx, s.cfg.ScanLimit)
		case <-tickTicker.C:
			s.Tick(ctx)
		}
	}
}

// Scan pulls unscheduled tasks, parses their due phrases and queues the
// ones that resolve to a future time. Tasks without a parseable phrase stay
// pending and are picked up again if their text ever changes.
func (s *Scheduler) Scan(ctx context.Context, limit int) {
	s.mu.Lock()
	if s.clock.Now().Before(s.pausedUntil) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	batch, err := s.store.FetchUnscheduled(ctx, limit)
	if err != nil {
		s.recordScanFailure(err)
		return
	}
	s.resetScanFailures()

	now := s.clock.Now()
	for _, task := range batch {
		s.mu.Lock()
		full := s.queue.len() >= s.cfg.MaxQueueSize
		s.mu.Unlock()
		if full {
			log.Printf("WARNING: [scheduler] queue full (%d), deferring remaining tasks", s.cfg.MaxQueueSize)
			return
		}

		phrase := task.NaturalText
		if phrase == "" {
			phrase = task.Title
		}
		due, confidence, ok := s.parser.Parse(phrase, now)
		if !ok {
			continue
		}
		if err := s.store.MarkScheduled(ctx, task.ID, due, confidence); err != nil {
			log.Printf("ERROR: [scheduler] mark scheduled failed for %s: %v", task.ID, err)
			continue
		}
		s.mu.Lock()
		s.queue.push(task.ID, due)
		s.mu.Unlock()
		log.Printf("[scheduler] queued task %s for %s (confidence %.1f)", task.ID, due.Format(time.RFC3339), confidence)
	}
}

// Tick fires every queued reminder whose due time has passed. The task is
// re-read before delivery; completed and archived tasks are dropped
// silently.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	due := s.queue.popDue(s.clock.Now())
	s.mu.Unlock()

	for _, e := range due {
		task, err := s.store.GetTask(ctx, e.taskID)
		if err != nil {
			log.Printf("WARNING: [scheduler] due task %s not readable, dropping: %v", e.taskID, err)
			continue
		}
		if task.Status == types.StatusCompleted || task.Status == types.StatusArchived {
			continue
		}
		s.notifier.Deliver(ctx, task)
	}
}

// QueueLen reports the number of queued reminders.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

func (s *Scheduler) recordScanFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanFailures++
	log.Printf("ERROR: [scheduler] scan failed (%d consecutive): %v", s.scanFailures, err)
	if s.scanFailures >= s.cfg.MaxFailures {
		s.pausedUntil = s.clock.Now().Add(scanCooldown)
		s.scanFailures = 0
		log.Printf("ERROR: [scheduler] too many scan failures, pausing until %s", s.pausedUntil.Format(time.RFC3339))
	}
}

func (s *Scheduler) resetScanFailures() {
	s.mu.Lock()
	s.scanFailures = 0
	s.mu.Unlock()
}
