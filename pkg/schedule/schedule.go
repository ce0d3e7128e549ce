// Package schedule runs periodic background jobs such as database backups.
//
//	s := schedule.New()
//	s.Every(6 * time.Hour).Name("backup").WithoutOverlapping().Run(backup.Job(url, 14))
//	go s.Start(ctx) // returns when ctx is done
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/simplepos/shell/pkg/logger"
)

// Task is a scheduled job. The context is cancelled when the scheduler
// stops.
type Task func(ctx context.Context) error

type entry struct {
	id        string
	interval  time.Duration
	immediate bool
	noOverlap bool
	task      Task

	mu      sync.Mutex
	lastRun time.Time
	running bool
	runs    int
	lastErr error
}

// Scheduler owns a set of entries and the loop that dispatches them.
type Scheduler struct {
	tick time.Duration

	mu      sync.Mutex
	entries []*entry
	wg      sync.WaitGroup
}

// New returns a Scheduler that checks for due entries every second.
func New() *Scheduler { return &Scheduler{tick: time.Second} }

// Schedule is a fluent builder for a single entry before it is registered.
type Schedule struct {
	s *Scheduler
	e *entry
}

// Every starts a builder for a task that runs every d. The first run is one
// interval after Start unless Immediately is set.
func (s *Scheduler) Every(d time.Duration) *Schedule {
	return &Schedule{s: s, e: &entry{interval: d}}
}

// Name gives the entry an identifier for logging.
func (b *Schedule) Name(id string) *Schedule {
	b.e.id = id
	return b
}

// WithoutOverlapping skips a run while the previous one is still executing.
func (b *Schedule) WithoutOverlapping() *Schedule {
	b.e.noOverlap = true
	return b
}

// Immediately makes the first run happen on the first tick.
func (b *Schedule) Immediately() *Schedule {
	b.e.immediate = true
	return b
}

// Run registers the task.
func (b *Schedule) Run(task Task) {
	if b.e.interval <= 0 {
		panic("schedule: interval must be positive")
	}
	b.e.task = task
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.e.id == "" {
		b.e.id = fmt.Sprintf("task-%d", len(b.s.entries)+1)
	}
	b.s.entries = append(b.s.entries, b.e)
}

// Start dispatches due entries until ctx is done, then waits for running
// tasks to return.
func (s *Scheduler) Start(ctx context.Context) {
	log := logger.Target("schedule")
	start := time.Now()

	s.mu.Lock()
	for _, e := range s.entries {
		e.mu.Lock()
		if e.lastRun.IsZero() && !e.immediate {
			e.lastRun = start
		}
		e.mu.Unlock()
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	log.Info("schedule: started", "entries", len(s.List()))

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			log.Info("schedule: stopped")
			return
		case now := <-ticker.C:
			s.mu.Lock()
			current := make([]*entry, len(s.entries))
			copy(current, s.entries)
			s.mu.Unlock()

			for _, e := range current {
				s.dispatch(ctx, e, now)
			}
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, e *entry, now time.Time) {
	log := logger.Target("schedule")

	e.mu.Lock()
	if !e.lastRun.IsZero() && now.Sub(e.lastRun) < e.interval {
		e.mu.Unlock()
		return
	}
	if e.noOverlap && e.running {
		e.mu.Unlock()
		log.Warn("schedule: skipping overlapping run", "id", e.id)
		return
	}
	e.running = true
	e.lastRun = now
	e.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("schedule: %s panicked: %v", e.id, r)
			}
			e.mu.Lock()
			e.running = false
			e.runs++
			e.lastErr = err
			e.mu.Unlock()
			if err != nil {
				log.Error("schedule: task failed", "id", e.id, "error", err)
			}
		}()

		log.Debug("schedule: running task", "id", e.id)
		err = e.task(ctx)
	}()
}

// Status is a snapshot of one entry.
type Status struct {
	ID       string
	Interval time.Duration
	LastRun  time.Time
	Runs     int
	Running  bool
	LastErr  error
}

// List returns the registered entries sorted by id.
func (s *Scheduler) List() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		out = append(out, Status{
			ID: e.id, Interval: e.interval, LastRun: e.lastRun,
			Runs: e.runs, Running: e.running, LastErr: e.lastErr,
		})
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
