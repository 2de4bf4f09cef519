package live

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Registry tracks running orchestrators by account id and owns their
// lifecycles. Start and Stop are safe to call concurrently.
type Registry struct {
	mu      sync.Mutex
	running map[string]*runner
}

type runner struct {
	orch   *Orchestrator
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{running: make(map[string]*runner)}
}

// Start launches the orchestrator under the given id. A second Start
// for a live id is an error; a finished run is reaped first.
func (r *Registry) Start(ctx context.Context, id string, o *Orchestrator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.running[id]; ok {
		select {
		case <-cur.done:
			delete(r.running, id)
		default:
			return fmt.Errorf("live: engine %q already running", id)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &runner{orch: o, cancel: cancel, done: make(chan struct{})}
	r.running[id] = run

	go func() {
		defer close(run.done)
		if err := o.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Printf("[WARN] live %s: run ended: %v", id, err)
		}
	}()
	log.Printf("[INFO] live %s: engine started", id)
	return nil
}

// Stop cancels the engine and waits for its workers to drain, up to
// the timeout.
func (r *Registry) Stop(id string, timeout time.Duration) error {
	r.mu.Lock()
	run, ok := r.running[id]
	if ok {
		delete(r.running, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("live: engine %q not running", id)
	}

	run.cancel()
	select {
	case <-run.done:
		log.Printf("[INFO] live %s: engine stopped", id)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("live: engine %q did not stop within %s", id, timeout)
	}
}

// StopAll stops every running engine, returning the first error.
func (r *Registry) StopAll(timeout time.Duration) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var first error
	for _, id := range ids {
		if err := r.Stop(id, timeout); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Running reports whether the engine is live (started and not yet
// finished).
func (r *Registry) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.running[id]
	if !ok {
		return false
	}
	select {
	case <-run.done:
		return false
	default:
		return true
	}
}

// IDs lists registered engine ids, running or reaped-pending.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	return ids
}

// Supervisor periodically runs a reconcile function that restarts dead
// engines and refreshes broker sessions before they expire. The
// reconcile logic is supplied by the caller; the supervisor only owns
// the schedule.
type Supervisor struct {
	cron      *cron.Cron
	reconcile func(ctx context.Context)
	ctx       context.Context
}

// NewSupervisor schedules reconcile on the given cron spec (for
// example "@every 1m").
func NewSupervisor(ctx context.Context, spec string, reconcile func(ctx context.Context)) (*Supervisor, error) {
	s := &Supervisor{cron: cron.New(), reconcile: reconcile, ctx: ctx}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("live: supervisor schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Supervisor) tick() {
	if s.ctx.Err() != nil {
		return
	}
	s.reconcile(s.ctx)
}

func (s *Supervisor) Start() { s.cron.Start() }

// Stop halts the schedule and waits for an in-flight reconcile.
func (s *Supervisor) Stop() {
	<-s.cron.Stop().Done()
}
