// Package pool implements the bounded concurrent executor (C5): a single
// counting semaphore with a runtime-adjustable limit, admission by
// submit(unit, id), per-unit cancellation, and a completed-unit result
// cache. The two pools (default, Lumina) are two independent instances of
// this same type - they share code but never share state, per §9.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
)

// Unit is one submitted async function. It receives a context that is
// cancelled if the unit is cancelled before or during execution.
type Unit func(ctx context.Context) (any, error)

// Stats is the pool's point-in-time snapshot, per §4.5.
type Stats struct {
	Running        int
	Completed      int
	Limit          int
	AvailableSlots int
}

// Pool is one bounded concurrent executor.
type Pool struct {
	name string
	log  *log.Entry

	mu    sync.Mutex
	cond  *sync.Cond
	limit int
	running int
	completed int

	cancels map[string]context.CancelFunc
	results *gocache.Cache
	done    map[string]chan struct{}
}

// New builds a pool starting at initialLimit slots.
func New(name string, initialLimit int) *Pool {
	p := &Pool{
		name:    name,
		log:     log.WithField("pool", name),
		limit:   initialLimit,
		cancels: map[string]context.CancelFunc{},
		results: gocache.New(10*time.Minute, time.Minute),
		done:    map[string]chan struct{}{},
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Name returns the pool's identifying label (e.g. "default", "lumina").
func (p *Pool) Name() string { return p.name }

// Stats returns the current snapshot.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	avail := p.limit - p.running
	if avail < 0 {
		avail = 0
	}
	return Stats{Running: p.running, Completed: p.completed, Limit: p.limit, AvailableSlots: avail}
}

// SetLimit adjusts the pool's capacity. Growing wakes any admission waiters;
// shrinking is conceptual only - in-flight units are never killed, the
// effective capacity just drains down as they complete.
func (p *Pool) SetLimit(newLimit int) {
	p.mu.Lock()
	grew := newLimit > p.limit
	p.limit = newLimit
	p.mu.Unlock()
	if grew {
		p.cond.Broadcast()
	}
}

// Submit admits unit once a slot is free (or ctx is cancelled first) and
// runs it in a new goroutine, recording its result under id for GetResult.
// Submit itself never blocks: admission and execution both happen in that
// goroutine, so the caller gets control back before the unit is admitted.
func (p *Pool) Submit(ctx context.Context, id string, unit Unit) {
	unitCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancels[id] = cancel
	done := make(chan struct{})
	p.done[id] = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		if !p.acquire(unitCtx) {
			p.finishAdmissionFailure(id, cancel)
			return
		}
		defer p.release()

		result, err := unit(unitCtx)

		p.mu.Lock()
		delete(p.cancels, id)
		p.completed++
		p.mu.Unlock()

		p.results.Set(id, outcome{result: result, err: err}, gocache.DefaultExpiration)
	}()
}

type outcome struct {
	result any
	err    error
}

func (p *Pool) finishAdmissionFailure(id string, cancel context.CancelFunc) {
	cancel()
	p.mu.Lock()
	delete(p.cancels, id)
	p.mu.Unlock()
	p.results.Set(id, outcome{err: context.Canceled}, gocache.DefaultExpiration)
}

// acquire blocks until a slot is free or ctx is done, mirroring a counting
// semaphore's Acquire but over a limit that can change underneath it.
func (p *Pool) acquire(ctx context.Context) bool {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.cond.Broadcast()
		case <-stop:
		}
	}()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.running >= p.limit {
		if ctx.Err() != nil {
			return false
		}
		p.cond.Wait()
	}
	if ctx.Err() != nil {
		return false
	}
	p.running++
	return true
}

func (p *Pool) release() {
	p.mu.Lock()
	p.running--
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Cancel interrupts unit id: a not-yet-admitted unit never starts, an
// in-flight unit is interrupted at its next ctx-aware suspension point.
func (p *Pool) Cancel(id string) {
	p.mu.Lock()
	cancel, ok := p.cancels[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// GetResult returns unit id's recorded outcome. If wait is true and the
// unit hasn't finished yet, it blocks on that unit's completion channel.
func (p *Pool) GetResult(ctx context.Context, id string, wait bool) (any, error, bool) {
	if v, ok := p.results.Get(id); ok {
		o := v.(outcome)
		return o.result, o.err, true
	}
	if !wait {
		return nil, nil, false
	}

	p.mu.Lock()
	done, ok := p.done[id]
	p.mu.Unlock()
	if !ok {
		return nil, nil, false
	}

	select {
	case <-done:
		if v, ok := p.results.Get(id); ok {
			o := v.(outcome)
			return o.result, o.err, true
		}
		return nil, fmt.Errorf("pool: result vanished for %s", id), false
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}
