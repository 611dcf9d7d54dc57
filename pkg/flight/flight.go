// Package flight is a keyed result cache that coalesces concurrent loads of
// the same key. Completed values are held strongly for a TTL and weakly
// afterwards, so an idle dataset can be collected and is reloaded on demand.
package flight

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"weak"
)

type Cache[K comparable, V any] struct {
	// finished holds completed results. Each entry keeps a strong reference
	// until its deadline passes, after which only the weak pointer remains.
	finished map[K]*entry[V]
	fmu      *sync.RWMutex

	pending map[K]*job[V]
	pmu     *sync.Mutex

	work func(context.Context, K) (V, error)

	// ttl stores the strong-hold duration in nanoseconds.
	// <= 0 means infinite (never drop the strong reference).
	ttl *atomic.Int64

	// generation is bumped by Forget so a load started before it does not
	// store a stale result.
	generation *atomic.Uint64

	now func() time.Time
}

type entry[V any] struct {
	w        weak.Pointer[V]
	strong   *V        // non-nil while within the strong-hold window
	deadline time.Time // zero => infinite
	stored   time.Time
}

type job[V any] struct {
	val  V
	err  error
	done chan struct{}
}

func NewCache[K comparable, V any](work func(context.Context, K) (V, error)) *Cache[K, V] {
	var ttl atomic.Int64
	ttl.Store(int64(time.Hour))
	return &Cache[K, V]{
		finished:   make(map[K]*entry[V]),
		fmu:        new(sync.RWMutex),
		pending:    make(map[K]*job[V]),
		pmu:        new(sync.Mutex),
		work:       work,
		ttl:        &ttl,
		generation: new(atomic.Uint64),
		now:        time.Now,
	}
}

// Expiry sets the strong-hold duration for future writes.
// d <= 0 keeps a permanent strong reference (infinite duration).
func (p *Cache[K, V]) Expiry(d time.Duration) {
	if d <= 0 {
		p.ttl.Store(0)
		return
	}
	p.ttl.Store(int64(d))
}

// Get returns the cached value for k, loading it if needed. Concurrent
// callers for the same key share one load. Errors are not cached.
func (p *Cache[K, V]) Get(ctx context.Context, k K) (V, error) {
	p.pmu.Lock()

	if e, ok := p.loadEntry(k); ok {
		if v, ok := p.tryEntry(e); ok {
			p.pmu.Unlock()
			return v, nil
		}
		// If the weak value is gone, remove the entry so the miss below computes.
		p.fmu.Lock()
		if cur, ok := p.finished[k]; ok && cur == e && e.w.Value() == nil {
			delete(p.finished, k)
		}
		p.fmu.Unlock()
	}

	if pending, ok := p.pending[k]; ok {
		p.pmu.Unlock()
		return p.wait(ctx, pending)
	}

	j := &job[V]{done: make(chan struct{})}
	p.pending[k] = j
	p.pmu.Unlock()

	return p.run(ctx, k, j)
}

// Force reloads k even if a value is cached. An in-flight load for k is
// awaited first so two loads of one key never overlap.
func (p *Cache[K, V]) Force(ctx context.Context, k K) (V, error) {
	var j *job[V]
	for {
		p.pmu.Lock()
		if existing, ok := p.pending[k]; ok {
			p.pmu.Unlock()
			select {
			case <-existing.done:
			case <-ctx.Done():
				var zero V
				return zero, ctx.Err()
			}
			continue
		}
		j = &job[V]{done: make(chan struct{})}
		p.pending[k] = j
		p.pmu.Unlock()
		break
	}
	return p.run(ctx, k, j)
}

// Peek returns a cached value without loading.
func (p *Cache[K, V]) Peek(k K) (V, bool) {
	e, ok := p.loadEntry(k)
	if !ok {
		var zero V
		return zero, false
	}
	return p.tryEntry(e)
}

// StoredAt reports when the cached value for k was produced.
func (p *Cache[K, V]) StoredAt(k K) (time.Time, bool) {
	p.fmu.RLock()
	defer p.fmu.RUnlock()
	e, ok := p.finished[k]
	if !ok || e.w.Value() == nil {
		return time.Time{}, false
	}
	return e.stored, true
}

// Forget drops every cached value. Loads already in flight complete for
// their callers but are not stored.
func (p *Cache[K, V]) Forget() {
	p.generation.Add(1)
	p.fmu.Lock()
	clear(p.finished)
	p.fmu.Unlock()
}

// --- internals ---

// run loads k for every caller sharing j. The load is detached from the
// caller's cancellation so a leader that gives up does not fail the waiters;
// the leader itself still returns as soon as its context is done.
func (p *Cache[K, V]) run(ctx context.Context, k K, j *job[V]) (V, error) {
	gen := p.generation.Load()
	go func() {
		val, err := p.work(context.WithoutCancel(ctx), k)
		if err == nil && p.generation.Load() == gen {
			p.storeEntry(k, val)
		}

		p.pmu.Lock()
		j.val, j.err = val, err
		close(j.done)
		delete(p.pending, k)
		p.pmu.Unlock()
	}()
	return p.wait(ctx, j)
}

func (p *Cache[K, V]) wait(ctx context.Context, j *job[V]) (V, error) {
	select {
	case <-j.done:
		return j.val, j.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (p *Cache[K, V]) ttlDur() time.Duration {
	return time.Duration(p.ttl.Load())
}

func (p *Cache[K, V]) loadEntry(k K) (*entry[V], bool) {
	p.fmu.RLock()
	e, ok := p.finished[k]
	p.fmu.RUnlock()
	if !ok {
		return nil, false
	}

	// If the strong-hold window elapsed, drop the strong pointer.
	if !e.deadline.IsZero() && p.now().After(e.deadline) {
		p.fmu.Lock()
		if cur, ok := p.finished[k]; ok && cur == e && e.strong != nil && p.now().After(e.deadline) {
			e.strong = nil
		}
		p.fmu.Unlock()
	}
	return e, true
}

func (p *Cache[K, V]) tryEntry(e *entry[V]) (V, bool) {
	if vp := e.w.Value(); vp != nil {
		return *vp, true
	}
	var zero V
	return zero, false
}

func (p *Cache[K, V]) storeEntry(k K, val V) {
	// Allocate a dedicated heap cell so the weak pointer refers to a stable address.
	v := new(V)
	*v = val

	now := p.now()
	e := &entry[V]{w: weak.Make(v), strong: v, stored: now}
	if d := p.ttlDur(); d > 0 {
		e.deadline = now.Add(d)
	}

	p.fmu.Lock()
	p.finished[k] = e
	p.fmu.Unlock()
}
