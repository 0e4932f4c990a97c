package reactor

import (
	"sync"
	"sync/atomic"
)

// LoopThreadPool owns N worker threads, each hosting one private
// EventLoop, plus a reference to the base loop (which typically hosts the
// Acceptor and runs on the caller's own thread). Creation spawns N
// goroutines, each of which builds its own EventLoop and calls Start,
// which pins it to an OS thread; the pool only returns once every worker
// has published its loop.
type LoopThreadPool struct {
	base  *EventLoop
	loops []*EventLoop
	next  uint64 // round-robin cursor, advanced atomically
}

// NewLoopThreadPool spawns n worker loops (each on its own goroutine
// pinned via LockOSThread) and starts them running. n == 0 is valid: the
// pool then has no workers and Next always returns base.
func NewLoopThreadPool(base *EventLoop, n int) (*LoopThreadPool, error) {
	pool := &LoopThreadPool{base: base}
	if n <= 0 {
		return pool, nil
	}

	type result struct {
		loop *EventLoop
		err  error
	}
	results := make([]result, n)
	var wg sync.WaitGroup
	var ready sync.WaitGroup
	wg.Add(n)
	ready.Add(n)

	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			loop, err := NewEventLoop()
			results[i] = result{loop: loop, err: err}
			ready.Done()
			if err != nil {
				return
			}
			loop.Start()
		}()
	}
	ready.Wait()

	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		pool.loops = append(pool.loops, r.loop)
	}
	return pool, nil
}

// Next returns the next worker loop in round-robin order, or base if the
// pool has no workers (thread_count == 0).
func (p *LoopThreadPool) Next() *EventLoop {
	if len(p.loops) == 0 {
		return p.base
	}
	i := atomic.AddUint64(&p.next, 1) - 1
	return p.loops[i%uint64(len(p.loops))]
}

// Loops returns the worker loops in insertion order (for tests asserting
// round-robin placement).
func (p *LoopThreadPool) Loops() []*EventLoop {
	return p.loops
}

// Stop stops every worker loop. The base loop is left running: it is
// owned by whoever created it (typically TcpServer.Start's caller).
func (p *LoopThreadPool) Stop() {
	for _, l := range p.loops {
		l.Stop()
	}
}
