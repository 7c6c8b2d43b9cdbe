// Package workerpool provides a persistent pool of goroutines that compiled
// resampling plans fan their tiles out to. The pool is created once when a
// pipeline is scheduled and reused by every Apply, so no goroutines are spawned
// per frame.
//
// Usage:
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//
//	pool.ParallelFor(tileRows, func(start, end int) {
//	    for ty := start; ty < end; ty++ {
//	        renderTileRow(ty)
//	    }
//	})
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed set of worker goroutines fed through a shared channel.
// ParallelFor and ParallelForAtomic may be called from several goroutines at once.
type Pool struct {
	workers int
	jobs    chan job
	once    sync.Once
	closed  atomic.Bool
}

type job struct {
	run  func()
	done *sync.WaitGroup
}

// New starts a pool with n workers. n <= 0 means GOMAXPROCS.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: n,
		jobs:    make(chan job, n*2),
	}
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	for j := range p.jobs {
		j.run()
		j.done.Done()
	}
}

// NumWorkers returns the number of worker goroutines.
func (p *Pool) NumWorkers() int {
	return p.workers
}

// Close stops the workers once queued jobs drain. It is safe to call more than
// once. After Close every Parallel* call runs inline on the caller's goroutine.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.jobs)
	})
}

// ParallelFor splits [0, n) into one contiguous range per worker and blocks until
// all ranges are done.
func (p *Pool) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := min(p.workers, n)
	if workers == 1 || p.closed.Load() {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		s, e := start, end
		p.jobs <- job{run: func() { fn(s, e) }, done: &wg}
	}
	wg.Wait()
}

// ParallelForAtomic hands out indices in [0, n) one at a time through an atomic
// counter. It balances better than ParallelFor when items differ in cost, e.g.
// tile rows that are mostly outside a polar warp's radius.
func (p *Pool) ParallelForAtomic(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	workers := min(p.workers, n)
	if workers == 1 || p.closed.Load() {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		p.jobs <- job{
			run: func() {
				for {
					i := int(next.Add(1)) - 1
					if i >= n {
						return
					}
					fn(i)
				}
			},
			done: &wg,
		}
	}
	wg.Wait()
}
