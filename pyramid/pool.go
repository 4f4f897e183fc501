package pyramid

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/janelia-flyem/mipexport/mip"
)

// WorkerPool is a fixed set of long-lived goroutines fed through a task channel.
// A panicking task is recovered and logged; the worker returns to waiting.
type WorkerPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewWorkerPool starts n workers, with a minimum of 1.
func NewWorkerPool(n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	p := &WorkerPool{tasks: make(chan func())}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker(i)
	}
	mip.Debugf("Started worker pool with %d workers\n", n)
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *WorkerPool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			mip.Criticalf("Worker %d recovered from panic: %v\n%s\n", id, r, debug.Stack())
		}
	}()
	task()
}

// RunAll hands every task to the pool and blocks until all of them have returned.
func (p *WorkerPool) RunAll(tasks []func()) {
	var done sync.WaitGroup
	done.Add(len(tasks))
	for _, task := range tasks {
		task := task
		p.tasks <- func() {
			defer done.Done()
			task()
		}
	}
	done.Wait()
}

// Close stops the workers after queued tasks finish.  The pool can't be used afterwards.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}

func (p *WorkerPool) String() string {
	return fmt.Sprintf("worker pool (%d queued)", len(p.tasks))
}
