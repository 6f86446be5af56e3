// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tube

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"github.com/google/uuid"
)

// Serial is a fiber identifier, monotonically increasing within one
// engine. Serials are only assigned while fiber lifecycle logging is
// enabled; they exist to tell fibers apart in trace output.
type Serial = uint32

// Executor runs tasks submitted by an engine. Implementations decide
// where and when the task executes; the engine only requires that every
// submitted task eventually runs.
type Executor interface {
	Execute(task func())
}

// Engine hands out fibers and posts runnable ones to its executor. It
// keeps no record of live fibers.
type Engine[P any] struct {
	// ID names the engine in fiber trace output.
	ID string

	// serials numbers this engine's fibers for trace output.
	serials atomix.Uint32

	mu       sync.Mutex
	executor Executor
}

// NewEngine creates an engine with no executor configured; one is
// created lazily on the first asynchronous fiber start, or installed
// with SetExecutor. An empty id is replaced with a generated one.
func NewEngine[P any](id string) *Engine[P] {
	if id == "" {
		id = uuid.NewString()
	}
	return &Engine[P]{ID: id}
}

// NewEngineWithExecutor creates an engine that posts fibers to the
// given executor.
func NewEngineWithExecutor[P any](id string, executor Executor) *Engine[P] {
	e := NewEngine[P](id)
	e.executor = executor
	return e
}

// SetExecutor replaces the engine's executor. Fibers already submitted
// to the previous executor keep running there.
func (e *Engine[P]) SetExecutor(executor Executor) {
	e.mu.Lock()
	e.executor = executor
	e.mu.Unlock()
}

// CreateFiber returns a new fiber bound to this engine.
func (e *Engine[P]) CreateFiber() *Fiber[P] {
	return newFiber(e)
}

// addRunnable submits the fiber for one asynchronous driving pass,
// lazily creating the default worker pool when no executor was
// configured.
func (e *Engine[P]) addRunnable(f *Fiber[P]) {
	e.mu.Lock()
	if e.executor == nil {
		e.executor = newWorkerPool(defaultPoolWorkers)
	}
	executor := e.executor
	e.mu.Unlock()
	executor.Execute(f.run)
}

// defaultPoolWorkers is the width of the lazily created default pool.
const defaultPoolWorkers = 5

// runQueueCapacity bounds the default pool's run queue. Submission
// backs off while the queue is full, so a burst of resumed fibers
// applies backpressure instead of growing memory.
const runQueueCapacity = 1024

// workerPool is the default executor: a fixed set of workers draining a
// bounded lock-free MPMC run queue. Any goroutine may submit (fiber
// starts and resumes come from arbitrary goroutines) and every worker
// consumes. Workers park with adaptive backoff while the queue is
// empty; like daemon threads, they live for the remainder of the
// process.
type workerPool struct {
	q lfq.Queue[func()]
}

func newWorkerPool(workers int) *workerPool {
	p := &workerPool{q: lfq.NewMPMC[func()](runQueueCapacity)}
	for range workers {
		go p.work()
	}
	return p
}

// Execute implements Executor. Blocks with backoff while the run queue
// is full.
func (p *workerPool) Execute(task func()) {
	var bo iox.Backoff
	for {
		if err := p.q.Enqueue(&task); err == nil {
			return
		}
		bo.Wait()
	}
}

func (p *workerPool) work() {
	var bo iox.Backoff
	for {
		task, err := p.q.Dequeue()
		if err != nil {
			bo.Wait()
			continue
		}
		bo.Reset()
		task()
	}
}
