package device

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// numWorkers defines the default parallelism for executing kernel groups.
var numWorkers = runtime.NumCPU()

// errorSink receives asynchronous failures captured by the execution
// queue. Devices implement it with their sticky error slot.
type errorSink interface {
	recordAsyncError(err error)
	stickyError() error
}

// Engine is the in-order execution queue of a device. Enqueued items run
// in FIFO submission order on a dedicated goroutine; kernel launches fan
// out across workers internally but complete before the next item starts.
type Engine struct {
	sink    errorSink
	tasks   chan func()
	drained chan struct{}
	closed  atomic.Bool
	workers int

	// suggestGroupSize is a replaceable strategy; the default returns
	// fixed per-rank constants rather than an occupancy-derived size.
	suggestGroupSize func(WorkDim) WorkDim
}

func newEngine(sink errorSink, workers int) *Engine {
	if workers <= 0 {
		workers = numWorkers
	}
	e := &Engine{
		sink:    sink,
		tasks:   make(chan func(), 1024),
		drained: make(chan struct{}),
		workers: workers,
	}
	e.suggestGroupSize = defaultGroupSize
	go e.loop()
	return e
}

func (e *Engine) loop() {
	for f := range e.tasks {
		f()
	}
	close(e.drained)
}

// shutdown stops the queue goroutine after the queue drains.
func (e *Engine) shutdown() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.tasks)
		<-e.drained
	}
}

// defaultGroupSize returns the fixed launch tile per rank.
func defaultGroupSize(global WorkDim) WorkDim {
	switch global.Rank() {
	case 1:
		return Dim1(256)
	case 2:
		return Dim2(16, 16)
	default:
		return Dim3(1, 16, 16)
	}
}

// SuggestGroupSize returns the group size the engine would pick for a
// global extent.
func (e *Engine) SuggestGroupSize(global WorkDim) WorkDim {
	return e.suggestGroupSize(global)
}

// enqueue submits one unit of work. If the device error slot is set, the
// pending error is surfaced here and the work is rejected until the slot
// is drained.
func (e *Engine) enqueue(f func()) error {
	if err := e.sink.stickyError(); err != nil {
		return err
	}
	if e.closed.Load() {
		return Errorf(CodeInvalidOperation, "engine is shut down")
	}
	engineTasks.Inc()
	e.tasks <- f
	return nil
}

// RunHostFuncAsync enqueues a host-side function. The call returns
// immediately; a returned error is captured in the device error slot.
func (e *Engine) RunHostFuncAsync(fn func() error) error {
	return e.enqueue(func() {
		defer e.recoverPanic()
		if err := fn(); err != nil {
			e.sink.recordAsyncError(err)
		}
	})
}

// RunKernelAsync enqueues a kernel launch over a global index space using
// the engine's group-size heuristic.
func (e *Engine) RunKernelAsync(global WorkDim, fn func(WorkItem)) error {
	return e.RunGroupKernelAsync(global, e.suggestGroupSize(global), fn)
}

// RunGroupKernelAsync enqueues a kernel launch with an explicit group
// size. The grid is the per-axis ceiling division of the global extent by
// the group size; coordinates in the padded margin are dropped before fn
// is invoked.
func (e *Engine) RunGroupKernelAsync(global, group WorkDim, fn func(WorkItem)) error {
	return e.enqueue(func() {
		e.execLaunch(global, group, fn)
	})
}

// Wait blocks until all previously enqueued work has completed and
// reports (without clearing) any captured asynchronous error.
func (e *Engine) Wait() error {
	if e.closed.Load() {
		return e.sink.stickyError()
	}
	// The marker is queue plumbing, not work; it stays out of the
	// task counter.
	done := make(chan struct{})
	e.tasks <- func() { close(done) }
	<-done
	return e.sink.stickyError()
}

func (e *Engine) recoverPanic() {
	if r := recover(); r != nil {
		log.Error().Interface("panic", r).Msg("kernel execution panicked")
		e.sink.recordAsyncError(Errorf(CodeUnknown, "kernel execution panicked: %v", r))
	}
}

// execLaunch runs the two-level (groups x group-size) decomposition of a
// launch, spreading groups across workers. Each delivered WorkItem is
// bounds-checked against the true global extent.
func (e *Engine) execLaunch(global, group WorkDim, fn func(WorkItem)) {
	grid := global.CeilDiv(group)
	numGroups := grid.Total()

	workers := e.workers
	if workers > numGroups {
		workers = numGroups
	}
	if workers <= 1 {
		func() {
			defer e.recoverPanic()
			for g := 0; g < numGroups; g++ {
				e.execGroup(global, group, grid, g, fn)
			}
		}()
		return
	}

	var wg sync.WaitGroup
	var next atomic.Int64
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.recoverPanic()
			for {
				g := int(next.Add(1)) - 1
				if g >= numGroups {
					return
				}
				e.execGroup(global, group, grid, g, fn)
			}
		}()
	}
	wg.Wait()
}

// execGroup invokes fn for every in-range coordinate of one group.
func (e *Engine) execGroup(global, group, grid WorkDim, groupIdx int, fn func(WorkItem)) {
	var groupID [3]int
	rem := groupIdx
	for axis := global.Rank() - 1; axis >= 0; axis-- {
		groupID[axis] = rem % grid.dims[axis]
		rem /= grid.dims[axis]
	}

	var local [3]int
	for local[0] = 0; local[0] < group.dims[0]; local[0]++ {
		for local[1] = 0; local[1] < group.dims[1]; local[1]++ {
			for local[2] = 0; local[2] < group.dims[2]; local[2]++ {
				it := WorkItem{global: global}
				inRange := true
				for axis := 0; axis < global.Rank(); axis++ {
					it.id[axis] = groupID[axis]*group.dims[axis] + local[axis]
					if it.id[axis] >= global.dims[axis] {
						inRange = false
						break
					}
				}
				if inRange {
					fn(it)
				}
			}
		}
	}
}
