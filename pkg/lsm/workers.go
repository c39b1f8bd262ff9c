package lsm

import "sync"

// workerPool runs the engine's background flush and compaction work on
// dedicated goroutines, signaled by single-slot channels so a burst of
// triggers collapses into one pending run rather than queuing up.
type workerPool struct {
	engine *Engine

	flushSignal   chan struct{}
	compactSignal chan struct{}
	stop          chan struct{}
	wg            sync.WaitGroup
}

// newWorkerPool creates a worker pool bound to engine, not yet started.
func newWorkerPool(e *Engine) *workerPool {
	return &workerPool{
		engine:        e,
		flushSignal:   make(chan struct{}, 1),
		compactSignal: make(chan struct{}, 1),
		stop:          make(chan struct{}),
	}
}

// Start launches the flush and compaction background goroutines.
func (w *workerPool) Start() {
	w.wg.Add(2)
	go w.runFlushLoop()
	go w.runCompactLoop()
}

// Stop signals both background goroutines to exit and waits for them.
func (w *workerPool) Stop() {
	close(w.stop)
	w.wg.Wait()
}

// SignalFlush requests a background flush, coalescing with any pending request.
func (w *workerPool) SignalFlush() {
	select {
	case w.flushSignal <- struct{}{}:
	default:
	}
}

// SignalCompact requests a background compaction pass, coalescing with
// any pending request.
func (w *workerPool) SignalCompact() {
	select {
	case w.compactSignal <- struct{}{}:
	default:
	}
}

func (w *workerPool) runFlushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case <-w.flushSignal:
			if err := w.engine.Flush(); err != nil {
				w.engine.logger.Warn("background flush failed", w.engine.logFields(Error(err))...)
			}
		}
	}
}

func (w *workerPool) runCompactLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case <-w.compactSignal:
			if err := w.engine.Compact(); err != nil {
				w.engine.logger.Warn("background compaction failed", w.engine.logFields(Error(err))...)
			}
		}
	}
}
