package scheduler

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/log"
)

// WorkerStat counts what one worker has done. Fields are read concurrently
// by diagnostics, so they are atomics.
type WorkerStat struct {
	Count  atomic.Uint64
	Stolen atomic.Uint64
	Sleeps atomic.Uint64
}

// worker drains one set of queues. Pop order is sticky, delayed (when its
// ready time has elapsed), local, then stealing; when everything is empty
// the worker spins briefly and parks.
type worker struct {
	index   int
	cfg     *Config
	local   *BasicQueue[Task]
	sticky  *BasicQueue[Task]
	delayed *BasicQueue[Task]
	locals  []*BasicQueue[Task]
	stat    *WorkerStat
	wake    chan struct{}
}

func newWorker(index int, cfg *Config, local, sticky, delayed *BasicQueue[Task], locals []*BasicQueue[Task], stat *WorkerStat) *worker {
	return &worker{
		index:   index,
		cfg:     cfg,
		local:   local,
		sticky:  sticky,
		delayed: delayed,
		locals:  locals,
		stat:    stat,
		wake:    make(chan struct{}, 1),
	}
}

// notify wakes the worker if it is parked.
func (w *worker) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) process(ctx *Context) {
	spins := 0
	for w.local.Active() {
		if t, ok := w.sticky.TryPop(); ok {
			w.execute(t, ctx)
			spins = 0
			continue
		}
		if t, ok := w.popDelayed(); ok {
			w.execute(t, ctx)
			spins = 0
			continue
		}
		if t, ok := w.local.TryPop(); ok {
			w.execute(t, ctx)
			spins = 0
			continue
		}
		if t, ok := w.steal(ctx); ok {
			w.stat.Stolen.Add(1)
			w.execute(t, ctx)
			spins = 0
			continue
		}
		if spins < w.cfg.SpinBudget {
			spins++
			runtime.Gosched()
			continue
		}
		w.stat.Sleeps.Add(1)
		select {
		case <-w.wake:
		case <-time.After(w.cfg.ParkTimeout):
		}
		spins = 0
	}
}

// popDelayed pops one delayed task and runs it only when its ready time has
// elapsed; a not-yet-ready task goes straight back.
func (w *worker) popDelayed() (Task, bool) {
	t, ok := w.delayed.TryPop()
	if !ok {
		return nil, false
	}
	if time.Now().Before(t.DelayedUntil()) {
		w.delayed.Push(t)
		return nil, false
	}
	return t, true
}

// steal scans victims starting at last_steal_from+1, wrapping once around.
// Only non-sticky local queues are victims.
func (w *worker) steal(ctx *Context) (Task, bool) {
	n := len(w.locals)
	if n <= 1 {
		return nil, false
	}
	victim := ctx.LastStealFrom()
	for i := 0; i < n; i++ {
		victim = (victim + 1) % n
		if victim == w.index {
			continue
		}
		if t, ok := w.locals[victim].TryPop(); ok {
			ctx.SetLastStealFrom(victim)
			return t, true
		}
	}
	return nil, false
}

func (w *worker) execute(t Task, ctx *Context) {
	defer func() {
		if r := recover(); r != nil {
			log.WithWorkerIndex(w.index).Error().Any("panic", r).Msg("task execution panicked")
		}
	}()
	ctx.taskCount++
	w.stat.Count.Add(1)
	t.Run(ctx)
}
