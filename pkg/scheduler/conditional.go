package scheduler

import (
	"time"

	"github.com/cuemby/burrow/pkg/log"
)

// conditionalWorker is the watcher logic servicing the shared conditional
// queue. On each tick it drains the queue, executes every task whose check
// holds, and pushes the negatives back. The pop-test-pushback shape is
// deliberate; the queue offers no in-place inspection.
type conditionalWorker struct {
	cfg  *Config
	q    *BasicQueue[ConditionalTask]
	stop chan struct{}
}

func newConditionalWorker(cfg *Config, q *BasicQueue[ConditionalTask]) *conditionalWorker {
	return &conditionalWorker{cfg: cfg, q: q, stop: make(chan struct{})}
}

func (w *conditionalWorker) run() {
	negatives := make([]ConditionalTask, 0)
	for w.q.Active() {
		negatives = negatives[:0]
		for {
			t, ok := w.q.TryPop()
			if !ok {
				break
			}
			if w.safeCheck(t) {
				w.safeRun(t)
				continue
			}
			negatives = append(negatives, t)
		}
		for _, t := range negatives {
			w.q.Push(t)
		}
		select {
		case <-w.stop:
			return
		case <-time.After(w.cfg.WatcherInterval):
		}
	}
}

func (w *conditionalWorker) shutdown() {
	close(w.stop)
}

// safeCheck and safeRun recover from panics so a single buggy watcher task
// cannot take the server down.
func (w *conditionalWorker) safeCheck(t ConditionalTask) bool {
	defer func() {
		if r := recover(); r != nil {
			l := log.WithComponent("task_scheduler")
			l.Error().Any("panic", r).Msg("conditional task check panicked")
		}
	}()
	return t.Check()
}

func (w *conditionalWorker) safeRun(t ConditionalTask) {
	defer func() {
		if r := recover(); r != nil {
			l := log.WithComponent("task_scheduler")
			l.Error().Any("panic", r).Msg("conditional task body panicked")
		}
	}()
	t.Run()
}
