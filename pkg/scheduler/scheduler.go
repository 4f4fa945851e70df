package scheduler

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Config tunes the scheduler.
type Config struct {
	// ThreadCount is the number of workers (queues and goroutines).
	ThreadCount int

	// SpinBudget is how many empty scan rounds a worker spins through
	// before parking.
	SpinBudget int

	// ParkTimeout bounds how long a parked worker sleeps before rescanning
	// its steal victims.
	ParkTimeout time.Duration

	// WatcherInterval is the conditional watcher tick.
	WatcherInterval time.Duration
}

// DefaultConfig returns the tuning used when the configuration does not say
// otherwise.
func DefaultConfig() Config {
	return Config{
		ThreadCount:     5,
		SpinBudget:      64,
		ParkTimeout:     time.Millisecond,
		WatcherInterval: time.Millisecond,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.ThreadCount <= 0 {
		c.ThreadCount = d.ThreadCount
	}
	if c.SpinBudget <= 0 {
		c.SpinBudget = d.SpinBudget
	}
	if c.ParkTimeout <= 0 {
		c.ParkTimeout = d.ParkTimeout
	}
	if c.WatcherInterval <= 0 {
		c.WatcherInterval = d.WatcherInterval
	}
}

// Affinity is a caller handle binding schedule calls to a preferred worker.
// Handles are assigned round-robin; callers that need their tasks to land
// on one queue (sticky work) hold one for their lifetime.
type Affinity struct {
	index int
}

// Index returns the preferred worker index.
func (a Affinity) Index() int {
	return a.index
}

// Scheduler is a stealing-based multi-queue task scheduler. Each worker has
// a local, a sticky, and a delayed queue; a shared conditional queue is
// serviced by a single watcher goroutine.
type Scheduler struct {
	cfg Config

	queues  []*BasicQueue[Task]
	sticky  []*BasicQueue[Task]
	delayed []*BasicQueue[Task]
	workers []*worker
	stats   []*WorkerStat

	conditional *BasicQueue[ConditionalTask]
	watcher     *conditionalWorker

	initialMu sync.Mutex
	initial   [][]Task

	current  atomic.Uint64
	affinity atomic.Uint64
	started  atomic.Bool
	wg       sync.WaitGroup
}

// New creates a scheduler with cfg. Workers do not run until Start.
func New(cfg Config) *Scheduler {
	cfg.normalize()
	s := &Scheduler{cfg: cfg}
	n := cfg.ThreadCount
	s.queues = make([]*BasicQueue[Task], n)
	s.sticky = make([]*BasicQueue[Task], n)
	s.delayed = make([]*BasicQueue[Task], n)
	s.stats = make([]*WorkerStat, n)
	s.initial = make([][]Task, n)
	for i := 0; i < n; i++ {
		s.queues[i] = NewBasicQueue[Task]()
		s.sticky[i] = NewBasicQueue[Task]()
		s.delayed[i] = NewBasicQueue[Task]()
		s.stats[i] = &WorkerStat{}
	}
	s.workers = make([]*worker, n)
	for i := 0; i < n; i++ {
		s.workers[i] = newWorker(i, &s.cfg, s.queues[i], s.sticky[i], s.delayed[i], s.queues, s.stats[i])
	}
	s.conditional = NewBasicQueue[ConditionalTask]()
	s.watcher = newConditionalWorker(&s.cfg, s.conditional)
	return s
}

// Size returns the number of workers.
func (s *Scheduler) Size() int {
	return s.cfg.ThreadCount
}

// NewAffinity assigns a preferred worker round-robin. Callers keep the
// handle and pass it to ScheduleWith so related tasks land on one queue.
func (s *Scheduler) NewAffinity() Affinity {
	return Affinity{index: int(s.affinity.Add(1)-1) % s.cfg.ThreadCount}
}

// Schedule puts t on the next worker's queue, round-robin.
func (s *Scheduler) Schedule(t Task) {
	s.ScheduleAt(s.nextWorker(), t)
}

// ScheduleWith puts t on the queue of the worker bound to a.
func (s *Scheduler) ScheduleWith(a Affinity, t Task) {
	s.ScheduleAt(a.index, t)
}

// ScheduleAt puts t on worker index's queue, respecting the task class:
// delayed tasks (possibly sticky as well) go to the delayed queue, sticky
// tasks to the sticky queue, the rest to the local queue. Before Start the
// task is buffered and submitted when the scheduler starts.
func (s *Scheduler) ScheduleAt(index int, t Task) {
	if index < 0 || index >= s.cfg.ThreadCount {
		panic(fmt.Sprintf("worker index %d out of range [0,%d)", index, s.cfg.ThreadCount))
	}
	if !s.started.Load() {
		s.initialMu.Lock()
		if !s.started.Load() {
			s.initial[index] = append(s.initial[index], t)
			s.initialMu.Unlock()
			return
		}
		s.initialMu.Unlock()
	}
	s.put(index, t)
}

// ScheduleConditional puts t on the shared conditional queue.
func (s *Scheduler) ScheduleConditional(t ConditionalTask) {
	s.conditional.Push(t)
}

func (s *Scheduler) put(index int, t Task) {
	switch {
	case !t.DelayedUntil().IsZero():
		s.delayed[index].Push(t)
	case t.Sticky():
		s.sticky[index].Push(t)
	default:
		s.queues[index].Push(t)
	}
	s.workers[index].notify()
}

// Start activates the workers and the conditional watcher, then flushes the
// tasks buffered before start. The short sleep after activation mirrors the
// warm-up the underlying queues need before heavy concurrent use.
func (s *Scheduler) Start() {
	for i, w := range s.workers {
		s.wg.Add(1)
		go func(index int, w *worker) {
			defer s.wg.Done()
			w.process(NewContext(index))
		}(i, w)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watcher.run()
	}()

	time.Sleep(time.Millisecond)

	s.initialMu.Lock()
	s.started.Store(true)
	pending := s.initial
	s.initial = make([][]Task, s.cfg.ThreadCount)
	s.initialMu.Unlock()
	for i, ts := range pending {
		for _, t := range ts {
			s.put(i, t)
		}
	}
}

// Stop deactivates every queue and joins every worker.
func (s *Scheduler) Stop() {
	for _, q := range s.queues {
		q.Deactivate()
	}
	for _, q := range s.sticky {
		q.Deactivate()
	}
	for _, q := range s.delayed {
		q.Deactivate()
	}
	s.conditional.Deactivate()
	s.watcher.shutdown()
	for _, w := range s.workers {
		w.notify()
	}
	s.wg.Wait()
	s.started.Store(false)
}

// Stats returns the per-worker statistics records.
func (s *Scheduler) Stats() []*WorkerStat {
	return s.stats
}

// QueueDepth returns the total number of queued tasks across all classes.
func (s *Scheduler) QueueDepth() int {
	total := s.conditional.Size()
	for i := range s.queues {
		total += s.queues[i].Size() + s.sticky[i].Size() + s.delayed[i].Size()
	}
	return total
}

// PrintDiagnostic emits worker counts and per-queue task snapshots. Tasks
// are popped into a temporary and pushed back; the queues offer no peek.
func (s *Scheduler) PrintDiagnostic(w io.Writer) {
	if !s.started.Load() {
		return
	}
	fmt.Fprintf(w, "worker_count: %d\n", len(s.workers))
	fmt.Fprintf(w, "workers:\n")
	for i := range s.workers {
		fmt.Fprintf(w, "  - worker_index: %d\n", i)
		fmt.Fprintf(w, "    executed: %d stolen: %d sleeps: %d\n",
			s.stats[i].Count.Load(), s.stats[i].Stolen.Load(), s.stats[i].Sleeps.Load())
		fmt.Fprintf(w, "    queues:\n")
		fmt.Fprintf(w, "      local:\n")
		printQueueDiagnostic(s.queues[i], w)
		fmt.Fprintf(w, "      sticky:\n")
		printQueueDiagnostic(s.sticky[i], w)
		fmt.Fprintf(w, "      delayed:\n")
		printQueueDiagnostic(s.delayed[i], w)
	}
}

func printQueueDiagnostic(q *BasicQueue[Task], w io.Writer) {
	fmt.Fprintf(w, "        task_count: %d\n", q.Size())
	if q.Empty() {
		return
	}
	fmt.Fprintf(w, "        tasks:\n")
	var backup []Task
	for {
		t, ok := q.TryPop()
		if !ok {
			break
		}
		fmt.Fprintf(w, "          - %T sticky=%v\n", t, t.Sticky())
		backup = append(backup, t)
	}
	for _, t := range backup {
		q.Push(t)
	}
}

func (s *Scheduler) nextWorker() int {
	return int(s.current.Add(1)-1) % s.cfg.ThreadCount
}
