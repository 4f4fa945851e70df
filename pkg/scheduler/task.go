package scheduler

import "time"

// Task is the unit of work the scheduler runs. Tasks are handed over by
// value through the queues; implementations must be safe to move between
// workers unless they declare themselves sticky.
type Task interface {
	// Sticky reports whether the task must run on the worker whose queue it
	// was placed on. Sticky tasks are never stolen.
	Sticky() bool

	// DelayedUntil returns the earliest moment the task may execute. The
	// zero time means the task is not delayed.
	DelayedUntil() time.Time

	// Run executes the task body on the worker described by ctx.
	Run(ctx *Context)
}

// ConditionalTask is a task guarded by a predicate. The watcher thread
// evaluates Check on every tick and executes the body once it holds.
type ConditionalTask interface {
	// Check reports whether the task is ready to execute.
	Check() bool

	// Run executes the task body on the watcher thread.
	Run()
}

// BasicTask adapts a plain function to the Task interface.
type BasicTask struct {
	sticky bool
	at     time.Time
	body   func(*Context)
}

// NewTask wraps body as a non-sticky, immediate task.
func NewTask(body func(*Context)) *BasicTask {
	return &BasicTask{body: body}
}

// NewStickyTask wraps body as a sticky task.
func NewStickyTask(body func(*Context)) *BasicTask {
	return &BasicTask{sticky: true, body: body}
}

// NewDelayedTask wraps body as a task that must not run before at.
func NewDelayedTask(at time.Time, body func(*Context)) *BasicTask {
	return &BasicTask{at: at, body: body}
}

func (t *BasicTask) Sticky() bool            { return t.sticky }
func (t *BasicTask) DelayedUntil() time.Time { return t.at }
func (t *BasicTask) Run(ctx *Context)        { t.body(ctx) }

// BasicConditionalTask adapts a predicate and a body to ConditionalTask.
type BasicConditionalTask struct {
	check func() bool
	body  func()
}

// NewConditionalTask wraps check and body as a conditional task.
func NewConditionalTask(check func() bool, body func()) *BasicConditionalTask {
	return &BasicConditionalTask{check: check, body: body}
}

func (t *BasicConditionalTask) Check() bool { return t.check() }
func (t *BasicConditionalTask) Run()        { t.body() }
