package scheduler

import (
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/framework"
)

// Component wires the scheduler into the framework lifecycle: the worker
// pool is sized from [sql] thread_pool_size during setup, started with the
// server, and joined on shutdown. Services obtain it through the resource
// repository to offload compute work from endpoint threads.
type Component struct {
	cfg    Config
	broker *events.Broker
	sched  *Scheduler
}

// NewComponent creates the scheduler component with overridable defaults.
// broker may be nil.
func NewComponent(cfg Config, broker *events.Broker) *Component {
	return &Component{cfg: cfg, broker: broker}
}

// ID implements framework.Resource.
func (c *Component) ID() uint32 {
	return framework.ResourceIDScheduler
}

// Label implements framework.Component.
func (c *Component) Label() string {
	return "task_scheduler"
}

// Setup sizes and builds the worker pool.
func (c *Component) Setup(env *framework.Environment) error {
	if sec := env.Config().Section("sql"); sec != nil {
		if n, ok := sec.GetInt("thread_pool_size"); ok && n > 0 {
			c.cfg.ThreadCount = n
		}
	}
	c.sched = New(c.cfg)
	return nil
}

// Start implements framework.Component.
func (c *Component) Start(*framework.Environment) error {
	c.sched.Start()
	if c.broker != nil {
		c.broker.Publish(events.NewEvent(events.EventSchedulerStarted, "task scheduler started"))
	}
	return nil
}

// Shutdown implements framework.Component.
func (c *Component) Shutdown(*framework.Environment) error {
	c.sched.Stop()
	if c.broker != nil {
		c.broker.Publish(events.NewEvent(events.EventSchedulerStopped, "task scheduler stopped"))
	}
	return nil
}

// Scheduler returns the underlying scheduler. It is nil before Setup.
func (c *Component) Scheduler() *Scheduler {
	return c.sched
}
