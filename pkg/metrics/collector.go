package metrics

import (
	"time"

	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/session"
)

// Collector periodically samples the scheduler and the session registry
// into the exported gauges.
type Collector struct {
	sched    *scheduler.Scheduler
	registry *session.Registry
	stopCh   chan struct{}

	lastExecuted uint64
	lastStolen   uint64
}

// NewCollector creates a new metrics collector. Either source may be nil.
func NewCollector(sched *scheduler.Scheduler, registry *session.Registry) *Collector {
	return &Collector{
		sched:    sched,
		registry: registry,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectSchedulerMetrics()
	c.collectRegistryMetrics()
}

func (c *Collector) collectSchedulerMetrics() {
	if c.sched == nil {
		return
	}
	var executed, stolen uint64
	for _, stat := range c.sched.Stats() {
		executed += stat.Count.Load()
		stolen += stat.Stolen.Load()
	}
	if executed >= c.lastExecuted {
		TasksExecuted.Add(float64(executed - c.lastExecuted))
		c.lastExecuted = executed
	}
	if stolen >= c.lastStolen {
		TasksStolen.Add(float64(stolen - c.lastStolen))
		c.lastStolen = stolen
	}
	SchedulerQueueDepth.Set(float64(c.sched.QueueDepth()))
}

func (c *Collector) collectRegistryMetrics() {
	if c.registry == nil {
		return
	}
	RegisteredSessions.Set(float64(len(c.registry.List())))
}
