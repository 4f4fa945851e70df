package ipc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/endpoint"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/framework"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/session"
)

// serverWireAdapter exposes a ServerWire through the endpoint.Wire face.
type serverWireAdapter struct {
	wire *ServerWire
}

func (a *serverWireAdapter) Await(timeout time.Duration) endpoint.Event {
	ev, slot, payload := a.wire.Await(timeout)
	switch ev {
	case AwaitPayload:
		return endpoint.Event{Kind: endpoint.AwaitPayload, Slot: slot, Payload: payload}
	case AwaitTimeout:
		return endpoint.Event{Kind: endpoint.AwaitTimeout}
	case AwaitTermination:
		return endpoint.Event{Kind: endpoint.AwaitTermination}
	}
	return endpoint.Event{Kind: endpoint.AwaitError}
}

func (a *serverWireAdapter) NewResponse(slot uint16) endpoint.Response {
	return newResponse(a.wire, slot)
}

func (a *serverWireAdapter) SendByeOk() error {
	return a.wire.SendByeOk()
}

func (a *serverWireAdapter) ChangeSlotSize(n uint64) {
	a.wire.ChangeSlotSize(n)
}

// HasIncompleteResultSet consults the shared-memory garbage collector: the
// session holds buffers until the client has read every chunk.
func (a *serverWireAdapter) HasIncompleteResultSet() bool {
	return !a.wire.GC().Dump()
}

func (a *serverWireAdapter) Close() {
	a.wire.Close()
}

// Endpoint is the IPC endpoint component: it owns the connection container
// and one listener goroutine that accepts admission requests and spawns a
// worker per session.
type Endpoint struct {
	database   string
	threads    uint32
	adminSlots uint32
	workerCfg  endpoint.Config

	container *Container
	service   framework.Service
	registry  *session.Registry
	dbInfo    *api.DatabaseInfo
	broker    *events.Broker

	mu       sync.Mutex
	workers  map[uint64]*workerEntry
	workerWG sync.WaitGroup
	listenWG sync.WaitGroup
}

type workerEntry struct {
	worker *endpoint.Worker
	slot   uint32
}

// NewEndpoint creates an IPC endpoint. dbInfo and broker may be nil for
// tests; configuration supplies the rest during Setup.
func NewEndpoint(dbInfo *api.DatabaseInfo, broker *events.Broker) *Endpoint {
	return &Endpoint{dbInfo: dbInfo, broker: broker, workers: make(map[uint64]*workerEntry)}
}

// Label implements framework.Component.
func (e *Endpoint) Label() string {
	return "ipc_endpoint"
}

// Setup reads the [ipc_endpoint] section, resolves collaborators, and
// creates the shared-memory connection container.
func (e *Endpoint) Setup(env *framework.Environment) error {
	sec := env.Config().Section("ipc_endpoint")
	if sec == nil {
		return errors.New("cannot find ipc_endpoint section in the configuration")
	}
	name, ok := sec.GetString("database_name")
	if !ok || name == "" {
		return errors.New("cannot find database_name at the ipc_endpoint section")
	}
	threads, ok := sec.GetUint("threads")
	if !ok {
		return errors.New("cannot find threads at the ipc_endpoint section")
	}
	admin, _ := sec.GetUint("admin_sessions")
	e.database = name
	e.threads = uint32(threads)
	e.adminSlots = uint32(admin)

	e.service = env.Services().Find(framework.ServiceIDRouting)
	if e.service == nil {
		return errors.New("routing service is not registered")
	}
	if bridge, ok := env.Resources().Find(framework.ResourceIDSession).(*session.Bridge); ok && bridge != nil {
		e.registry = bridge.Registry()
	}
	if e.dbInfo == nil {
		e.dbInfo = &api.DatabaseInfo{Name: name, StartedAt: time.Now()}
	}

	container, err := NewContainer(name, e.threads, e.adminSlots)
	if err != nil {
		return err
	}
	e.container = container
	return nil
}

// Start launches the listener goroutine.
func (e *Endpoint) Start(*framework.Environment) error {
	e.listenWG.Add(1)
	go func() {
		defer e.listenWG.Done()
		e.listen()
	}()
	return nil
}

// Shutdown requests container termination, drains the workers, and unlinks
// the shared memory once the listener confirmed.
func (e *Endpoint) Shutdown(*framework.Environment) error {
	if e.container == nil {
		return nil
	}
	e.container.RequestTerminate()
	e.listenWG.Wait()
	e.container.Close()
	return nil
}

// Container exposes the connection container for tests.
func (e *Endpoint) Container() *Container {
	return e.container
}

func (e *Endpoint) listen() {
	logger := log.WithComponent("ipc_endpoint")
	for {
		id, err := e.container.Listen()
		if err != nil {
			logger.Debug().Msg("received terminate request")
			e.drainWorkers()
			e.container.ConfirmTerminated()
			return
		}
		slot := e.container.Slot()
		name := SessionWireName(e.database, id)
		wire, err := CreateServerWire(name)
		if err != nil {
			logger.Error().Err(err).Str("wire", name).Msg("cannot create session wire")
			e.container.Reject(slot)
			metrics.SessionsDeclined.WithLabelValues("ipc").Inc()
			if e.broker != nil {
				e.broker.Publish(events.NewEvent(events.EventSessionRejected, fmt.Sprintf("ipc session %d rejected", id)))
			}
			continue
		}
		logger.Debug().Uint64("session_id", id).Str("wire", name).Msg("connect request accepted")
		e.container.Accept(slot, id)

		w := endpoint.NewWorker(
			id,
			api.ConnectionIPC,
			name,
			&serverWireAdapter{wire: wire},
			e.service,
			e.registry,
			e.dbInfo,
			e.workerCfg,
		)
		e.mu.Lock()
		e.workers[id] = &workerEntry{worker: w, slot: slot}
		e.mu.Unlock()
		metrics.SessionsAccepted.WithLabelValues("ipc").Inc()
		metrics.SessionsLive.WithLabelValues("ipc").Inc()
		metrics.ConnectionSlotsInUse.WithLabelValues(e.slotClass(slot)).Inc()
		if e.broker != nil {
			e.broker.Publish(events.NewEvent(events.EventSessionAccepted, fmt.Sprintf("ipc session %d accepted", id)))
		}
		e.workerWG.Add(1)
		go func(id uint64, slot uint32) {
			defer e.workerWG.Done()
			w.Run()
			e.container.Release(slot)
			metrics.ConnectionSlotsInUse.WithLabelValues(e.slotClass(slot)).Dec()
			e.mu.Lock()
			delete(e.workers, id)
			e.mu.Unlock()
			metrics.SessionsLive.WithLabelValues("ipc").Dec()
			if e.broker != nil {
				e.broker.Publish(events.NewEvent(events.EventSessionShutdown, fmt.Sprintf("ipc session %d finished", id)))
			}
		}(id, slot)
	}
}

func (e *Endpoint) slotClass(slot uint32) string {
	if e.container.IsAdminSlot(slot) {
		return "admin"
	}
	return "normal"
}

// drainWorkers asks every live worker to shut down forcefully and waits
// until every worker goroutine has released its slot.
func (e *Endpoint) drainWorkers() {
	e.mu.Lock()
	entries := make([]*workerEntry, 0, len(e.workers))
	for _, entry := range e.workers {
		entries = append(entries, entry)
	}
	e.mu.Unlock()
	for _, entry := range entries {
		entry.worker.Terminate(session.ShutdownForceful)
	}
	e.workerWG.Wait()
}
