package stream

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/endpoint"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/framework"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/session"
)

// Endpoint is the TCP endpoint component: one listener goroutine accepting
// connections and a worker per session. Connections beyond the configured
// thread budget are declined: the worker accepts the handshake solely to
// tell the client no sessions are available.
type Endpoint struct {
	port      int
	threads   uint32
	workerCfg endpoint.Config

	service  framework.Service
	registry *session.Registry
	dbInfo   *api.DatabaseInfo
	broker   *events.Broker

	listener net.Listener
	sessions atomic.Uint64
	active   atomic.Int64

	mu      sync.Mutex
	workers map[uint64]*endpoint.Worker
	wg      sync.WaitGroup
}

// NewEndpoint creates a stream endpoint. dbInfo and broker may be nil.
func NewEndpoint(dbInfo *api.DatabaseInfo, broker *events.Broker) *Endpoint {
	return &Endpoint{dbInfo: dbInfo, broker: broker, workers: make(map[uint64]*endpoint.Worker)}
}

// Label implements framework.Component.
func (e *Endpoint) Label() string {
	return "stream_endpoint"
}

// Setup reads the [stream_endpoint] section and resolves collaborators.
func (e *Endpoint) Setup(env *framework.Environment) error {
	sec := env.Config().Section("stream_endpoint")
	if sec == nil {
		return errors.New("cannot find stream_endpoint section in the configuration")
	}
	port, ok := sec.GetInt("port")
	if !ok {
		return errors.New("cannot find port at the stream_endpoint section")
	}
	threads, ok := sec.GetUint("threads")
	if !ok {
		return errors.New("cannot find threads at the stream_endpoint section")
	}
	e.port = port
	e.threads = uint32(threads)

	e.service = env.Services().Find(framework.ServiceIDRouting)
	if e.service == nil {
		return errors.New("routing service is not registered")
	}
	if bridge, ok := env.Resources().Find(framework.ResourceIDSession).(*session.Bridge); ok && bridge != nil {
		e.registry = bridge.Registry()
	}
	if e.dbInfo == nil {
		e.dbInfo = &api.DatabaseInfo{Name: "burrow", StartedAt: time.Now()}
	}
	return nil
}

// Start opens the listening socket and launches the accept loop.
func (e *Endpoint) Start(*framework.Environment) error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", e.port))
	if err != nil {
		return fmt.Errorf("stream endpoint listen: %w", err)
	}
	e.listener = l
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.accept()
	}()
	return nil
}

// Shutdown closes the listener and drains the workers.
func (e *Endpoint) Shutdown(*framework.Environment) error {
	if e.listener != nil {
		_ = e.listener.Close()
	}
	e.mu.Lock()
	workers := make([]*endpoint.Worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()
	for _, w := range workers {
		w.Terminate(session.ShutdownForceful)
	}
	for _, w := range workers {
		<-w.Done()
	}
	e.wg.Wait()
	return nil
}

// Addr returns the bound listener address, for tests using port 0.
func (e *Endpoint) Addr() net.Addr {
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

func (e *Endpoint) accept() {
	logger := log.WithComponent("stream_endpoint")
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			logger.Debug().Msg("listener closed")
			return
		}
		id := e.sessions.Add(1)
		decline := e.active.Load() >= int64(e.threads)
		cfg := e.workerCfg
		cfg.Decline = decline

		sock := NewSocket(conn)
		w := endpoint.NewWorker(
			id,
			api.ConnectionStream,
			sock.RemoteAddr(),
			sock,
			e.service,
			e.registry,
			e.dbInfo,
			cfg,
		)
		e.mu.Lock()
		e.workers[id] = w
		e.mu.Unlock()
		if decline {
			metrics.SessionsDeclined.WithLabelValues("stream").Inc()
			if e.broker != nil {
				e.broker.Publish(events.NewEvent(events.EventSessionDeclined, fmt.Sprintf("stream session %d declined", id)))
			}
		} else {
			e.active.Add(1)
			metrics.SessionsAccepted.WithLabelValues("stream").Inc()
			metrics.SessionsLive.WithLabelValues("stream").Inc()
			if e.broker != nil {
				e.broker.Publish(events.NewEvent(events.EventSessionAccepted, fmt.Sprintf("stream session %d accepted", id)))
			}
		}
		go func(id uint64, declined bool) {
			w.Run()
			e.mu.Lock()
			delete(e.workers, id)
			e.mu.Unlock()
			if !declined {
				e.active.Add(-1)
				metrics.SessionsLive.WithLabelValues("stream").Dec()
				if e.broker != nil {
					e.broker.Publish(events.NewEvent(events.EventSessionShutdown, fmt.Sprintf("stream session %d finished", id)))
				}
			}
		}(id, decline)
	}
}
