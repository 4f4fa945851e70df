package endpoint

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/diag"
	"github.com/cuemby/burrow/pkg/framework"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/session"
)

// AwaitKind classifies what a wire Await returned.
type AwaitKind int

const (
	AwaitPayload AwaitKind = iota
	AwaitTimeout
	AwaitTermination
	AwaitError
)

// Event is one observation off the session wire.
type Event struct {
	Kind    AwaitKind
	Slot    uint16
	Payload []byte
}

// Wire is the transport face the worker drives. Each transport (ipc,
// stream) supplies its own implementation.
type Wire interface {
	// Await blocks up to timeout for the next event.
	Await(timeout time.Duration) Event

	// NewResponse creates the transport response for slot.
	NewResponse(slot uint16) Response

	// SendByeOk acknowledges a client termination request.
	SendByeOk() error

	// ChangeSlotSize applies the result-set budget from the handshake.
	ChangeSlotSize(n uint64)

	// HasIncompleteResultSet reports whether result-set buffers are still
	// retained for the client. Stream and loopback wires always report
	// false.
	HasIncompleteResultSet() bool

	// Close tears the wire down.
	Close()
}

// Response is the transport response the worker tracks per slot.
type Response interface {
	api.Response

	// Completed reports whether the response was fully sent: body set and
	// every acquired channel released.
	Completed() bool
}

// Config tunes a worker.
type Config struct {
	// PollInterval is the Await timeout driving the sweep tick.
	PollInterval time.Duration

	// HandshakeTimeout bounds how long the worker waits for the first
	// frame. Dead tickets whose client died before handshaking are
	// collected through this.
	HandshakeTimeout time.Duration

	// Decline makes the worker accept the handshake solely to tell the
	// client no sessions are available.
	Decline bool

	// VariableDeclarations seeds the session variable set.
	VariableDeclarations []session.VariableDeclaration

	// Expiration is the session lifetime; zero means no expiration.
	Expiration time.Duration
}

func (c *Config) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = 20 * time.Millisecond
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// Worker owns one session: it drives the handshake, the request/response
// turns, and the shutdown of a single client conversation. The listener
// keeps only the worker handle and its completion channel; the worker never
// refers back to the listener.
type Worker struct {
	sessionID uint64
	wire      Wire
	service   framework.Service
	registry  *session.Registry
	dbInfo    *api.DatabaseInfo
	cfg       Config

	ctx    atomic.Pointer[session.Context]
	logger zerolog.Logger

	reqres             map[uint16]Response
	shutdownFromClient bool
	expirationNotified bool

	done chan struct{}
}

// NewWorker creates a worker for an accepted connection. kind and connInfo
// describe the transport; service is the routing service every request goes
// through.
func NewWorker(
	sessionID uint64,
	kind api.ConnectionKind,
	connInfo string,
	wire Wire,
	service framework.Service,
	registry *session.Registry,
	dbInfo *api.DatabaseInfo,
	cfg Config,
) *Worker {
	cfg.normalize()
	ctx := session.NewContext(api.SessionInfo{
		ID:             sessionID,
		ConnectionKind: kind,
		ConnectionInfo: connInfo,
		StartedAt:      time.Now(),
	}, cfg.VariableDeclarations)
	if cfg.Expiration > 0 {
		ctx.UpdateExpiration(cfg.Expiration)
	}
	w := &Worker{
		sessionID: sessionID,
		wire:      wire,
		service:   service,
		registry:  registry,
		dbInfo:    dbInfo,
		cfg:       cfg,
		logger:    log.WithSessionID(sessionID),
		reqres:    make(map[uint16]Response),
		done:      make(chan struct{}),
	}
	w.ctx.Store(ctx)
	return w
}

// SessionID returns the session the worker owns.
func (w *Worker) SessionID() uint64 {
	return w.sessionID
}

// Context returns the session context, or nil once the worker released it.
// The worker is the owner; callers must not retain strong references beyond
// the worker's lifetime.
func (w *Worker) Context() *session.Context {
	return w.ctx.Load()
}

func (w *Worker) context() *session.Context {
	return w.ctx.Load()
}

// Done is closed when the worker has finished cleanup.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Terminate records a shutdown request for the session. The worker notices
// on its next sweep tick. A worker that already finished reports false.
func (w *Worker) Terminate(t session.ShutdownRequestType) bool {
	ctx := w.ctx.Load()
	if ctx == nil {
		return false
	}
	return ctx.RequestShutdown(t)
}

// Run drives the session to completion. It recovers from internal panics
// at this outermost boundary so one broken session cannot take the server
// down.
func (w *Worker) Run() {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Any("panic", r).Msg("endpoint worker panicked")
			w.wire.Close()
		}
		w.ctx.Store(nil)
	}()
	if !w.awaitHandshake() {
		return
	}
	w.logger.Debug().Msg("session started")
	w.active()
	w.logger.Debug().Msg("session finished")
}

// awaitHandshake runs the AwaitingHandshake state. It reports whether the
// session reached Active.
func (w *Worker) awaitHandshake() bool {
	deadline := time.Now().Add(w.cfg.HandshakeTimeout)
	for {
		ev := w.wire.Await(w.cfg.PollInterval)
		switch ev.Kind {
		case AwaitPayload:
			res := w.wire.NewResponse(ev.Slot)
			if w.cfg.Decline {
				w.notifyDecline(res)
				w.drainAfterFailure("receive a request in spite of a decline case")
				w.wire.Close()
				return false
			}
			if !w.handshake(ev, res) {
				w.drainAfterFailure("illegal termination of the session due to handshake error")
				w.wire.Close()
				return false
			}
			return true
		case AwaitTimeout:
			if time.Now().After(deadline) {
				w.logger.Info().Msg("handshake timeout, collecting dead session")
				w.wire.Close()
				return false
			}
		default:
			w.wire.Close()
			return false
		}
	}
}

// handshake parses the first frame and answers it. On success the wire's
// result-set slot budget is set from the client's declared maximum.
func (w *Worker) handshake(ev Event, res Response) bool {
	_, body, err := DecodeRequestPayload(ev.Payload)
	if err != nil {
		w.logger.Info().Err(err).Msg("handshake frame decode error")
		return false
	}
	h, err := ParseHandshake(body)
	if err != nil {
		w.logger.Info().Err(err).Msg("handshake error")
		return false
	}
	w.context().SetClientInfo(h.Label, h.ApplicationName, h.UserName)
	w.wire.ChangeSlotSize(h.MaximumConcurrentResultSets)
	if w.registry != nil && !w.registry.Register(w.context()) {
		w.logger.Error().Msg("session id collision on register")
		return false
	}

	res.SetSessionID(w.sessionID)
	res.SetCode(api.Success)
	reply, _ := json.Marshal(HandshakeOk{SessionID: w.sessionID})
	if err := res.Body(reply); err != nil {
		w.logger.Info().Err(err).Msg("handshake reply failed")
		return false
	}
	return true
}

// notifyDecline tells the client no sessions are available.
func (w *Worker) notifyDecline(res Response) {
	res.SetSessionID(w.sessionID)
	res.Error(diag.NewRecord(diag.CodeResourceLimitReached, "the number of sessions exceeded the maximum limit"))
	w.logger.Info().Msg("session declined, maximum number of sessions reached")
}

// drainAfterFailure reads one more frame before closing. A payload here
// should not happen; it is logged and the session closes regardless.
func (w *Worker) drainAfterFailure(msg string) {
	if ev := w.wire.Await(w.cfg.PollInterval); ev.Kind == AwaitPayload {
		w.logger.Info().Msg("illegal procedure (" + msg + ")")
	}
}

// active runs the Active state until the session closes.
func (w *Worker) active() {
	for {
		ev := w.wire.Await(w.cfg.PollInterval)
		switch ev.Kind {
		case AwaitPayload:
			if !w.handlePayload(ev) {
				w.forcefulCleanup()
				w.wire.Close()
				return
			}
			if w.sweepAndCheckShutdown() {
				w.wire.Close()
				return
			}
		case AwaitTimeout:
			if w.sweepAndCheckShutdown() {
				w.wire.Close()
				return
			}
			if w.context().ExpirationOver(time.Now()) && !w.expirationNotified {
				w.context().RequestShutdown(session.ShutdownForceful)
				w.expirationNotified = true
				w.logger.Info().Msg("session expiration time is over, requesting forceful shutdown")
			}
		case AwaitTermination:
			if w.shutdownFromClient {
				_ = w.wire.SendByeOk()
				w.forcefulCleanup()
				w.wire.Close()
				return
			}
			w.shutdownFromClient = true
			w.context().RequestShutdown(session.ShutdownForceful)
			_ = w.wire.SendByeOk()
		default:
			w.forcefulCleanup()
			w.wire.Close()
			return
		}
	}
}

// handlePayload dispatches one request frame. It reports whether the
// session should stay alive.
func (w *Worker) handlePayload(ev Event) bool {
	serviceID, body, err := DecodeRequestPayload(ev.Payload)
	if err != nil {
		w.logger.Info().Err(err).Msg("broken request frame")
		return false
	}
	switch serviceID {
	case framework.ServiceIDEndpointBroker:
		return w.endpointService(ev.Slot, body)
	default:
		res := w.wire.NewResponse(ev.Slot)
		if serviceID != framework.ServiceIDRouting && w.context().ShutdownRequest() != session.ShutdownNone {
			res.SetSessionID(w.sessionID)
			res.Error(diag.NewRecord(diag.CodeSessionClosed, "this session is already shutdown"))
			return true
		}
		w.reqres[ev.Slot] = res
		req := newRequest(serviceID, body, w.dbInfo, w.context())
		if err := w.service.Handle(req, res); err != nil {
			w.logger.Info().Err(err).Msg("terminate worker because service returns an error")
			return false
		}
		return true
	}
}

// endpointService answers requests addressed to the endpoint broker:
// cooperative cancel and expiration refresh.
func (w *Worker) endpointService(slot uint16, body []byte) bool {
	res := w.wire.NewResponse(slot)
	res.SetSessionID(w.sessionID)
	var cmd BrokerCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		w.logger.Info().Err(err).Msg("broken endpoint broker command")
		res.Error(diag.NewRecord(diag.CodeUnknown, "request parse error"))
		return true
	}
	switch cmd.Op {
	case "cancel":
		if target, ok := w.reqres[cmd.Slot]; ok {
			target.Error(diag.NewRecord(diag.CodeOperationCancelled, "the operation was cancelled"))
			delete(w.reqres, cmd.Slot)
		}
		res.SetCode(api.Success)
		_ = res.Body(nil)
	case "update_expiration_time":
		w.context().UpdateExpiration(time.Duration(cmd.ExpirationSeconds) * time.Second)
		res.SetCode(api.Success)
		_ = res.Body(nil)
	default:
		res.Error(diag.NewRecord(diag.CodeUnknown, "unknown endpoint broker op"))
	}
	return true
}

// careReqreses sweeps completed request/response pairs out of the tracking
// map.
func (w *Worker) careReqreses() {
	for slot, res := range w.reqres {
		if res.Completed() {
			delete(w.reqres, slot)
		}
	}
}

// isCompleted reports whether no request is outstanding.
func (w *Worker) isCompleted() bool {
	return len(w.reqres) == 0
}

// sweepAndCheckShutdown performs the periodic sweep and reports whether the
// session finished shutting down.
func (w *Worker) sweepAndCheckShutdown() bool {
	w.careReqreses()
	switch w.context().ShutdownRequest() {
	case session.ShutdownNone:
		return false
	case session.ShutdownForceful:
		w.forcefulCleanup()
		return true
	default:
		return w.isCompleted() && !w.wire.HasIncompleteResultSet()
	}
}

// forcefulCleanup answers SESSION_CLOSED on every outstanding slot.
func (w *Worker) forcefulCleanup() {
	for slot, res := range w.reqres {
		res.Error(diag.NewRecord(diag.CodeSessionClosed, "this session is already shutdown"))
		delete(w.reqres, slot)
	}
}
