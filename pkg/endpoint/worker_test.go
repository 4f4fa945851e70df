package endpoint

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/diag"
	"github.com/cuemby/burrow/pkg/framework"
	"github.com/cuemby/burrow/pkg/session"
)

// fakeWire scripts events for the worker and records everything it sends
// back.
type fakeWire struct {
	events chan Event

	mu         sync.Mutex
	responses  []*fakeResponse
	byeOkSent  int
	closed     bool
	slotSize   uint64
	incomplete atomic.Bool
}

func newFakeWire() *fakeWire {
	return &fakeWire{events: make(chan Event, 16)}
}

func (w *fakeWire) push(ev Event) { w.events <- ev }

func (w *fakeWire) pushPayload(slot uint16, serviceID uint32, body []byte) {
	w.push(Event{Kind: AwaitPayload, Slot: slot, Payload: EncodeRequestPayload(serviceID, body)})
}

func (w *fakeWire) Await(timeout time.Duration) Event {
	select {
	case ev := <-w.events:
		return ev
	case <-time.After(timeout):
		return Event{Kind: AwaitTimeout}
	}
}

func (w *fakeWire) NewResponse(slot uint16) Response {
	w.mu.Lock()
	defer w.mu.Unlock()
	res := &fakeResponse{slot: slot}
	w.responses = append(w.responses, res)
	return res
}

func (w *fakeWire) SendByeOk() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.byeOkSent++
	return nil
}

func (w *fakeWire) ChangeSlotSize(n uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.slotSize = n
}

func (w *fakeWire) HasIncompleteResultSet() bool {
	return w.incomplete.Load()
}

func (w *fakeWire) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func (w *fakeWire) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWire) responseAt(i int) *fakeResponse {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i >= len(w.responses) {
		return nil
	}
	return w.responses[i]
}

func (w *fakeWire) responseCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.responses)
}

// fakeResponse records what the worker or a service answered on one slot.
type fakeResponse struct {
	slot uint16

	mu         sync.Mutex
	sessionID  uint64
	code       api.ResponseCode
	body       []byte
	bodySet    bool
	diagnostic *diag.Record
}

func (r *fakeResponse) SetSessionID(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

func (r *fakeResponse) SetCode(code api.ResponseCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
}

func (r *fakeResponse) BodyHead([]byte) error { return nil }

func (r *fakeResponse) Body(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = append([]byte(nil), data...)
	r.bodySet = true
	return nil
}

func (r *fakeResponse) Error(rec diag.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostic = &rec
	r.code = api.ApplicationError
	r.bodySet = true
}

func (r *fakeResponse) AcquireChannel(string) (api.DataChannel, error) { return nil, nil }
func (r *fakeResponse) ReleaseChannel(api.DataChannel) error           { return nil }

func (r *fakeResponse) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodySet
}

func (r *fakeResponse) getSessionID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *fakeResponse) getDiag() *diag.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.diagnostic
}

// echoService answers inline with the request payload.
type echoService struct{}

func (echoService) ID() uint32                            { return framework.ServiceIDEcho }
func (echoService) Label() string                         { return "echo" }
func (echoService) Setup(*framework.Environment) error    { return nil }
func (echoService) Start(*framework.Environment) error    { return nil }
func (echoService) Shutdown(*framework.Environment) error { return nil }
func (echoService) Handle(req api.Request, res api.Response) error {
	res.SetSessionID(req.SessionID())
	res.SetCode(api.Success)
	return res.Body(req.Payload())
}

// holdService never completes its responses until released.
type holdService struct{}

func (holdService) ID() uint32                            { return framework.ServiceIDEcho }
func (holdService) Label() string                         { return "hold" }
func (holdService) Setup(*framework.Environment) error    { return nil }
func (holdService) Start(*framework.Environment) error    { return nil }
func (holdService) Shutdown(*framework.Environment) error { return nil }
func (holdService) Handle(req api.Request, res api.Response) error {
	res.SetSessionID(req.SessionID())
	return nil
}

func handshakeBody(t *testing.T, maxResultSets uint64) []byte {
	t.Helper()
	body, err := json.Marshal(Handshake{
		Label:                       "label_for_test",
		ApplicationName:             "application_for_test",
		UserName:                    "user_for_test",
		MaximumConcurrentResultSets: maxResultSets,
	})
	require.NoError(t, err)
	return body
}

func testConfig() Config {
	return Config{PollInterval: 5 * time.Millisecond, HandshakeTimeout: time.Second}
}

func startWorker(t *testing.T, wire *fakeWire, svc framework.Service, registry *session.Registry, cfg Config) *Worker {
	t.Helper()
	w := NewWorker(1, api.ConnectionStream, "test", wire, svc, registry, &api.DatabaseInfo{Name: "test"}, cfg)
	go w.Run()
	return w
}

func waitDone(t *testing.T, w *Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
	}
}

func TestHandshakeThenEcho(t *testing.T) {
	wire := newFakeWire()
	registry := session.NewRegistry()
	w := startWorker(t, wire, echoService{}, registry, testConfig())

	wire.pushPayload(0, 0, handshakeBody(t, 7))

	require.Eventually(t, func() bool { return wire.responseCount() == 1 }, time.Second, time.Millisecond)
	hs := wire.responseAt(0)
	require.Eventually(t, hs.Completed, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), hs.getSessionID())
	wire.mu.Lock()
	slotSize := wire.slotSize
	wire.mu.Unlock()
	assert.Equal(t, uint64(7), slotSize)

	// registered after handshake, carrying the declared identity
	list := registry.List()
	require.Len(t, list, 1)
	assert.Equal(t, "label_for_test", list[0].Info().Label)

	wire.pushPayload(1, framework.ServiceIDEcho, []byte("hello"))
	require.Eventually(t, func() bool { return wire.responseCount() == 2 }, time.Second, time.Millisecond)
	echoRes := wire.responseAt(1)
	require.Eventually(t, echoRes.Completed, time.Second, time.Millisecond)

	wire.push(Event{Kind: AwaitTermination})
	waitDone(t, w)
	assert.True(t, wire.isClosed())
}

func TestDeclinePath(t *testing.T) {
	wire := newFakeWire()
	cfg := testConfig()
	cfg.Decline = true
	w := startWorker(t, wire, echoService{}, nil, cfg)

	wire.pushPayload(0, 0, handshakeBody(t, 1))
	waitDone(t, w)

	require.Equal(t, 1, wire.responseCount())
	rec := wire.responseAt(0).getDiag()
	require.NotNil(t, rec)
	assert.Equal(t, diag.CodeResourceLimitReached, rec.Code)
	assert.True(t, wire.isClosed())
}

func TestHandshakeFailureClosesSession(t *testing.T) {
	wire := newFakeWire()
	w := startWorker(t, wire, echoService{}, nil, testConfig())

	wire.pushPayload(0, 0, []byte("not a handshake"))
	waitDone(t, w)
	assert.True(t, wire.isClosed())
}

func TestHandshakeTimeoutCollectsDeadTicket(t *testing.T) {
	wire := newFakeWire()
	cfg := testConfig()
	cfg.HandshakeTimeout = 30 * time.Millisecond
	w := startWorker(t, wire, echoService{}, nil, cfg)

	// the client claimed a slot and died; no frame ever arrives
	waitDone(t, w)
	assert.True(t, wire.isClosed())
}

func TestRequestAfterShutdownGetsSessionClosed(t *testing.T) {
	wire := newFakeWire()
	w := startWorker(t, wire, holdService{}, nil, testConfig())

	wire.pushPayload(0, 0, handshakeBody(t, 1))
	require.Eventually(t, func() bool { return wire.responseCount() == 1 }, time.Second, time.Millisecond)

	// a held request keeps the session from completing a graceful shutdown
	wire.pushPayload(1, framework.ServiceIDEcho, []byte("held"))
	require.Eventually(t, func() bool { return wire.responseCount() == 2 }, time.Second, time.Millisecond)

	require.True(t, w.Terminate(session.ShutdownGraceful))

	wire.pushPayload(2, framework.ServiceIDEcho, []byte("rejected"))
	require.Eventually(t, func() bool { return wire.responseCount() == 3 }, time.Second, time.Millisecond)
	rec := wire.responseAt(2).getDiag()
	require.NotNil(t, rec)
	assert.Equal(t, diag.CodeSessionClosed, rec.Code)

	// completing the held request lets the graceful shutdown finish
	wire.responseAt(1).Error(diag.NewRecord(diag.CodeOperationCancelled, "give up"))
	waitDone(t, w)
	assert.True(t, wire.isClosed())
}

func TestGracefulWaitsForIncompleteResultSet(t *testing.T) {
	wire := newFakeWire()
	wire.incomplete.Store(true)
	w := startWorker(t, wire, echoService{}, nil, testConfig())

	wire.pushPayload(0, 0, handshakeBody(t, 1))
	require.Eventually(t, func() bool { return wire.responseCount() == 1 }, time.Second, time.Millisecond)

	require.True(t, w.Terminate(session.ShutdownGraceful))

	// the garbage collector still holds chunks; shutdown must not complete
	time.Sleep(50 * time.Millisecond)
	select {
	case <-w.Done():
		t.Fatal("shutdown completed with an incomplete result set")
	default:
	}

	// client drained the result set; the GC reports empty and shutdown runs
	wire.incomplete.Store(false)
	waitDone(t, w)
	assert.True(t, wire.isClosed())
}

func TestExpirationRequestsForcefulShutdownOnce(t *testing.T) {
	wire := newFakeWire()
	cfg := testConfig()
	cfg.Expiration = 20 * time.Millisecond
	w := startWorker(t, wire, echoService{}, nil, cfg)

	ctx := w.Context()
	require.NotNil(t, ctx)
	wire.pushPayload(0, 0, handshakeBody(t, 1))
	waitDone(t, w)

	assert.Equal(t, session.ShutdownForceful, ctx.ShutdownRequest())
	assert.True(t, wire.isClosed())
}

func TestClientBye(t *testing.T) {
	wire := newFakeWire()
	w := startWorker(t, wire, echoService{}, nil, testConfig())

	wire.pushPayload(0, 0, handshakeBody(t, 1))
	require.Eventually(t, func() bool { return wire.responseCount() == 1 }, time.Second, time.Millisecond)

	wire.push(Event{Kind: AwaitTermination})
	waitDone(t, w)

	wire.mu.Lock()
	byeOk := wire.byeOkSent
	wire.mu.Unlock()
	assert.Equal(t, 1, byeOk)
	assert.True(t, wire.isClosed())
}

func TestCancelOutstandingRequest(t *testing.T) {
	wire := newFakeWire()
	w := startWorker(t, wire, holdService{}, nil, testConfig())

	wire.pushPayload(0, 0, handshakeBody(t, 1))
	require.Eventually(t, func() bool { return wire.responseCount() == 1 }, time.Second, time.Millisecond)

	wire.pushPayload(3, framework.ServiceIDEcho, []byte("long running"))
	require.Eventually(t, func() bool { return wire.responseCount() == 2 }, time.Second, time.Millisecond)

	cancel, err := json.Marshal(BrokerCommand{Op: "cancel", Slot: 3})
	require.NoError(t, err)
	wire.pushPayload(4, framework.ServiceIDEndpointBroker, cancel)

	require.Eventually(t, func() bool {
		res := wire.responseAt(1)
		return res != nil && res.getDiag() != nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, diag.CodeOperationCancelled, wire.responseAt(1).getDiag().Code)

	wire.push(Event{Kind: AwaitTermination})
	waitDone(t, w)
}
