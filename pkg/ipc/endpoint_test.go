package ipc_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/diag"
	"github.com/cuemby/burrow/pkg/echo"
	"github.com/cuemby/burrow/pkg/endpoint"
	"github.com/cuemby/burrow/pkg/framework"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/routing"
	"github.com/cuemby/burrow/pkg/scheduler"
	sessionpkg "github.com/cuemby/burrow/pkg/session"
)

type ipcFixture struct {
	server    *framework.Server
	endpoint  *ipc.Endpoint
	registry  *sessionpkg.Registry
	connector *ipc.Connector
}

func newIPCFixture(t *testing.T, extra ...framework.Service) *ipcFixture {
	t.Helper()
	database := fmt.Sprintf("ipc_endpoint_test-%d", time.Now().UnixNano())
	cfg, err := config.LoadString(fmt.Sprintf("[ipc_endpoint]\ndatabase_name=%s\nthreads=4\nadmin_sessions=1\n", database))
	require.NoError(t, err)

	env := framework.NewEnvironment(cfg)
	sv := framework.NewServer(env)
	bridge := sessionpkg.NewBridge()
	require.NoError(t, sv.AddResource(bridge))
	require.NoError(t, sv.AddService(routing.New()))
	require.NoError(t, sv.AddService(sessionpkg.NewService()))
	require.NoError(t, sv.AddService(echo.NewService()))
	for _, svc := range extra {
		require.NoError(t, sv.AddService(svc))
	}
	ep := ipc.NewEndpoint(sv.DatabaseInfo(), nil)
	require.NoError(t, sv.AddEndpoint(ep))
	require.NoError(t, sv.Setup())
	require.NoError(t, sv.Start())
	t.Cleanup(func() { assert.NoError(t, sv.Shutdown()) })

	connector := ipc.ConnectorOver(database, ep.Container())
	return &ipcFixture{server: sv, endpoint: ep, registry: bridge.Registry(), connector: connector}
}

func TestIPCHandshakeAndEcho(t *testing.T) {
	f := newIPCFixture(t)

	cs, err := f.connector.Connect()
	require.NoError(t, err)
	defer cs.Close()

	require.NoError(t, cs.Handshake(endpoint.Handshake{
		Label:                       "ipc_test",
		ApplicationName:             "endpoint_test",
		MaximumConcurrentResultSets: 2,
	}, 5*time.Second))

	require.NoError(t, cs.Send(1, framework.ServiceIDEcho, []byte("ping over shm")))
	frame, err := cs.Receive(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), frame.Slot)
	require.NotEmpty(t, frame.Payload)
	assert.Equal(t, api.Success, api.ResponseCode(frame.Payload[0]))
	assert.Equal(t, []byte("ping over shm"), frame.Payload[1:])

	// the session is visible in the registry while it lives
	require.Eventually(t, func() bool {
		for _, ctx := range f.registry.List() {
			if ctx.NumericID() == cs.SessionID() {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, cs.Bye())
}

func TestIPCUnknownService(t *testing.T) {
	f := newIPCFixture(t)

	cs, err := f.connector.Connect()
	require.NoError(t, err)
	defer cs.Close()
	require.NoError(t, cs.Handshake(endpoint.Handshake{MaximumConcurrentResultSets: 1}, 5*time.Second))

	require.NoError(t, cs.Send(1, 9999, []byte("whatever")))
	frame, err := cs.Receive(5 * time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, frame.Payload)
	assert.Equal(t, api.ApplicationError, api.ResponseCode(frame.Payload[0]))

	var rec diag.Record
	require.NoError(t, json.Unmarshal(frame.Payload[1:], &rec))
	assert.Equal(t, diag.CodeServiceUnavailable, rec.Code)

	require.NoError(t, cs.Bye())
}

// deferredService completes its responses on the task scheduler instead of
// the endpoint thread, so responses finish out of order with new requests.
type deferredService struct {
	sched *scheduler.Scheduler
	delay time.Duration
}

const deferredServiceID uint32 = 77

func (s *deferredService) ID() uint32                            { return deferredServiceID }
func (s *deferredService) Label() string                         { return "deferred_service" }
func (s *deferredService) Setup(*framework.Environment) error    { return nil }
func (s *deferredService) Start(*framework.Environment) error    { return nil }
func (s *deferredService) Shutdown(*framework.Environment) error { return nil }

func (s *deferredService) Handle(req api.Request, res api.Response) error {
	res.SetSessionID(req.SessionID())
	payload := append([]byte(nil), req.Payload()...)
	s.sched.Schedule(scheduler.NewDelayedTask(time.Now().Add(s.delay), func(*scheduler.Context) {
		res.SetCode(api.Success)
		_ = res.Body(payload)
	}))
	return nil
}

func TestIPCGracefulShutdownWaitsForOutstandingResponse(t *testing.T) {
	sched := scheduler.New(scheduler.Config{ThreadCount: 2})
	sched.Start()
	defer sched.Stop()

	f := newIPCFixture(t, &deferredService{sched: sched, delay: 300 * time.Millisecond})

	cs, err := f.connector.Connect()
	require.NoError(t, err)
	defer cs.Close()
	require.NoError(t, cs.Handshake(endpoint.Handshake{MaximumConcurrentResultSets: 1}, 5*time.Second))

	// a request whose response completes later on the scheduler
	require.NoError(t, cs.Send(3, deferredServiceID, []byte("deferred work")))

	// request a graceful shutdown through the session service, as an
	// administrator would
	cmd, err := json.Marshal(sessionpkg.Command{
		Op:      "shutdown",
		Session: fmt.Sprintf(":%d", cs.SessionID()),
		Type:    "graceful",
	})
	require.NoError(t, err)
	require.NoError(t, cs.Send(1, framework.ServiceIDSession, cmd))
	frame, err := cs.Receive(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), frame.Slot)
	assert.Equal(t, api.Success, api.ResponseCode(frame.Payload[0]))

	// a new request on the closing session is refused while the deferred
	// response is still outstanding
	require.NoError(t, cs.Send(2, framework.ServiceIDEcho, []byte("too late")))
	frame, err = cs.Receive(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), frame.Slot)
	require.NotEmpty(t, frame.Payload)
	assert.Equal(t, api.ApplicationError, api.ResponseCode(frame.Payload[0]))
	var rec diag.Record
	require.NoError(t, json.Unmarshal(frame.Payload[1:], &rec))
	assert.Equal(t, diag.CodeSessionClosed, rec.Code)

	// the deferred response still arrives before the session closes
	frame, err = cs.Receive(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), frame.Slot)
	assert.Equal(t, api.Success, api.ResponseCode(frame.Payload[0]))
	assert.Equal(t, []byte("deferred work"), frame.Payload[1:])
}
