package stream_test

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
	"github.com/cuemby/burrow/pkg/routing"
	sessionpkg "github.com/cuemby/burrow/pkg/session"
	"github.com/cuemby/burrow/pkg/stream"
)

// resultSetService streams two chunks over one named channel.
type resultSetService struct{}

const resultSetServiceID uint32 = 55

func (resultSetService) ID() uint32                            { return resultSetServiceID }
func (resultSetService) Label() string                         { return "result_set_service" }
func (resultSetService) Setup(*framework.Environment) error    { return nil }
func (resultSetService) Start(*framework.Environment) error    { return nil }
func (resultSetService) Shutdown(*framework.Environment) error { return nil }

func (resultSetService) Handle(req api.Request, res api.Response) error {
	res.SetSessionID(req.SessionID())
	res.SetCode(api.Success)
	ch, err := res.AcquireChannel("out")
	if err != nil {
		return err
	}
	w, err := ch.AcquireWriter()
	if err != nil {
		return err
	}
	for _, chunk := range []string{"first", "second"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			return err
		}
		if err := w.Commit(); err != nil {
			return err
		}
	}
	if err := ch.ReleaseWriter(w); err != nil {
		return err
	}
	if err := res.ReleaseChannel(ch); err != nil {
		return err
	}
	return res.Body([]byte("done"))
}

func newStreamFixture(t *testing.T, threads int) string {
	t.Helper()
	cfg, err := config.LoadString(fmt.Sprintf("[stream_endpoint]\nport=0\nthreads=%d\n", threads))
	require.NoError(t, err)

	env := framework.NewEnvironment(cfg)
	sv := framework.NewServer(env)
	bridge := sessionpkg.NewBridge()
	require.NoError(t, sv.AddResource(bridge))
	require.NoError(t, sv.AddService(routing.New()))
	require.NoError(t, sv.AddService(sessionpkg.NewService()))
	require.NoError(t, sv.AddService(echo.NewService()))
	require.NoError(t, sv.AddService(resultSetService{}))
	ep := stream.NewEndpoint(sv.DatabaseInfo(), nil)
	require.NoError(t, sv.AddEndpoint(ep))
	require.NoError(t, sv.Setup())
	require.NoError(t, sv.Start())
	t.Cleanup(func() { assert.NoError(t, sv.Shutdown()) })
	return ep.Addr().String()
}

func TestStreamHandshakeAndEcho(t *testing.T) {
	addr := newStreamFixture(t, 4)

	c, err := stream.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Handshake(endpoint.Handshake{
		Label:                       "stream_test",
		ApplicationName:             "endpoint_test",
		MaximumConcurrentResultSets: 4,
	}, 5*time.Second))

	require.NoError(t, c.Send(1, framework.ServiceIDEcho, []byte("ping over tcp")))
	frame, err := c.Receive(5 * time.Second)
	require.NoError(t, err)
	require.True(t, frame.IsResponseBody())
	assert.Equal(t, uint16(1), frame.Slot)
	code, body := frame.BodyCode()
	assert.Equal(t, api.Success, code)
	assert.Equal(t, []byte("ping over tcp"), body)
}

func TestStreamSessionByeAcknowledged(t *testing.T) {
	addr := newStreamFixture(t, 4)

	c, err := stream.Dial(addr)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Handshake(endpoint.Handshake{MaximumConcurrentResultSets: 1}, 5*time.Second))

	require.NoError(t, c.Bye())
	frame, err := c.Receive(5 * time.Second)
	require.NoError(t, err)
	assert.True(t, frame.IsByeOk())
}

func TestStreamDeclineWhenSessionBudgetExhausted(t *testing.T) {
	addr := newStreamFixture(t, 1)

	// the first session takes the only worker slot
	first, err := stream.Dial(addr)
	require.NoError(t, err)
	defer first.Close()
	require.NoError(t, first.Handshake(endpoint.Handshake{MaximumConcurrentResultSets: 1}, 5*time.Second))

	// the second connection is declined with RESOURCE_LIMIT_REACHED
	second, err := stream.Dial(addr)
	require.NoError(t, err)
	defer second.Close()
	err = second.Handshake(endpoint.Handshake{MaximumConcurrentResultSets: 1}, 5*time.Second)
	require.Error(t, err)
}

func TestStreamResultSetDelivery(t *testing.T) {
	addr := newStreamFixture(t, 4)

	c, err := stream.Dial(addr)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Handshake(endpoint.Handshake{MaximumConcurrentResultSets: 1}, 5*time.Second))

	require.NoError(t, c.Send(2, resultSetServiceID, nil))

	var chunks []string
	var sawHello, sawBye, sawBody bool
	var helloName string
	for !(sawBye && sawBody) {
		frame, err := c.Receive(5 * time.Second)
		require.NoError(t, err)
		switch {
		case frame.IsResultHello():
			sawHello = true
			_, helloName = frame.ResultHello()
		case frame.IsResultChunk():
			chunks = append(chunks, string(frame.Payload))
		case frame.IsResultBye():
			sawBye = true
		case frame.IsResponseBody():
			sawBody = true
			code, body := frame.BodyCode()
			assert.Equal(t, api.Success, code)
			assert.Equal(t, []byte("done"), body)
		}
	}
	assert.True(t, sawHello)
	assert.Equal(t, "out", helloName)
	assert.Equal(t, []string{"first", "second"}, chunks)
}

func TestStreamUnknownService(t *testing.T) {
	addr := newStreamFixture(t, 4)

	c, err := stream.Dial(addr)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Handshake(endpoint.Handshake{MaximumConcurrentResultSets: 1}, 5*time.Second))

	require.NoError(t, c.Send(1, 4242, []byte("nothing there")))
	frame, err := c.Receive(5 * time.Second)
	require.NoError(t, err)
	require.True(t, frame.IsResponseBody())
	code, body := frame.BodyCode()
	assert.Equal(t, api.ApplicationError, code)

	var rec diag.Record
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, diag.CodeServiceUnavailable, rec.Code)
}
