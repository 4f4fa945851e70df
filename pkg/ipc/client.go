package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/endpoint"
)

// Connector is the client side of the admission protocol. It attaches to
// the server's connection container by database name.
type Connector struct {
	database  string
	container *Container
}

// NewConnector attaches to the named database's connection container.
func NewConnector(database string) (*Connector, error) {
	container, err := Open(database)
	if err != nil {
		return nil, err
	}
	return &Connector{database: database, container: container}, nil
}

// ConnectorOver reuses an already-open container. Used by in-process tests
// where server and client share the mapping.
func ConnectorOver(database string, container *Container) *Connector {
	return &Connector{database: database, container: container}
}

// Connect claims a normal slot, waits for the server, and attaches to the
// session wire. Rejection surfaces as an error.
func (c *Connector) Connect() (*ClientSession, error) {
	t, err := c.container.Request()
	if err != nil {
		return nil, err
	}
	return c.wait(t)
}

// ConnectAdmin is Connect through the admin reservation.
func (c *Connector) ConnectAdmin() (*ClientSession, error) {
	t, err := c.container.RequestAdmin()
	if err != nil {
		return nil, err
	}
	return c.wait(t)
}

func (c *Connector) wait(t Ticket) (*ClientSession, error) {
	id := c.container.Wait(t)
	if id == RejectedSessionID {
		return nil, errors.New("ipc: connection rejected")
	}
	wire, err := OpenClientWire(SessionWireName(c.database, id))
	if err != nil {
		return nil, fmt.Errorf("attach session wire: %w", err)
	}
	return &ClientSession{sessionID: id, wire: wire}, nil
}

// Close detaches from the container.
func (c *Connector) Close() {
	c.container.Close()
}

// ClientSession is one connected IPC session from the client's point of
// view.
type ClientSession struct {
	sessionID uint64
	wire      *ClientWire
}

// SessionID returns the server-assigned session id.
func (s *ClientSession) SessionID() uint64 {
	return s.sessionID
}

// Handshake performs the handshake turn on slot 0 and waits for the reply.
func (s *ClientSession) Handshake(h endpoint.Handshake, timeout time.Duration) error {
	body, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := s.Send(0, 0, body); err != nil {
		return err
	}
	frame, err := s.wire.ReceiveResponse(timeout)
	if err != nil {
		return err
	}
	if frame.Kind != responseKindBody || len(frame.Payload) == 0 {
		return errors.New("ipc: unexpected handshake reply")
	}
	if api.ResponseCode(frame.Payload[0]) != api.Success {
		return errors.New("ipc: handshake declined")
	}
	return nil
}

// Send writes one request frame for slot targeting serviceID.
func (s *ClientSession) Send(slot uint16, serviceID uint32, body []byte) error {
	return s.wire.SendRequest(slot, endpoint.EncodeRequestPayload(serviceID, body))
}

// Receive reads the next response frame.
func (s *ClientSession) Receive(timeout time.Duration) (ResponseFrame, error) {
	return s.wire.ReceiveResponse(timeout)
}

// ReadResultSetChunk reads one chunk of an announced result set.
func (s *ClientSession) ReadResultSetChunk(index int, timeout time.Duration) ([]byte, bool, error) {
	return s.wire.ReadResultSetChunk(index, timeout)
}

// Bye asks the server to terminate the session.
func (s *ClientSession) Bye() error {
	return s.wire.SendSessionBye()
}

// Close detaches from the session wire.
func (s *ClientSession) Close() {
	s.wire.Close()
}
