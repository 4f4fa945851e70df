package stream

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/endpoint"
)

// Frame is one server-to-client frame as the client sees it.
type Frame struct {
	Type    byte
	Slot    uint16
	Payload []byte
}

// IsResponseBody reports whether the frame carries a response body.
func (f Frame) IsResponseBody() bool { return f.Type == frameTypeResponseBody }

// IsResponseHead reports whether the frame carries pre-body metadata.
func (f Frame) IsResponseHead() bool { return f.Type == frameTypeResponseHead }

// IsResultHello reports whether the frame announces a result set. The
// payload carries the index and the channel name.
func (f Frame) IsResultHello() bool { return f.Type == frameTypeResultHello }

// IsResultChunk reports whether the frame carries one result-set chunk.
func (f Frame) IsResultChunk() bool { return f.Type == frameTypeResultChunk }

// IsResultBye reports whether the frame closes a result set.
func (f Frame) IsResultBye() bool { return f.Type == frameTypeResultBye }

// IsByeOk reports whether the frame acknowledges a session bye.
func (f Frame) IsByeOk() bool { return f.Type == frameTypeSessionByeOk }

// ResultHello decodes a result-set announcement payload.
func (f Frame) ResultHello() (index uint16, name string) {
	if len(f.Payload) < 2 {
		return 0, ""
	}
	return binary.BigEndian.Uint16(f.Payload[0:2]), string(f.Payload[2:])
}

// BodyCode splits a response body payload into code and body.
func (f Frame) BodyCode() (api.ResponseCode, []byte) {
	if len(f.Payload) == 0 {
		return api.IOError, nil
	}
	return api.ResponseCode(f.Payload[0]), f.Payload[1:]
}

// Client is a minimal stream client used by tests and tooling.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to a stream endpoint.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Handshake performs the handshake turn on slot 0.
func (c *Client) Handshake(h endpoint.Handshake, timeout time.Duration) error {
	body, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := c.Send(0, 0, body); err != nil {
		return err
	}
	frame, err := c.Receive(timeout)
	if err != nil {
		return err
	}
	if !frame.IsResponseBody() {
		return errors.New("stream: unexpected handshake reply")
	}
	if code, _ := frame.BodyCode(); code != api.Success {
		return errors.New("stream: handshake declined")
	}
	return nil
}

// Send writes one request frame for slot targeting serviceID.
func (c *Client) Send(slot uint16, serviceID uint32, body []byte) error {
	return c.writeFrame(frameTypePayload, slot, endpoint.EncodeRequestPayload(serviceID, body))
}

// Bye sends a session termination request.
func (c *Client) Bye() error {
	return c.writeFrame(frameTypeSessionBye, 0, nil)
}

// Receive reads the next frame, waiting up to timeout.
func (c *Client) Receive(timeout time.Duration) (Frame, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(c.reader, hdr[:]); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(hdr[3:7])
	if length > maxFramePayload {
		return Frame{}, errFrameTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.reader, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Type: hdr[0], Slot: binary.BigEndian.Uint16(hdr[1:3]), Payload: payload}, nil
}

// Close closes the connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}

func (c *Client) writeFrame(ft byte, slot uint16, payload []byte) error {
	var hdr [frameHeaderSize]byte
	hdr[0] = ft
	binary.BigEndian.PutUint16(hdr[1:3], slot)
	binary.BigEndian.PutUint32(hdr[3:7], uint32(len(payload)))
	if _, err := c.conn.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		_, err := c.conn.Write(payload)
		return err
	}
	return nil
}
