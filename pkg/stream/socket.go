package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/endpoint"
)

// Frame types on the stream wire. The 1-byte type, 2-byte big-endian slot,
// and 4-byte big-endian length prefix are part of the ABI shared with
// existing clients.
const (
	frameTypePayload      byte = 1
	frameTypeSessionBye   byte = 2
	frameTypeResponseHead byte = 3
	frameTypeResponseBody byte = 4
	frameTypeResultHello  byte = 5
	frameTypeResultChunk  byte = 6
	frameTypeResultBye    byte = 7
	frameTypeSessionByeOk byte = 8
)

const frameHeaderSize = 7

// maxFramePayload bounds a single frame so a broken peer cannot make the
// server allocate unbounded memory.
const maxFramePayload = 16 * 1024 * 1024

var errFrameTooLarge = errors.New("stream: frame exceeds maximum payload size")

// Socket wraps one TCP connection with the stream framing. It implements
// the endpoint.Wire face the session worker drives. Reads happen from the
// worker goroutine only; writes are serialised by an internal mutex so
// response bodies and result-set chunks can interleave safely.
type Socket struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex

	slotCapacity atomic.Uint64
	rsCounter    atomic.Uint32
}

// NewSocket wraps an accepted connection.
func NewSocket(conn net.Conn) *Socket {
	return &Socket{conn: conn, reader: bufio.NewReader(conn)}
}

// RemoteAddr returns the peer address.
func (s *Socket) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Await implements endpoint.Wire.
func (s *Socket) Await(timeout time.Duration) endpoint.Event {
	_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
	ft, slot, payload, err := s.readFrame()
	switch {
	case err == nil:
	case errors.Is(err, os.ErrDeadlineExceeded):
		return endpoint.Event{Kind: endpoint.AwaitTimeout}
	default:
		return endpoint.Event{Kind: endpoint.AwaitError}
	}
	switch ft {
	case frameTypePayload:
		return endpoint.Event{Kind: endpoint.AwaitPayload, Slot: slot, Payload: payload}
	case frameTypeSessionBye:
		return endpoint.Event{Kind: endpoint.AwaitTermination}
	}
	return endpoint.Event{Kind: endpoint.AwaitError}
}

// NewResponse implements endpoint.Wire.
func (s *Socket) NewResponse(slot uint16) endpoint.Response {
	return newResponse(s, slot)
}

// SendByeOk implements endpoint.Wire.
func (s *Socket) SendByeOk() error {
	return s.writeFrame(frameTypeSessionByeOk, 0, nil)
}

// ChangeSlotSize implements endpoint.Wire.
func (s *Socket) ChangeSlotSize(n uint64) {
	s.slotCapacity.Store(n)
}

// HasIncompleteResultSet implements endpoint.Wire. Stream result sets are
// pushed straight onto the socket, so nothing is ever retained.
func (s *Socket) HasIncompleteResultSet() bool {
	return false
}

// Close implements endpoint.Wire.
func (s *Socket) Close() {
	_ = s.conn.Close()
}

func (s *Socket) nextResultSet() uint16 {
	return uint16(s.rsCounter.Add(1) - 1)
}

// readFrame honours the Await deadline only until the first header byte
// arrives; once a frame has started the rest is read without a deadline so
// an expiring timer cannot split a frame and desynchronise the stream.
func (s *Socket) readFrame() (byte, uint16, []byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(s.reader, hdr[:1]); err != nil {
		return 0, 0, nil, err
	}
	_ = s.conn.SetReadDeadline(time.Time{})
	if _, err := io.ReadFull(s.reader, hdr[1:]); err != nil {
		return 0, 0, nil, err
	}
	ft := hdr[0]
	slot := binary.BigEndian.Uint16(hdr[1:3])
	length := binary.BigEndian.Uint32(hdr[3:7])
	if length > maxFramePayload {
		return 0, 0, nil, errFrameTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(s.reader, payload); err != nil {
		return 0, 0, nil, err
	}
	return ft, slot, payload, nil
}

func (s *Socket) writeFrame(ft byte, slot uint16, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var hdr [frameHeaderSize]byte
	hdr[0] = ft
	binary.BigEndian.PutUint16(hdr[1:3], slot)
	binary.BigEndian.PutUint32(hdr[3:7], uint32(len(payload)))
	if _, err := s.conn.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := s.conn.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
