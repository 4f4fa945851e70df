package stream

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/diag"
)

// response answers one request slot over the socket. Result-set chunks are
// pushed inline as frames; nothing is buffered server-side.
type response struct {
	sock *Socket
	slot uint16

	mu          sync.Mutex
	sessionID   uint64
	code        api.ResponseCode
	bodyHeadSet bool
	bodySet     bool
	acquired    map[string]*responseChannel
}

func newResponse(sock *Socket, slot uint16) *response {
	return &response{sock: sock, slot: slot, acquired: make(map[string]*responseChannel)}
}

// SetSessionID implements api.Response.
func (r *response) SetSessionID(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

// SetCode implements api.Response.
func (r *response) SetCode(code api.ResponseCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
}

// BodyHead implements api.Response.
func (r *response) BodyHead(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bodySet {
		return errors.New("body head after body")
	}
	if r.bodyHeadSet {
		return errors.New("body head is already set")
	}
	r.bodyHeadSet = true
	return r.sock.writeFrame(frameTypeResponseHead, r.slot, data)
}

// Body implements api.Response.
func (r *response) Body(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bodySet {
		return errors.New("body is already set")
	}
	r.bodySet = true
	buf := make([]byte, 1+len(data))
	buf[0] = byte(r.code)
	copy(buf[1:], data)
	return r.sock.writeFrame(frameTypeResponseBody, r.slot, buf)
}

// Error implements api.Response.
func (r *response) Error(rec diag.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bodySet {
		return
	}
	r.bodySet = true
	r.code = api.ApplicationError
	body, _ := json.Marshal(rec)
	buf := make([]byte, 1+len(body))
	buf[0] = byte(api.ApplicationError)
	copy(buf[1:], body)
	_ = r.sock.writeFrame(frameTypeResponseBody, r.slot, buf)
}

// AcquireChannel implements api.Response.
func (r *response) AcquireChannel(name string) (api.DataChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.acquired[name]; ok {
		return nil, errors.New("channel is already acquired")
	}
	index := r.sock.nextResultSet()
	payload := make([]byte, 2+len(name))
	binary.BigEndian.PutUint16(payload[0:2], index)
	copy(payload[2:], name)
	if err := r.sock.writeFrame(frameTypeResultHello, r.slot, payload); err != nil {
		return nil, err
	}
	ch := &responseChannel{sock: r.sock, name: name, index: index}
	r.acquired[name] = ch
	return ch, nil
}

// ReleaseChannel implements api.Response.
func (r *response) ReleaseChannel(ch api.DataChannel) error {
	rc, ok := ch.(*responseChannel)
	if !ok {
		return errors.New("channel does not belong to this response")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.acquired[rc.name]; !ok {
		return errors.New("channel is already released")
	}
	delete(r.acquired, rc.name)
	return r.sock.writeFrame(frameTypeResultBye, rc.index, nil)
}

// Completed reports whether the response was fully sent.
func (r *response) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodySet && len(r.acquired) == 0
}

// responseChannel pushes chunks as result-set frames keyed by index.
type responseChannel struct {
	sock  *Socket
	name  string
	index uint16
}

func (c *responseChannel) Name() string {
	return c.name
}

func (c *responseChannel) AcquireWriter() (api.Writer, error) {
	return &responseWriter{ch: c}, nil
}

func (c *responseChannel) ReleaseWriter(api.Writer) error {
	return nil
}

type responseWriter struct {
	ch  *responseChannel
	buf []byte
}

func (w *responseWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *responseWriter) Commit() error {
	err := w.ch.sock.writeFrame(frameTypeResultChunk, w.ch.index, w.buf)
	w.buf = w.buf[:0]
	return err
}
