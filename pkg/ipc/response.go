package ipc

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/diag"
)

// response answers one request slot over the session's response ring.
// Code, head, and body are each sent at most once; data channels stream
// through result-set rings retained by the garbage collector until the
// client drains them.
type response struct {
	wire *ServerWire
	slot uint16

	mu          sync.Mutex
	sessionID   uint64
	code        api.ResponseCode
	bodyHeadSet bool
	bodySet     bool
	acquired    map[string]*responseChannel
}

func newResponse(wire *ServerWire, slot uint16) *response {
	return &response{wire: wire, slot: slot, acquired: make(map[string]*responseChannel)}
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
	return r.wire.SendHead(r.slot, data)
}

// Body implements api.Response.
func (r *response) Body(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bodySet {
		return errors.New("body is already set")
	}
	r.bodySet = true
	return r.wire.SendBody(r.slot, byte(r.code), data)
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
	_ = r.wire.SendBody(r.slot, byte(api.ApplicationError), body)
}

// AcquireChannel implements api.Response.
func (r *response) AcquireChannel(name string) (api.DataChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.acquired[name]; ok {
		return nil, errors.New("channel is already acquired")
	}
	index, err := r.wire.AcquireResultSet(r.slot, name)
	if err != nil {
		return nil, err
	}
	ch := &responseChannel{wire: r.wire, name: name, index: index}
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
	return r.wire.SealResultSet(r.slot, rc.index)
}

// Completed reports whether the response was fully sent.
func (r *response) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodySet && len(r.acquired) == 0
}

// responseChannel streams chunks into one result-set ring.
type responseChannel struct {
	wire  *ServerWire
	name  string
	index int
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

// responseWriter buffers bytes until Commit seals them into one chunk on
// the shared ring.
type responseWriter struct {
	ch  *responseChannel
	buf []byte
}

func (w *responseWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *responseWriter) Commit() error {
	err := w.ch.wire.WriteResultSetChunk(w.ch.index, w.buf)
	w.buf = w.buf[:0]
	return err
}
