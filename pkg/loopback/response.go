package loopback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/diag"
)

// BufferedResponse accumulates everything a service produced for one
// loopback request: code, body head, body, diagnostic, and the committed
// data of every channel the service released.
type BufferedResponse struct {
	sessionID uint64
	code      api.ResponseCode

	bodyHead    []byte
	bodyHeadSet bool
	body        []byte
	bodySet     bool
	diagnostic  *diag.Record

	// acquired channels move to released data exactly once, on release.
	chMu     sync.RWMutex
	acquired map[string]*dataChannel
	released map[string][][]byte
}

// NewBufferedResponse creates an empty response.
func NewBufferedResponse() *BufferedResponse {
	return &BufferedResponse{
		acquired: make(map[string]*dataChannel),
		released: make(map[string][][]byte),
	}
}

// SetSessionID implements api.Response.
func (r *BufferedResponse) SetSessionID(id uint64) {
	r.sessionID = id
}

// SetCode implements api.Response.
func (r *BufferedResponse) SetCode(code api.ResponseCode) {
	r.code = code
}

// BodyHead implements api.Response. The head must precede the body and may
// be set at most once.
func (r *BufferedResponse) BodyHead(data []byte) error {
	if r.bodySet {
		return errors.New("body head after body")
	}
	if r.bodyHeadSet {
		return errors.New("body head is already set")
	}
	r.bodyHead = append([]byte(nil), data...)
	r.bodyHeadSet = true
	return nil
}

// Body implements api.Response. The body may be set at most once.
func (r *BufferedResponse) Body(data []byte) error {
	if r.bodySet {
		return errors.New("body is already set")
	}
	r.body = append([]byte(nil), data...)
	r.bodySet = true
	return nil
}

// Error implements api.Response.
func (r *BufferedResponse) Error(rec diag.Record) {
	r.diagnostic = &rec
	r.code = api.ApplicationError
}

// AcquireChannel implements api.Response. Re-acquiring a name that is still
// acquired is an error; a name released earlier may be acquired again and
// its data accumulates under the same name.
func (r *BufferedResponse) AcquireChannel(name string) (api.DataChannel, error) {
	r.chMu.Lock()
	defer r.chMu.Unlock()
	if _, ok := r.acquired[name]; ok {
		return nil, fmt.Errorf("channel %q is already acquired", name)
	}
	ch := newDataChannel(name)
	r.acquired[name] = ch
	return ch, nil
}

// ReleaseChannel implements api.Response. Release makes the channel's
// committed data visible under its name; releasing twice is an error.
func (r *BufferedResponse) ReleaseChannel(ch api.DataChannel) error {
	dc, ok := ch.(*dataChannel)
	if !ok {
		return errors.New("channel does not belong to this response")
	}
	r.chMu.Lock()
	defer r.chMu.Unlock()
	if _, ok := r.acquired[dc.name]; !ok {
		return fmt.Errorf("channel %q is not acquired", dc.name)
	}
	delete(r.acquired, dc.name)
	r.released[dc.name] = append(r.released[dc.name], dc.committed()...)
	return nil
}

// SessionID returns the session id set on the response.
func (r *BufferedResponse) SessionID() uint64 {
	return r.sessionID
}

// Code returns the response code.
func (r *BufferedResponse) Code() api.ResponseCode {
	return r.code
}

// BodyHeadData returns the body head, if any.
func (r *BufferedResponse) BodyHeadData() []byte {
	return r.bodyHead
}

// BodyData returns the body.
func (r *BufferedResponse) BodyData() []byte {
	return r.body
}

// Diagnostic returns the diagnostic record reported through Error, or nil.
func (r *BufferedResponse) Diagnostic() *diag.Record {
	return r.diagnostic
}

// Channel returns the committed chunks of the named channel. Only channels
// that were released are visible.
func (r *BufferedResponse) Channel(name string) [][]byte {
	r.chMu.RLock()
	defer r.chMu.RUnlock()
	return r.released[name]
}

// ChannelNames returns the names of the released channels.
func (r *BufferedResponse) ChannelNames() []string {
	r.chMu.RLock()
	defer r.chMu.RUnlock()
	out := make([]string, 0, len(r.released))
	for name := range r.released {
		out = append(out, name)
	}
	return out
}
