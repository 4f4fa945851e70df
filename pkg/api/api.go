package api

import (
	"time"

	"github.com/cuemby/burrow/pkg/diag"
)

// ResponseCode classifies the overall outcome of a request.
type ResponseCode int

const (
	Success ResponseCode = iota
	ApplicationError
	IOError
)

// String returns a readable name for the code.
func (c ResponseCode) String() string {
	switch c {
	case Success:
		return "success"
	case ApplicationError:
		return "application_error"
	case IOError:
		return "io_error"
	}
	return "unknown"
}

// ConnectionKind identifies the transport a session arrived on.
type ConnectionKind int

const (
	ConnectionIPC ConnectionKind = iota
	ConnectionStream
	ConnectionLoopback
)

func (k ConnectionKind) String() string {
	switch k {
	case ConnectionIPC:
		return "ipc"
	case ConnectionStream:
		return "stream"
	case ConnectionLoopback:
		return "loopback"
	}
	return "unknown"
}

// UnknownSessionID is the session id used by responses that do not belong to
// a session.
const UnknownSessionID = ^uint64(0)

// DatabaseInfo describes the server instance a request is executing against.
type DatabaseInfo struct {
	Name       string
	InstanceID string
	StartedAt  time.Time
}

// SessionInfo describes the session a request arrived on. It is attached to
// each request by the endpoint worker from the owning session context.
type SessionInfo struct {
	ID              uint64
	SymbolicID      string
	ConnectionKind  ConnectionKind
	ConnectionInfo  string
	Label           string
	ApplicationName string
	UserName        string
	StartedAt       time.Time
}

// Request is the server-side view of one decoded request frame. The payload
// is opaque to the framework; only the target service interprets it.
type Request interface {
	// SessionID returns the id of the session the request arrived on.
	SessionID() uint64

	// ServiceID returns the id of the service the request targets.
	ServiceID() uint32

	// Payload returns the opaque request payload.
	Payload() []byte

	// DatabaseInfo returns information about this server instance.
	DatabaseInfo() *DatabaseInfo

	// SessionInfo returns information about the owning session.
	SessionInfo() *SessionInfo
}

// Response is the server-side handle for answering one request. Code, body
// head, and body may each be set at most once, and the body head must be
// sent before the body. Those three setters are not safe for concurrent use;
// channel acquire/release are.
type Response interface {
	// SetSessionID sets the session id reported with the response. It must
	// be called before BodyHead or Body.
	SetSessionID(id uint64)

	// SetCode sets the response code.
	SetCode(code ResponseCode)

	// BodyHead sends the short metadata that precedes the body. It fails if
	// the body has already been sent.
	BodyHead(data []byte) error

	// Body sends the response body and completes the main response.
	Body(data []byte) error

	// Error reports a diagnostic to the client. After Error no BodyHead or
	// Body call is expected.
	Error(rec diag.Record)

	// AcquireChannel opens the named data channel for application output.
	AcquireChannel(name string) (DataChannel, error)

	// ReleaseChannel declares the channel complete. Releasing twice is an
	// error; writes after release are not observable by the client.
	ReleaseChannel(ch DataChannel) error
}

// DataChannel is a named, ordered collection of chunk byte strings produced
// by zero or more writers. Writers may run concurrently; ordering between
// writers is unspecified while each writer's own commits stay in order.
type DataChannel interface {
	// Name returns the channel name.
	Name() string

	// AcquireWriter obtains a new writer on the channel.
	AcquireWriter() (Writer, error)

	// ReleaseWriter returns the writer. Uncommitted data may be discarded.
	ReleaseWriter(w Writer) error
}

// Writer accumulates chunk data for one producer. Write appends to the
// current chunk; Commit seals it and makes it visible in channel order.
type Writer interface {
	Write(p []byte) (int, error)
	Commit() error
}
