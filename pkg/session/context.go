package session

import (
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/api"
)

// ShutdownRequestType classifies a pending shutdown request on a session.
type ShutdownRequestType int

const (
	ShutdownNone ShutdownRequestType = iota
	ShutdownGraceful
	ShutdownForceful
)

func (t ShutdownRequestType) String() string {
	switch t {
	case ShutdownNone:
		return "none"
	case ShutdownGraceful:
		return "graceful"
	case ShutdownForceful:
		return "forceful"
	}
	return "unknown"
}

// Context is the per-session conversation state. The endpoint worker owns
// the context; the registry holds only a weak reference to it.
type Context struct {
	info      api.SessionInfo
	variables *VariableSet

	mu           sync.Mutex
	shutdown     ShutdownRequestType
	expirationAt time.Time
}

// NewContext creates a session context for the given session info and
// variable declarations.
func NewContext(info api.SessionInfo, decls []VariableDeclaration) *Context {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	return &Context{
		info:      info,
		variables: NewVariableSet(decls),
	}
}

// NumericID returns the unique numeric session id.
func (c *Context) NumericID() uint64 {
	return c.info.ID
}

// SymbolicID returns the optional, non-unique symbolic id.
func (c *Context) SymbolicID() string {
	return c.info.SymbolicID
}

// SetClientInfo records the identity the client declared at handshake. The
// strings are stored as given; the framework performs no verification.
func (c *Context) SetClientInfo(label, application, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.Label = label
	c.info.ApplicationName = application
	c.info.UserName = user
}

// Info returns a copy of the session info.
func (c *Context) Info() api.SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Variables returns the session variable set.
func (c *Context) Variables() *VariableSet {
	return c.variables
}

// ShutdownRequest returns the currently pending shutdown request type.
func (c *Context) ShutdownRequest() ShutdownRequestType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}

// RequestShutdown records a shutdown request. A graceful request fails when
// any request is already pending; a forceful request upgrades a graceful one
// and fails only when the session is already being shut down forcefully.
func (c *Context) RequestShutdown(t ShutdownRequestType) bool {
	if t == ShutdownNone {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch t {
	case ShutdownGraceful:
		if c.shutdown != ShutdownNone {
			return false
		}
	case ShutdownForceful:
		if c.shutdown == ShutdownForceful {
			return false
		}
	}
	c.shutdown = t
	return true
}

// UpdateExpiration moves the session expiration time to now+d. A zero
// duration clears the expiration.
func (c *Context) UpdateExpiration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d == 0 {
		c.expirationAt = time.Time{}
		return
	}
	c.expirationAt = time.Now().Add(d)
}

// SetExpirationAt pins the expiration to an absolute moment.
func (c *Context) SetExpirationAt(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expirationAt = at
}

// ExpirationOver reports whether the session's configured lifetime has
// elapsed. Sessions without an expiration never expire.
func (c *Context) ExpirationOver(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.expirationAt.IsZero() && now.After(c.expirationAt)
}
