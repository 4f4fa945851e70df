package loopback

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/framework"
)

// request is the in-memory api.Request the endpoint feeds to the routing
// service.
type request struct {
	sessionID   uint64
	serviceID   uint32
	payload     []byte
	dbInfo      *api.DatabaseInfo
	sessionInfo *api.SessionInfo
}

func (r *request) SessionID() uint64              { return r.sessionID }
func (r *request) ServiceID() uint32              { return r.serviceID }
func (r *request) Payload() []byte                { return r.payload }
func (r *request) DatabaseInfo() *api.DatabaseInfo { return r.dbInfo }
func (r *request) SessionInfo() *api.SessionInfo  { return r.sessionInfo }

// Endpoint is the in-process request entry point used for tests and debug.
// It bypasses any wire: Request invokes the routing service synchronously
// and returns the buffered response. It is not safe for concurrent calls.
type Endpoint struct {
	service framework.Service
	dbInfo  *api.DatabaseInfo
	label   string
}

// NewEndpoint creates a loopback endpoint. dbInfo may be nil.
func NewEndpoint(dbInfo *api.DatabaseInfo) *Endpoint {
	if dbInfo == nil {
		dbInfo = &api.DatabaseInfo{Name: "loopback", StartedAt: time.Now()}
	}
	return &Endpoint{dbInfo: dbInfo, label: uuid.NewString()}
}

// Label implements framework.Component.
func (e *Endpoint) Label() string {
	return "loopback_endpoint"
}

// Setup resolves the routing service.
func (e *Endpoint) Setup(env *framework.Environment) error {
	e.service = env.Services().Find(framework.ServiceIDRouting)
	if e.service == nil {
		return errors.New("routing service is not registered")
	}
	return nil
}

// Start implements framework.Component.
func (e *Endpoint) Start(*framework.Environment) error {
	return nil
}

// Shutdown implements framework.Component.
func (e *Endpoint) Shutdown(*framework.Environment) error {
	return nil
}

// Request handles one request through the routing service and returns the
// buffered response. The call blocks until the service finishes.
func (e *Endpoint) Request(sessionID uint64, serviceID uint32, payload []byte) (*BufferedResponse, error) {
	res := NewBufferedResponse()
	req := &request{
		sessionID: sessionID,
		serviceID: serviceID,
		payload:   payload,
		dbInfo:    e.dbInfo,
		sessionInfo: &api.SessionInfo{
			ID:             sessionID,
			ConnectionKind: api.ConnectionLoopback,
			ConnectionInfo: e.label,
			StartedAt:      time.Now(),
		},
	}
	if err := e.service.Handle(req, res); err != nil {
		return nil, err
	}
	return res, nil
}
