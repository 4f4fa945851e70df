package endpoint

import (
	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/session"
)

// request is the api.Request the worker hands to services: the decoded
// frame plus database and session metadata attached from the owning
// context.
type request struct {
	serviceID   uint32
	body        []byte
	dbInfo      *api.DatabaseInfo
	sessionInfo api.SessionInfo
}

func newRequest(serviceID uint32, body []byte, dbInfo *api.DatabaseInfo, ctx *session.Context) *request {
	return &request{
		serviceID:   serviceID,
		body:        body,
		dbInfo:      dbInfo,
		sessionInfo: ctx.Info(),
	}
}

func (r *request) SessionID() uint64               { return r.sessionInfo.ID }
func (r *request) ServiceID() uint32               { return r.serviceID }
func (r *request) Payload() []byte                 { return r.body }
func (r *request) DatabaseInfo() *api.DatabaseInfo { return r.dbInfo }
func (r *request) SessionInfo() *api.SessionInfo   { return &r.sessionInfo }
