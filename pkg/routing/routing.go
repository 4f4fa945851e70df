package routing

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/diag"
	"github.com/cuemby/burrow/pkg/framework"
	"github.com/cuemby/burrow/pkg/log"
)

// Service dispatches requests to the service registered under the request's
// service id. Unknown ids produce a SERVICE_UNAVAILABLE diagnostic; the
// session stays alive.
type Service struct {
	services *framework.ServiceRepository
}

// New creates the routing service.
func New() *Service {
	return &Service{}
}

// ID implements framework.Service.
func (s *Service) ID() uint32 {
	return framework.ServiceIDRouting
}

// Label implements framework.Component.
func (s *Service) Label() string {
	return "routing_service"
}

// Setup captures the service repository. It must run after every service is
// registered with the environment.
func (s *Service) Setup(env *framework.Environment) error {
	s.services = env.Services()
	return nil
}

// Start implements framework.Component.
func (s *Service) Start(*framework.Environment) error {
	return nil
}

// Shutdown implements framework.Component.
func (s *Service) Shutdown(*framework.Environment) error {
	return nil
}

// Handle routes one request. A request addressed to the routing service
// itself is a meta request and is answered inline with an empty success.
func (s *Service) Handle(req api.Request, res api.Response) error {
	id := req.ServiceID()
	if id == framework.ServiceIDRouting {
		res.SetSessionID(req.SessionID())
		res.SetCode(api.Success)
		return res.Body(nil)
	}
	svc := s.services.Find(id)
	if svc == nil {
		log.WithComponent("routing_service").Info().Uint32("service_id", id).Msg("request for unknown service")
		res.SetSessionID(req.SessionID())
		res.Error(diag.NewRecord(diag.CodeServiceUnavailable, fmt.Sprintf("service %d is not available", id)))
		return nil
	}
	return svc.Handle(req, res)
}
