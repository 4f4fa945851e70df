package echo

import (
	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/framework"
)

// Service is a debug service that answers every request with its own
// payload. It gives tooling and tests a compute service with no
// dependencies.
type Service struct{}

// NewService creates the echo service.
func NewService() *Service {
	return &Service{}
}

// ID implements framework.Service.
func (s *Service) ID() uint32 {
	return framework.ServiceIDEcho
}

// Label implements framework.Component.
func (s *Service) Label() string {
	return "echo_service"
}

// Setup implements framework.Component.
func (s *Service) Setup(*framework.Environment) error {
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

// Handle echoes the request payload back as the response body.
func (s *Service) Handle(req api.Request, res api.Response) error {
	res.SetSessionID(req.SessionID())
	res.SetCode(api.Success)
	return res.Body(req.Payload())
}
