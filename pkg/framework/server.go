package framework

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/log"
)

// Server assembles resources, services, and endpoints and drives them
// through the component lifecycle. Setup runs before any thread is started;
// a failure there aborts startup. Shutdown walks components in reverse
// registration order so endpoints drain before the services they route to.
type Server struct {
	env   *Environment
	state State

	dbInfo api.DatabaseInfo

	resources []Resource
	services  []Service
	endpoints []Endpoint
}

// NewServer creates an empty server around env. Core components are added
// by the caller; see cmd/burrow for the standard assembly.
func NewServer(env *Environment) *Server {
	name := "burrow"
	if sec := env.Config().Section("ipc_endpoint"); sec != nil {
		if v, ok := sec.GetString("database_name"); ok && v != "" {
			name = v
		}
	}
	return &Server{
		env:   env,
		state: StateInitial,
		dbInfo: api.DatabaseInfo{
			Name:       name,
			InstanceID: uuid.NewString(),
			StartedAt:  time.Now(),
		},
	}
}

// DatabaseInfo returns information about this server instance.
func (s *Server) DatabaseInfo() *api.DatabaseInfo {
	return &s.dbInfo
}

// Environment returns the server environment.
func (s *Server) Environment() *Environment {
	return s.env
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return s.state
}

// AddResource registers a resource component.
func (s *Server) AddResource(r Resource) error {
	if s.state != StateInitial {
		return fmt.Errorf("cannot add resource in state %s", s.state)
	}
	if err := s.env.Resources().Add(r); err != nil {
		return err
	}
	s.resources = append(s.resources, r)
	return nil
}

// AddService registers a service component.
func (s *Server) AddService(svc Service) error {
	if s.state != StateInitial {
		return fmt.Errorf("cannot add service in state %s", s.state)
	}
	if err := s.env.Services().Add(svc); err != nil {
		return err
	}
	s.services = append(s.services, svc)
	return nil
}

// AddEndpoint registers an endpoint component.
func (s *Server) AddEndpoint(ep Endpoint) error {
	if s.state != StateInitial {
		return fmt.Errorf("cannot add endpoint in state %s", s.state)
	}
	s.endpoints = append(s.endpoints, ep)
	return nil
}

// Setup prepares every component. Resources first, then services, then
// endpoints, matching their dependency order.
func (s *Server) Setup() error {
	if s.state != StateInitial {
		return fmt.Errorf("setup called in state %s", s.state)
	}
	for _, c := range s.components() {
		if err := c.Setup(s.env); err != nil {
			return fmt.Errorf("setup %s: %w", c.Label(), err)
		}
	}
	s.state = StateReady
	return nil
}

// Start activates every component.
func (s *Server) Start() error {
	if s.state != StateReady {
		return fmt.Errorf("start called in state %s", s.state)
	}
	logger := log.WithComponent("framework")
	for _, c := range s.components() {
		if err := c.Start(s.env); err != nil {
			return fmt.Errorf("start %s: %w", c.Label(), err)
		}
		logger.Debug().Str("label", c.Label()).Msg("component started")
	}
	s.state = StateActivated
	logger.Info().Str("instance_id", s.dbInfo.InstanceID).Str("database", s.dbInfo.Name).Msg("server activated")
	return nil
}

// Shutdown deactivates every component in reverse order. All components are
// attempted even when one fails; the first error is returned.
func (s *Server) Shutdown() error {
	if s.state != StateActivated && s.state != StateReady {
		return nil
	}
	var first error
	cs := s.components()
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].Shutdown(s.env); err != nil {
			l := log.WithComponent("framework")
			l.Error().Err(err).Str("label", cs[i].Label()).Msg("component shutdown failed")
			if first == nil {
				first = err
			}
		}
	}
	s.state = StateDeactivated
	return first
}

func (s *Server) components() []Component {
	out := make([]Component, 0, len(s.resources)+len(s.services)+len(s.endpoints))
	for _, r := range s.resources {
		out = append(out, r)
	}
	for _, svc := range s.services {
		out = append(out, svc)
	}
	for _, ep := range s.endpoints {
		out = append(out, ep)
	}
	return out
}
