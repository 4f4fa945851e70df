package framework

import (
	"fmt"
	"sync"

	"github.com/cuemby/burrow/pkg/config"
)

// ServiceRepository indexes registered services by id.
type ServiceRepository struct {
	mu       sync.RWMutex
	services map[uint32]Service
}

// NewServiceRepository creates an empty repository.
func NewServiceRepository() *ServiceRepository {
	return &ServiceRepository{services: make(map[uint32]Service)}
}

// Add registers svc. Registering a duplicate id is an error.
func (r *ServiceRepository) Add(svc Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[svc.ID()]; ok {
		return fmt.Errorf("service id %d already registered", svc.ID())
	}
	r.services[svc.ID()] = svc
	return nil
}

// Find returns the service registered under id, or nil.
func (r *ServiceRepository) Find(id uint32) Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services[id]
}

// ResourceRepository indexes registered resources by id.
type ResourceRepository struct {
	mu        sync.RWMutex
	resources map[uint32]Resource
}

// NewResourceRepository creates an empty repository.
func NewResourceRepository() *ResourceRepository {
	return &ResourceRepository{resources: make(map[uint32]Resource)}
}

// Add registers res. Registering a duplicate id is an error.
func (r *ResourceRepository) Add(res Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[res.ID()]; ok {
		return fmt.Errorf("resource id %d already registered", res.ID())
	}
	r.resources[res.ID()] = res
	return nil
}

// Find returns the resource registered under id, or nil.
func (r *ResourceRepository) Find(id uint32) Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources[id]
}

// Environment is passed to every component lifecycle hook. It carries the
// configuration and the component repositories; components discover their
// collaborators through it rather than through globals.
type Environment struct {
	cfg       *config.Whole
	services  *ServiceRepository
	resources *ResourceRepository
}

// NewEnvironment creates an environment around cfg.
func NewEnvironment(cfg *config.Whole) *Environment {
	return &Environment{
		cfg:       cfg,
		services:  NewServiceRepository(),
		resources: NewResourceRepository(),
	}
}

// Config returns the merged configuration.
func (e *Environment) Config() *config.Whole {
	return e.cfg
}

// Services returns the service repository.
func (e *Environment) Services() *ServiceRepository {
	return e.services
}

// Resources returns the resource repository.
func (e *Environment) Resources() *ResourceRepository {
	return e.resources
}
