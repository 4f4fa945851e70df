package session

import (
	"github.com/cuemby/burrow/pkg/framework"
)

// Bridge exposes the session registry as a framework resource so that
// services and endpoints can discover it through the environment.
type Bridge struct {
	registry *Registry
}

// NewBridge creates a bridge around a fresh registry.
func NewBridge() *Bridge {
	return &Bridge{registry: NewRegistry()}
}

// ID implements framework.Resource.
func (b *Bridge) ID() uint32 {
	return framework.ResourceIDSession
}

// Label implements framework.Component.
func (b *Bridge) Label() string {
	return "session_resource"
}

// Setup implements framework.Component.
func (b *Bridge) Setup(*framework.Environment) error {
	return nil
}

// Start implements framework.Component.
func (b *Bridge) Start(*framework.Environment) error {
	return nil
}

// Shutdown implements framework.Component.
func (b *Bridge) Shutdown(*framework.Environment) error {
	return nil
}

// Registry returns the registry the bridge owns.
func (b *Bridge) Registry() *Registry {
	return b.registry
}
