package framework

import "github.com/cuemby/burrow/pkg/api"

// State tracks where a component is in its lifecycle. Components move
// strictly ready -> activated -> deactivated; hooks receive the environment
// and never consult implicit globals.
type State int

const (
	StateInitial State = iota
	StateReady
	StateActivated
	StateDeactivated
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateReady:
		return "ready"
	case StateActivated:
		return "activated"
	case StateDeactivated:
		return "deactivated"
	}
	return "unknown"
}

// Component is the unit of lifecycle management in the framework.
type Component interface {
	// Label returns the human readable name of the component.
	Label() string

	// Setup prepares the component. The state becomes ready.
	Setup(env *Environment) error

	// Start activates the component. The state becomes activated.
	Start(env *Environment) error

	// Shutdown stops the component. The state becomes deactivated.
	Shutdown(env *Environment) error
}

// Resource is a component that owns state shared by services.
type Resource interface {
	Component

	// ID returns the resource id, unique among resources.
	ID() uint32
}

// Service is a component that handles requests routed to it by service id.
type Service interface {
	Component

	// ID returns the service id requests are routed by.
	ID() uint32

	// Handle processes one request and answers through res.
	Handle(req api.Request, res api.Response) error
}

// Endpoint is a component that accepts client connections and drives
// sessions.
type Endpoint interface {
	Component
}
