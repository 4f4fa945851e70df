package framework

// Reserved service ids. Requests carry one of these in their header; the
// routing service dispatches on it.
const (
	ServiceIDRouting        uint32 = 1
	ServiceIDEndpointBroker uint32 = 2
	ServiceIDDatastore      uint32 = 3
	ServiceIDSession        uint32 = 4
	ServiceIDEcho           uint32 = 5
)

// Reserved resource ids.
const (
	ResourceIDSession   uint32 = 1
	ResourceIDDatastore uint32 = 2
	ResourceIDScheduler uint32 = 3
)
