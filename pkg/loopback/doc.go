// Package loopback provides an in-process endpoint that feeds requests
// straight into the routing service and collects the full response in
// memory. It exists for tests and debugging; no wire is involved.
package loopback
