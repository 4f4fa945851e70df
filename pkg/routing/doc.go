// Package routing implements the service-id to handler table. Every request
// a worker forwards goes through Service.Handle, which looks up the target
// service and invokes it synchronously.
package routing
