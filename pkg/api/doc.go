/*
Package api defines the contracts between Burrow's endpoints and its
services: the request a worker hands to a service and the response handle
the service answers through, including streaming data channels.

Endpoints (ipc, stream, loopback) provide transport-specific implementations
of Response; services only ever see these interfaces.
*/
package api
