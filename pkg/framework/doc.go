/*
Package framework holds Burrow's component skeleton: the lifecycle contract
(setup, start, shutdown with an explicit state machine), the environment
passed to every hook, and the server that assembles resources, services, and
endpoints.

A resource owns shared state (the session registry), a service answers
requests routed by service id, and an endpoint accepts client connections
and owns the per-session workers. The server walks components in dependency
order on the way up and in reverse on the way down.
*/
package framework
