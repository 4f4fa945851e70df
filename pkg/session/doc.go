/*
Package session holds the per-client conversation state and its in-process
index.

A Context carries the session identity, typed variable set, expiration, and
pending shutdown request. The endpoint worker that accepted the connection
owns the context; the Registry indexes live sessions through weak references
only, so a session disappears from listings as soon as its owner drops it.

Service answers the session administration commands (list, get, shutdown,
variable access) routed to it by service id.
*/
package session
