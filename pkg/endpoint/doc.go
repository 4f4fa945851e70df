/*
Package endpoint implements the session state machine shared by Burrow's
wire transports.

A Worker owns exactly one session. It waits for the handshake, then loops
over request frames: endpoint-broker control requests are answered inline,
everything else is registered in the request/response tracking map and
dispatched through the routing service. A periodic sweep removes completed
pairs, drives expiration, and completes graceful or forceful shutdown.

Transports plug in through the Wire interface; the worker never sees
sockets or shared memory directly.
*/
package endpoint
