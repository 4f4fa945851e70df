/*
Package events provides an in-memory event broker for Burrow's pub/sub
messaging.

The broker broadcasts server events (session lifecycle, scheduler and
server state changes) to subscribers over buffered channels. Publishing is
non-blocking: a subscriber that cannot keep up misses events rather than
stalling the endpoint that published them.
*/
package events
