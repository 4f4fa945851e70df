// Package stream implements Burrow's TCP transport: length-prefixed frames
// with a 1-byte type and a 2-byte slot, a listener endpoint spawning one
// session worker per connection, and a minimal client for tests.
package stream
