/*
Package ipc implements Burrow's shared-memory transport.

Admission goes through a fixed-capacity connection ring in a named
/dev/shm region: clients claim a slot (normal or reserved admin class),
the server's listener pops pending requests, assigns monotonic session
ids, and accepts or rejects each slot. Both sides block on futexes inside
the shared region, so the protocol works across processes.

Each accepted session gets its own region carrying a request ring, a
response ring, and a set of result-set rings whose buffers are retained by
a garbage collector until the client has read every chunk. The ring and
slot layouts are part of the ABI shared with existing clients.
*/
package ipc
