/*
Package scheduler implements Burrow's stealing-based task scheduler.

Each worker owns three queues: a local queue for ordinary tasks, a sticky
queue for tasks pinned to the worker, and a delayed queue for tasks with an
earliest-execution moment. Workers drain sticky first, then ready delayed
tasks, then local work, and finally steal from other workers' local queues,
scanning victims from the last successful victim forward. Sticky tasks are
never stolen.

A shared conditional queue holds tasks guarded by a predicate. A single
watcher goroutine drains it on every tick, runs the tasks whose check holds,
and pushes the rest back. Panics inside a check or a body are logged and
swallowed so one buggy watcher task cannot crash the server.

Tasks scheduled before Start are buffered per worker and flushed when the
scheduler starts.
*/
package scheduler
