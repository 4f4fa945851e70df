/*
Package metrics exposes Burrow's Prometheus metrics: session lifecycle
counters per transport, connection ring slot usage, scheduler throughput
and queue depth, and registry size.

Metrics are registered in init; Handler serves them over HTTP. The
Collector samples the scheduler and the session registry on a fixed
interval, the counters are updated inline by the endpoints.
*/
package metrics
