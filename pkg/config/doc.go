/*
Package config loads Burrow's INI-style configuration.

The configuration is a two-layer tree: a built-in default tree covering every
section and key the server understands, and an optional property file layered
over it. Lookups on a Section first consult the property file and then fall
back to the defaults, so a partial property file is always valid. An entry in
the property file with no counterpart in the default tree ("orphan entry")
aborts startup.

Sections consumed by the core:

	[sql]             thread_pool_size, lazy_worker
	[ipc_endpoint]    database_name, threads, admin_sessions
	[stream_endpoint] port, threads
	[fdw]             name, threads
	[data_store]      log_location
*/
package config
