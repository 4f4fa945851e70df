/*
Package log provides structured logging for Burrow built on zerolog.

The package exposes a global logger configured once at startup via Init,
plus helpers that derive child loggers carrying the fields Burrow components
tag their records with (component, session_id, endpoint, worker_index).

Output is either human-readable console format (development) or JSON
(production), selected through Config.JSONOutput.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("stream_endpoint")
	logger.Info().Uint64("session_id", id).Msg("session started")
*/
package log
