// Package diag defines the diagnostic codes Burrow reports to clients and
// the record type that carries them on the wire.
package diag
