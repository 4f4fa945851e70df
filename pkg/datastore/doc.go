// Package datastore carries the backup and restore service surface. The
// handlers are mocks honouring the documented request contract; the real
// datastore is an external collaborator.
package datastore
