package datastore

import (
	"os"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/framework"
)

// Resource owns the datastore log location and enumerates the files a
// backup would copy.
type Resource struct {
	logLocation string
}

// NewResource creates the datastore resource.
func NewResource() *Resource {
	return &Resource{}
}

// ID implements framework.Resource.
func (r *Resource) ID() uint32 {
	return framework.ResourceIDDatastore
}

// Label implements framework.Component.
func (r *Resource) Label() string {
	return "datastore_resource"
}

// Setup reads the [data_store] section.
func (r *Resource) Setup(env *framework.Environment) error {
	if sec := env.Config().Section("data_store"); sec != nil {
		r.logLocation, _ = sec.GetString("log_location")
	}
	return nil
}

// Start implements framework.Component.
func (r *Resource) Start(*framework.Environment) error {
	return nil
}

// Shutdown implements framework.Component.
func (r *Resource) Shutdown(*framework.Environment) error {
	return nil
}

// ListBackupFiles returns the files under the log location. An empty or
// missing location yields an empty list.
func (r *Resource) ListBackupFiles() []string {
	if r.logLocation == "" {
		return nil
	}
	var out []string
	_ = filepath.WalkDir(r.logLocation, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	return out
}
