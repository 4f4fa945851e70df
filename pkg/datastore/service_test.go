package datastore_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/datastore"
	"github.com/cuemby/burrow/pkg/framework"
	"github.com/cuemby/burrow/pkg/loopback"
)

type testRequest struct {
	payload []byte
}

func (r *testRequest) SessionID() uint64               { return 42 }
func (r *testRequest) ServiceID() uint32               { return framework.ServiceIDDatastore }
func (r *testRequest) Payload() []byte                 { return r.payload }
func (r *testRequest) DatabaseInfo() *api.DatabaseInfo { return &api.DatabaseInfo{Name: "test"} }
func (r *testRequest) SessionInfo() *api.SessionInfo   { return &api.SessionInfo{ID: 42} }

func newDatastoreFixture(t *testing.T, logLocation string) *datastore.Service {
	t.Helper()
	cfg, err := config.LoadString("[data_store]\nlog_location=" + logLocation + "\n")
	require.NoError(t, err)
	env := framework.NewEnvironment(cfg)
	res := datastore.NewResource()
	require.NoError(t, env.Resources().Add(res))
	require.NoError(t, res.Setup(env))
	svc := datastore.NewService()
	require.NoError(t, svc.Setup(env))
	return svc
}

func handle(t *testing.T, svc *datastore.Service, cmd datastore.Command) (*loopback.BufferedResponse, datastore.Reply) {
	t.Helper()
	payload, err := json.Marshal(cmd)
	require.NoError(t, err)
	res := loopback.NewBufferedResponse()
	require.NoError(t, svc.Handle(&testRequest{payload: payload}, res))
	var reply datastore.Reply
	require.NoError(t, json.Unmarshal(res.BodyData(), &reply))
	return res, reply
}

func TestBackupBeginListsFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"wal-000", "wal-001"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("log"), 0o600))
	}
	svc := newDatastoreFixture(t, dir)

	res, reply := handle(t, svc, datastore.Command{Op: "backup_begin"})
	require.Nil(t, reply.Error)
	assert.Equal(t, uint64(42), res.SessionID())
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "wal-000"),
		filepath.Join(dir, "wal-001"),
	}, reply.Files)
}

func TestBackupEstimate(t *testing.T) {
	svc := newDatastoreFixture(t, "")

	res, reply := handle(t, svc, datastore.Command{Op: "backup_estimate"})
	require.Nil(t, reply.Error)
	assert.Equal(t, uint64(123), reply.NumberOfFiles)
	assert.Equal(t, uint64(456), reply.NumberOfBytes)
	assert.Equal(t, api.UnknownSessionID, res.SessionID())
}

func TestRestoreBackupAcknowledged(t *testing.T) {
	svc := newDatastoreFixture(t, "")

	res, reply := handle(t, svc, datastore.Command{Op: "restore_backup"})
	require.Nil(t, reply.Error)
	assert.Equal(t, api.Success, res.Code())
}

func TestUnknownOpReported(t *testing.T) {
	svc := newDatastoreFixture(t, "")

	res, reply := handle(t, svc, datastore.Command{Op: "no_such_op"})
	require.NotNil(t, reply.Error)
	assert.Equal(t, api.ApplicationError, res.Code())
}
