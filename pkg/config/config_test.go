package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	sec := cfg.Section("sql")
	require.NotNil(t, sec)
	n, ok := sec.GetInt("thread_pool_size")
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	lazy, ok := sec.GetBool("lazy_worker")
	assert.True(t, ok)
	assert.False(t, lazy)

	ipc := cfg.Section("ipc_endpoint")
	require.NotNil(t, ipc)
	name, ok := ipc.GetString("database_name")
	assert.True(t, ok)
	assert.Equal(t, "burrow", name)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such-file.ini"))
	require.NoError(t, err)

	sec := cfg.Section("stream_endpoint")
	require.NotNil(t, sec)
	port, ok := sec.GetInt("port")
	assert.True(t, ok)
	assert.Equal(t, 12345, port)
}

func TestPropertyFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burrow.ini")
	content := "[ipc_endpoint]\ndatabase_name=testdb\nthreads=10\n\n[stream_endpoint]\nport=23456\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	ipc := cfg.Section("ipc_endpoint")
	name, _ := ipc.GetString("database_name")
	assert.Equal(t, "testdb", name)
	threads, _ := ipc.GetUint("threads")
	assert.Equal(t, uint64(10), threads)

	// untouched key falls back to the default
	admin, ok := ipc.GetUint("admin_sessions")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), admin)

	port, _ := cfg.Section("stream_endpoint").GetInt("port")
	assert.Equal(t, 23456, port)
}

func TestOrphanSectionFails(t *testing.T) {
	_, err := LoadString("[no_such_section]\nkey=1\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphan entry")
}

func TestOrphanKeyFails(t *testing.T) {
	_, err := LoadString("[sql]\nno_such_key=1\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphan entry")
}

func TestMalformedLineFails(t *testing.T) {
	_, err := LoadString("[sql]\nthread_pool_size\n")
	require.Error(t, err)
}

func TestCommentsAndBlankLines(t *testing.T) {
	cfg, err := LoadString("# comment\n\n[sql]\n; another comment\nthread_pool_size=7\n")
	require.NoError(t, err)
	n, _ := cfg.Section("sql").GetInt("thread_pool_size")
	assert.Equal(t, 7, n)
}

func TestUnknownSectionLookupReturnsNil(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, cfg.Section("no_such_section"))
}
