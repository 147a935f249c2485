package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

func TestNamespace(t *testing.T) {
	a := Namespace("https://api.clinic.example/")
	b := Namespace("HTTPS://api.clinic.example")
	c := Namespace("https://staging.clinic.example")

	assert.Equal(t, a, b, "trailing slash and case are normalized")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	path := filepath.Join(t.TempDir(), "s.json")
	store, err = Open(ctx, Options{Backend: BackendFile, File: path, Passphrase: "pw"})
	require.NoError(t, err)
	fs, ok := store.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, path, fs.Path())
	assert.True(t, fs.Encrypted())
	assert.NoError(t, Close(store))

	_, err = Open(ctx, Options{Backend: "etcd"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStore))

	_, err = Open(ctx, Options{Backend: BackendRedis, RedisURL: "::not a url"})
	require.Error(t, err)
}

func TestDefaultFilePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	path, err := DefaultFilePath("https://api.clinic.example")
	require.NoError(t, err)
	assert.Contains(t, path, filepath.Join("practicedesk", "session-"+Namespace("https://api.clinic.example")+".json"))
}
