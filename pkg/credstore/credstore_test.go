package credstore

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/store/core"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.yaml")
	store := NewFileStore(path)

	params := core.Params{
		Host:           "db.local:1433",
		Database:       "tienda",
		User:           "sync",
		Password:       "s3cret",
		IntegratedAuth: true,
	}
	require.NoError(t, store.Save(params))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, params, loaded)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestFileStoreMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
