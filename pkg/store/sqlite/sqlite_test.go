package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/store/core"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, `"producto"`, quote("producto"))
	assert.Equal(t, `"pro""ducto"`, quote(`pro"ducto`))
}

func TestOpenMissingFile(t *testing.T) {
	c := New(core.Params{Host: filepath.Join(t.TempDir(), "nope.sqlite")})

	err := c.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}

func TestOperationsRequireOpen(t *testing.T) {
	c := New(core.Params{Host: "ignored.sqlite"})

	_, err := c.ListTables(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))

	// Close before Open is a no-op.
	assert.NoError(t, c.Close())
}
