package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/store/core"
)

// fakeConnector scripts Open/ListTables outcomes for probe tests.
type fakeConnector struct {
	core.Connector

	engine  core.Engine
	openErr error
	tables  []string
	opened  bool
	closed  bool
}

func (f *fakeConnector) Engine() core.Engine { return f.engine }

func (f *fakeConnector) Open(ctx context.Context) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeConnector) Close() error {
	f.closed = true
	return nil
}

func (f *fakeConnector) ListTables(ctx context.Context) ([]string, error) {
	return f.tables, nil
}

func fakeFactory(fakes map[core.Engine]*fakeConnector) Factory {
	return func(engine core.Engine, params core.Params) (core.Connector, error) {
		return fakes[engine], nil
	}
}

func TestIsFilePath(t *testing.T) {
	assert.True(t, IsFilePath("/data/tienda.sqlite"))
	assert.True(t, IsFilePath(`C:\data\TIENDA.DB`))
	assert.True(t, IsFilePath("local.sqlite3"))
	assert.False(t, IsFilePath("db.example.com"))
	assert.False(t, IsFilePath("192.168.0.10:1433"))
}

func TestResolveMissingFile(t *testing.T) {
	r := New()
	path := filepath.Join(t.TempDir(), "missing.sqlite")

	_, err := r.Resolve(context.Background(), core.Params{Host: path})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestResolveEmptyFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sqlite")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	fake := &fakeConnector{engine: core.EngineSQLite}
	r := New(WithFactory(fakeFactory(map[core.Engine]*fakeConnector{
		core.EngineSQLite: fake,
	})))

	_, err := r.Resolve(context.Background(), core.Params{Host: path})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeEmptyDatabase))
	assert.True(t, fake.closed, "empty database connector must be closed")
}

func TestResolveFileSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tienda.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	fake := &fakeConnector{engine: core.EngineSQLite, tables: []string{"producto"}}
	r := New(WithFactory(fakeFactory(map[core.Engine]*fakeConnector{
		core.EngineSQLite: fake,
	})))

	conn, err := r.Resolve(context.Background(), core.Params{Host: path})
	require.NoError(t, err)
	assert.Equal(t, core.EngineSQLite, conn.Engine())
	assert.False(t, fake.closed)
}

func TestResolveThirdCandidateWins(t *testing.T) {
	fakes := map[core.Engine]*fakeConnector{
		core.EngineSQLServer: {engine: core.EngineSQLServer, openErr: errors.New(errors.ErrorTypeConnection, "login rejected")},
		core.EngineMySQL:     {engine: core.EngineMySQL, openErr: errors.New(errors.ErrorTypeConnection, "login rejected")},
		core.EnginePostgres:  {engine: core.EnginePostgres, tables: []string{"producto", "venta"}},
	}
	r := New(WithFactory(fakeFactory(fakes)))

	conn, err := r.Resolve(context.Background(), core.Params{Host: "db.local"})
	require.NoError(t, err)
	assert.Equal(t, core.EnginePostgres, conn.Engine())
}

func TestResolveAllCandidatesFail(t *testing.T) {
	fakes := map[core.Engine]*fakeConnector{
		core.EngineSQLServer: {engine: core.EngineSQLServer, openErr: errors.New(errors.ErrorTypeConnection, "sqlserver down")},
		core.EngineMySQL:     {engine: core.EngineMySQL, openErr: errors.New(errors.ErrorTypeConnection, "mysql down")},
		core.EnginePostgres:  {engine: core.EnginePostgres, openErr: errors.New(errors.ErrorTypeConnection, "postgres down")},
	}
	r := New(WithFactory(fakeFactory(fakes)))

	_, err := r.Resolve(context.Background(), core.Params{Host: "db.local"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	// First captured error drives the message; every probe is attached.
	assert.Contains(t, err.Error(), "sqlserver down")
	var structured *errors.Error
	require.ErrorAs(t, err, &structured)
	assert.Len(t, structured.Details, 4) // host plus one detail per engine
}

func TestResolveAllEmptySchemas(t *testing.T) {
	fakes := map[core.Engine]*fakeConnector{
		core.EngineSQLServer: {engine: core.EngineSQLServer},
		core.EngineMySQL:     {engine: core.EngineMySQL},
		core.EnginePostgres:  {engine: core.EnginePostgres},
	}
	r := New(WithFactory(fakeFactory(fakes)))

	_, err := r.Resolve(context.Background(), core.Params{Host: "db.local"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeEmptyDatabase))
	for _, f := range fakes {
		assert.True(t, f.closed, "empty-schema candidates must be disposed")
	}
}

func TestResolveProbeOrderIsDeterministic(t *testing.T) {
	var attempts []core.Engine
	r := New(WithFactory(func(engine core.Engine, params core.Params) (core.Connector, error) {
		attempts = append(attempts, engine)
		return &fakeConnector{engine: engine, openErr: errors.New(errors.ErrorTypeConnection, "down")}, nil
	}))

	_, _ = r.Resolve(context.Background(), core.Params{Host: "db.local"})
	assert.Equal(t, []core.Engine{core.EngineSQLServer, core.EngineMySQL, core.EnginePostgres}, attempts)
}
