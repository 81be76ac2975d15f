package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/logger"
	"github.com/tiendalink/tiendasync/pkg/session"
	"github.com/tiendalink/tiendasync/pkg/store/core"
	"github.com/tiendalink/tiendasync/pkg/transform"
)

// memConnector is an in-memory core.Connector: tables hold rows, and
// marking synced removes them from the unsynced view.
type memConnector struct {
	core.Connector

	mu     gosync.Mutex
	tables map[string]*core.RecordBatch
	marked map[string][]core.Row
}

func newMemConnector() *memConnector {
	return &memConnector{
		tables: make(map[string]*core.RecordBatch),
		marked: make(map[string][]core.Row),
	}
}

func (m *memConnector) put(table string, columns []string, rows ...core.Row) {
	m.tables[table] = &core.RecordBatch{Table: table, Columns: columns, Rows: rows}
}

func (m *memConnector) ListColumns(ctx context.Context, table string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.tables[table]; ok {
		return b.Columns, nil
	}
	return nil, nil
}

func (m *memConnector) ReadUnsynced(ctx context.Context, table string, columns []string) (*core.RecordBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.tables[table]
	if !ok {
		return &core.RecordBatch{Table: table, Columns: columns}, nil
	}
	out := &core.RecordBatch{Table: table, Columns: b.Columns}
	out.Rows = append(out.Rows, b.Rows...)
	return out, nil
}

func (m *memConnector) MarkSynced(ctx context.Context, table string, batch *core.RecordBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[table] = append(m.marked[table], batch.Rows...)
	m.tables[table].Rows = nil
	return nil
}

// recordingRemote captures uploads and can fail on chosen tables.
type recordingRemote struct {
	mu      gosync.Mutex
	uploads []string
	rows    map[string][]map[string]interface{}
	failOn  map[string]error
	block   chan struct{}
}

func newRecordingRemote() *recordingRemote {
	return &recordingRemote{
		rows:   make(map[string][]map[string]interface{}),
		failOn: make(map[string]error),
	}
}

func (r *recordingRemote) Upload(ctx context.Context, token, table string, rows []map[string]interface{}) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failOn[table]; err != nil {
		return err
	}
	r.uploads = append(r.uploads, table)
	r.rows[table] = rows
	return nil
}

func newTestSession() *session.Manager {
	login := func(ctx context.Context, username, password string) (string, error) {
		return "tok-test", nil
	}
	provider := session.CredentialProviderFunc(func(ctx context.Context) (session.Credentials, bool, error) {
		return session.Credentials{Username: "caja1", Password: "s3cret"}, true, nil
	})
	return session.NewManager(login, provider)
}

func newOrchestrator(conn core.Connector, remote Remote) *Orchestrator {
	return New(conn, transform.New(), remote, newTestSession())
}

func seedAllTables(conn *memConnector) {
	conn.put("producto", []string{"id", "descripcion"},
		core.Row{"id": int64(1), "descripcion": "cafe"})
	conn.put("cliente", []string{"id", "nombre"},
		core.Row{"id": int64(1), "nombre": "Ana"})
	conn.put("venta", []string{"id", "idcliente", "total"},
		core.Row{"id": int64(1), "idcliente": int64(1), "total": 125.5})
	conn.put("detalleventa", []string{"id", "idventa", "cantidad"},
		core.Row{"id": int64(1), "idventa": int64(1), "cantidad": int64(2)})
}

func TestRunProcessesInDependencyOrder(t *testing.T) {
	conn := newMemConnector()
	seedAllTables(conn)
	remote := newRecordingRemote()
	o := newOrchestrator(conn, remote)

	// Selection arrives out of order; the dependency order wins.
	summary, err := o.Run(context.Background(), []string{"venta", "detalleventa", "producto", "cliente"})
	require.NoError(t, err)
	assert.Equal(t, []string{"producto", "cliente", "venta", "detalleventa"}, remote.uploads)
	assert.False(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Uploaded["venta"])
}

func TestRunSubsetSelection(t *testing.T) {
	conn := newMemConnector()
	seedAllTables(conn)
	remote := newRecordingRemote()
	o := newOrchestrator(conn, remote)

	_, err := o.Run(context.Background(), []string{"venta", "producto"})
	require.NoError(t, err)
	assert.Equal(t, []string{"producto", "venta"}, remote.uploads)
}

func TestRunDropsUnrecognizedTables(t *testing.T) {
	conn := newMemConnector()
	seedAllTables(conn)
	remote := newRecordingRemote()
	o := newOrchestrator(conn, remote)

	summary, err := o.Run(context.Background(), []string{"producto", "inventario"})
	require.NoError(t, err)
	assert.Equal(t, []string{"producto"}, remote.uploads)
	assert.NotContains(t, summary.Uploaded, "inventario")
}

func TestRunUploadFailureAbortsRemainder(t *testing.T) {
	conn := newMemConnector()
	seedAllTables(conn)
	remote := newRecordingRemote()
	remote.failOn["cliente"] = errors.New(errors.ErrorTypeSync, "endpoint down")
	o := newOrchestrator(conn, remote)

	_, err := o.Run(context.Background(), DependencyOrder)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSync))

	// Table 1 stays marked; tables 2-4 were never attempted.
	assert.Equal(t, []string{"producto"}, remote.uploads)
	assert.Len(t, conn.marked["producto"], 1)
	assert.Empty(t, conn.marked["cliente"])
	assert.Empty(t, conn.marked["venta"])
	assert.Empty(t, conn.marked["detalleventa"])
}

func TestRunAuthFailureExpiresSession(t *testing.T) {
	conn := newMemConnector()
	seedAllTables(conn)
	remote := newRecordingRemote()
	remote.failOn["cliente"] = errors.New(errors.ErrorTypeAuthentication, "token rejected")

	sess := newTestSession()
	o := New(conn, transform.New(), remote, sess)

	_, err := o.Run(context.Background(), DependencyOrder)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))

	// The dead token must not be reused: the session is expired so
	// the next run re-authenticates.
	assert.Equal(t, session.StateExpired, sess.State())
}

func TestRunMarksOnlyAfterUpload(t *testing.T) {
	conn := newMemConnector()
	conn.put("producto", []string{"id", "descripcion"},
		core.Row{"id": int64(1), "descripcion": "cafe"},
		core.Row{"id": int64(2), "descripcion": "azucar"})
	remote := newRecordingRemote()
	o := newOrchestrator(conn, remote)

	_, err := o.Run(context.Background(), []string{"producto"})
	require.NoError(t, err)
	assert.Len(t, conn.marked["producto"], 2)

	// A second run finds nothing unsynced and uploads nothing.
	_, err = o.Run(context.Background(), []string{"producto"})
	require.NoError(t, err)
	assert.Equal(t, []string{"producto"}, remote.uploads)
}

func TestRunCancelledPrompt(t *testing.T) {
	conn := newMemConnector()
	seedAllTables(conn)
	remote := newRecordingRemote()

	provider := session.CredentialProviderFunc(func(ctx context.Context) (session.Credentials, bool, error) {
		return session.Credentials{}, false, nil
	})
	login := func(ctx context.Context, username, password string) (string, error) {
		t.Fatal("login must not be reached on cancel")
		return "", nil
	}
	o := New(conn, transform.New(), remote, session.NewManager(login, provider))

	summary, err := o.Run(context.Background(), DependencyOrder)
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Empty(t, remote.uploads)
}

func TestRunTransformationErrorSkipsTable(t *testing.T) {
	conn := newMemConnector()
	conn.put("producto", []string{"id", "raro"},
		core.Row{"id": int64(1), "raro": make(chan int)})
	conn.put("cliente", []string{"id", "nombre"},
		core.Row{"id": int64(1), "nombre": "Ana"})
	remote := newRecordingRemote()
	o := newOrchestrator(conn, remote)

	summary, err := o.Run(context.Background(), []string{"producto", "cliente"})
	require.NoError(t, err)
	assert.Contains(t, summary.Skipped, "producto")
	assert.Equal(t, []string{"cliente"}, remote.uploads)
	assert.Empty(t, conn.marked["producto"], "skipped table must not be marked")
}

func TestRunGuardDropsOverlappingRuns(t *testing.T) {
	conn := newMemConnector()
	seedAllTables(conn)
	remote := newRecordingRemote()
	remote.block = make(chan struct{})
	o := newOrchestrator(conn, remote)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := o.Run(context.Background(), []string{"producto"})
		assert.NoError(t, err)
	}()

	// Wait for the first run to reach the blocked upload.
	require.Eventually(t, o.Running, time.Second, time.Millisecond)

	_, err := o.Run(context.Background(), []string{"producto"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	close(remote.block)
	<-done
	assert.False(t, o.Running())
}

func TestOrderTables(t *testing.T) {
	log := logger.Get()
	got := orderTables([]string{"VENTA", "producto"}, log)
	assert.Equal(t, []string{"producto", "venta"}, got)

	got = orderTables([]string{"nada"}, log)
	assert.Empty(t, got)
}
