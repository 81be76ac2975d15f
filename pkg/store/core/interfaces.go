// Package core defines the capability contract every storage engine
// connector implements, plus the record types that flow through it.
package core

import (
	"context"
	"strings"
)

// Engine identifies a storage engine family.
type Engine string

const (
	EngineSQLite    Engine = "sqlite"
	EngineSQLServer Engine = "sqlserver"
	EngineMySQL     Engine = "mysql"
	EnginePostgres  Engine = "postgres"
)

// Conventional column names shared by every engine. A table that carries
// SyncedColumn tracks per-row transmission state keyed by IDColumn.
const (
	SyncedColumn = "sincronizado"
	IDColumn     = "id"
)

// Params holds everything needed to open a connection to any engine.
// Host is a network address for the server engines and a filesystem
// path for the file engine.
type Params struct {
	Host           string `yaml:"host" json:"host"`
	Database       string `yaml:"database" json:"database"`
	User           string `yaml:"user" json:"user"`
	Password       string `yaml:"password" json:"password"`
	IntegratedAuth bool   `yaml:"integrated_auth" json:"integrated_auth"`
}

// Row is a single record: column name to scalar value. Values are one of
// string, int64, float64, bool, time.Time or nil as produced by the
// engine drivers.
type Row map[string]interface{}

// RecordBatch is an ordered set of rows read from one table. Columns
// preserves the table's ordinal column order for the batch's lifetime.
type RecordBatch struct {
	Table   string
	Columns []string
	Rows    []Row
}

// Len returns the number of rows in the batch.
func (b *RecordBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Empty reports whether the batch holds no rows.
func (b *RecordBatch) Empty() bool {
	return b.Len() == 0
}

// HasColumn reports whether the batch's column set contains name,
// compared case-insensitively.
func (b *RecordBatch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// Connector is the uniform capability contract over the four storage
// engines. Implementations are independent of each other and compose
// only against this interface.
type Connector interface {
	// Engine reports which engine family the connector speaks.
	Engine() Engine

	// Open establishes the underlying connection. Calling Open on an
	// already-open connector is a no-op.
	Open(ctx context.Context) error

	// Close releases the connection. Safe to call when already closed.
	Close() error

	// ListTables returns the table names visible to the current
	// credentials, excluding engine-internal system tables.
	ListTables(ctx context.Context) ([]string, error)

	// ListColumns returns the column names of table in ordinal order.
	ListColumns(ctx context.Context, table string) ([]string, error)

	// ReadTable reads a full projection of table. An empty columns
	// slice means all columns.
	ReadTable(ctx context.Context, table string, columns []string) (*RecordBatch, error)

	// ReadUnsynced behaves like ReadTable but filters to rows whose
	// synced flag is unset. Tables without the flag column return
	// every row.
	ReadUnsynced(ctx context.Context, table string, columns []string) (*RecordBatch, error)

	// MarkSynced sets the synced flag on every row of batch, keyed by
	// the identity column. A table without the flag column is a no-op;
	// any per-row update failure propagates as an error.
	MarkSynced(ctx context.Context, table string, batch *RecordBatch) error
}
