// Package sqlite implements the file-based engine connector on top of
// mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/logger"
	"github.com/tiendalink/tiendasync/pkg/store/core"
	"github.com/tiendalink/tiendasync/pkg/store/registry"
	"github.com/tiendalink/tiendasync/pkg/store/sqlutil"
)

func init() {
	registry.MustRegister(core.EngineSQLite, func(params core.Params) core.Connector {
		return New(params)
	})
}

// Connector is the SQLite engine connector. Host carries the database
// file path; Database, User and Password are unused by this engine.
type Connector struct {
	params core.Params
	db     *sql.DB
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates an unopened SQLite connector.
func New(params core.Params) *Connector {
	return &Connector{
		params: params,
		logger: logger.Get().With(
			zap.String("engine", string(core.EngineSQLite)),
			zap.String("path", params.Host)),
	}
}

// Engine reports the engine family.
func (c *Connector) Engine() core.Engine { return core.EngineSQLite }

// Open opens the database file. Idempotent if already open.
func (c *Connector) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	if _, err := os.Stat(c.params.Host); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "database file not accessible").
			WithDetail("path", c.params.Host)
	}

	db, err := sql.Open("sqlite3", c.params.Host+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database file")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database file").
			WithDetail("path", c.params.Host)
	}

	c.db = db
	c.logger.Debug("sqlite connection opened")
	return nil
}

// Close releases the connection. Safe when already closed.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close database file")
	}
	return nil
}

// ListTables returns user tables, excluding sqlite internal tables.
func (c *Connector) ListTables(ctx context.Context) ([]string, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "error iterating tables")
	}
	return tables, nil
}

// ListColumns returns table's columns in ordinal order.
func (c *Connector) ListColumns(ctx context.Context, table string) ([]string, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+quote(table)+")")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read table info").
			WithDetail("table", table)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan column info")
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "error iterating columns")
	}
	return columns, nil
}

// ReadTable reads a full projection of table.
func (c *Connector) ReadTable(ctx context.Context, table string, columns []string) (*core.RecordBatch, error) {
	return c.read(ctx, table, columns, "")
}

// ReadUnsynced reads rows whose synced flag is unset. Tables without
// the flag column fall back to a full read.
func (c *Connector) ReadUnsynced(ctx context.Context, table string, columns []string) (*core.RecordBatch, error) {
	flagged, err := c.hasColumn(ctx, table, core.SyncedColumn)
	if err != nil {
		return nil, err
	}
	if !flagged {
		return c.read(ctx, table, columns, "")
	}
	where := quote(core.SyncedColumn) + " = 0 OR " + quote(core.SyncedColumn) + " IS NULL"
	return c.read(ctx, table, columns, where)
}

// MarkSynced flags every row of batch as synced, keyed by the identity
// column, inside a single transaction.
func (c *Connector) MarkSynced(ctx context.Context, table string, batch *core.RecordBatch) error {
	if batch.Empty() {
		return nil
	}

	flagged, err := c.hasColumn(ctx, table, core.SyncedColumn)
	if err != nil {
		return err
	}
	if !flagged {
		return nil
	}

	keyed, err := c.hasColumn(ctx, table, core.IDColumn)
	if err != nil {
		return err
	}
	if !keyed {
		return errors.Newf(errors.ErrorTypeConfig,
			"table %s has a %s column but no %s column to key updates by",
			table, core.SyncedColumn, core.IDColumn)
	}

	db, err := c.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt := "UPDATE " + quote(table) + " SET " + quote(core.SyncedColumn) + " = 1 WHERE " + quote(core.IDColumn) + " = ?"
	for _, row := range batch.Rows {
		id, ok := sqlutil.RowID(row, core.IDColumn)
		if !ok {
			return errors.Newf(errors.ErrorTypeConfig,
				"row in table %s is missing identity column %s", table, core.IDColumn)
		}
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to mark row synced").
				WithDetail("table", table).
				WithDetail("id", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to commit synced marks").
			WithDetail("table", table)
	}

	c.logger.Debug("rows marked synced",
		zap.String("table", table), zap.Int("rows", batch.Len()))
	return nil
}

func (c *Connector) read(ctx context.Context, table string, columns []string, where string) (*core.RecordBatch, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}

	if len(columns) == 0 {
		columns, err = c.ListColumns(ctx, table)
		if err != nil {
			return nil, err
		}
	}

	query := sqlutil.SelectQuery(table, columns, where, quote)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read table").
			WithDetail("table", table)
	}
	defer rows.Close()

	batch, err := sqlutil.ScanBatch(table, columns, rows)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("table read",
		zap.String("table", table), zap.Int("rows", batch.Len()))
	return batch, nil
}

func (c *Connector) hasColumn(ctx context.Context, table, column string) (bool, error) {
	columns, err := c.ListColumns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, col := range columns {
		if strings.EqualFold(col, column) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Connector) handle() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, errors.New(errors.ErrorTypeConnection, "connector is not open")
	}
	return c.db, nil
}

// quote escapes an identifier with SQLite double-quote quoting.
func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
