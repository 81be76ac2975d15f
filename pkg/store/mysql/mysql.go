// Package mysql implements the MySQL engine connector on top of
// go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/logger"
	"github.com/tiendalink/tiendasync/pkg/store/core"
	"github.com/tiendalink/tiendasync/pkg/store/registry"
	"github.com/tiendalink/tiendasync/pkg/store/sqlutil"
)

const defaultPort = "3306"

func init() {
	registry.MustRegister(core.EngineMySQL, func(params core.Params) core.Connector {
		return New(params)
	})
}

// Connector is the MySQL engine connector.
type Connector struct {
	params core.Params
	db     *sql.DB
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates an unopened MySQL connector.
func New(params core.Params) *Connector {
	return &Connector{
		params: params,
		logger: logger.Get().With(
			zap.String("engine", string(core.EngineMySQL)),
			zap.String("host", params.Host),
			zap.String("database", params.Database)),
	}
}

// Engine reports the engine family.
func (c *Connector) Engine() core.Engine { return core.EngineMySQL }

// Open establishes the connection. Idempotent if already open.
func (c *Connector) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	db, err := sql.Open("mysql", dsn(c.params))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open mysql connection")
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "mysql server unreachable or credentials rejected").
			WithDetail("host", c.params.Host).
			WithDetail("database", c.params.Database)
	}

	c.db = db
	c.logger.Debug("mysql connection opened")
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
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close mysql connection")
	}
	return nil
}

// ListTables returns base tables of the configured schema.
func (c *Connector) ListTables(ctx context.Context) ([]string, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = ? AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, c.params.Database)
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

// ListColumns returns table's columns by ordinal position.
func (c *Connector) ListColumns(ctx context.Context, table string) ([]string, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = ? AND table_name = ?
		 ORDER BY ordinal_position`, c.params.Database, table)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to list columns").
			WithDetail("table", table)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan column name")
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

// MarkSynced flags every row of batch as synced inside one transaction.
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

// dsn builds the driver DSN from connection params. Hosts without an
// explicit port get the MySQL default.
func dsn(params core.Params) string {
	addr := params.Host
	if !strings.Contains(addr, ":") {
		addr += ":" + defaultPort
	}

	cfg := gomysql.NewConfig()
	cfg.User = params.User
	cfg.Passwd = params.Password
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.DBName = params.Database
	cfg.ParseTime = true
	cfg.Timeout = 10 * time.Second
	return cfg.FormatDSN()
}

// quote escapes an identifier with MySQL backtick quoting.
func quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}
