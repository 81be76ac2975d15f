// Package postgres implements the PostgreSQL engine connector on top of
// jackc/pgx.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/logger"
	"github.com/tiendalink/tiendasync/pkg/store/core"
	"github.com/tiendalink/tiendasync/pkg/store/registry"
	"github.com/tiendalink/tiendasync/pkg/store/sqlutil"
)

const defaultPort = "5432"

func init() {
	registry.MustRegister(core.EnginePostgres, func(params core.Params) core.Connector {
		return New(params)
	})
}

// Connector is the PostgreSQL engine connector. Unqualified tables are
// resolved against the public schema.
type Connector struct {
	params core.Params
	pool   *pgxpool.Pool
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates an unopened PostgreSQL connector.
func New(params core.Params) *Connector {
	return &Connector{
		params: params,
		logger: logger.Get().With(
			zap.String("engine", string(core.EnginePostgres)),
			zap.String("host", params.Host),
			zap.String("database", params.Database)),
	}
}

// Engine reports the engine family.
func (c *Connector) Engine() core.Engine { return core.EnginePostgres }

// Open establishes the connection pool. Idempotent if already open.
func (c *Connector) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		return nil
	}

	poolConfig, err := pgxpool.ParseConfig(connString(c.params))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "postgres server unreachable or credentials rejected").
			WithDetail("host", c.params.Host).
			WithDetail("database", c.params.Database)
	}

	c.pool = pool
	c.logger.Debug("postgres connection opened")
	return nil
}

// Close releases the pool. Safe when already closed.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
	return nil
}

// ListTables returns base tables of the public schema.
func (c *Connector) ListTables(ctx context.Context) ([]string, error) {
	pool, err := c.handle()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
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
	pool, err := c.handle()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`, table)
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
	where := quote(core.SyncedColumn) + " = false OR " + quote(core.SyncedColumn) + " IS NULL"
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

	pool, err := c.handle()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	stmt := "UPDATE " + quote(table) + " SET " + quote(core.SyncedColumn) + " = true WHERE " + quote(core.IDColumn) + " = $1"
	for _, row := range batch.Rows {
		id, ok := sqlutil.RowID(row, core.IDColumn)
		if !ok {
			return errors.Newf(errors.ErrorTypeConfig,
				"row in table %s is missing identity column %s", table, core.IDColumn)
		}
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to mark row synced").
				WithDetail("table", table).
				WithDetail("id", id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to commit synced marks").
			WithDetail("table", table)
	}

	c.logger.Debug("rows marked synced",
		zap.String("table", table), zap.Int("rows", batch.Len()))
	return nil
}

func (c *Connector) read(ctx context.Context, table string, columns []string, where string) (*core.RecordBatch, error) {
	pool, err := c.handle()
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
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read table").
			WithDetail("table", table)
	}
	defer rows.Close()

	batch := &core.RecordBatch{Table: table, Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to get row values").
				WithDetail("table", table)
		}
		row := make(core.Row, len(columns))
		for i, col := range columns {
			if i < len(values) {
				row[col] = convertValue(values[i])
			}
		}
		batch.Rows = append(batch.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "error iterating rows").
			WithDetail("table", table)
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

func (c *Connector) handle() (*pgxpool.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		return nil, errors.New(errors.ErrorTypeConnection, "connector is not open")
	}
	return c.pool, nil
}

// convertValue converts pgx values to the connector's scalar set.
func convertValue(value interface{}) interface{} {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

// connString builds a URL-form connection string. Hosts without an
// explicit port get the PostgreSQL default.
func connString(params core.Params) string {
	host := params.Host
	if !strings.Contains(host, ":") {
		host += ":" + defaultPort
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=prefer&connect_timeout=10",
		url.QueryEscape(params.User),
		url.QueryEscape(params.Password),
		host,
		url.PathEscape(params.Database))
}

// quote escapes an identifier with PostgreSQL double-quote quoting.
func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
