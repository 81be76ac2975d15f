// Package resolver detects which storage engine a host string belongs
// to by probing candidate engines in a fixed order.
package resolver

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/logger"
	"github.com/tiendalink/tiendasync/pkg/store/core"
	"github.com/tiendalink/tiendasync/pkg/store/registry"
)

// fileSuffixes mark a host string as a file-engine database path.
var fileSuffixes = []string{".sqlite", ".sqlite3", ".db"}

// ProbeOrder is the fixed order in which server engines are attempted.
// Host syntax and credentials do not disambiguate the engine family, so
// the resolver pays one connection round-trip per candidate instead of
// guessing.
var ProbeOrder = []core.Engine{core.EngineSQLServer, core.EngineMySQL, core.EnginePostgres}

// Factory creates a connector candidate for probing.
type Factory func(engine core.Engine, params core.Params) (core.Connector, error)

// Resolver probes engines to find a usable connector for a host string.
type Resolver struct {
	factory Factory
	order   []core.Engine
	logger  *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithFactory overrides how candidate connectors are built. Used by
// tests to inject fakes.
func WithFactory(f Factory) Option {
	return func(r *Resolver) { r.factory = f }
}

// WithOrder overrides the server-engine probe order.
func WithOrder(order []core.Engine) Option {
	return func(r *Resolver) { r.order = order }
}

// New creates a Resolver backed by the global engine registry.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		factory: registry.Create,
		order:   ProbeOrder,
		logger:  logger.Get().With(zap.String("component", "resolver")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsFilePath reports whether host names a file-engine database.
func IsFilePath(host string) bool {
	lower := strings.ToLower(host)
	for _, suffix := range fileSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Resolve finds a working connector for params, opened and verified to
// expose at least one table. The caller owns the returned connector and
// must Close it.
func (r *Resolver) Resolve(ctx context.Context, params core.Params) (core.Connector, error) {
	if IsFilePath(params.Host) {
		return r.resolveFile(ctx, params)
	}
	return r.resolveServer(ctx, params)
}

func (r *Resolver) resolveFile(ctx context.Context, params core.Params) (core.Connector, error) {
	if _, err := os.Stat(params.Host); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "database file not found").
			WithDetail("path", params.Host)
	}

	conn, err := r.factory(core.EngineSQLite, params)
	if err != nil {
		return nil, err
	}
	if err := conn.Open(ctx); err != nil {
		return nil, err
	}

	tables, err := conn.ListTables(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if len(tables) == 0 {
		conn.Close()
		return nil, errors.Newf(errors.ErrorTypeEmptyDatabase,
			"database file %s contains no tables", params.Host)
	}

	r.logger.Info("file engine resolved",
		zap.String("path", params.Host), zap.Int("tables", len(tables)))
	return conn, nil
}

type probeError struct {
	engine core.Engine
	err    error
}

func (r *Resolver) resolveServer(ctx context.Context, params core.Params) (core.Connector, error) {
	var probeErrs []probeError

	for _, engine := range r.order {
		conn, err := r.factory(engine, params)
		if err != nil {
			probeErrs = append(probeErrs, probeError{engine, err})
			continue
		}

		if err := conn.Open(ctx); err != nil {
			r.logger.Debug("engine probe failed",
				zap.String("engine", string(engine)), zap.Error(err))
			probeErrs = append(probeErrs, probeError{engine, err})
			continue
		}

		tables, err := conn.ListTables(ctx)
		if err != nil {
			conn.Close()
			probeErrs = append(probeErrs, probeError{engine, err})
			continue
		}

		// A valid login against an empty schema is indistinguishable
		// from a wrong-engine login, so keep probing.
		if len(tables) == 0 {
			r.logger.Debug("engine opened but exposes no tables",
				zap.String("engine", string(engine)))
			conn.Close()
			continue
		}

		r.logger.Info("server engine resolved",
			zap.String("engine", string(engine)),
			zap.String("host", params.Host),
			zap.Int("tables", len(tables)))
		return conn, nil
	}

	if len(probeErrs) > 0 {
		first := probeErrs[0].err
		err := errors.Wrap(first, errors.TypeOf(first), "no engine accepted the connection").
			WithDetail("host", params.Host)
		for _, pe := range probeErrs {
			err = err.WithDetail(string(pe.engine), pe.err.Error())
		}
		return nil, err
	}

	return nil, errors.Newf(errors.ErrorTypeEmptyDatabase,
		"no usable database found at %s", params.Host)
}
