// Package sync sequences a sync run: per-table extraction,
// transformation, upload and synced-marking in dependency order.
package sync

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/logger"
	"github.com/tiendalink/tiendasync/pkg/session"
	"github.com/tiendalink/tiendasync/pkg/store/core"
)

// DependencyOrder is the fixed table sequence that keeps foreign-key
// references resolvable on the remote side: independent entities
// before their referrers.
var DependencyOrder = []string{"producto", "cliente", "venta", "detalleventa"}

// Transformer reshapes a batch into wire rows.
type Transformer interface {
	Transform(batch *core.RecordBatch) ([]map[string]interface{}, error)
}

// Remote uploads transformed rows to the table's endpoint.
type Remote interface {
	Upload(ctx context.Context, token, table string, rows []map[string]interface{}) error
}

// Summary describes a completed (or cancelled) run.
type Summary struct {
	// Uploaded maps table name to the number of rows uploaded.
	Uploaded map[string]int
	// Skipped lists tables skipped for non-fatal reasons.
	Skipped []string
	// Cancelled is set when the credential prompt was dismissed.
	Cancelled bool
	// Duration is the wall time of the run.
	Duration time.Duration
}

// Orchestrator drives sync runs over one connector. At most one run is
// active at a time; triggers arriving mid-run are dropped, not queued.
type Orchestrator struct {
	conn        core.Connector
	transformer Transformer
	remote      Remote
	session     *session.Manager
	logger      *zap.Logger
	running     atomic.Bool
}

// New creates an Orchestrator.
func New(conn core.Connector, transformer Transformer, remote Remote, sess *session.Manager) *Orchestrator {
	return &Orchestrator{
		conn:        conn,
		transformer: transformer,
		remote:      remote,
		session:     sess,
		logger:      logger.Get().With(zap.String("component", "orchestrator")),
	}
}

// Running reports whether a run is currently active.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Authorized ensures a live session and returns its token, for remote
// read operations that share the session but perform no writes.
// ok=false without error means the credential prompt was cancelled.
func (o *Orchestrator) Authorized(ctx context.Context) (token string, ok bool, err error) {
	return o.session.Ensure(ctx)
}

// Run executes one sync over the selected tables. The selection is
// intersected with and reordered by DependencyOrder; unrecognized
// names are dropped with a log. A cancelled credential prompt returns
// a cancelled Summary and no error. Any upload failure aborts the
// remainder of the run; tables already marked synced stay marked.
func (o *Orchestrator) Run(ctx context.Context, tables []string) (*Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, errors.New(errors.ErrorTypeValidation, "a sync run is already active")
	}
	defer o.running.Store(false)

	start := time.Now()
	summary := &Summary{Uploaded: make(map[string]int)}

	token, ok, err := o.session.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		o.logger.Info("sync run cancelled at credential prompt")
		summary.Cancelled = true
		summary.Duration = time.Since(start)
		return summary, nil
	}

	ordered := orderTables(tables, o.logger)
	for _, table := range ordered {
		if err := o.syncTable(ctx, token, table, summary); err != nil {
			// A rejected token mid-run means the session is dead;
			// expire it so the next run re-authenticates.
			if errors.IsType(err, errors.ErrorTypeAuthentication) {
				o.session.Invalidate()
			}
			o.logger.Error("sync run aborted",
				zap.String("table", table), zap.Error(err))
			return nil, err
		}
	}

	summary.Duration = time.Since(start)
	o.logger.Info("sync run complete",
		zap.Any("uploaded", summary.Uploaded),
		zap.Strings("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// syncTable runs steps 1-6 for one table. A nil return either synced
// the table or skipped it for a non-fatal reason recorded in summary.
func (o *Orchestrator) syncTable(ctx context.Context, token, table string, summary *Summary) error {
	log := o.logger.With(zap.String("table", table))

	columns, err := o.conn.ListColumns(ctx, table)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		log.Warn("table has no columns, skipping")
		summary.Skipped = append(summary.Skipped, table)
		return nil
	}

	batch, err := o.conn.ReadUnsynced(ctx, table, columns)
	if err != nil {
		return err
	}
	if batch.Empty() {
		log.Debug("no unsynced rows")
		return nil
	}

	rows, err := o.transformer.Transform(batch)
	if err != nil {
		// Transformation problems are best-effort: skip the table,
		// keep the run alive.
		if errors.IsType(err, errors.ErrorTypeTransformation) {
			log.Error("transformation failed, skipping table",
				zap.Int("rows", batch.Len()), zap.Error(err))
			summary.Skipped = append(summary.Skipped, table)
			return nil
		}
		return err
	}

	if err := o.remote.Upload(ctx, token, table, rows); err != nil {
		return err
	}

	if err := o.conn.MarkSynced(ctx, table, batch); err != nil {
		return err
	}

	summary.Uploaded[table] = len(rows)
	log.Info("table synced",
		zap.Int("read", batch.Len()), zap.Int("uploaded", len(rows)))
	return nil
}

// Schedule runs the orchestrator on a fixed interval until ctx is
// cancelled. A tick landing while a run is active is skipped.
func (o *Orchestrator) Schedule(ctx context.Context, interval time.Duration, tables []string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Run(ctx, tables); err != nil {
				if errors.IsType(err, errors.ErrorTypeValidation) {
					o.logger.Debug("timer tick skipped, run already active")
					continue
				}
				o.logger.Error("scheduled sync failed", zap.Error(err))
			}
		}
	}
}

// orderTables intersects the selection with DependencyOrder and sorts
// it by the order's index. The index is the only sort key; names not
// in the order are dropped with a log.
func orderTables(selection []string, log *zap.Logger) []string {
	selected := make(map[string]bool, len(selection))
	for _, name := range selection {
		selected[strings.ToLower(name)] = true
	}

	ordered := make([]string, 0, len(selection))
	for _, name := range DependencyOrder {
		if selected[name] {
			ordered = append(ordered, name)
			delete(selected, name)
		}
	}
	for name := range selected {
		log.Warn("unrecognized table dropped from selection",
			zap.String("table", name))
	}
	return ordered
}
