// Package transform reshapes storage rows into the remote API's wire
// form: column renames, value normalization and structural dedup.
package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/logger"
	"github.com/tiendalink/tiendasync/pkg/store/core"
)

// dedupSep separates column values inside the composite dedup key. The
// unit separator cannot appear in legitimate column data.
const dedupSep = "\x1f"

// renames maps local column names to wire field names, per table.
// Lookup is case-insensitive; columns not listed pass through unchanged.
var renames = map[string]map[string]string{
	"producto": {
		"codigobarras": "codigoBarras",
	},
	"cliente": {
		"razonsocial": "razonSocial",
	},
	"venta": {
		"idcliente": "clienteId",
		"formapago": "formaPago",
	},
	"detalleventa": {
		"idventa":        "ventaId",
		"idproducto":     "productoId",
		"preciounitario": "precioUnitario",
	},
}

// Transformer converts RecordBatches into wire rows.
type Transformer struct {
	logger *zap.Logger
}

// New creates a Transformer.
func New() *Transformer {
	return &Transformer{
		logger: logger.Get().With(zap.String("component", "transformer")),
	}
}

// Transform renames columns, normalizes values and drops
// exact-duplicate rows, preserving first occurrence and row order.
// Dedup is per-call; it never consults previously synced history.
func (t *Transformer) Transform(batch *core.RecordBatch) ([]map[string]interface{}, error) {
	if batch.Empty() {
		return nil, nil
	}

	dict := renames[strings.ToLower(batch.Table)]

	out := make([]map[string]interface{}, 0, batch.Len())
	seen := make(map[string]struct{}, batch.Len())
	dropped := 0

	for _, row := range batch.Rows {
		wire := make(map[string]interface{}, len(batch.Columns))
		var key strings.Builder

		for i, col := range batch.Columns {
			value, err := normalize(row[col])
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeTransformation, "failed to normalize value").
					WithDetail("table", batch.Table).
					WithDetail("column", col)
			}
			wire[wireName(dict, col)] = value

			if i > 0 {
				key.WriteString(dedupSep)
			}
			key.WriteString(foldForKey(value))
		}

		if _, dup := seen[key.String()]; dup {
			dropped++
			continue
		}
		seen[key.String()] = struct{}{}
		out = append(out, wire)
	}

	if dropped > 0 {
		t.logger.Debug("duplicate rows dropped",
			zap.String("table", batch.Table), zap.Int("dropped", dropped))
	}
	return out, nil
}

// wireName resolves the wire field name for a local column.
func wireName(dict map[string]string, column string) string {
	if dict == nil {
		return column
	}
	if mapped, ok := dict[strings.ToLower(column)]; ok {
		return mapped
	}
	return column
}

// normalize brings a storage scalar into wire form: trimmed strings,
// RFC 3339 timestamps, explicit nulls, everything else as-is.
func normalize(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.TrimSpace(v), nil
	case []byte:
		return strings.TrimSpace(string(v)), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

// foldForKey renders a normalized value for the dedup key: trimmed,
// case-folded, with a stable numeric form.
func foldForKey(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	default:
		return strings.ToLower(fmt.Sprintf("%v", v))
	}
}
