package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordBatchLen(t *testing.T) {
	var nilBatch *RecordBatch
	assert.Equal(t, 0, nilBatch.Len())
	assert.True(t, nilBatch.Empty())

	b := &RecordBatch{
		Table:   "producto",
		Columns: []string{"id", "descripcion"},
		Rows: []Row{
			{"id": int64(1), "descripcion": "cafe"},
			{"id": int64(2), "descripcion": "azucar"},
		},
	}
	assert.Equal(t, 2, b.Len())
	assert.False(t, b.Empty())
}

func TestHasColumn(t *testing.T) {
	b := &RecordBatch{Columns: []string{"Id", "Sincronizado", "precio"}}

	assert.True(t, b.HasColumn("id"))
	assert.True(t, b.HasColumn("SINCRONIZADO"))
	assert.True(t, b.HasColumn(SyncedColumn))
	assert.False(t, b.HasColumn("nombre"))
}
