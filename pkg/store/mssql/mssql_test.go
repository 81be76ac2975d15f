package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tiendalink/tiendasync/pkg/store/core"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, "[detalleventa]", quote("detalleventa"))
	assert.Equal(t, "[ven]]ta]", quote("ven]ta"))
}

func TestConnString(t *testing.T) {
	t.Run("sql login", func(t *testing.T) {
		got := connString(core.Params{Host: "db.local", Database: "tienda", User: "sa", Password: "s3cret"})
		assert.Contains(t, got, "server=db.local")
		assert.Contains(t, got, "database=tienda")
		assert.Contains(t, got, "user id=sa")
		assert.Contains(t, got, "password=s3cret")
		assert.NotContains(t, got, "trusted_connection")
	})

	t.Run("integrated auth drops credentials", func(t *testing.T) {
		got := connString(core.Params{Host: "db.local", Database: "tienda", User: "sa", Password: "s3cret", IntegratedAuth: true})
		assert.Contains(t, got, "trusted_connection=yes")
		assert.NotContains(t, got, "user id")
		assert.NotContains(t, got, "password")
	})
}
