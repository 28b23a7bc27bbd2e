package api

import (
	"net/http"
	"testing"

	"nanohost/storage-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteMatchesInvoicePrice(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rec, quote := doJSON(t, a.Router, http.MethodPost, "/quote", map[string]any{
		"fileSize":        5_000_000_000,
		"retentionPeriod": 525600,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, invoice := doJSON(t, a.Router, http.MethodPost, "/invoice", map[string]any{
		"fileSize":        5_000_000_000,
		"retentionPeriod": 525600,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, invoice["amount"], quote["amount"])
}

func TestQuoteHasNoSideEffects(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rec, _ := doJSON(t, a.Router, http.MethodPost, "/quote", map[string]any{
		"fileSize":        65000,
		"retentionPeriod": 525600,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var orders, files int64
	require.NoError(t, a.DB.Model(model.Order{}).Count(&orders).Error)
	require.NoError(t, a.DB.Model(model.File{}).Count(&files).Error)
	assert.Zero(t, orders)
	assert.Zero(t, files)

	var ctr model.DerivationCounter
	require.NoError(t, a.DB.First(&ctr, 1).Error)
	assert.Zero(t, ctr.Next, "quotes must not burn derivation indexes")
}

func TestQuoteValidation(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rec, body := doJSON(t, a.Router, http.MethodPost, "/quote", map[string]any{
		"fileSize": 65000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errNoRetentionPeriod, body["code"])

	rec, body = doJSON(t, a.Router, http.MethodPost, "/quote", map[string]any{
		"fileSize":        65000,
		"retentionPeriod": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errInvalidRetention, body["code"])
}
