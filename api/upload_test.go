package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nanohost/storage-api/internal/model"
	"nanohost/storage-api/ledger"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doUpload(t *testing.T, a *API, orderID string, content []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if content != nil {
		fw, err := w.CreateFormFile("file", "payload.bin")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	if orderID != "" {
		require.NoError(t, w.WriteField("orderID", orderID))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)

	body := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}

	return rec, body
}

func TestUploadSuccess(t *testing.T) {
	a, wallet, blob := newTestAPI(t)

	content := []byte("hello hosted world, this is the full payload")
	order, file := seedOrder(t, a, true, int64(len(content)), 525600, 1000)

	rec, body := doUpload(t, a, order.OrderID, content)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	digest := sha256.Sum256(content)
	locator := ledger.LocatorForHash(digest[:])

	assert.Equal(t, "success", body["status"])
	assert.Equal(t, locator, body["hash"])
	assert.Equal(t, true, body["published"])
	assert.Equal(t, "https://cdn.example.com/cdn/"+file.ObjectID, body["publicURL"])

	stored, ok := blob.object("cdn/" + file.ObjectID)
	require.True(t, ok)
	assert.Equal(t, content, stored)

	// Exactly one advertisement action, tagged for every lookup path
	require.Equal(t, 1, wallet.actionCount())
	action := wallet.lastAction()
	require.Len(t, action.Outputs, 1)
	assert.EqualValues(t, ledger.AdvertisementStake, action.Outputs[0].Satoshis)
	assert.Contains(t, action.Outputs[0].Tags, ledger.TagProtocol())
	assert.Contains(t, action.Outputs[0].Tags, ledger.TagLocator(locator))
	assert.Contains(t, action.Outputs[0].Tags, ledger.TagUploader(testIdentity))
	assert.Contains(t, action.Outputs[0].Tags, ledger.TagObjectID(file.ObjectID))

	s, err := script.NewFromHex(action.Outputs[0].LockingScript)
	require.NoError(t, err)
	ad, err := ledger.ParseAdvertisement(s)
	require.NoError(t, err)
	assert.Equal(t, digest[:], ad.Hash)
	assert.EqualValues(t, len(content), ad.ContentLength)
	assert.Greater(t, ad.Expiry, time.Now().Unix())

	var after model.File
	require.NoError(t, a.DB.First(&after, file.ID).Error)
	assert.True(t, after.Uploaded)
	assert.True(t, after.Available)
	assert.Equal(t, locator, after.Hash)
	assert.NotEmpty(t, after.MimeType)
	assert.Greater(t, after.DeleteAfter, ad.Expiry, "storage deadline must include the grace window")

	// Storage metadata mirrors the deadline
	exp, ok := blob.expiry("cdn/" + file.ObjectID)
	require.True(t, ok)
	assert.Equal(t, after.DeleteAfter, exp.Unix())

	var orderAfter model.Order
	require.NoError(t, a.DB.Where("order_id = ?", order.OrderID).First(&orderAfter).Error)
	assert.Equal(t, testTxID, orderAfter.AdvertisementTxID)

	var idx model.Advertisement
	require.NoError(t, a.DB.Where("locator = ?", locator).First(&idx).Error)
	assert.Equal(t, file.ObjectID, idx.ObjectID)
	assert.Equal(t, testIdentity, idx.IdentityKey)
	assert.Equal(t, testTxID, idx.TxID)
}

func TestUploadIsIdempotent(t *testing.T) {
	a, wallet, blob := newTestAPI(t)

	content := []byte("content that is only advertised once")
	order, file := seedOrder(t, a, true, int64(len(content)), 525600, 1000)

	rec, first := doUpload(t, a, order.OrderID, content)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, wallet.actionCount())

	// A replayed upload returns the original result and mints nothing
	rec, second := doUpload(t, a, order.OrderID, content)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, first["hash"], second["hash"])
	assert.Equal(t, first["publicURL"], second["publicURL"])
	assert.Equal(t, 1, wallet.actionCount(), "a second upload for the same order must not mint another advertisement")

	// Even with a different body the stored blob stays untouched
	rec, _ = doUpload(t, a, order.OrderID, []byte("different body"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, wallet.actionCount())

	stored, ok := blob.object("cdn/" + file.ObjectID)
	require.True(t, ok)
	assert.Equal(t, content, stored)
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	a, wallet, _ := newTestAPI(t)
	a.Hosting.MaxUploadSize = 16

	content := []byte("well over the sixteen byte operator cap")
	order, _ := seedOrder(t, a, true, int64(len(content)), 525600, 1000)

	rec, body := doUpload(t, a, order.OrderID, content)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, errInvalidSize, body["code"])
	assert.Zero(t, wallet.actionCount())
}

func TestUploadSizeMismatch(t *testing.T) {
	a, wallet, blob := newTestAPI(t)

	content := []byte("short")
	order, file := seedOrder(t, a, true, int64(len(content))+100, 525600, 1000)

	rec, body := doUpload(t, a, order.OrderID, content)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errSizeMismatch, body["code"])

	assert.Zero(t, wallet.actionCount(), "a mismatched upload must not be advertised")
	_, ok := blob.object("cdn/" + file.ObjectID)
	assert.False(t, ok)

	var after model.File
	require.NoError(t, a.DB.First(&after, file.ID).Error)
	assert.False(t, after.Uploaded)
}

func TestUploadUnpaidOrder(t *testing.T) {
	a, wallet, _ := newTestAPI(t)

	content := []byte("content for an unpaid order")
	order, _ := seedOrder(t, a, false, int64(len(content)), 525600, 1000)

	rec, body := doUpload(t, a, order.OrderID, content)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errNotPaid, body["code"])
	assert.Zero(t, wallet.actionCount())
}

func TestUploadUnknownOrder(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rec, body := doUpload(t, a, "no-such-order", []byte("content"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errBadRef, body["code"])
}

func TestUploadMissingParts(t *testing.T) {
	a, _, _ := newTestAPI(t)
	order, _ := seedOrder(t, a, true, 100, 525600, 1000)

	rec, body := doUpload(t, a, order.OrderID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errFileMissing, body["code"])

	rec, body = doUpload(t, a, "", []byte("content"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errBadRef, body["code"])
}

func TestUploadRequiresMultipart(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rec, body := doJSON(t, a.Router, http.MethodPost, "/upload", map[string]any{"orderID": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errFileMissing, body["code"])
}

func TestUploadAdvertisementFailureSurfaces(t *testing.T) {
	a, wallet, _ := newTestAPI(t)

	content := []byte("content that will fail to advertise")
	order, file := seedOrder(t, a, true, int64(len(content)), 525600, 1000)

	wallet.createErr = assert.AnError

	rec, body := doUpload(t, a, order.OrderID, content)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errInternal, body["code"])

	var after model.File
	require.NoError(t, a.DB.First(&after, file.ID).Error)
	assert.False(t, after.Uploaded, "an unannounced upload must not be marked hosted")
}
