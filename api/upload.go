package api

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"nanohost/storage-api/internal/model"
	"nanohost/storage-api/ledger"
	"nanohost/storage-api/pkg/util"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// The blob is kept around a little past its paid expiry so renewals
// racing the sweeper don't lose data
const expiryGrace = 5 * time.Minute

// Upload receives the paid file, verifies it matches the invoice, stores
// it and publishes the availability advertisement
func (a *API) Upload(c *gin.Context) {
	identityKey := c.MustGet("identityKey").(string)

	if !strings.HasPrefix(c.Request.Header.Get("Content-Type"), "multipart/form-data") {
		abortError(c, http.StatusBadRequest, errFileMissing, "Send the file as multipart/form-data.")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to parse multipart form", zap.Error(err))
		return
	}

	files := form.File["file"]
	if len(files) == 0 {
		abortError(c, http.StatusBadRequest, errFileMissing, "The file is missing.")
		return
	}
	fh := files[0]

	if fh.Size > a.Hosting.MaxUploadSize {
		abortError(c, http.StatusRequestEntityTooLarge, errInvalidSize, "The uploaded file exceeds the maximum allowed upload size.")
		return
	}

	orderID := c.PostForm("orderID")
	if orderID == "" {
		abortError(c, http.StatusBadRequest, errBadRef, "Provide the orderID this upload belongs to.")
		return
	}

	var order model.Order
	err = a.DB.
		Where("order_id = ? AND identity_key = ?", orderID, identityKey).
		First(&order).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortError(c, http.StatusBadRequest, errBadRef, "The order reference you provided cannot be found.")
			return
		}

		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to look up order", zap.Error(err))
		return
	}

	if !order.Paid {
		abortError(c, http.StatusBadRequest, errNotPaid, "Pay the invoice before uploading.")
		return
	}

	var file model.File
	if err := a.DB.First(&file, order.FileID).Error; err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to load file record", zap.Error(err))
		return
	}

	// One advertisement per order. A replayed upload gets the original
	// result back, never a second token on the ledger
	if file.Uploaded || order.AdvertisementTxID != "" {
		c.JSON(http.StatusOK, gin.H{
			"status":    "success",
			"publicURL": a.Hosting.PublicURL(file.ObjectID),
			"hash":      file.Hash,
			"published": true,
		})
		return
	}

	// The invoice priced an exact byte count. Anything else voids it
	if fh.Size != file.Size {
		abortError(c, http.StatusBadRequest, errSizeMismatch, "The uploaded file does not match the size declared on the invoice.")
		return
	}

	src, err := fh.Open()
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to open uploaded file", zap.Error(err))
		return
	}
	defer src.Close()

	temp, err := os.CreateTemp("", "upload-*")
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to create temporary file", zap.Error(err))
		return
	}
	defer os.Remove(temp.Name())
	defer temp.Close()

	// Hashing runs under a deadline: an upload we can't digest within
	// the request budget is rejected, not left hanging
	hashCtx, cancel := context.WithTimeout(c.Request.Context(), a.Hosting.HashTimeout)
	defer cancel()

	digest := sha256.New()
	written, err := util.CopyCtx(hashCtx, io.MultiWriter(temp, digest), src)
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "Failed to receive the uploaded file in time.")
		zap.L().Error("Failed to spool upload", zap.Error(err))
		return
	}

	if written != file.Size {
		abortError(c, http.StatusBadRequest, errSizeMismatch, "The uploaded byte count does not match the size declared on the invoice.")
		return
	}

	hash := digest.Sum(nil)

	mime, err := mimetype.DetectFile(temp.Name())
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to detect mime type", zap.Error(err))
		return
	}

	if _, err := temp.Seek(0, io.SeekStart); err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to rewind temporary file", zap.Error(err))
		return
	}

	key := "cdn/" + file.ObjectID
	if err := a.Store.Put(c.Request.Context(), key, temp, file.Size, mime.String()); err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while storing the file.")
		zap.L().Error("Failed to store blob", zap.Error(err))
		return
	}

	expiry := time.Now().Add(time.Duration(order.MinutesPurchased) * time.Minute)
	deleteAfter := expiry.Add(expiryGrace)

	if err := a.Store.SetExpiry(c.Request.Context(), key, deleteAfter); err != nil {
		// Non-fatal: deleteAfter in the database still drives the sweeper
		zap.L().Warn("Failed to mirror expiry into storage metadata", zap.Error(err))
	}

	publicURL := a.Hosting.PublicURL(file.ObjectID)

	ad := &ledger.Advertisement{
		Hash:          hash,
		URL:           publicURL,
		Expiry:        expiry.Unix(),
		ContentLength: file.Size,
	}

	adTxID, err := a.Advertiser.Advertise(c.Request.Context(), ad, file.ObjectID, identityKey)
	if err != nil {
		// The blob is stored but unannounced. Surface the failure, the
		// client can retry the upload and the order stays un-advertised
		abortError(c, http.StatusInternalServerError, errInternal, "Failed to publish the availability advertisement.")
		zap.L().Error("Failed to create advertisement", zap.Error(err))
		return
	}

	err = a.DB.
		Model(model.File{}).
		Where("id = ?", file.ID).
		Updates(map[string]any{
			"uploaded":     true,
			"available":    true,
			"hash":         ledger.LocatorForHash(hash),
			"mime_type":    mime.String(),
			"delete_after": deleteAfter.Unix(),
		}).
		Error
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to update file record", zap.Error(err))
		return
	}

	// Set once: a second upload for the same order must not clobber the
	// advertisement reference
	err = a.DB.
		Model(model.Order{}).
		Where("id = ? AND advertisement_tx_id = ?", order.ID, "").
		Update("advertisement_tx_id", adTxID).
		Error
	if err != nil {
		zap.L().Error("Failed to record advertisement txid", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"publicURL": publicURL,
		"hash":      ledger.LocatorForHash(hash),
		"published": true,
	})
}
