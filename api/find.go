package api

import (
	"errors"
	"net/http"
	"strings"

	"nanohost/storage-api/internal/model"
	"nanohost/storage-api/ledger"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Find resolves a content locator to the hosted file's metadata. The
// derived index answers first, a ledger tag scan is the fallback that
// also repairs the index
func (a *API) Find(c *gin.Context) {
	locator := c.Query("uhrpUrl")
	if locator == "" {
		abortError(c, http.StatusBadRequest, errNoLocator, "You must provide a uhrpUrl query parameter.")
		return
	}

	var row model.Advertisement
	err := a.DB.
		Where("locator = ?", locator).
		Order("expiry DESC").
		First(&row).
		Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		abortError(c, http.StatusInternalServerError, errInternal, "An error occurred while resolving the locator.")
		zap.L().Error("Failed to query advertisement index", zap.Error(err))
		return
	}

	objectID := row.ObjectID
	expiry := row.Expiry

	if objectID == "" {
		objectID, expiry = a.findOnLedger(c, locator)
		if objectID == "" {
			abortError(c, http.StatusNotFound, errNotFound, "No advertisement found for "+locator+".")
			return
		}
	}

	var file model.File
	err = a.DB.
		Where("object_id = ?", objectID).
		First(&file).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortError(c, http.StatusNotFound, errNotFound, "No advertisement found for "+locator+".")
			return
		}

		abortError(c, http.StatusInternalServerError, errInternal, "An error occurred while resolving the locator.")
		zap.L().Error("Failed to load file record", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"name":       file.ObjectID,
			"size":       file.Size,
			"mimeType":   file.MimeType,
			"expiryTime": expiry,
		},
	})
}

// findOnLedger scans the wallet's tagged outputs for the locator and
// refreshes the index with whatever it learns. Returns empty when the
// ledger doesn't know the locator either
func (a *API) findOnLedger(c *gin.Context, locator string) (string, int64) {
	outputs, err := a.Wallet.ListOutputsByTag(
		c.Request.Context(),
		[]string{ledger.TagLocator(locator)},
		ledger.TagQueryAll,
		200, 0,
	)
	if err != nil {
		zap.L().Error("Ledger scan for locator failed", zap.Error(err))
		return "", 0
	}

	var (
		bestExpiry   int64
		bestObjectID string
		bestUploader string
		bestTxID     string
	)
	for _, out := range outputs {
		if out.Spent {
			continue
		}

		s, err := script.NewFromHex(out.LockingScript)
		if err != nil {
			continue
		}

		ad, err := ledger.ParseAdvertisement(s)
		if err != nil {
			continue
		}

		if ad.Expiry <= bestExpiry {
			continue
		}

		bestExpiry = ad.Expiry
		bestTxID, _, _ = strings.Cut(out.Outpoint, ".")
		for _, t := range out.Tags {
			if v, ok := strings.CutPrefix(t, "object-id_"); ok {
				bestObjectID = v
			}
			if v, ok := strings.CutPrefix(t, "uploader_"); ok {
				bestUploader = v
			}
		}
	}

	if bestObjectID != "" {
		a.Advertiser.RefreshIndex(locator, bestUploader, bestObjectID, bestTxID, bestExpiry)
	}

	return bestObjectID, bestExpiry
}
