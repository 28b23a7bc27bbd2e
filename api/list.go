package api

import (
	"net/http"

	"nanohost/storage-api/ledger"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// List returns the caller's advertised uploads, one entry per live
// advertisement token the wallet still holds under their uploader tag
func (a *API) List(c *gin.Context) {
	identityKey := c.MustGet("identityKey").(string)

	outputs, err := a.Wallet.ListOutputsByTag(
		c.Request.Context(),
		[]string{ledger.TagUploader(identityKey)},
		ledger.TagQueryAll,
		200, 0,
	)
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An error occurred while listing your uploads.")
		zap.L().Error("Failed to list uploader outputs", zap.Error(err))
		return
	}

	uploads := make([]gin.H, 0, len(outputs))
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

		uploads = append(uploads, gin.H{
			"uhrpUrl":    ad.Locator(),
			"expiryTime": ad.Expiry,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"uploads": uploads,
	})
}
