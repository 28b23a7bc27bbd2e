package api

import (
	"errors"
	"net/http"
	"time"

	"nanohost/storage-api/internal/model"
	"nanohost/storage-api/ledger"
	"nanohost/storage-api/pkg/util"
	"nanohost/storage-api/pricing"

	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type invoiceRequest struct {
	FileSize        *int64 `json:"fileSize"`
	RetentionPeriod *int64 `json:"retentionPeriod"`
}

type paymentOutput struct {
	Script   string `json:"script"`
	Satoshis int64  `json:"satoshis"`
}

// Invoice prices a hosting order and hands back everything the client
// needs to pay it: the order reference, the amount and the exact outputs
// the payment transaction must contain
func (a *API) Invoice(c *gin.Context) {
	identityKey := c.MustGet("identityKey").(string)

	var req invoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, errNoSize, "Provide the size of the file you want to host.")
		return
	}

	if req.FileSize == nil {
		abortError(c, http.StatusBadRequest, errNoSize, "Provide the size of the file you want to host.")
		return
	}
	if req.RetentionPeriod == nil {
		abortError(c, http.StatusBadRequest, errNoRetentionPeriod, "Specify the number of minutes to host the file.")
		return
	}

	amount, err := a.Pricing.PriceForFile(c.Request.Context(), *req.FileSize, *req.RetentionPeriod)
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrInvalidSize):
			abortError(c, http.StatusBadRequest, errInvalidSize, err.Error())
		case errors.Is(err, pricing.ErrInvalidRetention):
			abortError(c, http.StatusBadRequest, errInvalidRetention, err.Error())
		default:
			abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while processing the invoice.")
			zap.L().Error("Failed to price invoice", zap.Error(err))
		}
		return
	}

	// Public identifier, deliberately unrelated to any database key
	objectID, err := gonanoid.New()
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while processing the invoice.")
		zap.L().Error("Failed to generate object identifier", zap.Error(err))
		return
	}

	orderID, err := util.NewOrderID()
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while processing the invoice.")
		zap.L().Error("Failed to generate order reference", zap.Error(err))
		return
	}

	// The derivation index is claimed under a row lock so two concurrent
	// invoices can never share a payment destination
	var derivationIndex uint64

	err = a.DB.Transaction(func(tx *gorm.DB) error {
		var ctr model.DerivationCounter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ctr, 1).Error; err != nil {
			return err
		}

		derivationIndex = ctr.Next

		if err := tx.Model(&ctr).Update("next", ctr.Next+1).Error; err != nil {
			return err
		}

		now := time.Now().Unix()

		file := model.File{
			ObjectID:  objectID,
			Size:      *req.FileSize,
			CreatedAt: now,
		}
		if err := tx.Create(&file).Error; err != nil {
			return err
		}

		return tx.Create(&model.Order{
			OrderID:          orderID,
			FileID:           file.ID,
			Amount:           amount,
			MinutesPurchased: *req.RetentionPeriod,
			IdentityKey:      identityKey,
			DerivationIndex:  derivationIndex,
			CreatedAt:        now,
			UpdatedAt:        now,
		}).Error
	})
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while processing the invoice.")
		zap.L().Error("Failed to persist invoice", zap.Error(err))
		return
	}

	destination, err := a.Key.DeriveDestination(derivationIndex)
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while processing the invoice.")
		zap.L().Error("Failed to derive payment destination", zap.Error(err))
		return
	}

	commitment, err := ledger.CommitmentScript(orderID)
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while processing the invoice.")
		zap.L().Error("Failed to build commitment script", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"message":     "Use /pay to submit the payment.",
		"identityKey": a.Key.IdentityKey(),
		"amount":      amount,
		"orderID":     orderID,
		"outputs": []paymentOutput{
			{Script: destination.String(), Satoshis: amount},
			{Script: commitment.String(), Satoshis: 0},
		},
		"publicURL": a.Hosting.PublicURL(objectID),
	})
}
