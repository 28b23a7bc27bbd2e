package api

import (
	"errors"
	"net/http"

	"nanohost/storage-api/pricing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type quoteRequest struct {
	FileSize        *int64 `json:"fileSize"`
	RetentionPeriod *int64 `json:"retentionPeriod"`
}

// Quote prices a (size, retention) pair without creating anything. Same
// validation as an invoice, none of the side effects
func (a *API) Quote(c *gin.Context) {
	var req quoteRequest
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
			abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while pricing the quote.")
			zap.L().Error("Failed to price quote", zap.Error(err))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"amount": amount,
	})
}
