package api

import (
	"errors"
	"net/http"
	"time"

	"nanohost/storage-api/internal/model"
	"nanohost/storage-api/ledger"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type payRequest struct {
	OrderID     string `json:"orderID"`
	Transaction struct {
		RawTx string `json:"rawTx"`
	} `json:"transaction"`
}

// Pay verifies a client-submitted payment transaction against its
// invoice, broadcasts it and marks the order paid exactly once. Every
// gate is hard: nothing is repaired on the server side
func (a *API) Pay(c *gin.Context) {
	identityKey := c.MustGet("identityKey").(string)

	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
		abortError(c, http.StatusBadRequest, errBadRef, "Provide the orderID of the invoice you are paying.")
		return
	}

	var order model.Order
	err := a.DB.
		Where("order_id = ? AND identity_key = ?", req.OrderID, identityKey).
		First(&order).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortError(c, http.StatusBadRequest, errBadRef, "No invoice found for the specified orderID and identity key.")
			return
		}

		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to look up order", zap.Error(err))
		return
	}

	if order.Paid {
		abortError(c, http.StatusBadRequest, errAlreadyPaid, "This invoice is already paid.")
		return
	}

	if req.Transaction.RawTx == "" {
		abortError(c, http.StatusBadRequest, errBadTx, "The transaction object must include rawTx.")
		return
	}

	tx, err := transaction.NewTransactionFromHex(req.Transaction.RawTx)
	if err != nil {
		abortError(c, http.StatusBadRequest, errBadTx, "The provided rawTx could not be parsed.")
		return
	}

	// The payment must commit to the order reference in a zero-value
	// data output, otherwise any transaction of the right amount could
	// be replayed against a different invoice
	commitment, err := ledger.CommitmentScript(order.OrderID)
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to build commitment script", zap.Error(err))
		return
	}

	var hasCommitment bool
	for _, out := range tx.Outputs {
		if out.Satoshis == 0 && out.LockingScript.String() == commitment.String() {
			hasCommitment = true
			break
		}
	}
	if !hasCommitment {
		abortError(c, http.StatusBadRequest, errTxRejected, "The transaction does not commit to this order reference.")
		return
	}

	destination, err := a.Key.DeriveDestination(order.DerivationIndex)
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to derive payment destination", zap.Error(err))
		return
	}

	var paysInvoice bool
	for _, out := range tx.Outputs {
		if out.LockingScript.String() == destination.String() && out.Satoshis == uint64(order.Amount) {
			paysInvoice = true
			break
		}
	}
	if !paysInvoice {
		abortError(c, http.StatusBadRequest, errTxRejected, "The transaction does not pay the invoiced amount to the expected destination.")
		return
	}

	if !ledger.IsFinal(tx) {
		abortError(c, http.StatusBadRequest, errTxNotFinal, "The transaction is not final.")
		return
	}

	if _, err := a.Wallet.Broadcast(c.Request.Context(), req.Transaction.RawTx); err != nil {
		if errors.Is(err, ledger.ErrBroadcastRejected) {
			abortError(c, http.StatusBadRequest, errTxRejected, err.Error())
			return
		}

		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while submitting the payment.")
		zap.L().Error("Failed to broadcast payment", zap.Error(err))
		return
	}

	txid := tx.TxID().String()

	// Conditional update so a racing second verification can't re-apply
	// the transition
	res := a.DB.
		Model(model.Order{}).
		Where("order_id = ? AND paid = ?", order.OrderID, false).
		Updates(map[string]any{
			"paid":          true,
			"payment_tx_id": txid,
			"updated_at":    time.Now().Unix(),
		})
	if res.Error != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to mark order paid", zap.Error(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		abortError(c, http.StatusBadRequest, errAlreadyPaid, "This invoice is already paid.")
		return
	}

	var file model.File
	if err := a.DB.First(&file, order.FileID).Error; err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "Could not retrieve file details after processing payment.")
		zap.L().Error("Failed to load file for paid order", zap.Error(err))
		return
	}

	uploadURL, err := a.Store.PresignUpload(c.Request.Context(), "cdn/"+file.ObjectID, file.Size, a.Hosting.UploadTTL)
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to presign upload URL", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"txid":      txid,
		"uploadURL": uploadURL,
		"publicURL": a.Hosting.PublicURL(file.ObjectID),
	})
}
