package api

import "github.com/gin-gonic/gin"

// Stable machine-readable error codes. Clients branch on these, the
// descriptions are for humans
const (
	errNoSize             = "ERR_NO_SIZE"
	errNoRetentionPeriod  = "ERR_NO_RETENTION_PERIOD"
	errInvalidSize        = "ERR_INVALID_SIZE"
	errInvalidRetention   = "ERR_INVALID_RETENTION_PERIOD"
	errBadRef             = "ERR_BAD_REF"
	errAlreadyPaid        = "ERR_ALREADY_PAID"
	errNotPaid            = "ERR_NOT_PAID"
	errBadTx              = "ERR_BAD_TX"
	errTxRejected         = "ERR_TX_REJECTED"
	errTxNotFinal         = "ERR_TX_NOT_FINAL"
	errSizeMismatch       = "ERR_SIZE_MISMATCH"
	errFileMissing        = "ERR_FILE_MISSING"
	errMissingFields      = "ERR_MISSING_FIELDS"
	errInvalidTime        = "ERR_INVALID_TIME"
	errOldAdNotFound      = "ERR_OLD_ADVERTISEMENT_NOT_FOUND"
	errCreateActionFailed = "ERR_CREATE_ACTION_FAILED"
	errSigningOldAd       = "ERR_SIGNING_OLD_ADVERTISEMENT"
	errNoLocator          = "ERR_NO_UHRP_URL"
	errNotFound           = "ERR_NOT_FOUND"
	errInternal           = "ERR_INTERNAL"
)

// abortError writes the uniform error envelope and stops the handler
// chain
func abortError(c *gin.Context, status int, code, description string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":      "error",
		"code":        code,
		"description": description,
		"requestID":   c.GetString("requestID"),
	})
}
