package api

import (
	"net/http"
	"strings"
	"time"

	"nanohost/storage-api/internal/model"
	"nanohost/storage-api/ledger"
	"nanohost/storage-api/pricing"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Unlocking an advertisement needs a single signature push
const unlockingScriptLength = 74

type renewRequest struct {
	UhrpURL           string `json:"uhrpUrl"`
	AdditionalMinutes int64  `json:"additionalMinutes"`
}

// Renew atomically retires the caller's live advertisement for a locator
// and reissues it with an extended expiry. The ledger transaction spends
// the old output and creates the new one in one action, storage metadata
// is only touched after the ledger accepted it
func (a *API) Renew(c *gin.Context) {
	identityKey := c.MustGet("identityKey").(string)

	var req renewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UhrpURL == "" {
		abortError(c, http.StatusBadRequest, errMissingFields, "Missing uhrpUrl or additionalMinutes.")
		return
	}
	// Bounded up front: zero-length advertisements skip the pricing
	// path and its checks, and an unbounded value would overflow the
	// new expiry
	if req.AdditionalMinutes <= 0 || req.AdditionalMinutes >= pricing.MaxRetentionMinutes {
		abortError(c, http.StatusBadRequest, errInvalidTime, "additionalMinutes is outside the accepted bounds.")
		return
	}

	if _, err := ledger.HashFromLocator(req.UhrpURL); err != nil {
		abortError(c, http.StatusBadRequest, errNoLocator, "The provided uhrpUrl is not a valid locator.")
		return
	}

	// Candidates must match locator AND caller identity. Matching on the
	// locator alone would let anyone renew someone else's claim
	outputs, err := a.Wallet.ListOutputsByTag(
		c.Request.Context(),
		[]string{ledger.TagLocator(req.UhrpURL), ledger.TagUploader(identityKey)},
		ledger.TagQueryAll,
		200, 0,
	)
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while locating the advertisement.")
		zap.L().Error("Failed to list advertisement outputs", zap.Error(err))
		return
	}

	// Several advertisements can transiently coexist during renewals,
	// the one with the highest embedded expiry wins
	var (
		prevOut *ledger.Output
		prevAd  *ledger.Advertisement
	)
	for i := range outputs {
		out := &outputs[i]
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

		if prevAd == nil || ad.Expiry > prevAd.Expiry {
			prevAd = ad
			prevOut = out
		}
	}

	if prevAd == nil {
		abortError(c, http.StatusNotFound, errOldAdNotFound, "Couldn't find an advertisement for "+req.UhrpURL+" belonging to you.")
		return
	}

	prevExpiry := prevAd.Expiry
	newExpiry := prevExpiry + req.AdditionalMinutes*60

	var amount int64
	if prevAd.ContentLength > 0 {
		amount, err = a.Pricing.RenewalPrice(c.Request.Context(), prevAd.ContentLength, req.AdditionalMinutes)
		if err != nil {
			abortError(c, http.StatusBadRequest, errInvalidTime, err.Error())
			return
		}
	}

	newAd := &ledger.Advertisement{
		Hash:          prevAd.Hash,
		URL:           prevAd.URL,
		Expiry:        newExpiry,
		ContentLength: prevAd.ContentLength,
	}

	newScript, err := a.Key.AdvertisementScript(newAd)
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to build replacement advertisement script", zap.Error(err))
		return
	}

	objectID := ""
	for _, t := range prevOut.Tags {
		if v, ok := strings.CutPrefix(t, "object-id_"); ok {
			objectID = v
		}
	}

	tags := []string{
		ledger.TagProtocol(),
		ledger.TagLocator(req.UhrpURL),
		ledger.TagUploader(identityKey),
		ledger.TagExpiry(newExpiry),
	}
	if objectID != "" {
		tags = append(tags, ledger.TagObjectID(objectID))
	}

	// One action: the old token is spent and the replacement minted in
	// the same transaction, so there is no window with zero or two live
	// advertisements of record
	res, err := a.Wallet.CreateAction(c.Request.Context(), ledger.CreateActionArgs{
		Description: "Renew advertisement for " + req.UhrpURL,
		Inputs: []ledger.ActionInput{{
			Outpoint:              prevOut.Outpoint,
			UnlockingScriptLength: unlockingScriptLength,
			Description:           "redeeming old advertisement",
		}},
		Outputs: []ledger.ActionOutput{{
			LockingScript: newScript.String(),
			Satoshis:      ledger.AdvertisementStake,
			Description:   "advertisement token (renewed)",
			Tags:          tags,
			Basket:        "advertisements",
		}},
	})
	if err != nil {
		abortError(c, http.StatusInternalServerError, errCreateActionFailed, "The old advertisement could not be redeemed and replaced.")
		zap.L().Error("Failed to renew advertisement", zap.Error(err))
		return
	}

	// Only now, with the renewal durably accepted, does storage learn
	// about the new deadline
	deleteAfter := time.Unix(newExpiry, 0).Add(expiryGrace)

	if objectID != "" {
		if err := a.Store.SetExpiry(c.Request.Context(), "cdn/"+objectID, deleteAfter); err != nil {
			zap.L().Warn("Failed to mirror renewed expiry into storage metadata", zap.Error(err))
		}

		err = a.DB.
			Model(model.File{}).
			Where("object_id = ?", objectID).
			Update("delete_after", deleteAfter.Unix()).
			Error
		if err != nil {
			zap.L().Error("Failed to update file deleteAfter", zap.Error(err))
		}

		a.Advertiser.RefreshIndex(req.UhrpURL, identityKey, objectID, res.TxID, newExpiry)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"prevExpiryTime": prevExpiry,
		"newExpiryTime":  newExpiry,
		"amount":         amount,
		"txid":           res.TxID,
	})
}
