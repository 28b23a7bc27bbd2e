package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nanohost/storage-api/internal/model"
	"nanohost/storage-api/ledger"

	"github.com/bsv-blockchain/go-sdk/script"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OverlayTopic is the overlay network topic advertisements are announced
// under
const OverlayTopic = "tm_uhrp"

// Advertiser publishes content availability advertisements to the ledger
// and keeps the derived lookup index in sync
type Advertiser struct {
	DB      *gorm.DB
	Wallet  ledger.Wallet
	Key     *ledger.ServerKey
	Overlay *OverlayQueue
}

func NewAdvertiser(db *gorm.DB, w ledger.Wallet, key *ledger.ServerKey, overlay *OverlayQueue) *Advertiser {
	return &Advertiser{DB: db, Wallet: w, Key: key, Overlay: overlay}
}

// Advertise mints a new advertisement output for the given content and
// returns its txid. The script commits to the host's identity, the
// uploader's identity only rides along as a discovery tag. Ledger
// failure is fatal for the caller, overlay propagation is queued
// best-effort afterwards
func (a *Advertiser) Advertise(ctx context.Context, ad *ledger.Advertisement, objectID, uploaderKey string) (string, error) {
	lockingScript, err := a.Key.AdvertisementScript(ad)
	if err != nil {
		return "", fmt.Errorf("failed to build advertisement script, %w", err)
	}

	locator := ad.Locator()
	tags := []string{
		ledger.TagProtocol(),
		ledger.TagLocator(locator),
		ledger.TagUploader(uploaderKey),
		ledger.TagObjectID(objectID),
		ledger.TagExpiry(ad.Expiry),
	}

	res, err := a.Wallet.CreateAction(ctx, ledger.CreateActionArgs{
		Description: "Content availability advertisement",
		Outputs: []ledger.ActionOutput{{
			LockingScript: lockingScript.String(),
			Satoshis:      ledger.AdvertisementStake,
			Description:   "advertisement token",
			Tags:          tags,
			Basket:        "advertisements",
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create advertisement action, %w", err)
	}

	a.RefreshIndex(locator, uploaderKey, objectID, res.TxID, ad.Expiry)

	a.Overlay.Enqueue(&OverlayJob{
		TxID:   res.TxID,
		Topics: []string{OverlayTopic},
	})

	return res.TxID, nil
}

// RefreshIndex updates the derived (locator, uploader) index row after a
// create or renew. The index is a projection, failures here are logged
// and the ledger remains the source of truth
func (a *Advertiser) RefreshIndex(locator, uploaderKey, objectID, txid string, expiry int64) {
	now := time.Now().Unix()

	row := model.Advertisement{
		Locator:     locator,
		IdentityKey: uploaderKey,
		ObjectID:    objectID,
		Outpoint:    txid + ".0",
		TxID:        txid,
		Expiry:      expiry,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := a.DB.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "locator"}, {Name: "identity_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"object_id", "outpoint", "tx_id", "expiry", "updated_at"}),
		}).
		Create(&row).
		Error
	if err != nil {
		zap.L().Error("Failed to refresh advertisement index",
			zap.String("locator", locator),
			zap.String("txid", txid),
			zap.Error(err))
	}
}

// RebuildIndex repopulates the index from the wallet's tagged outputs.
// Used on startup when the projection is suspected stale
func (a *Advertiser) RebuildIndex(ctx context.Context) error {
	outputs, err := a.Wallet.ListOutputsByTag(ctx, []string{ledger.TagProtocol()}, ledger.TagQueryAll, 1000, 0)
	if err != nil {
		return fmt.Errorf("failed to list advertisement outputs, %w", err)
	}

	var rebuilt int
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

		var objectID, uploaderKey string
		for _, t := range out.Tags {
			if v, ok := strings.CutPrefix(t, "object-id_"); ok {
				objectID = v
			}
			if v, ok := strings.CutPrefix(t, "uploader_"); ok {
				uploaderKey = v
			}
		}

		txid, _, _ := strings.Cut(out.Outpoint, ".")
		a.RefreshIndex(ad.Locator(), uploaderKey, objectID, txid, ad.Expiry)
		rebuilt++
	}

	zap.L().Info("Rebuilt advertisement index", zap.Int("rows", rebuilt))
	return nil
}
