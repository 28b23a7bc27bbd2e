package model

// Advertisement is a derived secondary index over the wallet's tagged
// outputs, keyed by (locator, identity key). The ledger is the source of
// truth, rows here are rebuildable projections refreshed on every create
// and renew so lookups don't need a linear tag scan
type Advertisement struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"-"`

	Locator     string `gorm:"uniqueIndex:idx_ad_locator_identity" json:"locator"`
	IdentityKey string `gorm:"uniqueIndex:idx_ad_locator_identity" json:"-"`

	ObjectID string `gorm:"index" json:"objectID"`
	Outpoint string `json:"outpoint"`
	TxID     string `json:"txid"`

	// Expiry embedded in the locking script, unix seconds
	Expiry int64 `gorm:"index" json:"expiry"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}
