package model

type Order struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"-"`

	// Opaque 256 bit order reference handed to the client by /invoice
	OrderID string `gorm:"uniqueIndex;not null" json:"orderID"`

	FileID uint `gorm:"index" json:"-"`

	// Price in satoshis
	Amount           int64  `json:"amount"`
	MinutesPurchased int64  `json:"minutesPurchased"`
	IdentityKey      string `gorm:"index" json:"-"`

	// Index used to derive the unique payment destination for this order.
	// Handed out under a row lock so two invoices never share one
	DerivationIndex uint64 `json:"-"`

	// Paid flips exactly once, via a conditional update
	Paid        bool   `json:"paid"`
	PaymentTxID string `json:"paymentTxid,omitempty"`

	// TXID of the advertisement created after upload, set once
	AdvertisementTxID string `json:"advertisementTxid,omitempty"`

	CreatedAt int64 `gorm:"not null" json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// DerivationCounter is a single-row table holding the next free payment
// destination index. It must only be read and bumped inside a locking
// transaction
type DerivationCounter struct {
	ID   uint   `gorm:"primaryKey"`
	Next uint64 `gorm:"not null"`
}
