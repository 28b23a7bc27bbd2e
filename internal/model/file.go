// Package model defines database models
package model

type File struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"-"`

	// Public identifier used in hosting URLs. Generated independently of
	// the primary key so public URLs never leak row ordering
	ObjectID string `gorm:"uniqueIndex;not null" json:"objectID"`

	// Size declared at invoice time. Uploads that don't match it byte for
	// byte are rejected
	Size int64 `json:"size"`

	// Hex encoded SHA-256 digest, computed server-side after upload
	Hash     string `json:"hash"`
	MimeType string `json:"mimeType"`

	// Unix seconds after which the blob may be removed. Mirrored into the
	// storage backend's expiry metadata, the ledger advertisement stays
	// authoritative
	DeleteAfter int64 `json:"deleteAfter"`

	Uploaded  bool  `json:"uploaded"`
	Available bool  `json:"available"`
	CreatedAt int64 `gorm:"not null" json:"createdAt"`
}
