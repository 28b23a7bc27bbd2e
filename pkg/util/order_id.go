package util

import (
	"crypto/rand"
	"encoding/base64"
)

// NewOrderID returns an opaque 256 bit order reference. Base64 keeps it
// compact enough to embed in a payment commitment output
func NewOrderID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
