// Package ledger holds everything that touches the blockchain side of
// hosting: payment destination scripts, the advertisement token format
// and the wallet client used to move both on-chain
package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"
)

// ProtocolID marks advertisement outputs so unrelated pushdrop tokens
// never parse as ours
const ProtocolID = "1UHRP"

// AdvertisementStake is the satoshi value carried by advertisement
// outputs. It only has to be spendable, not valuable
const AdvertisementStake = 1

var (
	ErrNotAdvertisement = errors.New("script is not an advertisement token")
	ErrShortScript      = errors.New("script truncated")
)

// Advertisement is the decoded form of an advertisement locking script
type Advertisement struct {
	IdentityKey   string
	Hash          []byte
	URL           string
	Expiry        int64
	ContentLength int64
}

// Locator returns the public content locator for this advertisement
func (a *Advertisement) Locator() string {
	return LocatorForHash(a.Hash)
}

// LocatorForHash derives the public content locator from a digest
func LocatorForHash(hash []byte) string {
	return "uhrp://" + hex.EncodeToString(hash)
}

// HashFromLocator is the inverse of LocatorForHash
func HashFromLocator(locator string) ([]byte, error) {
	raw, ok := strings.CutPrefix(locator, "uhrp://")
	if !ok {
		return nil, fmt.Errorf("locator %q has no uhrp:// prefix", locator)
	}

	hash, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("locator digest is not hex, %w", err)
	}
	if len(hash) != sha256.Size {
		return nil, fmt.Errorf("locator digest must be %d bytes", sha256.Size)
	}

	return hash, nil
}

// ServerKey wraps the host's private key and derives everything the
// service signs or owns on chain
type ServerKey struct {
	priv *ec.PrivateKey
}

func NewServerKey(hexKey string) (*ServerKey, error) {
	priv, err := ec.PrivateKeyFromHex(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server private key, %w", err)
	}

	return &ServerKey{priv: priv}, nil
}

// IdentityKey is the host's public identity, DER hex
func (k *ServerKey) IdentityKey() string {
	return k.priv.PubKey().ToDERHex()
}

// DeriveDestination returns the P2PKH locking script for the payment
// destination at the given derivation index. Each index yields a distinct
// child key, so destination uniqueness reduces to index uniqueness
func (k *ServerKey) DeriveDestination(index uint64) (*script.Script, error) {
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], index)

	mac := hmac.New(sha256.New, k.priv.Serialize())
	mac.Write([]byte("invoice destination "))
	mac.Write(seed[:])

	child, _ := ec.PrivateKeyFromBytes(mac.Sum(nil))

	addr, err := script.NewAddressFromPublicKey(child.PubKey(), true)
	if err != nil {
		return nil, fmt.Errorf("failed to derive destination address, %w", err)
	}

	return p2pkh.Lock(addr)
}

// CommitmentScript builds the zero-value data output that binds a payment
// transaction to its order reference
func CommitmentScript(orderID string) (*script.Script, error) {
	s := &script.Script{}
	if err := s.AppendOpcodes(script.OpFALSE, script.OpRETURN); err != nil {
		return nil, err
	}
	if err := s.AppendPushData([]byte(orderID)); err != nil {
		return nil, err
	}
	return s, nil
}

// AdvertisementScript builds the pushdrop-style locking script committing
// to (issuer, content hash, URL, expiry, length). The key check comes
// first so the fields can be dropped at unlock time
func (k *ServerKey) AdvertisementScript(ad *Advertisement) (*script.Script, error) {
	if len(ad.Hash) != sha256.Size {
		return nil, fmt.Errorf("advertisement hash must be %d bytes", sha256.Size)
	}

	identity, err := hex.DecodeString(k.IdentityKey())
	if err != nil {
		return nil, err
	}

	fields := [][]byte{
		[]byte(ProtocolID),
		identity,
		ad.Hash,
		[]byte(ad.URL),
		varint(uint64(ad.Expiry)),
		varint(uint64(ad.ContentLength)),
	}

	s := &script.Script{}
	if err := s.AppendPushData(identity); err != nil {
		return nil, err
	}
	if err := s.AppendOpcodes(script.OpCHECKSIG); err != nil {
		return nil, err
	}
	for _, f := range fields {
		if err := s.AppendPushData(f); err != nil {
			return nil, err
		}
	}
	for range len(fields) / 2 {
		if err := s.AppendOpcodes(script.Op2DROP); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// ParseAdvertisement decodes an advertisement locking script. Returns
// ErrNotAdvertisement for any script that doesn't carry our protocol
// marker
func ParseAdvertisement(s *script.Script) (*Advertisement, error) {
	fields, err := pushes([]byte(*s))
	if err != nil {
		return nil, err
	}

	// locking key + six committed fields
	if len(fields) != 7 || string(fields[1]) != ProtocolID {
		return nil, ErrNotAdvertisement
	}

	expiry, err := readVarint(fields[5])
	if err != nil {
		return nil, fmt.Errorf("bad expiry field, %w", err)
	}
	length, err := readVarint(fields[6])
	if err != nil {
		return nil, fmt.Errorf("bad length field, %w", err)
	}

	return &Advertisement{
		IdentityKey:   hex.EncodeToString(fields[2]),
		Hash:          fields[3],
		URL:           string(fields[4]),
		Expiry:        int64(expiry),
		ContentLength: int64(length),
	}, nil
}

// IsFinal applies the ledger's finality rules: a zero lock time is always
// final, otherwise every input sequence must be maxed out
func IsFinal(tx *transaction.Transaction) bool {
	if tx.LockTime == 0 {
		return true
	}
	for _, in := range tx.Inputs {
		if in.SequenceNumber != 0xffffffff {
			return false
		}
	}
	return true
}

// pushes walks a script and collects its data pushes in order, skipping
// plain opcodes
func pushes(b []byte) ([][]byte, error) {
	var out [][]byte

	for i := 0; i < len(b); {
		op := b[i]
		i++

		var n int
		switch {
		case op > 0 && op <= 75:
			n = int(op)
		case op == 0x4c: // PUSHDATA1
			if i >= len(b) {
				return nil, ErrShortScript
			}
			n = int(b[i])
			i++
		case op == 0x4d: // PUSHDATA2
			if i+2 > len(b) {
				return nil, ErrShortScript
			}
			n = int(binary.LittleEndian.Uint16(b[i : i+2]))
			i += 2
		case op == 0x4e: // PUSHDATA4
			if i+4 > len(b) {
				return nil, ErrShortScript
			}
			n = int(binary.LittleEndian.Uint32(b[i : i+4]))
			i += 4
		default:
			continue
		}

		if i+n > len(b) {
			return nil, ErrShortScript
		}
		out = append(out, b[i:i+n])
		i += n
	}

	return out, nil
}

func varint(n uint64) []byte {
	switch {
	case n < 0xfd:
		return []byte{byte(n)}
	case n <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(n))
		return b
	case n <= 0xffffffff:
		b := make([]byte, 5)
		b[0] = 0xfe
		binary.LittleEndian.PutUint32(b[1:], uint32(n))
		return b
	default:
		b := make([]byte, 9)
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], n)
		return b
	}
}

func readVarint(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, errors.New("empty varint")
	}
	switch b[0] {
	case 0xfd:
		if len(b) < 3 {
			return 0, errors.New("varint truncated")
		}
		return uint64(binary.LittleEndian.Uint16(b[1:3])), nil
	case 0xfe:
		if len(b) < 5 {
			return 0, errors.New("varint truncated")
		}
		return uint64(binary.LittleEndian.Uint32(b[1:5])), nil
	case 0xff:
		if len(b) < 9 {
			return 0, errors.New("varint truncated")
		}
		return binary.LittleEndian.Uint64(b[1:9]), nil
	default:
		return uint64(b[0]), nil
	}
}

// Tag helpers. Tags are the only lookup mechanism the wallet offers, the
// ledger has no native secondary index

func TagProtocol() string { return "protocol_" + ProtocolID }

func TagLocator(locator string) string { return "uhrp-url_" + locator }

func TagUploader(identityKey string) string { return "uploader_" + identityKey }

func TagObjectID(objectID string) string { return "object-id_" + objectID }

func TagExpiry(unixSeconds int64) string {
	return "expiry_" + strconv.FormatInt(unixSeconds, 10)
}

// ExpiryFromTags extracts the expiry tag value, 0 when absent
func ExpiryFromTags(tags []string) int64 {
	for _, t := range tags {
		if v, ok := strings.CutPrefix(t, "expiry_"); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
