package ledger

import (
	"crypto/sha256"
	"testing"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "0c28fca386c7a227600b2fe50b7cae11ec86d3bf1fbe471be89827e19d72aa1d"

func testKey(t *testing.T) *ServerKey {
	t.Helper()

	k, err := NewServerKey(testKeyHex)
	require.NoError(t, err)
	return k
}

func TestNewServerKeyRejectsBadInput(t *testing.T) {
	_, err := NewServerKey("")
	assert.Error(t, err)

	_, err = NewServerKey("not hex")
	assert.Error(t, err)
}

func TestLocatorRoundTrip(t *testing.T) {
	digest := sha256.Sum256([]byte("some hosted content"))

	locator := LocatorForHash(digest[:])
	assert.Equal(t, "uhrp://", locator[:7])

	back, err := HashFromLocator(locator)
	require.NoError(t, err)
	assert.Equal(t, digest[:], back)
}

func TestHashFromLocatorRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		locator string
	}{
		{"no prefix", "deadbeef"},
		{"wrong scheme", "http://deadbeef"},
		{"not hex", "uhrp://zzzz"},
		{"digest too short", "uhrp://deadbeef"},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := HashFromLocator(tc.locator)
			assert.Error(t, err)
		})
	}
}

func TestAdvertisementRoundTrip(t *testing.T) {
	k := testKey(t)
	digest := sha256.Sum256([]byte("payload"))

	ad := &Advertisement{
		Hash:          digest[:],
		URL:           "https://cdn.example.com/cdn/V1StGXR8_Z5jdHi6B-myT",
		Expiry:        1_767_225_600,
		ContentLength: 65000,
	}

	s, err := k.AdvertisementScript(ad)
	require.NoError(t, err)

	got, err := ParseAdvertisement(s)
	require.NoError(t, err)

	assert.Equal(t, k.IdentityKey(), got.IdentityKey)
	assert.Equal(t, ad.Hash, got.Hash)
	assert.Equal(t, ad.URL, got.URL)
	assert.Equal(t, ad.Expiry, got.Expiry)
	assert.Equal(t, ad.ContentLength, got.ContentLength)
	assert.Equal(t, LocatorForHash(digest[:]), got.Locator())
}

func TestAdvertisementScriptRejectsBadHash(t *testing.T) {
	k := testKey(t)

	_, err := k.AdvertisementScript(&Advertisement{Hash: []byte("short")})
	assert.Error(t, err)
}

func TestParseAdvertisementRejectsForeignScripts(t *testing.T) {
	k := testKey(t)

	commitment, err := CommitmentScript("some-order-ref")
	require.NoError(t, err)

	destination, err := k.DeriveDestination(0)
	require.NoError(t, err)

	_, err = ParseAdvertisement(commitment)
	assert.ErrorIs(t, err, ErrNotAdvertisement)

	_, err = ParseAdvertisement(destination)
	assert.ErrorIs(t, err, ErrNotAdvertisement)
}

func TestCommitmentScript(t *testing.T) {
	s, err := CommitmentScript("order-ref-123")
	require.NoError(t, err)

	b := []byte(*s)
	require.GreaterOrEqual(t, len(b), 2)
	assert.EqualValues(t, 0x00, b[0]) // OP_FALSE
	assert.EqualValues(t, 0x6a, b[1]) // OP_RETURN

	fields, err := pushes(b)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "order-ref-123", string(fields[0]))
}

func TestDeriveDestination(t *testing.T) {
	k := testKey(t)

	first, err := k.DeriveDestination(1)
	require.NoError(t, err)

	again, err := k.DeriveDestination(1)
	require.NoError(t, err)
	assert.Equal(t, first.String(), again.String())

	other, err := k.DeriveDestination(2)
	require.NoError(t, err)
	assert.NotEqual(t, first.String(), other.String())
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 252, 253, 65535, 65536, 1 << 31, 1 << 32, 1<<63 + 17}

	for _, v := range values {
		got, err := readVarint(varint(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestReadVarintRejectsTruncated(t *testing.T) {
	for _, b := range [][]byte{nil, {0xfd}, {0xfd, 0x01}, {0xfe, 0x01, 0x02}, {0xff, 0x01}} {
		_, err := readVarint(b)
		assert.Error(t, err)
	}
}

func TestIsFinal(t *testing.T) {
	maxSeq := &transaction.TransactionInput{SequenceNumber: 0xffffffff}
	zeroSeq := &transaction.TransactionInput{SequenceNumber: 0}

	cases := []struct {
		name string
		tx   *transaction.Transaction
		want bool
	}{
		{"zero lock time", &transaction.Transaction{LockTime: 0, Inputs: []*transaction.TransactionInput{zeroSeq}}, true},
		{"locked, all sequences maxed", &transaction.Transaction{LockTime: 800000, Inputs: []*transaction.TransactionInput{maxSeq}}, true},
		{"locked, open sequence", &transaction.Transaction{LockTime: 800000, Inputs: []*transaction.TransactionInput{maxSeq, zeroSeq}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsFinal(tc.tx))
		})
	}
}

func TestTags(t *testing.T) {
	assert.Equal(t, "protocol_1UHRP", TagProtocol())
	assert.Equal(t, "uhrp-url_uhrp://ab", TagLocator("uhrp://ab"))
	assert.Equal(t, "uploader_03aa", TagUploader("03aa"))
	assert.Equal(t, "object-id_xyz", TagObjectID("xyz"))
	assert.Equal(t, "expiry_1700000000", TagExpiry(1_700_000_000))
}

func TestExpiryFromTags(t *testing.T) {
	assert.EqualValues(t, 1_700_000_000, ExpiryFromTags([]string{"uploader_03aa", "expiry_1700000000"}))
	assert.EqualValues(t, 0, ExpiryFromTags([]string{"uploader_03aa"}))
	assert.EqualValues(t, 0, ExpiryFromTags([]string{"expiry_notanumber"}))
}
