package ledger

import "context"

// TagQueryMode selects how ListOutputsByTag combines multiple tags
type TagQueryMode string

const (
	TagQueryAll TagQueryMode = "all"
	TagQueryAny TagQueryMode = "any"
)

// Output is a wallet-held UTXO with its discovery tags
type Output struct {
	Outpoint      string   `json:"outpoint"`
	Satoshis      uint64   `json:"satoshis"`
	LockingScript string   `json:"lockingScript"`
	Tags          []string `json:"tags"`
	Spent         bool     `json:"spent"`
}

// ActionInput spends an existing wallet output
type ActionInput struct {
	Outpoint              string `json:"outpoint"`
	UnlockingScriptLength uint32 `json:"unlockingScriptLength"`
	Description           string `json:"inputDescription,omitempty"`
}

// ActionOutput creates a new tagged output
type ActionOutput struct {
	LockingScript string   `json:"lockingScript"`
	Satoshis      uint64   `json:"satoshis"`
	Description   string   `json:"outputDescription,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Basket        string   `json:"basket,omitempty"`
}

// CreateActionArgs describes one atomic wallet transaction. A renewal is
// a single action spending the old advertisement outpoint and creating
// the replacement, so redeem and reissue can never half-happen
type CreateActionArgs struct {
	Description string         `json:"description"`
	Inputs      []ActionInput  `json:"inputs,omitempty"`
	Outputs     []ActionOutput `json:"outputs"`
}

// ActionResult is the wallet's receipt for a created action
type ActionResult struct {
	TxID      string `json:"txid"`
	Reference string `json:"reference"`
}

// Wallet is the narrow contract the service needs from the ledger side.
// Implementations must treat CreateAction as atomic: either the whole
// transaction is accepted or nothing is
type Wallet interface {
	// CreateAction builds, signs and finalizes a transaction from the
	// given inputs and outputs
	CreateAction(ctx context.Context, args CreateActionArgs) (*ActionResult, error)

	// ListOutputsByTag scans wallet outputs carrying the given tags.
	// mode selects whether all tags must match or any
	ListOutputsByTag(ctx context.Context, tags []string, mode TagQueryMode, limit, offset int) ([]Output, error)

	// Broadcast submits a raw signed transaction to the network and
	// returns its txid. "Already known" responses count as success
	Broadcast(ctx context.Context, rawTx string) (string, error)
}
