package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrBroadcastRejected wraps the network's rejection message so callers
// can hand it back to the client verbatim
var ErrBroadcastRejected = errors.New("transaction rejected by the network")

// Client talks JSON over HTTP to the wallet daemon that owns the server
// key's UTXOs. It implements Wallet
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) CreateAction(ctx context.Context, args CreateActionArgs) (*ActionResult, error) {
	var res ActionResult
	if err := c.post(ctx, "/v1/action", args, &res); err != nil {
		return nil, fmt.Errorf("wallet createAction failed, %w", err)
	}

	if res.TxID == "" {
		return nil, errors.New("wallet returned no txid for created action")
	}

	return &res, nil
}

func (c *Client) ListOutputsByTag(ctx context.Context, tags []string, mode TagQueryMode, limit, offset int) ([]Output, error) {
	if limit <= 0 {
		limit = 200
	}

	req := struct {
		Tags   []string     `json:"tags"`
		Mode   TagQueryMode `json:"tagQueryMode"`
		Limit  int          `json:"limit"`
		Offset int          `json:"offset"`
	}{tags, mode, limit, offset}

	var res struct {
		Outputs []Output `json:"outputs"`
	}
	if err := c.post(ctx, "/v1/outputs/list", req, &res); err != nil {
		return nil, fmt.Errorf("wallet listOutputs failed, %w", err)
	}

	return res.Outputs, nil
}

func (c *Client) Broadcast(ctx context.Context, rawTx string) (string, error) {
	req := struct {
		RawTx string `json:"rawTx"`
	}{rawTx}

	var res struct {
		TxID string `json:"txid"`
	}
	err := c.post(ctx, "/v1/broadcast", req, &res)
	if err != nil {
		// A transaction the network already has is a success for us,
		// the payment is no less real the second time we see it
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "already known") ||
			strings.Contains(msg, "already in mempool") ||
			strings.Contains(msg, "txn-already-known") {
			return "", nil
		}

		return "", fmt.Errorf("%w: %s", ErrBroadcastRejected, err.Error())
	}

	return res.TxID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Description string `json:"description"`
			Message     string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil {
			if apiErr.Description != "" {
				return errors.New(apiErr.Description)
			}
			if apiErr.Message != "" {
				return errors.New(apiErr.Message)
			}
		}

		return errors.New("wallet returned " + resp.Status)
	}

	if out == nil {
		return nil
	}

	return json.Unmarshal(raw, out)
}
