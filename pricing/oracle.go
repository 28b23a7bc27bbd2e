package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Oracle returns the current USD per coin exchange rate. Implementations
// are allowed to fail, the engine falls back to a fixed rate
type Oracle interface {
	Rate(ctx context.Context) (float64, error)
}

const rateCacheTTL = time.Minute

// HTTPOracle fetches the exchange rate from a whatsonchain-shaped endpoint
// returning {"rate": n}. Successful responses are cached briefly so pricing
// stays cheap under load
type HTTPOracle struct {
	URL    string
	client *http.Client

	mu        sync.Mutex
	rate      float64
	fetchedAt time.Time
}

func NewHTTPOracle(url string) *HTTPOracle {
	return &HTTPOracle{
		URL:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (o *HTTPOracle) Rate(ctx context.Context) (float64, error) {
	o.mu.Lock()
	if time.Since(o.fetchedAt) < rateCacheTTL && o.rate > 0 {
		rate := o.rate
		o.mu.Unlock()
		return rate, nil
	}
	o.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.New("exchange rate endpoint returned " + resp.Status)
	}

	var body struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}

	if body.Rate <= 0 {
		return 0, errors.New("exchange rate endpoint returned a non-positive rate")
	}

	o.mu.Lock()
	o.rate = body.Rate
	o.fetchedAt = time.Now()
	o.mu.Unlock()

	zap.L().Debug("Fetched exchange rate", zap.Float64("usd_per_coin", body.Rate))

	return body.Rate, nil
}
