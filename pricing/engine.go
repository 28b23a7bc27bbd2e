// Package pricing converts (file size, retention) pairs into satoshi
// prices using a live exchange rate with a conservative fallback
package pricing

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"
)

const (
	// DustLimit is the smallest spendable output the ledger accepts.
	// Quotes never go below it
	DustLimit = 546

	// MaxFileBytes bounds the supported file size. Server-side hashing has
	// a fixed time budget, larger files can't be verified within it
	MaxFileBytes = 11_000_000_000

	// MaxRetentionMinutes is about 130 years. The bound is exclusive
	MaxRetentionMinutes = 69_000_000

	satoshisPerCoin = 100_000_000
	bytesPerGB      = 1_000_000_000
	minutesPerMonth = 60 * 24 * 30
)

var (
	ErrNoSize           = errors.New("no file size provided")
	ErrNoRetention      = errors.New("no retention period provided")
	ErrInvalidSize      = errors.New("file size must be a positive integer up to 11000000000 bytes")
	ErrInvalidRetention = errors.New("retention period is outside the accepted bounds")
)

type Config struct {
	// USD charged per gigabyte-month of hosting
	PerGBMonthUSD float64

	// Rate used when the oracle is unreachable. Availability beats
	// precision here, a degraded quote is still a quote
	FallbackRate float64

	// Smallest retention a client may buy, in minutes
	MinRetentionMinutes int64
}

type Engine struct {
	cfg    Config
	oracle Oracle
}

func NewEngine(cfg Config, oracle Oracle) *Engine {
	return &Engine{cfg: cfg, oracle: oracle}
}

// MinRetentionMinutes exposes the configured lower retention bound
func (e *Engine) MinRetentionMinutes() int64 {
	return e.cfg.MinRetentionMinutes
}

// Validate checks the size and retention bounds without pricing anything
func (e *Engine) Validate(fileSize, retentionMinutes int64) error {
	if fileSize <= 0 || fileSize > MaxFileBytes {
		return ErrInvalidSize
	}
	if retentionMinutes < e.cfg.MinRetentionMinutes || retentionMinutes >= MaxRetentionMinutes {
		return ErrInvalidRetention
	}
	return nil
}

// RenewalPrice prices an expiry extension. Renewals may be shorter than
// the minimum initial retention, only the hard caps apply
func (e *Engine) RenewalPrice(ctx context.Context, fileSize, additionalMinutes int64) (int64, error) {
	if fileSize <= 0 || fileSize > MaxFileBytes {
		return 0, ErrInvalidSize
	}
	if additionalMinutes <= 0 || additionalMinutes >= MaxRetentionMinutes {
		return 0, ErrInvalidRetention
	}

	return e.price(ctx, fileSize, additionalMinutes), nil
}

// PriceForFile computes the satoshi price for hosting fileSize bytes for
// retentionMinutes. It has no side effects and is safe to call
// concurrently
func (e *Engine) PriceForFile(ctx context.Context, fileSize, retentionMinutes int64) (int64, error) {
	if err := e.Validate(fileSize, retentionMinutes); err != nil {
		return 0, err
	}

	return e.price(ctx, fileSize, retentionMinutes), nil
}

func (e *Engine) price(ctx context.Context, fileSize, minutes int64) int64 {
	sizeGB := float64(fileSize) / bytesPerGB
	months := float64(minutes) / minutesPerMonth
	usd := sizeGB * months * e.cfg.PerGBMonthUSD

	rate, err := e.oracle.Rate(ctx)
	if err != nil {
		rate = e.cfg.FallbackRate
		zap.L().Warn("Exchange rate fetch failed, using fallback rate",
			zap.Float64("fallback_rate", rate),
			zap.Error(err))
	}

	satoshis := int64(math.Floor(usd / rate * satoshisPerCoin))
	if satoshis < DustLimit {
		satoshis = DustLimit
	}

	return satoshis
}
