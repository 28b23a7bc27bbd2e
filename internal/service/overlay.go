// Package service holds background services: advertisement publishing,
// overlay propagation and blob expiry sweeping
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const overlayMaxAttempts = 3

// OverlayJob asks the workers to announce an advertisement transaction
// to the overlay hosts
type OverlayJob struct {
	TxID   string
	Topics []string
}

// OverlayQueue propagates advertisement transactions to overlay hosts on
// a best-effort basis. The primary ledger record is authoritative, so a
// host that never hears about it only costs discoverability, never
// correctness. Exhausted jobs end up in the dead-letter log
type OverlayQueue struct {
	hosts   []string
	workers int
	jobs    chan *OverlayJob
	client  *http.Client
}

func NewOverlayQueue(hosts []string, workers int) *OverlayQueue {
	if workers <= 0 {
		workers = 1
	}

	return &OverlayQueue{
		hosts:   hosts,
		workers: workers,
		jobs:    make(chan *OverlayJob, 64),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (q *OverlayQueue) StartWorkerPool() {
	for range q.workers {
		go q.worker()
	}
}

// Enqueue never blocks the request path. A full queue drops straight to
// the dead-letter log
func (q *OverlayQueue) Enqueue(job *OverlayJob) {
	select {
	case q.jobs <- job:
		zap.L().Debug("Overlay propagation enqueued", zap.String("txid", job.TxID))
	default:
		zap.L().Error("Overlay dead-letter: queue full",
			zap.String("txid", job.TxID),
			zap.Strings("topics", job.Topics))
	}
}

func (q *OverlayQueue) worker() {
	for job := range q.jobs {
		for _, host := range q.hosts {
			if err := q.submitWithRetry(host, job); err != nil {
				zap.L().Error("Overlay dead-letter: propagation failed",
					zap.String("host", host),
					zap.String("txid", job.TxID),
					zap.Strings("topics", job.Topics),
					zap.Error(err))
			}
		}
	}
}

func (q *OverlayQueue) submitWithRetry(host string, job *OverlayJob) error {
	var lastErr error

	for attempt := 1; attempt <= overlayMaxAttempts; attempt++ {
		lastErr = q.submit(host, job)
		if lastErr == nil {
			return nil
		}

		time.Sleep(time.Duration(attempt) * time.Second)
	}

	return lastErr
}

func (q *OverlayQueue) submit(host string, job *OverlayJob) error {
	payload, _ := json.Marshal(struct {
		TxID   string   `json:"txid"`
		Topics []string `json:"topics"`
	}{job.TxID, job.Topics})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/submit", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.New("overlay host returned " + resp.Status)
	}

	return nil
}
