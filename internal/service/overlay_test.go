package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayQueueSubmits(t *testing.T) {
	received := make(chan OverlayJob, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/submit", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			TxID   string   `json:"txid"`
			Topics []string `json:"topics"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		received <- OverlayJob{TxID: body.TxID, Topics: body.Topics}
	}))
	defer srv.Close()

	q := NewOverlayQueue([]string{srv.URL}, 1)
	q.StartWorkerPool()

	q.Enqueue(&OverlayJob{TxID: "abc123", Topics: []string{OverlayTopic}})

	select {
	case got := <-received:
		assert.Equal(t, "abc123", got.TxID)
		assert.Equal(t, []string{OverlayTopic}, got.Topics)
	case <-time.After(2 * time.Second):
		t.Fatal("overlay host never received the announcement")
	}
}

func TestOverlayQueueEnqueueNeverBlocks(t *testing.T) {
	// No workers draining, so the channel fills up. Enqueue must still
	// return immediately and drop to the dead-letter log
	q := NewOverlayQueue(nil, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			q.Enqueue(&OverlayJob{TxID: "overflow"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}
