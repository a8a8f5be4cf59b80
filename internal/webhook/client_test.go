package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/84hero/stream-gateway/pkg/event"
	"github.com/stretchr/testify/assert"
)

func sampleEvent() event.TransferEvent {
	return event.TransferEvent{
		TransactionHash: "0xhash1",
		From:            "0xAAA",
		To:              "0xBBB",
		Value:           "50000000000",
		TokenSymbol:     "USDT",
		ChainID:         "0x1",
		ReceivedAt:      time.Now(),
	}
}

func TestClientSend(t *testing.T) {
	secret := "my-secret"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Gateway-Signature"))

		body, _ := io.ReadAll(r.Body)
		var p Payload
		err := json.Unmarshal(body, &p)
		assert.NoError(t, err)
		assert.Len(t, p.Events, 1)
		assert.Equal(t, "0xhash1", p.Events[0].TransactionHash)

		// Validate HMAC signature over the exact body bytes
		h := hmac.New(sha256.New, []byte(secret))
		h.Write(body)
		expectedSig := hex.EncodeToString(h.Sum(nil))
		assert.Equal(t, expectedSig, r.Header.Get("X-Gateway-Signature"))

		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, Secret: secret})
	err := client.Send(context.Background(), []event.TransferEvent{sampleEvent()})
	assert.NoError(t, err)
}

func TestClient_Retry(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(Config{
		URL:            ts.URL,
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})

	err := client.Send(context.Background(), []event.TransferEvent{sampleEvent()})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestClient_ContextCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, MaxAttempts: 3})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Send(ctx, []event.TransferEvent{sampleEvent()})
	assert.Error(t, err)
}

func TestClient_EmptyNoop(t *testing.T) {
	client := NewClient(Config{URL: "http://localhost:1"})
	assert.NoError(t, client.Send(context.Background(), nil))
}
