package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSender_SignsPayload(t *testing.T) {
	payload := []byte(`{"event":"account.signup"}`)
	var gotSig, gotType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewWebhookSender("topsecret", time.Second)
	require.NoError(t, sender.Send(context.Background(), srv.URL, payload))

	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, payload, gotBody)
	assert.Equal(t, Sign("topsecret", payload), gotSig)
	assert.Len(t, gotSig, 64)
}

func TestWebhookSender_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewWebhookSender("", time.Second)
	err := sender.Send(context.Background(), srv.URL, []byte(`{}`))
	assert.ErrorContains(t, err, "502")
}

func TestWebhookSender_BreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewWebhookSender("s", time.Second)
	for i := 0; i < 5; i++ {
		assert.Error(t, sender.Send(context.Background(), srv.URL, []byte(`{}`)))
	}

	// The breaker is open now, the receiver is not called again.
	err := sender.Send(context.Background(), srv.URL, []byte(`{}`))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), hits.Load())
}
