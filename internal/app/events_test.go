package app

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/ledger"
)

// nextEvent reads lines until a complete server-sent event has arrived.
func nextEvent(t *testing.T, r *bufio.Reader) (string, domain.Event) {
	t.Helper()
	var name string
	var ev domain.Event
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		case line == "" && name != "":
			return name, ev
		}
	}
}

func TestServer_EventsStreamBalanceChanges(t *testing.T) {
	s := newTestServer(t)
	adaKey := s.activeUser("ada")
	s.activeUser("bob")

	base := s.listen()

	req, err := http.NewRequest(http.MethodGet, base+"/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adaKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	name, ev := nextEvent(t, reader)
	assert.Equal(t, "balance", name)
	assert.Equal(t, ledger.DefaultAllowance, ev.Balance)
	assert.Equal(t, 1, s.services.Sessions.Count("ada"))

	res, err := s.services.Coordinator.Transfer(context.Background(), "bob", "ada", 250, "lunch")
	require.NoError(t, err)

	_, ev = nextEvent(t, reader)
	assert.Equal(t, ledger.DefaultAllowance+250, ev.Balance)
	assert.Equal(t, res.Transaction.ID, ev.TxID)
	assert.Equal(t, "ada", ev.AccountID)
}
