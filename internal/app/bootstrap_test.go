package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMarket = `
refresh-time: "30m"
market-name: "Black Market"
gui:
  size: 9
  name: "Black Market"
  slots: [4]
items:
  - transaction-type: item
    transaction-item:
      type: DIAMOND
    prices:
      buy-fixed: 100
      sell-fixed: 40
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestBootstrap(t *testing.T) *Bootstrap {
	t.Helper()
	dir := t.TempDir()
	marketsDir := filepath.Join(dir, "markets")
	writeFile(t, filepath.Join(marketsDir, "chest", "black_market.yml"), testMarket)

	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, `
logging:
  level: error
  dir: `+filepath.Join(dir, "logs")+`
storage:
  path: `+filepath.Join(dir, "journal.db")+`
market:
  markets_dir: `+marketsDir+`
  aliases:
    bm: black_market
economy:
  starting_balance: 1000
`)

	b := NewBootstrap(configPath)
	require.NoError(t, b.Initialize())
	t.Cleanup(b.Close)
	return b
}

func TestBootstrap_Initialize(t *testing.T) {
	b := newTestBootstrap(t)

	assert.Equal(t, "black_market", b.Config.Market.Aliases["bm"])
	assert.True(t, b.Config.Economy.StartingBalance.Equal(decimal.NewFromInt(1000)),
		"starting balance = %s", b.Config.Economy.StartingBalance)
	assert.NotNil(t, b.API)
	assert.NotNil(t, b.Markets)
	assert.NotNil(t, b.Hub)
}

func TestBootstrap_ServesMarkets(t *testing.T) {
	b := newTestBootstrap(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Sequencer.Run(ctx)
	go b.Hub.Run(ctx)

	require.NoError(t, b.LoadMarkets(ctx))

	srv := httptest.NewServer(b.API.Handler())
	defer srv.Close()

	viewer := uuid.New()
	post := func(path string) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(http.MethodPost, srv.URL+path, nil)
		req.Header.Set("X-Viewer-ID", viewer.String())
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err, "POST %s", path)
		return resp
	}

	resp, err := http.Get(srv.URL + "/markets/bm")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "alias lookup")

	resp = post("/markets/bm/open")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "open")

	resp = post("/markets/black_market/offers/4/buy")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "buy")
	var receipt struct {
		ID      string          `json:"id"`
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&receipt))
	assert.True(t, receipt.Balance.Equal(decimal.NewFromInt(900)), "balance = %s", receipt.Balance)

	rec, err := b.Storage.Get(ctx, receipt.ID)
	require.NoError(t, err)
	require.NotNil(t, rec, "journaled transaction %s", receipt.ID)
	assert.Equal(t, "black_market", rec.MarketID)
	assert.Equal(t, viewer, rec.Viewer)

	assert.NotZero(t, b.Metrics.Snapshot().Buys, "expected a recorded buy")
}
