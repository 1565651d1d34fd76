package market

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoardrun1/hoardrun-sub005/internal/config"
)

func init() {
	log.SetOutput(io.Discard)
}

const quoteBody = `{
  "Global Quote": {
    "01. symbol": "IBM",
    "02. open": "168.0200",
    "03. high": "169.9700",
    "04. low": "167.1200",
    "05. price": "169.4100",
    "06. volume": "3521187",
    "07. latest trading day": "2026-10-14",
    "08. previous close": "167.8800",
    "09. change": "1.5300",
    "10. change percent": "0.9114%"
  }
}`

const fxBody = `{
  "Realtime Currency Exchange Rate": {
    "1. From_Currency Code": "USD",
    "2. From_Currency Name": "United States Dollar",
    "3. To_Currency Code": "EUR",
    "4. To_Currency Name": "Euro",
    "5. Exchange Rate": "0.92150000",
    "6. Last Refreshed": "2026-10-15 08:00:01",
    "7. Time Zone": "UTC",
    "8. Bid Price": "0.92148000",
    "9. Ask Price": "0.92155000"
  }
}`

const dailyBody = `{
  "Meta Data": {"2. Symbol": "IBM"},
  "Time Series (Daily)": {
    "2026-10-13": {"1. open": "166.0", "2. high": "168.0", "3. low": "165.5", "4. close": "167.88", "5. volume": "100"},
    "2026-10-14": {"1. open": "168.02", "2. high": "169.97", "3. low": "167.12", "4. close": "169.41", "5. volume": "200"},
    "2026-10-10": {"1. open": "165.0", "2. high": "166.0", "3. low": "164.0", "4. close": "165.90", "5. volume": "300"}
  }
}`

type avServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newAVServer(t *testing.T, body string, status int) *avServer {
	s := &avServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "demo-key", r.URL.Query().Get("apikey"))
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func newClient(srv *avServer) *Client {
	return New(config.MarketConfig{BaseURL: srv.URL, APIKey: "demo-key", CacheTTL: time.Minute, CacheMax: 16}, srv.Client())
}

func TestQuote(t *testing.T) {
	srv := newAVServer(t, quoteBody, http.StatusOK)
	c := newClient(srv)

	q, err := c.Quote(context.Background(), "ibm")
	require.NoError(t, err)
	assert.Equal(t, "IBM", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("169.41")))
	assert.EqualValues(t, 3521187, q.Volume)
	assert.Equal(t, "0.9114%", q.ChangePercent)

	_, err = c.Quote(context.Background(), "IBM")
	require.NoError(t, err)
	assert.EqualValues(t, 1, srv.calls.Load(), "second lookup is served from cache")
}

func TestExchangeRate(t *testing.T) {
	srv := newAVServer(t, fxBody, http.StatusOK)
	c := newClient(srv)

	r, err := c.ExchangeRate(context.Background(), "usd", "eur")
	require.NoError(t, err)
	assert.Equal(t, "USD", r.From)
	assert.Equal(t, "EUR", r.To)
	assert.True(t, r.Rate.Equal(decimal.RequireFromString("0.9215")))
}

func TestDailyNewestFirstAndTrimmed(t *testing.T) {
	srv := newAVServer(t, dailyBody, http.StatusOK)
	c := newClient(srv)

	pts, err := c.Daily(context.Background(), "IBM", 2)
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, "2026-10-14", pts[0].Date)
	assert.Equal(t, "2026-10-13", pts[1].Date)

	all, err := c.Daily(context.Background(), "IBM", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.EqualValues(t, 1, srv.calls.Load())
}

func TestProviderErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		want   error
	}{
		{"note", `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, 200, ErrThrottled},
		{"information", `{"Information": "API rate limit reached"}`, 200, ErrThrottled},
		{"429", `{}`, 429, ErrThrottled},
		{"error message", `{"Error Message": "Invalid API call."}`, 200, ErrBadSymbol},
		{"empty quote", `{"Global Quote": {}}`, 200, ErrBadSymbol},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newAVServer(t, tc.body, tc.status)
			c := newClient(srv)

			_, err := c.Quote(context.Background(), "XXXX")
			assert.ErrorIs(t, err, tc.want)

			// failures are not cached
			_, _ = c.Quote(context.Background(), "XXXX")
			assert.EqualValues(t, 2, srv.calls.Load())
		})
	}
}

func TestServerErrorIsNotTyped(t *testing.T) {
	srv := newAVServer(t, `oops`, http.StatusInternalServerError)
	_, err := newClient(srv).Quote(context.Background(), "IBM")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrThrottled)
	assert.NotErrorIs(t, err, ErrBadSymbol)
}
