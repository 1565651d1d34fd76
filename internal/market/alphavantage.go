package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/hoardrun1/hoardrun-sub005/internal/config"
	m "github.com/hoardrun1/hoardrun-sub005/pkg/metrics"
)

var (
	ErrThrottled = errors.New("market: provider rate limit reached")
	ErrBadSymbol = errors.New("market: unknown symbol")
)

const maxDailyPoints = 100

type Quote struct {
	Symbol           string          `json:"symbol"`
	Open             decimal.Decimal `json:"open"`
	High             decimal.Decimal `json:"high"`
	Low              decimal.Decimal `json:"low"`
	Price            decimal.Decimal `json:"price"`
	Volume           int64           `json:"volume"`
	LatestTradingDay string          `json:"latest_trading_day"`
	PreviousClose    decimal.Decimal `json:"previous_close"`
	Change           decimal.Decimal `json:"change"`
	ChangePercent    string          `json:"change_percent"`
}

type ExchangeRate struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Rate        decimal.Decimal `json:"rate"`
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	RefreshedAt string          `json:"refreshed_at"`
}

type DailyPoint struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Client reads Alpha Vantage query endpoints and caches answers for the
// configured TTL.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   *expirable.LRU[string, any]
}

func New(cfg config.MarketConfig, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
		cache:   expirable.NewLRU[string, any](cfg.CacheMax, nil, cfg.CacheTTL),
	}
}

func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(symbol)
	return cached(c, "quote:"+symbol, func() (*Quote, error) {
		doc, err := c.query(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}})
		if err != nil {
			return nil, err
		}
		q := doc.Get("Global Quote")
		if !q.Exists() || q.Get(`05\. price`).String() == "" {
			return nil, ErrBadSymbol
		}
		return &Quote{
			Symbol:           q.Get(`01\. symbol`).String(),
			Open:             dec(q.Get(`02\. open`)),
			High:             dec(q.Get(`03\. high`)),
			Low:              dec(q.Get(`04\. low`)),
			Price:            dec(q.Get(`05\. price`)),
			Volume:           q.Get(`06\. volume`).Int(),
			LatestTradingDay: q.Get(`07\. latest trading day`).String(),
			PreviousClose:    dec(q.Get(`08\. previous close`)),
			Change:           dec(q.Get(`09\. change`)),
			ChangePercent:    q.Get(`10\. change percent`).String(),
		}, nil
	})
}

func (c *Client) ExchangeRate(ctx context.Context, from, to string) (*ExchangeRate, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	return cached(c, "fx:"+from+":"+to, func() (*ExchangeRate, error) {
		doc, err := c.query(ctx, url.Values{
			"function":      {"CURRENCY_EXCHANGE_RATE"},
			"from_currency": {from},
			"to_currency":   {to},
		})
		if err != nil {
			return nil, err
		}
		r := doc.Get("Realtime Currency Exchange Rate")
		if !r.Exists() {
			return nil, ErrBadSymbol
		}
		return &ExchangeRate{
			From:        r.Get(`1\. From_Currency Code`).String(),
			To:          r.Get(`3\. To_Currency Code`).String(),
			Rate:        dec(r.Get(`5\. Exchange Rate`)),
			Bid:         dec(r.Get(`8\. Bid Price`)),
			Ask:         dec(r.Get(`9\. Ask Price`)),
			RefreshedAt: r.Get(`6\. Last Refreshed`).String(),
		}, nil
	})
}

// Daily returns at most points daily bars, newest first.
func (c *Client) Daily(ctx context.Context, symbol string, points int) ([]DailyPoint, error) {
	if points <= 0 || points > maxDailyPoints {
		points = maxDailyPoints
	}
	symbol = strings.ToUpper(symbol)
	series, err := cached(c, "daily:"+symbol, func() ([]DailyPoint, error) {
		doc, err := c.query(ctx, url.Values{"function": {"TIME_SERIES_DAILY"}, "symbol": {symbol}})
		if err != nil {
			return nil, err
		}
		ts := doc.Get("Time Series (Daily)")
		if !ts.Exists() {
			return nil, ErrBadSymbol
		}
		out := []DailyPoint{}
		ts.ForEach(func(date, bar gjson.Result) bool {
			out = append(out, DailyPoint{
				Date:   date.String(),
				Open:   dec(bar.Get(`1\. open`)),
				High:   dec(bar.Get(`2\. high`)),
				Low:    dec(bar.Get(`3\. low`)),
				Close:  dec(bar.Get(`4\. close`)),
				Volume: bar.Get(`5\. volume`).Int(),
			})
			return true
		})
		sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if len(series) > points {
		series = series[:points]
	}
	return series, nil
}

func cached[T any](c *Client, key string, load func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		m.IncCache("hit")
		return v.(T), nil
	}
	m.IncCache("miss")
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *Client) query(ctx context.Context, params url.Values) (gjson.Result, error) {
	params.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return gjson.Result{}, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("alpha vantage: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("alpha vantage: read: %w", err)
	}
	log.WithFields(log.Fields{
		"function": params.Get("function"),
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("[MARKET] Provider call")

	if resp.StatusCode == http.StatusTooManyRequests {
		return gjson.Result{}, ErrThrottled
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("alpha vantage: status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("alpha vantage: invalid json")
	}

	doc := gjson.ParseBytes(body)
	if doc.Get("Note").Exists() || doc.Get("Information").Exists() {
		log.WithField("function", params.Get("function")).Warn("[MARKET] Provider throttled request")
		return gjson.Result{}, ErrThrottled
	}
	if doc.Get("Error Message").Exists() {
		return gjson.Result{}, ErrBadSymbol
	}
	return doc, nil
}

func dec(r gjson.Result) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(r.String()))
	if err != nil {
		return decimal.Zero
	}
	return d
}
