// Package eodhd provides the market data gateway client: current and
// historical asset prices, asset search, and currency pair rates.
//
// The core treats this gateway as unreliable by design: every method returns
// nil/empty data instead of an error when the upstream has nothing, and
// callers skip the affected asset or currency rather than failing.
package eodhd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Price endpoints carry the short timeout, search the long one.
	priceTimeout  = 10 * time.Second
	searchTimeout = 30 * time.Second

	// Walk-back limit when the requested from-date has no trading data
	// (weekends, holidays).
	maxWalkBackDays = 7
)

// Client for an EODHD-style market data API.
type Client struct {
	baseURL     string
	token       string
	priceClient *http.Client // short timeout for price endpoints
	slowClient  *http.Client // longer timeout for search and FX
	rateCache   RateCache
	log         zerolog.Logger

	now func() time.Time
}

// NewClient creates a new market data client.
// rateCache is the injected per-day FX cache; it must not be nil.
func NewClient(baseURL, token string, rateCache RateCache, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		priceClient: &http.Client{Timeout: priceTimeout},
		slowClient:  &http.Client{Timeout: searchTimeout},
		rateCache:   rateCache,
		log:         log.With().Str("client", "eodhd").Logger(),
		now:         time.Now,
	}
}

// Quote is a real-time price snapshot for one asset.
type Quote struct {
	Code          string  `json:"code"`
	Close         float64 `json:"close"`
	PreviousClose float64 `json:"previousClose"`
}

// PriceBar is one day of end-of-day price history.
type PriceBar struct {
	Date          string  `json:"date"` // YYYY-MM-DD
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        int64   `json:"volume"`
}

// SearchResult is one asset returned by the search endpoint.
type SearchResult struct {
	Code     string `json:"Code"`
	Exchange string `json:"Exchange"`
	Name     string `json:"Name"`
	ISIN     string `json:"ISIN"`
	Currency string `json:"Currency"`
	Type     string `json:"Type"`
}

// get performs a GET with the API token attached and decodes the JSON body
// into out. Transport and decode failures are returned as errors; callers
// decide whether to degrade.
func (c *Client) get(path string, params url.Values, timeout time.Duration, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.token)
	params.Set("fmt", "json")

	reqURL := c.baseURL + path + "?" + params.Encode()

	client := c.priceClient
	if timeout > priceTimeout {
		client = c.slowClient
	}
	resp, err := client.Get(reqURL)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse gateway response: %w", err)
	}

	return nil
}

// CurrentPrice fetches the real-time quote for ticker on exchange.
// Returns nil when the gateway has no data for the symbol.
func (c *Client) CurrentPrice(ticker, exchange string) (*Quote, error) {
	symbol := ticker + "." + exchange

	// The gateway reports missing symbols with "NA" string fields, so decode
	// into raw JSON first.
	var raw map[string]json.RawMessage
	if err := c.get("/real-time/"+symbol, nil, priceTimeout, &raw); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Current price fetch failed")
		return nil, nil
	}

	var quote Quote
	data, _ := json.Marshal(raw)
	if err := json.Unmarshal(data, &quote); err != nil {
		c.log.Warn().Str("symbol", symbol).Msg("No price data for symbol")
		return nil, nil
	}
	if quote.Close == 0 && quote.PreviousClose == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No price data for symbol")
		return nil, nil
	}

	return &quote, nil
}

// HistoricalPrices fetches end-of-day bars for [from, to]. When the from-date
// itself has no bar (weekend, holiday) the request window is walked back day
// by day so callers always receive a bar covering their start date.
// Returns an empty slice when the gateway has nothing.
func (c *Client) HistoricalPrices(ticker, exchange string, from, to time.Time) ([]PriceBar, error) {
	symbol := ticker + "." + exchange

	begin := from
	for i := 0; i <= maxWalkBackDays; i++ {
		params := url.Values{}
		params.Set("from", begin.Format("2006-01-02"))
		params.Set("to", to.Format("2006-01-02"))
		params.Set("period", "d")

		var bars []PriceBar
		if err := c.get("/eod/"+symbol, params, priceTimeout, &bars); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Historical price fetch failed")
			return nil, nil
		}

		if len(bars) > 0 && bars[0].Date == begin.Format("2006-01-02") {
			return bars, nil
		}
		if len(bars) > 0 && i == maxWalkBackDays {
			return bars, nil
		}

		begin = begin.AddDate(0, 0, -1)
	}

	return nil, nil
}

// SearchAsset queries the search endpoint. An empty result means the asset is
// unknown to the gateway.
func (c *Client) SearchAsset(query string) ([]SearchResult, error) {
	var results []SearchResult
	if err := c.get("/search/"+url.PathEscape(query), nil, searchTimeout, &results); err != nil {
		return nil, fmt.Errorf("asset search failed: %w", err)
	}
	return results, nil
}

// forexQuote is the wire shape of a FOREX real-time quote. Close arrives as
// either a number or the string "NA".
type forexQuote struct {
	Code  string          `json:"code"`
	Close json.RawMessage `json:"close"`
}

func (q *forexQuote) closeValue() (float64, bool) {
	var rate float64
	if err := json.Unmarshal(q.Close, &rate); err != nil {
		return 0, false
	}
	return rate, true
}

// CurrentFxRate fetches the current rate for one currency pair (e.g.
// "USDPLN"), consulting the per-day cache first. Returns nil when no data is
// available.
func (c *Client) CurrentFxRate(pair string) (*float64, error) {
	today := c.now().UTC()
	if rate, ok := c.rateCache.Get(pair, today); ok {
		return &rate, nil
	}

	var quote forexQuote
	if err := c.get("/real-time/"+pair+".FOREX", nil, searchTimeout, &quote); err != nil {
		c.log.Warn().Err(err).Str("pair", pair).Msg("FX rate fetch failed")
		return nil, nil
	}

	rate, ok := quote.closeValue()
	if !ok {
		c.log.Warn().Str("pair", pair).Msg("No data for currency pair")
		return nil, nil
	}

	c.rateCache.Put(pair, today, rate)
	return &rate, nil
}

// CurrentFxRates fetches rates for several pairs in a single round trip.
// Cached pairs are served locally; the remainder is batched through the
// gateway's multi-symbol endpoint. The returned map omits pairs that could
// not be resolved; already-cached rates survive a gateway failure.
func (c *Client) CurrentFxRates(pairs []string) (map[string]float64, error) {
	today := c.now().UTC()
	result := make(map[string]float64, len(pairs))

	missing := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if rate, ok := c.rateCache.Get(pair, today); ok {
			result[pair] = rate
		} else {
			missing = append(missing, pair)
		}
	}

	switch len(missing) {
	case 0:
		return result, nil
	case 1:
		rate, err := c.CurrentFxRate(missing[0])
		if err != nil {
			return nil, err
		}
		if rate == nil {
			// The cached pairs are still good; only the missing one is absent.
			return result, nil
		}
		result[missing[0]] = *rate
		return result, nil
	}

	// Primary symbol in the path, the rest via the s= parameter.
	params := url.Values{}
	extras := make([]string, 0, len(missing)-1)
	for _, pair := range missing[1:] {
		extras = append(extras, pair+".FOREX")
	}
	params.Set("s", strings.Join(extras, ","))

	var quotes []forexQuote
	if err := c.get("/real-time/"+missing[0]+".FOREX", params, searchTimeout, &quotes); err != nil {
		c.log.Warn().Err(err).Strs("pairs", missing).Msg("Batch FX rate fetch failed")
		return result, nil
	}

	for _, quote := range quotes {
		rate, ok := quote.closeValue()
		if !ok {
			c.log.Warn().Str("pair", quote.Code).Msg("No data for currency pair")
			continue
		}
		pair := strings.SplitN(quote.Code, ".", 2)[0]
		c.rateCache.Put(pair, today, rate)
		result[pair] = rate
	}

	return result, nil
}
