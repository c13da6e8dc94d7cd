package eodhd

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/clientdata"
)

// RateCache is a read-through cache for FX rates, keyed by currency pair and
// calendar day. A rate fetched for a given pair+day never changes, so
// concurrent writers may race harmlessly. Entries invalidate naturally at
// midnight because the new day forms a new key.
type RateCache interface {
	Get(pair string, day time.Time) (float64, bool)
	Put(pair string, day time.Time, rate float64)
}

// DayRateCache implements RateCache with a process-wide in-memory map,
// optionally backed by the persistent client data store so rates survive
// restarts within the same day.
type DayRateCache struct {
	mu    sync.RWMutex
	rates map[string]float64 // key: pair + "@" + YYYY-MM-DD

	repo *clientdata.Repository // optional persistent backing
}

// NewDayRateCache creates a rate cache. repo may be nil to disable the
// persistent layer.
func NewDayRateCache(repo *clientdata.Repository) *DayRateCache {
	return &DayRateCache{
		rates: make(map[string]float64),
		repo:  repo,
	}
}

type cachedRate struct {
	Rate float64 `json:"rate"`
	Day  string  `json:"day"`
}

func rateKey(pair string, day time.Time) string {
	return pair + "@" + day.UTC().Format("2006-01-02")
}

// Get returns the cached rate for pair on day, checking memory first and the
// persistent store second.
func (c *DayRateCache) Get(pair string, day time.Time) (float64, bool) {
	key := rateKey(pair, day)

	c.mu.RLock()
	rate, ok := c.rates[key]
	c.mu.RUnlock()
	if ok {
		return rate, true
	}

	if c.repo == nil {
		return 0, false
	}

	data, err := c.repo.GetIfFresh("exchangerate", pair)
	if err != nil || data == nil {
		return 0, false
	}
	var cached cachedRate
	if err := json.Unmarshal(data, &cached); err != nil {
		return 0, false
	}
	// The persistent entry carries its own day; only reuse same-day rates.
	if cached.Day != day.UTC().Format("2006-01-02") {
		return 0, false
	}

	c.mu.Lock()
	c.rates[key] = cached.Rate
	c.mu.Unlock()

	return cached.Rate, true
}

// Put stores the rate for pair on day in both cache layers.
func (c *DayRateCache) Put(pair string, day time.Time, rate float64) {
	key := rateKey(pair, day)

	c.mu.Lock()
	c.rates[key] = rate
	c.mu.Unlock()

	if c.repo != nil {
		entry := cachedRate{Rate: rate, Day: day.UTC().Format("2006-01-02")}
		_ = c.repo.Store("exchangerate", pair, entry, clientdata.TTLExchangeRate)
	}
}
