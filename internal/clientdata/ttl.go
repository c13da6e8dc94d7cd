package clientdata

import "time"

// TTL constants for cached gateway data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// FX rates are reused for the rest of the calendar day; the in-memory
	// per-day cache in front of this repository handles midnight rollover.
	TTLExchangeRate = 24 * time.Hour

	// Current price cache for batch operations
	TTLCurrentPrice = 10 * time.Minute
)
