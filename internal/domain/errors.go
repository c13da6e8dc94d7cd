package domain

import "errors"

// Business-rule failures. These are returned as typed errors to the caller of
// the mutating operation and matched with errors.Is.
var (
	// ErrInsufficientPosition - a sell exceeds the held quantity. The whole
	// transaction write is aborted and the balance left unchanged.
	ErrInsufficientPosition = errors.New("insufficient position for sell")

	// ErrUnknownAsset - a buy or import row references an asset that cannot
	// be resolved locally or via the market data gateway.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrIncorrectFormat - an import file failed format validation. The whole
	// import is rejected before any row is written.
	ErrIncorrectFormat = errors.New("incorrect file format")

	// ErrExternalDataUnavailable - the market data gateway is unreachable.
	// Valuation paths degrade (skip the currency or the day); lookups that
	// cannot degrade, like asset search, surface it to the caller.
	ErrExternalDataUnavailable = errors.New("external market data unavailable")

	// ErrReturnDegenerate - the XIRR solver cannot converge or the flow
	// series is one-signed. The stored return is nulled and the error
	// surfaced so callers can tell "no return" from a real failure.
	ErrReturnDegenerate = errors.New("return computation degenerate")
)

// Not-found failures for the HTTP layer.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAssetNotFound       = errors.New("asset not found")
	ErrExchangeNotFound    = errors.New("exchange not found")
)

// ErrStaleBalance signals that an incremental balance update would violate
// ordering invariants. It is never surfaced to callers - the balance engine
// recovers locally by triggering a rebuild.
var ErrStaleBalance = errors.New("balance state is stale")
