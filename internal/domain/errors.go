package domain

import "errors"

// ConfigError represents a market or offer template that failed validation.
// The market it belongs to is excluded from the registry until fixed and reloaded.
type ConfigError struct {
	Market string // Market id (file name without extension)
	Field  string // Offending field, e.g. "refresh-time" or "items[3].prices"
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Market == "" {
		return "config error [" + e.Field + "]: " + e.Err.Error()
	}
	return "config error [" + e.Market + ": " + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError for a market field.
func NewConfigError(market, field string, err error) *ConfigError {
	return &ConfigError{Market: market, Field: field, Err: err}
}

// TransactionError carries the offer a rejected transaction was attempted against.
// Kind is one of the transaction sentinels below, so errors.Is works on it.
type TransactionError struct {
	Kind     error
	MarketID string
	Position int
}

func (e *TransactionError) Error() string {
	return e.Kind.Error()
}

func (e *TransactionError) Unwrap() error {
	return e.Kind
}

// IsTransactionOutcome reports whether err is an expected transaction rejection
// (shown to the viewer as a message) rather than a fault.
func IsTransactionOutcome(err error) bool {
	for _, kind := range []error{ErrUnbuyable, ErrUnsellable, ErrLimitReached, ErrInsufficientFunds, ErrInsufficientItems} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

var (
	// ErrUnknownMarket is returned when a market id is not in the registry.
	ErrUnknownMarket = errors.New("unknown market id")

	// ErrUnknownOffer is returned when a position has no live offer in the current generation.
	ErrUnknownOffer = errors.New("unknown offer position")

	// ErrUnbuyable is returned when an offer has no positive buy price and no barter basket.
	ErrUnbuyable = errors.New("offer is not purchasable")

	// ErrUnsellable is returned when an offer has no positive sell price.
	ErrUnsellable = errors.New("offer is not sellable")

	// ErrLimitReached is returned when the viewer has used up the offer's limit for this generation.
	ErrLimitReached = errors.New("transaction limit reached")

	// ErrInsufficientFunds is returned when the viewer's balance is below the buy price.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientItems is returned when the viewer lacks barter items or the item being sold.
	ErrInsufficientItems = errors.New("insufficient items")

	// ErrInvalidItemDescriptor is returned by an ItemCatalog that cannot resolve a descriptor.
	ErrInvalidItemDescriptor = errors.New("invalid item descriptor")

	// ErrNoRefreshInterval is returned when a market has no usable refresh interval.
	ErrNoRefreshInterval = errors.New("refresh interval missing")

	// ErrNoSession is returned when a viewer has no open market view.
	ErrNoSession = errors.New("viewer has no open market")
)
