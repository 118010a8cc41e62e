package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ViewerID identifies a participant. Viewers are addressed by UUID on every surface.
type ViewerID = uuid.UUID

// ItemCatalog resolves configured descriptors into concrete, grantable items.
// Implementations fail with ErrInvalidItemDescriptor.
type ItemCatalog interface {
	Resolve(desc ItemDescriptor, amount int, enchant *EnchantSpec) (ItemStack, error)
}

// EconomyLedger holds viewer balances.
type EconomyLedger interface {
	Balance(ctx context.Context, viewer ViewerID) (decimal.Decimal, error)
	Withdraw(ctx context.Context, viewer ViewerID, amount decimal.Decimal) error
	Deposit(ctx context.Context, viewer ViewerID, amount decimal.Decimal) error
}

// InventoryAccess reads and mutates a viewer's items.
// Give drops the overflow at the viewer's feet when the inventory is full.
type InventoryAccess interface {
	HasAtLeast(ctx context.Context, viewer ViewerID, item ItemStack, qty int) (bool, error)
	Remove(ctx context.Context, viewer ViewerID, item ItemStack, qty int) error
	Give(ctx context.Context, viewer ViewerID, item ItemStack, qty int) error
}

// ActionRunner executes templated command strings as a privileged actor.
type ActionRunner interface {
	Run(ctx context.Context, viewer ViewerID, actions []string) error
}

// NotificationSink delivers localized messages. key names a message template,
// placeholders are substituted into it.
type NotificationSink interface {
	Send(viewer ViewerID, key string, placeholders map[string]string)
	Broadcast(key string, placeholders map[string]string)
}

// Timer is a cancelable one-shot callback.
type Timer interface {
	// Stop reports whether the callback was prevented from running.
	Stop() bool
}

// Clock abstracts time so refresh scheduling can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// CloseReason tells the session tracker why a view ended.
type CloseReason int

const (
	CloseVoluntary CloseReason = iota // Viewer closed the view
	CloseUnloaded                     // Server-side teardown; the view is no longer readable
)

// String returns the string representation of CloseReason
func (r CloseReason) String() string {
	if r == CloseUnloaded {
		return "unloaded"
	}
	return "voluntary"
}

// View is the presentation layer's handle on one open market view.
type View interface {
	// Render shows a generation's offers. trades is non-nil for trade-set markets.
	Render(offers []*LiveOffer, trades []TradeState)
	// Trades returns the viewer's current trade progress, if the view holds any.
	Trades() ([]TradeState, bool)
	Close()
}

// TransactionRecord is one successful buy or sell, written to the journal.
type TransactionRecord struct {
	ID       string          `json:"id"` // ULID
	Viewer   ViewerID        `json:"viewer"`
	MarketID string          `json:"market"`
	Position int             `json:"position"`
	Side     string          `json:"side"` // "buy" or "sell"
	Offer    string          `json:"offer"`
	Amount   int             `json:"amount"`
	Price    decimal.Decimal `json:"price"`
	Balance  decimal.Decimal `json:"balance"`
	At       time.Time       `json:"at"`
}

// Journal persists an audit trail of completed transactions.
type Journal interface {
	Record(ctx context.Context, rec TransactionRecord) error
}
