package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"market_go/internal/domain"
	"market_go/internal/offer"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// TransactionRecorder receives transaction counts. infra.Metrics satisfies it.
type TransactionRecorder interface {
	RecordBuy()
	RecordSell()
	RecordRejected()
}

// ViewCloser schedules a viewer's view to close shortly after a failed transaction.
type ViewCloser interface {
	ScheduleClose(viewer domain.ViewerID)
}

// Receipt describes a completed transaction.
type Receipt struct {
	ID       string             `json:"id"`
	MarketID string             `json:"market"`
	Position int                `json:"position"`
	Side     string             `json:"side"`
	Offer    string             `json:"offer"`
	Price    decimal.Decimal    `json:"price"`
	Balance  decimal.Decimal    `json:"balance"`
	Consumed []domain.ItemStack `json:"consumed,omitempty"`
	Entry    domain.LedgerEntry `json:"ledger"`
}

// TransactionDeps are the collaborators a TransactionEngine calls.
type TransactionDeps struct {
	Economy   domain.EconomyLedger
	Inventory domain.InventoryAccess
	Actions   domain.ActionRunner
	Notifier  domain.NotificationSink
	Clock     domain.Clock
	Journal   domain.Journal      // optional
	Metrics   TransactionRecorder // optional
	// FormatItem renders an item for the item/itemN placeholders.
	FormatItem func(domain.ItemStack) string
	Logger     *slog.Logger
}

// TransactionEngine validates and executes buys and sells against live offers.
// It only ever mutates the ledger entry it is handed, and must run on the tick thread.
type TransactionEngine struct {
	deps   TransactionDeps
	closer ViewCloser
	ids    *idSource
	logger *slog.Logger
}

// NewTransactionEngine creates a TransactionEngine.
func NewTransactionEngine(deps TransactionDeps) *TransactionEngine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.FormatItem == nil {
		deps.FormatItem = defaultItemFormat
	}
	return &TransactionEngine{deps: deps, ids: newIDSource(), logger: logger}
}

// SetViewCloser wires the component that closes views after funds or items
// turn out to be missing.
func (e *TransactionEngine) SetViewCloser(c ViewCloser) {
	e.closer = c
}

// Buy executes a purchase. The reward flavour comes from the offer, not the caller.
// Every precondition is checked before anything is debited.
func (e *TransactionEngine) Buy(ctx context.Context, viewer domain.ViewerID, marketID string, o *domain.LiveOffer, entry *domain.LedgerEntry) (Receipt, error) {
	if !o.Buyable() {
		return e.reject(viewer, marketID, o, domain.ErrUnbuyable, domain.MsgUnbuyable, false)
	}
	if limitReached(o.BuyLimit, entry.Bought) {
		return e.reject(viewer, marketID, o, domain.ErrLimitReached, domain.MsgBuyLimitReached, false)
	}

	price := decimal.Zero
	if o.BuyPrice != nil && o.BuyPrice.IsPositive() {
		price = *o.BuyPrice
		balance, err := e.deps.Economy.Balance(ctx, viewer)
		if err != nil {
			return Receipt{}, fmt.Errorf("read balance: %w", err)
		}
		if balance.LessThan(price) {
			return e.reject(viewer, marketID, o, domain.ErrInsufficientFunds, domain.MsgInsufficientFunds, true)
		}
	}

	// A basket may list the same item more than once; check the summed need.
	basket := domain.MergeStacks(o.Barter)
	for _, item := range basket {
		ok, err := e.deps.Inventory.HasAtLeast(ctx, viewer, item, item.Amount)
		if err != nil {
			return Receipt{}, fmt.Errorf("check barter items: %w", err)
		}
		if !ok {
			return e.reject(viewer, marketID, o, domain.ErrInsufficientItems, domain.MsgInsufficientItems, true)
		}
	}

	// All checks passed: mutate.
	if price.IsPositive() {
		if err := e.deps.Economy.Withdraw(ctx, viewer, price); err != nil {
			return Receipt{}, fmt.Errorf("withdraw: %w", err)
		}
	}
	for _, item := range basket {
		if err := e.deps.Inventory.Remove(ctx, viewer, item, item.Amount); err != nil {
			return Receipt{}, fmt.Errorf("remove barter items after check: %v", err)
		}
	}

	switch r := o.Reward.(type) {
	case domain.ItemReward:
		if err := e.deps.Inventory.Give(ctx, viewer, r.Stack, r.Stack.Amount); err != nil {
			return Receipt{}, fmt.Errorf("give reward: %w", err)
		}
	case domain.CommandReward:
		// Payment is already taken; a failing action is logged and the buy still counts.
		if err := e.deps.Actions.Run(ctx, viewer, r.BuyActions); err != nil {
			e.logger.Error("Buy actions failed", slog.String("market", marketID), slog.Int("position", o.Position), slog.Any("error", err))
		}
	}

	entry.Bought++

	balance, err := e.deps.Economy.Balance(ctx, viewer)
	if err != nil {
		return Receipt{}, fmt.Errorf("read balance: %w", err)
	}

	placeholders := map[string]string{
		"item":  e.rewardLabel(o),
		"price": "",
		"bal":   offer.FormatCurrency(balance),
	}
	if price.IsPositive() {
		placeholders["price"] = offer.FormatCurrency(price)
	}
	for i, item := range o.Barter {
		placeholders["item"+strconv.Itoa(i)] = e.deps.FormatItem(item)
	}
	e.deps.Notifier.Send(viewer, domain.MsgBuySuccess, placeholders)

	rcpt := Receipt{
		ID:       e.ids.next(e.deps.Clock.Now()),
		MarketID: marketID,
		Position: o.Position,
		Side:     SideBuy,
		Offer:    o.Name,
		Price:    price,
		Balance:  balance,
		Consumed: basket,
		Entry:    *entry,
	}
	e.complete(ctx, viewer, o, rcpt)
	return rcpt, nil
}

// Sell executes a sale. Item offers take the item back; command offers run their
// sell actions without any item check.
func (e *TransactionEngine) Sell(ctx context.Context, viewer domain.ViewerID, marketID string, o *domain.LiveOffer, entry *domain.LedgerEntry) (Receipt, error) {
	if !o.Sellable() {
		return e.reject(viewer, marketID, o, domain.ErrUnsellable, domain.MsgUnsellable, false)
	}
	if limitReached(o.SellLimit, entry.Sold) {
		return e.reject(viewer, marketID, o, domain.ErrLimitReached, domain.MsgSellLimitReached, false)
	}
	price := *o.SellPrice

	switch r := o.Reward.(type) {
	case domain.ItemReward:
		ok, err := e.deps.Inventory.HasAtLeast(ctx, viewer, r.Stack, r.Stack.Amount)
		if err != nil {
			return Receipt{}, fmt.Errorf("check sold item: %w", err)
		}
		if !ok {
			return e.reject(viewer, marketID, o, domain.ErrInsufficientItems, domain.MsgNotEnoughItems, true)
		}
		if err := e.deps.Inventory.Remove(ctx, viewer, r.Stack, r.Stack.Amount); err != nil {
			return Receipt{}, fmt.Errorf("remove sold item after check: %v", err)
		}
	case domain.CommandReward:
		if err := e.deps.Actions.Run(ctx, viewer, r.SellActions); err != nil {
			e.logger.Error("Sell actions failed", slog.String("market", marketID), slog.Int("position", o.Position), slog.Any("error", err))
		}
	}

	if err := e.deps.Economy.Deposit(ctx, viewer, price); err != nil {
		return Receipt{}, fmt.Errorf("deposit: %w", err)
	}
	entry.Sold++

	balance, err := e.deps.Economy.Balance(ctx, viewer)
	if err != nil {
		return Receipt{}, fmt.Errorf("read balance: %w", err)
	}

	e.deps.Notifier.Send(viewer, domain.MsgSellSuccess, map[string]string{
		"item":  e.rewardLabel(o),
		"price": offer.FormatCurrency(price),
		"bal":   offer.FormatCurrency(balance),
	})

	rcpt := Receipt{
		ID:       e.ids.next(e.deps.Clock.Now()),
		MarketID: marketID,
		Position: o.Position,
		Side:     SideSell,
		Offer:    o.Name,
		Price:    price,
		Balance:  balance,
		Entry:    *entry,
	}
	e.complete(ctx, viewer, o, rcpt)
	return rcpt, nil
}

// reject notifies the viewer and, when funds or items were missing, schedules
// their view to close.
func (e *TransactionEngine) reject(viewer domain.ViewerID, marketID string, o *domain.LiveOffer, kind error, msg string, closeView bool) (Receipt, error) {
	e.deps.Notifier.Send(viewer, msg, nil)
	if closeView && e.closer != nil {
		e.closer.ScheduleClose(viewer)
	}
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordRejected()
	}
	e.logger.Debug("Transaction rejected",
		slog.String("viewer", viewer.String()),
		slog.String("market", marketID),
		slog.Int("position", o.Position),
		slog.String("reason", kind.Error()))
	return Receipt{}, &domain.TransactionError{Kind: kind, MarketID: marketID, Position: o.Position}
}

func (e *TransactionEngine) complete(ctx context.Context, viewer domain.ViewerID, o *domain.LiveOffer, rcpt Receipt) {
	if e.deps.Metrics != nil {
		if rcpt.Side == SideBuy {
			e.deps.Metrics.RecordBuy()
		} else {
			e.deps.Metrics.RecordSell()
		}
	}
	if e.deps.Journal == nil {
		return
	}

	amount := 1
	if r, ok := o.Reward.(domain.ItemReward); ok {
		amount = r.Stack.Amount
	}
	err := e.deps.Journal.Record(ctx, domain.TransactionRecord{
		ID:       rcpt.ID,
		Viewer:   viewer,
		MarketID: rcpt.MarketID,
		Position: rcpt.Position,
		Side:     rcpt.Side,
		Offer:    rcpt.Offer,
		Amount:   amount,
		Price:    rcpt.Price,
		Balance:  rcpt.Balance,
		At:       e.deps.Clock.Now(),
	})
	if err != nil {
		e.logger.Error("Failed to journal transaction", slog.String("id", rcpt.ID), slog.Any("error", err))
	}
}

// rewardLabel is the item placeholder: the formatted stack for item offers,
// the transaction name for command offers.
func (e *TransactionEngine) rewardLabel(o *domain.LiveOffer) string {
	if r, ok := o.Reward.(domain.ItemReward); ok {
		return e.deps.FormatItem(r.Stack)
	}
	return o.Name
}

func limitReached(limit *int, used int) bool {
	return limit != nil && *limit > 0 && used >= *limit
}

func defaultItemFormat(s domain.ItemStack) string {
	return strconv.Itoa(s.Amount) + "x " + s.DisplayName()
}
