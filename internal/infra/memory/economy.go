// Package memory provides in-process implementations of the market's
// collaborators: economy, inventory, item catalog and action runner.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"market_go/internal/domain"
)

// Account is one viewer's balance.
type Account struct {
	Viewer  domain.ViewerID `json:"viewer"`
	Balance decimal.Decimal `json:"balance"`
	Version uint64          `json:"version"` // bumped on every change
}

// Economy is a thread-safe balance book. Viewers seen for the first time
// start with the seed balance.
type Economy struct {
	mu       sync.RWMutex
	accounts map[domain.ViewerID]*Account
	seed     decimal.Decimal
}

// NewEconomy creates an economy whose new accounts start at seed.
func NewEconomy(seed decimal.Decimal) *Economy {
	return &Economy{
		accounts: make(map[domain.ViewerID]*Account),
		seed:     seed,
	}
}

// account returns (creating if needed) the viewer's account. Caller holds mu.
func (e *Economy) account(viewer domain.ViewerID) *Account {
	a, ok := e.accounts[viewer]
	if !ok {
		a = &Account{Viewer: viewer, Balance: e.seed}
		e.accounts[viewer] = a
	}
	return a
}

func (e *Economy) Balance(_ context.Context, viewer domain.ViewerID) (decimal.Decimal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if a, ok := e.accounts[viewer]; ok {
		return a.Balance, nil
	}
	return e.seed, nil
}

func (e *Economy) Withdraw(_ context.Context, viewer domain.ViewerID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("withdraw: negative amount %s", amount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.account(viewer)
	if a.Balance.LessThan(amount) {
		return fmt.Errorf("withdraw %s from %s: %w", amount, a.Balance, domain.ErrInsufficientFunds)
	}
	a.Balance = a.Balance.Sub(amount)
	a.Version++
	return nil
}

func (e *Economy) Deposit(_ context.Context, viewer domain.ViewerID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("deposit: negative amount %s", amount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.account(viewer)
	a.Balance = a.Balance.Add(amount)
	a.Version++
	return nil
}

// SetBalance overwrites a viewer's balance.
func (e *Economy) SetBalance(viewer domain.ViewerID, amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a := e.account(viewer)
	a.Balance = amount
	a.Version++
}

// Snapshot returns a copy of all accounts.
func (e *Economy) Snapshot() map[domain.ViewerID]Account {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make(map[domain.ViewerID]Account, len(e.accounts))
	for k, v := range e.accounts {
		result[k] = *v
	}
	return result
}

// Total returns the sum of every balance.
func (e *Economy) Total() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := decimal.Zero
	for _, a := range e.accounts {
		total = total.Add(a.Balance)
	}
	return total
}
