package domain

import (
	"errors"
	"fmt"
	"strings"
)

// MarketDefinition is a validated market configuration: the immutable Offer Pool
// plus everything the registry needs to generate and schedule it.
type MarketDefinition struct {
	ID              string // Stable key (config file name without extension)
	Name            string
	Kind            MarketKind
	RefreshInterval string // Compound duration, e.g. "1d12h30m"
	Positions       []int  // Slot indexes (slot grid) or trade indexes (trade set) to fill
	Pool            []OfferTemplate
}

// SlotCount returns how many offers one generation should hold.
func (d *MarketDefinition) SlotCount() int {
	return len(d.Positions)
}

// Validate checks definition validity. A definition that fails is never loaded.
func (d *MarketDefinition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return NewConfigError("", "id", errors.New("market id is required"))
	}
	if d.Kind != KindSlotGrid && d.Kind != KindTradeSet {
		return NewConfigError(d.ID, "kind", fmt.Errorf("unsupported market kind %d", d.Kind))
	}
	if _, err := ParseInterval(d.RefreshInterval); err != nil {
		return NewConfigError(d.ID, "refresh-time", err)
	}
	if len(d.Positions) == 0 {
		return NewConfigError(d.ID, "positions", errors.New("at least one slot or trade is required"))
	}

	seen := make(map[int]struct{}, len(d.Positions))
	for _, p := range d.Positions {
		if p < 0 {
			return NewConfigError(d.ID, "positions", fmt.Errorf("negative position %d", p))
		}
		if _, dup := seen[p]; dup {
			return NewConfigError(d.ID, "positions", fmt.Errorf("duplicate position %d", p))
		}
		seen[p] = struct{}{}
	}

	for i := range d.Pool {
		if err := d.Pool[i].validate(d.Kind); err != nil {
			return NewConfigError(d.ID, fmt.Sprintf("items[%d]", i), err)
		}
	}
	return nil
}

func (t *OfferTemplate) validate(kind MarketKind) error {
	if err := t.Amount.validate(); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if t.Enchants.Enabled && (t.Enchants.Min < 0 || t.Enchants.Max < t.Enchants.Min) {
		return fmt.Errorf("random-enchants: invalid range [%d,%d]", t.Enchants.Min, t.Enchants.Max)
	}
	if err := t.Buy.validate(); err != nil {
		return fmt.Errorf("buy price: %w", err)
	}
	if err := t.Sell.validate(); err != nil {
		return fmt.Errorf("sell price: %w", err)
	}
	for i, b := range t.Barter {
		if b.Item.IsZero() {
			return fmt.Errorf("barter[%d]: item type is required", i)
		}
		if err := b.Amount.validate(); err != nil {
			return fmt.Errorf("barter[%d] amount: %w", i, err)
		}
	}
	if t.BuyLimit != nil && *t.BuyLimit < 0 {
		return errors.New("buy-limit must not be negative")
	}
	if t.SellLimit != nil && *t.SellLimit < 0 {
		return errors.New("sell-limit must not be negative")
	}

	if kind == KindTradeSet {
		if t.Item.IsZero() {
			return errors.New("trade output is required")
		}
		if len(t.Barter) == 0 {
			return errors.New("trade input1 is required")
		}
		return nil
	}

	switch t.Kind {
	case RewardItem:
		if t.Item.IsZero() {
			return errors.New("transaction-item is required")
		}
	case RewardCommand:
		if t.Buy.IsPositive() && len(t.BuyActions) == 0 {
			return errors.New("buy-commands are required when a buy price is set")
		}
		if t.Sell.IsPositive() && len(t.SellActions) == 0 {
			return errors.New("sell-commands are required when a sell price is set")
		}
	default:
		return fmt.Errorf("unsupported transaction-type %d", t.Kind)
	}
	if t.Display.IsZero() && t.Item.IsZero() {
		return errors.New("display-item is required")
	}
	return nil
}

func (a AmountRange) validate() error {
	if a.Fixed != nil {
		if *a.Fixed <= 0 {
			return fmt.Errorf("fixed amount must be positive, got %d", *a.Fixed)
		}
		return nil
	}
	if (a.Min == nil) != (a.Max == nil) {
		return errors.New("min and max must be set together")
	}
	if a.Min != nil && (*a.Min <= 0 || *a.Max < *a.Min) {
		return fmt.Errorf("invalid range [%d,%d]", *a.Min, *a.Max)
	}
	return nil
}

func (b PriceBand) validate() error {
	if b.Fixed != nil {
		if b.Fixed.IsNegative() {
			return errors.New("fixed price must not be negative")
		}
		return nil
	}
	if (b.Min == nil) != (b.Max == nil) {
		return errors.New("min and max must be set together")
	}
	if b.Min != nil && b.Max.LessThan(*b.Min) {
		return fmt.Errorf("max %s is below min %s", b.Max.String(), b.Min.String())
	}
	return nil
}
