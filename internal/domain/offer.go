package domain

import (
	"github.com/shopspring/decimal"
)

// MarketKind distinguishes slot-grid shops from barter trade sets.
type MarketKind int

const (
	KindSlotGrid MarketKind = iota + 1
	KindTradeSet
)

// String returns the string representation of MarketKind
func (k MarketKind) String() string {
	switch k {
	case KindSlotGrid:
		return "slot_grid"
	case KindTradeSet:
		return "trade_set"
	default:
		return "unknown"
	}
}

// ItemDescriptor is an item as configured, before amount and enchantments are resolved.
type ItemDescriptor struct {
	Type string   `json:"type" yaml:"type"`
	Name string   `json:"name,omitempty" yaml:"name"`
	Lore []string `json:"lore,omitempty" yaml:"lore"`
}

// IsZero reports whether no item type was configured.
func (d ItemDescriptor) IsZero() bool {
	return d.Type == ""
}

// AmountRange is either a fixed amount or an inclusive [Min, Max] band.
// A zero AmountRange resolves to 1.
type AmountRange struct {
	Fixed *int `json:"fixed,omitempty" yaml:"fixed"`
	Min   *int `json:"min,omitempty" yaml:"min"`
	Max   *int `json:"max,omitempty" yaml:"max"`
}

// PriceBand is either a fixed price or a [Min, Max] band. Unset means "no price".
type PriceBand struct {
	Fixed *decimal.Decimal `json:"fixed,omitempty"`
	Min   *decimal.Decimal `json:"min,omitempty"`
	Max   *decimal.Decimal `json:"max,omitempty"`
}

// IsSet reports whether the band can produce a price.
func (b PriceBand) IsSet() bool {
	return b.Fixed != nil || (b.Min != nil && b.Max != nil)
}

// IsPositive reports whether the band can produce a price above zero.
func (b PriceBand) IsPositive() bool {
	if b.Fixed != nil {
		return b.Fixed.IsPositive()
	}
	return b.Min != nil && b.Max != nil && (b.Min.IsPositive() || b.Max.IsPositive())
}

// EnchantRoll requests a random enchantment level in [Min, Max] at generation time.
type EnchantRoll struct {
	Enabled  bool `json:"enabled" yaml:"enchant-randomly"`
	Min      int  `json:"min" yaml:"min"`
	Max      int  `json:"max" yaml:"max"`
	Treasure bool `json:"treasure" yaml:"treasure"`
}

// EnchantSpec is a rolled enchantment request handed to the ItemCatalog.
type EnchantSpec struct {
	Level    int
	Treasure bool
}

// BarterTemplate is one configured barter basket item.
type BarterTemplate struct {
	Item     ItemDescriptor
	Amount   AmountRange
	Enchants EnchantRoll
}

// RewardKind selects the transaction flavour of an offer.
type RewardKind int

const (
	RewardItem RewardKind = iota + 1
	RewardCommand
)

// String returns the string representation of RewardKind
func (k RewardKind) String() string {
	switch k {
	case RewardItem:
		return "item"
	case RewardCommand:
		return "command"
	default:
		return "unknown"
	}
}

// OfferTemplate is one entry of an immutable Offer Pool.
// Trade-set entries use Barter for the trade inputs, Item for the output
// and BuyLimit for the trade's max uses.
type OfferTemplate struct {
	Name    string // Transaction name shown in messages
	Display ItemDescriptor
	Kind    RewardKind

	Item     ItemDescriptor // Reward item (RewardItem)
	Amount   AmountRange
	Enchants EnchantRoll

	Buy    PriceBand
	Sell   PriceBand
	Barter []BarterTemplate

	BuyLimit  *int
	SellLimit *int

	BuyActions  []string // RewardCommand
	SellActions []string // RewardCommand
}

// ItemStack is a concrete, grantable item produced by the ItemCatalog.
type ItemStack struct {
	Type         string         `json:"type"`
	Name         string         `json:"name,omitempty"`
	Lore         []string       `json:"lore,omitempty"`
	Amount       int            `json:"amount"`
	Enchantments map[string]int `json:"enchantments,omitempty"`
}

// DisplayName returns the configured name, falling back to the item type.
func (s ItemStack) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Type
}

// SameItem reports whether two stacks fill the same inventory pile (type and name).
func (s ItemStack) SameItem(o ItemStack) bool {
	return s.Type == o.Type && s.Name == o.Name
}

// MergeStacks folds stacks of the same item into one stack carrying the summed
// amount, keeping first-seen order. The input is not modified.
func MergeStacks(stacks []ItemStack) []ItemStack {
	out := make([]ItemStack, 0, len(stacks))
next:
	for _, s := range stacks {
		for i := range out {
			if out[i].SameItem(s) {
				out[i].Amount += s.Amount
				continue next
			}
		}
		out = append(out, s)
	}
	return out
}

// Reward is what a successful buy grants: an ItemReward or a CommandReward.
// It is selected once at generation time.
type Reward interface {
	Kind() RewardKind
}

// ItemReward grants (buy) or takes (sell) a concrete item stack.
type ItemReward struct {
	Stack ItemStack `json:"stack"`
}

func (ItemReward) Kind() RewardKind { return RewardItem }

// CommandReward runs side-effect actions as a privileged actor.
type CommandReward struct {
	BuyActions  []string `json:"buy_actions,omitempty"`
	SellActions []string `json:"sell_actions,omitempty"`
}

func (CommandReward) Kind() RewardKind { return RewardCommand }

// LiveOffer is one instantiated offer of a market generation. It is never mutated
// after generation; a refresh produces new LiveOffers.
type LiveOffer struct {
	Template  *OfferTemplate   `json:"-"`
	Position  int              `json:"position"`
	Name      string           `json:"name"`
	Display   ItemStack        `json:"display"`
	BuyPrice  *decimal.Decimal `json:"buy_price,omitempty"`  // nil: not purchasable for currency
	SellPrice *decimal.Decimal `json:"sell_price,omitempty"` // nil: not sellable
	Barter    []ItemStack      `json:"barter,omitempty"`
	Reward    Reward           `json:"reward"`
	BuyLimit  *int             `json:"buy_limit,omitempty"` // nil: unlimited
	SellLimit *int             `json:"sell_limit,omitempty"`
}

// Buyable reports whether the offer has a positive buy price or a barter basket.
func (o *LiveOffer) Buyable() bool {
	return (o.BuyPrice != nil && o.BuyPrice.IsPositive()) || len(o.Barter) > 0
}

// Sellable reports whether the offer has a positive sell price.
func (o *LiveOffer) Sellable() bool {
	return o.SellPrice != nil && o.SellPrice.IsPositive()
}

// LedgerEntry counts one viewer's transactions against one offer position
// within the current generation.
type LedgerEntry struct {
	Bought int `json:"bought"`
	Sold   int `json:"sold"`
}

// TradeState is one row of a viewer's in-progress trade list.
type TradeState struct {
	Position int         `json:"position"`
	Inputs   []ItemStack `json:"inputs"`
	Output   ItemStack   `json:"output"`
	Uses     int         `json:"uses"`
	MaxUses  int         `json:"max_uses"` // 0 means unlimited
}

// Exhausted reports whether all uses of the trade are spent.
func (t TradeState) Exhausted() bool {
	return t.MaxUses > 0 && t.Uses >= t.MaxUses
}

// CanonicalTrades builds the pristine trade list of a trade-set generation.
func CanonicalTrades(offers []*LiveOffer) []TradeState {
	trades := make([]TradeState, 0, len(offers))
	for _, o := range offers {
		ts := TradeState{
			Position: o.Position,
			Inputs:   append([]ItemStack(nil), o.Barter...),
		}
		if r, ok := o.Reward.(ItemReward); ok {
			ts.Output = r.Stack
		}
		if o.BuyLimit != nil && *o.BuyLimit > 0 {
			ts.MaxUses = *o.BuyLimit
		}
		trades = append(trades, ts)
	}
	return trades
}

// CloneTrades returns a deep-enough copy for storing a snapshot.
func CloneTrades(trades []TradeState) []TradeState {
	if trades == nil {
		return nil
	}
	out := make([]TradeState, len(trades))
	for i, t := range trades {
		out[i] = t
		out[i].Inputs = append([]ItemStack(nil), t.Inputs...)
	}
	return out
}
