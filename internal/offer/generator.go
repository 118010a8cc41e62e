package offer

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"market_go/internal/domain"
)

// Generator draws live offers from a market's pool.
type Generator struct {
	catalog domain.ItemCatalog
	policy  Policy
	logger  *slog.Logger
}

// NewGenerator creates a generator that resolves items through catalog.
func NewGenerator(catalog domain.ItemCatalog, policy Policy, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{catalog: catalog, policy: policy, logger: logger}
}

// Generate draws up to def.SlotCount() distinct templates without replacement and
// instantiates them at def.Positions in order. Templates whose items cannot be
// resolved are skipped and the draw continues, so the result may be shorter than
// requested. The pool itself is never modified.
func (g *Generator) Generate(def *domain.MarketDefinition) []*domain.LiveOffer {
	want := def.SlotCount()
	offers := make([]*domain.LiveOffer, 0, min(want, len(def.Pool)))

	// Working copy of pool indexes; drawn entries are swapped past the live window.
	remaining := make([]int, len(def.Pool))
	for i := range remaining {
		remaining[i] = i
	}
	n := len(remaining)

	for len(offers) < want && n > 0 {
		j := rand.IntN(n)
		idx := remaining[j]
		remaining[j] = remaining[n-1]
		n--

		tmpl := &def.Pool[idx]
		live, err := g.instantiate(def.Kind, tmpl, def.Positions[len(offers)])
		if err != nil {
			g.logger.Warn("Skipping offer template",
				slog.String("market", def.ID),
				slog.Int("template", idx),
				slog.Any("error", err))
			continue
		}
		offers = append(offers, live)
	}
	return offers
}

func (g *Generator) instantiate(kind domain.MarketKind, t *domain.OfferTemplate, position int) (*domain.LiveOffer, error) {
	live := &domain.LiveOffer{
		Template:  t,
		Position:  position,
		BuyLimit:  t.BuyLimit,
		SellLimit: t.SellLimit,
	}

	barter, err := g.resolveBarter(t.Barter)
	if err != nil {
		return nil, err
	}
	live.Barter = barter

	amount := RollAmount(t.Amount)

	if kind == domain.KindTradeSet {
		out, err := g.catalog.Resolve(t.Item, amount, RollEnchant(t.Enchants))
		if err != nil {
			return nil, fmt.Errorf("trade output: %w", err)
		}
		live.Reward = domain.ItemReward{Stack: out}
		live.Display = out
		live.Name = nameOr(t.Name, out)
		return live, nil
	}

	live.BuyPrice = RollPrice(t.Buy, g.policy.Buy)
	live.SellPrice = RollPrice(t.Sell, g.policy.Sell)

	switch t.Kind {
	case domain.RewardItem:
		stack, err := g.catalog.Resolve(t.Item, amount, RollEnchant(t.Enchants))
		if err != nil {
			return nil, fmt.Errorf("transaction item: %w", err)
		}
		live.Reward = domain.ItemReward{Stack: stack}
		live.Display = stack
		if !t.Display.IsZero() {
			if live.Display, err = g.catalog.Resolve(t.Display, amount, nil); err != nil {
				return nil, fmt.Errorf("display item: %w", err)
			}
		}
		live.Name = nameOr(t.Name, stack)
	case domain.RewardCommand:
		display, err := g.catalog.Resolve(t.Display, amount, nil)
		if err != nil {
			return nil, fmt.Errorf("display item: %w", err)
		}
		live.Display = display
		live.Reward = domain.CommandReward{
			BuyActions:  append([]string(nil), t.BuyActions...),
			SellActions: append([]string(nil), t.SellActions...),
		}
		live.Name = nameOr(t.Name, display)
	default:
		return nil, fmt.Errorf("unsupported reward kind %v", t.Kind)
	}
	return live, nil
}

func (g *Generator) resolveBarter(items []domain.BarterTemplate) ([]domain.ItemStack, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]domain.ItemStack, 0, len(items))
	for i, b := range items {
		stack, err := g.catalog.Resolve(b.Item, RollAmount(b.Amount), RollEnchant(b.Enchants))
		if err != nil {
			return nil, fmt.Errorf("barter[%d]: %w", i, err)
		}
		out = append(out, stack)
	}
	return out, nil
}

func nameOr(name string, stack domain.ItemStack) string {
	if name != "" {
		return name
	}
	return stack.DisplayName()
}
