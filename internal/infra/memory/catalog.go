package memory

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"market_go/internal/domain"
)

var (
	standardEnchants = []string{"efficiency", "fortune", "protection", "sharpness", "unbreaking", "power"}
	treasureEnchants = []string{"mending", "frost_walker", "soul_speed", "swift_sneak"}
)

// Catalog resolves item descriptors into stacks. With a non-empty allow list
// only the listed item types resolve.
type Catalog struct {
	allowed map[string]struct{}
}

// NewCatalog creates a catalog. Types are matched case-insensitively.
func NewCatalog(allowed ...string) *Catalog {
	c := &Catalog{}
	if len(allowed) > 0 {
		c.allowed = make(map[string]struct{}, len(allowed))
		for _, t := range allowed {
			c.allowed[normalizeType(t)] = struct{}{}
		}
	}
	return c
}

func normalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// Resolve builds the stack for desc. A requested enchantment gets one random
// enchantment at the rolled level; treasure requests may draw treasure ones.
func (c *Catalog) Resolve(desc domain.ItemDescriptor, amount int, enchant *domain.EnchantSpec) (domain.ItemStack, error) {
	typ := normalizeType(desc.Type)
	if typ == "" {
		return domain.ItemStack{}, fmt.Errorf("empty item type: %w", domain.ErrInvalidItemDescriptor)
	}
	if c.allowed != nil {
		if _, ok := c.allowed[typ]; !ok {
			return domain.ItemStack{}, fmt.Errorf("unknown item type %q: %w", desc.Type, domain.ErrInvalidItemDescriptor)
		}
	}
	if amount <= 0 {
		return domain.ItemStack{}, fmt.Errorf("amount %d for %s: %w", amount, typ, domain.ErrInvalidItemDescriptor)
	}

	stack := domain.ItemStack{
		Type:   typ,
		Name:   desc.Name,
		Lore:   append([]string(nil), desc.Lore...),
		Amount: amount,
	}
	if enchant != nil && enchant.Level > 0 {
		pool := standardEnchants
		if enchant.Treasure {
			pool = append(append([]string(nil), standardEnchants...), treasureEnchants...)
		}
		stack.Enchantments = map[string]int{pool[rand.IntN(len(pool))]: enchant.Level}
	}
	return stack, nil
}
