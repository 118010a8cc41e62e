package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"market_go/internal/domain"
)

// Inventory tracks item counts per viewer. Stacks are matched on type and
// display name; lore and enchantments do not split a pile.
type Inventory struct {
	mu    sync.RWMutex
	items map[domain.ViewerID]map[itemKey]int
}

type itemKey struct {
	typ  string
	name string
}

func keyOf(s domain.ItemStack) itemKey {
	return itemKey{typ: s.Type, name: s.Name}
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{items: make(map[domain.ViewerID]map[itemKey]int)}
}

func (inv *Inventory) HasAtLeast(_ context.Context, viewer domain.ViewerID, item domain.ItemStack, qty int) (bool, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.items[viewer][keyOf(item)] >= qty, nil
}

func (inv *Inventory) Remove(_ context.Context, viewer domain.ViewerID, item domain.ItemStack, qty int) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	held := inv.items[viewer][keyOf(item)]
	if held < qty {
		return fmt.Errorf("remove %dx %s, holding %d: %w", qty, item.DisplayName(), held, domain.ErrInsufficientItems)
	}
	if held == qty {
		delete(inv.items[viewer], keyOf(item))
		return nil
	}
	inv.items[viewer][keyOf(item)] = held - qty
	return nil
}

func (inv *Inventory) Give(_ context.Context, viewer domain.ViewerID, item domain.ItemStack, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("give %s: quantity must be positive, got %d", item.DisplayName(), qty)
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	bag, ok := inv.items[viewer]
	if !ok {
		bag = make(map[itemKey]int)
		inv.items[viewer] = bag
	}
	bag[keyOf(item)] += qty
	return nil
}

// Count returns how many of item the viewer holds.
func (inv *Inventory) Count(viewer domain.ViewerID, item domain.ItemStack) int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.items[viewer][keyOf(item)]
}

// Contents lists the viewer's items sorted by type then name.
func (inv *Inventory) Contents(viewer domain.ViewerID) []domain.ItemStack {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	out := make([]domain.ItemStack, 0, len(inv.items[viewer]))
	for k, n := range inv.items[viewer] {
		out = append(out, domain.ItemStack{Type: k.typ, Name: k.name, Amount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}
