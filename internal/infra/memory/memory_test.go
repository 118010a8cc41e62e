package memory

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_go/internal/domain"
)

func TestEconomy(t *testing.T) {
	ctx := context.Background()
	e := NewEconomy(decimal.NewFromInt(100))
	viewer := uuid.New()

	bal, _ := e.Balance(ctx, viewer)
	assert.True(t, bal.Equal(decimal.NewFromInt(100)), "seed balance = %s", bal)

	require.NoError(t, e.Withdraw(ctx, viewer, decimal.RequireFromString("30.25")))
	require.NoError(t, e.Deposit(ctx, viewer, decimal.RequireFromString("0.5")))
	bal, _ = e.Balance(ctx, viewer)
	assert.Equal(t, "70.25", bal.String())

	assert.ErrorIs(t, e.Withdraw(ctx, viewer, decimal.NewFromInt(1000)), domain.ErrInsufficientFunds)
	assert.Error(t, e.Deposit(ctx, viewer, decimal.NewFromInt(-1)), "negative deposit")

	snap := e.Snapshot()
	assert.Equal(t, uint64(2), snap[viewer].Version)

	e.SetBalance(uuid.New(), decimal.NewFromInt(5))
	assert.Equal(t, "75.25", e.Total().String())
}

func TestInventory(t *testing.T) {
	ctx := context.Background()
	inv := NewInventory()
	viewer := uuid.New()
	wheat := domain.ItemStack{Type: "WHEAT"}
	named := domain.ItemStack{Type: "WHEAT", Name: "Golden Wheat"}

	require.NoError(t, inv.Give(ctx, viewer, wheat, 20))
	require.NoError(t, inv.Give(ctx, viewer, named, 1))

	ok, _ := inv.HasAtLeast(ctx, viewer, wheat, 20)
	assert.True(t, ok, "expected 20 wheat")
	ok, _ = inv.HasAtLeast(ctx, viewer, named, 2)
	assert.False(t, ok, "named stack must not count plain wheat")

	assert.ErrorIs(t, inv.Remove(ctx, viewer, wheat, 21), domain.ErrInsufficientItems)
	require.NoError(t, inv.Remove(ctx, viewer, wheat, 20))
	assert.Zero(t, inv.Count(viewer, wheat))

	contents := inv.Contents(viewer)
	require.Len(t, contents, 1)
	assert.Equal(t, "Golden Wheat", contents[0].Name)

	assert.Error(t, inv.Give(ctx, viewer, wheat, 0), "zero give")
}

func TestInventory_MatchesMergedStacks(t *testing.T) {
	ctx := context.Background()
	inv := NewInventory()
	viewer := uuid.New()
	require.NoError(t, inv.Give(ctx, viewer, domain.ItemStack{Type: "WHEAT"}, 40))

	// Lore does not split a pile, so merged basket entries must agree with the inventory's view.
	basket := domain.MergeStacks([]domain.ItemStack{
		{Type: "WHEAT", Amount: 32},
		{Type: "WHEAT", Lore: []string{"fresh"}, Amount: 32},
	})
	require.Len(t, basket, 1)

	ok, _ := inv.HasAtLeast(ctx, viewer, basket[0], basket[0].Amount)
	assert.False(t, ok, "40 wheat cannot cover a 64 wheat basket")
}

func TestCatalog(t *testing.T) {
	c := NewCatalog("diamond", "emerald")

	stack, err := c.Resolve(domain.ItemDescriptor{Type: " Diamond ", Name: "Gem", Lore: []string{"shiny"}}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, "DIAMOND", stack.Type)
	assert.Equal(t, 3, stack.Amount)
	assert.Equal(t, "Gem", stack.Name)
	assert.Len(t, stack.Lore, 1)
	assert.Nil(t, stack.Enchantments)

	tests := []struct {
		name   string
		desc   domain.ItemDescriptor
		amount int
	}{
		{"empty type", domain.ItemDescriptor{}, 1},
		{"not allowed", domain.ItemDescriptor{Type: "BEDROCK"}, 1},
		{"zero amount", domain.ItemDescriptor{Type: "DIAMOND"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Resolve(tt.desc, tt.amount, nil)
			assert.ErrorIs(t, err, domain.ErrInvalidItemDescriptor)
		})
	}
}

func TestCatalog_Enchant(t *testing.T) {
	c := NewCatalog()

	stack, err := c.Resolve(domain.ItemDescriptor{Type: "DIAMOND_PICKAXE"}, 1, &domain.EnchantSpec{Level: 4})
	require.NoError(t, err)
	require.Len(t, stack.Enchantments, 1)
	for name, level := range stack.Enchantments {
		assert.Equal(t, 4, level)
		assert.NotContains(t, treasureEnchants, name, "non-treasure roll drew a treasure enchant")
	}
}

func TestActionLog(t *testing.T) {
	log := NewActionLog(2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	viewer := uuid.New()

	err := log.Run(context.Background(), viewer, []string{"fly <player> on", "say hi", "give <uuid> 1"})
	require.NoError(t, err)

	history := log.History()
	require.Len(t, history, 2, "history capped at 2")
	assert.Equal(t, "say hi", history[0].Command, "oldest kept entry")
	assert.Equal(t, "give "+viewer.String()+" 1", history[1].Command)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, log.Run(ctx, viewer, []string{"noop"}), context.Canceled)
}
