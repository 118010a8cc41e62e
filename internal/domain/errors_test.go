package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")

	t.Run("with market", func(t *testing.T) {
		err := NewConfigError("alpha", "refresh-time", baseErr)

		assert.Equal(t, "config error [alpha: refresh-time]: missing value", err.Error())
		assert.ErrorIs(t, err, baseErr)
	})

	t.Run("without market", func(t *testing.T) {
		err := &ConfigError{Field: "logging.level", Err: baseErr}
		assert.Equal(t, "config error [logging.level]: missing value", err.Error())
	})

	t.Run("as target", func(t *testing.T) {
		var ce *ConfigError
		require.ErrorAs(t, fmt.Errorf("load: %w", NewConfigError("a", "b", baseErr)), &ce)
		assert.Equal(t, "a", ce.Market)
		assert.Equal(t, "b", ce.Field)
	})
}

func TestTransactionError(t *testing.T) {
	err := &TransactionError{Kind: ErrLimitReached, MarketID: "alpha", Position: 3}

	assert.ErrorIs(t, err, ErrLimitReached, "TransactionError should unwrap to its kind")

	wrapped := fmt.Errorf("buy: %w", err)
	var te *TransactionError
	require.ErrorAs(t, wrapped, &te)
	assert.Equal(t, 3, te.Position)
}

func TestIsTransactionOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ErrUnbuyable, true},
		{ErrUnsellable, true},
		{ErrLimitReached, true},
		{fmt.Errorf("wrapped: %w", ErrInsufficientFunds), true},
		{&TransactionError{Kind: ErrInsufficientItems}, true},
		{ErrUnknownMarket, false},
		{errors.New("economy offline"), false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, IsTransactionOutcome(tc.err), "IsTransactionOutcome(%v)", tc.err)
	}
}
