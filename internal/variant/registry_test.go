package variant_test

import (
	"testing"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/internal/reveal"
	"github.com/rocketscienceinc/gamesession-backend/internal/tictactoe"
	"github.com/rocketscienceinc/gamesession-backend/internal/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup(t *testing.T) {
	registry := variant.NewRegistry(tictactoe.NewGameController(), reveal.New(0))

	t.Run("Finds registered variants", func(t *testing.T) {
		rules, err := registry.Lookup(entity.VariantGrid)
		require.NoError(t, err)
		assert.Equal(t, entity.VariantGrid, rules.Variant())

		rules, err = registry.Lookup(entity.VariantReveal)
		require.NoError(t, err)
		assert.Equal(t, entity.VariantReveal, rules.Variant())
	})

	t.Run("Unknown variant is rejected", func(t *testing.T) {
		_, err := registry.Lookup("chess")
		assert.ErrorIs(t, err, apperror.ErrUnknownVariant)
	})
}
