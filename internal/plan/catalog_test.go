package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/types"
)

func TestCatalog_Limit(t *testing.T) {
	c := NewCatalog(nil)

	assert.Equal(t, 1, c.Limit(types.PlanFree))
	assert.Equal(t, 5, c.Limit(types.PlanBasic))
	assert.Equal(t, 50, c.Limit(types.PlanLifetime))
	assert.Equal(t, c.Limit(types.PlanFree), c.Limit("platinum"), "unknown tier falls back to free")
}

func TestCatalog_LinksAreCopied(t *testing.T) {
	links := map[types.PlanTier]string{types.PlanPro: "https://pay.example/pro"}
	c := NewCatalog(links)
	links[types.PlanPro] = "https://evil.example"

	p, ok := c.Get(types.PlanPro)
	require.True(t, ok)
	assert.Equal(t, "https://pay.example/pro", p.PaymentLink)
}

func TestCatalog_Parse(t *testing.T) {
	c := NewCatalog(nil)

	tier, err := c.Parse("  Intermediate ")
	require.NoError(t, err)
	assert.Equal(t, types.PlanIntermediate, tier)

	_, err = c.Parse("gold")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPlan))
}

func TestCatalog_AllOrderedAndRanked(t *testing.T) {
	c := NewCatalog(nil)
	all := c.All()

	require.Len(t, all, 6)
	assert.Equal(t, types.PlanFree, all[0].Tier)
	assert.False(t, all[0].Paid())
	for i := 1; i < len(all); i++ {
		assert.Greater(t, c.Rank(all[i].Tier), c.Rank(all[i-1].Tier))
		assert.GreaterOrEqual(t, all[i].WalletLimit, all[i-1].WalletLimit)
		assert.True(t, all[i].Paid())
	}
}
