// Package plan holds the read-only plan catalog: display names, wallet quotas
// and checkout links per plan tier.
package plan

import (
	"sort"
	"strings"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/types"
)

// Plan describes one purchasable tier
type Plan struct {
	Tier        types.PlanTier
	DisplayName string
	WalletLimit int
	PriceRef    string // human readable price, shown in /plans
	PaymentLink string // checkout URL; empty for free
	rank        int
}

// Paid reports whether the tier requires a checkout
func (p Plan) Paid() bool {
	return p.Tier != types.PlanFree
}

// Catalog is the authoritative plan table. It is built once at startup and
// never mutated.
type Catalog struct {
	plans map[types.PlanTier]Plan
}

var planDefaults = []Plan{
	{Tier: types.PlanFree, DisplayName: "Free", WalletLimit: 1, PriceRef: "free", rank: 0},
	{Tier: types.PlanBasic, DisplayName: "Basic", WalletLimit: 5, PriceRef: "$4.99/mo", rank: 1},
	{Tier: types.PlanIntermediate, DisplayName: "Intermediate", WalletLimit: 15, PriceRef: "$9.99/mo", rank: 2},
	{Tier: types.PlanAdvanced, DisplayName: "Advanced", WalletLimit: 30, PriceRef: "$19.99/mo", rank: 3},
	{Tier: types.PlanPro, DisplayName: "Pro", WalletLimit: 50, PriceRef: "$29.99/mo", rank: 4},
	{Tier: types.PlanLifetime, DisplayName: "Lifetime", WalletLimit: 50, PriceRef: "$199 once", rank: 5},
}

// NewCatalog returns the default catalog with checkout links attached.
// links is copied; later changes to it do not affect the catalog.
func NewCatalog(links map[types.PlanTier]string) *Catalog {
	m := make(map[types.PlanTier]Plan, len(planDefaults))
	for _, p := range planDefaults {
		p.PaymentLink = links[p.Tier]
		m[p.Tier] = p
	}
	return &Catalog{plans: m}
}

// Get returns the plan for tier
func (c *Catalog) Get(tier types.PlanTier) (Plan, bool) {
	p, ok := c.plans[tier]
	return p, ok
}

// Limit returns the wallet quota for tier. Unknown tiers get the free quota.
func (c *Catalog) Limit(tier types.PlanTier) int {
	if p, ok := c.plans[tier]; ok {
		return p.WalletLimit
	}
	return c.plans[types.PlanFree].WalletLimit
}

// Rank orders tiers for sweep priority; higher is dispatched first.
// Unknown tiers rank with free.
func (c *Catalog) Rank(tier types.PlanTier) int {
	return c.plans[tier].rank
}

// Parse resolves a user supplied tag such as "Pro" or " basic "
func (c *Catalog) Parse(tag string) (types.PlanTier, error) {
	tier := types.PlanTier(strings.ToLower(strings.TrimSpace(tag)))
	if _, ok := c.plans[tier]; !ok {
		return "", apperrors.NewInvalidPlanError(tag)
	}
	return tier, nil
}

// All returns every plan, cheapest first
func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rank < out[j].rank })
	return out
}
