// Package types provides common type definitions for the wallet watcher.
package types

// PlanTier identifies a subscription plan in the plan catalog
type PlanTier string

const (
	// PlanFree is the default plan every user starts on
	PlanFree PlanTier = "free"
	// PlanBasic is the entry paid plan
	PlanBasic PlanTier = "basic"
	// PlanIntermediate is the mid paid plan
	PlanIntermediate PlanTier = "intermediate"
	// PlanAdvanced is the upper paid plan
	PlanAdvanced PlanTier = "advanced"
	// PlanPro is the highest recurring plan
	PlanPro PlanTier = "pro"
	// PlanLifetime is a one-off purchase with the pro quota
	PlanLifetime PlanTier = "lifetime"
)

// SubscriptionStatus represents the payment-provider side status of a user
type SubscriptionStatus string

const (
	// SubscriptionActive means the last checkout was confirmed
	SubscriptionActive SubscriptionStatus = "active"
	// SubscriptionInactive is the default for users that never paid
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// TransactionDirection represents whether a transaction is incoming or outgoing
type TransactionDirection string

const (
	// DirectionInbound represents an incoming transaction (wallet is recipient)
	DirectionInbound TransactionDirection = "inbound"
	// DirectionOutbound represents an outgoing transaction (wallet is sender)
	DirectionOutbound TransactionDirection = "outbound"
)

// Verdict is the classifier's decision for one transaction
type Verdict string

const (
	// VerdictRelevant means the transaction moved value and should be notified
	VerdictRelevant Verdict = "relevant"
	// VerdictIgnorable means zero value; it still advances the watermark
	VerdictIgnorable Verdict = "ignorable"
	// VerdictStale means the transaction is below the wallet's watermark
	VerdictStale Verdict = "stale"
)

// ChainID represents a supported EVM network
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = "polygon"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = "optimism"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainBNB represents the BNB Chain (BSC)
	ChainBNB ChainID = "bnb"
)

// RawTransaction is one explorer record, as returned by txlist
type RawTransaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // wei, decimal string
	BlockNumber uint64 `json:"blockNumber"`
	Timestamp   int64  `json:"timestamp"`
	IsError     bool   `json:"isError"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
