package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wallet-watch/internal/logging"
	"github.com/wallet-watch/internal/types"
)

const (
	nativeDecimals = 18
	displayPlaces  = 6
)

// Classification is the classifier's verdict for one transaction
type Classification struct {
	Verdict      types.Verdict
	Direction    types.TransactionDirection
	Amount       decimal.Decimal // native units, rounded to 6 places
	TxHash       string
	BlockNumber  uint64
	Counterparty string
	Failed       bool
}

// AmountString renders the amount with exactly 6 decimals
func (c Classification) AmountString() string {
	return c.Amount.StringFixed(displayPlaces)
}

// TransactionClassifier decides whether a raw explorer record is stale,
// a zero-value no-op or worth notifying about.
type TransactionClassifier struct {
	decimals int32
	places   int32
}

// NewTransactionClassifier creates a classifier for an 18-decimal native asset
func NewTransactionClassifier() *TransactionClassifier {
	return &TransactionClassifier{decimals: nativeDecimals, places: displayPlaces}
}

// Classify is pure: it never touches the store or the network.
// walletAddr must already be lower-cased.
func (c *TransactionClassifier) Classify(walletAddr string, watermark uint64, tx types.RawTransaction) Classification {
	out := Classification{
		TxHash:      tx.Hash,
		BlockNumber: tx.BlockNumber,
		Failed:      tx.IsError,
	}

	if tx.BlockNumber < watermark {
		out.Verdict = types.VerdictStale
		return out
	}

	if strings.ToLower(tx.From) == walletAddr {
		out.Direction = types.DirectionOutbound
		out.Counterparty = strings.ToLower(tx.To)
	} else {
		out.Direction = types.DirectionInbound
		out.Counterparty = strings.ToLower(tx.From)
	}

	raw := strings.TrimSpace(tx.Value)
	if raw == "" {
		out.Verdict = types.VerdictIgnorable
		return out
	}

	wei, err := decimal.NewFromString(raw)
	if err != nil || wei.IsNegative() {
		logging.WithFields(map[string]interface{}{
			"txHash": tx.Hash,
			"value":  tx.Value,
		}).Warn("Unparsable transaction value, treating as zero")
		out.Verdict = types.VerdictIgnorable
		return out
	}
	if wei.IsZero() {
		out.Verdict = types.VerdictIgnorable
		return out
	}

	out.Verdict = types.VerdictRelevant
	out.Amount = wei.Shift(-c.decimals).Round(c.places)
	return out
}
