package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wallet-watch/internal/circuitbreaker"
	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/logging"
	"github.com/wallet-watch/internal/retry"
	"github.com/wallet-watch/internal/types"
)

const (
	providerEtherscan = "etherscan"
	endBlockOpen      = "99999999"
	maxResponseBytes  = 16 << 20

	// txlist never returns more than this many records per query
	MaxPageSize = 10000
)

// EtherscanConfig configures the Etherscan v2 client
type EtherscanConfig struct {
	APIKey      string
	BaseURL     string
	ChainID     int
	RPS         float64       // requests per second, shared by every caller
	Timeout     time.Duration // budget for one FetchTransactionsSince call, retries included
	MaxAttempts int
	PageSize    int // records per query, at most MaxPageSize
}

// EtherscanClient fetches normal transactions for an address from the
// Etherscan v2 multichain API.
type EtherscanClient struct {
	cfg      EtherscanConfig
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
}

// etherscanTransaction is one txlist record; Etherscan encodes every number as a string
type etherscanTransaction struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	IsError     string `json:"isError"`
}

// etherscanEnvelope is the common response wrapper. Result is an array on
// success and a string on errors.
type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// NewEtherscanClient creates a new Etherscan API client
func NewEtherscanClient(cfg EtherscanConfig) *EtherscanClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.etherscan.io/v2/api"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 1
	}
	if cfg.RPS <= 0 {
		// free tier
		cfg.RPS = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}

	isUnavailable := func(err error) bool { return errors.Is(err, apperrors.ErrUpstreamUnavailable) }

	breakerCfg := circuitbreaker.DefaultConfig(providerEtherscan)
	breakerCfg.IsFailure = isUnavailable

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.MaxAttempts
	retryCfg.Retryable = isUnavailable

	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}

	return &EtherscanClient{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		breaker:  circuitbreaker.New(breakerCfg),
		retryCfg: retryCfg,
	}
}

// Chain returns the network this client queries
func (c *EtherscanClient) Chain() ChainInfo {
	return LookupChain(c.cfg.ChainID)
}

// BreakerStats exposes the upstream circuit state for health reporting
func (c *EtherscanClient) BreakerStats() circuitbreaker.Stats {
	return c.breaker.Stats()
}

// FetchTransactionsSince returns every normal transaction touching address in
// blocks [fromBlock, latest], ascending by block with API order kept for ties.
//
// A full page may stop partway through its last block. Those trailing records
// are dropped so the caller's watermark stops at that block and the next call
// returns it complete.
//
// "No transactions found" is an empty slice and a nil error. Other structured
// API errors return ErrUpstreamRejected. Transport failures, rate limits
// (429 or a NOTOK rate limit body), 5xx, malformed payloads and an open circuit
// return ErrUpstreamUnavailable.
func (c *EtherscanClient) FetchTransactionsSince(ctx context.Context, address string, fromBlock uint64) ([]types.RawTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var txs []types.RawTransaction
	err := c.breaker.Execute(func() error {
		_, err := retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
			var err error
			txs, err = c.fetchOnce(ctx, address, fromBlock)
			return err
		})
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan, err)
	}
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *EtherscanClient) requestURL(address string, fromBlock uint64) string {
	q := url.Values{}
	q.Set("chainid", strconv.Itoa(c.cfg.ChainID))
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", strconv.FormatUint(fromBlock, 10))
	q.Set("endblock", endBlockOpen)
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(c.cfg.PageSize))
	q.Set("sort", "asc")
	q.Set("apikey", c.cfg.APIKey)
	return c.cfg.BaseURL + "?" + q.Encode()
}

func (c *EtherscanClient) fetchOnce(ctx context.Context, address string, fromBlock uint64) ([]types.RawTransaction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan, fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(address, fromBlock), nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan, fmt.Errorf("failed to make request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan, errors.New("rate limited (429)"))
	case resp.StatusCode >= 500:
		return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan, fmt.Errorf("HTTP error: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.NewUpstreamRejectedError(providerEtherscan, fmt.Sprintf("HTTP %d", resp.StatusCode), truncate(string(body), 200))
	}

	txs, err := parseTxList(body)
	if err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"address":    address,
		"startBlock": fromBlock,
	})
	if len(txs) == 0 {
		logger.Debug("No transactions found")
		return txs, nil
	}
	if len(txs) >= c.cfg.PageSize {
		kept, trimmed := trimPartialBlock(txs)
		if !trimmed {
			// one block holds a whole page; nothing older to fall back to
			logger.WithField("block", txs[0].BlockNumber).Warn("Transaction page filled by a single block, later records in it are not visible")
			return txs, nil
		}
		logger.WithFields(map[string]interface{}{
			"returned": len(txs),
			"kept":     len(kept),
		}).Debug("Transaction page full, deferring its last block")
		return kept, nil
	}
	return txs, nil
}

// trimPartialBlock drops the records of the highest block from an ascending
// batch. It reports false, leaving txs untouched, when the batch holds a
// single block.
func trimPartialBlock(txs []types.RawTransaction) ([]types.RawTransaction, bool) {
	last := txs[len(txs)-1].BlockNumber
	i := len(txs)
	for i > 0 && txs[i-1].BlockNumber == last {
		i--
	}
	if i == 0 {
		return txs, false
	}
	return txs[:i], true
}

// parseTxList decodes a txlist body into ascending RawTransactions
func parseTxList(body []byte) ([]types.RawTransaction, error) {
	var env etherscanEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan, fmt.Errorf("failed to parse response: %w", err))
	}

	if env.Status != "1" {
		resultText := resultString(env.Result)
		if isEmptyResult(env.Message, resultText) {
			return []types.RawTransaction{}, nil
		}
		if env.Status != "0" {
			return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan, fmt.Errorf("unexpected status %q", env.Status))
		}
		// the per-second limit comes back as HTTP 200 NOTOK
		if isRateLimited(env.Message, resultText) {
			return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan, fmt.Errorf("rate limited: %s", resultText))
		}
		return nil, apperrors.NewUpstreamRejectedError(providerEtherscan, env.Message, resultText)
	}

	var list []etherscanTransaction
	if err := json.Unmarshal(env.Result, &list); err != nil {
		return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan, fmt.Errorf("failed to parse transactions: %w", err))
	}

	txs := make([]types.RawTransaction, 0, len(list))
	for _, tx := range list {
		block, err := strconv.ParseUint(tx.BlockNumber, 10, 64)
		if err != nil {
			return nil, apperrors.NewUpstreamUnavailableError(providerEtherscan,
				fmt.Errorf("invalid block number %q for tx %s: %w", tx.BlockNumber, tx.Hash, err))
		}
		ts, _ := strconv.ParseInt(tx.TimeStamp, 10, 64)
		txs = append(txs, types.RawTransaction{
			Hash:        tx.Hash,
			From:        tx.From,
			To:          tx.To,
			Value:       tx.Value,
			BlockNumber: block,
			Timestamp:   ts,
			IsError:     tx.IsError == "1",
		})
	}

	// sort=asc is requested, but ordering is relied on for the watermark so it
	// is enforced here too.
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].BlockNumber < txs[j].BlockNumber })
	return txs, nil
}

func isEmptyResult(message, result string) bool {
	m := strings.ToLower(message)
	if strings.Contains(m, "no transactions found") || strings.Contains(m, "no records found") {
		return true
	}
	// NOTOK with "No record found" in result is also an empty response
	return strings.Contains(strings.ToLower(result), "no record")
}

func isRateLimited(message, result string) bool {
	return strings.Contains(strings.ToLower(message), "rate limit") ||
		strings.Contains(strings.ToLower(result), "rate limit")
}

func resultString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return truncate(string(raw), 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
