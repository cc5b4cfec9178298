// Package worker runs the periodic sweep over every monitored wallet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wallet-watch/internal/adapter"
	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/logging"
	"github.com/wallet-watch/internal/metrics"
	"github.com/wallet-watch/internal/models"
	"github.com/wallet-watch/internal/notifier"
	"github.com/wallet-watch/internal/service"
	"github.com/wallet-watch/internal/types"
)

// WalletSource is the slice of the store a sweep reads and commits to
type WalletSource interface {
	ListAllWallets(ctx context.Context) ([]models.OwnedWallet, error)
	AdvanceWatermark(ctx context.Context, address string, newBlock uint64) (bool, error)
}

// Explorer fetches an address's transactions from a block onward, ascending
type Explorer interface {
	FetchTransactionsSince(ctx context.Context, address string, fromBlock uint64) ([]types.RawTransaction, error)
}

// Notifier delivers one message to a chat
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// NotifyGuard records that a transaction was already announced
type NotifyGuard interface {
	Claim(ctx context.Context, address, txHash string) (bool, error)
}

// Lease keeps two worker processes from sweeping at once
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// ActivitySink receives every classified transaction of a sweep
type ActivitySink interface {
	RecordBatch(ctx context.Context, events []models.ActivityEvent) error
}

// SweepWorkerConfig holds configuration for a sweep worker
type SweepWorkerConfig struct {
	Store    WalletSource
	Explorer Explorer
	Notifier Notifier
	Rank     RankFunc          // plan priority; nil treats every plan alike
	Chain    adapter.ChainInfo // used for amounts and explorer links

	// Optional collaborators
	Guard    NotifyGuard
	Lease    Lease
	Activity ActivitySink
	Metrics  *metrics.Metrics
	Logger   *logging.Logger

	Interval      time.Duration // default 30s
	Concurrency   int           // default 4
	FetchTimeout  time.Duration // default 30s
	NotifyTimeout time.Duration // default 10s
	StoreTimeout  time.Duration // default 10s
	LeaseTTL      time.Duration // default 5m
}

// SweepResult summarises one sweep
type SweepResult struct {
	SweepID             string        `json:"sweepId"`
	StartedAt           time.Time     `json:"startedAt"`
	Duration            time.Duration `json:"duration"`
	WalletsSeen         int           `json:"walletsSeen"`
	WalletsProcessed    int           `json:"walletsProcessed"`
	WalletsFailed       int           `json:"walletsFailed"`
	WalletsAbandoned    int           `json:"walletsAbandoned"`
	NotificationsSent   int           `json:"notificationsSent"`
	NotificationsFailed int           `json:"notificationsFailed"`
	DuplicatesSkipped   int           `json:"duplicatesSkipped"`
	Commits             int           `json:"commits"`
	Aborted             bool          `json:"aborted"`
	Skipped             bool          `json:"skipped"` // overlapping sweep or lease held elsewhere
	Error               string        `json:"error,omitempty"`
}

// SweepWorkerStatus is what the health endpoint reports
type SweepWorkerStatus struct {
	Running         bool          `json:"running"`
	IntervalSeconds int           `json:"intervalSeconds"`
	SweepsCompleted int           `json:"sweepsCompleted"`
	LastSweep       *SweepResult  `json:"lastSweep,omitempty"`
	LastSweepAge    time.Duration `json:"lastSweepAge,omitempty"`
}

// SweepWorker drives Explorer -> Classifier -> Notifier for every wallet on
// a fixed cadence and commits watermark advances.
type SweepWorker struct {
	store      WalletSource
	explorer   Explorer
	notifier   Notifier
	classifier *service.TransactionClassifier
	rank       RankFunc
	chain      adapter.ChainInfo
	guard      NotifyGuard
	lease      Lease
	activity   ActivitySink
	metrics    *metrics.Metrics
	logger     *logging.Logger

	interval      time.Duration
	concurrency   int
	fetchTimeout  time.Duration
	notifyTimeout time.Duration
	storeTimeout  time.Duration
	leaseTTL      time.Duration

	sweepMu  sync.Mutex // held for the duration of a sweep
	mu       sync.RWMutex
	running  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	lastSweep       *SweepResult
	lastSweepEnd    time.Time
	sweepsCompleted int
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(cfg *SweepWorkerConfig) (*SweepWorker, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Explorer == nil {
		return nil, fmt.Errorf("explorer cannot be nil")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}

	w := &SweepWorker{
		store:         cfg.Store,
		explorer:      cfg.Explorer,
		notifier:      cfg.Notifier,
		classifier:    service.NewTransactionClassifier(),
		rank:          cfg.Rank,
		chain:         cfg.Chain,
		guard:         cfg.Guard,
		lease:         cfg.Lease,
		activity:      cfg.Activity,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		interval:      durationOr(cfg.Interval, 30*time.Second),
		concurrency:   cfg.Concurrency,
		fetchTimeout:  durationOr(cfg.FetchTimeout, 30*time.Second),
		notifyTimeout: durationOr(cfg.NotifyTimeout, 10*time.Second),
		storeTimeout:  durationOr(cfg.StoreTimeout, 10*time.Second),
		leaseTTL:      durationOr(cfg.LeaseTTL, 5*time.Minute),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	if w.concurrency <= 0 {
		w.concurrency = 4
	}
	if w.rank == nil {
		w.rank = func(types.PlanTier) int { return 0 }
	}
	if w.chain.ExplorerURL == "" {
		w.chain = adapter.LookupChain(1)
	}
	if w.logger == nil {
		w.logger = logging.GetGlobalLogger()
	}
	w.logger = w.logger.WithComponent("sweep")

	return w, nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start runs a sweep immediately and then every interval until Stop is
// called or ctx is cancelled.
func (w *SweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sweep worker is already running")
	}
	w.running = true
	w.mu.Unlock()

	w.logger.WithFields(map[string]interface{}{
		"interval":    w.interval.String(),
		"concurrency": w.concurrency,
		"chain":       w.chain.Chain,
	}).Info("Starting sweep worker")

	go w.pollLoop(ctx)
	return nil
}

// Stop stops dispatching new wallets and waits for in-flight ones to finish
func (w *SweepWorker) Stop(ctx context.Context) error {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()
	if !running {
		return fmt.Errorf("sweep worker is not running")
	}

	w.logger.Info("Stopping sweep worker")
	w.stopOnce.Do(func() { close(w.stopCh) })

	select {
	case <-w.doneCh:
		w.logger.Info("Sweep worker stopped gracefully")
	case <-ctx.Done():
		w.logger.Warn("Sweep worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// pollLoop is the single scheduler goroutine. A tick that fires during a
// sweep waits in the ticker channel (capacity one) so sweeps never overlap
// and at most one tick is queued.
func (w *SweepWorker) pollLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Context cancelled, sweep loop exiting")
			return
		case <-w.stopCh:
			w.logger.Info("Stop signal received, sweep loop exiting")
			return
		case <-ticker.C:
			w.RunSweep(ctx)
		}
	}
}

// stopping reports whether new wallets should no longer be dispatched
func (w *SweepWorker) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// sweepTally accumulates per-wallet outcomes across workers
type sweepTally struct {
	mu     sync.Mutex
	result *SweepResult
	events []models.ActivityEvent
}

func (t *sweepTally) add(o walletOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.result
	switch {
	case o.abandoned:
		r.WalletsAbandoned++
	case o.failed:
		r.WalletsFailed++
	default:
		r.WalletsProcessed++
	}
	r.NotificationsSent += o.sent
	r.NotificationsFailed += o.notifyFailed
	r.DuplicatesSkipped += o.duplicates
	if o.committed {
		r.Commits++
	}
	t.events = append(t.events, o.events...)
}

// RunSweep performs one pass over all wallets. It is safe to call directly;
// a call made while another sweep is running returns at once with Skipped set.
func (w *SweepWorker) RunSweep(ctx context.Context) SweepResult {
	result := SweepResult{SweepID: uuid.NewString(), StartedAt: time.Now().UTC()}
	logger := w.logger.WithField("sweep_id", result.SweepID)

	if !w.sweepMu.TryLock() {
		logger.Warn("Previous sweep still running, skipping tick")
		result.Skipped = true
		w.countSweep(metrics.OutcomeSkipped)
		return result
	}
	defer w.sweepMu.Unlock()

	// Sweep I/O outlives a shutdown signal; every call carries its own timeout.
	ioCtx := context.WithoutCancel(ctx)

	if w.lease != nil {
		ok, err := w.lease.Acquire(ioCtx, w.leaseTTL)
		switch {
		case err != nil:
			logger.WithError(err).Warn("Sweep lease unavailable, continuing without it")
		case !ok:
			logger.Info("Another worker holds the sweep lease, skipping")
			result.Skipped = true
			w.countSweep(metrics.OutcomeSkipped)
			return result
		default:
			stopRenew := w.keepLease(ioCtx, logger)
			defer func() {
				stopRenew()
				if err := w.lease.Release(ioCtx); err != nil {
					logger.WithError(err).Warn("Failed to release sweep lease")
				}
			}()
		}
	}

	listCtx, cancel := context.WithTimeout(ioCtx, w.storeTimeout)
	wallets, err := w.store.ListAllWallets(listCtx)
	cancel()
	if err != nil {
		logger.WithError(err).Error("Failed to list wallets, aborting sweep")
		result.Aborted = true
		result.Error = err.Error()
		w.finish(&result, metrics.OutcomeAborted)
		return result
	}

	queue := NewPriorityQueue(wallets, w.rank)
	result.WalletsSeen = queue.Len()
	paid, free := queue.SplitByTier()
	logger.WithFields(map[string]interface{}{
		"wallets": queue.Len(),
		"paid":    paid,
		"free":    free,
	}).Debug("Sweep started")

	tally := &sweepTally{result: &result}
	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)

	for _, wallet := range queue.Wallets() {
		wallet := wallet
		if w.stopping(ctx) {
			tally.add(walletOutcome{abandoned: true})
			continue
		}
		g.Go(func() error {
			// the slot may have freed up after shutdown began
			if w.stopping(ctx) {
				tally.add(walletOutcome{abandoned: true})
				return nil
			}
			tally.add(w.processWallet(ioCtx, logger, result.SweepID, wallet))
			return nil
		})
	}
	_ = g.Wait()

	if w.activity != nil && len(tally.events) > 0 {
		actCtx, cancel := context.WithTimeout(ioCtx, w.storeTimeout)
		if err := w.activity.RecordBatch(actCtx, tally.events); err != nil {
			logger.WithError(err).Warn("Failed to record sweep activity")
		}
		cancel()
	}

	w.finish(&result, metrics.OutcomeCompleted)

	entry := logger.WithFields(map[string]interface{}{
		"wallets":       result.WalletsSeen,
		"processed":     result.WalletsProcessed,
		"failed":        result.WalletsFailed,
		"abandoned":     result.WalletsAbandoned,
		"notifications": result.NotificationsSent,
		"commits":       result.Commits,
		"duration_ms":   result.Duration.Milliseconds(),
	})
	if result.WalletsFailed > 0 || result.WalletsAbandoned > 0 {
		entry.Warn("Sweep finished with skipped wallets")
	} else {
		entry.Info("Sweep finished")
	}
	return result
}

// keepLease renews the sweep lease every third of its TTL until the returned
// stop function is called. Losing the lease is logged; the sweep carries on.
func (w *SweepWorker) keepLease(ctx context.Context, logger *logging.Logger) func() {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(max(w.leaseTTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				renewCtx, cancel := context.WithTimeout(ctx, w.storeTimeout)
				ok, err := w.lease.Renew(renewCtx, w.leaseTTL)
				cancel()
				switch {
				case err != nil:
					logger.WithError(err).Warn("Failed to renew sweep lease")
				case !ok:
					logger.Warn("Sweep lease lost before the sweep finished")
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}

func (w *SweepWorker) finish(result *SweepResult, outcome string) {
	result.Duration = time.Since(result.StartedAt)

	w.mu.Lock()
	r := *result
	w.lastSweep = &r
	w.lastSweepEnd = time.Now()
	w.sweepsCompleted++
	w.mu.Unlock()

	if w.metrics == nil {
		return
	}
	w.metrics.Sweeps.WithLabelValues(outcome).Inc()
	w.metrics.SweepDuration.Observe(result.Duration.Seconds())
	w.metrics.LastSweepTimestamp.SetToCurrentTime()
	if outcome == metrics.OutcomeCompleted {
		w.metrics.MonitoredWallets.Set(float64(result.WalletsSeen))
	}
}

func (w *SweepWorker) countSweep(outcome string) {
	if w.metrics != nil {
		w.metrics.Sweeps.WithLabelValues(outcome).Inc()
	}
}

// walletOutcome is what one wallet contributed to a sweep
type walletOutcome struct {
	failed       bool
	abandoned    bool
	committed    bool
	sent         int
	notifyFailed int
	duplicates   int
	events       []models.ActivityEvent
}

// processWallet runs Fetching -> (Classifying -> Notifying)* -> Committing
// for one wallet. A panic is contained to this wallet.
func (w *SweepWorker) processWallet(ctx context.Context, sweepLog *logging.Logger, sweepID string, wallet models.OwnedWallet) (out walletOutcome) {
	logger := sweepLog.WithFields(map[string]interface{}{
		"wallet":  wallet.Name,
		"address": wallet.Address,
	})

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("Recovered panic while processing wallet")
			out = walletOutcome{failed: true}
			w.countWalletFailure("panic")
		}
	}()

	watermark := wallet.Watermark

	fetchCtx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	txs, err := w.explorer.FetchTransactionsSince(fetchCtx, wallet.Address, watermark)
	cancel()
	if err != nil {
		reason := "unavailable"
		if errors.Is(err, apperrors.ErrUpstreamRejected) {
			reason = "rejected"
		}
		logger.WithField("block", watermark).WithError(err).Warn("Explorer fetch failed, wallet skipped this sweep")
		w.countWalletFailure(reason)
		w.countExplorer(reason)
		return walletOutcome{failed: true}
	}
	w.countExplorer("ok")

	highWaterMark := watermark
	now := time.Now().UTC()

	for _, tx := range txs {
		c := w.classifier.Classify(wallet.Address, watermark, tx)
		if c.Verdict == types.VerdictStale {
			logger.WithField("block", tx.BlockNumber).Debug("Skipping transaction below watermark")
			continue
		}

		notified := false
		if c.Verdict == types.VerdictRelevant {
			notified = w.notify(ctx, logger, wallet, c, &out)
		}

		if next := tx.BlockNumber + 1; next > highWaterMark {
			highWaterMark = next
		}

		out.events = append(out.events, models.ActivityEvent{
			SweepID:     sweepID,
			OwnerID:     wallet.OwnerID,
			WalletName:  wallet.Name,
			Address:     wallet.Address,
			TxHash:      tx.Hash,
			BlockNumber: tx.BlockNumber,
			Direction:   c.Direction,
			Verdict:     c.Verdict,
			Amount:      c.AmountString(),
			Notified:    notified,
			ObservedAt:  now,
		})
	}

	if highWaterMark > watermark {
		commitCtx, cancel := context.WithTimeout(ctx, w.storeTimeout)
		advanced, err := w.store.AdvanceWatermark(commitCtx, wallet.Address, highWaterMark)
		cancel()
		if err != nil {
			logger.WithField("block", highWaterMark).WithError(err).Error("Failed to commit watermark")
			w.countWalletFailure("commit")
			out.failed = true
			return out
		}
		out.committed = advanced
		if advanced && w.metrics != nil {
			w.metrics.WatermarkCommits.Inc()
		}
		logger.WithFields(map[string]interface{}{
			"from":     watermark,
			"block":    highWaterMark,
			"advanced": advanced,
		}).Debug("Watermark committed")
	}

	if w.metrics != nil {
		w.metrics.WalletsProcessed.Inc()
	}
	return out
}

// notify delivers one alert, best effort. It reports whether a message was
// delivered.
func (w *SweepWorker) notify(ctx context.Context, logger *logging.Logger, wallet models.OwnedWallet, c service.Classification, out *walletOutcome) bool {
	txLog := logger.WithFields(map[string]interface{}{
		"tx":    c.TxHash,
		"block": c.BlockNumber,
	})

	if w.guard != nil {
		guardCtx, cancel := context.WithTimeout(ctx, w.storeTimeout)
		first, err := w.guard.Claim(guardCtx, wallet.Address, c.TxHash)
		cancel()
		if err != nil {
			txLog.WithError(err).Warn("Notification guard unavailable, notifying anyway")
		} else if !first {
			txLog.Info("Transaction already announced, skipping notification")
			out.duplicates++
			w.countNotification("duplicate")
			return false
		}
	}

	text := notifier.FormatAlert(notifier.Alert{
		WalletName: wallet.Name,
		Direction:  c.Direction,
		Amount:     c.AmountString(),
		TxHash:     c.TxHash,
		Failed:     c.Failed,
		Chain:      w.chain,
	})

	notifyCtx, cancel := context.WithTimeout(ctx, w.notifyTimeout)
	err := w.notifier.Notify(notifyCtx, wallet.OwnerID, text)
	cancel()
	if err != nil {
		txLog.WithError(err).Warn("Notification delivery failed")
		out.notifyFailed++
		w.countNotification("failed")
		return false
	}

	out.sent++
	w.countNotification("sent")
	return true
}

func (w *SweepWorker) countWalletFailure(reason string) {
	if w.metrics != nil {
		w.metrics.WalletsFailed.WithLabelValues(reason).Inc()
	}
}

func (w *SweepWorker) countNotification(result string) {
	if w.metrics != nil {
		w.metrics.Notifications.WithLabelValues(result).Inc()
	}
}

func (w *SweepWorker) countExplorer(result string) {
	if w.metrics != nil {
		w.metrics.ExplorerRequests.WithLabelValues(result).Inc()
	}
}

// GetStatus returns the current status of the sweep worker
func (w *SweepWorker) GetStatus() *SweepWorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := &SweepWorkerStatus{
		Running:         w.running,
		IntervalSeconds: int(w.interval.Seconds()),
		SweepsCompleted: w.sweepsCompleted,
	}
	if w.lastSweep != nil {
		last := *w.lastSweep
		status.LastSweep = &last
		status.LastSweepAge = time.Since(w.lastSweepEnd)
	}
	return status
}
