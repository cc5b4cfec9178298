package worker

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/logging"
	"github.com/wallet-watch/internal/metrics"
	"github.com/wallet-watch/internal/models"
	"github.com/wallet-watch/internal/plan"
	"github.com/wallet-watch/internal/storage"
	"github.com/wallet-watch/internal/types"
)

const oneEther = "1000000000000000000"

func addr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

type fakeExplorer struct {
	mu             sync.Mutex
	txs            map[string][]types.RawTransaction
	errs           map[string]error
	calls          []string
	honorFromBlock bool
	hook           func(address string)
}

func newFakeExplorer() *fakeExplorer {
	return &fakeExplorer{
		txs:            make(map[string][]types.RawTransaction),
		errs:           make(map[string]error),
		honorFromBlock: true,
	}
}

func (f *fakeExplorer) set(address string, txs ...types.RawTransaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[address] = txs
	delete(f.errs, address)
}

func (f *fakeExplorer) fail(address string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[address] = err
}

func (f *fakeExplorer) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeExplorer) FetchTransactionsSince(_ context.Context, address string, fromBlock uint64) ([]types.RawTransaction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, address)
	hook := f.hook
	err := f.errs[address]
	all := f.txs[address]
	honor := f.honorFromBlock
	f.mu.Unlock()

	if hook != nil {
		hook(address)
	}
	if err != nil {
		return nil, err
	}

	var out []types.RawTransaction
	for _, tx := range all {
		if !honor || tx.BlockNumber >= fromBlock {
			out = append(out, tx)
		}
	}
	return out, nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return apperrors.NewDeliveryFailedError(chatID, f.err)
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeNotifier) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.ActivityEvent
}

func (r *recordingSink) RecordBatch(_ context.Context, events []models.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// failingStore lets a test break one store operation
type failingStore struct {
	*storage.MemoryStore
	listErr    error
	advanceErr error
}

func (s *failingStore) ListAllWallets(ctx context.Context) ([]models.OwnedWallet, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.MemoryStore.ListAllWallets(ctx)
}

func (s *failingStore) AdvanceWatermark(ctx context.Context, address string, block uint64) (bool, error) {
	if s.advanceErr != nil {
		return false, s.advanceErr
	}
	return s.MemoryStore.AdvanceWatermark(ctx, address, block)
}

func quietLogger() *logging.Logger {
	return logging.NewLoggerWithOutput(logging.LevelError, logging.FormatJSON, io.Discard)
}

func newTestWorker(t *testing.T, store WalletSource, ex Explorer, n Notifier, opts ...func(*SweepWorkerConfig)) *SweepWorker {
	t.Helper()
	cfg := &SweepWorkerConfig{
		Store:         store,
		Explorer:      ex,
		Notifier:      n,
		Rank:          plan.NewCatalog(nil).Rank,
		Logger:        quietLogger(),
		Concurrency:   4,
		FetchTimeout:  time.Second,
		NotifyTimeout: time.Second,
		StoreTimeout:  time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	w, err := NewSweepWorker(cfg)
	require.NoError(t, err)
	return w
}

func seedWallet(t *testing.T, store *storage.MemoryStore, owner int64, name, address string, tier types.PlanTier, watermark uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SetPlan(ctx, owner, tier, models.Subscription{}))
	_, err := store.AddWallet(ctx, owner, name, address, 100)
	require.NoError(t, err)
	if watermark > 0 {
		_, err = store.AdvanceWatermark(ctx, address, watermark)
		require.NoError(t, err)
	}
}

func watermarkOf(t *testing.T, store *storage.MemoryStore, address string) uint64 {
	t.Helper()
	all, err := store.ListAllWallets(context.Background())
	require.NoError(t, err)
	for _, w := range all {
		if w.Address == address {
			return w.Watermark
		}
	}
	t.Fatalf("wallet %s not found", address)
	return 0
}

func inbound(wallet string, block uint64, value string) types.RawTransaction {
	return types.RawTransaction{
		Hash:        fmt.Sprintf("0xtx%d", block),
		From:        addr(9999),
		To:          wallet,
		Value:       value,
		BlockNumber: block,
	}
}

func TestSweep_NewInboundTransaction(t *testing.T) {
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 10, "savings", a, types.PlanFree, 100)

	ex := newFakeExplorer()
	ex.set(a, inbound(a, 105, oneEther))
	n := &fakeNotifier{}

	result := newTestWorker(t, store, ex, n).RunSweep(context.Background())

	assert.Equal(t, uint64(106), watermarkOf(t, store, a))
	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(10), msgs[0].chatID)
	assert.Contains(t, msgs[0].text, "💰 Received on <b>savings</b>")
	assert.Contains(t, msgs[0].text, "<b>1.000000 ETH</b>")
	assert.Contains(t, msgs[0].text, "https://etherscan.io/tx/0xtx105")

	assert.Equal(t, 1, result.WalletsSeen)
	assert.Equal(t, 1, result.WalletsProcessed)
	assert.Equal(t, 1, result.NotificationsSent)
	assert.Equal(t, 1, result.Commits)
	assert.NotEmpty(t, result.SweepID)
}

func TestSweep_OutboundTransaction(t *testing.T) {
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 10, "hot", a, types.PlanFree, 0)

	ex := newFakeExplorer()
	ex.set(a, types.RawTransaction{Hash: "0xout", From: a, To: addr(2), Value: "2500000000000000", BlockNumber: 7})
	n := &fakeNotifier{}

	newTestWorker(t, store, ex, n).RunSweep(context.Background())

	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "💸 Sent from <b>hot</b>")
	assert.Contains(t, msgs[0].text, "0.002500 ETH")
	assert.Equal(t, uint64(8), watermarkOf(t, store, a))
}

func TestSweep_FetchFailureLeavesWatermark(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unavailable", apperrors.NewUpstreamUnavailableError("etherscan", stderrors.New("timeout"))},
		{"rejected", apperrors.NewUpstreamRejectedError("etherscan", "NOTOK", "Invalid API Key")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			bad, good := addr(1), addr(2)
			seedWallet(t, store, 1, "bad", bad, types.PlanFree, 50)
			seedWallet(t, store, 2, "good", good, types.PlanFree, 50)

			ex := newFakeExplorer()
			ex.set(bad, inbound(bad, 60, oneEther))
			ex.fail(bad, tt.err)
			ex.set(good, inbound(good, 70, oneEther))
			n := &fakeNotifier{}

			result := newTestWorker(t, store, ex, n).RunSweep(context.Background())

			assert.Equal(t, uint64(50), watermarkOf(t, store, bad))
			assert.Equal(t, uint64(71), watermarkOf(t, store, good))
			assert.Equal(t, 1, result.WalletsFailed)
			assert.Equal(t, 1, result.WalletsProcessed)
			require.Len(t, n.messages(), 1)
			assert.Equal(t, int64(2), n.messages()[0].chatID)
		})
	}
}

func TestSweep_ZeroValueAdvancesWithoutNotify(t *testing.T) {
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 10)

	ex := newFakeExplorer()
	ex.set(a,
		inbound(a, 12, "0"),
		inbound(a, 15, ""),
		inbound(a, 18, "000"),
	)
	n := &fakeNotifier{}

	result := newTestWorker(t, store, ex, n).RunSweep(context.Background())

	assert.Empty(t, n.messages())
	assert.Equal(t, uint64(19), watermarkOf(t, store, a))
	assert.Equal(t, 1, result.Commits)
}

func TestSweep_DeliveryFailureStillAdvances(t *testing.T) {
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 0)

	ex := newFakeExplorer()
	ex.set(a, inbound(a, 3, oneEther), inbound(a, 4, oneEther))
	n := &fakeNotifier{err: stderrors.New("bot was blocked by the user")}

	result := newTestWorker(t, store, ex, n).RunSweep(context.Background())

	assert.Equal(t, uint64(5), watermarkOf(t, store, a))
	assert.Equal(t, 2, result.NotificationsFailed)
	assert.Equal(t, 0, result.WalletsFailed)
}

func TestSweep_IdempotentResweep(t *testing.T) {
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 0)

	ex := newFakeExplorer()
	ex.set(a, inbound(a, 5, oneEther), inbound(a, 9, oneEther))
	n := &fakeNotifier{}
	w := newTestWorker(t, store, ex, n)

	w.RunSweep(context.Background())
	require.Equal(t, uint64(10), watermarkOf(t, store, a))
	require.Len(t, n.messages(), 2)

	second := w.RunSweep(context.Background())
	assert.Equal(t, uint64(10), watermarkOf(t, store, a))
	assert.Len(t, n.messages(), 2)
	assert.Equal(t, 0, second.Commits)
}

func TestSweep_StaleRecordsIgnored(t *testing.T) {
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 100)

	ex := newFakeExplorer()
	ex.honorFromBlock = false
	ex.set(a, inbound(a, 40, oneEther), inbound(a, 99, oneEther))
	n := &fakeNotifier{}

	result := newTestWorker(t, store, ex, n).RunSweep(context.Background())

	assert.Empty(t, n.messages())
	assert.Equal(t, uint64(100), watermarkOf(t, store, a))
	assert.Equal(t, 0, result.Commits)
}

func TestSweep_SameBlockTransactionsBothNotified(t *testing.T) {
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 20)

	ex := newFakeExplorer()
	first := inbound(a, 20, oneEther)
	second := inbound(a, 20, oneEther)
	second.Hash = "0xsecond"
	ex.set(a, first, second)
	n := &fakeNotifier{}

	newTestWorker(t, store, ex, n).RunSweep(context.Background())

	assert.Len(t, n.messages(), 2)
	assert.Equal(t, uint64(21), watermarkOf(t, store, a))
}

func TestSweep_WatermarkMonotonic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("stored watermark never decreases across sweeps", prop.ForAll(
		func(rounds [][]uint64, fails []bool) bool {
			store := storage.NewMemoryStore()
			a := addr(1)
			seedWallet(t, store, 1, "w", a, types.PlanFree, 0)

			ex := newFakeExplorer()
			ex.honorFromBlock = false
			w := newTestWorker(t, store, ex, &fakeNotifier{})

			prev := uint64(0)
			for i, blocks := range rounds {
				sorted := append([]uint64(nil), blocks...)
				sort.Slice(sorted, func(x, y int) bool { return sorted[x] < sorted[y] })

				txs := make([]types.RawTransaction, 0, len(sorted))
				for _, b := range sorted {
					txs = append(txs, inbound(a, b, "1"))
				}
				ex.set(a, txs...)

				failing := i < len(fails) && fails[i]
				if failing {
					ex.fail(a, apperrors.NewUpstreamUnavailableError("etherscan", nil))
				}

				w.RunSweep(context.Background())
				got := watermarkOf(t, store, a)

				want := prev
				if !failing {
					for _, b := range sorted {
						if b >= prev && b+1 > want {
							want = b + 1
						}
					}
				}
				if got < prev || got != want {
					return false
				}
				prev = got
			}
			return true
		},
		gen.SliceOf(gen.SliceOf(gen.UInt64Range(0, 1_000))),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestSweep_PanicIsContained(t *testing.T) {
	store := storage.NewMemoryStore()
	boom, fine := addr(1), addr(2)
	seedWallet(t, store, 1, "boom", boom, types.PlanFree, 0)
	seedWallet(t, store, 2, "fine", fine, types.PlanFree, 0)

	ex := newFakeExplorer()
	ex.set(fine, inbound(fine, 3, oneEther))
	ex.hook = func(address string) {
		if address == boom {
			panic("malformed record")
		}
	}
	n := &fakeNotifier{}

	result := newTestWorker(t, store, ex, n).RunSweep(context.Background())

	assert.Equal(t, 1, result.WalletsFailed)
	assert.Equal(t, 1, result.WalletsProcessed)
	assert.Equal(t, uint64(4), watermarkOf(t, store, fine))
	assert.Equal(t, uint64(0), watermarkOf(t, store, boom))
}

func TestSweep_StoreListFailureAbortsTickOnly(t *testing.T) {
	mem := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, mem, 1, "w", a, types.PlanFree, 0)
	store := &failingStore{MemoryStore: mem, listErr: apperrors.NewStoreUnavailableError("list all wallets", stderrors.New("conn refused"))}

	ex := newFakeExplorer()
	ex.set(a, inbound(a, 1, oneEther))
	w := newTestWorker(t, store, ex, &fakeNotifier{})

	result := w.RunSweep(context.Background())
	assert.True(t, result.Aborted)
	assert.Contains(t, result.Error, "STORE_UNAVAILABLE")
	assert.Empty(t, ex.callOrder())

	store.listErr = nil
	result = w.RunSweep(context.Background())
	assert.False(t, result.Aborted)
	assert.Equal(t, uint64(2), watermarkOf(t, mem, a))
}

func TestSweep_CommitFailureCountsAsFailed(t *testing.T) {
	mem := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, mem, 1, "w", a, types.PlanFree, 0)
	store := &failingStore{MemoryStore: mem, advanceErr: stderrors.New("deadlock detected")}

	ex := newFakeExplorer()
	ex.set(a, inbound(a, 1, oneEther))

	result := newTestWorker(t, store, ex, &fakeNotifier{}).RunSweep(context.Background())

	assert.Equal(t, 1, result.WalletsFailed)
	assert.Equal(t, uint64(0), watermarkOf(t, mem, a))
}

func TestSweep_PaidPlansDispatchedFirst(t *testing.T) {
	store := storage.NewMemoryStore()
	free, basic, pro := addr(1), addr(2), addr(3)
	seedWallet(t, store, 1, "f", free, types.PlanFree, 0)
	seedWallet(t, store, 2, "b", basic, types.PlanBasic, 0)
	seedWallet(t, store, 3, "p", pro, types.PlanPro, 0)

	ex := newFakeExplorer()
	w := newTestWorker(t, store, ex, &fakeNotifier{}, func(c *SweepWorkerConfig) { c.Concurrency = 1 })

	w.RunSweep(context.Background())

	assert.Equal(t, []string{pro, basic, free}, ex.callOrder())
}

func TestSweep_OverlappingCallIsSkipped(t *testing.T) {
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	ex := newFakeExplorer()
	ex.hook = func(string) {
		close(entered)
		<-release
	}
	w := newTestWorker(t, store, ex, &fakeNotifier{})

	done := make(chan SweepResult)
	go func() { done <- w.RunSweep(context.Background()) }()
	<-entered

	second := w.RunSweep(context.Background())
	assert.True(t, second.Skipped)

	close(release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Len(t, ex.callOrder(), 1)
}

func TestSweep_ShutdownFinishesInFlightWallet(t *testing.T) {
	store := storage.NewMemoryStore()
	first, second, third := addr(1), addr(2), addr(3)
	for i, a := range []string{first, second, third} {
		seedWallet(t, store, int64(i+1), "w", a, types.PlanFree, 0)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	ex := newFakeExplorer()
	for _, a := range []string{first, second, third} {
		ex.set(a, inbound(a, 10, oneEther))
	}
	ex.hook = func(address string) {
		if address == first {
			close(entered)
			<-release
		}
	}
	n := &fakeNotifier{}
	w := newTestWorker(t, store, ex, n, func(c *SweepWorkerConfig) { c.Concurrency = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan SweepResult)
	go func() { done <- w.RunSweep(ctx) }()

	<-entered
	cancel()
	close(release)
	result := <-done

	assert.Equal(t, 1, result.WalletsProcessed)
	assert.Equal(t, 2, result.WalletsAbandoned)
	assert.Equal(t, uint64(11), watermarkOf(t, store, first), "in-flight wallet commits after shutdown")
	assert.Equal(t, uint64(0), watermarkOf(t, store, second))
	assert.Equal(t, uint64(0), watermarkOf(t, store, third))
	assert.Len(t, n.messages(), 1)
}

func setupRedis(t *testing.T) (*storage.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cache := storage.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestSweep_GuardSuppressesRepeatAfterCrash(t *testing.T) {
	cache, _ := setupRedis(t)
	guard := storage.NewNotificationGuard(cache, time.Hour)

	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 0)

	// a previous sweep notified 0xtx5 and died before committing
	claimed, err := guard.Claim(context.Background(), a, "0xtx5")
	require.NoError(t, err)
	require.True(t, claimed)

	ex := newFakeExplorer()
	ex.set(a, inbound(a, 5, oneEther), inbound(a, 6, oneEther))
	n := &fakeNotifier{}

	result := newTestWorker(t, store, ex, n, func(c *SweepWorkerConfig) { c.Guard = guard }).RunSweep(context.Background())

	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "0xtx6")
	assert.Equal(t, 1, result.DuplicatesSkipped)
	assert.Equal(t, uint64(7), watermarkOf(t, store, a))
}

func TestSweep_GuardDownFailsOpen(t *testing.T) {
	cache, mr := setupRedis(t)
	guard := storage.NewNotificationGuard(cache, time.Hour)
	mr.Close()

	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 0)

	ex := newFakeExplorer()
	ex.set(a, inbound(a, 5, oneEther))
	n := &fakeNotifier{}

	newTestWorker(t, store, ex, n, func(c *SweepWorkerConfig) { c.Guard = guard }).RunSweep(context.Background())

	assert.Len(t, n.messages(), 1)
	assert.Equal(t, uint64(6), watermarkOf(t, store, a))
}

func TestSweep_LeaseHeldElsewhere(t *testing.T) {
	cache, _ := setupRedis(t)
	other := storage.NewSweepLease(cache, "other-worker")
	ok, err := other.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 0)
	ex := newFakeExplorer()

	lease := storage.NewSweepLease(cache, "this-worker")
	w := newTestWorker(t, store, ex, &fakeNotifier{}, func(c *SweepWorkerConfig) { c.Lease = lease })

	result := w.RunSweep(context.Background())
	assert.True(t, result.Skipped)
	assert.Empty(t, ex.callOrder())

	require.NoError(t, other.Release(context.Background()))
	result = w.RunSweep(context.Background())
	assert.False(t, result.Skipped)
	assert.Len(t, ex.callOrder(), 1)

	// released after the sweep
	ok, err = other.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweep_LeaseRenewedDuringLongSweep(t *testing.T) {
	cache, mr := setupRedis(t)
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 0)

	var holder string
	var otherGot bool
	ex := newFakeExplorer()
	ex.hook = func(string) {
		// each step alone is shorter than the TTL, together they exceed it
		for i := 0; i < 3; i++ {
			mr.FastForward(60 * time.Millisecond)
			time.Sleep(100 * time.Millisecond)
		}
		holder, _ = mr.Get("sweep:lock")
		otherGot, _ = storage.NewSweepLease(cache, "other-worker").Acquire(context.Background(), time.Minute)
	}

	lease := storage.NewSweepLease(cache, "this-worker")
	w := newTestWorker(t, store, ex, &fakeNotifier{}, func(c *SweepWorkerConfig) {
		c.Lease = lease
		c.LeaseTTL = 90 * time.Millisecond
	})

	result := w.RunSweep(context.Background())
	assert.False(t, result.Skipped)
	assert.Equal(t, "this-worker", holder)
	assert.False(t, otherGot, "a renewed lease cannot be taken over mid-sweep")
	assert.False(t, mr.Exists("sweep:lock"), "released after the sweep")
}

func TestSweep_ActivityAndMetrics(t *testing.T) {
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 0)

	ex := newFakeExplorer()
	ex.set(a, inbound(a, 1, "0"), inbound(a, 2, oneEther))
	sink := &recordingSink{}
	m := metrics.New()

	result := newTestWorker(t, store, ex, &fakeNotifier{}, func(c *SweepWorkerConfig) {
		c.Activity = sink
		c.Metrics = m
	}).RunSweep(context.Background())

	require.Len(t, sink.events, 2)
	assert.Equal(t, types.VerdictIgnorable, sink.events[0].Verdict)
	assert.False(t, sink.events[0].Notified)
	assert.Equal(t, types.VerdictRelevant, sink.events[1].Verdict)
	assert.True(t, sink.events[1].Notified)
	assert.Equal(t, "1.000000", sink.events[1].Amount)
	assert.Equal(t, result.SweepID, sink.events[1].SweepID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sweeps.WithLabelValues(metrics.OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WatermarkCommits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MonitoredWallets))
}

func TestSweepWorker_StartStop(t *testing.T) {
	store := storage.NewMemoryStore()
	a := addr(1)
	seedWallet(t, store, 1, "w", a, types.PlanFree, 0)

	ex := newFakeExplorer()
	w := newTestWorker(t, store, ex, &fakeNotifier{}, func(c *SweepWorkerConfig) { c.Interval = 10 * time.Millisecond })

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start is rejected")

	assert.Eventually(t, func() bool {
		return w.GetStatus().SweepsCompleted >= 2
	}, 2*time.Second, 5*time.Millisecond)

	status := w.GetStatus()
	assert.True(t, status.Running)
	require.NotNil(t, status.LastSweep)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
	assert.False(t, w.GetStatus().Running)
	assert.Error(t, w.Stop(ctx))
}

func TestNewSweepWorker_RequiresCollaborators(t *testing.T) {
	_, err := NewSweepWorker(&SweepWorkerConfig{})
	assert.Error(t, err)

	_, err = NewSweepWorker(&SweepWorkerConfig{Store: storage.NewMemoryStore()})
	assert.Error(t, err)

	_, err = NewSweepWorker(&SweepWorkerConfig{Store: storage.NewMemoryStore(), Explorer: newFakeExplorer()})
	assert.Error(t, err)
}
