package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernwallet/banksync/internal/aggregator"
	"github.com/fernwallet/banksync/internal/cachestore"
	"github.com/fernwallet/banksync/internal/config"
	"github.com/fernwallet/banksync/pkg/banking"
)

type fakeAggregator struct {
	mu          sync.Mutex
	listCalls   int
	disconnects int

	transactions []banking.BankTransaction
	accounts     []banking.Account
	err          error
	connected    bool

	started chan struct{}
	release chan struct{}
}

func (f *fakeAggregator) ListTransactions(ctx context.Context, startDate, endDate string) ([]banking.BankTransaction, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	if f.err != nil {
		return nil, f.err
	}

	return f.transactions, nil
}

func (f *fakeAggregator) ListAccounts(ctx context.Context) ([]banking.Account, error) {
	return f.accounts, nil
}

func (f *fakeAggregator) IsConnected(ctx context.Context) (bool, error) {
	return f.connected, nil
}

func (f *fakeAggregator) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	return nil
}

func (f *fakeAggregator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		UpdateIntervalHours:  6,
		TransactionsTTLHours: 6,
		RecurringTTLHours:    24,
		RetryAttempts:        3,
	}
}

func newTestOrchestrator(agg *fakeAggregator, store cachestore.Store, linked bool) *Orchestrator {
	o := NewOrchestrator("user-1", Options{
		Aggregator: agg,
		Store:      store,
		Sync:       testSyncConfig(),
		Linked:     linked,
	})
	o.sleep = func(time.Duration) {}
	return o
}

func putTransactions(t *testing.T, store cachestore.Store, key string, transactions []banking.BankTransaction, timestamp time.Time) {
	t.Helper()

	payload, err := json.Marshal(transactions)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), key, cachestore.Entry{
		Payload:   payload,
		Timestamp: timestamp,
		TTL:       6 * time.Hour,
	}))
}

func TestRefreshFullSyncPersistsCacheAndState(t *testing.T) {
	agg := &fakeAggregator{
		transactions: []banking.BankTransaction{
			{Name: "Netflix", Amount: decimal.RequireFromString("15.99"), Date: "2024-01-01"},
			{Name: "Netflix", Amount: decimal.RequireFromString("15.99"), Date: "2024-02-01"},
		},
		accounts: []banking.Account{{ID: "acc-1", Name: "Chequing"}},
	}
	store := cachestore.NewMemoryStore()
	o := newTestOrchestrator(agg, store, true)

	err := o.Refresh(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, agg.calls())
	assert.Equal(t, StatusConnected, o.ConnectionState().Status)

	transactions, err := o.CachedTransactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, transactions, 2)

	accounts, err := o.CachedAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	suggestions, err := o.RecurringSuggestions(context.Background())
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Netflix", suggestions[0].Name)
	assert.Equal(t, banking.Monthly, suggestions[0].Frequency)
}

func TestRefreshServesFreshCacheWithoutNetwork(t *testing.T) {
	agg := &fakeAggregator{}
	store := cachestore.NewMemoryStore()
	o := newTestOrchestrator(agg, store, true)

	putTransactions(t, store, o.transactionsKey, nil, time.Now().Add(-time.Hour))

	err := o.Refresh(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 0, agg.calls())
}

func TestRefreshForceBypassesFreshCache(t *testing.T) {
	agg := &fakeAggregator{}
	store := cachestore.NewMemoryStore()
	o := newTestOrchestrator(agg, store, true)

	putTransactions(t, store, o.transactionsKey, nil, time.Now().Add(-time.Hour))

	err := o.Refresh(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, agg.calls())
}

func TestConcurrentRefreshIsSingleFlight(t *testing.T) {
	agg := &fakeAggregator{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	store := cachestore.NewMemoryStore()
	o := newTestOrchestrator(agg, store, true)

	done := make(chan error, 1)
	go func() {
		done <- o.Refresh(context.Background(), false)
	}()

	<-agg.started

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.Refresh(context.Background(), false))
		}()
	}
	wg.Wait()

	close(agg.release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, agg.calls())
}

func TestRefreshCredentialFailureIsRecoverable(t *testing.T) {
	agg := &fakeAggregator{
		err: &aggregator.Error{Code: aggregator.CodeItemLoginRequired, StatusCode: 400},
	}
	store := cachestore.NewMemoryStore()
	o := newTestOrchestrator(agg, store, true)

	cached := []banking.BankTransaction{
		{Name: "Coffee", Amount: decimal.RequireFromString("4.5"), Date: "2024-05-01"},
	}
	putTransactions(t, store, o.transactionsKey, cached, time.Now().Add(-7*time.Hour))

	err := o.Refresh(context.Background(), false)
	require.Error(t, err)

	// 3 attempts before giving up
	assert.Equal(t, 3, agg.calls())

	state := o.ConnectionState()
	assert.Equal(t, StatusError, state.Status)
	assert.True(t, state.Recoverable)
	assert.Equal(t, "reconnect required", state.Reason)

	// cached transactions stay readable and unchanged
	transactions, err := o.CachedTransactions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached, transactions)
}

func TestRefreshTransientFailureIsNotRecoverable(t *testing.T) {
	agg := &fakeAggregator{err: errors.New("connection reset")}
	store := cachestore.NewMemoryStore()
	o := newTestOrchestrator(agg, store, true)

	err := o.Refresh(context.Background(), false)
	require.Error(t, err)

	state := o.ConnectionState()
	assert.Equal(t, StatusError, state.Status)
	assert.False(t, state.Recoverable)
}

func TestRefreshSkipsWhenDisconnected(t *testing.T) {
	agg := &fakeAggregator{}
	o := newTestOrchestrator(agg, cachestore.NewMemoryStore(), false)

	err := o.Refresh(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 0, agg.calls())
}

func TestRefreshDuringLaunchServesCacheOnly(t *testing.T) {
	agg := &fakeAggregator{}
	o := newTestOrchestrator(agg, cachestore.NewMemoryStore(), true)
	o.SetLifecyclePhase(PhaseLaunching)

	require.NoError(t, o.Refresh(context.Background(), false))
	assert.Equal(t, 0, agg.calls())

	// a forced refresh is the explicit "get real data now" escape hatch
	require.NoError(t, o.Refresh(context.Background(), true))
	assert.Equal(t, 1, agg.calls())
}

func TestEmptyIncrementalFetchRefreshesTimestamp(t *testing.T) {
	agg := &fakeAggregator{}
	store := cachestore.NewMemoryStore()
	o := newTestOrchestrator(agg, store, true)

	cached := []banking.BankTransaction{
		{Name: "Groceries", Amount: decimal.RequireFromString("82.1"), Date: "2024-05-02"},
		{Name: "Coffee", Amount: decimal.RequireFromString("4.5"), Date: "2024-05-01"},
	}
	staleTimestamp := time.Now().Add(-7 * time.Hour)
	putTransactions(t, store, o.transactionsKey, cached, staleTimestamp)

	require.NoError(t, o.Refresh(context.Background(), false))
	assert.Equal(t, 1, agg.calls())

	entry, err := store.Get(context.Background(), o.transactionsKey)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Timestamp.After(staleTimestamp))

	transactions, err := o.CachedTransactions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached, transactions)
}

func TestDisconnectClearsCacheAndState(t *testing.T) {
	agg := &fakeAggregator{
		transactions: []banking.BankTransaction{
			{Name: "Coffee", Amount: decimal.RequireFromString("4.5"), Date: "2024-05-01"},
		},
	}
	store := cachestore.NewMemoryStore()
	o := newTestOrchestrator(agg, store, true)

	require.NoError(t, o.Refresh(context.Background(), false))
	assert.NotZero(t, store.Len())

	require.NoError(t, o.Disconnect(context.Background()))

	assert.Equal(t, 1, agg.disconnects)
	assert.Equal(t, StatusDisconnected, o.ConnectionState().Status)
	assert.Zero(t, store.Len())
}

func TestConfirmLinkSuccessTriggersForcedRefresh(t *testing.T) {
	agg := &fakeAggregator{connected: true}
	o := newTestOrchestrator(agg, cachestore.NewMemoryStore(), false)

	require.NoError(t, o.ConfirmLink(context.Background()))

	assert.Equal(t, StatusConnected, o.ConnectionState().Status)
	assert.Equal(t, 1, agg.calls())
}

func TestConfirmLinkNeverAssumesSuccess(t *testing.T) {
	agg := &fakeAggregator{connected: false}
	o := newTestOrchestrator(agg, cachestore.NewMemoryStore(), false)

	err := o.ConfirmLink(context.Background())
	require.Error(t, err)

	state := o.ConnectionState()
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, "connection unconfirmed", state.Reason)
	assert.True(t, state.Recoverable)
	assert.Equal(t, 0, agg.calls())
}
