// Package syncer decides when to call the bank aggregator, merges results
// with the local cache, derives recurring-payment suggestions and keeps the
// connection-health state machine current.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog"

	"github.com/fernwallet/banksync/internal/aggregator"
	"github.com/fernwallet/banksync/internal/cachestore"
	"github.com/fernwallet/banksync/internal/config"
	"github.com/fernwallet/banksync/internal/metrics"
	"github.com/fernwallet/banksync/pkg/banking"
	"github.com/fernwallet/banksync/pkg/recurring"
)

// AppLifecyclePhase is explicit lifecycle signaling from the host. During
// launch, non-forced refreshes serve cached data only.
type AppLifecyclePhase string

const (
	PhaseLaunching  AppLifecyclePhase = "launching"
	PhaseActive     AppLifecyclePhase = "active"
	PhaseBackground AppLifecyclePhase = "background"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second

	linkConfirmAttempts = 5
)

// Options wires one user's orchestrator.
type Options struct {
	Aggregator aggregator.Client
	Store      cachestore.Store
	Metrics    *metrics.Recorder
	Sync       config.SyncConfig
	// Linked is the credential store's "has credential" signal at startup.
	Linked bool
}

// Orchestrator coordinates refreshes for a single user. It owns the
// single-flight guard: concurrent non-forced calls collapse into the
// in-flight run, while forced calls always proceed and their results
// overwrite whatever the earlier run wrote.
type Orchestrator struct {
	userID string
	agg    aggregator.Client
	store  cachestore.Store
	rec    *metrics.Recorder
	conn   *ConnectionStateManager
	cfg    config.SyncConfig

	// cache keys are fixed at construction so a continuation can never
	// write to another user's keys
	keyPrefix       string
	transactionsKey string
	accountsKey     string
	recurringKey    string

	mu       sync.Mutex
	inFlight int
	lastCall time.Time
	phase    AppLifecyclePhase

	now   func() time.Time
	sleep func(time.Duration)
}

func NewOrchestrator(userID string, opts Options) *Orchestrator {
	prefix := "user:" + userID + ":"

	return &Orchestrator{
		userID:          userID,
		agg:             opts.Aggregator,
		store:           opts.Store,
		rec:             opts.Metrics,
		conn:            NewConnectionStateManager(userID, opts.Linked),
		cfg:             opts.Sync,
		keyPrefix:       prefix,
		transactionsKey: prefix + "transactions",
		accountsKey:     prefix + "accounts",
		recurringKey:    prefix + "recurring",
		phase:           PhaseActive,
		now:             time.Now,
		sleep:           time.Sleep,
	}
}

// SetLifecyclePhase records the host app's lifecycle phase.
func (o *Orchestrator) SetLifecyclePhase(phase AppLifecyclePhase) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.phase = phase
}

// Refresh syncs the user's bank data. Non-forced calls return immediately
// when a refresh is already in flight or when cached data is still fresh.
func (o *Orchestrator) Refresh(ctx context.Context, force bool) error {
	o.mu.Lock()
	if o.inFlight > 0 && !force {
		o.mu.Unlock()
		klog.Infof("refresh already in flight for user %s, skipping", o.userID)
		return nil
	}
	o.inFlight++
	o.lastCall = o.now()
	phase := o.phase
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight--
		o.mu.Unlock()
	}()

	if phase == PhaseLaunching && !force {
		klog.Infof("app launching, serving cached data for user %s", o.userID)
		return nil
	}

	if o.conn.State().Status == StatusDisconnected {
		klog.Infof("user %s is not connected to a bank, skipping refresh", o.userID)
		return nil
	}

	runID := uuid.New().String()[:8]
	started := o.now()

	entry := o.getEntry(ctx, o.transactionsKey)

	if !force && entry != nil && entry.Fresh(o.now()) {
		klog.Infof("sync %s: cache for user %s is fresh, no fetch needed", runID, o.userID)
		return nil
	}

	var cached []banking.BankTransaction
	var lastFetch time.Time

	if entry != nil {
		lastFetch = entry.Timestamp
		if err := json.Unmarshal(entry.Payload, &cached); err != nil {
			// corrupt entry: treat as a full cache miss
			klog.Warningf("sync %s: discarding unreadable cache entry: %v", runID, err)
			cached = nil
			lastFetch = time.Time{}
		}
	}

	plan := PlanFetch(PlannerInput{
		Force:                    force,
		LastFetch:                lastFetch,
		LastKnownTransactionDate: banking.LatestDate(cached),
		Now:                      o.now(),
		UpdateInterval:           o.cfg.UpdateInterval(),
		FullWindowDays:           o.cfg.FullWindowDays,
		IncrementalFallbackDays:  o.cfg.IncrementalFallbackDays,
	})

	if plan.Strategy == StrategySkip {
		klog.Infof("sync %s: planner chose skip for user %s", runID, o.userID)
		return nil
	}

	klog.Infof("sync %s: %s fetch for user %s, window %s..%s", runID, plan.Strategy, o.userID, plan.StartDate, plan.EndDate)

	fetched, accounts, err := o.fetchWithRetry(ctx, plan)
	if err != nil {
		o.classifyFailure(err)
		return fmt.Errorf("sync failed for user %s: %w", o.userID, err)
	}

	merged := MergeTransactions(cached, fetched)
	suggestions := recurring.Detect(merged)

	// an empty incremental fetch still refreshes the cache timestamp: "no
	// new activity" is a real observation
	timestamp := o.now()
	o.putJSON(ctx, o.transactionsKey, merged, timestamp, o.cfg.TransactionsTTL())
	o.putJSON(ctx, o.accountsKey, accounts, timestamp, o.cfg.TransactionsTTL())
	o.putJSON(ctx, o.recurringKey, suggestions, timestamp, o.cfg.RecurringTTL())

	o.conn.SetConnected()

	o.rec.RecordSync(metrics.SyncRun{
		RunID:       runID,
		UserID:      o.userID,
		Strategy:    string(plan.Strategy),
		Fetched:     len(fetched),
		Merged:      len(merged),
		Suggestions: len(suggestions),
		Duration:    o.now().Sub(started),
	})

	klog.Infof("sync %s: merged %d transactions (%d fetched), %d recurring suggestions for user %s",
		runID, len(merged), len(fetched), len(suggestions), o.userID)

	return nil
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, plan FetchPlan) ([]banking.BankTransaction, []banking.Account, error) {
	attempts := o.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}

	delay := o.cfg.RetryDelay()
	if o.cfg.RetryDelaySeconds == 0 {
		delay = defaultRetryDelay
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			o.sleep(delay)
		}

		transactions, accounts, err := o.fetchOnce(ctx, plan)
		if err == nil {
			return transactions, accounts, nil
		}

		lastErr = err
		klog.Warningf("fetch attempt %d/%d for user %s failed: %v", attempt, attempts, o.userID, err)
	}

	return nil, nil, lastErr
}

func (o *Orchestrator) fetchOnce(ctx context.Context, plan FetchPlan) ([]banking.BankTransaction, []banking.Account, error) {
	if timeout := o.cfg.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	transactions, err := o.agg.ListTransactions(ctx, plan.StartDate, plan.EndDate)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting transactions: %w", err)
	}

	accounts, err := o.agg.ListAccounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting accounts: %w", err)
	}

	return transactions, accounts, nil
}

// classifyFailure translates a final fetch error into connection state.
// Credential invalidation is recoverable by re-linking; anything else is a
// transient fault the user just waits out, so the link itself is not torn
// down.
func (o *Orchestrator) classifyFailure(err error) {
	if aggregator.IsCredentialError(err) {
		o.conn.SetError("reconnect required", true)
		return
	}

	o.conn.SetError("temporary failure, retry later", false)
}

// CachedTransactions returns the cached transaction list, possibly stale.
// Reads interleave freely with an in-flight refresh.
func (o *Orchestrator) CachedTransactions(ctx context.Context) ([]banking.BankTransaction, error) {
	var transactions []banking.BankTransaction
	err := o.readJSON(ctx, o.transactionsKey, &transactions)
	return transactions, err
}

// CachedAccounts returns the cached account list, possibly stale.
func (o *Orchestrator) CachedAccounts(ctx context.Context) ([]banking.Account, error) {
	var accounts []banking.Account
	err := o.readJSON(ctx, o.accountsKey, &accounts)
	return accounts, err
}

// RecurringSuggestions returns the cached recurring-payment suggestions.
func (o *Orchestrator) RecurringSuggestions(ctx context.Context) ([]banking.RecurringSuggestion, error) {
	var suggestions []banking.RecurringSuggestion
	err := o.readJSON(ctx, o.recurringKey, &suggestions)
	return suggestions, err
}

// ConnectionState returns the current bank-link health.
func (o *Orchestrator) ConnectionState() ConnectionState {
	return o.conn.State()
}

// Disconnect tears the bank link down: aggregator-side disconnect, state to
// Disconnected and all of this user's cache entries removed.
func (o *Orchestrator) Disconnect(ctx context.Context) error {
	err := o.agg.Disconnect(ctx)
	if err != nil {
		klog.Errorf("aggregator disconnect for user %s failed: %v", o.userID, err)
	}

	if removeErr := o.store.RemoveAll(ctx, o.keyPrefix); removeErr != nil {
		klog.Errorf("error clearing cache for user %s: %v", o.userID, removeErr)
		if err == nil {
			err = removeErr
		}
	}

	o.conn.SetDisconnected()

	return err
}

// ConfirmLink verifies a just-completed link handshake by polling the
// aggregator. It never assumes success: when polling is exhausted without
// confirmation the state becomes a recoverable "connection unconfirmed"
// error instead of an optimistic connect.
func (o *Orchestrator) ConfirmLink(ctx context.Context) error {
	delay := o.cfg.RetryDelay()
	if o.cfg.RetryDelaySeconds == 0 {
		delay = defaultRetryDelay
	}

	for attempt := 1; attempt <= linkConfirmAttempts; attempt++ {
		if attempt > 1 {
			o.sleep(delay)
		}

		connected, err := o.agg.IsConnected(ctx)
		if err != nil {
			klog.Warningf("link confirmation attempt %d/%d for user %s failed: %v", attempt, linkConfirmAttempts, o.userID, err)
			continue
		}

		if connected {
			o.conn.SetConnected()
			// now that the link is live, get the real data
			return o.Refresh(ctx, true)
		}
	}

	o.conn.SetError("connection unconfirmed", true)

	return fmt.Errorf("unable to confirm bank link for user %s", o.userID)
}

func (o *Orchestrator) getEntry(ctx context.Context, key string) *cachestore.Entry {
	entry, err := o.store.Get(ctx, key)
	if err != nil {
		// cache I/O failures degrade to a network fetch
		klog.Errorf("error reading cache entry %s: %v", key, err)
		return nil
	}

	return entry
}

func (o *Orchestrator) putJSON(ctx context.Context, key string, value interface{}, timestamp time.Time, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		klog.Errorf("error encoding cache entry %s: %v", key, err)
		return
	}

	err = o.store.Put(ctx, key, cachestore.Entry{
		Payload:   payload,
		Timestamp: timestamp,
		TTL:       ttl,
	})
	if err != nil {
		// non-fatal: next refresh simply sees a stale or missing entry
		klog.Errorf("error writing cache entry %s: %v", key, err)
	}
}

func (o *Orchestrator) readJSON(ctx context.Context, key string, out interface{}) error {
	entry, err := o.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("error reading cache entry %s: %w", key, err)
	}

	if entry == nil {
		return nil
	}

	return json.Unmarshal(entry.Payload, out)
}
