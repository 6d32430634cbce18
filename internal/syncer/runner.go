package syncer

import (
	"context"
	"fmt"

	"k8s.io/klog"

	"github.com/fernwallet/banksync/internal/aggregator"
	"github.com/fernwallet/banksync/internal/cachestore"
	"github.com/fernwallet/banksync/internal/config"
	"github.com/fernwallet/banksync/internal/metrics"
)

// SyncRunner refreshes every configured user. It is the worker binary's
// entry point, re-run by cron.
type SyncRunner struct {
	orchestrators []*Orchestrator
}

func NewSyncRunner() (*SyncRunner, error) {
	db, err := cachestore.CreatePostgresClient()
	if err != nil {
		return nil, fmt.Errorf("Error connecting to postgres DB: %s", err)
	}

	store, err := cachestore.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}

	recorder, err := metrics.CreateRecorder(*config.CurrentInfluxSecrets(), *config.CurrentInfluxConfig())
	if err != nil {
		return nil, fmt.Errorf("Error creating InfluxDB Client: %s", err.Error())
	}

	runner := &SyncRunner{}

	for _, user := range config.CurrentConfig().Users {
		client, err := aggregatorClientFor(user)
		if err != nil {
			return nil, err
		}

		runner.orchestrators = append(runner.orchestrators, NewOrchestrator(user.ID, Options{
			Aggregator: client,
			Store:      store,
			Metrics:    recorder,
			Sync:       *config.CurrentSyncConfig(),
			Linked:     true,
		}))
	}

	return runner, nil
}

func (r *SyncRunner) Run() error {
	ctx := context.Background()

	var firstErr error

	for _, orchestrator := range r.orchestrators {
		err := orchestrator.Refresh(ctx, false)
		if err != nil {
			klog.Errorf("%v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func aggregatorClientFor(user config.UserConfig) (aggregator.Client, error) {
	secrets := config.CurrentAggregatorSecrets()

	switch user.Backend {
	case "", "bankapi":
		return aggregator.NewHTTPClient(secrets.Endpoint, secrets.AccessToken), nil
	case "ynab":
		return aggregator.NewYNABClient(secrets.YnabAccessToken, user.BudgetID, user.BudgetName), nil
	}

	return nil, fmt.Errorf("unknown aggregator backend %q for user %s", user.Backend, user.ID)
}
