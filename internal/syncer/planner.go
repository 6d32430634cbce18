package syncer

import (
	"time"

	"github.com/fernwallet/banksync/pkg/banking"
)

type Strategy string

const (
	StrategySkip        Strategy = "skip"
	StrategyIncremental Strategy = "incremental"
	StrategyFull        Strategy = "full"
)

// Defaults for the fetch windows. Overridable through config.
const (
	DefaultUpdateInterval          = 6 * time.Hour
	DefaultFullWindowDays          = 90
	DefaultIncrementalFallbackDays = 7
)

// FetchPlan is the decision for one refresh: whether to hit the network and
// for which calendar-date window. Plans are computed fresh on every run and
// never persisted.
type FetchPlan struct {
	Strategy  Strategy
	StartDate string
	EndDate   string
}

// PlannerInput carries the last-fetch metadata a plan is derived from. A
// zero LastFetch means no fetch has ever completed; an empty
// LastKnownTransactionDate means the cache holds no transactions.
type PlannerInput struct {
	Force                    bool
	LastFetch                time.Time
	LastKnownTransactionDate string
	Now                      time.Time

	UpdateInterval          time.Duration
	FullWindowDays          int
	IncrementalFallbackDays int
}

// PlanFetch picks skip, incremental or full. Rule order matters: force
// always wins over interval freshness, and an absent fetch history forces a
// full sync rather than an incremental one with an undefined start.
func PlanFetch(in PlannerInput) FetchPlan {
	updateInterval := in.UpdateInterval
	if updateInterval == 0 {
		updateInterval = DefaultUpdateInterval
	}

	fullWindowDays := in.FullWindowDays
	if fullWindowDays == 0 {
		fullWindowDays = DefaultFullWindowDays
	}

	fallbackDays := in.IncrementalFallbackDays
	if fallbackDays == 0 {
		fallbackDays = DefaultIncrementalFallbackDays
	}

	end := in.Now.Format(banking.DateFormat)

	if in.Force || in.LastFetch.IsZero() {
		return FetchPlan{
			Strategy:  StrategyFull,
			StartDate: in.Now.AddDate(0, 0, -fullWindowDays).Format(banking.DateFormat),
			EndDate:   end,
		}
	}

	if in.Now.Sub(in.LastFetch) > updateInterval {
		start := in.LastKnownTransactionDate
		if start == "" {
			start = in.Now.AddDate(0, 0, -fallbackDays).Format(banking.DateFormat)
		}

		return FetchPlan{
			Strategy:  StrategyIncremental,
			StartDate: start,
			EndDate:   end,
		}
	}

	return FetchPlan{Strategy: StrategySkip}
}
