package config

import "time"

type Config struct {
	// UpdateFrequency is a cron spec for the worker's periodic refresh.
	UpdateFrequency string
	Sync            SyncConfig
	SQL             SQLConfig
	Influx          InfluxConfig
	Users           []UserConfig
}

type SyncConfig struct {
	// Hours between network refreshes; a cached fetch newer than this is
	// considered current and the network call is skipped.
	UpdateIntervalHours int
	// Days of history pulled on a full sync.
	FullWindowDays int
	// Fallback incremental window when no last transaction date is known.
	IncrementalFallbackDays int

	RetryAttempts         int
	RetryDelaySeconds     int
	RequestTimeoutSeconds int

	TransactionsTTLHours int
	RecurringTTLHours    int

	DebounceSeconds int
}

type SQLConfig struct {
	Database string
}

type InfluxConfig struct {
	Database    string
	Measurement string
}

type UserConfig struct {
	ID string `json:"id"`
	// Backend selects the aggregator implementation: "bankapi" or "ynab".
	Backend string `json:"backend"`
	// BudgetID is only used by the ynab backend. Empty means detect by name.
	BudgetID   string `json:"budgetId"`
	BudgetName string `json:"budgetName"`
}

type Secrets struct {
	Aggregator AggregatorSecrets
	SQL        SqlSecrets
	Influx     InfluxSecrets

	// Alternative to the SQL struct, designed to be used with the heroku
	// env variable.
	DatabaseURL string `env:"DATABASE_URL"`
}

type AggregatorSecrets struct {
	Endpoint        string `json:"endpoint" env:"AGGREGATOR_ENDPOINT"`
	AccessToken     string `json:"accessToken" env:"AGGREGATOR_ACCESS_TOKEN"`
	YnabAccessToken string `json:"ynabAccessToken" env:"YNAB_ACCESS_TOKEN"`
}

type SqlSecrets struct {
	SqlHost     string `env:"SQL_HOST"`
	SqlUsername string `env:"SQL_USERNAME"`
	SqlPassword string `env:"SQL_PASSWORD"`
}

type InfluxSecrets struct {
	InfluxEndpoint string `json:"influxEndpoint" env:"INFLUX_ENDPOINT"`
	InfluxUsername string `json:"influxUsername" env:"INFLUX_USERNAME"`
	InfluxPassword string `json:"influxPassword" env:"INFLUX_PASSWORD"`
}

func (c SyncConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalHours) * time.Hour
}

func (c SyncConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c SyncConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c SyncConfig) TransactionsTTL() time.Duration {
	return time.Duration(c.TransactionsTTLHours) * time.Hour
}

func (c SyncConfig) RecurringTTL() time.Duration {
	return time.Duration(c.RecurringTTLHours) * time.Hour
}

func (c SyncConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}
