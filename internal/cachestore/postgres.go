package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"k8s.io/klog"

	"github.com/fernwallet/banksync/internal/config"
)

type cacheRow struct {
	bun.BaseModel `bun:"table:cache_entries"`

	Key        string `bun:",pk"`
	Payload    []byte `bun:"type:jsonb"`
	Timestamp  time.Time
	TTLSeconds int64
	UpdatedAt  time.Time
}

// PostgresStore keeps cache entries in a single table. Put is an upsert, so
// replacing an entry is atomic.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(db *bun.DB) (*PostgresStore, error) {
	_, err := db.NewCreateTable().Model((*cacheRow)(nil)).IfNotExists().Exec(context.Background())
	if err != nil {
		return nil, fmt.Errorf("error creating cache table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	row := new(cacheRow)

	err := s.db.NewSelect().Model(row).Where("key = ?", key).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading cache entry %s: %w", key, err)
	}

	return &Entry{
		Payload:   row.Payload,
		Timestamp: row.Timestamp,
		TTL:       time.Duration(row.TTLSeconds) * time.Second,
	}, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, entry Entry) error {
	row := cacheRow{
		Key:        key,
		Payload:    entry.Payload,
		Timestamp:  entry.Timestamp,
		TTLSeconds: int64(entry.TTL / time.Second),
		UpdatedAt:  time.Now(),
	}

	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (key) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("timestamp = EXCLUDED.timestamp").
		Set("ttl_seconds = EXCLUDED.ttl_seconds").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error writing cache entry %s: %w", key, err)
	}

	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().Model((*cacheRow)(nil)).Where("key = ?", key).Exec(ctx)
	return err
}

func (s *PostgresStore) RemoveAll(ctx context.Context, prefix string) error {
	_, err := s.db.NewDelete().Model((*cacheRow)(nil)).Where("key LIKE ?", prefix+"%").Exec(ctx)
	return err
}

// CreatePostgresClient connects using either DATABASE_URL or the SQL
// secrets, creating the database first when it is missing.
func CreatePostgresClient() (*bun.DB, error) {
	var pgconn *pgdriver.Connector

	// bypass creating of db if database_url is set because we are likely running in heroku then
	if config.CurrentSecrets().DatabaseURL == "" {
		err := ensureDBExistsInPostgres(config.CurrentSQLConfig().Database)
		if err != nil {
			return nil, err
		}

		sqlHost := config.CurrentSqlSecrets().SqlHost
		// slightly silly logic to add port if missing
		if !strings.Contains(sqlHost, ":") {
			sqlHost += ":5432"
		}

		pgconn = pgdriver.NewConnector(
			pgdriver.WithAddr(sqlHost),
			pgdriver.WithInsecure(true),
			pgdriver.WithUser(config.CurrentSqlSecrets().SqlUsername),
			pgdriver.WithPassword(config.CurrentSqlSecrets().SqlPassword),
			pgdriver.WithDatabase(config.CurrentSQLConfig().Database),
		)
	} else {
		// this panics if its invalid
		pgconn = pgdriver.NewConnector(pgdriver.WithDSN(config.CurrentSecrets().DatabaseURL))
	}

	db := sql.OpenDB(pgconn)
	err := db.Ping()

	return bun.NewDB(db, pgdialect.New()), err
}

func ensureDBExistsInPostgres(database string) error {
	pgconn := pgdriver.NewConnector(
		pgdriver.WithAddr(config.CurrentSqlSecrets().SqlHost),
		pgdriver.WithInsecure(true),
		pgdriver.WithUser(config.CurrentSqlSecrets().SqlUsername),
		pgdriver.WithPassword(config.CurrentSqlSecrets().SqlPassword),
		pgdriver.WithDatabase("postgres"),
	)

	db := sql.OpenDB(pgconn)
	defer db.Close()

	rows, err := db.Query(fmt.Sprintf("SELECT datname FROM pg_database where datname = '%s'", database))
	if err != nil {
		return fmt.Errorf("Failed to get list of databases: %s", err)
	}
	defer rows.Close()

	// next meaning there is a row, all we care about is if there is a row
	if !rows.Next() {
		klog.Infof("Creating database %s in postgres database\n", database)
		_, err := db.Exec("CREATE DATABASE " + database)
		if err != nil {
			return fmt.Errorf("failed to create database %s: %w", database, err)
		}
	}

	return nil
}
