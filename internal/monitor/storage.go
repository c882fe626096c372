package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"xrate-oracle/internal/config"
	"xrate-oracle/internal/rate"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("monitor: pool not configured")

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS rate_records (
        id           BIGSERIAL PRIMARY KEY,
        pair         TEXT        NOT NULL,
        ts_minute    TIMESTAMPTZ NOT NULL,
        rate         JSONB,
        err_kind     TEXT,
        err_detail   TEXT,
        cycles_spent BIGINT      NOT NULL DEFAULT 0,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (pair, ts_minute)
    );`

	insertRecordSQL = `INSERT INTO rate_records (
        pair, ts_minute, rate, err_kind, err_detail, cycles_spent
    ) VALUES ($1,$2,$3,$4,$5,$6)
    ON CONFLICT (pair, ts_minute) DO NOTHING;`

	listRecordsBetweenSQL = `SELECT
        id, pair, ts_minute, rate, err_kind, err_detail, cycles_spent, created_at
    FROM rate_records
    WHERE pair = $1 AND ts_minute >= $2 AND ts_minute < $3
    ORDER BY ts_minute;`

	listRecentRecordsSQL = `SELECT
        id, pair, ts_minute, rate, err_kind, err_detail, cycles_spent, created_at
    FROM rate_records
    ORDER BY ts_minute DESC
    LIMIT $1;`

	countRecordsSQL = `SELECT COUNT(*) FROM rate_records;`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

// Store persists monitor records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the records table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.pool == nil {
		return ErrNotConfigured
	}
	_, err := s.pool.Exec(ctx, createSchemaSQL)
	return err
}

// InsertRecord stores one observation; an existing (pair, minute) row wins.
func (s *Store) InsertRecord(ctx context.Context, record Record) error {
	if s.pool == nil {
		return ErrNotConfigured
	}

	var rateJSON []byte
	if record.Rate != nil {
		encoded, err := json.Marshal(record.Rate)
		if err != nil {
			return fmt.Errorf("encode rate: %w", err)
		}
		rateJSON = encoded
	}

	_, err := s.pool.Exec(ctx, insertRecordSQL,
		record.Pair,
		record.TsMinute,
		rateJSON,
		record.ErrKind,
		record.ErrDetail,
		int64(record.CyclesSpent),
	)
	return err
}

// ListRecordsBetween returns a pair's records in [from, to) ordered by
// minute.
func (s *Store) ListRecordsBetween(ctx context.Context, pair string, from, to time.Time) ([]Record, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.pool.Query(ctx, listRecordsBetweenSQL, pair, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecent returns the newest records across all pairs.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.pool.Query(ctx, listRecentRecordsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Count returns the total stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.pool == nil {
		return 0, ErrNotConfigured
	}
	var count int64
	err := s.pool.QueryRow(ctx, countRecordsSQL).Scan(&count)
	return count, err
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			record      Record
			rateJSON    []byte
			cyclesSpent int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.Pair,
			&record.TsMinute,
			&rateJSON,
			&record.ErrKind,
			&record.ErrDetail,
			&cyclesSpent,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		record.CyclesSpent = uint64(cyclesSpent)
		if len(rateJSON) > 0 {
			var decoded rate.ExchangeRate
			if err := json.Unmarshal(rateJSON, &decoded); err != nil {
				return nil, fmt.Errorf("decode rate: %w", err)
			}
			record.Rate = &decoded
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
