// Package store persists per-burst analysis results to SQLite so repeated
// runs against the same hardware setup can be compared over time.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kf7aae/burstprobe/rx"
)

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS results (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at     TIMESTAMP NOT NULL,
    source         TEXT NOT NULL,
    locked         BOOLEAN NOT NULL,
    start_sample   INTEGER,
    coarse_cfo_hz  REAL,
    fine_cfo_hz    REAL,
    tap_mag        REAL,
    tap_phase_deg  REAL,
    peak_magnitude REAL,
    evm_pct        REAL,
    ref_evm_pct    REAL,
    ber            REAL,
    bits_compared  INTEGER,
    flags          TEXT,
    detail         TEXT
);`

const insertResultSQL = `
INSERT INTO results (created_at,
                     source,
                     locked,
                     start_sample,
                     coarse_cfo_hz,
                     fine_cfo_hz,
                     tap_mag,
                     tap_phase_deg,
                     peak_magnitude,
                     evm_pct,
                     ref_evm_pct,
                     ber,
                     bits_compared,
                     flags,
                     detail)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Store wraps a SQLite database holding one row per analyzed burst.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", path))
	if err != nil {
		return nil, fmt.Errorf("opening results database: %w", err)
	}
	if _, err := db.Exec(initSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// InsertResult writes one burst result. Unlocked records are stored too, so a
// batch run leaves a trace of its failures.
func (s *Store) InsertResult(ctx context.Context, source string, res *rx.Result) error {
	detail, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	rec := &res.Record
	var evm, refEVM, ber sql.NullFloat64
	var bits sql.NullInt64
	var flags string
	if res.Metrics != nil {
		evm = sql.NullFloat64{Float64: res.Metrics.EVMPercent, Valid: true}
		refEVM = sql.NullFloat64{Float64: res.Metrics.RefEVMPercent, Valid: true}
		if res.Metrics.HasBER() {
			ber = sql.NullFloat64{Float64: res.Metrics.BER, Valid: true}
			bits = sql.NullInt64{Int64: int64(res.Metrics.BitsCompared), Valid: true}
		}
		flags = strings.Join(res.Metrics.Flags.Strings(), ",")
	} else {
		flags = strings.Join(rec.Flags.Strings(), ",")
	}

	_, err = s.db.ExecContext(ctx, insertResultSQL,
		time.Now().UTC(),
		source,
		rec.Locked,
		rec.StartSample,
		rec.CoarseCFOHz,
		rec.FineCFOHz,
		rec.TapMag,
		rec.TapPhaseDeg,
		rec.PeakMagnitude,
		evm,
		refEVM,
		ber,
		bits,
		flags,
		string(detail),
	)
	if err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}
	return nil
}

// StoredResult is one row read back from the results table.
type StoredResult struct {
	ID        int64
	CreatedAt time.Time
	Source    string
	Locked    bool
	EVMPct    sql.NullFloat64
	BER       sql.NullFloat64
}

// RecentResults returns the newest n rows, newest first.
func (s *Store) RecentResults(ctx context.Context, n int) ([]StoredResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, source, locked, evm_pct, ber FROM results ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var out []StoredResult
	for rows.Next() {
		var r StoredResult
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Source, &r.Locked, &r.EVMPct, &r.BER); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
