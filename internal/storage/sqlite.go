package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"ledger/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps all periods in one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, period string) (Snapshot, error) {
	snap := EmptySnapshot()

	err := s.db.QueryRowContext(ctx,
		`SELECT standard_last_id, recurrent_last_id FROM periods WHERE name = ?`, period,
	).Scan(&snap.Standard.LastID, &snap.Recurrent.LastID)
	if err == sql.ErrNoRows {
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load period %s: %w", period, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name, eid, name, value, category, date, frequency, start_date, end_date
		 FROM entries WHERE period = ? ORDER BY table_name, eid`, period)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query entries of %s: %w", period, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table string
			value string
			e     core.Entry
			freq  string
		)
		if err := rows.Scan(&table, &e.EID, &e.Name, &value, &e.Category, &e.Date, &freq, &e.Start, &e.End); err != nil {
			return Snapshot{}, fmt.Errorf("scan entry: %w", err)
		}
		if e.Value, err = decimal.NewFromString(value); err != nil {
			return Snapshot{}, fmt.Errorf("decode value of entry %d: %w", e.EID, err)
		}
		e.Frequency = core.Frequency(freq)
		switch core.TableName(table) {
		case core.Recurrent:
			snap.Recurrent.Entries[e.EID] = e
		default:
			snap.Standard.Entries[e.EID] = e
		}
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate entries: %w", err)
	}
	return snap, nil
}

func (s *SQLiteStore) Save(ctx context.Context, period string, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO periods (name, standard_last_id, recurrent_last_id, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(name) DO UPDATE SET
		   standard_last_id = excluded.standard_last_id,
		   recurrent_last_id = excluded.recurrent_last_id,
		   updated_at = CURRENT_TIMESTAMP`,
		period, snap.Standard.LastID, snap.Recurrent.LastID); err != nil {
		return fmt.Errorf("upsert period %s: %w", period, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE period = ?`, period); err != nil {
		return fmt.Errorf("clear entries of %s: %w", period, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (period, table_name, eid, name, value, category, date, frequency, start_date, end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, table := range []core.TableName{core.Standard, core.Recurrent} {
		for _, e := range snap.Table(table).Entries {
			if _, err := stmt.ExecContext(ctx, period, string(table), e.EID, e.Name, e.Value.String(),
				e.Category, e.Date, string(e.Frequency), e.Start, e.End); err != nil {
				return fmt.Errorf("insert entry %d of %s: %w", e.EID, period, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit period %s: %w", period, err)
	}
	return nil
}

func (s *SQLiteStore) Periods(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM periods ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query periods: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
