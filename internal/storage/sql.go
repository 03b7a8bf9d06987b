package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"schoolfin/internal/core"
	"schoolfin/internal/reconcile"
)

// Dialect selects the SQL flavour and driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// SQLRepository stores everything in sqlite or postgres through
// database/sql. Queries are written with ? placeholders and rebound for
// postgres.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLite opens (creating if needed) the database file and migrates it.
func OpenSQLite(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	repo, err := open(SQLite, dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY.
	repo.db.SetMaxOpenConns(1)
	return repo, nil
}

// OpenPostgres connects with the pgx driver and migrates the schema.
func OpenPostgres(databaseURL string) (*SQLRepository, error) {
	repo, err := open(Postgres, databaseURL)
	if err != nil {
		return nil, err
	}
	repo.db.SetMaxOpenConns(10)
	repo.db.SetConnMaxIdleTime(5 * time.Minute)
	return repo, nil
}

func open(dialect Dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLRepository{db: db, dialect: dialect}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// rebind rewrites ? placeholders as $1, $2... for postgres.
func (r *SQLRepository) rebind(q string) string {
	if r.dialect != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// UpsertRecords inserts or replaces records by (school, kind, id) and
// returns how many rows were written.
func (r *SQLRepository) UpsertRecords(ctx context.Context, schoolID string, set core.RecordSet) (int, error) {
	rows, err := flatten(set)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO records (school_id, kind, id, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (school_id, kind, id)
		DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`))
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range rows {
		if _, err := stmt.ExecContext(ctx, schoolID, string(rec.kind), rec.id, string(rec.payload), now); err != nil {
			return 0, fmt.Errorf("upsert %s %s: %w", rec.kind, rec.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Records upserted", "school_id", schoolID, "count", len(rows))
	return len(rows), nil
}

// LoadRecords returns every record of one kind, ordered by id.
func (r *SQLRepository) LoadRecords(ctx context.Context, schoolID string, kind core.RecordKind) (core.RecordSet, error) {
	var set core.RecordSet
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT payload FROM records
		WHERE school_id = ? AND kind = ?
		ORDER BY id`), schoolID, string(kind))
	if err != nil {
		return set, fmt.Errorf("query %s records: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return set, fmt.Errorf("scan %s record: %w", kind, err)
		}
		if err := appendRecord(&set, kind, payload); err != nil {
			return set, err
		}
	}
	return set, rows.Err()
}

// SaveBankTransactions stores new statement lines after the existing ones.
// Lines whose id is already stored are left untouched. It returns the
// number of lines inserted.
func (r *SQLRepository) SaveBankTransactions(ctx context.Context, schoolID string, txns []reconcile.BankTransaction) (int, error) {
	if len(txns) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var last int64
	if err := tx.QueryRowContext(ctx, r.rebind(
		`SELECT COALESCE(MAX(position), 0) FROM bank_transactions WHERE school_id = ?`), schoolID).Scan(&last); err != nil {
		return 0, fmt.Errorf("read last position: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO bank_transactions (school_id, id, position, booked_on, amount, description, reference, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (school_id, id) DO NOTHING`))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, t := range txns {
		res, err := stmt.ExecContext(ctx, schoolID, t.ID, last+int64(inserted)+1, t.Date.String(), t.Amount.String(), t.Description, t.Reference, now)
		if err != nil {
			return 0, fmt.Errorf("insert bank transaction %s: %w", t.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Bank transactions stored",
		"school_id", schoolID,
		"received", len(txns),
		"inserted", inserted)
	return inserted, nil
}

// ListBankTransactions returns the stored lines in import order.
func (r *SQLRepository) ListBankTransactions(ctx context.Context, schoolID string) ([]reconcile.BankTransaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, booked_on, amount, description, reference
		FROM bank_transactions
		WHERE school_id = ?
		ORDER BY position`), schoolID)
	if err != nil {
		return nil, fmt.Errorf("query bank transactions: %w", err)
	}
	defer rows.Close()

	var out []reconcile.BankTransaction
	for rows.Next() {
		var (
			t            reconcile.BankTransaction
			date, amount string
		)
		if err := rows.Scan(&t.ID, &date, &amount, &t.Description, &t.Reference); err != nil {
			return nil, fmt.Errorf("scan bank transaction: %w", err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("bank transaction %s date %q: %w", t.ID, date, err)
		}
		if t.Amount, err = core.ParseMoney(amount); err != nil {
			return nil, fmt.Errorf("bank transaction %s amount %q: %w", t.ID, amount, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadMatches returns the stored match states. A school that never saved
// gets an empty snapshot at version zero.
func (r *SQLRepository) LoadMatches(ctx context.Context, schoolID string) (MatchSnapshot, error) {
	var snap MatchSnapshot
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT version FROM match_versions WHERE school_id = ?`), schoolID).Scan(&snap.Version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("read match version: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT bank_txn_id, payment_id, state, confidence, days_apart, alternatives
		FROM match_states
		WHERE school_id = ?
		ORDER BY position`), schoolID)
	if err != nil {
		return snap, fmt.Errorf("query match states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c    reconcile.MatchCandidate
			alts []byte
		)
		if err := rows.Scan(&c.BankTxnID, &c.PaymentID, &c.State, &c.Confidence, &c.DaysApart, &alts); err != nil {
			return snap, fmt.Errorf("scan match state: %w", err)
		}
		if len(alts) > 0 {
			if err := json.Unmarshal(alts, &c.Alternatives); err != nil {
				return snap, fmt.Errorf("decode alternatives of %s: %w", c.BankTxnID, err)
			}
		}
		if len(c.Alternatives) == 0 {
			c.Alternatives = nil
		}
		snap.Candidates = append(snap.Candidates, c)
	}
	return snap, rows.Err()
}

// SaveMatches replaces the stored match states when the stored version
// still equals expected, and returns the new version. Otherwise it fails
// with ErrVersionConflict and stores nothing.
func (r *SQLRepository) SaveMatches(ctx context.Context, schoolID string, expected int64, candidates []reconcile.MatchCandidate) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var res sql.Result
	if expected == 0 {
		res, err = tx.ExecContext(ctx, r.rebind(`
			INSERT INTO match_versions (school_id, version, updated_at) VALUES (?, 1, ?)
			ON CONFLICT (school_id) DO NOTHING`), schoolID, now)
	} else {
		res, err = tx.ExecContext(ctx, r.rebind(`
			UPDATE match_versions SET version = version + 1, updated_at = ?
			WHERE school_id = ? AND version = ?`), now, schoolID, expected)
	}
	if err != nil {
		return 0, fmt.Errorf("bump match version: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("bump match version: %w", err)
	} else if n == 0 {
		return 0, fmt.Errorf("%w: school %s expected version %d", ErrVersionConflict, schoolID, expected)
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM match_states WHERE school_id = ?`), schoolID); err != nil {
		return 0, fmt.Errorf("clear match states: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO match_states (school_id, bank_txn_id, position, payment_id, state, confidence, days_apart, alternatives)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range candidates {
		alts := c.Alternatives
		if alts == nil {
			alts = []string{}
		}
		b, err := json.Marshal(alts)
		if err != nil {
			return 0, fmt.Errorf("encode alternatives of %s: %w", c.BankTxnID, err)
		}
		if _, err := stmt.ExecContext(ctx, schoolID, c.BankTxnID, i, c.PaymentID, string(c.State), c.Confidence, c.DaysApart, string(b)); err != nil {
			return 0, fmt.Errorf("insert match state %s: %w", c.BankTxnID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Match states saved",
		"school_id", schoolID,
		"version", expected+1,
		"count", len(candidates))
	return expected + 1, nil
}
