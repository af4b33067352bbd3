package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "aquabot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (and if needed creates) the sqlite database and runs the
// embedded migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- policies ----

const policyCols = `chat_id, message, interval_minutes, start_hour, end_hour,
	is_active, onboarding_done, timezone, created_at, updated_at`

func (s *sqliteStore) GetPolicy(ctx context.Context, chatID int64) (Policy, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+policyCols+` FROM policies WHERE chat_id = ?`, chatID)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Policy{}, false, nil
	}
	if err != nil {
		return Policy{}, false, err
	}
	return p, true, nil
}

func (s *sqliteStore) PutPolicy(ctx context.Context, p Policy) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policies (chat_id, message, interval_minutes, start_hour, end_hour, is_active, onboarding_done, timezone)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		     message = excluded.message,
		     interval_minutes = excluded.interval_minutes,
		     start_hour = excluded.start_hour,
		     end_hour = excluded.end_hour,
		     is_active = excluded.is_active,
		     onboarding_done = excluded.onboarding_done,
		     timezone = excluded.timezone,
		     updated_at = CURRENT_TIMESTAMP`,
		p.ChatID, p.Message, p.IntervalMinutes, p.StartHour, p.EndHour,
		boolInt(p.Active), boolInt(p.OnboardingDone), p.Timezone,
	)
	return err
}

func (s *sqliteStore) SetActive(ctx context.Context, chatID int64, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE policies SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE chat_id = ?`,
		boolInt(active), chatID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ListActivePolicies(ctx context.Context) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+policyCols+` FROM policies WHERE is_active = 1 ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(r rowScanner) (Policy, error) {
	var (
		p                  Policy
		active, onboarding int
		created, updated   string
	)
	err := r.Scan(&p.ChatID, &p.Message, &p.IntervalMinutes, &p.StartHour, &p.EndHour,
		&active, &onboarding, &p.Timezone, &created, &updated)
	if err != nil {
		return Policy{}, err
	}
	p.Active = active != 0
	p.OnboardingDone = onboarding != 0
	p.CreatedAt = parseSQLiteTime(created)
	p.UpdatedAt = parseSQLiteTime(updated)
	return p, nil
}

// ---- custom reminders ----

func (s *sqliteStore) AddCustomReminder(ctx context.Context, r CustomReminder) (int64, error) {
	if strings.TrimSpace(r.Message) == "" {
		return 0, errors.New("reminder message is empty")
	}
	if !r.Frequency.Valid() {
		return 0, fmt.Errorf("invalid frequency %q", r.Frequency)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO custom_reminders (chat_id, message, remind_at, frequency, timezone)
		 VALUES (?,?,?,?,?)`,
		r.ChatID, r.Message, r.At.Format(time.RFC3339), string(r.Frequency), r.Timezone)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetCustomReminder(ctx context.Context, id int64) (CustomReminder, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, message, remind_at, frequency, timezone, created_at
		 FROM custom_reminders WHERE id = ?`, id)
	r, err := scanCustomReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CustomReminder{}, false, nil
	}
	if err != nil {
		return CustomReminder{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) ListCustomReminders(ctx context.Context, chatID int64) ([]CustomReminder, error) {
	return s.queryCustomReminders(ctx,
		`SELECT id, chat_id, message, remind_at, frequency, timezone, created_at
		 FROM custom_reminders WHERE chat_id = ? ORDER BY remind_at`, chatID)
}

func (s *sqliteStore) ListAllCustomReminders(ctx context.Context) ([]CustomReminder, error) {
	return s.queryCustomReminders(ctx,
		`SELECT id, chat_id, message, remind_at, frequency, timezone, created_at
		 FROM custom_reminders ORDER BY id`)
}

func (s *sqliteStore) queryCustomReminders(ctx context.Context, query string, args ...any) ([]CustomReminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CustomReminder
	for rows.Next() {
		r, err := scanCustomReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteCustomReminder(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_reminders WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanCustomReminder(r rowScanner) (CustomReminder, error) {
	var (
		c           CustomReminder
		at, created string
		freq        string
	)
	err := r.Scan(&c.ID, &c.ChatID, &c.Message, &at, &freq, &c.Timezone, &created)
	if err != nil {
		return CustomReminder{}, err
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return CustomReminder{}, fmt.Errorf("bad remind_at %q: %w", at, err)
	}
	c.At = t
	c.Frequency = Frequency(freq)
	c.CreatedAt = parseSQLiteTime(created)
	return c, nil
}

// ---- delivery history ----

func (s *sqliteStore) RecordDelivery(ctx context.Context, chatID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_history (chat_id, last_sent_at) VALUES (?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		     last_sent_at = excluded.last_sent_at,
		     updated_at = CURRENT_TIMESTAMP`,
		chatID, at.UTC().Format(time.RFC3339))
	return err
}

func (s *sqliteStore) LastDelivery(ctx context.Context, chatID int64) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_sent_at FROM delivery_history WHERE chat_id = ?`, chatID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("bad last_sent_at %q: %w", raw, err)
	}
	return t, true, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseSQLiteTime parses CURRENT_TIMESTAMP values ("2006-01-02 15:04:05").
// A zero time is returned for anything unparseable; these columns are
// informational only.
func parseSQLiteTime(raw string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
