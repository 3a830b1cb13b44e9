package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

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

func (s *sqliteStore) PutSchedule(ctx context.Context, p ScheduledPost) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("schedule id is required")
	}
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules(id, payload, cron, run_at, created_at, last_run_at, runs)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   payload=excluded.payload, cron=excluded.cron, run_at=excluded.run_at,
		   last_run_at=excluded.last_run_at, runs=excluded.runs`,
		p.ID, string(payload), nullStr(p.Cron), nullTime(p.RunAt),
		p.CreatedAt.Format(time.RFC3339Nano), nullTime(p.LastRunAt), p.Runs,
	)
	return err
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id string) (ScheduledPost, bool, error) {
	if s == nil || s.db == nil {
		return ScheduledPost{}, false, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, payload, cron, run_at, created_at, last_run_at, runs FROM schedules WHERE id = ?`, id)
	p, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledPost{}, false, nil
	}
	if err != nil {
		return ScheduledPost{}, false, err
	}
	return p, true, nil
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) ListSchedules(ctx context.Context) ([]ScheduledPost, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, cron, run_at, created_at, last_run_at, runs FROM schedules ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ScheduledPost{}
	for rows.Next() {
		p, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendHistory(ctx context.Context, r PublishRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	result, err := json.Marshal(r.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history(record_id, schedule_id, content, success, result, at)
		 VALUES(?,?,?,?,?,?)`,
		r.ID, nullStr(r.ScheduleID), r.Content, boolInt(r.Result.Success),
		string(result), r.At.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) ListHistory(ctx context.Context, limit int) ([]PublishRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, schedule_id, content, result, at
		 FROM history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []PublishRecord{}
	for rows.Next() {
		var r PublishRecord
		var scheduleID sql.NullString
		var result, at string
		if err := rows.Scan(&r.ID, &scheduleID, &r.Content, &result, &at); err != nil {
			return nil, err
		}
		r.ScheduleID = scheduleID.String
		if err := json.Unmarshal([]byte(result), &r.Result); err != nil {
			r.Result = dispatch.FanOutResult{}
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (ScheduledPost, error) {
	var p ScheduledPost
	var payload, createdAt string
	var cron, runAt, lastRunAt sql.NullString
	if err := row.Scan(&p.ID, &payload, &cron, &runAt, &createdAt, &lastRunAt, &p.Runs); err != nil {
		return ScheduledPost{}, err
	}
	if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
		return ScheduledPost{}, err
	}
	p.Cron = cron.String
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if runAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, runAt.String); err == nil {
			p.RunAt = &t
		}
	}
	if lastRunAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastRunAt.String); err == nil {
			p.LastRunAt = &t
		}
	}
	return p, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
