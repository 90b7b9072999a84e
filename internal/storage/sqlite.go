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
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
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

const sqliteColumns = `id, user_id, chat_id, reminder_time, days, custom_message, created_at`

func (s *sqliteStore) Create(ctx context.Context, r reminder.Record) (reminder.ID, error) {
	days, err := json.Marshal(r.Days)
	if err != nil {
		return "", err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(user_id, chat_id, reminder_time, days, custom_message, created_at)
		 VALUES(?,?,?,?,?,?)`,
		r.UserID, r.ChatID, r.ReminderTime, string(days), nullStr(r.Message), r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", err
	}
	return reminder.ID(strconv.FormatInt(id, 10)), nil
}

func (s *sqliteStore) GetAll(ctx context.Context) ([]reminder.Record, error) {
	return s.query(ctx, `SELECT `+sqliteColumns+` FROM reminders ORDER BY id`)
}

func (s *sqliteStore) ListByOwner(ctx context.Context, chatID int64) ([]reminder.Record, error) {
	return s.query(ctx, `SELECT `+sqliteColumns+` FROM reminders WHERE chat_id = ? ORDER BY id`, chatID)
}

func (s *sqliteStore) Get(ctx context.Context, id reminder.ID) (reminder.Record, bool, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return reminder.Record{}, false, nil
	}
	rs, err := s.query(ctx, `SELECT `+sqliteColumns+` FROM reminders WHERE id = ?`, n)
	if err != nil || len(rs) == 0 {
		return reminder.Record{}, false, err
	}
	return rs[0], true, nil
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]reminder.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Record
	for rows.Next() {
		var (
			id      int64
			r       reminder.Record
			days    string
			msg     sql.NullString
			created string
		)
		if err := rows.Scan(&id, &r.UserID, &r.ChatID, &r.ReminderTime, &days, &msg, &created); err != nil {
			return nil, err
		}
		r.ID = reminder.ID(strconv.FormatInt(id, 10))
		r.Message = msg.String
		// A bad days column surfaces as an empty set; ParseRecord rejects it.
		if err := json.Unmarshal([]byte(days), &r.Days); err != nil {
			s.log.Warn("bad days column", logx.String("id", string(r.ID)), logx.Err(err))
			r.Days = nil
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateMessage(ctx context.Context, chatID int64, msg string) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET custom_message = ? WHERE chat_id = ?`, nullStr(msg), chatID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqliteStore) UpdateMessageByID(ctx context.Context, id reminder.ID, msg string) (bool, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET custom_message = ? WHERE id = ?`, nullStr(msg), n)
	if err != nil {
		return false, err
	}
	c, err := res.RowsAffected()
	return c > 0, err
}

func (s *sqliteStore) Delete(ctx context.Context, id reminder.ID) (bool, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, n)
	if err != nil {
		return false, err
	}
	c, err := res.RowsAffected()
	return c > 0, err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli(),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.pruneExpired(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, time.Now().UnixMilli())
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
