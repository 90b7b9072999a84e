package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/supabase-community/supabase-go"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// supabaseStore talks to a PostgREST "reminders" table. The dedup table is
// not assumed to exist remotely, so dedup state stays process-local.
//
// The client has no context plumbing; ctx is checked before each call only.
type supabaseStore struct {
	client *supabase.Client
	table  string
	log    logx.Logger
	dedup  *memStore
}

type supabaseRow struct {
	ID           int64    `json:"id"`
	UserID       int64    `json:"user_id"`
	ChatID       int64    `json:"chat_id"`
	ReminderTime string   `json:"reminder_time"`
	Days         []string `json:"days"`
	Message      *string  `json:"custom_message"`
	CreatedAt    string   `json:"created_at"`
}

func (r supabaseRow) record() reminder.Record {
	out := reminder.Record{
		ID:           reminder.ID(strconv.FormatInt(r.ID, 10)),
		UserID:       r.UserID,
		ChatID:       r.ChatID,
		ReminderTime: r.ReminderTime,
		Days:         r.Days,
	}
	if t, err := time.Parse(time.RFC3339Nano, r.CreatedAt); err == nil {
		out.CreatedAt = t
	}
	if r.Message != nil {
		out.Message = *r.Message
	}
	return out
}

func openSupabase(cfg Config, log logx.Logger) (Store, error) {
	url, key := strings.TrimSpace(cfg.URL), strings.TrimSpace(cfg.Key)
	if url == "" || key == "" {
		return nil, errors.New("storage.url and storage.key are required for supabase driver")
	}
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, err
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultTable
	}
	log.Debug("supabase store opened", logx.String("table", table))
	return &supabaseStore{
		client: client,
		table:  table,
		log:    log,
		dedup:  NewMemory().(*memStore),
	}, nil
}

func optMessage(msg string) *string {
	if strings.TrimSpace(msg) == "" {
		return nil
	}
	return &msg
}

func (s *supabaseStore) Create(ctx context.Context, r reminder.Record) (reminder.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	row := map[string]any{
		"user_id":        r.UserID,
		"chat_id":        r.ChatID,
		"reminder_time":  r.ReminderTime,
		"days":           r.Days,
		"custom_message": optMessage(r.Message),
	}
	var out []supabaseRow
	if _, err := s.client.From(s.table).Insert(row, false, "", "representation", "").ExecuteTo(&out); err != nil {
		return "", err
	}
	if len(out) == 0 || out[0].ID == 0 {
		return "", errors.New("supabase insert returned no id")
	}
	return reminder.ID(strconv.FormatInt(out[0].ID, 10)), nil
}

func (s *supabaseStore) selectRows(ctx context.Context, col, val string) ([]reminder.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := s.client.From(s.table).Select("*", "", false)
	if col != "" {
		q = q.Eq(col, val)
	}
	var rows []supabaseRow
	if _, err := q.ExecuteTo(&rows); err != nil {
		return nil, err
	}
	out := make([]reminder.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	sortRecords(out)
	return out, nil
}

func (s *supabaseStore) GetAll(ctx context.Context) ([]reminder.Record, error) {
	return s.selectRows(ctx, "", "")
}

func (s *supabaseStore) ListByOwner(ctx context.Context, chatID int64) ([]reminder.Record, error) {
	return s.selectRows(ctx, "chat_id", strconv.FormatInt(chatID, 10))
}

func (s *supabaseStore) Get(ctx context.Context, id reminder.ID) (reminder.Record, bool, error) {
	rs, err := s.selectRows(ctx, "id", string(id))
	if err != nil || len(rs) == 0 {
		return reminder.Record{}, false, err
	}
	return rs[0], true, nil
}

func (s *supabaseStore) update(ctx context.Context, col, val, msg string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var rows []supabaseRow
	patch := map[string]any{"custom_message": optMessage(msg)}
	if _, err := s.client.From(s.table).Update(patch, "representation", "").Eq(col, val).ExecuteTo(&rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *supabaseStore) UpdateMessage(ctx context.Context, chatID int64, msg string) (int, error) {
	return s.update(ctx, "chat_id", strconv.FormatInt(chatID, 10), msg)
}

func (s *supabaseStore) UpdateMessageByID(ctx context.Context, id reminder.ID, msg string) (bool, error) {
	n, err := s.update(ctx, "id", string(id), msg)
	return n > 0, err
}

func (s *supabaseStore) Delete(ctx context.Context, id reminder.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var rows []supabaseRow
	if _, err := s.client.From(s.table).Delete("representation", "").Eq("id", string(id)).ExecuteTo(&rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (s *supabaseStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	return s.dedup.PutDedup(ctx, key, until)
}

func (s *supabaseStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	return s.dedup.GetDedup(ctx, key)
}

func (s *supabaseStore) Close() error { return s.dedup.Close() }
