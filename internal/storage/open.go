package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Store is the persistence API used by the lifecycle manager and notifier.
//
// Get reports ok=false for a missing row. UpdateMessage and Delete report
// how many rows they touched; zero is not an error.
type Store interface {
	Create(ctx context.Context, r reminder.Record) (reminder.ID, error)
	GetAll(ctx context.Context) ([]reminder.Record, error)
	Get(ctx context.Context, id reminder.ID) (r reminder.Record, ok bool, err error)
	ListByOwner(ctx context.Context, chatID int64) ([]reminder.Record, error)
	UpdateMessage(ctx context.Context, chatID int64, msg string) (int, error)
	UpdateMessageByID(ctx context.Context, id reminder.ID, msg string) (bool, error)
	Delete(ctx context.Context, id reminder.ID) (bool, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "file":
		return openFile(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	case "supabase":
		return openSupabase(cfg, log)
	case "mongo", "mongodb":
		return openMongo(ctx, cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func cloneRecord(r reminder.Record) reminder.Record {
	r.Days = append([]string(nil), r.Days...)
	return r
}

// sortRecords orders rows by creation time, then id.
func sortRecords(rs []reminder.Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
