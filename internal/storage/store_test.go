package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remindbot.db")
	st, err := Open(context.Background(), Config{Driver: driver, Path: path}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleRecord(chat int64, at string, days ...string) reminder.Record {
	return reminder.Record{UserID: chat + 1000, ChatID: chat, ReminderTime: at, Days: days}
}

func TestStoreDrivers(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"memory", "file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openDriver(t, driver)

			id1, err := st.Create(ctx, sampleRecord(42, "14:30:00", "0", "2", "4"))
			require.NoError(t, err)
			require.NotEmpty(t, id1)
			id2, err := st.Create(ctx, sampleRecord(42, "07:00:00", "5", "6"))
			require.NoError(t, err)
			_, err = st.Create(ctx, sampleRecord(7, "21:00:00", "1"))
			require.NoError(t, err)
			assert.NotEqual(t, id1, id2)

			got, ok, err := st.Get(ctx, id1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(42), got.ChatID)
			assert.Equal(t, int64(1042), got.UserID)
			assert.Equal(t, "14:30:00", got.ReminderTime)
			assert.Equal(t, []string{"0", "2", "4"}, got.Days)
			assert.Empty(t, got.Message)
			assert.False(t, got.CreatedAt.IsZero())

			all, err := st.GetAll(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			owned, err := st.ListByOwner(ctx, 42)
			require.NoError(t, err)
			assert.Len(t, owned, 2)

			n, err := st.UpdateMessage(ctx, 42, "Study now")
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			got, _, err = st.Get(ctx, id2)
			require.NoError(t, err)
			assert.Equal(t, "Study now", got.Message)

			ok, err = st.UpdateMessageByID(ctx, id1, "Only this one")
			require.NoError(t, err)
			assert.True(t, ok)
			got, _, _ = st.Get(ctx, id1)
			assert.Equal(t, "Only this one", got.Message)
			got, _, _ = st.Get(ctx, id2)
			assert.Equal(t, "Study now", got.Message)

			ok, err = st.Delete(ctx, id1)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = st.Delete(ctx, id1)
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, err = st.Get(ctx, id1)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = st.UpdateMessageByID(ctx, "999999", "x")
			require.NoError(t, err)
			assert.False(t, ok)
			n, err = st.UpdateMessage(ctx, 555, "x")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStoreDedup(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"memory", "file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openDriver(t, driver)

			_, ok, err := st.GetDedup(ctx, "reminder:1:100")
			require.NoError(t, err)
			assert.False(t, ok)

			until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			require.NoError(t, st.PutDedup(ctx, "reminder:1:100", until))
			require.NoError(t, st.PutDedup(ctx, "", until))
			got, ok, err := st.GetDedup(ctx, "reminder:1:100")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, until.Equal(got))
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	st, err := Open(ctx, Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	keep, err := st.Create(ctx, sampleRecord(42, "09:00:00", "0"))
	require.NoError(t, err)
	gone, err := st.Create(ctx, sampleRecord(42, "10:00:00", "1"))
	require.NoError(t, err)
	_, err = st.UpdateMessageByID(ctx, keep, "hello")
	require.NoError(t, err)
	_, err = st.Delete(ctx, gone)
	require.NoError(t, err)

	// Simulate a crash: journal only, no compaction.
	fs := st.(*fileStore)
	require.NoError(t, fs.journal.Close())
	fs.journal = nil

	st2, err := Open(ctx, Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	all, err := st2.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep, all[0].ID)
	assert.Equal(t, "hello", all[0].Message)
	require.NoError(t, st2.Close())

	// Close compacts into the snapshot and truncates the journal.
	info, err := os.Stat(filepath.Join(filepath.Dir(path), "state.journal.jsonl"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	st3, err := Open(ctx, Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st3.Close()
	_, ok, err := st3.Get(ctx, keep)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStoreSkipsTornJournalLine(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	journal := `{"op":"put","record":{"id":"a","user_id":1,"chat_id":2,"reminder_time":"08:00:00","days":["0"],"created_at":"2024-01-01T00:00:00Z"}}` + "\n" + `{"op":"put","rec`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s.journal.jsonl"), []byte(journal), 0o600))

	st, err := Open(context.Background(), Config{Driver: "file", Path: filepath.Join(dir, "s.json")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	all, err := st.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, reminder.ID("a"), all[0].ID)
}

func TestOpenRejectsUnknownAndMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, err := Open(ctx, Config{Driver: "bogus"}, logx.Nop())
	assert.ErrorContains(t, err, "unknown storage driver")
	_, err = Open(ctx, Config{Driver: "none"}, logx.Nop())
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = Open(ctx, Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(ctx, Config{Driver: "supabase"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(ctx, Config{Driver: "mongo"}, logx.Nop())
	assert.Error(t, err)
}

func TestMemoryClosed(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	require.NoError(t, st.Close())
	_, err := st.Create(context.Background(), sampleRecord(1, "01:00:00", "0"))
	assert.ErrorIs(t, err, ErrClosed)
}
