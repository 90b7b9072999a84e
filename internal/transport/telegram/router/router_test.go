package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/lifecycle"
	"remindbot/internal/reminder"
	"remindbot/internal/selection"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type sent struct {
	chat   int64
	msgID  int // non-zero for edits
	text   string
	markup *tele.ReplyMarkup
}

type fakeAdapter struct {
	mu      sync.Mutex
	out     []sent
	answers []string
	menu    []kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) record(s sent, opt *kit.SendOptions) {
	if opt != nil {
		s.markup, _ = opt.ReplyMarkup.(*tele.ReplyMarkup)
	}
	f.mu.Lock()
	f.out = append(f.out, s)
	f.mu.Unlock()
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.record(sent{chat: to.ChatID, text: text}, opt)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.record(sent{chat: ref.ChatID, msgID: ref.MessageID, text: text}, opt)
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, id, _ string) error {
	f.mu.Lock()
	f.answers = append(f.answers, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.out)
	return f.out[len(f.out)-1]
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out)
}

type nopOut struct{}

func (nopOut) Notify(context.Context, kit.Notification) error { return nil }

type fixture struct {
	r     *Router
	ad    *fakeAdapter
	mgr   *lifecycle.Manager
	store storage.Store
}

const (
	chatID = int64(42)
	userID = int64(1001)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := scheduler.NewManualClock(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	eng := scheduler.NewEngine(scheduler.Config{Location: time.UTC}, clk, logx.Nop(), nil)
	t.Cleanup(eng.Stop)
	st := storage.NewMemory()
	mgr := lifecycle.New(lifecycle.Config{}, st, eng, scheduler.NewRegistry(), nopOut{}, logx.Nop(), nil)
	_, err := mgr.Reload(context.Background())
	require.NoError(t, err)

	ad := &fakeAdapter{}
	r := New(Config{Owners: []int64{7}}, ad, mgr, selection.NewSessions(time.Hour), func() string { return "ok" }, logx.Nop())
	return &fixture{r: r, ad: ad, mgr: mgr, store: st}
}

func (f *fixture) text(from int64, s string) {
	f.r.Handle(context.Background(), kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, FromID: from, Text: s}})
}

func (f *fixture) press(from int64, data string) {
	f.r.Handle(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb", ChatID: chatID, FromID: from, MessageID: 9, Data: data,
	}})
}

func buttons(rm *tele.ReplyMarkup) [][]string {
	if rm == nil {
		return nil
	}
	out := make([][]string, 0, len(rm.InlineKeyboard))
	for _, row := range rm.InlineKeyboard {
		var labels []string
		for _, b := range row {
			labels = append(labels, b.Text)
		}
		out = append(out, labels)
	}
	return out
}

func (f *fixture) setupWeekdaysSeven(t *testing.T) {
	t.Helper()
	f.text(userID, "/remind")
	first := f.ad.last(t)
	assert.Equal(t, textAskDays, first.text)
	assert.Equal(t, [][]string{
		{"🗓️ Every Day"},
		{"M-F", "M-Th"},
		{"Sat", "Sun", "Sat & Sun"},
		{btnCancel},
	}, buttons(first.markup))

	f.press(userID, "remind:day:weekdays")
	assert.Equal(t, textAskPeriod, f.ad.last(t).text)
	assert.Equal(t, 9, f.ad.last(t).msgID, "the dialogue edits the keyboard message")

	f.press(userID, "remind:period:morning")
	hours := f.ad.last(t)
	assert.Equal(t, textAskHour, hours.text)
	assert.Equal(t, [][]string{
		{"4:00 AM", "5:00 AM", "6:00 AM", "7:00 AM"},
		{"8:00 AM", "9:00 AM", "10:00 AM", "11:00 AM"},
		{btnCancel},
	}, buttons(hours.markup))

	f.press(userID, "remind:hour:7:00 AM")
	assert.Equal(t, "✅ Success! Reminder set for the selected days at 07:00 AM.", f.ad.last(t).text)
}

func TestRemindFlowCreatesReminder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.setupWeekdaysSeven(t)

	entries, err := f.mgr.List(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Mon, Tue, Wed, Thu, Fri at 07:00 AM", entries[0].Spec.Describe())
	assert.True(t, entries[0].Active)
	assert.Equal(t, time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC), entries[0].Next)

	n := f.ad.count()
	f.press(userID, "remind:hour:7:00 AM")
	assert.Equal(t, n+1, f.ad.count())
	assert.Equal(t, textExpired, f.ad.last(t).text, "finished dialogues do not accept more presses")
}

func TestRemindRejectsStaleButtons(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.text(userID, "/remind")
	n := f.ad.count()

	f.press(userID, "remind:hour:7:00 AM")
	f.press(userID, "remind:day:fortnight")
	assert.Equal(t, n, f.ad.count(), "rejected presses leave the message alone")

	f.press(userID, "remind:day:sun")
	assert.Equal(t, textAskPeriod, f.ad.last(t).text)
}

func TestCancelEndsDialogue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.text(userID, "/cancel")
	assert.Equal(t, textNothingToStop, f.ad.last(t).text)

	f.text(userID, "/remind")
	f.press(userID, "remind:day:sat")
	f.text(userID, "/cancel")
	assert.Equal(t, textCancelled, f.ad.last(t).text)
	f.press(userID, "remind:period:night")
	assert.Equal(t, textExpired, f.ad.last(t).text)

	f.text(userID, "/remind")
	f.press(userID, "remind:cancel")
	assert.Equal(t, textCancelled, f.ad.last(t).text)
	assert.Empty(t, buttons(f.ad.last(t).markup), "cancel clears the keyboard")
}

func TestChangeMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.press(userID, "settings:msg")
	assert.Equal(t, textAskMessage, f.ad.last(t).text)
	f.text(userID, "Study now")
	assert.Equal(t, textNoReminders, f.ad.last(t).text)

	f.setupWeekdaysSeven(t)
	n := f.ad.count()
	f.text(userID, "not waiting for anything")
	assert.Equal(t, n, f.ad.count(), "free text outside the message flow is ignored")

	f.press(userID, "settings:msg")
	f.text(userID, "Study now")
	assert.Equal(t, textMessageSaved, f.ad.last(t).text)

	entries, err := f.mgr.List(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Study now", entries[0].Spec.Message)
}

func TestDeleteListAndDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.text(userID, "/settings")
	assert.Equal(t, [][]string{{btnChangeMessage}, {btnDeleteList}}, buttons(f.ad.last(t).markup))

	f.press(userID, "settings:list")
	assert.Equal(t, textNoReminders, f.ad.last(t).text)

	f.setupWeekdaysSeven(t)
	entries, err := f.mgr.List(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	id := entries[0].Spec.ID

	f.press(userID, "settings:list")
	list := f.ad.last(t)
	assert.Equal(t, textDeletePrompt, list.text)
	assert.Equal(t, [][]string{{"❌ Mon, Tue, Wed, Thu, Fri at 07:00 AM"}}, buttons(list.markup))
	assert.Equal(t, "settings:del:"+id.String(), list.markup.InlineKeyboard[0][0].Data)

	f.press(userID, "settings:del:"+id.String())
	assert.Equal(t, textDeleted+"\n\n"+textNoReminders, f.ad.last(t).text)
	_, err = f.mgr.Get(context.Background(), id)
	assert.ErrorIs(t, err, reminder.ErrNotFound)
	assert.False(t, f.mgr.Registry().Has(id))
}

func TestDeleteForeignReminderRefused(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sp, err := f.mgr.Create(context.Background(), lifecycle.NewReminder{
		Chat: 99, User: 5, Time: reminder.TimeOfDay{Hour: 8}, Days: reminder.MustDaySet(reminder.Monday),
	})
	require.NoError(t, err)

	f.press(userID, "settings:del:"+sp.ID.String())
	assert.Equal(t, textNoReminders, f.ad.last(t).text)
	_, err = f.mgr.Get(context.Background(), sp.ID)
	assert.NoError(t, err, "another chat's reminder survives")
}

func TestDeleteCorruptReminder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id, err := f.store.Create(context.Background(), reminder.Record{
		UserID: userID, ChatID: chatID, ReminderTime: "99:00:00", Days: []string{"0"}, Message: "broken",
	})
	require.NoError(t, err)

	f.text(userID, "/list")
	assert.Contains(t, f.ad.last(t).text, textUnreadable)

	f.press(userID, "settings:list")
	list := f.ad.last(t)
	assert.Equal(t, [][]string{{"❌ " + textUnreadable}}, buttons(list.markup))

	f.press(userID, "settings:del:"+id.String())
	assert.Equal(t, textDeleted+"\n\n"+textNoReminders, f.ad.last(t).text)
	_, ok, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClipRunes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", clipRunes("abc", 3))
	assert.Equal(t, "ab…", clipRunes("abc", 2))
	assert.Equal(t, "жё…", clipRunes("жёлтый", 2))
}

func TestCommandsAndAccess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.text(userID, "/start@remind_bot")
	assert.Equal(t, textWelcome, f.ad.last(t).text)

	f.text(userID, "/nope")
	assert.Equal(t, textUnknownCommand, f.ad.last(t).text)

	f.text(userID, "/status")
	assert.Equal(t, textUnauthorized, f.ad.last(t).text)
	f.text(7, "/status")
	assert.Equal(t, "<code>ok</code>", f.ad.last(t).text)

	f.text(userID, "/list")
	assert.Equal(t, textNoReminders, f.ad.last(t).text)
	f.setupWeekdaysSeven(t)
	f.text(userID, "/list")
	assert.Contains(t, f.ad.last(t).text, "Mon, Tue, Wed, Thu, Fri at 07:00 AM")
	assert.Contains(t, f.ad.last(t).text, "next Mon 01 Jan 07:00")
	assert.Contains(t, f.ad.last(t).text, reminder.DefaultMessage)
}

func TestPublishMenuSkipsOwnerCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.r.PublishMenu(context.Background()))
	var names []string
	for _, c := range f.ad.menu {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{"start", "remind", "settings", "list", "cancel"}, names)
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Remind":     "remind",
		"set-remind": "set_remind",
		"a  b":       "a_b",
		"9lives":     "",
		"__x__":      "x",
		"ünïcode":    "ncode",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeTelegramCommand(in), in)
	}
}

func TestDispatchLoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 4)
	done := make(chan error, 1)
	go func() { done <- f.r.DispatchLoop(ctx, updates) }()

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, FromID: userID, Text: "/start"}}
	require.Eventually(t, func() bool { return f.ad.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, textWelcome, f.ad.last(t).text)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch loop did not stop")
	}
	assert.Nil(t, f.r.Supervisor())
}
