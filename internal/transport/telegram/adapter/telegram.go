package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Offline skips the getMe call on construction (tests, dry runs).
	Offline bool
}

// Adapter is the telebot long-polling transport.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop; reported periodically.
	droppedUpdates uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *supervisor.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

// registerHandlers forwards to the current output channel; Start may swap it.
// Commands fall through to OnText because no per-command handlers exist.
func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				ThreadID:     m.ThreadID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || cb.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				ThreadID:  m.ThreadID,
				FromID:    cb.Sender.ID,
				MessageID: m.ID,
				Data:      cb.Data,
			},
		})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		// transport errors must not take the app down
		supervisor.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	report := func() {
		if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
		}
	}
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start blocks until Stop; restart it if it returns while still running.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithPublishFirstError(true),
		supervisor.WithStopOnCleanExit(false),
	)
	return nil
}

// Stop ends polling. It never blocks shutdown longer than a short grace
// window, even if getUpdates is still waiting.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", atomic.LoadUint64(&a.droppedUpdates)))
	sup.Cancel()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func sendOptions(opt *kit.SendOptions, threadID int, withMarkup bool) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: threadID}
	if opt == nil {
		return so
	}
	so.ParseMode = tele.ParseMode(opt.ParseMode)
	so.DisableWebPagePreview = opt.DisablePreview
	if withMarkup {
		if rm, ok := opt.ReplyMarkup.(*tele.ReplyMarkup); ok {
			so.ReplyMarkup = rm
		}
	}
	return so
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, parseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		// markup rides on the first chunk only
		msg, err := a.bot.Send(chat, chunk, sendOptions(opt, to.ThreadID, i == 0))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// EditText replaces a message. Overflow beyond one message is sent as new
// messages to the same chat.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)

	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	so := sendOptions(opt, 0, true)
	if _, err := a.bot.Edit(m, chunks[0], so); err != nil && !errors.Is(err, tele.ErrSameMessageContent) {
		return err
	}
	chat := &tele.Chat{ID: ref.ChatID}
	for _, chunk := range chunks[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, sendOptions(opt, ref.ThreadID, false)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// SendLog lets the logger's Telegram sink post through this bot.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, threadID int, text string) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// UpdateMenuCommands publishes the /menu command list (setMyCommands).
// It only calls the API when the list changed since the last success.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	sum := menuHash(cmds)
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		out = append(out, tele.Command{Text: c.Command, Description: c.Description})
	}
	if err := a.bot.SetCommands(out); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}

func menuHash(cmds []kit.BotCommand) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
