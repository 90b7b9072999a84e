package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/lifecycle"
	"remindbot/internal/reminder"
	"remindbot/internal/selection"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

func (r *Router) builtinCommands() []Command {
	return []Command{
		{Name: "start", Description: "Show the welcome message", Handle: r.cmdStart},
		{Name: "remind", Description: "Set a new reminder", Handle: r.cmdRemind},
		{Name: "settings", Description: "Change the message or delete reminders", Handle: r.cmdSettings},
		{Name: "list", Description: "List your reminders and when they fire next", Handle: r.cmdList},
		{Name: "cancel", Description: "Cancel the current operation", Handle: r.cmdCancel},
		{Name: "status", Description: "Scheduler status", Access: AccessOwnerOnly, Hidden: true, Handle: r.cmdStatus},
	}
}

func (r *Router) builtinCallbacks() []CallbackRoute {
	return []CallbackRoute{
		{Scope: scopeRemind, Action: actDay, Handle: r.cbDays},
		{Scope: scopeRemind, Action: actPeriod, Handle: r.cbPeriod},
		{Scope: scopeRemind, Action: actHour, Handle: r.cbHour},
		{Scope: scopeRemind, Action: actCancel, Handle: r.cbCancel},
		{Scope: scopeSettings, Action: actMsg, Handle: r.cbChangeMessage},
		{Scope: scopeSettings, Action: actList, Handle: r.cbDeleteList},
		{Scope: scopeSettings, Action: actDel, Handle: r.cbDelete},
	}
}

func (r *Router) send(ctx context.Context, req *Request, text string, rm *tele.ReplyMarkup) error {
	var opt *kit.SendOptions
	if rm != nil {
		opt = &kit.SendOptions{ReplyMarkup: rm}
	}
	_, err := r.adapter.SendText(ctx, req.Chat, text, opt)
	return err
}

func (r *Router) sendHTML(ctx context.Context, req *Request, text tgui.H) error {
	_, err := r.adapter.SendText(ctx, req.Chat, text.String(), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// edit replaces the callback's message. An empty markup clears the keyboard.
func (r *Router) edit(ctx context.Context, req *Request, text string, rm *tele.ReplyMarkup) error {
	if rm == nil {
		rm = &tele.ReplyMarkup{}
	}
	return r.adapter.EditText(ctx, req.Ref, text, &kit.SendOptions{ReplyMarkup: rm})
}

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	return r.send(ctx, req, textWelcome, nil)
}

func (r *Router) cmdRemind(ctx context.Context, req *Request) error {
	if !r.rem.Ready() {
		return r.send(ctx, req, textNotReady, nil)
	}
	r.sessions.BeginReminder(req.Chat.ChatID, req.FromID)
	return r.send(ctx, req, textAskDays, daysKeyboard())
}

func (r *Router) cmdSettings(ctx context.Context, req *Request) error {
	return r.send(ctx, req, textSettings, settingsKeyboard())
}

func (r *Router) cmdCancel(ctx context.Context, req *Request) error {
	if !r.sessions.End(req.Chat.ChatID, req.FromID) {
		return r.send(ctx, req, textNothingToStop, nil)
	}
	return r.send(ctx, req, textCancelled, nil)
}

func (r *Router) cmdList(ctx context.Context, req *Request) error {
	entries, err := r.rem.List(ctx, req.Chat.ChatID)
	if err != nil {
		_ = r.send(ctx, req, textTryAgain, nil)
		return err
	}
	if len(entries) == 0 {
		return r.send(ctx, req, textNoReminders, nil)
	}
	lines := []tgui.H{tgui.B(textListHeader)}
	for _, e := range entries {
		lines = append(lines, listLine(e, r.rem.Location()))
	}
	return r.sendHTML(ctx, req, tgui.JoinH("\n", lines...))
}

func listLine(e lifecycle.Entry, loc *time.Location) tgui.H {
	msg := clipRunes(e.Spec.MessageOr(reminder.DefaultMessage), 60)
	if e.Corrupt {
		return tgui.JoinH(" ", tgui.Esc("•"), tgui.I(textUnreadable), tgui.Esc("·"), tgui.Code(msg))
	}
	next := "not scheduled"
	if e.Active {
		next = "next " + e.Next.In(loc).Format("Mon 02 Jan 15:04")
	}
	return tgui.JoinH(" ",
		tgui.Esc("•"),
		tgui.Esc(e.Spec.Describe()),
		tgui.I("("+next+")"),
		tgui.Esc("·"),
		tgui.Code(msg),
	)
}

// clipRunes keeps the first n runes of s and marks the cut with an ellipsis.
func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

func (r *Router) cmdStatus(ctx context.Context, req *Request) error {
	if r.status == nil {
		return r.send(ctx, req, "status unavailable", nil)
	}
	return r.sendHTML(ctx, req, tgui.Code(r.status()))
}

// ---- selection dialogue ----

func (r *Router) session(ctx context.Context, req *Request) (*selection.Session, bool) {
	s, ok := r.sessions.Reminder(req.Chat.ChatID, req.FromID)
	if !ok {
		_ = r.edit(ctx, req, textExpired, nil)
	}
	return s, ok
}

// applyStep feeds one button press to the open dialogue. A rejected press
// (stale keyboard, double tap) is logged and otherwise ignored.
func (r *Router) applyStep(ctx context.Context, req *Request, in selection.Input) (selection.Step, bool) {
	s, ok := r.session(ctx, req)
	if !ok {
		return selection.Step{}, false
	}
	step, err := s.Apply(in)
	if err != nil {
		req.Logger.Debug("selection input rejected", logx.String("stage", step.Stage.String()), logx.Err(err))
		return step, false
	}
	return step, true
}

func (r *Router) cbDays(ctx context.Context, req *Request) error {
	if _, ok := r.applyStep(ctx, req, selection.Days(req.Payload)); !ok {
		return nil
	}
	return r.edit(ctx, req, textAskPeriod, periodKeyboard())
}

func (r *Router) cbPeriod(ctx context.Context, req *Request) error {
	step, ok := r.applyStep(ctx, req, selection.PeriodOf(req.Payload))
	if !ok {
		return nil
	}
	return r.edit(ctx, req, textAskHour, hourKeyboard(step.Candidates))
}

func (r *Router) cbHour(ctx context.Context, req *Request) error {
	step, ok := r.applyStep(ctx, req, selection.Hour(req.Payload))
	if !ok {
		return nil
	}
	r.sessions.End(req.Chat.ChatID, req.FromID)
	res := step.Result
	if res == nil {
		return r.edit(ctx, req, textTryAgain, nil)
	}
	sp, err := r.rem.Create(ctx, lifecycle.NewReminder{
		Chat: res.Chat,
		User: res.User,
		Time: res.Time,
		Days: res.Days,
	})
	if err != nil {
		text := textTryAgain
		switch {
		case errors.Is(err, reminder.ErrNotReady):
			text = textNotReady
		case reminder.IsKind(err, reminder.KindPersistence):
			text = textSaveFailed
		}
		_ = r.edit(ctx, req, text, nil)
		return err
	}
	req.Logger.Info("reminder set", logx.String("id", sp.ID.String()), logx.String("days", sp.Days.String()), logx.String("time", sp.Time.String()))
	return r.edit(ctx, req, fmt.Sprintf(textCreated, sp.Time.Label()), nil)
}

func (r *Router) cbCancel(ctx context.Context, req *Request) error {
	r.sessions.End(req.Chat.ChatID, req.FromID)
	return r.edit(ctx, req, textCancelled, nil)
}

// ---- settings ----

func (r *Router) cbChangeMessage(ctx context.Context, req *Request) error {
	r.sessions.BeginMessage(req.Chat.ChatID, req.FromID)
	return r.send(ctx, req, textAskMessage, nil)
}

func (r *Router) handleNewMessage(ctx context.Context, req *Request) error {
	r.sessions.End(req.Chat.ChatID, req.FromID)
	n, err := r.rem.UpdateMessage(ctx, lifecycle.OwnerTarget(req.Chat.ChatID), req.Payload)
	if err != nil {
		text := textMessageFailed
		if errors.Is(err, reminder.ErrNotReady) {
			text = textNotReady
		}
		_ = r.send(ctx, req, text, nil)
		return err
	}
	if n == 0 {
		return r.send(ctx, req, textNoReminders, nil)
	}
	return r.send(ctx, req, textMessageSaved, nil)
}

func (r *Router) cbDeleteList(ctx context.Context, req *Request) error {
	return r.renderDeleteList(ctx, req, "")
}

func (r *Router) renderDeleteList(ctx context.Context, req *Request, notice string) error {
	entries, err := r.rem.List(ctx, req.Chat.ChatID)
	if err != nil {
		_ = r.edit(ctx, req, textTryAgain, nil)
		return err
	}
	prefix := ""
	if notice != "" {
		prefix = notice + "\n\n"
	}
	if len(entries) == 0 {
		return r.edit(ctx, req, prefix+textNoReminders, nil)
	}
	return r.edit(ctx, req, prefix+textDeletePrompt, deleteKeyboard(entries))
}

func (r *Router) cbDelete(ctx context.Context, req *Request) error {
	id := reminder.ID(strings.TrimSpace(req.Payload))
	owner, err := r.rem.Owner(ctx, id)
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		return r.renderDeleteList(ctx, req, "")
	case err != nil:
		_ = r.edit(ctx, req, textDeleteFailed, nil)
		return err
	case owner != req.Chat.ChatID:
		req.Logger.Warn("delete of foreign reminder refused", logx.String("id", id.String()))
		return r.renderDeleteList(ctx, req, "")
	}
	if err := r.rem.Delete(ctx, id); err != nil && !errors.Is(err, reminder.ErrNotFound) {
		_ = r.edit(ctx, req, textDeleteFailed, nil)
		return err
	}
	return r.renderDeleteList(ctx, req, textDeleted)
}
