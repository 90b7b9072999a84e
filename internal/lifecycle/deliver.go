package lifecycle

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// OccurrenceKey identifies one scheduled occurrence of a reminder.
func OccurrenceKey(id reminder.ID, at time.Time) string {
	return fmt.Sprintf("reminder:%s:%d", id, at.Unix())
}

// deliver runs on the job's timer goroutine. captured is the spec at arm
// time; the stored message wins when the row can be read.
//
// A delete racing this fire may still let one message through.
func (m *Manager) deliver(ctx context.Context, captured reminder.Spec, at time.Time) {
	cfg := m.config()
	msg, source := m.currentMessage(ctx, captured, cfg)
	text := msg
	if text == "" {
		text = cfg.DefaultMessage
	}

	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderDue, Time: m.engine.Now(), Data: ReminderEvent{ID: captured.ID, Chat: captured.OwnerChat, At: at}})
	}
	if m.out == nil {
		return
	}
	err := m.out.Notify(ctx, kit.Notification{
		Key:    OccurrenceKey(captured.ID, at),
		Target: kit.ChatTarget{ChatID: captured.OwnerChat},
		Text:   text,
	})
	if err != nil {
		m.log.Warn("reminder delivery failed",
			logx.String("id", captured.ID.String()), logx.Int64("chat", captured.OwnerChat),
			logx.Time("at", at), logx.Err(reminder.EID(reminder.KindDelivery, "deliver", captured.ID, err)))
		return
	}
	m.log.Debug("reminder due", logx.String("id", captured.ID.String()), logx.Time("at", at), logx.String("message_from", source))
}

func (m *Manager) currentMessage(ctx context.Context, captured reminder.Spec, cfg Config) (string, string) {
	rctx, cancel := context.WithTimeout(ctx, cfg.ReadTimeout)
	defer cancel()
	r, ok, err := m.store.Get(rctx, captured.ID)
	switch {
	case err != nil:
		m.log.Warn("fire-time read failed; using captured message", logx.String("id", captured.ID.String()), logx.Err(err))
		return captured.Message, "captured"
	case !ok:
		return captured.Message, "captured"
	default:
		return r.Message, "store"
	}
}
