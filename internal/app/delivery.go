package app

import (
	"context"
	"errors"

	"remindbot/internal/notifier"
	kit "remindbot/internal/transport"
)

// delivery routes due reminders through the notifier, or straight to the
// adapter while the notifier is switched off.
type delivery struct {
	notif  *notifier.Service
	direct kit.Adapter
}

func (d delivery) Notify(ctx context.Context, n kit.Notification) error {
	if d.notif != nil {
		err := d.notif.Notify(ctx, n)
		if !errors.Is(err, notifier.ErrDisabled) {
			return err
		}
	}
	_, err := d.direct.SendText(ctx, n.Target, n.Text, n.Options)
	return err
}
