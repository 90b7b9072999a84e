package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update is one inbound event from the chat platform.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyMarkup is adapter-specific (Telegram: *telebot.ReplyMarkup).
	ReplyMarkup any
}

// Notification is an outbound message queued through the notifier.
// Key, when set, deduplicates deliveries of the same occurrence.
type Notification struct {
	Key     string
	Target  ChatTarget
	Text    string
	Options *SendOptions
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand is a single command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a
// platform command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
