// README: Messaging gateway port. The chat transport behind it is an external
// collaborator; every call may fail per recipient and callers are expected to
// treat delivery as best-effort.
package gateway

import "context"

// Handle addresses one delivered chat message so it can later be edited or
// deleted.
type Handle struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

func (h Handle) Zero() bool { return h.MessageID == 0 }

// Button is one inline action under a message.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Keyboard is rows of buttons.
type Keyboard [][]Button

type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb Keyboard) (Handle, error)
	EditMessage(ctx context.Context, h Handle, text string, kb Keyboard) error
	DeleteMessage(ctx context.Context, h Handle) error
}

func Row(buttons ...Button) []Button { return buttons }
