package transport

import "context"

// ChatTarget addresses a chat (and optional forum topic thread).
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers plain text to a chat. Implementations must honour ctx.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}
