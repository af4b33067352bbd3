// Package transport defines the delivery capability the scheduling core
// depends on, keeping it free of any concrete messenger SDK.
package transport

import (
	"context"
	"errors"
)

// Deliverer sends reminder text to a chat. Implementations classify
// permanent recipient failures as ErrUnreachable so callers can retire the
// recipient's schedule instead of retrying forever.
type Deliverer interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// ErrUnreachable marks a permanent delivery failure: the recipient blocked
// the bot, deleted their account, or the chat no longer exists. Transient
// failures (timeouts, rate limits) are never wrapped in it.
var ErrUnreachable = errors.New("recipient unreachable")

func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
