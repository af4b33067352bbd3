// Package telegram implements transport.Deliverer on top of the Telegram
// Bot API via telebot's long poller.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"aquabot/internal/transport"
	logx "aquabot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RatePerSec caps outbound sendMessage calls across all chats. Telegram
	// allows ~30 msg/s globally; zero means 25.
	RatePerSec float64
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
	}, nil
}

// Bot exposes the underlying telebot instance so the command router can
// register handlers before Start.
func (a *Adapter) Bot() *tele.Bot {
	return a.bot
}

// Start begins long polling. Telebot's Start blocks, so it runs on its own
// goroutine; cancelling ctx stops the poller. Calling Start on a running
// adapter is a no-op.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return
	}
	a.running = true
	a.runMu.Unlock()

	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()
	go func() {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	}()
}

func (a *Adapter) Stop() {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()
	if !wasRunning {
		return
	}
	// telebot Stop is expected to be fast; don't let a hung long-poll block
	// shutdown.
	done := make(chan struct{})
	go func() {
		a.bot.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		a.log.Warn("telegram stop timed out")
	}
}

// SendText delivers one message, honoring the outbound rate limit.
// Permanent recipient failures come back wrapped in transport.ErrUnreachable.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, text)
	if err == nil {
		return nil
	}
	if isForbidden(err) {
		return fmt.Errorf("%w: %v", transport.ErrUnreachable, err)
	}
	return err
}

// isForbidden reports whether the Bot API rejected the recipient for good.
func isForbidden(err error) bool {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrNotStartedByUser),
		errors.Is(err, tele.ErrChatNotFound):
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 403
	}
	return false
}
