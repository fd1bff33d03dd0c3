// Package telegram delivers artifacts through the Telegram Bot API.
//
// Telegram accepts photo and video uploads natively. Calls are spaced by a
// rate limiter (default 1s minimum interval, the per-chat flood limit);
// flood responses carry a retry-after hint that is passed back to the
// delivery queue.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"lockwatch/internal/config"
	"lockwatch/internal/delivery"
	logx "lockwatch/pkg/logx"
)

// ConfigFunc resolves the live channel config at send time.
// Credentials are never cached on the task or the sender.
type ConfigFunc func() config.TelegramConfig

type Sender struct {
	cfg ConfigFunc
	log logx.Logger

	mu       sync.Mutex
	bot      *tele.Bot
	botToken string
	limiter  *rate.Limiter
	limitInt time.Duration
}

func New(cfg ConfigFunc, log logx.Logger) *Sender {
	return &Sender{cfg: cfg, log: log}
}

func (s *Sender) Name() string { return "telegram" }

func (s *Sender) Enabled() bool { return s.cfg().Enabled }

func (s *Sender) Configured() bool {
	c := s.cfg()
	return strings.TrimSpace(c.Token) != "" && c.ChatID != 0
}

func (s *Sender) Send(ctx context.Context, t delivery.Task) error {
	c := s.cfg()
	if strings.TrimSpace(c.Token) == "" || c.ChatID == 0 {
		return delivery.NoRetry(errors.New("telegram token or chat_id missing"))
	}

	bot, err := s.botFor(c.Token)
	if err != nil {
		return delivery.NoRetry(fmt.Errorf("telegram bot init: %w", err))
	}

	if err := s.wait(ctx, c); err != nil {
		return err
	}

	chat := &tele.Chat{ID: c.ChatID}
	var what any
	switch t.Media {
	case delivery.MediaPhoto:
		what = &tele.Photo{File: tele.FromReader(bytes.NewReader(t.Payload)), Caption: t.Caption}
	case delivery.MediaVideo:
		what = &tele.Video{File: tele.FromDisk(t.FilePath), Caption: t.Caption}
	case delivery.MediaDocument:
		what = &tele.Document{File: tele.FromDisk(t.FilePath), Caption: t.Caption}
	case delivery.MediaText:
		what = t.Caption
	default:
		return delivery.NoRetry(fmt.Errorf("unsupported media kind %q", t.Media))
	}

	if _, err := bot.Send(chat, what); err != nil {
		return classify(err)
	}
	return nil
}

// wait applies the minimum spacing between Telegram API calls.
func (s *Sender) wait(ctx context.Context, c config.TelegramConfig) error {
	interval, err := config.ParseDurationOrDefault("channels.telegram.min_interval", c.MinInterval, time.Second)
	if err != nil {
		interval = time.Second
	}

	s.mu.Lock()
	if s.limiter == nil || s.limitInt != interval {
		s.limiter = rate.NewLimiter(rate.Every(interval), 1)
		s.limitInt = interval
	}
	lim := s.limiter
	s.mu.Unlock()

	return lim.Wait(ctx)
}

// botFor returns a bot for the given token, rebuilding when the token
// changes under a config reload. Offline settings skip the getMe probe so
// construction is cheap and network-free.
func (s *Sender) botFor(token string) (*tele.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bot != nil && s.botToken == token {
		return s.bot, nil
	}
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, err
	}
	s.bot = b
	s.botToken = token
	return b, nil
}

// classify maps telebot errors onto the delivery queue's retry taxonomy:
// flood errors carry their retry-after hint, auth and request errors are
// permanent, everything else (network, 5xx) takes the default retry path.
func classify(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return delivery.RetryAfter(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 400 && apiErr.Code < 500 {
			return delivery.NoRetry(err)
		}
		return err
	}
	return err
}
