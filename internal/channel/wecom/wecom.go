// Package wecom delivers artifacts through a WeChat-Work group webhook.
//
// Images are sent inline as base64 with an MD5 checksum (no separate upload
// step). The webhook accepts no video payloads, so video artifacts fall back
// to a text notification carrying the caption.
package wecom

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lockwatch/internal/config"
	"lockwatch/internal/delivery"
	logx "lockwatch/pkg/logx"
)

// Webhook error codes that no amount of retrying will fix.
var permanentCodes = map[int]bool{
	93000: true, // invalid webhook url / key
	40008: true, // invalid message type
	40058: true, // invalid parameter
}

type ConfigFunc func() config.WeComConfig

type Sender struct {
	cfg  ConfigFunc
	log  logx.Logger
	http *http.Client
}

func New(cfg ConfigFunc, log logx.Logger) *Sender {
	return &Sender{cfg: cfg, log: log, http: &http.Client{Timeout: 30 * time.Second}}
}

func (s *Sender) Name() string { return "wecom" }

func (s *Sender) Enabled() bool { return s.cfg().Enabled }

func (s *Sender) Configured() bool {
	return strings.TrimSpace(s.cfg().WebhookURL) != ""
}

func (s *Sender) Send(ctx context.Context, t delivery.Task) error {
	c := s.cfg()
	webhook := strings.TrimSpace(c.WebhookURL)
	if webhook == "" {
		return delivery.NoRetry(errors.New("wecom webhook_url missing"))
	}
	if _, err := url.ParseRequestURI(webhook); err != nil {
		return delivery.NoRetry(fmt.Errorf("wecom webhook_url malformed: %w", err))
	}

	var payload map[string]any
	switch t.Media {
	case delivery.MediaPhoto:
		sum := md5.Sum(t.Payload)
		payload = map[string]any{
			"msgtype": "image",
			"image": map[string]string{
				"base64": base64.StdEncoding.EncodeToString(t.Payload),
				"md5":    hex.EncodeToString(sum[:]),
			},
		}
	case delivery.MediaVideo, delivery.MediaDocument, delivery.MediaText:
		payload = map[string]any{
			"msgtype": "text",
			"text":    map[string]string{"content": t.Caption},
		}
	default:
		return delivery.NoRetry(fmt.Errorf("unsupported media kind %q", t.Media))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return delivery.NoRetry(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		return delivery.NoRetry(err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.http.Do(req)
	if err != nil {
		return err // network error: retryable
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return delivery.RetryAfter(errors.New("wecom rate limited"), 2*time.Second)
	case resp.StatusCode >= 500:
		return fmt.Errorf("wecom http %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return delivery.NoRetry(fmt.Errorf("wecom http %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	// HTTP 200 with an embedded errcode is still a failure.
	var api struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(b, &api); err != nil {
		return fmt.Errorf("wecom response decode: %w", err)
	}
	if api.ErrCode != 0 {
		err := fmt.Errorf("wecom api error %d: %s", api.ErrCode, api.ErrMsg)
		if api.ErrCode == 45009 { // message frequency limit
			return delivery.RetryAfter(err, 2*time.Second)
		}
		if permanentCodes[api.ErrCode] {
			return delivery.NoRetry(err)
		}
		return err
	}
	return nil
}
