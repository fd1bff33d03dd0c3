package wecom

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lockwatch/internal/config"
	"lockwatch/internal/delivery"
	logx "lockwatch/pkg/logx"
)

func testSender(t *testing.T, handler http.Handler) *Sender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(func() config.WeComConfig {
		return config.WeComConfig{Enabled: true, WebhookURL: srv.URL + "/cgi-bin/webhook/send?key=k"}
	}, logx.Nop())
}

func TestSendImageInline(t *testing.T) {
	t.Parallel()

	payload := []byte("jpeg bytes")
	sum := md5.Sum(payload)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MsgType string `json:"msgtype"`
			Image   struct {
				Base64 string `json:"base64"`
				MD5    string `json:"md5"`
			} `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("body decode: %v", err)
		}
		if body.MsgType != "image" {
			t.Errorf("msgtype = %q, want image", body.MsgType)
		}
		if body.Image.Base64 != base64.StdEncoding.EncodeToString(payload) {
			t.Error("image base64 does not round-trip the payload")
		}
		if body.Image.MD5 != hex.EncodeToString(sum[:]) {
			t.Errorf("image md5 = %q", body.Image.MD5)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 0})
	})

	s := testSender(t, handler)
	if err := s.Send(context.Background(), delivery.Task{Media: delivery.MediaPhoto, Payload: payload}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSendVideoFallsBackToText(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MsgType string `json:"msgtype"`
			Text    struct {
				Content string `json:"content"`
			} `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.MsgType != "text" {
			t.Errorf("msgtype = %q, want text fallback", body.MsgType)
		}
		if body.Text.Content == "" {
			t.Error("text fallback without caption")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 0})
	})

	s := testSender(t, handler)
	err := s.Send(context.Background(), delivery.Task{
		Media:    delivery.MediaVideo,
		FilePath: "/tmp/v.mp4",
		Caption:  "office-mba unlock evidence video",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSendFrequencyLimited(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 45009, "errmsg": "freq out of limit"})
	})

	s := testSender(t, handler)
	err := s.Send(context.Background(), delivery.Task{Media: delivery.MediaText, Caption: "x"})
	var ra delivery.RetryAfterError
	if !errors.As(err, &ra) {
		t.Fatalf("err = %v, want RetryAfterError", err)
	}
}

func TestSendPermanentErrcode(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 93000, "errmsg": "invalid webhook url"})
	})

	s := testSender(t, handler)
	err := s.Send(context.Background(), delivery.Task{Media: delivery.MediaText, Caption: "x"})
	if !delivery.IsNoRetry(err) {
		t.Fatalf("err = %v, want no-retry", err)
	}
}

func TestSendTransientErrcode(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 50002, "errmsg": "temporarily unavailable"})
	})

	s := testSender(t, handler)
	err := s.Send(context.Background(), delivery.Task{Media: delivery.MediaText, Caption: "x"})
	if err == nil || delivery.IsNoRetry(err) {
		t.Fatalf("err = %v, want plain retryable error", err)
	}
}

func TestSendMalformedWebhookURL(t *testing.T) {
	t.Parallel()

	s := New(func() config.WeComConfig {
		return config.WeComConfig{Enabled: true, WebhookURL: "::not a url"}
	}, logx.Nop())
	err := s.Send(context.Background(), delivery.Task{Media: delivery.MediaText, Caption: "x"})
	if !delivery.IsNoRetry(err) {
		t.Fatalf("err = %v, want no-retry for malformed webhook url", err)
	}
}

func TestConfigured(t *testing.T) {
	t.Parallel()

	s := New(func() config.WeComConfig { return config.WeComConfig{Enabled: true} }, logx.Nop())
	if s.Configured() {
		t.Fatal("Configured() true without webhook url")
	}
}
