// Package feishu delivers artifacts through the Feishu (Lark) open API.
//
// Photos are uploaded first (im/v1/images) to obtain an image_key, then sent
// as an image message. The API has no raw video upload in this design, so
// video artifacts fall back to a text notification carrying the caption.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lockwatch/internal/config"
	"lockwatch/internal/delivery"
	logx "lockwatch/pkg/logx"
)

const (
	defaultBaseURL = "https://open.feishu.cn"
	imageUploadURL = "/open-apis/im/v1/images"
	messagesURL    = "/open-apis/im/v1/messages"
)

// Feishu API codes that indicate an invalid or expired tenant token.
// These are permanent from the pipeline's point of view.
var permanentCodes = map[int]bool{
	99991661: true, // tenant token invalid
	99991663: true, // token invalid
	99991664: true, // token expired
	99991665: true, // token type mismatch
	230002:   true, // receive_id invalid
}

type ConfigFunc func() config.FeishuConfig

type Sender struct {
	cfg  ConfigFunc
	log  logx.Logger
	http *http.Client

	// baseURL is overridable in tests.
	baseURL string
}

func New(cfg ConfigFunc, log logx.Logger) *Sender {
	return &Sender{
		cfg:     cfg,
		log:     log,
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
	}
}

func (s *Sender) Name() string { return "feishu" }

func (s *Sender) Enabled() bool { return s.cfg().Enabled }

func (s *Sender) Configured() bool {
	c := s.cfg()
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.ReceiveID) != ""
}

func (s *Sender) Send(ctx context.Context, t delivery.Task) error {
	c := s.cfg()
	if strings.TrimSpace(c.Token) == "" || strings.TrimSpace(c.ReceiveID) == "" {
		return delivery.NoRetry(errors.New("feishu token or receive_id missing"))
	}

	switch t.Media {
	case delivery.MediaPhoto:
		key, err := s.uploadImage(ctx, c, t.Payload)
		if err != nil {
			return err
		}
		content, _ := json.Marshal(map[string]string{"image_key": key})
		return s.sendMessage(ctx, c, "image", string(content))
	case delivery.MediaVideo, delivery.MediaDocument, delivery.MediaText:
		// Video falls back to a text notification with the caption.
		content, _ := json.Marshal(map[string]string{"text": t.Caption})
		return s.sendMessage(ctx, c, "text", string(content))
	default:
		return delivery.NoRetry(fmt.Errorf("unsupported media kind %q", t.Media))
	}
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ImageKey string `json:"image_key"`
	} `json:"data"`
}

func (s *Sender) uploadImage(ctx context.Context, c config.FeishuConfig, image []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("image_type", "message"); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("image", "evidence.jpg")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(image); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+imageUploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.do(req)
	if err != nil {
		return "", err
	}
	if resp.Data.ImageKey == "" {
		return "", errors.New("feishu image upload returned no image_key")
	}
	return resp.Data.ImageKey, nil
}

func (s *Sender) sendMessage(ctx context.Context, c config.FeishuConfig, msgType, content string) error {
	idType := strings.TrimSpace(c.ReceiveIDType)
	if idType == "" {
		idType = "open_id"
	}
	payload, err := json.Marshal(map[string]string{
		"receive_id": c.ReceiveID,
		"msg_type":   msgType,
		"content":    content,
	})
	if err != nil {
		return err
	}

	url := s.baseURL + messagesURL + "?receive_id_type=" + idType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	_, err = s.do(req)
	return err
}

// do executes the request and folds both HTTP-level and embedded API-level
// failures into the delivery retry taxonomy.
func (s *Sender) do(req *http.Request) (*apiResponse, error) {
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err // network error: retryable
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, delivery.RetryAfter(errors.New("feishu rate limited"), retryAfterHeader(resp, 2*time.Second))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("feishu http %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, delivery.NoRetry(fmt.Errorf("feishu http %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	var api apiResponse
	if err := json.Unmarshal(b, &api); err != nil {
		return nil, fmt.Errorf("feishu response decode: %w", err)
	}
	// HTTP 200 with an embedded API error code is still a failure.
	if api.Code != 0 {
		err := fmt.Errorf("feishu api error %d: %s", api.Code, api.Msg)
		if permanentCodes[api.Code] {
			return nil, delivery.NoRetry(err)
		}
		return nil, err
	}
	return &api, nil
}

func retryAfterHeader(resp *http.Response, def time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
