package notify

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

	"go-etl-pipeline/internal/model"
)

// HTTPClient allows injecting a fake transport in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Telegram sends alerts through the Bot API: a photo first, then the HTML text.
type Telegram struct {
	client HTTPClient
	apiURL string
	token  string
	chatID int64
	image  Image
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewTelegram(client HTTPClient, apiURL, token string, chatID int64, image Image) *Telegram {
	return &Telegram{
		client: client,
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		image:  image,
	}
}

// Notify attempts both payloads even if the photo fails.
func (t *Telegram) Notify(ctx context.Context, alert Alert) error {
	photoErr := t.sendPhoto(ctx)
	textErr := t.sendMessage(ctx, alert.Text())
	if err := errors.Join(photoErr, textErr); err != nil {
		return model.NotifierFailure("telegram", err)
	}
	return nil
}

func (t *Telegram) sendPhoto(ctx context.Context) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", strconv.FormatInt(t.chatID, 10)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("photo", t.image.Name)
	if err != nil {
		return err
	}
	if _, err := part.Write(t.image.Data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return t.call(ctx, "sendPhoto", mw.FormDataContentType(), &body)
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}
	return t.call(ctx, "sendMessage", "application/json", bytes.NewReader(payload))
}

func (t *Telegram) call(ctx context.Context, method, contentType string, body io.Reader) error {
	url := fmt.Sprintf("%s/bot%s/%s", t.apiURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		// the URL carries the token; keep it out of logs
		return fmt.Errorf("%s: request failed", method)
	}
	defer resp.Body.Close()

	var tr telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("%s: status %d: decode response: %w", method, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !tr.OK {
		return fmt.Errorf("%s: status %d: %s", method, resp.StatusCode, tr.Description)
	}
	return nil
}
