// Package telegram is a small hand-rolled Bot API client used only to
// deliver the Notification Router's optional `telegram` channel (§4.E).
// No repo in the retrieval pack imports a dedicated Telegram SDK, so this
// one ambient concern stays on net/http — see DESIGN.md.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

const apiBase = "https://api.telegram.org"

// sendTimeout matches §5's "Telegram send 15 s".
const sendTimeout = 15 * time.Second

type Client struct {
	token string
	http  *http.Client
}

func New(token string) *Client {
	return &Client{token: token, http: &http.Client{Timeout: sendTimeout}}
}

type sendMessageReq struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// SendMessage posts text to chatID via sendMessage.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if c.token == "" {
		return apperr.New(apperr.InvalidArgument, "telegram bot token not configured")
	}
	body, err := json.Marshal(sendMessageReq{ChatID: chatID, Text: text})
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "marshal telegram request")
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/sendMessage", apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.SourceUnavailable, err, "telegram request failed")
	}
	defer resp.Body.Close()

	var parsed apiResponse
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	if resp.StatusCode != http.StatusOK || !parsed.OK {
		return apperr.New(apperr.SourceUnavailable, "telegram sendMessage failed: %s", parsed.Description)
	}
	return nil
}
