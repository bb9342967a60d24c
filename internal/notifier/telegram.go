package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"pennywise/internal/logger"
)

const (
	telegramAPIURL = "https://api.telegram.org"
	// Telegram rejects messages over 4096 characters.
	telegramMaxLength = 4000
	truncatedSuffix   = "... (truncated)"
)

// TelegramNotifier posts messages to a chat through the Bot API.
type TelegramNotifier struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	chatID     string
}

// NewTelegramNotifier returns nil when the bot token or chat id is missing,
// which Combine treats as "not configured".
func NewTelegramNotifier(httpClient *http.Client, botToken, chatID string) *TelegramNotifier {
	if botToken == "" || chatID == "" {
		return nil
	}
	return &TelegramNotifier{httpClient: httpClient, baseURL: telegramAPIURL, botToken: botToken, chatID: chatID}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Notify implements Notifier.
func (t *TelegramNotifier) Notify(ctx context.Context, message string) {
	text := truncate(message, telegramMaxLength)
	if err := t.send(ctx, text); err != nil {
		// Logged only through the local logger; routing this back into a
		// notifier would loop.
		logger.Get().Errorw("failed to send telegram message", "error", err, "message", text)
	}
}

func (t *TelegramNotifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

// truncate shortens message to at most max runes, suffix included.
func truncate(message string, max int) string {
	runes := []rune(message)
	if len(runes) <= max {
		return message
	}
	keep := max - len([]rune(truncatedSuffix))
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + truncatedSuffix
}
