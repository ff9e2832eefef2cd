package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// maxMessageLen is the Bot API limit for one sendMessage text, in runes.
	maxMessageLen = 4096
)

// Notifier delivers operator messages.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Nop discards every message. Used when Telegram is not configured.
type Nop struct{}

func (Nop) SendWithRetry(context.Context, string, int) error { return nil }

// TelegramNotifier talks to the Telegram Bot API: operator reports go out
// through Send, commands come in through StartPolling.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client
	Log      *zap.Logger
}

func NewTelegramNotifier(botToken, chatID, proxyURL string, logger *zap.Logger) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			logger.Warn("ignoring invalid proxy url", zap.Error(err))
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  defaultAPIBase,
		Client:   &http.Client{Timeout: 30 * time.Second, Transport: transport},
		Log:      logger,
	}
}

// apiResponse is the envelope of every Bot API reply.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// call invokes a Bot API method with a JSON body and decodes the result into
// out when out is non-nil.
func (t *TelegramNotifier) call(ctx context.Context, client *http.Client, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram %s: encode: %w", method, err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.APIBase, t.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var env apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode != http.StatusOK || !env.OK {
		reason := env.Description
		if decodeErr != nil || reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, reason)
	}
	if decodeErr != nil {
		return fmt.Errorf("telegram %s: decode: %w", method, decodeErr)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// Send delivers text to the configured chat, split into as many messages as
// the Bot API length limit requires.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	for _, part := range splitMessage(text, maxMessageLen) {
		err := t.call(ctx, t.Client, "sendMessage", map[string]string{
			"chat_id":    t.ChatID,
			"text":       part,
			"parse_mode": "HTML",
		}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

// SendWithRetry calls Send up to maxRetries+1 times, doubling the pause
// between attempts from one second.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	backoff := time.Second
	var err error
	for attempt := 1; ; attempt++ {
		if err = t.Send(ctx, text); err == nil {
			return nil
		}
		if attempt > maxRetries {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		t.Log.Warn("telegram send failed",
			zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// splitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
