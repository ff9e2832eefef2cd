package notifier

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// pollTimeout is the long-poll window requested from getUpdates.
const pollTimeout = 30

// CommandHandler answers one operator command. An empty reply sends nothing.
type CommandHandler func(command string) string

type update struct {
	UpdateID int      `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	Text string `json:"text"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// StartPolling long-polls getUpdates and answers commands from the configured
// chat. It returns when ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	client := &http.Client{Timeout: (pollTimeout + 5) * time.Second, Transport: t.Client.Transport}
	offset := 0

	for ctx.Err() == nil {
		var updates []update
		err := t.call(ctx, client, "getUpdates", map[string]int{
			"offset":  offset,
			"timeout": pollTimeout,
		}, &updates)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			t.Log.Warn("telegram polling failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			if reply := t.dispatch(u, handler); reply != "" {
				if err := t.Send(ctx, reply); err != nil {
					t.Log.Error("send reply", zap.Error(err))
				}
			}
		}
	}
	t.Log.Info("telegram polling stopped")
}

// dispatch returns the handler's reply to u, or "" when u is not a text
// message from the configured chat.
func (t *TelegramNotifier) dispatch(u update, handler CommandHandler) string {
	if u.Message == nil || strconv.FormatInt(u.Message.Chat.ID, 10) != t.ChatID {
		return ""
	}
	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		return ""
	}
	t.Log.Info("received command", zap.String("command", text))
	return handler(text)
}
