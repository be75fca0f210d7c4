package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"seed-ingest/internal/config"
	"seed-ingest/internal/model"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier sends operator alerts through the Bot API.
type TelegramNotifier struct {
	client   *resty.Client
	botToken string
	chatID   string
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a notifier from config.
func NewTelegramNotifier(cfg config.TelegramConfig, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := cfg.APIBase
	if base == "" {
		base = defaultTelegramAPI
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(base, "/"))
	client.SetTimeout(timeout)

	return &TelegramNotifier{
		client:   client,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// CycleFailed alerts about a cycle with failed symbols.
func (n *TelegramNotifier) CycleFailed(ctx context.Context, cycle model.IngestionCycle) error {
	if err := n.send(ctx, CycleMessage(cycle)); err != nil {
		return err
	}
	n.logger.Info().Str("cycle", cycle.ID.String()).Int("failed", len(cycle.Failed)).Msg("cycle failure alert sent")
	return nil
}

// Report sends a rejected review as plain text.
func (n *TelegramNotifier) Report(ctx context.Context, r Report) error {
	return n.send(ctx, r.Markdown())
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": n.chatID,
			"text":    text,
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.botToken))
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode())
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}
	return nil
}

var (
	_ Alerter  = (*TelegramNotifier)(nil)
	_ Reporter = (*TelegramNotifier)(nil)
)
