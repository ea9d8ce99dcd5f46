package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    note.Text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Time("at", note.At).
		Str("kind", string(note.Kind)).
		Str("band", note.Band.String()).
		Msg("告警已发送 (Telegram)")
	return nil
}

// LogNotifier writes notifications to the log instead of an external channel.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a notifier for dry runs.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().
		Str("kind", string(note.Kind)).
		Str("band", note.Band.String()).
		Str("price", note.Price.String()).
		Msg(Headline(note.Kind))
	return nil
}

// payload is the JSON shape shared by the webhook and Kafka sinks.
type payload struct {
	Kind        Kind    `json:"kind"`
	Band        string  `json:"band"`
	Previous    string  `json:"previous_band"`
	PriceCents  float64 `json:"price_cents_per_kwh"`
	MinCents    float64 `json:"min_cents"`
	MaxCents    float64 `json:"max_cents"`
	Text        string  `json:"text"`
	At          string  `json:"at"`
	Destination string  `json:"destination,omitempty"`
}

func newPayload(note Notification, destination string) payload {
	return payload{
		Kind:        note.Kind,
		Band:        note.Band.String(),
		Previous:    note.Previous.String(),
		PriceCents:  note.Price.InexactFloat64(),
		MinCents:    note.Thresholds.Min.InexactFloat64(),
		MaxCents:    note.Thresholds.Max.InexactFloat64(),
		Text:        note.Text,
		At:          note.At.UTC().Format(time.RFC3339Nano),
		Destination: destination,
	}
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
