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
	"github.com/shopspring/decimal"

	"tvwebhook/internal/payload"
)

// Notification 封装一条已接收告警的摘要。
type Notification struct {
	Key        string
	ReceivedAt time.Time
	Source     string
	Ticker     string
	Exchange   string
	Interval   string
	Prices     []Price
}

// Price is one numeric highlight; Valid is false for unparseable inputs.
type Price struct {
	Field string
	Value decimal.NullDecimal
}

// Highlights lists the numeric fields copied into a Notification, in order.
var Highlights = []string{"open", "high", "low", "close", "volume", "buy", "sell"}

// NewNotification summarises an accepted alert.
func NewNotification(key string, receivedAt time.Time, msg payload.IncomingMessage, parsed payload.NormalizedPayload) Notification {
	p := msg.Payload()
	note := Notification{
		Key:        key,
		ReceivedAt: receivedAt,
		Source:     msg.Source(),
		Ticker:     p.Get("ticker").Text(),
		Exchange:   p.Get("exchange").Text(),
		Interval:   p.Get("interval").Text(),
	}
	for _, field := range Highlights {
		n, ok := parsed[field]
		if !ok {
			continue
		}
		price := Price{Field: field}
		if f, ok := n.Float(); ok {
			if d, err := decimal.NewFromString(n.Text()); err == nil {
				price.Value = decimal.NewNullDecimal(d)
			} else {
				price.Value = decimal.NewNullDecimal(decimal.NewFromFloat(f))
			}
		}
		note.Prices = append(note.Prices, price)
	}
	return note
}

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
		timeout = 5 * time.Second
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
	body, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	})
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
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram 返回 ok=false")
	}

	n.logger.Debug().Str("key", note.Key).Str("ticker", note.Ticker).Msg("告警已转发 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[TV Alert] %s %s\n", orDash(note.Ticker), orDash(note.Interval)))
	if note.Exchange != "" {
		builder.WriteString(fmt.Sprintf("Exchange: %s\n", note.Exchange))
	}
	for _, p := range note.Prices {
		value := "n/a"
		if p.Value.Valid {
			value = p.Value.Decimal.String()
		}
		builder.WriteString(fmt.Sprintf("%s: %s\n", strings.ToUpper(p.Field[:1])+p.Field[1:], value))
	}
	builder.WriteString(fmt.Sprintf("Received: %s UTC\n", note.ReceivedAt.UTC().Format(time.RFC3339)))
	if note.Source != "" {
		builder.WriteString(fmt.Sprintf("Source: %s\n", note.Source))
	}
	builder.WriteString(fmt.Sprintf("Record: %s", note.Key))
	return builder.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var _ Notifier = (*TelegramNotifier)(nil)
