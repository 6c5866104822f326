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

// Shortfall is one participant reporting below the coverage threshold.
type Shortfall struct {
	Address     string
	License     string
	DataPoints  int
	CoveragePct float64
}

// Notification carries the low-coverage findings for one report window.
type Notification struct {
	Bucket        time.Time
	Start         string
	End           string
	MaxPossible   int64
	ThresholdPct  float64
	Shortfalls    []Shortfall
	Channels      []string
	AdditionalMsg string
}

// Notifier delivers alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier sends alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
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

// Notify posts the rendered message via sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
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
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Time("bucket", note.Bucket).
		Int("shortfalls", len(note.Shortfalls)).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("alert sent (telegram)")
	return nil
}

// maxListed caps the participants named in one message.
const maxListed = 25

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[ITN Coverage Alert]\n")
	builder.WriteString(fmt.Sprintf("Window: %s to %s\n", note.Start, note.End))
	builder.WriteString(fmt.Sprintf("Max possible data points: %d\n", note.MaxPossible))
	builder.WriteString(fmt.Sprintf("Below %.1f%%: %d participant(s)\n", note.ThresholdPct, len(note.Shortfalls)))
	for i, s := range note.Shortfalls {
		if i == maxListed {
			builder.WriteString(fmt.Sprintf("... and %d more\n", len(note.Shortfalls)-maxListed))
			break
		}
		name := s.Address
		if s.License != "" {
			name = fmt.Sprintf("%s (%s)", s.License, s.Address)
		}
		builder.WriteString(fmt.Sprintf("- %s: %.2f%% (%d points)\n", name, s.CoveragePct, s.DataPoints))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
