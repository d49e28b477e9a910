package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/scan"
)

// Telegram caps message bodies at 4096 characters; longer alerts are
// split into consecutive chunks.
const telegramMaxMessageLen = 4096

// Notifier delivers scan alerts. Implementations must be safe to call
// with an empty report.
type Notifier interface {
	SendTopSetups(ctx context.Context, report *scan.Report) error
}

// NopNotifier discards alerts. Used when Telegram is not configured.
type NopNotifier struct{}

func (NopNotifier) SendTopSetups(context.Context, *scan.Report) error { return nil }

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// TelegramNotifier posts alerts through the Bot API. A notifier without
// both token and chat id is permanently disabled and sends nothing.
type TelegramNotifier struct {
	token       string
	chatID      string
	baseURL     string
	client      *http.Client
	logger      zerolog.Logger
	maxMessages int
	rateDelay   time.Duration
}

// NewTelegramNotifier builds a notifier. Defaults: 12 messages per scan,
// 400 ms between sends.
func NewTelegramNotifier(token, chatID string, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		token:       token,
		chatID:      chatID,
		baseURL:     "https://api.telegram.org",
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger.With().Str("component", "telegram").Logger(),
		maxMessages: 12,
		rateDelay:   400 * time.Millisecond,
	}
}

// WithBaseURL points the notifier at a different API host.
func (n *TelegramNotifier) WithBaseURL(u string) *TelegramNotifier {
	n.baseURL = strings.TrimRight(u, "/")
	return n
}

// WithRateDelay overrides the pause between consecutive messages.
func (n *TelegramNotifier) WithRateDelay(d time.Duration) *TelegramNotifier {
	n.rateDelay = d
	return n
}

// Enabled reports whether the notifier has credentials to send with.
func (n *TelegramNotifier) Enabled() bool {
	return n.token != "" && n.chatID != ""
}

// SendTopSetups sends a summary, then per-setup detail messages, then a
// footer, staying under the message budget. A disabled notifier returns
// nil immediately.
func (n *TelegramNotifier) SendTopSetups(ctx context.Context, report *scan.Report) error {
	if !n.Enabled() {
		n.logger.Debug().Msg("telegram disabled, skipping alerts")
		return nil
	}
	if report == nil || len(report.Results) == 0 {
		return nil
	}

	remaining := n.maxMessages

	if err := n.send(ctx, SummaryText(report)); err != nil {
		return err
	}
	remaining--

	// Reserve one slot for the footer.
	for _, r := range report.Results {
		if remaining <= 1 {
			break
		}
		for _, chunk := range chunkMessage(AlertText(r), telegramMaxMessageLen) {
			if remaining <= 1 {
				break
			}
			if err := n.pause(ctx); err != nil {
				return err
			}
			if err := n.send(ctx, chunk); err != nil {
				return err
			}
			remaining--
		}
	}

	if err := n.pause(ctx); err != nil {
		return err
	}
	return n.send(ctx, footerText(report.Meta))
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	payload, err := json.Marshal(telegramMessage{
		ChatID:                n.chatID,
		Text:                  escapeMarkdownV2(text),
		ParseMode:             "MarkdownV2",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return domain.WrapErr(domain.KindExecutor, "marshaling telegram payload", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.WrapErr(domain.KindExecutor, "building telegram request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return domain.WrapErr(domain.KindTransient, "sending telegram message", err)
	}
	defer resp.Body.Close()

	var tr telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return domain.WrapErr(domain.KindDataShape, "decoding telegram response", err)
	}
	if !tr.OK {
		desc := tr.Description
		if desc == "" {
			desc = "unknown error"
		}
		return domain.Ef(domain.KindTransient, "telegram API error: %s", desc)
	}

	n.logger.Debug().Str("chat_id", n.chatID).Int("chars", len(text)).Msg("telegram message sent")
	return nil
}

func (n *TelegramNotifier) pause(ctx context.Context) error {
	if n.rateDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(n.rateDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AlertText renders one setup as a compact multi-line alert.
func AlertText(r scan.Result) string {
	tp1 := 0.0
	if len(r.TPs) > 0 {
		tp1 = r.TPs[0]
	}

	parts := []string{
		fmt.Sprintf("%s %s %s", r.Symbol, r.Timeframe, r.Direction),
		fmt.Sprintf("Score %.1f", r.Score),
		fmt.Sprintf("Entry N/F: %s / %s", trimFloat(r.Entry.Near.Price), trimFloat(r.Entry.Far.Price)),
		fmt.Sprintf("SL %s | TP1 %s", trimFloat(r.Stop), trimFloat(tp1)),
		fmt.Sprintf("Lev %sx | Qty %s | Liq %s (%s)", trimFloat(r.Leverage), trimFloat(r.Qty), trimFloat(r.LiqPrice), r.LiqReason),
		fmt.Sprintf("RR %.2f | Dist %.2f%%", r.RR, r.DistancePct),
		fmt.Sprintf("Spread %.1fbps | Vol %.0f", r.SpreadBps, r.VolUSD24h),
		"Reasons: " + joinReasons(r.Reasons),
	}

	if r.Execution.Near != "" || r.Execution.Far != "" {
		hints := make([]string, 0, 2)
		if r.Execution.Near != "" {
			hints = append(hints, "near: "+r.Execution.Near)
		}
		if r.Execution.Far != "" {
			hints = append(hints, "far: "+r.Execution.Far)
		}
		parts = append(parts, "Execution: "+strings.Join(hints, "; "))
	}
	if r.Links.TV != "" || r.Links.PhemexPreview != "" {
		links := make([]string, 0, 2)
		if r.Links.TV != "" {
			links = append(links, r.Links.TV)
		}
		if r.Links.PhemexPreview != "" {
			links = append(links, r.Links.PhemexPreview)
		}
		parts = append(parts, "Links: "+strings.Join(links, " | "))
	}

	return strings.Join(parts, "\n")
}

// SummaryText lists the ranked setups one line each.
func SummaryText(report *scan.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Top %d setups\n", len(report.Results))
	for i, r := range report.Results {
		fmt.Fprintf(&b, "%d. %s %s %s: %.1f\n", i+1, r.Direction, r.Symbol, r.Timeframe, r.Score)
	}
	return strings.TrimRight(b.String(), "\n")
}

func footerText(meta scan.Meta) string {
	parts := []string{
		"Scan " + meta.ScanID,
		fmt.Sprintf("Min score %.1f", meta.Filters.MinScore),
		fmt.Sprintf("Limit %d", meta.Filters.Limit),
	}
	if len(meta.Filters.Symbols) > 0 {
		head := meta.Filters.Symbols
		if len(head) > 5 {
			head = head[:5]
		}
		parts = append(parts, "Symbols: "+strings.Join(head, ", "))
	}
	return strings.Join(parts, "\n")
}

// joinReasons keeps at most five reasons, skipping blanks.
func joinReasons(reasons []string) string {
	kept := make([]string, 0, 5)
	for _, r := range reasons {
		if r == "" {
			continue
		}
		kept = append(kept, r)
		if len(kept) == 5 {
			break
		}
	}
	if len(kept) == 0 {
		return "n/a"
	}
	return strings.Join(kept, " | ")
}

// chunkMessage slices text into limit-sized pieces.
func chunkMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(text); start += limit {
		end := start + limit
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

var markdownV2Specials = regexp.MustCompile(`([_*\[\]()~` + "`" + `>#+\-=|{}.!])`)

// escapeMarkdownV2 backslash-escapes the characters the Bot API treats
// as markup.
func escapeMarkdownV2(text string) string {
	return markdownV2Specials.ReplaceAllString(text, `\$1`)
}
