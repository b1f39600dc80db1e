// Package notify implements the outbound notification sink. The default
// binding is a Discord-webhook-shaped HTTPS POST, following the
// DiscordProvider/DiscordEmbed pattern (a point-in-time review snapshot at
// out/review/stage_20250906_135049/internal/application/alerts_discord.go,
// cited here as the source of the embed shape).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dynastyquant/fundingpulse/internal/rules"
)

const (
	colorGreen = 0x00FF00
	colorRed   = 0xFF0000
	title      = "🎯 DYNASTY FUNDING RATE ALERTS"

	chartURLTemplate    = "https://www.tradingview.com/symbols/%s/"
	exchangeURLTemplate = "https://futures.kraken.com/trade/%s"
)

// WebhookSink posts a Discord-embed-shaped JSON payload to a configured
// URL. Delivery failures are returned to the caller (the Dispatch
// Governor), which logs and drops the signal without retry.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink constructs a sink posting to url with a bounded timeout.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title     string        `json:"title"`
	Color     int           `json:"color"`
	Fields    []field       `json:"fields"`
	Footer    *embedFooter  `json:"footer,omitempty"`
	Timestamp string        `json:"timestamp"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Deliver POSTs sig as a Discord embed. The RSI triplet (15m/5m/1m) is
// display-only and intentionally all equal to the 1m value: this
// implementation omits fabricated cross-timeframe jitter rather than
// inventing values it cannot observe.
func (s *WebhookSink) Deliver(ctx context.Context, sig *rules.Signal) error {
	biasGlyph := "🟢"
	color := colorGreen
	if sig.Bias == rules.BiasShort {
		biasGlyph = "🔴"
		color = colorRed
	}

	rsiStr := "n/a"
	if sig.RSI != nil {
		rsiStr = fmt.Sprintf("%.2f / %.2f / %.2f", *sig.RSI, *sig.RSI, *sig.RSI)
	}

	payload := webhookPayload{
		Embeds: []embed{{
			Title: title,
			Color: color,
			Fields: []field{
				{Name: "Symbol", Value: string(sig.Symbol), Inline: true},
				{Name: "Timeframe", Value: sig.Timeframe, Inline: true},
				{Name: "Movement", Value: fmt.Sprintf("up %.2f%% / down %.2f%%", sig.Movement.Up, sig.Movement.Down), Inline: false},
				{Name: "RSI (15m/5m/1m)", Value: rsiStr, Inline: false},
				{Name: "Funding Rate", Value: fmt.Sprintf("%.4f%%", sig.FundingPct), Inline: true},
				{Name: "Bias", Value: fmt.Sprintf("%s %s", biasGlyph, sig.Bias), Inline: true},
				{Name: "Funding Bias", Value: sig.FundingBias, Inline: true},
				{Name: "Links", Value: fmt.Sprintf("[Chart](%s) · [Exchange](%s)",
					fmt.Sprintf(chartURLTemplate, sig.Symbol), fmt.Sprintf(exchangeURLTemplate, sig.Symbol)), Inline: false},
				{Name: "Context", Value: sig.Context, Inline: false},
			},
			Footer:    &embedFooter{Text: "correlation " + sig.CorrelationID},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
