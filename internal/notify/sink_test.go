package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynastyquant/fundingpulse/internal/rules"
)

func TestWebhookSink_DeliverPostsDiscordEmbed(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	rsi := 82.5
	sig := &rules.Signal{
		CorrelationID: "abc12345",
		Symbol:        "BTCUSDT",
		Bias:          rules.BiasShort,
		FundingPct:    0.045,
		RSI:           &rsi,
		Timeframe:     "1m",
		FundingBias:   rules.FundingBiasLongOvercrowded,
		Context:       "RSI Confluence matched on BTCUSDT",
		Movement:      rules.Movement{Up: 1.2, Down: 2.0},
	}

	err := sink.Deliver(context.Background(), sig)
	require.NoError(t, err)
	require.Len(t, received.Embeds, 1)
	assert.Equal(t, title, received.Embeds[0].Title)
	assert.Equal(t, colorRed, received.Embeds[0].Color)
	require.NotNil(t, received.Embeds[0].Footer)
	assert.Contains(t, received.Embeds[0].Footer.Text, "abc12345")

	var links *field
	for i := range received.Embeds[0].Fields {
		if received.Embeds[0].Fields[i].Name == "Links" {
			links = &received.Embeds[0].Fields[i]
		}
	}
	require.NotNil(t, links, "expected a Links field with chart/exchange quick-links")
	assert.Contains(t, links.Value, "tradingview.com")
	assert.Contains(t, links.Value, "futures.kraken.com")
	assert.Contains(t, links.Value, string(sig.Symbol))
}

func TestWebhookSink_DeliverReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	err := sink.Deliver(context.Background(), &rules.Signal{Symbol: "BTCUSDT"})
	assert.Error(t, err)
}
