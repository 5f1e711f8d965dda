package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"OpenRebalancer/internal/config"
	xerrors "OpenRebalancer/internal/errors"
)

type recordingSender struct {
	channel string
	content string
	err     error
}

func (s *recordingSender) Send(_ context.Context, channel, content string) error {
	s.channel = channel
	s.content = content
	return s.err
}

func TestFromErrorCarriesCodeAndMetadata(t *testing.T) {
	err := xerrors.New(xerrors.CodeIndexOutOfRange, "action index out of range", xerrors.WithMetadata("index", "4"))
	event := FromError(err, "rebalance.step", "0xabc")

	require.Equal(t, xerrors.CodeIndexOutOfRange, event.Code)
	require.Equal(t, "rebalance.step", event.Operation)
	require.Equal(t, "0xabc", event.Address)
	require.Equal(t, "4", event.Metadata["index"])
	require.False(t, event.OccurredAt.IsZero())
}

func TestFanoutJoinsChannelErrors(t *testing.T) {
	failing := &SlackNotifier{Sender: &recordingSender{err: errors.New("webhook down")}, ChannelID: "#ops"}
	core, logs := observer.New(zap.WarnLevel)
	dispatcher := NewFanout(&LogNotifier{Logger: zap.New(core)}, failing, nil)

	require.Equal(t, []Channel{ChannelLog, ChannelSlack}, dispatcher.Channels())

	err := dispatcher.Notify(context.Background(), Event{
		Code:     xerrors.CodePriceFeedUnavailable,
		Message:  "price feed unavailable",
		Severity: xerrors.SeverityCritical,
	})
	require.ErrorContains(t, err, "channel slack")
	require.Equal(t, 1, logs.FilterMessage("price feed unavailable").Len())
}

func TestSlackNotifierFormatsEvent(t *testing.T) {
	sender := &recordingSender{}
	notifier := &SlackNotifier{Sender: sender, ChannelID: "#alerts"}

	err := notifier.Notify(context.Background(), Event{
		Code:      xerrors.CodeQuoteUnavailable,
		Message:   "quote unavailable",
		Severity:  xerrors.SeverityWarning,
		Operation: "rebalance.step",
		Metadata:  map[string]string{"symbol": "BTC"},
	})
	require.NoError(t, err)
	require.Equal(t, "#alerts", sender.channel)
	require.Contains(t, sender.content, "*[warning]* QUOTE_UNAVAILABLE")
	require.Contains(t, sender.content, "- symbol: BTC")
}

func TestWebhookSenderPostsJSON(t *testing.T) {
	var got webhookPayload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := &WebhookSender{URL: srv.URL, Client: srv.Client()}
	require.NoError(t, sender.Send(context.Background(), "#ops", "hello"))
	require.Equal(t, "application/json", contentType)
	require.Equal(t, webhookPayload{Channel: "#ops", Text: "hello"}, got)
}

func TestWebhookSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	err := (&WebhookSender{URL: srv.URL}).Send(context.Background(), "", "x")
	require.ErrorContains(t, err, "403")
}

func TestNewDispatcherChannels(t *testing.T) {
	require.Equal(t, []Channel{ChannelLog}, NewDispatcher(config.AlertingConfig{}, zap.NewNop()).Channels())

	d := NewDispatcher(config.AlertingConfig{SlackWebhookURL: "https://hooks.example/x"}, zap.NewNop())
	require.Equal(t, []Channel{ChannelLog, ChannelSlack}, d.Channels())
}
