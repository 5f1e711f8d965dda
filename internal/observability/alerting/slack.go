package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"OpenRebalancer/internal/config"
)

// WebhookSender 通过 Slack Incoming Webhook 投递消息。
type WebhookSender struct {
	URL    string
	Client *http.Client
}

type webhookPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// Send 实现 SlackSender。
func (s *WebhookSender) Send(ctx context.Context, channel, content string) error {
	body, err := json.Marshal(webhookPayload{Channel: channel, Text: content})
	if err != nil {
		return fmt.Errorf("编码 Slack 消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造 Slack 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 Slack 消息失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("Slack 返回状态码 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// NewDispatcher 根据配置组装告警渠道。日志渠道始终启用，
// 配置了 webhook 时追加 Slack 渠道。
func NewDispatcher(cfg config.AlertingConfig, l *zap.Logger) *FanoutDispatcher {
	notifiers := []Notifier{&LogNotifier{Logger: l}}
	if url := strings.TrimSpace(cfg.SlackWebhookURL); url != "" {
		notifiers = append(notifiers, &SlackNotifier{
			Sender:    &WebhookSender{URL: url},
			ChannelID: cfg.SlackChannel,
		})
	}
	return NewFanout(notifiers...)
}
