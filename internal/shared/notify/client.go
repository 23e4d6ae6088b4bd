package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Dispatcher 告警投递：Slack/Discord webhook 与邮件
type Dispatcher struct {
	httpClient *http.Client
	mailer     Mailer
}

// NewDispatcher mailer 为 nil 时邮件通道不可用
func NewDispatcher(timeout time.Duration, mailer Mailer) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		httpClient: &http.Client{Timeout: timeout},
		mailer:     mailer,
	}
}

// Trigger 向所有已配置通道投递。部分通道失败时仍返回成功通道；
// 全部失败才返回 error
func (d *Dispatcher) Trigger(ctx context.Context, p Payload, s Settings) (*Result, error) {
	res := &Result{
		Channels:          []string{},
		LowStockCount:     len(p.LowStock),
		PrinterIssueCount: len(p.PrinterIssues),
	}
	if p.Empty() {
		return res, nil
	}

	attempted := 0
	var errs []error
	deliver := func(channel string, fn func() error) {
		attempted++
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", channel, err))
			return
		}
		res.Channels = append(res.Channels, channel)
	}

	if s.SlackWebhookURL != "" {
		deliver(ChannelSlack, func() error { return d.postJSON(ctx, s.SlackWebhookURL, slackBody(p)) })
	}
	if s.DiscordWebhookURL != "" {
		deliver(ChannelDiscord, func() error { return d.postJSON(ctx, s.DiscordWebhookURL, discordBody(p)) })
	}
	if s.EmailEnabled && s.EmailTo != "" && d.mailer != nil {
		deliver(ChannelEmail, func() error { return d.mailer.Send(ctx, s.EmailTo, subject, Text(p)) })
	}

	res.Sent = len(res.Channels) > 0
	if attempted > 0 && !res.Sent {
		return res, errors.Join(errs...)
	}
	return res, nil
}

// postJSON 发送 webhook 请求，非 2xx 视为失败
func (d *Dispatcher) postJSON(ctx context.Context, url string, body interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
