package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNoWebhook = errors.New("no webhook configured")

// Webhooks delivers messages to the webhook configured for a server channel.
type Webhooks struct {
	log    *zap.Logger
	client *http.Client
	// server -> channel -> url
	urls map[string]map[string]string
}

func NewWebhooks(logger *zap.Logger, timeout time.Duration) *Webhooks {
	return &Webhooks{
		log:    logger.Named("discord"),
		client: &http.Client{Timeout: timeout},
		urls:   map[string]map[string]string{},
	}
}

// Register sets the channel webhooks of a server. Called once per server before use.
func (w *Webhooks) Register(server string, channels map[string]string) {
	urls := map[string]string{}
	for channel, url := range channels {
		if url != "" {
			urls[channel] = url
		}
	}

	w.urls[server] = urls
}

func (w *Webhooks) SendText(ctx context.Context, server string, channel string, text string) error {
	return w.send(ctx, server, channel, message{Content: text})
}

func (w *Webhooks) SendEmbed(ctx context.Context, server string, channel string, embed Embed) error {
	return w.send(ctx, server, channel, message{Embeds: []Embed{embed}})
}

func (w *Webhooks) send(ctx context.Context, server string, channel string, msg message) error {
	url, found := w.urls[server][channel]
	if !found {
		return ErrNoWebhook
	}

	body, errMarshal := json.Marshal(msg)
	if errMarshal != nil {
		return errors.Wrap(errMarshal, "Failed to encode webhook message")
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if errReq != nil {
		return errors.Wrap(errReq, "Failed to create webhook request")
	}

	req.Header.Set("Content-Type", "application/json")

	resp, errResp := w.client.Do(req)
	if errResp != nil {
		return errors.Wrap(errResp, "Failed to send webhook")
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("Invalid webhook response code: %d", resp.StatusCode)
	}

	w.log.Debug("Webhook sent", zap.String("server", server), zap.String("channel", channel))

	return nil
}
