package watchdog

import (
	"context"
	"fmt"

	"github.com/leighmacdonald/watchdog/internal/discord"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Notifier interface {
	SendText(ctx context.Context, server string, channel string, text string) error
	SendEmbed(ctx context.Context, server string, channel string, embed discord.Embed) error
}

type Archiver interface {
	Archive(ctx context.Context, text string) (string, error)
}

// alerts wraps the notification sink and archive service. Delivery problems are logged and
// otherwise ignored.
type alerts struct {
	log      *zap.Logger
	notifier Notifier
	archiver Archiver
}

func (a alerts) text(ctx context.Context, server string, channel string, text string) {
	if a.notifier == nil {
		return
	}

	if errSend := a.notifier.SendText(ctx, server, channel, text); errSend != nil && !errors.Is(errSend, discord.ErrNoWebhook) {
		a.log.Error("Failed to send notification", zap.String("server", server),
			zap.String("channel", channel), zap.Error(errSend))
	}
}

func (a alerts) embed(ctx context.Context, server string, channel string, embed discord.Embed) {
	if a.notifier == nil {
		return
	}

	if errSend := a.notifier.SendEmbed(ctx, server, channel, embed); errSend != nil && !errors.Is(errSend, discord.ErrNoWebhook) {
		a.log.Error("Failed to send notification", zap.String("server", server),
			zap.String("channel", channel), zap.Error(errSend))
	}
}

// limit returns text unchanged when it fits, otherwise a link to the archived copy.
func (a alerts) limit(ctx context.Context, text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}

	return a.archive(ctx, text, maxLength)
}

// archive uploads the text and returns a link to it. The text is truncated to maxLength
// when the upload fails.
func (a alerts) archive(ctx context.Context, text string, maxLength int) string {
	if a.archiver != nil {
		url, errArchive := a.archiver.Archive(ctx, text)
		if errArchive == nil {
			return fmt.Sprintf("The output was too long, but was uploaded to [paste.gg](%s)", url)
		}

		a.log.Error("Failed to archive long output", zap.Error(errArchive))
	}

	if len(text) <= maxLength {
		return text
	}

	return text[:maxLength-3] + "..."
}
