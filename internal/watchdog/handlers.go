package watchdog

import (
	"context"
	"fmt"
	"strings"

	"github.com/leighmacdonald/watchdog/internal/discord"
	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var verbActions = map[string]store.Action{
	VerbBanned:   store.ActionBan,
	VerbUnbanned: store.ActionUnban,
	VerbKicked:   store.ActionKick,
	VerbMuted:    store.ActionMute,
	VerbUnmuted:  store.ActionUnmute,
}

// eventHandlers reacts to the events of a single server.
type eventHandlers struct {
	log    *zap.Logger
	server *Server
	env    *shared
}

func newEventHandlers(logger *zap.Logger, server *Server, env *shared) *eventHandlers {
	return &eventHandlers{
		log:    logger.Named("events").With(zap.String("server", server.Name())),
		server: server,
		env:    env,
	}
}

func (h *eventHandlers) Handle(ctx context.Context, evt Event) {
	switch evt.Type {
	case EvtJoin:
		h.onJoin(ctx, evt)
	case EvtLeave:
		h.onLeave(ctx, evt)
	case EvtChat:
		h.onChat(ctx, evt)
	case EvtPunishment:
		h.onPunishment(ctx, evt)
	case EvtMatchState:
		if evt.Phase == PhaseInProgress {
			h.server.Refresh(ctx)
		}
	case EvtKill, EvtSuicide:
		for _, id := range evt.PlayerIDs() {
			h.env.resolver.Resolve(ctx, id)
		}
	}
}

func (h *eventHandlers) kind(id string) string {
	if h.server.Roster().Has(id) {
		return "Admin"
	}

	return "Player"
}

// activity sends the announcement to the activity channel when the feed is enabled.
func (h *eventHandlers) activity(ctx context.Context, text string) {
	if !h.env.settings.Live() || !h.server.Config().Features.ActivityFeed {
		return
	}

	h.env.alerts.text(ctx, h.server.Name(), ChannelActivity, text)
}

func (h *eventHandlers) wanted(ctx context.Context, text string) {
	if !h.env.settings.Live() {
		return
	}

	h.env.alerts.text(ctx, h.server.Name(), ChannelWanted, text)
}

func (h *eventHandlers) onJoin(ctx context.Context, evt Event) {
	player := h.env.resolver.Remember(ctx, evt.PlayerID, evt.Name)

	if errSave := h.env.history.SaveName(ctx, player); errSave != nil && !errors.Is(errSave, store.ErrEmptyValue) {
		h.log.Error("Failed to save player name", zap.String("player", player.ID), zap.Error(errSave))
	}

	history, errHistory := h.env.history.GetPlayerHistory(ctx, player.IDs.Values())
	if errHistory != nil {
		h.log.Error("Failed to fetch player history", zap.String("player", player.ID), zap.Error(errHistory))
	}

	kind := h.kind(player.ID)
	bans := history.Count(store.ActionBan)
	total := pluralize("minute", history.TotalDuration())

	details := fmt.Sprintf("Server: %s", h.server.Name())
	if bans > 0 {
		details += fmt.Sprintf(", Bans: %d, Total Duration: %s", bans, total)
	}

	h.log.Info(fmt.Sprintf("%s %s (%s) has joined the server (%s)", kind, player.Name, player.IDs.Format(false), details))
	h.activity(ctx, fmt.Sprintf("%s %s (%s) has joined the server (%s)",
		kind, discord.RemoveMentions(player.Name), player.IDs.Format(true), details))

	if bans < naughtyBanCount {
		return
	}

	h.env.naughty.Set(player.ID, Marker{Bans: bans, Server: h.server.Name()})

	lower := strings.ToLower(kind)
	h.log.Info(fmt.Sprintf("Naughty %s %s (%s) has joined with %d bans a total duration of %s (Server: %s)",
		lower, player.Name, player.IDs.Format(false), bans, total, h.server.Name()))
	h.wanted(ctx, fmt.Sprintf("Naughty %s %s (%s) has joined with %d bans a total duration of %s (Server: %s)",
		lower, discord.RemoveMentions(player.Name), player.IDs.Format(true), bans, total, h.server.Name()))
}

func (h *eventHandlers) onLeave(ctx context.Context, evt Event) {
	player := h.env.resolver.Resolve(ctx, evt.PlayerID)
	kind := h.kind(player.ID)
	name := discord.RemoveMentions(player.Name)

	marker, punished := h.env.punished.Take(player.ID)

	detail := fmt.Sprintf("has left the server (Server: %s)", h.server.Name())
	if punished {
		detail = fmt.Sprintf("has been punished (Type: %s, Admin: %s, Server: %s)",
			marker.Label, marker.Admin.Name, h.server.Name())
	}

	h.log.Info(fmt.Sprintf("%s %s (%s) %s", kind, player.Name, player.IDs.Format(false), detail))
	h.activity(ctx, fmt.Sprintf("%s %s (%s) %s", kind, name, player.IDs.Format(true), detail))

	if _, naughty := h.env.naughty.Take(player.ID); !naughty {
		return
	}

	if !punished {
		detail = fmt.Sprintf("left the server (Server: %s)", h.server.Name())
	}

	h.wanted(ctx, fmt.Sprintf("Naughty %s %s (%s) %s", strings.ToLower(kind), name, player.IDs.Format(true), detail))
}

func (h *eventHandlers) onChat(ctx context.Context, evt Event) {
	player := h.env.resolver.Remember(ctx, evt.PlayerID, evt.Name)
	prefix := h.env.settings.IngamePrefix

	if prefix != "" && strings.HasPrefix(evt.Message, prefix) {
		fields := strings.Fields(strings.TrimPrefix(evt.Message, prefix))
		if len(fields) > 0 && h.server.Config().AllowsCommand(strings.ToLower(fields[0])) {
			h.log.Info(fmt.Sprintf("%s ran %s", player.Name, fields[0]))

			command := evt
			command.Type = EvtIngameCommand
			command.Message = strings.ToLower(fields[0])
			command.Args = fields[1:]

			h.server.dispatcher.Dispatch(ctx, command)
		}
	}

	if !h.env.settings.Live() || !h.server.Config().Features.ChatRelay {
		return
	}

	h.env.alerts.text(ctx, h.server.Name(), ChannelChat, fmt.Sprintf("%s %s (%s): `%s` (Server: %s)",
		h.kind(player.ID), discord.RemoveMentions(player.Name), player.IDs.Format(true),
		discord.RemoveMentions(evt.Message), h.server.Name()))
}

func (h *eventHandlers) onPunishment(ctx context.Context, evt Event) {
	action, known := verbActions[evt.Action]
	if !known {
		h.log.Debug("Unknown punishment", zap.String("action", evt.Action))

		return
	}

	if h.env.inflight.active(inflightKey(h.server.Name(), action, evt.PlayerID), h.env.clock.Now()) {
		h.log.Debug("Ignored own punishment", zap.String("action", evt.Action), zap.String("player", evt.PlayerID))

		return
	}

	admin := h.env.resolver.Resolve(ctx, evt.AdminID)
	player := h.env.resolver.Resolve(ctx, evt.PlayerID)
	roster := h.server.Roster()

	if h.server.Config().AdminListSaving && roster.Ready() && !roster.Has(evt.AdminID) {
		h.onUnauthorized(ctx, action, admin, player, evt.Action)

		return
	}

	h.env.punished.Delete(player.ID)
	h.env.naughty.Delete(player.ID)

	h.env.coordinator.Execute(ctx, action, Punishment{
		Server:   h.server.Name(),
		Date:     evt.Timestamp,
		Player:   player,
		Admin:    admin,
		Duration: evt.Duration,
		Reason:   evt.Reason,
		Global:   action != store.ActionKick && h.env.settings.SyncServerPunishments,
	})
}

// onUnauthorized reverts punishments issued by someone missing from the admin list. Bans and
// mutes are reverted independently.
func (h *eventHandlers) onUnauthorized(ctx context.Context, action store.Action, admin store.PlayerIdentity,
	player store.PlayerIdentity, verb string,
) {
	if errSync := h.server.Roster().Sync(ctx); errSync != nil {
		h.log.Warn("Failed to sync admins", zap.Error(errSync))
	}

	reverted := action == store.ActionBan || action == store.ActionMute
	suffix := ""

	if reverted {
		suffix = " and the punishment has been reverted"
	}

	h.log.Warn(fmt.Sprintf("Unauthorized admin %s %s %s%s", admin, verb, player, suffix))
	h.env.alerts.text(ctx, h.server.Name(), ChannelActivity, fmt.Sprintf("Unauthorized admin %s (%s) %s %s (%s)%s",
		discord.RemoveMentions(admin.Name), admin.IDs.Format(true), verb,
		discord.RemoveMentions(player.Name), player.IDs.Format(true), suffix))

	revert := Request{Player: player, SkipRecord: true}

	var result CommandResult

	switch action {
	case store.ActionBan:
		result = h.server.Commands().Unban(ctx, revert)
	case store.ActionMute:
		result = h.server.Commands().Unmute(ctx, revert)
	default:
		return
	}

	if !result.Success {
		h.log.Error("Failed to revert unauthorized punishment", zap.String("player", player.ID),
			zap.String("response", result.Message))
	}
}
