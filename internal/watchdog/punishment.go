package watchdog

import (
	"context"
	"time"

	"github.com/leighmacdonald/watchdog/internal/store"
	"go.uber.org/zap"
)

type HistoryStore interface {
	GetPlayerHistory(ctx context.Context, ids []string) (store.PlayerHistory, error)
	AppendPunishment(ctx context.Context, record *store.PunishmentRecord) error
	SaveName(ctx context.Context, player store.PlayerIdentity) error
}

// Fleet applies a punishment on every server.
type Fleet interface {
	Propagate(ctx context.Context, action store.Action, punishment Punishment) []CommandResult
}

// Punishment is a confirmed action waiting to be recorded. Duration is in minutes.
type Punishment struct {
	Server   string
	Date     time.Time
	Player   store.PlayerIdentity
	Admin    store.PlayerIdentity
	Duration int
	Reason   string
	Global   bool
}

type Coordinator struct {
	log *zap.Logger
	env *shared
}

func newCoordinator(logger *zap.Logger, env *shared) *Coordinator {
	return &Coordinator{log: logger.Named("punishment"), env: env}
}

// Execute records a confirmed punishment. Global punishments are handed to the fleet which
// records them once applied everywhere.
func (c *Coordinator) Execute(ctx context.Context, action store.Action, punishment Punishment) {
	punishment.Player = c.env.resolver.Identity(ctx, punishment.Player)

	if punishment.Global && action != store.ActionKick {
		if c.env.fleet == nil {
			c.log.Error("Cannot propagate punishment", zap.Error(errNoFleet))

			return
		}

		c.env.fleet.Propagate(ctx, action, punishment)

		return
	}

	punishment.Global = false
	c.Record(ctx, action, punishment)
}

// Record logs the punishment and, when live, persists and announces it.
func (c *Coordinator) Record(ctx context.Context, action store.Action, punishment Punishment) *store.PunishmentRecord {
	player := c.env.resolver.Identity(ctx, punishment.Player)
	admin := c.env.resolver.Identity(ctx, punishment.Admin)
	record := store.NewPunishmentRecord(action, punishment.Server, punishment.Date, player, admin,
		punishment.Duration, punishment.Reason, punishment.Global)

	c.log.Info(AuditLine(record, admin, player), zap.String("server", record.Server),
		zap.String("record_id", record.RecordID))
	c.env.metrics.punishment(record.Server, record.Label())

	if !c.env.settings.Live() {
		return record
	}

	if action == store.ActionKick || action == store.ActionBan {
		c.env.punished.Set(player.ID, Marker{Label: record.Label(), Admin: admin, Server: record.Server})
	}

	history, errHistory := c.env.history.GetPlayerHistory(ctx, player.IDs.Values())
	if errHistory != nil {
		c.log.Error("Failed to fetch player history", zap.String("player", player.ID), zap.Error(errHistory))
	}

	record.PlayerIDs = record.PlayerIDs.Merge(history.IDs)

	if record.Global || c.savesPunishment(record.Server, action) {
		if errAppend := c.env.history.AppendPunishment(ctx, record); errAppend != nil {
			c.log.Error("Failed to save punishment", zap.String("record_id", record.RecordID), zap.Error(errAppend))
		}
	}

	c.notify(ctx, record, player, history)

	return record
}

func (c *Coordinator) savesPunishment(server string, action store.Action) bool {
	cfg, found := c.env.settings.Server(server)
	if !found {
		return true
	}

	return cfg.SavesPunishment(action)
}

// channels returns the servers a record is announced to.
func (c *Coordinator) channels(record *store.PunishmentRecord) []string {
	if record.Global {
		return c.env.settings.ServerNames()
	}

	return []string{record.Server}
}

func (c *Coordinator) notify(ctx context.Context, record *store.PunishmentRecord, player store.PlayerIdentity,
	history store.PlayerHistory,
) {
	now := c.env.clock.Now()
	embed := reportEmbed(record, player, history, c.env.alerts.limit(ctx, offenses(history.History, now), maxOffensesLength), now)
	servers := c.channels(record)

	c.log.Debug("Sending report", zap.String("label", record.Label()), zap.Strings("servers", servers))

	for _, server := range servers {
		c.env.alerts.embed(ctx, server, ChannelPunishments, embed)
	}

	if record.Action == store.ActionBan && record.Duration == 0 {
		notice := permanentNotice(record, player)

		for _, server := range servers {
			c.env.alerts.text(ctx, server, ChannelPermanent, notice)
		}
	}
}
