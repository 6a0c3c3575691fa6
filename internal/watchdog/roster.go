package watchdog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leighmacdonald/watchdog/internal/discord"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type execer interface {
	Exec(ctx context.Context, cmd string) (string, error)
}

// RosterMonitor tracks the admin list of a server and reports changes that were not made
// through the watchdog.
type RosterMonitor struct {
	log    *zap.Logger
	cfg    ServerConfig
	server execer
	env    *shared

	syncMu sync.Mutex

	mu     sync.RWMutex
	admins map[string]struct{}
	ready  bool
}

func newRosterMonitor(logger *zap.Logger, cfg ServerConfig, server execer, env *shared) *RosterMonitor {
	return &RosterMonitor{
		log:    logger.Named("roster"),
		cfg:    cfg,
		server: server,
		env:    env,
		admins: map[string]struct{}{},
	}
}

// Reset makes the next sync establish a new baseline.
func (r *RosterMonitor) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ready = false
}

// Ready reports whether a baseline exists since the last reset.
func (r *RosterMonitor) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.ready
}

func (r *RosterMonitor) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, found := r.admins[id]

	return found
}

func (r *RosterMonitor) Admins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.admins)
}

func parseAdminList(resp string) map[string]struct{} {
	admins := map[string]struct{}{}

	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == msgNotConnected || line == msgNoAdmins {
			continue
		}

		admins[line] = struct{}{}
	}

	return admins
}

// diff returns the ids of a missing from b.
func diff(a map[string]struct{}, b map[string]struct{}) []string {
	var missing []string

	for id := range a {
		if _, found := b[id]; !found {
			missing = append(missing, id)
		}
	}

	sort.Strings(missing)

	return missing
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for id := range set {
		keys = append(keys, id)
	}

	sort.Strings(keys)

	return keys
}

// Sync fetches the admin list and compares it to the previous snapshot. Passes never overlap.
func (r *RosterMonitor) Sync(ctx context.Context) error {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	resp, errList := r.server.Exec(ctx, "adminlist")
	if errList != nil {
		return errors.Wrap(errList, "Failed to fetch admin list")
	}

	current := parseAdminList(resp)

	r.mu.Lock()
	if !r.ready || !r.cfg.AdminListSaving {
		r.admins = current
		r.ready = true
		r.mu.Unlock()

		return nil
	}

	previous := r.admins
	r.mu.Unlock()

	granted := diff(current, previous)
	revoked := diff(previous, current)

	if len(granted) == 0 && len(revoked) == 0 {
		r.store(current)

		return nil
	}

	next := current

	if r.cfg.RollbackAdmins {
		next = make(map[string]struct{}, len(current))
		for id := range current {
			next[id] = struct{}{}
		}

		for _, id := range granted {
			if _, errRemove := r.server.Exec(ctx, cmdRemoveAdmin(id)); errRemove != nil {
				r.log.Error("Failed to remove admin", zap.String("id", id), zap.Error(errRemove))

				continue
			}

			delete(next, id)
		}

		for _, id := range revoked {
			if _, errAdd := r.server.Exec(ctx, cmdAddAdmin(id)); errAdd != nil {
				r.log.Error("Failed to add admin", zap.String("id", id), zap.Error(errAdd))

				continue
			}

			next[id] = struct{}{}
		}
	}

	r.store(next)
	r.env.metrics.rosterAnomaly(r.cfg.Name, "grant", len(granted))
	r.env.metrics.rosterAnomaly(r.cfg.Name, "revocation", len(revoked))
	r.report(ctx, granted, revoked)

	return nil
}

func (r *RosterMonitor) store(admins map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.admins = admins
}

// report writes one audit entry and sends one alert covering the whole pass.
func (r *RosterMonitor) report(ctx context.Context, granted []string, revoked []string) {
	var (
		audit []string
		alert []string
	)

	if len(granted) > 0 {
		plain, linked := r.playerList(ctx, granted)
		suffix := ""

		if r.cfg.RollbackAdmins {
			suffix = ", they've been removed"
		}

		audit = append(audit, fmt.Sprintf("Following players: %s was given privileges without permission%s",
			plain, suffix))
		alert = append(alert, fmt.Sprintf("Following players: %s was given admin privileges without permission%s (Server: %s)",
			linked, suffix, r.cfg.Name))
	}

	if len(revoked) > 0 {
		plain, linked := r.playerList(ctx, revoked)
		suffix := ""

		if r.cfg.RollbackAdmins {
			suffix = ", they've been added back"
		}

		audit = append(audit, fmt.Sprintf("Following admins: %s had their privileges removed without permission%s",
			plain, suffix))
		alert = append(alert, fmt.Sprintf("Following admins: %s had their admin privileges removed without permission%s (Server: %s)",
			linked, suffix, r.cfg.Name))
	}

	r.log.Warn(strings.Join(audit, ". "), zap.Strings("granted", granted), zap.Strings("revoked", revoked))

	text := strings.Join(alert, "\n")
	if mentions := discord.Mentions(r.env.settings.MentionRoles); mentions != "" {
		text = mentions + " " + text
	}

	r.env.alerts.text(ctx, r.cfg.Name, ChannelActivity, text)
}

// playerList renders the players for the audit log and for the alert. Lists whose plain
// rendering is too long are archived and both renderings become the archive link.
func (r *RosterMonitor) playerList(ctx context.Context, ids []string) (string, string) {
	var plain, linked []string

	for _, id := range ids {
		player := r.env.resolver.Resolve(ctx, id)
		plain = append(plain, fmt.Sprintf("%s (%s)", player.Name, player.IDs.Format(false)))
		linked = append(linked, fmt.Sprintf("%s (%s)", player.Name, player.IDs.Format(true)))
	}

	plainText := strings.Join(plain, ", ")
	linkedText := strings.Join(linked, ", ")

	if len(plainText) <= maxRosterListLength {
		return plainText, discord.RemoveMentions(linkedText)
	}

	archived := r.env.alerts.archive(ctx, plainText, maxRosterListLength)

	return archived, archived
}
