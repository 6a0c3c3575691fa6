package watchdog

import (
	"context"
	"fmt"
	"strings"

	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	msgNotConnectedServer     = "Not connected to server"
	msgNotAuthenticatedServer = "Not authenticated to server"
)

// Request describes an administrative action against a player.
type Request struct {
	Admin    store.PlayerIdentity
	Player   store.PlayerIdentity
	Duration int
	Reason   string
	// SkipRecord suppresses recording and notification of a successful command.
	SkipRecord bool
}

// CommandResult is the normalised outcome of a command. Message holds the text to relay to
// whoever issued it, either the server response or a not ready notice.
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

type commandRunner interface {
	Name() string
	State() SessionState
	Exec(ctx context.Context, cmd string) (string, error)
}

type Executor struct {
	log    *zap.Logger
	server commandRunner
	env    *shared
}

func newExecutor(logger *zap.Logger, server commandRunner, env *shared) *Executor {
	return &Executor{log: logger.Named("commands"), server: server, env: env}
}

func cmdBan(id string, duration int, reason string) string {
	return strings.TrimSpace(fmt.Sprintf("ban %s %d %s", id, duration, reason))
}

func cmdUnban(id string) string {
	return "unban " + id
}

func cmdKick(id string, reason string) string {
	return strings.TrimSpace(fmt.Sprintf("kick %s %s", id, reason))
}

func cmdMute(id string, duration int) string {
	return fmt.Sprintf("mute %s %d", id, duration)
}

func cmdUnmute(id string) string {
	return "unmute " + id
}

func cmdAddAdmin(id string) string {
	return "addadmin " + id
}

func cmdRemoveAdmin(id string) string {
	return "removeadmin " + id
}

func (e *Executor) Ban(ctx context.Context, req Request) CommandResult {
	return e.run(ctx, store.ActionBan, cmdBan(req.Player.ID, req.Duration, req.Reason), markerProcessed, req)
}

func (e *Executor) Unban(ctx context.Context, req Request) CommandResult {
	return e.run(ctx, store.ActionUnban, cmdUnban(req.Player.ID), markerProcessed, req)
}

func (e *Executor) Kick(ctx context.Context, req Request) CommandResult {
	return e.run(ctx, store.ActionKick, cmdKick(req.Player.ID, req.Reason), markerKickSucceeded, req)
}

func (e *Executor) Mute(ctx context.Context, req Request) CommandResult {
	return e.run(ctx, store.ActionMute, cmdMute(req.Player.ID, req.Duration), markerProcessed, req)
}

func (e *Executor) Unmute(ctx context.Context, req Request) CommandResult {
	return e.run(ctx, store.ActionUnmute, cmdUnmute(req.Player.ID), markerProcessed, req)
}

// Apply runs the command matching the action.
func (e *Executor) Apply(ctx context.Context, action store.Action, req Request) CommandResult {
	switch action {
	case store.ActionBan:
		return e.Ban(ctx, req)
	case store.ActionUnban:
		return e.Unban(ctx, req)
	case store.ActionKick:
		return e.Kick(ctx, req)
	case store.ActionMute:
		return e.Mute(ctx, req)
	case store.ActionUnmute:
		return e.Unmute(ctx, req)
	default:
		return CommandResult{
			Message: fmt.Sprintf("Unknown action: %s", action),
			Err:     errors.Wrapf(ErrCommandRejected, "unknown action: %s", action),
		}
	}
}

func (e *Executor) AddAdmin(ctx context.Context, id string) (string, error) {
	return e.server.Exec(ctx, cmdAddAdmin(id))
}

func (e *Executor) RemoveAdmin(ctx context.Context, id string) (string, error) {
	return e.server.Exec(ctx, cmdRemoveAdmin(id))
}

func notReady(state SessionState) CommandResult {
	msg := msgNotAuthenticatedServer
	if state == StateDisconnected || state == StateConnecting {
		msg = msgNotConnectedServer
	}

	return CommandResult{Message: msg, Err: ErrSessionNotReady}
}

func (e *Executor) run(ctx context.Context, action store.Action, cmd string, marker string, req Request) CommandResult {
	name := strings.ToLower(string(action))

	if state := e.server.State(); state != StateAuthenticated {
		e.env.metrics.command(e.server.Name(), name, "not_ready")

		return notReady(state)
	}

	// The server echoes the action as a broadcast, which must not be recorded a second time.
	key := inflightKey(e.server.Name(), action, req.Player.ID)
	e.env.inflight.begin(key)

	resp, errExec := e.server.Exec(ctx, cmd)
	if errExec != nil {
		e.env.inflight.done(key, e.env.clock.Now(), false)

		if errors.Is(errExec, ErrSessionNotReady) {
			e.env.metrics.command(e.server.Name(), name, "not_ready")

			return notReady(e.server.State())
		}

		e.env.metrics.command(e.server.Name(), name, "error")

		return CommandResult{Message: errExec.Error(), Err: errExec}
	}

	first, _, _ := strings.Cut(resp, "\n")
	first = strings.TrimSpace(first)

	if !strings.Contains(first, marker) {
		e.env.inflight.done(key, e.env.clock.Now(), false)
		e.env.metrics.command(e.server.Name(), name, "rejected")
		e.log.Warn("Command rejected", zap.String("cmd", cmd), zap.String("response", first))

		return CommandResult{Message: first, Err: errors.Wrap(ErrCommandRejected, first)}
	}

	e.env.inflight.done(key, e.env.clock.Now(), true)
	e.env.metrics.command(e.server.Name(), name, "success")

	if !req.SkipRecord {
		e.env.coordinator.Execute(ctx, action, Punishment{
			Server:   e.server.Name(),
			Date:     e.env.clock.Now(),
			Player:   req.Player,
			Admin:    req.Admin,
			Duration: req.Duration,
			Reason:   req.Reason,
		})
	}

	return CommandResult{Success: true, Message: first}
}
