package watchdog

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type serverStatus struct {
	Name   string       `json:"name"`
	Addr   string       `json:"addr"`
	State  SessionState `json:"state"`
	Info   ServerInfo   `json:"info"`
	Admins []string     `json:"admins"`
}

func getServers(w *Watchdog) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		servers := w.Servers()
		statuses := make([]serverStatus, 0, len(servers))

		for _, server := range servers {
			statuses = append(statuses, serverStatus{
				Name:   server.Name(),
				Addr:   server.Config().Addr(),
				State:  server.State(),
				Info:   server.Info(),
				Admins: server.Roster().Admins(),
			})
		}

		responseOK(ctx, http.StatusOK, statuses)
	}
}

func serverParam(ctx *gin.Context, w *Watchdog) (*Server, bool) {
	server, errServer := w.Server(ctx.Param("name"))
	if errServer != nil {
		responseErr(ctx, http.StatusNotFound, gin.H{"error": "Unknown server"})

		return nil, false
	}

	return server, true
}

func getPlayers(w *Watchdog) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		server, ok := serverParam(ctx, w)
		if !ok {
			return
		}

		players, errPlayers := server.Players(ctx)
		if errPlayers != nil {
			if errors.Is(errPlayers, ErrSessionNotReady) {
				responseErr(ctx, http.StatusServiceUnavailable, gin.H{"error": notReady(server.State()).Message})

				return
			}

			w.log.Error("Failed to fetch players", zap.String("server", server.Name()), zap.Error(errPlayers))
			responseErr(ctx, http.StatusBadGateway, gin.H{"error": "Failed to fetch players"})

			return
		}

		if players == nil {
			players = []store.PlayerIdentity{}
		}

		responseOK(ctx, http.StatusOK, players)
	}
}

type punishmentRequest struct {
	AdminID  string `json:"admin_id"`
	PlayerID string `json:"player_id" binding:"required"`
	Duration int    `json:"duration"`
	Reason   string `json:"reason"`
	Global   bool   `json:"global"`
}

type propagateResponse struct {
	Success bool            `json:"success"`
	Results []CommandResult `json:"results"`
}

func parseAction(value string) (store.Action, bool) {
	action := store.Action(strings.ToUpper(value))

	switch action {
	case store.ActionBan, store.ActionUnban, store.ActionKick, store.ActionMute, store.ActionUnmute:
		return action, true
	default:
		return "", false
	}
}

func postPunishment(w *Watchdog) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		server, ok := serverParam(ctx, w)
		if !ok {
			return
		}

		action, valid := parseAction(ctx.Param("action"))
		if !valid {
			responseErr(ctx, http.StatusNotFound, gin.H{"error": "Unknown action"})

			return
		}

		var req punishmentRequest
		if !bind(ctx, &req) {
			return
		}

		admin := w.Resolve(ctx, req.AdminID)
		player := w.Resolve(ctx, req.PlayerID)

		if req.Global && action != store.ActionKick {
			results := w.Propagate(ctx, action, Punishment{
				Server:   server.Name(),
				Date:     w.env.clock.Now(),
				Player:   player,
				Admin:    admin,
				Duration: req.Duration,
				Reason:   req.Reason,
			})

			resp := propagateResponse{Results: results}
			for _, result := range results {
				resp.Success = resp.Success || result.Success
			}

			responseOK(ctx, http.StatusOK, resp)

			return
		}

		result := server.Commands().Apply(ctx, action, Request{
			Admin:    admin,
			Player:   player,
			Duration: req.Duration,
			Reason:   req.Reason,
		})

		switch {
		case errors.Is(result.Err, ErrSessionNotReady):
			responseErr(ctx, http.StatusServiceUnavailable, result)
		case errors.Is(result.Err, ErrCommandRejected):
			responseErr(ctx, http.StatusUnprocessableEntity, result)
		case result.Err != nil:
			responseErr(ctx, http.StatusBadGateway, result)
		default:
			responseOK(ctx, http.StatusOK, result)
		}
	}
}

func getHistory(w *Watchdog) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		history, errHistory := w.History(ctx, ctx.Param("player_id"))
		if errHistory != nil {
			w.log.Error("Failed to load history", zap.Error(errHistory))
			responseErr(ctx, http.StatusInternalServerError, gin.H{"error": "Failed to load history"})

			return
		}

		if history.History == nil {
			history.History = []store.PunishmentRecord{}
		}

		responseOK(ctx, http.StatusOK, history)
	}
}
