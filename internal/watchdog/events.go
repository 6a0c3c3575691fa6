package watchdog

import (
	"context"
	"time"
)

type EventType int

const (
	EvtJoin EventType = iota
	EvtLeave
	EvtChat
	EvtKill
	EvtSuicide
	EvtPunishment
	EvtMatchState
	EvtIngameCommand
)

func (t EventType) String() string {
	switch t {
	case EvtJoin:
		return "join"
	case EvtLeave:
		return "leave"
	case EvtChat:
		return "chat"
	case EvtKill:
		return "kill"
	case EvtSuicide:
		return "suicide"
	case EvtPunishment:
		return "punishment"
	case EvtMatchState:
		return "match_state"
	case EvtIngameCommand:
		return "ingame_command"
	default:
		return "unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

type MatchPhase string

const (
	PhaseWaiting    MatchPhase = "waiting"
	PhaseInProgress MatchPhase = "in_progress"
	PhaseLeavingMap MatchPhase = "leaving_map"
)

// Punishment verbs as printed by the server.
const (
	VerbBanned   = "banned"
	VerbUnbanned = "unbanned"
	VerbKicked   = "kicked"
	VerbMuted    = "muted"
	VerbUnmuted  = "unmuted"
)

// Event is a single parsed broadcast. Which fields are set depends on Type.
type Event struct {
	Type      EventType  `json:"type"`
	Server    string     `json:"server"`
	Timestamp time.Time  `json:"timestamp"`
	PlayerID  string     `json:"player_id,omitempty"`
	AdminID   string     `json:"admin_id,omitempty"`
	WinnerID  string     `json:"winner_id,omitempty"`
	LoserID   string     `json:"loser_id,omitempty"`
	Name      string     `json:"name,omitempty"`
	Message   string     `json:"message,omitempty"`
	Channel   string     `json:"channel,omitempty"`
	Action    string     `json:"action,omitempty"`
	Duration  int        `json:"duration,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Phase     MatchPhase `json:"phase,omitempty"`
	Args      []string   `json:"args,omitempty"`
}

// PlayerIDs returns every player id the event mentions.
func (e Event) PlayerIDs() []string {
	var ids []string

	for _, id := range []string{e.PlayerID, e.AdminID, e.WinnerID, e.LoserID} {
		if id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}

type Handler interface {
	Handle(ctx context.Context, evt Event)
}

type HandlerFunc func(ctx context.Context, evt Event)

func (f HandlerFunc) Handle(ctx context.Context, evt Event) {
	f(ctx, evt)
}
