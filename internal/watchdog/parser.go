package watchdog

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	rxPunishment = regexp.MustCompile(`\(([^()\s]+)\)\s+(\w+)\s+player\s+([^\s()]+)`)
	rxDuration   = regexp.MustCompile(`Duration:\s*(\d+)`)
	rxReason     = regexp.MustCompile(`Reason:\s*(.*?)\)?\s*$`)
	rxParens     = regexp.MustCompile(`\s*\((?:[^()]|\([^()]*\))*\)`)
)

const (
	suffixLoggedIn  = " logged in"
	suffixLoggedOut = " logged out"
	killSeparator   = " killed "
	suicideSuffix   = " committed suicide"
)

// Kicks issued by the server itself rather than an admin.
var ignoredKickReasons = map[string]bool{
	"Vote kick.":      true,
	"Server is full.": true,
}

type family struct {
	prefix string
	parse  func(line string) (Event, error)
}

// Each broadcast line belongs to at most one family, chosen by prefix.
var families = []family{
	{"Login:", parseLogin},
	{"Punishment:", parsePunishment},
	{"Chat:", parseChat},
	{"Killfeed:", parseKillfeed},
	{"Match", parseMatch},
}

// ParseBroadcast turns a single broadcast line into an event. Lines that are not recognised,
// or that are recognised but carry nothing actionable, return ErrNoMatch.
func ParseBroadcast(line string) (Event, error) {
	line = strings.TrimSpace(line)

	for _, fam := range families {
		if strings.HasPrefix(line, fam.prefix) {
			return fam.parse(line)
		}
	}

	return Event{}, ErrNoMatch
}

func parseLogin(line string) (Event, error) {
	var (
		evt  Event
		body string
	)

	switch {
	case strings.HasSuffix(line, suffixLoggedIn):
		evt.Type = EvtJoin
		body = strings.TrimSuffix(line, suffixLoggedIn)
	case strings.HasSuffix(line, suffixLoggedOut):
		evt.Type = EvtLeave
		body = strings.TrimSuffix(line, suffixLoggedOut)
	default:
		return Event{}, ErrNoMatch
	}

	open := strings.LastIndex(body, "(")
	closing := strings.LastIndex(body, ")")

	if open < 0 || closing < open {
		return Event{}, ErrNoMatch
	}

	evt.PlayerID = strings.TrimSpace(body[open+1 : closing])
	if evt.PlayerID == "" {
		return Event{}, ErrNoMatch
	}

	name := body[:open]
	if idx := strings.LastIndex(name, ": "); idx >= 0 {
		name = name[idx+2:]
	}

	evt.Name = strings.TrimSpace(name)

	return evt, nil
}

func parsePunishment(line string) (Event, error) {
	if strings.Contains(line, "failed") {
		return Event{}, ErrNoMatch
	}

	loc := rxPunishment.FindStringSubmatchIndex(line)
	if loc == nil {
		return Event{}, ErrNoMatch
	}

	evt := Event{
		Type:     EvtPunishment,
		AdminID:  line[loc[2]:loc[3]],
		Action:   line[loc[4]:loc[5]],
		PlayerID: line[loc[6]:loc[7]],
	}

	details := line[loc[1]:]

	if match := rxDuration.FindStringSubmatch(details); match != nil {
		duration, errDuration := strconv.Atoi(match[1])
		if errDuration == nil {
			evt.Duration = duration
		}
	}

	if match := rxReason.FindStringSubmatch(details); match != nil {
		evt.Reason = strings.TrimSpace(match[1])
	}

	if evt.Action == VerbKicked && ignoredKickReasons[evt.Reason] {
		return Event{}, ErrNoMatch
	}

	return evt, nil
}

func parseChat(line string) (Event, error) {
	parts := strings.SplitN(strings.TrimSpace(strings.TrimPrefix(line, "Chat:")), ", ", 3)
	if len(parts) < 3 || strings.TrimSpace(parts[0]) == "" {
		return Event{}, ErrNoMatch
	}

	channel, message := splitChannel(parts[2])

	return Event{
		Type:     EvtChat,
		PlayerID: strings.TrimSpace(parts[0]),
		Name:     strings.TrimSpace(parts[1]),
		Channel:  channel,
		Message:  message,
	}, nil
}

// splitChannel separates the channel marker, eg "(Global)", from a chat message. The server
// prints it before the text but a trailing marker is accepted too.
func splitChannel(message string) (string, string) {
	message = strings.TrimSpace(message)

	if strings.HasPrefix(message, "(") {
		if end := strings.Index(message, ")"); end > 0 {
			return message[1:end], strings.TrimSpace(message[end+1:])
		}
	}

	if strings.HasSuffix(message, ")") {
		if start := strings.LastIndex(message, " ("); start >= 0 {
			return message[start+2 : len(message)-1], strings.TrimSpace(message[:start])
		}
	}

	return "", message
}

func parseKillfeed(line string) (Event, error) {
	body := rxParens.ReplaceAllString(strings.TrimPrefix(line, "Killfeed:"), "")

	if idx := strings.Index(body, killSeparator); idx >= 0 {
		winner := lastField(body[:idx])
		loser := firstField(body[idx+len(killSeparator):])

		if winner == "" || loser == "" {
			return Event{}, ErrNoMatch
		}

		return Event{Type: EvtKill, WinnerID: winner, LoserID: loser}, nil
	}

	if idx := strings.Index(body, suicideSuffix); idx >= 0 {
		player := lastField(body[:idx])
		if player == "" {
			return Event{}, ErrNoMatch
		}

		return Event{Type: EvtSuicide, PlayerID: player}, nil
	}

	return Event{}, ErrNoMatch
}

func parseMatch(line string) (Event, error) {
	var phase MatchPhase

	switch {
	case strings.HasPrefix(line, "Match: Waiting to start"):
		phase = PhaseWaiting
	case strings.HasPrefix(line, "MatchState: In progress"):
		phase = PhaseInProgress
	case strings.HasPrefix(line, "MatchState: Leaving map"):
		phase = PhaseLeavingMap
	default:
		return Event{}, ErrNoMatch
	}

	return Event{Type: EvtMatchState, Phase: phase}, nil
}

func firstField(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}

func lastField(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}

	// A trailing label or timestamp means the id itself is missing.
	last := fields[len(fields)-1]
	if strings.HasSuffix(last, ":") {
		return ""
	}

	return last
}
