package watchdog

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leighmacdonald/watchdog/internal/discord"
	"github.com/leighmacdonald/watchdog/internal/store"
)

const offenseSeparator = "------------------"

var labelColors = map[string]int{
	"BAN":           15158332,
	"GLOBAL BAN":    10038562,
	"MUTE":          3447003,
	"GLOBAL MUTE":   2123412,
	"UNMUTE":        7506394,
	"GLOBAL UNMUTE": 4675208,
	"KICK":          3426654,
	"UNBAN":         3066993,
	"GLOBAL UNBAN":  2067276,
}

// Color returns the embed color of a punishment label.
func Color(label string) int {
	return labelColors[label]
}

func pluralize(word string, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, word)
	}

	return fmt.Sprintf("%d %ss", count, word)
}

// Verb conjugates the action for audit lines, eg "banned" or "globally muted".
func Verb(action store.Action, global bool) string {
	label := strings.ToLower(store.Label(action, global))
	label = strings.Replace(label, "global", "globally", 1)

	switch action {
	case store.ActionBan, store.ActionUnban:
		return label + "ned"
	case store.ActionKick:
		return label + "ed"
	default:
		return label + "d"
	}
}

// DurationText renders a duration in minutes, 0 being permanent.
func DurationText(duration int) string {
	if duration == 0 {
		return "PERMANENT"
	}

	return pluralize("minute", duration)
}

func durationPhrase(action store.Action, duration int) string {
	if !action.HasDuration() {
		return ""
	}

	if duration == 0 {
		return " PERMANENTLY"
	}

	return " for " + pluralize("minute", duration)
}

func hasReason(reason string) bool {
	return reason != "" && reason != noReason
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return noReason
	}

	return reason
}

// AuditLine is the log line written for every recorded punishment.
func AuditLine(record *store.PunishmentRecord, admin store.PlayerIdentity, player store.PlayerIdentity) string {
	var line strings.Builder

	line.WriteString(fmt.Sprintf("%s (%s) %s %s (%s)", admin.Name, admin.IDs.Format(false),
		Verb(record.Action, record.Global), player.Name, player.IDs.Format(false)))
	line.WriteString(durationPhrase(record.Action, record.Duration))

	if hasReason(record.Reason) {
		line.WriteString(" with the reason: " + record.Reason)
	}

	return line.String()
}

func unactionWord(action store.Action) string {
	if action == store.ActionBan {
		return "Unbanned"
	}

	return "Unmuted"
}

func relative(then time.Time, now time.Time) string {
	return humanize.RelTime(then, now, "ago", "from now")
}

// offenses renders the prior history. The result is wrapped in a code block when it fits a
// field, callers archive anything longer.
func offenses(history []store.PunishmentRecord, now time.Time) string {
	if len(history) == 0 {
		return "None"
	}

	var block strings.Builder

	block.WriteString(offenseSeparator)

	for _, record := range history {
		lines := []string{
			"",
			"ID: " + record.RecordID,
			"Type: " + record.Label(),
		}

		if !record.Global {
			lines = append(lines, "Server: "+record.Server)
		}

		lines = append(lines,
			"Platform: "+string(store.ParsePlatform(record.PlayerID)),
			fmt.Sprintf("Date: %s (%s)", record.Date.Format("Mon Jan 02 2006"), relative(record.Date, now)),
			"Admin: "+record.Admin(),
			"Offense: "+reasonOrDefault(record.Reason),
		)

		if record.Action.HasDuration() {
			duration := "Duration: " + DurationText(record.Duration)
			if record.Duration > 0 {
				ends := record.Date.Add(time.Duration(record.Duration) * time.Minute)
				duration += fmt.Sprintf(" (%s %s)", unactionWord(record.Action), relative(ends, now))
			}

			lines = append(lines, duration)
		}

		lines = append(lines, offenseSeparator)
		block.WriteString(strings.Join(lines, "\n"))
	}

	text := block.String()
	if len(text) <= maxOffensesLength {
		return "```" + text + "```"
	}

	return text
}

func code(text string) string {
	return "`" + text + "`"
}

// reportEmbed builds the punishment report. The offenses text must already fit a field.
func reportEmbed(record *store.PunishmentRecord, player store.PlayerIdentity, history store.PlayerHistory,
	offenseText string, now time.Time,
) discord.Embed {
	var description []string

	if !record.Global {
		description = append(description, "**Server**: "+code(record.Server))
	}

	description = append(description, "**Admin**: "+code(record.Admin()))

	duration := DurationText(record.Duration)
	ends := now.Add(time.Duration(record.Duration) * time.Minute)

	switch record.Action {
	case store.ActionBan:
		description = append(description, "**Offense**: "+code(reasonOrDefault(record.Reason)))

		if record.Duration > 0 {
			duration += fmt.Sprintf(" (Unbanned %s)", relative(ends, now))
		}

		description = append(description, "**Duration**: "+code(duration))
	case store.ActionMute:
		if record.Duration > 0 {
			duration += fmt.Sprintf(" (Unmuted %s)", relative(ends, now))
		}

		description = append(description, "**Duration**: "+code(duration))
	case store.ActionKick:
		description = append(description, "**Offense**: "+code(reasonOrDefault(record.Reason)))
	}

	previousNames := "None"
	if len(history.PreviousNames) > 0 {
		previousNames = strings.Join(history.PreviousNames, ", ")
	}

	steam := code("None")
	if steamID := record.PlayerIDs.Steam(); steamID != "" {
		steam = fmt.Sprintf("[%s](<%s>)", steamID, store.ProfileURL(steamID))
	}

	playerInfo := []string{
		"**Name**: " + code(player.Name),
		"**PlayFabID**: " + code(record.PlayerIDs.PlayFab()),
		"**SteamID**: " + steam,
		"**Previous Names**: " + code(previousNames),
		"**Total Duration**: " + code(pluralize("minute", record.Duration+history.TotalDuration())),
	}

	embed := discord.Embed{
		Title:       record.Label() + " REPORT",
		Description: strings.Join(description, "\n"),
		Fields: []discord.Field{
			{Name: "Player", Value: strings.Join(playerInfo, "\n")},
			{Name: fmt.Sprintf("Previous Offenses (%d)", len(history.History)), Value: offenseText},
		},
		Color:     Color(record.Label()),
		Timestamp: record.Date.UTC().Format(time.RFC3339),
	}

	if player.Avatar != "" {
		embed.Image = &discord.Image{URL: player.Avatar}
	}

	return embed
}

// permanentNotice is the one line announcement of a permanent ban.
func permanentNotice(record *store.PunishmentRecord, player store.PlayerIdentity) string {
	scope := "in " + record.Server
	if record.Global {
		scope = "globally"
	}

	return fmt.Sprintf("%s (%s) %s", discord.RemoveMentions(player.Name), record.PlayerIDs.Format(true), scope)
}
