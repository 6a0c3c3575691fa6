package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leighmacdonald/steamid/v2/steamid"
)

type Platform string

const (
	PlatformPlayFab Platform = "PlayFab"
	PlatformSteam   Platform = "Steam"
)

// ParsePlatform detects which platform a raw player id belongs to. Anything that is not a
// valid steam64 is treated as a PlayFab id.
func ParsePlatform(id string) Platform {
	sid, errSid := steamid.StringToSID64(id)
	if errSid == nil && sid.Valid() {
		return PlatformSteam
	}

	return PlatformPlayFab
}

// PlatformIDs maps each platform a player is known on to their id there.
type PlatformIDs map[Platform]string

func NewPlatformIDs(ids ...string) PlatformIDs {
	out := PlatformIDs{}
	for _, id := range ids {
		if id == "" {
			continue
		}

		out[ParsePlatform(id)] = id
	}

	return out
}

func (ids PlatformIDs) PlayFab() string {
	return ids[PlatformPlayFab]
}

func (ids PlatformIDs) Steam() string {
	return ids[PlatformSteam]
}

// Values returns the known ids in a stable order.
func (ids PlatformIDs) Values() []string {
	var out []string //nolint:prealloc

	for _, platform := range ids.platforms() {
		out = append(out, ids[platform])
	}

	return out
}

// Merge fills in any platform missing from ids with the value from other.
func (ids PlatformIDs) Merge(other PlatformIDs) PlatformIDs {
	out := PlatformIDs{}
	for platform, id := range other {
		out[platform] = id
	}

	for platform, id := range ids {
		if id != "" {
			out[platform] = id
		}
	}

	return out
}

func (ids PlatformIDs) platforms() []Platform {
	platforms := make([]Platform, 0, len(ids))
	for platform, id := range ids {
		if id != "" {
			platforms = append(platforms, platform)
		}
	}

	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	return platforms
}

// Format renders the ids for logs and notifications. With links, steam ids become a
// markdown link to the community profile.
func (ids PlatformIDs) Format(links bool) string {
	parts := make([]string, 0, len(ids))

	for _, platform := range ids.platforms() {
		id := ids[platform]
		if links && platform == PlatformSteam {
			id = fmt.Sprintf("[%s](<%s>)", id, ProfileURL(id))
		}

		parts = append(parts, fmt.Sprintf("%s: %s", platform, id))
	}

	return strings.Join(parts, ", ")
}

func ProfileURL(steamID string) string {
	return "http://steamcommunity.com/profiles/" + steamID
}

// PlayerIdentity is a resolved player. ID is the id the game server reports for the player.
type PlayerIdentity struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	IDs    PlatformIDs `json:"ids"`
	Avatar string      `json:"avatar,omitempty"`
}

const UnknownName = "Unknown"

// NewPlaceholder builds the identity used when a player could not be resolved.
func NewPlaceholder(id string) PlayerIdentity {
	return PlayerIdentity{ID: id, Name: UnknownName, IDs: NewPlatformIDs(id)}
}

func (p PlayerIdentity) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.IDs.Format(false))
}

type Action string

const (
	ActionBan    Action = "BAN"
	ActionUnban  Action = "UNBAN"
	ActionKick   Action = "KICK"
	ActionMute   Action = "MUTE"
	ActionUnmute Action = "UNMUTE"
)

const globalPrefix = "GLOBAL "

// Label returns the display label of a punishment, eg "BAN" or "GLOBAL BAN". Kicks never
// carry the global prefix.
func Label(action Action, global bool) string {
	if global && action != ActionKick {
		return globalPrefix + string(action)
	}

	return string(action)
}

// ParseLabel is the inverse of Label.
func ParseLabel(label string) (Action, bool) {
	return Action(strings.TrimPrefix(label, globalPrefix)), strings.HasPrefix(label, globalPrefix)
}

// HasDuration reports whether the action is time limited.
func (a Action) HasDuration() bool {
	return a == ActionBan || a == ActionMute
}

// PunishmentRecord is a single persisted punishment. Duration is in minutes, 0 means permanent.
type PunishmentRecord struct {
	RecordID   string      `json:"record_id"`
	PlayerID   string      `json:"player_id"`
	PlayerName string      `json:"player_name"`
	PlayerIDs  PlatformIDs `json:"player_ids"`
	AdminID    string      `json:"admin_id"`
	AdminName  string      `json:"admin_name"`
	Action     Action      `json:"action"`
	Duration   int         `json:"duration"`
	Reason     string      `json:"reason"`
	Server     string      `json:"server"`
	Date       time.Time   `json:"date"`
	Global     bool        `json:"global"`
}

func NewPunishmentRecord(action Action, server string, date time.Time, player PlayerIdentity,
	admin PlayerIdentity, duration int, reason string, global bool,
) *PunishmentRecord {
	return &PunishmentRecord{
		RecordID:   uuid.New().String(),
		PlayerID:   player.ID,
		PlayerName: player.Name,
		PlayerIDs:  player.IDs,
		AdminID:    admin.ID,
		AdminName:  admin.Name,
		Action:     action,
		Duration:   duration,
		Reason:     reason,
		Server:     server,
		Date:       date,
		Global:     global && action != ActionKick,
	}
}

func (r PunishmentRecord) Label() string {
	return Label(r.Action, r.Global)
}

// Admin renders the record admin the way it is shown in reports.
func (r PunishmentRecord) Admin() string {
	return fmt.Sprintf("%s (%s)", r.AdminName, r.AdminID)
}

type PlayerHistory struct {
	IDs           PlatformIDs        `json:"ids"`
	History       []PunishmentRecord `json:"history"`
	PreviousNames []string           `json:"previous_names"`
}

// Count returns how many records of the action, local or global, the history holds.
func (h PlayerHistory) Count(action Action) int {
	count := 0

	for _, record := range h.History {
		if record.Action == action {
			count++
		}
	}

	return count
}

// TotalDuration sums the durations of all prior records.
func (h PlayerHistory) TotalDuration() int {
	total := 0
	for _, record := range h.History {
		total += record.Duration
	}

	return total
}

const defaultAvatarHash = "fef49e7fa7e1997310d705b2a6158ff8dc1cdfeb"

const baseAvatarURL = "https://steamcdn-a.akamaihd.net/steamcommunity/public/images/avatars"

func AvatarURL(hash string) string {
	avatarHash := defaultAvatarHash
	if hash != "" {
		avatarHash = hash
	}

	return fmt.Sprintf("%s/%s/%s_full.jpg", baseAvatarURL, avatarHash[:2], avatarHash)
}
