package watchdog

import "time"

const (
	DurationReconnectDelay  = time.Millisecond * 2500
	DurationKeepAlive       = time.Second * 30
	DurationCommandTimeout  = time.Second * 10
	DurationDialTimeout     = time.Minute * 2
	DurationWebhookTimeout  = time.Second * 10
	DurationPropagateWindow = time.Second * 30
	DurationPunishedMarker  = time.Minute
	DurationCacheTimeout    = time.Hour * 12
)

// Length limits of notification text before it is archived instead of inlined.
const (
	maxRosterListLength = 900
	maxOffensesLength   = 1024
)

const naughtyBanCount = 3

// Notification channels a server can configure a webhook for.
const (
	ChannelPunishments = "punishments"
	ChannelActivity    = "activity"
	ChannelChat        = "chat"
	ChannelPermanent   = "permanent"
	ChannelWanted      = "wanted"
)

// Broadcast subscriptions requested after authenticating.
var listenChannels = []string{"chat", "matchstate", "killfeed", "login", "punishment"}

const (
	msgNotConnected     = "Not connected"
	msgNoAdmins         = "No admins found in admin list"
	markerProcessed     = "processed successfully"
	markerKickSucceeded = "succeeded"
	noReason            = "None given"
)

type Version struct {
	Version string
	Commit  string
	Date    string
	BuiltBy string
}
