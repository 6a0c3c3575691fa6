package watchdog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/leighmacdonald/watchdog/internal/discord"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAdmins is a game server admin list that honours addadmin and removeadmin.
type fakeAdmins struct {
	mu     sync.Mutex
	admins []string
}

func (f *fakeAdmins) set(admins ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.admins = admins
}

func (f *fakeAdmins) exec(cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name, id, _ := strings.Cut(cmd, " ")

	switch name {
	case "adminlist":
		if len(f.admins) == 0 {
			return msgNoAdmins, nil
		}

		return strings.Join(f.admins, "\n"), nil
	case "addadmin":
		f.admins = append(f.admins, id)
	case "removeadmin":
		var kept []string

		for _, admin := range f.admins {
			if admin != id {
				kept = append(kept, admin)
			}
		}

		f.admins = kept
	}

	return "Command processed successfully", nil
}

func newTestRoster(t *testing.T, cfg ServerConfig, settings *Settings) (*RosterMonitor, *fakeAdmins, *fakeRunner, *testRig) {
	t.Helper()

	settings.Servers = []ServerConfig{cfg}
	rig := newTestRig(t, settings)
	admins := &fakeAdmins{}
	runner := &fakeRunner{name: cfg.Name, state: StateAuthenticated, handler: admins.exec}

	return newRosterMonitor(zap.NewNop(), cfg, runner, rig.watchdog.env), admins, runner, rig
}

func TestRosterBaseline(t *testing.T) {
	roster, admins, _, rig := newTestRoster(t, testServerConfig("eu-1"), NewSettings())
	ctx := context.Background()

	require.False(t, roster.Ready())

	admins.set("111", "222")
	require.NoError(t, roster.Sync(ctx))
	require.True(t, roster.Ready())
	require.Equal(t, []string{"111", "222"}, roster.Admins())
	require.True(t, roster.Has("111"))
	require.Empty(t, rig.notifier.textsTo(ChannelActivity))

	roster.Reset()
	admins.set("111", "333")
	require.NoError(t, roster.Sync(ctx))
	require.Equal(t, []string{"111", "333"}, roster.Admins())
	require.Empty(t, rig.notifier.textsTo(ChannelActivity), "a new baseline is never reported")
}

func TestRosterReportsChangesOnce(t *testing.T) {
	settings := NewSettings()
	settings.MentionRoles = []string{"42"}
	roster, admins, _, rig := newTestRoster(t, testServerConfig("eu-1"), settings)
	ctx := context.Background()

	admins.set("111", "222")
	require.NoError(t, roster.Sync(ctx))

	admins.set("111", "333")
	require.NoError(t, roster.Sync(ctx))
	require.NoError(t, roster.Sync(ctx))

	alerts := rig.notifier.textsTo(ChannelActivity)
	require.Len(t, alerts, 1)

	text := alerts[0].text
	require.True(t, strings.HasPrefix(text, discord.Mentions([]string{"42"})))
	require.Contains(t, text, "Following players: Unknown (PlayFab: 333) was given admin privileges without permission (Server: eu-1)")
	require.Contains(t, text, "Following admins: Unknown (PlayFab: 222) had their admin privileges removed without permission (Server: eu-1)")
	require.Equal(t, []string{"111", "333"}, roster.Admins())
}

func TestRosterRollback(t *testing.T) {
	cfg := testServerConfig("eu-1")
	cfg.RollbackAdmins = true
	roster, admins, runner, rig := newTestRoster(t, cfg, NewSettings())
	ctx := context.Background()

	admins.set("111", "222")
	require.NoError(t, roster.Sync(ctx))

	admins.set("111", "333")
	require.NoError(t, roster.Sync(ctx))

	require.Contains(t, runner.sent(), "removeadmin 333")
	require.Contains(t, runner.sent(), "addadmin 222")
	require.Equal(t, []string{"111", "222"}, roster.Admins())

	alerts := rig.notifier.textsTo(ChannelActivity)
	require.Len(t, alerts, 1)
	require.Contains(t, alerts[0].text, "they've been removed")
	require.Contains(t, alerts[0].text, "they've been added back")

	require.NoError(t, roster.Sync(ctx))
	require.Len(t, rig.notifier.textsTo(ChannelActivity), 1, "a rolled back list is the new snapshot")
}

func TestRosterMonitoringDisabled(t *testing.T) {
	cfg := testServerConfig("eu-1")
	cfg.AdminListSaving = false
	roster, admins, _, rig := newTestRoster(t, cfg, NewSettings())
	ctx := context.Background()

	admins.set("111")
	require.NoError(t, roster.Sync(ctx))

	admins.set("222")
	require.NoError(t, roster.Sync(ctx))
	require.Equal(t, []string{"222"}, roster.Admins())
	require.Empty(t, rig.notifier.textsTo(ChannelActivity))
}

func TestRosterEmptyList(t *testing.T) {
	roster, _, _, _ := newTestRoster(t, testServerConfig("eu-1"), NewSettings())

	require.NoError(t, roster.Sync(context.Background()))
	require.Empty(t, roster.Admins())
	require.Empty(t, parseAdminList(msgNotConnected+"\n\n"))
}

func TestRosterArchivesLongLists(t *testing.T) {
	roster, admins, _, rig := newTestRoster(t, testServerConfig("eu-1"), NewSettings())
	ctx := context.Background()

	require.NoError(t, roster.Sync(ctx))

	var granted []string
	for i := 0; i < 60; i++ {
		granted = append(granted, fmt.Sprintf("ABCDEF01234567%02d", i))
	}

	admins.set(granted...)
	require.NoError(t, roster.Sync(ctx))

	alerts := rig.notifier.textsTo(ChannelActivity)
	require.Len(t, alerts, 1)
	require.Contains(t, alerts[0].text, "uploaded to [paste.gg](https://paste.example.com/abc)")
	require.NotContains(t, alerts[0].text, granted[0])
}

func TestRosterLinksDoNotCountTowardsArchive(t *testing.T) {
	roster, admins, _, rig := newTestRoster(t, testServerConfig("eu-1"), NewSettings())
	ctx := context.Background()

	require.NoError(t, roster.Sync(ctx))

	var granted []string
	for i := 0; i < 12; i++ {
		granted = append(granted, fmt.Sprintf("765611980000000%02d", i))
	}

	admins.set(granted...)
	require.NoError(t, roster.Sync(ctx))

	alerts := rig.notifier.textsTo(ChannelActivity)
	require.Len(t, alerts, 1)
	require.Greater(t, len(alerts[0].text), maxRosterListLength, "the linked rendering is longer than the limit")
	require.NotContains(t, alerts[0].text, "paste.example.com")
	require.Contains(t, alerts[0].text, "[76561198000000000](<http://steamcommunity.com/profiles/76561198000000000>)")
}
