package watchdog_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/leighmacdonald/watchdog/internal/watchdog"
	"github.com/stretchr/testify/require"
)

const testConfig = `
run_mode: debug
log_level: debug
player_cache_ttl: 5m
sync_server_punishments: true
mention_roles: ["1234"]
servers:
  - name: eu-1
    host: 10.0.0.1
    port: 7779
    password: secret
    admin_list_saving: true
    rollback_admins: true
    ingame_commands: [timeleft]
    punishments:
      save: true
      types:
        bans: true
        kicks: false
    features:
      chat_relay: true
    webhooks:
      punishments: https://example.com/hook
`

func TestSettingsRead(t *testing.T) {
	settings := watchdog.NewSettings()
	require.NoError(t, settings.Read(strings.NewReader(testConfig)))

	require.Equal(t, watchdog.ModeDebug, settings.RunMode)
	require.False(t, settings.Live())
	require.Equal(t, time.Minute*5, settings.PlayerCacheTTL)
	require.Equal(t, "!", settings.IngamePrefix, "defaults survive decoding")
	require.Equal(t, []string{"eu-1"}, settings.ServerNames())

	server, found := settings.Server("eu-1")
	require.True(t, found)
	require.Equal(t, "10.0.0.1:7779", server.Addr())
	require.True(t, server.AllowsCommand("timeleft"))
	require.False(t, server.AllowsCommand("ban"))
	require.True(t, server.SavesPunishment(store.ActionBan))
	require.False(t, server.SavesPunishment(store.ActionKick))
	require.True(t, server.Features.ChatRelay)
	require.Equal(t, "https://example.com/hook", server.Webhooks[watchdog.ChannelPunishments])

	server.Punishments.Save = false
	require.False(t, server.SavesPunishment(store.ActionBan))

	server.Punishments = nil
	require.True(t, server.SavesPunishment(store.ActionKick), "no policy saves everything")

	_, found = settings.Server("us-1")
	require.False(t, found)
}

func TestSettingsValidate(t *testing.T) {
	cases := []string{
		"servers: [{host: a, port: 1}]",
		"servers: [{name: a, host: a, port: 1}, {name: a, host: b, port: 2}]",
		"servers: [{name: a, port: 1}]",
		"servers: [{name: a, host: a}]",
		"run_mode: staging",
	}

	for _, input := range cases {
		require.ErrorIs(t, watchdog.NewSettings().Read(strings.NewReader(input)), watchdog.ErrInvalidConfig, input)
	}
}

func TestSettingsWriteRead(t *testing.T) {
	settings := watchdog.NewSettings()
	require.NoError(t, settings.Read(strings.NewReader(testConfig)))

	var buf bytes.Buffer
	require.NoError(t, settings.Write(&buf))

	reread := watchdog.NewSettings()
	require.NoError(t, reread.Read(&buf))
	require.Equal(t, settings.Servers, reread.Servers)

	path := filepath.Join(t.TempDir(), "watchdog.yaml")
	require.NoError(t, settings.WriteFilePath(path))

	fromFile := watchdog.NewSettings()
	require.NoError(t, fromFile.ReadFilePath(path))
	require.Equal(t, path, fromFile.ConfigPath())
	require.Equal(t, settings.Servers, fromFile.Servers)

	_, errStat := os.Stat(path)
	require.NoError(t, errStat)

	require.Error(t, watchdog.NewSettings().ReadFilePath(filepath.Join(t.TempDir(), "missing.yaml")))
}
