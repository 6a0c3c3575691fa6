package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leighmacdonald/watchdog/internal/watchdog"
	"github.com/stretchr/testify/require"
)

const testBroadcasts = "Login: Player (76561198000000000) logged in\r\n" +
	"something unrelated\n" +
	"Punishment: Admin (111) banned player 222 (Duration: 60, Reason: cheating)\n" +
	"MatchState: In progress\n"

func TestReplay(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "broadcasts.log")
	require.NoError(t, os.WriteFile(logPath, []byte(testBroadcasts), 0o600))

	var out bytes.Buffer

	require.NoError(t, replay(context.Background(), logPath, false, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var evt map[string]any

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &evt))
	require.Equal(t, "punishment", evt["type"])
	require.Equal(t, "222", evt["player_id"])
	require.Equal(t, float64(60), evt["duration"])
}

func TestReplayMissingFile(t *testing.T) {
	require.Error(t, replay(context.Background(), filepath.Join(t.TempDir(), "nope.log"), false, &bytes.Buffer{}))
}

func TestCheckCmd(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "watchdog.yaml")
	config := "run_mode: test\nservers:\n  - name: eu-1\n    host: 127.0.0.1\n    port: 7779\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	var out bytes.Buffer

	rootCmd := newRootCmd()
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check", "--config", configPath})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), "Server: eu-1 (127.0.0.1:7779)")

	rootCmd = newRootCmd()
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"check", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, rootCmd.Execute())
}

func TestLoggerTestMode(t *testing.T) {
	settings := watchdog.NewSettings()
	settings.RunMode = watchdog.ModeTest

	require.NotNil(t, MustCreateLogger(settings))

	settings.RunMode = watchdog.ModeDebug
	settings.LogLevel = "loud"
	require.Panics(t, func() { MustCreateLogger(settings) })
}
