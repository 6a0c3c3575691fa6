package store_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *store.SqliteStore {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	database := store.New(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())

	if errInit := database.Init(); errInit != nil {
		t.Fatalf("failed to setup database: %v", errInit)
	}

	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

func TestHistory(t *testing.T) {
	var (
		ctx      = context.Background()
		database = newTestStore(t)
		steamID  = "76561197961279983"
		player   = store.PlayerIdentity{
			ID:   "ABCDEF0123456789",
			Name: "Wolf",
			IDs:  store.NewPlatformIDs("ABCDEF0123456789", steamID),
		}
		admin = store.PlayerIdentity{ID: "FEDCBA", Name: "Admin", IDs: store.NewPlatformIDs("FEDCBA")}
		start = time.Date(2023, time.February, 24, 23, 37, 19, 0, time.UTC)
	)

	t.Run("Empty", func(t *testing.T) {
		history, errHistory := database.GetPlayerHistory(ctx, []string{player.ID})
		require.NoError(t, errHistory)
		require.Empty(t, history.History)
		require.Empty(t, history.PreviousNames)
	})

	t.Run("Append", func(t *testing.T) {
		records := []*store.PunishmentRecord{
			store.NewPunishmentRecord(store.ActionBan, "eu-1", start, player, admin, 60, "cheating", false),
			store.NewPunishmentRecord(store.ActionKick, "eu-1", start.Add(time.Hour), player, admin, 0, "spam", true),
			store.NewPunishmentRecord(store.ActionMute, "", start.Add(2*time.Hour), player, admin, 30, "toxic", true),
		}

		for _, record := range records {
			require.NoError(t, database.AppendPunishment(ctx, record))
		}
	})

	t.Run("Lookup by any id", func(t *testing.T) {
		for _, id := range []string{player.ID, steamID} {
			history, errHistory := database.GetPlayerHistory(ctx, []string{id, ""})
			require.NoError(t, errHistory)
			require.Len(t, history.History, 3)
			require.Equal(t, steamID, history.IDs.Steam())
			require.Equal(t, player.ID, history.IDs.PlayFab())
			require.Equal(t, store.ActionBan, history.History[0].Action)
			require.Equal(t, 60, history.History[0].Duration)
			require.Equal(t, "Admin (FEDCBA)", history.History[0].Admin())
			require.Equal(t, store.ActionKick, history.History[1].Action)
			require.False(t, history.History[1].Global, "kicks are never global")
			require.Equal(t, "GLOBAL MUTE", history.History[2].Label())
			require.Equal(t, 90, history.TotalDuration())
			require.Equal(t, 1, history.Count(store.ActionBan))
		}
	})

	t.Run("Empty record", func(t *testing.T) {
		require.ErrorIs(t, database.AppendPunishment(ctx, &store.PunishmentRecord{}), store.ErrEmptyValue)
	})
}

func TestNames(t *testing.T) {
	var (
		ctx      = context.Background()
		database = newTestStore(t)
		player   = store.PlayerIdentity{ID: "ABCDEF", Name: "first", IDs: store.NewPlatformIDs("ABCDEF")}
	)

	require.NoError(t, database.SaveName(ctx, player))
	require.NoError(t, database.SaveName(ctx, player))

	player.Name = "second"
	require.NoError(t, database.SaveName(ctx, player))

	require.ErrorIs(t, database.SaveName(ctx, store.NewPlaceholder("ABCDEF")), store.ErrEmptyValue)

	history, errHistory := database.GetPlayerHistory(ctx, []string{"ABCDEF"})
	require.NoError(t, errHistory)
	require.ElementsMatch(t, []string{"first", "second"}, history.PreviousNames)
}
