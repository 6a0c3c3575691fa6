package watchdog

import (
	"testing"
	"time"

	"github.com/leighmacdonald/watchdog/internal/clock"
	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/stretchr/testify/require"
)

func TestInflightHolders(t *testing.T) {
	guard := newInflight(time.Second * 30)
	key := inflightKey("eu-1", store.ActionBan, "222")

	guard.begin(key)
	guard.begin(key)
	require.True(t, guard.active(key, testEpoch))

	guard.done(key, testEpoch, false)
	require.True(t, guard.active(key, testEpoch), "a failed holder leaves the other pending")

	guard.done(key, testEpoch, true)
	require.True(t, guard.active(key, testEpoch.Add(time.Second*29)))
	require.False(t, guard.active(key, testEpoch.Add(time.Second*30)))

	guard.begin(key)
	guard.done(key, testEpoch, false)
	require.False(t, guard.active(key, testEpoch))
	require.False(t, guard.active(inflightKey("us-1", store.ActionBan, "222"), testEpoch))
}

func TestMarkerSetTTL(t *testing.T) {
	mock := clock.NewMock(testEpoch)
	markers := NewMarkerSet(mock, time.Minute)

	markers.Set("222", Marker{Label: "KICK"})
	require.True(t, markers.Has("222"))

	marker, found := markers.Take("222")
	require.True(t, found)
	require.Equal(t, "KICK", marker.Label)
	require.False(t, markers.Has("222"))

	markers.Set("222", Marker{Label: "BAN"})
	mock.Advance(time.Minute)

	_, found = markers.Take("222")
	require.False(t, found)

	forever := NewMarkerSet(mock, 0)
	forever.Set("333", Marker{Bans: 3})
	mock.Advance(time.Hour * 24)
	require.True(t, forever.Has("333"))
}
