package directory_test

import (
	"context"
	"testing"

	"github.com/leighmacdonald/watchdog/internal/directory"
	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type staticLookup map[string]store.PlayerIdentity

func (s staticLookup) Lookup(_ context.Context, id string) (store.PlayerIdentity, error) {
	player, found := s[id]
	if !found {
		return store.PlayerIdentity{}, directory.ErrPlayerNotFound
	}

	return player, nil
}

type failingLookup struct{}

func (failingLookup) Lookup(_ context.Context, _ string) (store.PlayerIdentity, error) {
	return store.PlayerIdentity{}, errors.New("api down")
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	wolf := store.PlayerIdentity{ID: "B", Name: "Wolf"}
	chain := directory.Chain{
		staticLookup{"A": {ID: "A", Name: "Bear"}},
		failingLookup{},
		staticLookup{"B": wolf},
	}

	player, errLookup := chain.Lookup(ctx, "B")
	require.NoError(t, errLookup)
	require.Equal(t, wolf, player)

	_, errMissing := chain.Lookup(ctx, "C")
	require.EqualError(t, errMissing, "api down")

	_, errEmpty := directory.Chain{}.Lookup(ctx, "C")
	require.ErrorIs(t, errEmpty, directory.ErrPlayerNotFound)
}

func TestSteamInvalidID(t *testing.T) {
	_, errLookup := (&directory.Steam{}).Lookup(context.Background(), "ABCDEF")
	require.ErrorIs(t, errLookup, directory.ErrPlayerNotFound)
}
