package directory

import (
	"context"

	"github.com/leighmacdonald/steamid/v2/steamid"
	"github.com/leighmacdonald/steamweb"
	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/pkg/errors"
)

var ErrPlayerNotFound = errors.New("player not found")

type Lookup interface {
	Lookup(ctx context.Context, id string) (store.PlayerIdentity, error)
}

// Steam resolves steam64 ids through the steam web api. It must be configured with
// steamweb.SetKey before use.
type Steam struct{}

func NewSteam(apiKey string) (*Steam, error) {
	if errKey := steamweb.SetKey(apiKey); errKey != nil {
		return nil, errors.Wrap(errKey, "Failed to set steam api key")
	}

	return &Steam{}, nil
}

func (s *Steam) Lookup(_ context.Context, id string) (store.PlayerIdentity, error) {
	sid, errSid := steamid.StringToSID64(id)
	if errSid != nil || !sid.Valid() {
		return store.PlayerIdentity{}, ErrPlayerNotFound
	}

	summaries, errSummaries := steamweb.PlayerSummaries(steamid.Collection{sid})
	if errSummaries != nil {
		return store.PlayerIdentity{}, errors.Wrap(errSummaries, "Failed to fetch player summary")
	}

	for _, summary := range summaries {
		if summary.Steamid != sid.String() {
			continue
		}

		return store.PlayerIdentity{
			ID:     id,
			Name:   summary.PersonaName,
			IDs:    store.NewPlatformIDs(id),
			Avatar: store.AvatarURL(summary.AvatarHash),
		}, nil
	}

	return store.PlayerIdentity{}, ErrPlayerNotFound
}

// Chain asks each lookup in order and returns the first hit.
type Chain []Lookup

func (c Chain) Lookup(ctx context.Context, id string) (store.PlayerIdentity, error) {
	var lastErr error = ErrPlayerNotFound

	for _, lookup := range c {
		player, errLookup := lookup.Lookup(ctx, id)
		if errLookup == nil {
			return player, nil
		}

		if !errors.Is(errLookup, ErrPlayerNotFound) {
			lastErr = errLookup
		}
	}

	return store.PlayerIdentity{}, lastErr
}
