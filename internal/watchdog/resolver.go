package watchdog

import (
	"context"

	"github.com/leighmacdonald/watchdog/internal/directory"
	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type PlayerCache interface {
	Get(ctx context.Context, id string) (store.PlayerIdentity, bool)
	Set(ctx context.Context, player store.PlayerIdentity)
}

// Resolver turns raw player ids into identities. The cache is consulted first, then the
// directory. Players nobody knows about resolve to a placeholder.
type Resolver struct {
	log    *zap.Logger
	cache  PlayerCache
	lookup directory.Lookup
}

func NewResolver(logger *zap.Logger, cache PlayerCache, lookup directory.Lookup) *Resolver {
	if lookup == nil {
		lookup = directory.Chain{}
	}

	return &Resolver{log: logger.Named("resolver"), cache: cache, lookup: lookup}
}

func (r *Resolver) Resolve(ctx context.Context, id string) store.PlayerIdentity {
	if id == "" {
		return store.NewPlaceholder(id)
	}

	if cached, found := r.cache.Get(ctx, id); found {
		return cached
	}

	player, errLookup := r.lookup.Lookup(ctx, id)
	if errLookup != nil {
		if !errors.Is(errLookup, directory.ErrPlayerNotFound) {
			r.log.Warn("Failed to look up player", zap.String("id", id), zap.Error(errLookup))
		}

		return store.NewPlaceholder(id)
	}

	player = normalise(id, player)
	r.cache.Set(ctx, player)

	return player
}

// Remember stores the name the game server reported for a player, filling in the rest of the
// identity from the cache or directory.
func (r *Resolver) Remember(ctx context.Context, id string, name string) store.PlayerIdentity {
	player := r.Resolve(ctx, id)
	if name != "" {
		player.Name = name
	}

	if player.Name == store.UnknownName && name == "" {
		return player
	}

	r.cache.Set(ctx, player)

	return player
}

// Identity prefers a caller supplied identity that already carries a name.
func (r *Resolver) Identity(ctx context.Context, player store.PlayerIdentity) store.PlayerIdentity {
	if player.Name != "" {
		return normalise(player.ID, player)
	}

	return r.Resolve(ctx, player.ID)
}

func normalise(id string, player store.PlayerIdentity) store.PlayerIdentity {
	if player.ID == "" {
		player.ID = id
	}

	player.IDs = store.NewPlatformIDs(player.ID).Merge(player.IDs)

	return player
}
