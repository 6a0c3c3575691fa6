package watchdog

import (
	"context"
	"sort"
	"sync"

	"github.com/leighmacdonald/watchdog/internal/cache"
	"github.com/leighmacdonald/watchdog/internal/clock"
	"github.com/leighmacdonald/watchdog/internal/directory"
	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/leighmacdonald/watchdog/internal/transport"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// shared is the state owned by a Watchdog and handed to each of its servers.
type shared struct {
	settings    *Settings
	clock       clock.Clock
	metrics     *Metrics
	alerts      alerts
	resolver    *Resolver
	history     HistoryStore
	coordinator *Coordinator
	fleet       Fleet
	punished    *MarkerSet
	naughty     *MarkerSet
	inflight    *inflight
}

type Options struct {
	Settings *Settings
	History  HistoryStore
	Dialer   transport.Dialer
	Clock    clock.Clock
	Cache    PlayerCache
	Lookup   directory.Lookup
	Notifier Notifier
	Archiver Archiver
	Metrics  *Metrics
}

// Watchdog is the registry of every configured server and the state they share.
type Watchdog struct {
	log     *zap.Logger
	env     *shared
	servers map[string]*Server
	stream  *Stream
	history HistoryStore
}

func New(logger *zap.Logger, opts Options) (*Watchdog, error) {
	if opts.Settings == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "settings are required")
	}

	if errValidate := opts.Settings.Validate(); errValidate != nil {
		return nil, errValidate
	}

	if opts.History == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "history store is required")
	}

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	if opts.Dialer == nil {
		opts.Dialer = transport.NewRCONDialer(logger, DurationDialTimeout)
	}

	if opts.Cache == nil {
		opts.Cache = cache.NewMemory(opts.Settings.PlayerCacheTTL, opts.Clock)
	}

	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}

	log := logger.Named("watchdog")
	env := &shared{
		settings: opts.Settings,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		alerts:   alerts{log: log.Named("alerts"), notifier: opts.Notifier, archiver: opts.Archiver},
		resolver: NewResolver(log, opts.Cache, opts.Lookup),
		history:  opts.History,
		punished: NewMarkerSet(opts.Clock, DurationPunishedMarker),
		naughty:  NewMarkerSet(opts.Clock, 0),
		inflight: newInflight(DurationPropagateWindow),
	}
	env.coordinator = newCoordinator(log, env)

	watchdog := &Watchdog{
		log:     log,
		env:     env,
		servers: map[string]*Server{},
		stream:  NewStream(log),
		history: opts.History,
	}
	env.fleet = watchdog

	for _, cfg := range opts.Settings.Servers {
		server := newServer(log, cfg, opts.Dialer, env)
		server.Subscribe(newEventHandlers(log, server, env))
		server.Subscribe(watchdog.stream)
		watchdog.servers[cfg.Name] = server
	}

	return watchdog, nil
}

// Start runs every server, and the http api when enabled, until the context is cancelled.
func (w *Watchdog) Start(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, server := range w.servers {
		srv := server

		group.Go(func() error {
			srv.Start(groupCtx)

			return nil
		})
	}

	if w.env.settings.HTTP.Enabled {
		group.Go(func() error {
			return w.serveHTTP(groupCtx)
		})
	}

	return group.Wait()
}

func (w *Watchdog) Server(name string) (*Server, error) {
	server, found := w.servers[name]
	if !found {
		return nil, errors.Wrapf(ErrUnknownServer, "%s", name)
	}

	return server, nil
}

// Servers returns every server ordered by name.
func (w *Watchdog) Servers() []*Server {
	servers := make([]*Server, 0, len(w.servers))
	for _, server := range w.servers {
		servers = append(servers, server)
	}

	sort.Slice(servers, func(i, j int) bool {
		return servers[i].Name() < servers[j].Name()
	})

	return servers
}

func (w *Watchdog) Metrics() *Metrics {
	return w.env.metrics
}

func (w *Watchdog) Stream() *Stream {
	return w.stream
}

// Resolve returns the best known identity of a player id.
func (w *Watchdog) Resolve(ctx context.Context, id string) store.PlayerIdentity {
	return w.env.resolver.Resolve(ctx, id)
}

func (w *Watchdog) History(ctx context.Context, id string) (store.PlayerHistory, error) {
	player := w.env.resolver.Resolve(ctx, id)

	history, errHistory := w.history.GetPlayerHistory(ctx, player.IDs.Values())
	if errHistory != nil {
		return store.PlayerHistory{}, errors.Wrap(errHistory, "Failed to fetch player history")
	}

	return history, nil
}

// Propagate applies the punishment on every server and records a single global record when
// at least one of them accepted it.
func (w *Watchdog) Propagate(ctx context.Context, action store.Action, punishment Punishment) []CommandResult {
	servers := w.Servers()
	results := make([]CommandResult, len(servers))

	var waitGroup sync.WaitGroup

	for idx, server := range servers {
		waitGroup.Add(1)

		go func(idx int, server *Server) {
			defer waitGroup.Done()

			results[idx] = server.Commands().Apply(ctx, action, Request{
				Admin:      punishment.Admin,
				Player:     punishment.Player,
				Duration:   punishment.Duration,
				Reason:     punishment.Reason,
				SkipRecord: true,
			})
		}(idx, server)
	}

	waitGroup.Wait()

	accepted := 0

	for idx, result := range results {
		if result.Success {
			accepted++

			continue
		}

		w.log.Warn("Failed to propagate punishment", zap.String("server", servers[idx].Name()),
			zap.String("action", string(action)), zap.String("response", result.Message))
	}

	if accepted == 0 {
		return results
	}

	punishment.Global = true
	w.env.coordinator.Record(ctx, action, punishment)

	return results
}
