package watchdog

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/leighmacdonald/watchdog/internal/transport"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(text []byte) error {
	for state := StateDisconnected; state <= StateAuthenticated; state++ {
		if state.String() == string(text) {
			*s = state

			return nil
		}
	}

	return errors.Errorf("unknown session state: %s", text)
}

var rxMatchDuration = regexp.MustCompile(`There are (\d+) seconds`)

type ServerInfo struct {
	Hostname string `json:"hostname"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	GameMode string `json:"gamemode"`
	Map      string `json:"map"`
}

// ListEntry is a row of the ban or mute list. Duration is in minutes, 0 for permanent.
type ListEntry struct {
	ID       string `json:"id"`
	Duration int    `json:"duration"`
}

// Server owns the rcon session of a single game server. A new transport.Conn is dialed for
// every (re)connect, events of previous connections are discarded.
type Server struct {
	log        *zap.Logger
	cfg        ServerConfig
	dialer     transport.Dialer
	env        *shared
	dispatcher *Dispatcher
	roster     *RosterMonitor
	commands   *Executor

	state        atomic.Int32
	reconnecting atomic.Bool

	connMu     sync.RWMutex
	conn       transport.Conn
	generation uint64
	runCtx     context.Context
	stopped    bool
	// workers tracks the reconnect, consume and subscribe goroutines. Adds happen under connMu
	// while not stopped.
	workers sync.WaitGroup

	infoMu sync.RWMutex
	info   ServerInfo
}

func newServer(logger *zap.Logger, cfg ServerConfig, dialer transport.Dialer, env *shared) *Server {
	log := logger.Named("server").With(zap.String("server", cfg.Name))
	server := &Server{
		log:        log,
		cfg:        cfg,
		dialer:     dialer,
		env:        env,
		dispatcher: NewDispatcher(log),
		runCtx:     context.Background(),
	}

	server.roster = newRosterMonitor(log, cfg, server, env)
	server.commands = newExecutor(log, server, env)

	return server
}

func (s *Server) Name() string {
	return s.cfg.Name
}

func (s *Server) Config() ServerConfig {
	return s.cfg
}

func (s *Server) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Server) Roster() *RosterMonitor {
	return s.roster
}

func (s *Server) Commands() *Executor {
	return s.commands
}

func (s *Server) Subscribe(handler Handler) {
	s.dispatcher.Subscribe(handler)
}

// Info returns the server info from the last refresh.
func (s *Server) Info() ServerInfo {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()

	return s.info
}

func (s *Server) setState(state SessionState) {
	s.state.Store(int32(state))
	s.env.metrics.state(s.cfg.Name, state)
}

// Start connects and keeps the session alive until the context is cancelled.
func (s *Server) Start(ctx context.Context) {
	s.connMu.Lock()
	s.runCtx = ctx
	s.stopped = false
	s.connMu.Unlock()

	s.requestReconnect(0)
	s.keepalive(ctx)
	s.shutdown()
}

// shutdown closes the session and waits until nothing can dispatch any more before draining
// the handlers.
func (s *Server) shutdown() {
	s.connMu.Lock()
	s.stopped = true
	conn := s.conn
	s.conn = nil
	s.generation++
	s.connMu.Unlock()

	if conn != nil {
		if errClose := conn.Close(); errClose != nil {
			s.log.Debug("Failed to close session", zap.Error(errClose))
		}
	}

	s.workers.Wait()
	s.setState(StateDisconnected)
	s.dispatcher.Wait()
}

// spawn runs fn as a tracked worker unless the server is shutting down.
func (s *Server) spawn(fn func()) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.stopped {
		return false
	}

	s.workers.Add(1)

	go func() {
		defer s.workers.Done()

		fn()
	}()

	return true
}

// requestReconnect schedules a connection attempt after the delay. Requests made while an
// attempt is already pending are ignored.
func (s *Server) requestReconnect(delay time.Duration) {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}

	s.connMu.RLock()
	ctx := s.runCtx
	s.connMu.RUnlock()

	if !s.spawn(func() { s.reconnect(ctx, delay) }) {
		s.reconnecting.Store(false)
	}
}

func (s *Server) reconnect(ctx context.Context, delay time.Duration) {
	if delay > 0 {
		s.log.Info("Reconnecting", zap.Duration("delay", delay))
		s.env.metrics.reconnect(s.cfg.Name)

		select {
		case <-s.env.clock.After(delay):
		case <-ctx.Done():
			s.reconnecting.Store(false)

			return
		}
	}

	if ctx.Err() != nil {
		s.reconnecting.Store(false)

		return
	}

	s.setState(StateConnecting)

	conn, errDial := s.dialer.Dial(ctx, s.cfg.Addr(), s.cfg.Password)
	if errDial != nil {
		s.log.Error("Failed to connect", zap.Error(errDial))
		s.setState(StateDisconnected)
		s.reconnecting.Store(false)
		s.requestReconnect(DurationReconnectDelay)

		return
	}

	s.connMu.Lock()
	if s.stopped {
		s.connMu.Unlock()
		_ = conn.Close()
		s.reconnecting.Store(false)

		return
	}

	s.generation++
	generation := s.generation
	s.conn = conn
	s.workers.Add(1)
	s.connMu.Unlock()

	go func() {
		defer s.workers.Done()

		s.consume(ctx, conn, generation)
	}()
}

func (s *Server) current(generation uint64) bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	return s.conn != nil && s.generation == generation
}

func (s *Server) session() (transport.Conn, uint64) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	return s.conn, s.generation
}

// consume reads the event stream of one connection. The loop never waits on handler work.
func (s *Server) consume(ctx context.Context, conn transport.Conn, generation uint64) {
	for evt := range conn.Events() {
		if !s.current(generation) {
			continue
		}

		switch evt.Kind {
		case transport.EventConnected:
			s.log.Info("Connection success")
			s.setState(StateConnected)
			s.setState(StateAuthenticating)
		case transport.EventAuthenticated:
			s.log.Info("Auth success")
			s.setState(StateAuthenticated)
			s.reconnecting.Store(false)

			s.spawn(func() { s.onAuthenticated(ctx) })
		case transport.EventBroadcast:
			s.ingest(ctx, evt.Line)
		case transport.EventError:
			s.log.Error("An error occurred", zap.Error(evt.Err))
		case transport.EventEnd:
			s.drop(generation, evt.Err)
		}
	}

	s.drop(generation, nil)
}

// drop tears down the connection of the given generation and schedules a reconnect. It is a
// no-op for connections that were already dropped or replaced.
func (s *Server) drop(generation uint64, reason error) {
	s.connMu.Lock()
	if s.conn == nil || s.generation != generation {
		s.connMu.Unlock()

		return
	}

	conn := s.conn
	s.conn = nil
	ctx := s.runCtx
	s.connMu.Unlock()

	_ = conn.Close()

	s.setState(StateDisconnected)
	s.log.Info("Disconnected from server", zap.Error(reason))

	if ctx.Err() != nil {
		return
	}

	// A failed attempt still holds the guard.
	s.reconnecting.Store(false)
	s.requestReconnect(DurationReconnectDelay)
}

func (s *Server) onAuthenticated(ctx context.Context) {
	s.roster.Reset()

	for _, channel := range listenChannels {
		if _, errListen := s.Exec(ctx, "listen "+channel); errListen != nil {
			s.log.Error("Failed to subscribe", zap.String("channel", channel), zap.Error(errListen))

			return
		}
	}

	s.Refresh(ctx)
}

// Refresh reloads the server info, the player cache and the admin roster.
func (s *Server) Refresh(ctx context.Context) {
	if _, errInfo := s.RefreshInfo(ctx); errInfo != nil {
		s.log.Warn("Failed to refresh server info", zap.Error(errInfo))
	}

	players, errPlayers := s.Players(ctx)
	if errPlayers != nil {
		s.log.Warn("Failed to refresh players", zap.Error(errPlayers))
	}

	for _, player := range players {
		s.env.resolver.Remember(ctx, player.ID, player.Name)
	}

	if errSync := s.roster.Sync(ctx); errSync != nil {
		s.log.Warn("Failed to sync admins", zap.Error(errSync))
	}
}

func (s *Server) ingest(ctx context.Context, line string) {
	evt, errParse := ParseBroadcast(line)
	if errParse != nil {
		s.log.Debug("Unhandled broadcast", zap.String("line", line))
		s.env.metrics.broadcast(s.cfg.Name, "unmatched")

		return
	}

	evt.Server = s.cfg.Name
	evt.Timestamp = s.env.clock.Now()

	s.env.metrics.broadcast(s.cfg.Name, evt.Type.String())
	s.dispatcher.Dispatch(ctx, evt)
}

func (s *Server) keepalive(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.env.clock.After(DurationKeepAlive):
			s.probe(ctx)
		}
	}
}

// probe sends the keepalive command. Failures go through the same reconnect path as an
// unexpected end of the session.
func (s *Server) probe(ctx context.Context) {
	if s.State() != StateAuthenticated {
		if s.State() == StateDisconnected && !s.reconnecting.Load() {
			s.requestReconnect(DurationReconnectDelay)
		}

		return
	}

	conn, generation := s.session()
	if conn == nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, DurationCommandTimeout)
	defer cancel()

	resp, errAlive := conn.Exec(probeCtx, "alive")
	if errAlive == nil && strings.TrimSpace(resp) == msgNotConnected {
		errAlive = errors.New(msgNotConnected)
	}

	if errAlive != nil {
		if ctx.Err() != nil {
			return
		}

		s.log.Error("Keepalive failed", zap.Error(errAlive))
		s.drop(generation, errAlive)

		return
	}

	s.log.Debug("Keepalive success")

	if errSync := s.roster.Sync(ctx); errSync != nil {
		s.log.Warn("Failed to sync admins", zap.Error(errSync))
	}
}

// Exec sends a raw command over the current session. Transport failures drop the session,
// cancellation by the caller does not.
func (s *Server) Exec(ctx context.Context, cmd string) (string, error) {
	if s.State() != StateAuthenticated {
		return "", ErrSessionNotReady
	}

	conn, generation := s.session()
	if conn == nil {
		return "", ErrSessionNotReady
	}

	cmdCtx, cancel := context.WithTimeout(ctx, DurationCommandTimeout)
	defer cancel()

	resp, errExec := conn.Exec(cmdCtx, cmd)
	if errExec != nil {
		if errors.Is(errExec, context.Canceled) || errors.Is(errExec, context.DeadlineExceeded) {
			return "", errors.Wrapf(errExec, "Command timed out: %s", cmd)
		}

		s.log.Error("Failed to execute command", zap.String("cmd", cmd), zap.Error(errExec))
		s.drop(generation, errExec)

		return "", errors.Wrapf(errExec, "Failed to execute command: %s", cmd)
	}

	return resp, nil
}

// RefreshInfo queries and stores the server info.
func (s *Server) RefreshInfo(ctx context.Context) (ServerInfo, error) {
	resp, errExec := s.Exec(ctx, "info")
	if errExec != nil {
		return ServerInfo{}, errExec
	}

	info := parseInfo(resp)

	s.infoMu.Lock()
	s.info = info
	s.infoMu.Unlock()

	return info, nil
}

func (s *Server) Players(ctx context.Context) ([]store.PlayerIdentity, error) {
	resp, errExec := s.Exec(ctx, "playerlist")
	if errExec != nil {
		return nil, errExec
	}

	return parsePlayerList(resp), nil
}

func (s *Server) Bans(ctx context.Context) ([]ListEntry, error) {
	resp, errExec := s.Exec(ctx, "banlist")
	if errExec != nil {
		return nil, errExec
	}

	return parseEntries(resp), nil
}

func (s *Server) Mutes(ctx context.Context) ([]ListEntry, error) {
	resp, errExec := s.Exec(ctx, "mutelist")
	if errExec != nil {
		return nil, errExec
	}

	return parseEntries(resp), nil
}

// MatchTimeLeft returns the remaining match time, 0 when the server does not report one.
func (s *Server) MatchTimeLeft(ctx context.Context) (time.Duration, error) {
	resp, errExec := s.Exec(ctx, "getmatchduration")
	if errExec != nil {
		return 0, errExec
	}

	return parseMatchDuration(resp), nil
}

// parseInfo reads the positional "key: value" lines of the info command.
func parseInfo(resp string) ServerInfo {
	var values [5]string

	for idx, line := range strings.Split(strings.TrimSpace(resp), "\n") {
		if idx >= len(values) {
			break
		}

		if _, value, found := strings.Cut(line, ": "); found {
			values[idx] = strings.TrimSpace(value)
		}
	}

	return ServerInfo{
		Hostname: values[0],
		Name:     values[1],
		Version:  values[2],
		GameMode: values[3],
		Map:      values[4],
	}
}

func parsePlayerList(resp string) []store.PlayerIdentity {
	var players []store.PlayerIdentity

	for _, line := range strings.Split(resp, "\n") {
		id, name, found := strings.Cut(strings.TrimSpace(line), ", ")
		if !found || id == "" {
			continue
		}

		players = append(players, store.PlayerIdentity{
			ID:   id,
			Name: strings.TrimSpace(name),
			IDs:  store.NewPlatformIDs(id),
		})
	}

	return players
}

func parseEntries(resp string) []ListEntry {
	var entries []ListEntry

	for _, line := range strings.Split(resp, "\n") {
		id, rawDuration, found := strings.Cut(strings.TrimSpace(line), ", ")
		if !found || id == "" {
			continue
		}

		duration, errDuration := strconv.Atoi(strings.TrimSpace(rawDuration))
		if errDuration != nil {
			duration = 0
		}

		entries = append(entries, ListEntry{ID: id, Duration: duration})
	}

	return entries
}

func parseMatchDuration(resp string) time.Duration {
	line, _, _ := strings.Cut(resp, "\n")

	match := rxMatchDuration.FindStringSubmatch(line)
	if match == nil {
		return 0
	}

	seconds, errSeconds := strconv.Atoi(match[1])
	if errSeconds != nil {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
