package watchdog

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leighmacdonald/watchdog/internal/cache"
	"github.com/leighmacdonald/watchdog/internal/clock"
	"github.com/leighmacdonald/watchdog/internal/discord"
	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/leighmacdonald/watchdog/internal/transport"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type execFunc func(cmd string) (string, error)

// okResponses answers the commands issued while connecting with canned responses.
func okResponses(admins ...string) execFunc {
	return func(cmd string) (string, error) {
		switch {
		case cmd == "adminlist":
			return strings.Join(admins, "\n"), nil
		case cmd == "alive":
			return "Alive", nil
		case cmd == "info":
			return "ServerName: Test\nServerName: Test One\nVersion: 1\nGameMode: TDM\nMap: Arena", nil
		case strings.HasPrefix(cmd, "kick "):
			return "Kick succeeded", nil
		default:
			return "Command processed successfully", nil
		}
	}
}

type fakeConn struct {
	mu       sync.Mutex
	events   chan transport.Event
	handler  execFunc
	commands []string
	closed   bool
}

func newFakeConn(handler execFunc) *fakeConn {
	return &fakeConn{events: make(chan transport.Event, 32), handler: handler}
}

func (c *fakeConn) Exec(_ context.Context, cmd string) (string, error) {
	c.mu.Lock()
	c.commands = append(c.commands, cmd)
	handler := c.handler
	c.mu.Unlock()

	if handler == nil {
		return "", nil
	}

	return handler(cmd)
}

func (c *fakeConn) Events() <-chan transport.Event {
	return c.events
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.events)
	}

	return nil
}

func (c *fakeConn) emit(evt transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.events <- evt
}

func (c *fakeConn) setHandler(handler execFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler = handler
}

func (c *fakeConn) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.commands...)
}

type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	handler execFunc
}

func (d *fakeDialer) Dial(_ context.Context, _ string, _ string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn := newFakeConn(d.handler)
	d.conns = append(d.conns, conn)

	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.conns[len(d.conns)-1]
}

type fakeHistory struct {
	mu      sync.Mutex
	records []*store.PunishmentRecord
	names   []store.PlayerIdentity
	history store.PlayerHistory
}

func (h *fakeHistory) GetPlayerHistory(_ context.Context, _ []string) (store.PlayerHistory, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.history, nil
}

func (h *fakeHistory) AppendPunishment(_ context.Context, record *store.PunishmentRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)

	return nil
}

func (h *fakeHistory) SaveName(_ context.Context, player store.PlayerIdentity) error {
	if player.Name == "" {
		return store.ErrEmptyValue
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.names = append(h.names, player)

	return nil
}

func (h *fakeHistory) appended() []*store.PunishmentRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]*store.PunishmentRecord(nil), h.records...)
}

type sentText struct {
	server  string
	channel string
	text    string
}

type sentEmbed struct {
	server  string
	channel string
	embed   discord.Embed
}

type fakeNotifier struct {
	mu     sync.Mutex
	texts  []sentText
	embeds []sentEmbed
}

func (n *fakeNotifier) SendText(_ context.Context, server string, channel string, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.texts = append(n.texts, sentText{server: server, channel: channel, text: text})

	return nil
}

func (n *fakeNotifier) SendEmbed(_ context.Context, server string, channel string, embed discord.Embed) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.embeds = append(n.embeds, sentEmbed{server: server, channel: channel, embed: embed})

	return nil
}

func (n *fakeNotifier) textsTo(channel string) []sentText {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []sentText

	for _, text := range n.texts {
		if text.channel == channel {
			out = append(out, text)
		}
	}

	return out
}

func (n *fakeNotifier) sentEmbeds() []sentEmbed {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]sentEmbed(nil), n.embeds...)
}

type fakeArchiver struct {
	err error
}

func (a fakeArchiver) Archive(_ context.Context, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}

	return "https://paste.example.com/abc", nil
}

var errArchive = errors.New("paste service unavailable")

// fakeRunner is a commandRunner that never touches a transport.
type fakeRunner struct {
	mu       sync.Mutex
	name     string
	state    SessionState
	handler  execFunc
	commands []string
}

func (r *fakeRunner) Name() string {
	return r.name
}

func (r *fakeRunner) State() SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

func (r *fakeRunner) Exec(_ context.Context, cmd string) (string, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	handler := r.handler
	r.mu.Unlock()

	return handler(cmd)
}

func (r *fakeRunner) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.commands...)
}

type testRig struct {
	watchdog *Watchdog
	clock    *clock.MockClock
	dialer   *fakeDialer
	history  *fakeHistory
	notifier *fakeNotifier
}

func testServerConfig(name string) ServerConfig {
	return ServerConfig{
		Name:            name,
		Host:            "127.0.0.1",
		Port:            7779,
		Password:        "secret",
		AdminListSaving: true,
		Features:        Features{ChatRelay: true, ActivityFeed: true},
	}
}

func testSettings(servers ...ServerConfig) *Settings {
	settings := NewSettings()
	settings.Servers = servers

	return settings
}

func newTestRig(t *testing.T, settings *Settings) *testRig {
	t.Helper()

	rig := &testRig{
		clock:    clock.NewMock(testEpoch),
		dialer:   &fakeDialer{handler: okResponses()},
		history:  &fakeHistory{},
		notifier: &fakeNotifier{},
	}

	watchdog, errNew := New(zap.NewNop(), Options{
		Settings: settings,
		History:  rig.history,
		Dialer:   rig.dialer,
		Clock:    rig.clock,
		Cache:    cache.NewMemory(time.Hour, rig.clock),
		Notifier: rig.notifier,
		Archiver: fakeArchiver{},
	})
	require.NoError(t, errNew)

	rig.watchdog = watchdog

	return rig
}

func (r *testRig) server(t *testing.T, name string) *Server {
	t.Helper()

	server, errServer := r.watchdog.Server(name)
	require.NoError(t, errServer)

	return server
}

// attach installs a fake authenticated session on the server without running the
// connection loop.
func attach(server *Server, handler execFunc) *fakeConn {
	conn := newFakeConn(handler)

	server.connMu.Lock()
	server.generation++
	server.conn = conn
	server.connMu.Unlock()

	server.setState(StateAuthenticated)

	return conn
}
