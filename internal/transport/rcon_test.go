package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type packet struct {
	body string
	id   int
}

type fakeConsole struct {
	mu      sync.Mutex
	nextID  int
	written chan string
	packets chan packet
	errs    chan error
	closed  chan struct{}
	once    sync.Once
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		nextID:  1,
		written: make(chan string, 10),
		packets: make(chan packet, 10),
		errs:    make(chan error, 10),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConsole) Write(cmd string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.written <- cmd

	return id, nil
}

func (c *fakeConsole) Read() (string, int, error) {
	select {
	case p := <-c.packets:
		return p.body, p.id, nil
	case errRead := <-c.errs:
		return "", 0, errRead
	case <-c.closed:
		return "", 0, errors.New("use of closed network connection")
	}
}

func (c *fakeConsole) Close() error {
	c.once.Do(func() { close(c.closed) })

	return nil
}

func newTestDialer(fake *fakeConsole, errDial error) *RCONDialer {
	dialer := NewRCONDialer(zap.NewNop(), time.Second)
	dialer.dial = func(_ context.Context, _ string, _ string, _ time.Duration) (console, error) {
		if errDial != nil {
			return nil, errDial
		}

		return fake, nil
	}

	return dialer
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case evt, ok := <-events:
		require.True(t, ok, "events closed")

		return evt
	case <-time.After(time.Second * 2):
		t.Fatal("timed out waiting for event")
	}

	return Event{}
}

func TestSession(t *testing.T) {
	fake := newFakeConsole()
	conn, errDial := newTestDialer(fake, nil).Dial(context.Background(), "127.0.0.1:7778", "secret")
	require.NoError(t, errDial)

	require.Equal(t, EventConnected, nextEvent(t, conn.Events()).Kind)
	require.Equal(t, EventAuthenticated, nextEvent(t, conn.Events()).Kind)

	type result struct {
		resp string
		err  error
	}

	results := make(chan result, 1)

	go func() {
		resp, errExec := conn.Exec(context.Background(), "alive")
		results <- result{resp, errExec}
	}()

	select {
	case cmd := <-fake.written:
		require.Equal(t, "alive", cmd)
	case <-time.After(time.Second * 2):
		t.Fatal("command not written")
	}

	fake.packets <- packet{body: "Login: Player (76561198000000000) logged in\nChat: 1, a, (Global) hi\n", id: 40}
	fake.packets <- packet{body: "Alive", id: 1}

	broadcast := nextEvent(t, conn.Events())
	require.Equal(t, EventBroadcast, broadcast.Kind)
	require.Equal(t, "Login: Player (76561198000000000) logged in", broadcast.Line)
	require.Equal(t, "Chat: 1, a, (Global) hi", nextEvent(t, conn.Events()).Line)

	res := <-results
	require.NoError(t, res.err)
	require.Equal(t, "Alive", res.resp)

	require.NoError(t, conn.Close())

	for evt := range conn.Events() {
		if evt.Kind == EventEnd {
			require.ErrorIs(t, evt.Err, ErrClosed)
		}
	}

	_, errExec := conn.Exec(context.Background(), "alive")
	require.ErrorIs(t, errExec, ErrClosed)
}

func TestSessionDialFailure(t *testing.T) {
	errRefused := errors.New("connection refused")
	conn, errDial := newTestDialer(nil, errRefused).Dial(context.Background(), "127.0.0.1:7778", "secret")
	require.NoError(t, errDial)

	failure := nextEvent(t, conn.Events())
	require.Equal(t, EventError, failure.Kind)
	require.ErrorIs(t, failure.Err, errRefused)
	require.Equal(t, EventEnd, nextEvent(t, conn.Events()).Kind)

	_, errExec := conn.Exec(context.Background(), "alive")
	require.ErrorIs(t, errExec, ErrNotAuthenticated)
}

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }

func (timeoutError) Timeout() bool { return true }

func (timeoutError) Temporary() bool { return true }

func TestSessionReadTimeout(t *testing.T) {
	fake := newFakeConsole()
	conn, errDial := newTestDialer(fake, nil).Dial(context.Background(), "127.0.0.1:7778", "secret")
	require.NoError(t, errDial)

	require.Equal(t, EventConnected, nextEvent(t, conn.Events()).Kind)
	require.Equal(t, EventAuthenticated, nextEvent(t, conn.Events()).Kind)

	fake.errs <- errors.Wrap(timeoutError{}, "Failed to read response")
	fake.packets <- packet{body: "MatchState: In progress", id: 40}

	broadcast := nextEvent(t, conn.Events())
	require.Equal(t, EventBroadcast, broadcast.Kind, "a timeout keeps the session open")
	require.Equal(t, "MatchState: In progress", broadcast.Line)

	errReset := errors.New("connection reset by peer")
	fake.errs <- errReset

	failure := nextEvent(t, conn.Events())
	require.Equal(t, EventError, failure.Kind)
	require.ErrorIs(t, failure.Err, errReset)

	end := nextEvent(t, conn.Events())
	require.Equal(t, EventEnd, end.Kind)
	require.ErrorIs(t, end.Err, errReset)
}
