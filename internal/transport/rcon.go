package transport

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/leighmacdonald/rcon/rcon"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrNotAuthenticated = errors.New("session not authenticated")
	ErrClosed           = errors.New("session closed")
)

type EventKind int

const (
	EventConnected EventKind = iota
	EventAuthenticated
	EventBroadcast
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventAuthenticated:
		return "authenticated"
	case EventBroadcast:
		return "broadcast"
	case EventError:
		return "error"
	default:
		return "end"
	}
}

// Event is one entry of the ordered stream a session reports. Line is set for broadcasts,
// Err for errors and optionally for the final end.
type Event struct {
	Kind EventKind
	Line string
	Err  error
}

// Conn is a single RCON session. Events is closed after EventEnd.
type Conn interface {
	Exec(ctx context.Context, cmd string) (string, error)
	Events() <-chan Event
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, addr string, password string) (Conn, error)
}

// console is the subset of *rcon.RemoteConsole used by the session.
type console interface {
	Write(cmd string) (int, error)
	Read() (string, int, error)
	Close() error
}

type dialFunc func(ctx context.Context, addr string, password string, timeout time.Duration) (console, error)

func dialRCON(ctx context.Context, addr string, password string, timeout time.Duration) (console, error) {
	conn, errDial := rcon.Dial(ctx, addr, password, timeout)
	if errDial != nil {
		return nil, errDial
	}

	return conn, nil
}

type RCONDialer struct {
	log     *zap.Logger
	timeout time.Duration
	dial    dialFunc
}

func NewRCONDialer(logger *zap.Logger, timeout time.Duration) *RCONDialer {
	return &RCONDialer{log: logger.Named("rcon"), timeout: timeout, dial: dialRCON}
}

// Dial returns immediately. Connection progress, broadcasts and the end of the session are
// reported through the events of the returned Conn.
func (d *RCONDialer) Dial(ctx context.Context, addr string, password string) (Conn, error) {
	if addr == "" {
		return nil, errors.New("empty rcon address")
	}

	session := &rconSession{
		log:    d.log.With(zap.String("addr", addr)),
		events: make(chan Event, 128),
		done:   make(chan struct{}),
		ended:  make(chan struct{}),
	}

	go session.run(ctx, func(ctx context.Context) (console, error) {
		return d.dial(ctx, addr, password, d.timeout)
	})

	return session, nil
}

type pendingCommand struct {
	id       int
	response chan string
}

type rconSession struct {
	log       *zap.Logger
	events    chan Event
	done      chan struct{}
	ended     chan struct{}
	closeOnce sync.Once

	execMu    sync.Mutex
	sessionMu sync.Mutex
	console   console
	pending   *pendingCommand
}

func (s *rconSession) Events() <-chan Event {
	return s.events
}

func (s *rconSession) emit(evt Event) {
	select {
	case s.events <- evt:
	case <-s.done:
	}
}

func (s *rconSession) run(ctx context.Context, dial func(ctx context.Context) (console, error)) {
	defer close(s.events)
	defer close(s.ended)

	conn, errDial := dial(ctx)
	if errDial != nil {
		s.log.Debug("Failed to dial", zap.Error(errDial))

		s.events <- Event{Kind: EventError, Err: errDial}
		s.events <- Event{Kind: EventEnd, Err: errDial}

		return
	}

	s.sessionMu.Lock()
	select {
	case <-s.done:
		s.sessionMu.Unlock()
		_ = conn.Close()
		s.end(ErrClosed)

		return
	default:
	}
	s.console = conn
	s.sessionMu.Unlock()

	// The library authenticates as part of dialing.
	s.emit(Event{Kind: EventConnected})
	s.emit(Event{Kind: EventAuthenticated})

	s.log.Debug("Session authenticated")

	errRead := s.readLoop()

	s.log.Debug("Session ended", zap.Error(errRead))
	s.end(errRead)
}

// end reports the end of the session without blocking. Consumers also treat the close of the
// channel as the end.
func (s *rconSession) end(err error) {
	select {
	case s.events <- Event{Kind: EventEnd, Err: err}:
	default:
	}
}

func (s *rconSession) readLoop() error {
	for {
		select {
		case <-s.done:
			return ErrClosed
		default:
		}

		resp, respID, errRead := s.console.Read()
		if errRead != nil {
			select {
			case <-s.done:
				return ErrClosed
			default:
			}

			// An idle server sends nothing until the next keepalive answer.
			var netErr net.Error
			if errors.As(errRead, &netErr) && netErr.Timeout() {
				s.log.Debug("Read timed out", zap.Error(errRead))

				continue
			}

			s.emit(Event{Kind: EventError, Err: errRead})

			return errRead
		}

		s.route(resp, respID)
	}
}

// route delivers a packet to the waiting command if the ids match, anything else is an
// unsolicited broadcast.
func (s *rconSession) route(resp string, respID int) {
	s.sessionMu.Lock()
	pending := s.pending

	if pending != nil && pending.id == respID {
		s.pending = nil
		s.sessionMu.Unlock()
		pending.response <- resp

		return
	}
	s.sessionMu.Unlock()

	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.emit(Event{Kind: EventBroadcast, Line: line})
	}
}

func (s *rconSession) Exec(ctx context.Context, cmd string) (string, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	s.sessionMu.Lock()
	if s.console == nil {
		s.sessionMu.Unlock()

		return "", ErrNotAuthenticated
	}

	cmdID, errWrite := s.console.Write(cmd)
	if errWrite != nil {
		s.sessionMu.Unlock()

		return "", errors.Wrap(errWrite, "Failed to send rcon command")
	}

	pending := &pendingCommand{id: cmdID, response: make(chan string, 1)}
	s.pending = pending
	s.sessionMu.Unlock()

	select {
	case resp := <-pending.response:
		return resp, nil
	case <-s.done:
		return "", ErrClosed
	case <-s.ended:
		return "", ErrClosed
	case <-ctx.Done():
		s.sessionMu.Lock()
		if s.pending == pending {
			s.pending = nil
		}
		s.sessionMu.Unlock()

		return "", errors.Wrap(ctx.Err(), "rcon command cancelled")
	}
}

func (s *rconSession) Close() error {
	var errClose error

	s.closeOnce.Do(func() {
		close(s.done)

		s.sessionMu.Lock()
		conn := s.console
		s.sessionMu.Unlock()

		if conn != nil {
			errClose = conn.Close()
		}
	})

	return errClose
}
