package watchdog

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = time.Second * 10
	streamBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Stream fans every dispatched event out to the connected websocket clients as JSON. Slow
// clients miss events instead of holding up the others.
type Stream struct {
	log     *zap.Logger
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

func NewStream(logger *zap.Logger) *Stream {
	return &Stream{log: logger.Named("stream"), clients: map[*streamClient]struct{}{}}
}

func (s *Stream) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.clients)
}

func (s *Stream) Handle(_ context.Context, evt Event) {
	payload, errEncode := json.Marshal(evt)
	if errEncode != nil {
		s.log.Error("Failed to encode event", zap.Error(errEncode))

		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- payload:
		default:
			s.log.Debug("Dropped event for slow client", zap.String("addr", client.conn.RemoteAddr().String()))
		}
	}
}

// ServeHTTP upgrades the request and streams events until either side closes.
func (s *Stream) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	conn, errUpgrade := upgrader.Upgrade(writer, request, nil)
	if errUpgrade != nil {
		s.log.Warn("Failed to upgrade connection", zap.Error(errUpgrade))

		return
	}

	client := &streamClient{conn: conn, send: make(chan []byte, streamBufferSize)}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	done := make(chan struct{})

	go func() {
		defer close(done)

		// Clients never send anything, reading only detects the close.
		for {
			if _, _, errRead := conn.ReadMessage(); errRead != nil {
				return
			}
		}
	}()

	defer func() {
		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()

		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case <-request.Context().Done():
			return
		case payload := <-client.send:
			if errDeadline := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); errDeadline != nil {
				return
			}

			if errWrite := conn.WriteMessage(websocket.TextMessage, payload); errWrite != nil {
				s.log.Debug("Failed to write event", zap.Error(errWrite))

				return
			}
		}
	}
}
