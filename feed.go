package swap

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Feed defaults
const (
	DefaultFeedBuffer       = 64
	DefaultFeedWriteTimeout = 10 * time.Second
	DefaultFeedIdleTimeout  = 3 * HeartbeatInterval
)

// WebSocket action types
const (
	ActionHeartbeat = "HEARTBEAT"
)

// WSMessage represents a control message sent by a subscriber
type WSMessage struct {
	Action string `json:"action"`
}

// FeedConfig holds configuration for the event feed
type FeedConfig struct {
	Buffer       int
	WriteTimeout time.Duration
	// IdleTimeout closes subscribers that send nothing, heartbeats included
	IdleTimeout time.Duration
	CheckOrigin func(r *http.Request) bool
	Logger      *zap.Logger
}

// Feed streams committed engine events to websocket subscribers. It is an
// EventSink and an http.Handler. Subscribers pick event types with the
// "types" query parameter; none selects all.
type Feed struct {
	config   FeedConfig
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

type subscriber struct {
	conn  *websocket.Conn
	send  chan []byte
	types map[EventType]bool
	once  sync.Once
	done  chan struct{}
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// NewFeed creates a new event feed
func NewFeed(config FeedConfig) *Feed {
	if config.Buffer <= 0 {
		config.Buffer = DefaultFeedBuffer
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultFeedWriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = DefaultFeedIdleTimeout
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Feed{
		config:      config,
		upgrader:    websocket.Upgrader{CheckOrigin: config.CheckOrigin},
		log:         config.Logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Publish fans e out to interested subscribers. Subscribers whose buffer is
// full are disconnected.
func (f *Feed) Publish(_ context.Context, e Event) {
	data, err := MarshalEvent(e)
	if err != nil {
		f.log.Error("failed to marshal event", zap.String("type", string(e.Type())), zap.Error(err))
		return
	}

	var slow []*subscriber
	f.mu.RLock()
	for s := range f.subscribers {
		if !s.wants(e.Type()) {
			continue
		}
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	f.mu.RUnlock()

	for _, s := range slow {
		f.log.Warn("dropping slow feed subscriber", zap.String("remote", s.conn.RemoteAddr().String()))
		f.remove(s)
	}
}

// ServeHTTP upgrades the request and streams events until either side closes
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	types, err := parseEventTypes(r.URL.Query().Get("types"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &subscriber{
		conn:  conn,
		send:  make(chan []byte, f.config.Buffer),
		types: types,
		done:  make(chan struct{}),
	}
	if !f.add(s) {
		s.close()
		return
	}

	go f.writeLoop(s)
	f.readLoop(s)
}

// Clients returns the number of connected subscribers
func (f *Feed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// Close disconnects every subscriber and refuses new ones
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	subs := make([]*subscriber, 0, len(f.subscribers))
	for s := range f.subscribers {
		subs = append(subs, s)
	}
	f.subscribers = make(map[*subscriber]struct{})
	f.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

func (f *Feed) add(s *subscriber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.subscribers[s] = struct{}{}
	return true
}

func (f *Feed) remove(s *subscriber) {
	f.mu.Lock()
	delete(f.subscribers, s)
	f.mu.Unlock()
	s.close()
}

// writeLoop drains the subscriber's queue onto the connection
func (f *Feed) writeLoop(s *subscriber) {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				f.log.Debug("feed write failed", zap.Error(err))
				f.remove(s)
				return
			}
		}
	}
}

// readLoop consumes heartbeats and detects disconnects
func (f *Feed) readLoop(s *subscriber) {
	defer f.remove(s)

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(f.config.IdleTimeout))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Debug("feed read failed", zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Action != ActionHeartbeat {
			f.log.Debug("ignoring feed message", zap.ByteString("data", data))
		}
	}
}

func parseEventTypes(raw string) (map[EventType]bool, error) {
	if raw == "" {
		return nil, nil
	}
	types := make(map[EventType]bool)
	for _, name := range strings.Split(raw, ",") {
		t := EventType(strings.TrimSpace(name))
		switch t {
		case EventTypeSwap, EventTypeCancel, EventTypeAuthorization, EventTypeRevocation:
			types[t] = true
		default:
			return nil, &InvalidParamError{Message: "unknown event type: " + string(t)}
		}
	}
	return types, nil
}
