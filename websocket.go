package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Heartbeat interval
	HeartbeatInterval = 30 * time.Second

	// Reconnect settings
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// FeedEventHandler is a callback function for handling feed events
type FeedEventHandler func(e Event)

// WSErrorHandler is a callback function for handling WebSocket errors
type WSErrorHandler func(err error)

// FeedClientConfig holds configuration for the feed client
type FeedClientConfig struct {
	Endpoint             string
	Types                []EventType
	HeartbeatInterval    time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	OnEvent              FeedEventHandler
	OnError              WSErrorHandler
	OnConnect            func()
	OnDisconnect         func()
}

// FeedClient subscribes to a Feed over websocket
type FeedClient struct {
	config           FeedClientConfig
	conn             *websocket.Conn
	mu               sync.RWMutex
	isConnected      bool
	ctx              context.Context
	cancel           context.CancelFunc
	heartbeatTicker  *time.Ticker
	reconnectAttempt int
}

// NewFeedClient creates a new feed client
func NewFeedClient(config FeedClientConfig) *FeedClient {
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = HeartbeatInterval
	}
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	return &FeedClient{config: config}
}

// Connect establishes a WebSocket connection
func (fc *FeedClient) Connect(ctx context.Context) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.isConnected {
		return nil
	}

	u, err := url.Parse(fc.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse feed endpoint: %w", err)
	}
	if len(fc.config.Types) > 0 {
		names := make([]string, len(fc.config.Types))
		for i, t := range fc.config.Types {
			names[i] = string(t)
		}
		q := u.Query()
		q.Set("types", strings.Join(names, ","))
		u.RawQuery = q.Encode()
	}

	fc.ctx, fc.cancel = context.WithCancel(ctx)

	conn, _, err := websocket.DefaultDialer.DialContext(fc.ctx, u.String(), nil)
	if err != nil {
		fc.cancel()
		return fmt.Errorf("failed to connect to feed: %w", err)
	}

	fc.conn = conn
	fc.isConnected = true
	fc.reconnectAttempt = 0

	fc.startHeartbeat()
	go fc.readLoop(fc.ctx, conn)

	if fc.config.OnConnect != nil {
		go fc.config.OnConnect()
	}

	return nil
}

// Disconnect closes the connection and stops reconnecting
func (fc *FeedClient) Disconnect() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.cancel != nil {
		fc.cancel()
	}
	if !fc.isConnected {
		return nil
	}
	fc.isConnected = false

	if fc.heartbeatTicker != nil {
		fc.heartbeatTicker.Stop()
	}

	var err error
	if fc.conn != nil {
		_ = fc.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = fc.conn.Close()
		fc.conn = nil
	}

	if fc.config.OnDisconnect != nil {
		go fc.config.OnDisconnect()
	}

	return err
}

// IsConnected returns the current connection status
func (fc *FeedClient) IsConnected() bool {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.isConnected
}

func (fc *FeedClient) sendMessage(msg interface{}) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if !fc.isConnected || fc.conn == nil {
		return fmt.Errorf("feed not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := fc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// startHeartbeat must be called with the lock held
func (fc *FeedClient) startHeartbeat() {
	ticker := time.NewTicker(fc.config.HeartbeatInterval)
	fc.heartbeatTicker = ticker
	ctx := fc.ctx

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := fc.sendMessage(WSMessage{Action: ActionHeartbeat}); err != nil {
					fc.reportError(fmt.Errorf("heartbeat failed: %w", err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (fc *FeedClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fc.reportError(fmt.Errorf("read error: %w", err))
			}
			fc.handleDisconnect()
			return
		}

		event, err := UnmarshalEvent(data)
		if err != nil {
			fc.reportError(fmt.Errorf("decode event: %w", err))
			continue
		}
		if fc.config.OnEvent != nil {
			fc.config.OnEvent(event)
		}
	}
}

// handleDisconnect handles disconnection and attempts reconnection
func (fc *FeedClient) handleDisconnect() {
	fc.mu.Lock()
	wasConnected := fc.isConnected
	fc.isConnected = false
	if fc.heartbeatTicker != nil {
		fc.heartbeatTicker.Stop()
	}
	if fc.conn != nil {
		_ = fc.conn.Close()
		fc.conn = nil
	}
	ctx := fc.ctx
	fc.mu.Unlock()

	if wasConnected && fc.config.OnDisconnect != nil {
		fc.config.OnDisconnect()
	}

	go fc.attemptReconnect(ctx)
}

func (fc *FeedClient) attemptReconnect(ctx context.Context) {
	for fc.reconnectAttempt < fc.config.MaxReconnectAttempts {
		fc.reconnectAttempt++

		select {
		case <-ctx.Done():
			return
		case <-time.After(fc.config.ReconnectInterval):
		}

		if err := fc.Connect(ctx); err != nil {
			fc.reportError(fmt.Errorf("reconnect attempt %d failed: %w", fc.reconnectAttempt, err))
			continue
		}
		return
	}

	fc.reportError(fmt.Errorf("max reconnect attempts (%d) reached", fc.config.MaxReconnectAttempts))
}

func (fc *FeedClient) reportError(err error) {
	if fc.config.OnError != nil {
		fc.config.OnError(err)
	}
}
