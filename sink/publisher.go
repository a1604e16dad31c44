// Package sink forwards committed engine events to external message buses.
package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	swap "github.com/kaifufi/p2p-swap-go"
	"go.uber.org/zap"
)

// Publisher defaults
const (
	DefaultBuffer       = 1024
	DefaultWriteTimeout = 5 * time.Second
)

// ErrClosed is returned when writing through a closed publisher
var ErrClosed = errors.New("publisher closed")

// Message is one encoded event ready for a bus
type Message struct {
	Type  swap.EventType
	Key   string
	Value []byte
}

// Writer delivers messages to a bus
type Writer interface {
	Write(ctx context.Context, m Message) error
	Close() error
}

type Config struct {
	Buffer       int
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// Publisher is an EventSink that hands events to a Writer on its own
// goroutine. Engine calls never wait on the bus; when the queue is full the
// event is dropped and logged.
type Publisher struct {
	w      Writer
	config Config
	log    *zap.Logger

	mu     sync.RWMutex
	queue  chan Message
	closed bool
	done   chan struct{}
}

// NewPublisher starts a publisher draining into w
func NewPublisher(w Writer, config Config) *Publisher {
	if config.Buffer <= 0 {
		config.Buffer = DefaultBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	p := &Publisher{
		w:      w,
		config: config,
		log:    config.Logger,
		queue:  make(chan Message, config.Buffer),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish encodes e and queues it for delivery
func (p *Publisher) Publish(_ context.Context, e swap.Event) {
	value, err := swap.MarshalEvent(e)
	if err != nil {
		p.log.Error("failed to marshal event", zap.String("type", string(e.Type())), zap.Error(err))
		return
	}
	m := Message{Type: e.Type(), Key: EventKey(e), Value: value}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("event published after close", zap.String("type", string(m.Type)))
		return
	}
	select {
	case p.queue <- m:
	default:
		p.log.Warn("event queue full, dropping event", zap.String("type", string(m.Type)), zap.String("key", m.Key))
	}
}

// Close stops accepting events, delivers what is queued and closes the writer
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.w.Close()
}

func (p *Publisher) run() {
	defer close(p.done)
	for m := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.WriteTimeout)
		err := p.w.Write(ctx, m)
		cancel()
		if err != nil {
			p.log.Error("failed to deliver event",
				zap.String("type", string(m.Type)),
				zap.String("key", m.Key),
				zap.Error(err),
			)
		}
	}
}

// EventKey returns the account an event is ordered by: the maker for swaps
// and cancels, the approver for grants.
func EventKey(e swap.Event) string {
	switch v := e.(type) {
	case swap.SwapEvent:
		return v.Order.Maker.Wallet.Hex()
	case swap.CancelEvent:
		return v.Maker.Hex()
	case swap.AuthorizationEvent:
		return v.Approver.Hex()
	case swap.RevocationEvent:
		return v.Approver.Hex()
	}
	return ""
}
