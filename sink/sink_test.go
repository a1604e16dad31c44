package sink

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	swap "github.com/kaifufi/p2p-swap-go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	maker = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	taker = common.HexToAddress("0x00000000000000000000000000000000000b0b00")
)

type recordingWriter struct {
	mu       sync.Mutex
	messages []Message
	block    chan struct{}
	closed   bool
}

func (w *recordingWriter) Write(_ context.Context, m Message) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, m)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) snapshot() []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Message(nil), w.messages...)
}

func TestPublisherDeliversInOrder(t *testing.T) {
	w := &recordingWriter{}
	p := NewPublisher(w, Config{})

	order := swap.Order{ID: big.NewInt(1), Maker: swap.Party{Wallet: maker}, Taker: swap.Party{Wallet: taker}}
	p.Publish(context.Background(), swap.SwapEvent{Order: order, Signer: maker, Sender: taker})
	p.Publish(context.Background(), swap.CancelEvent{Maker: maker, ID: big.NewInt(2)})
	require.NoError(t, p.Close())

	got := w.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, swap.EventTypeSwap, got[0].Type)
	assert.Equal(t, maker.Hex(), got[0].Key)
	assert.Equal(t, swap.EventTypeCancel, got[1].Type)

	decoded, err := swap.UnmarshalEvent(got[1].Value)
	require.NoError(t, err)
	assert.Equal(t, int64(2), decoded.(swap.CancelEvent).ID.Int64())
	assert.True(t, w.closed)

	assert.ErrorIs(t, p.Close(), ErrClosed)
	p.Publish(context.Background(), swap.CancelEvent{Maker: maker, ID: big.NewInt(3)})
	assert.Len(t, w.snapshot(), 2)
}

func TestPublisherDropsWhenFull(t *testing.T) {
	w := &recordingWriter{block: make(chan struct{})}
	p := NewPublisher(w, Config{Buffer: 1})

	// the first event is held by the blocked writer, the second fills the queue
	p.Publish(context.Background(), swap.CancelEvent{Maker: maker, ID: big.NewInt(1)})
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, time.Millisecond)
	p.Publish(context.Background(), swap.CancelEvent{Maker: maker, ID: big.NewInt(2)})
	p.Publish(context.Background(), swap.CancelEvent{Maker: maker, ID: big.NewInt(3)})

	close(w.block)
	require.NoError(t, p.Close())
	assert.Len(t, w.snapshot(), 2)
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, maker.Hex(), EventKey(swap.AuthorizationEvent{Approver: maker, Delegate: taker}))
	assert.Equal(t, maker.Hex(), EventKey(swap.RevocationEvent{Approver: maker, Delegate: taker}))
}

type fakeKafka struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafka) Close() error { return nil }

func TestKafkaWriter(t *testing.T) {
	fake := &fakeKafka{}
	w := &KafkaWriter{w: fake}

	require.NoError(t, w.Write(context.Background(), Message{Type: swap.EventTypeCancel, Key: maker.Hex(), Value: []byte(`{}`)}))
	require.Len(t, fake.msgs, 1)
	assert.Equal(t, []byte(maker.Hex()), fake.msgs[0].Key)
	require.Len(t, fake.msgs[0].Headers, 1)
	assert.Equal(t, HeaderEventType, fake.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte("cancel"), fake.msgs[0].Headers[0].Value)

	fake.err = errors.New("leader not available")
	assert.ErrorContains(t, w.Write(context.Background(), Message{Type: swap.EventTypeCancel}), "leader not available")
}

func TestNewKafkaWriterValidation(t *testing.T) {
	_, err := NewKafkaWriter(swap.KafkaConfig{Topic: "swap-events"})
	assert.Error(t, err)
	_, err = NewKafkaWriter(swap.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	w, err := NewKafkaWriter(swap.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "swap-events"})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}

type fakeRedis struct {
	channels []string
	payloads []interface{}
	err      error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, message)
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisWriter(t *testing.T) {
	fake := &fakeRedis{}
	w := &RedisWriter{client: fake, channel: "swap"}

	require.NoError(t, w.Write(context.Background(), Message{Type: swap.EventTypeAuthorization, Value: []byte(`{"type":"authorization"}`)}))
	assert.Equal(t, []string{"swap.authorization"}, fake.channels)
	assert.Equal(t, []byte(`{"type":"authorization"}`), fake.payloads[0])

	fake.err = errors.New("connection refused")
	assert.ErrorContains(t, w.Write(context.Background(), Message{Type: swap.EventTypeSwap}), "redis publish")
}

func TestNewRedisWriterValidation(t *testing.T) {
	_, err := NewRedisWriter(context.Background(), swap.RedisConfig{Channel: "swap"})
	assert.Error(t, err)
	_, err = NewRedisWriter(context.Background(), swap.RedisConfig{Addr: "localhost:6379"})
	assert.Error(t, err)
}

func TestPublisherAsEngineSink(t *testing.T) {
	w := &recordingWriter{}
	p := NewPublisher(w, Config{})

	engine, err := swap.NewEngine(swap.EngineConfig{
		Address: common.HexToAddress("0x5ca1ab1e00000000000000000000000000000001"),
		Sinks:   []swap.EventSink{p},
	})
	require.NoError(t, err)

	_, err = engine.Authorize(context.Background(), maker, taker, uint64(time.Now().Add(time.Hour).Unix()))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	got := w.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, swap.EventTypeAuthorization, got[0].Type)
	assert.Equal(t, maker.Hex(), got[0].Key)
}
