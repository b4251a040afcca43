package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/services"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	payload []byte
}

type fakeRedis struct {
	published []published
	err       error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.published = append(f.published, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) PSubscribe(context.Context, ...string) *redis.PubSub {
	panic("not used in tests")
}

func TestLocalBroker_Publish(t *testing.T) {
	hub := NewHub(logging.Nop{})
	c := detachedClient("a")
	hub.Join("user_1", c)

	require.NoError(t, NewLocalBroker(hub).Publish(context.Background(), "user_1", []byte("x")))
	assert.Equal(t, []byte("x"), <-c.send)

	require.NoError(t, NewLocalBroker(hub).Publish(context.Background(), "user_404", []byte("x")))
}

func TestRedisBroker_PublishAndDispatch(t *testing.T) {
	hub := NewHub(logging.Nop{})
	c := detachedClient("a")
	hub.Join("user_1", c)

	rc := &fakeRedis{}
	b := NewRedisBroker(rc, hub, logging.Nop{})

	require.NoError(t, b.Publish(context.Background(), "user_1", []byte("frame")))
	require.Len(t, rc.published, 1)
	assert.Equal(t, "sealchat:room:user_1", rc.published[0].channel)

	// nothing is delivered locally until the subscription hands it back
	assert.Empty(t, c.send)

	b.dispatch(&redis.Message{Channel: rc.published[0].channel, Payload: string(rc.published[0].payload)})
	assert.Equal(t, []byte("frame"), <-c.send)

	b.dispatch(&redis.Message{Channel: "other:user_1", Payload: "ignored"})
	assert.Empty(t, c.send)

	rc.err = errors.New("connection refused")
	assert.ErrorContains(t, b.Publish(context.Background(), "user_1", []byte("frame")), "connection refused")
}

type failingBroker struct{ failRoom string }

func (f failingBroker) Publish(_ context.Context, room string, _ []byte) error {
	if room == f.failRoom {
		return errors.New("unreachable")
	}
	return nil
}

func TestPublisher_NotifyChatMessage(t *testing.T) {
	hub := NewHub(logging.Nop{})
	a, b := detachedClient("a"), detachedClient("b")
	hub.Join("user_1", a)
	hub.Join("user_2", b)

	msg := &services.ChatMessage{ID: 3, SenderID: 1, ReceiverID: 2, Content: "hi"}
	p := NewPublisher(NewLocalBroker(hub))
	require.NoError(t, p.NotifyChatMessage(context.Background(), []string{"user_1", "user_2"}, msg))

	want := ChatFrame(msg)
	assert.Equal(t, want, <-a.send)
	assert.Equal(t, want, <-b.send)

	err := NewPublisher(failingBroker{failRoom: "user_2"}).NotifyChatMessage(context.Background(), []string{"user_1", "user_2"}, msg)
	assert.ErrorContains(t, err, "room user_2")
}

func TestPublisher_NotifyGroupMessage(t *testing.T) {
	hub := NewHub(logging.Nop{})
	a, b := detachedClient("a"), detachedClient("b")
	hub.Join("user_1", a)
	hub.Join("user_3", b)

	msg := &services.GroupMessageView{ID: 5, GroupID: 7, SenderID: 1, DecryptedContent: "hi all"}
	p := NewPublisher(NewLocalBroker(hub))
	require.NoError(t, p.NotifyGroupMessage(context.Background(), []string{"user_1", "user_2", "user_3"}, msg))

	want := GroupFrame(msg)
	assert.Equal(t, want, <-a.send)
	assert.Equal(t, want, <-b.send)

	err := NewPublisher(failingBroker{failRoom: "user_3"}).NotifyGroupMessage(context.Background(), []string{"user_1", "user_3"}, msg)
	assert.ErrorContains(t, err, "room user_3")
}

type fakeSubscription struct {
	ch     chan *redis.Message
	once   sync.Once
	closed chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{ch: make(chan *redis.Message, 4), closed: make(chan struct{})}
}

func (s *fakeSubscription) Channel(...redis.ChannelOption) <-chan *redis.Message { return s.ch }

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// scriptedSubscriber hands out results in order, one per subscribe call.
type scriptedSubscriber struct {
	mu      sync.Mutex
	results []any // error or *fakeSubscription
	calls   int
}

func (s *scriptedSubscriber) subscribe(context.Context) (subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	if err, ok := r.(error); ok {
		return nil, err
	}
	return r.(*fakeSubscription), nil
}

func (s *scriptedSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newRetryingBroker(hub *Hub, sub *scriptedSubscriber) *RedisBroker {
	b := NewRedisBroker(&fakeRedis{}, hub, logging.Nop{})
	b.subscribe = sub.subscribe
	b.retryBase = time.Millisecond
	b.retryCap = 5 * time.Millisecond
	return b
}

func TestRedisBroker_RunRetriesUntilSubscribed(t *testing.T) {
	hub := NewHub(logging.Nop{})
	c := detachedClient("a")
	hub.Join("user_1", c)

	live := newFakeSubscription()
	refused := errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	sub := &scriptedSubscriber{results: []any{refused, refused, live}}
	b := newRetryingBroker(hub, sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	live.ch <- &redis.Message{Channel: "sealchat:room:user_1", Payload: "frame"}
	select {
	case got := <-c.send:
		assert.Equal(t, []byte("frame"), got)
	case <-time.After(5 * time.Second):
		t.Fatal("frame not delivered after redis came back")
	}
	assert.Equal(t, 3, sub.count())

	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	select {
	case <-live.closed:
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestRedisBroker_RunResubscribesWhenChannelCloses(t *testing.T) {
	hub := NewHub(logging.Nop{})
	c := detachedClient("a")
	hub.Join("user_2", c)

	first, second := newFakeSubscription(), newFakeSubscription()
	sub := &scriptedSubscriber{results: []any{first, second}}
	b := newRetryingBroker(hub, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	close(first.ch)
	second.ch <- &redis.Message{Channel: "sealchat:room:user_2", Payload: "again"}

	select {
	case got := <-c.send:
		assert.Equal(t, []byte("again"), got)
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery after resubscribe")
	}
	assert.Equal(t, 2, sub.count())

	cancel()
	require.NoError(t, <-done)
}

func TestRedisBroker_RunStopsWhileRetrying(t *testing.T) {
	sub := &scriptedSubscriber{results: []any{errors.New("connection refused")}}
	b := newRetryingBroker(NewHub(logging.Nop{}), sub)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.NoError(t, b.Run(ctx))
	assert.Greater(t, sub.count(), 1)
}
