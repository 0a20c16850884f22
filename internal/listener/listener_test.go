package listener

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zain-surge/thevillage-backend/internal/domain"
	"github.com/Zain-surge/thevillage-backend/internal/router"
)

type fakeSource struct {
	ch chan domain.Notification
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan domain.Notification, 16)}
}

func (s *fakeSource) Next(ctx context.Context) (domain.Notification, error) {
	select {
	case n, ok := <-s.ch:
		if !ok {
			return domain.Notification{}, errors.New("connection reset by peer")
		}
		return n, nil
	case <-ctx.Done():
		return domain.Notification{}, ctx.Err()
	}
}

func (s *fakeSource) Close(context.Context) error { return nil }

func (s *fakeSource) emit(channel domain.Channel, payload string) {
	s.ch <- domain.Notification{Channel: channel, Payload: payload}
}

type fakeStore struct {
	mu      sync.Mutex
	orders  map[int64]*domain.OrderDetail
	fetches atomic.Int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[int64]*domain.OrderDetail{}}
}

func (s *fakeStore) FetchOrderDetail(_ context.Context, orderID int64) (*domain.OrderDetail, error) {
	s.fetches.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return detail, nil
}

func (s *fakeStore) add(detail *domain.OrderDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[detail.OrderID] = detail
}

// capturePublisher exposes published events over a channel so tests can wait
// for pipeline progress without sleeping.
type capturePublisher struct {
	events chan domain.Event
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{events: make(chan domain.Event, 16)}
}

func (p *capturePublisher) Publish(event domain.Event) {
	p.events <- event
}

func (p *capturePublisher) next(t *testing.T) domain.Event {
	t.Helper()
	select {
	case event := <-p.events:
		return event
	case <-time.After(time.Second):
		t.Fatal("no event published in time")
		return domain.Event{}
	}
}

func (p *capturePublisher) assertNone(t *testing.T) {
	t.Helper()
	select {
	case event := <-p.events:
		t.Fatalf("unexpected event published: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

type captureSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (s *captureSink) Append(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *captureSink) appended() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// blockingSink parks every Append until its context is cancelled, modelling
// an unreachable mirror broker.
type blockingSink struct {
	appends atomic.Int64
}

func (s *blockingSink) Append(ctx context.Context, _ domain.Event) error {
	s.appends.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func pizzacoOrder() *domain.OrderDetail {
	return &domain.OrderDetail{
		OrderID:    42,
		Tenant:     "pizzaco",
		Origin:     domain.OriginStorefront,
		Status:     domain.StatusPending,
		TotalPrice: 28.50,
		Customer:   domain.Customer{Name: "Ada", City: "London"},
		Items: []domain.OrderItem{
			{ItemName: "Margherita", ItemType: "pizza", Quantity: 1, TotalPrice: 12.50},
			{ItemName: "Diavola", ItemType: "pizza", Quantity: 1, TotalPrice: 16.00},
		},
	}
}

type listenerFixture struct {
	source    *fakeSource
	store     *fakeStore
	publisher *capturePublisher
	sink      *captureSink

	runErr error
	done   chan struct{}
	cancel context.CancelFunc
}

func startListener(t *testing.T, enrichDelay time.Duration, clock clockwork.Clock) *listenerFixture {
	t.Helper()
	f := newListenerFixture()
	f.start(t, enrichDelay, clock, f.sink, nil)
	return f
}

func startListenerWithSink(t *testing.T, sink domain.EventSink) *listenerFixture {
	t.Helper()
	f := newListenerFixture()
	f.start(t, 0, clockwork.NewRealClock(), sink, nil)
	return f
}

func startListenerWithSeq(t *testing.T, seq *Sequence) *listenerFixture {
	t.Helper()
	f := newListenerFixture()
	f.start(t, 0, clockwork.NewRealClock(), f.sink, seq)
	return f
}

func newListenerFixture() *listenerFixture {
	return &listenerFixture{
		source:    newFakeSource(),
		store:     newFakeStore(),
		publisher: newCapturePublisher(),
		sink:      &captureSink{},
		done:      make(chan struct{}),
	}
}

func (f *listenerFixture) start(t *testing.T, enrichDelay time.Duration, clock clockwork.Clock, sink domain.EventSink, seq *Sequence) {
	t.Helper()

	rt := router.New([]domain.Origin{domain.OriginStorefront})
	l := New(f.source, f.store, rt, f.publisher, sink, clock, enrichDelay, seq)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() {
		f.runErr = l.Run(ctx)
		close(f.done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(time.Second):
			t.Error("listener did not stop")
		}
	})
}

func (f *listenerFixture) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case <-f.done:
		return f.runErr
	case <-time.After(time.Second):
		t.Fatal("listener did not exit in time")
		return nil
	}
}

func TestListener_NewOrderEnrichedAndPublished(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())
	f.store.add(pizzacoOrder())

	f.source.emit(domain.ChannelNewOrder, "42")

	event := f.publisher.next(t)
	assert.Equal(t, domain.EventOrderCreated, event.Type)
	assert.Equal(t, "pizzaco", event.Tenant)
	assert.Equal(t, uint64(1), event.Seq)

	var detail domain.OrderDetail
	require.NoError(t, json.Unmarshal(event.Data, &detail))
	assert.Equal(t, int64(42), detail.OrderID)
	assert.Len(t, detail.Items, 2)
	assert.Equal(t, "Ada", detail.Customer.Name)
}

func TestListener_NotYetVisibleOrderDroppedLoopContinues(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())

	// Order 99 has no visible rows; the event is dropped without retries.
	f.source.emit(domain.ChannelNewOrder, "99")

	// The next unrelated notification is still processed.
	f.source.emit(domain.ChannelOrderStatus, `{"tenant":"pizzaco","order_id":42,"status":"ready","driver_id":7}`)

	event := f.publisher.next(t)
	assert.Equal(t, domain.EventOrderStatusChange, event.Type)
	f.publisher.assertNone(t)
	assert.Equal(t, int64(1), f.store.fetches.Load(), "no retry after a zero-row fetch")
}

func TestListener_StatusChangeForwardedWithoutEnrichment(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())

	payload := `{"tenant":"pizzaco","order_id":42,"status":"ready","driver_id":7}`
	f.source.emit(domain.ChannelOrderStatus, payload)

	event := f.publisher.next(t)
	assert.Equal(t, domain.EventOrderStatusChange, event.Type)
	assert.Equal(t, "pizzaco", event.Tenant)
	assert.JSONEq(t, payload, string(event.Data))
	assert.Zero(t, f.store.fetches.Load(), "self-contained payloads need no fetch")
}

func TestListener_NonStorefrontOrderSuppressed(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())

	phoneOrder := pizzacoOrder()
	phoneOrder.OrderID = 7
	phoneOrder.Origin = domain.OriginPhone
	f.store.add(phoneOrder)

	f.source.emit(domain.ChannelNewOrder, "7")
	f.publisher.assertNone(t)
}

func TestListener_MalformedPayloadSkipped(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())

	f.source.emit(domain.ChannelOfferUpdate, `{broken`)
	f.source.emit(domain.ChannelNewOrder, "not-a-number")
	f.source.emit(domain.ChannelShopStatus, `{"tenant":"pizzaco","shop_open":false}`)

	event := f.publisher.next(t)
	assert.Equal(t, domain.EventShopStatusChanged, event.Type)
	f.publisher.assertNone(t)
}

func TestListener_MissingTenantDropped(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())

	f.source.emit(domain.ChannelShopStatus, `{"shop_open":true}`)
	f.publisher.assertNone(t)
}

func TestListener_SequenceNumbersAreMonotonic(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())

	for range 3 {
		f.source.emit(domain.ChannelShopStatus, `{"tenant":"pizzaco","shop_open":true}`)
	}

	for want := uint64(1); want <= 3; want++ {
		event := f.publisher.next(t)
		assert.Equal(t, want, event.Seq)
	}
}

func TestListener_DroppedEventsConsumeNoSequence(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())

	f.source.emit(domain.ChannelOfferUpdate, `{broken`)
	f.source.emit(domain.ChannelShopStatus, `{"tenant":"pizzaco","shop_open":true}`)

	event := f.publisher.next(t)
	assert.Equal(t, uint64(1), event.Seq)
}

func TestListener_SequenceSurvivesRestart(t *testing.T) {
	seq := &Sequence{}

	first := startListenerWithSeq(t, seq)
	first.source.emit(domain.ChannelShopStatus, `{"tenant":"pizzaco","shop_open":true}`)
	assert.Equal(t, uint64(1), first.publisher.next(t).Seq)

	// Subscription loss tears the listener down; the supervisor builds a
	// fresh one sharing the same counter.
	close(first.source.ch)
	require.Error(t, first.waitDone(t))

	second := startListenerWithSeq(t, seq)
	second.source.emit(domain.ChannelShopStatus, `{"tenant":"pizzaco","shop_open":false}`)
	assert.Equal(t, uint64(2), second.publisher.next(t).Seq)
}

func TestListener_SubscriptionLossIsFatal(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())

	close(f.source.ch)

	err := f.waitDone(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscription lost")
}

func TestListener_CancelStopsRun(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())

	f.cancel()

	assert.ErrorIs(t, f.waitDone(t), context.Canceled)
}

func TestListener_EnrichDelayBeforeFetch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := startListener(t, 3*time.Second, clock)
	f.store.add(pizzacoOrder())

	f.source.emit(domain.ChannelNewOrder, "42")

	// The listener parks on the delay timer before touching the store.
	clock.BlockUntil(1)
	assert.Zero(t, f.store.fetches.Load())
	f.publisher.assertNone(t)

	clock.Advance(3 * time.Second)

	event := f.publisher.next(t)
	assert.Equal(t, domain.EventOrderCreated, event.Type)
	assert.Equal(t, int64(1), f.store.fetches.Load())
}

func TestListener_SinkMirrorsPublishedEvents(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())

	f.source.emit(domain.ChannelShopStatus, `{"tenant":"pizzaco","shop_open":false}`)
	f.publisher.next(t)

	require.Eventually(t, func() bool {
		return len(f.sink.appended()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "pizzaco", f.sink.appended()[0].Tenant)
}

func TestListener_SinkFailureDoesNotAffectPush(t *testing.T) {
	f := startListener(t, 0, clockwork.NewRealClock())
	f.sink.failWith(errors.New("broker unreachable"))

	f.source.emit(domain.ChannelShopStatus, `{"tenant":"pizzaco","shop_open":false}`)
	f.source.emit(domain.ChannelShopStatus, `{"tenant":"pizzaco","shop_open":true}`)

	first := f.publisher.next(t)
	second := f.publisher.next(t)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
}

func TestListener_HungMirrorDoesNotDelayPush(t *testing.T) {
	sink := &blockingSink{}
	f := startListenerWithSink(t, sink)

	f.source.emit(domain.ChannelShopStatus, `{"tenant":"pizzaco","shop_open":false}`)
	f.source.emit(domain.ChannelShopStatus, `{"tenant":"pizzaco","shop_open":true}`)

	// Both pushes arrive while the mirror sits inside Append; publisher.next
	// fails the test if delivery takes longer than a second.
	first := f.publisher.next(t)
	second := f.publisher.next(t)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)

	require.Eventually(t, func() bool {
		return sink.appends.Load() >= 1
	}, time.Second, 10*time.Millisecond)
}
