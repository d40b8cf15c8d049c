package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packline/internal/ledger"
	"packline/internal/models"
)

func testOrder(id, number string, glassDeltas ...int) models.Order {
	it := models.LineItem{ItemID: "g1", Name: "bottle", RequiredQuantity: 100}
	for i, d := range glassDeltas {
		_ = ledger.ApplyCompletionAt(&it, d, time.Date(2025, 6, 1, 9, i, 0, 0, time.UTC))
	}
	o := models.Order{
		OrderID:     id,
		OrderNumber: number,
		CreatedAt:   time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		OrderDetails: map[models.TeamType][]models.LineItem{
			models.TeamGlass: {it},
		},
	}
	ledger.RefreshOrder(&o)
	return o
}

func TestStore_GetMissingScopeReturnsEmpty(t *testing.T) {
	s := NewStore(NewMemoryKV())

	got, err := s.Get(context.Background(), DispatcherScope())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_GetCorruptDataSelfHeals(t *testing.T) {
	kv := NewMemoryKV()
	scope := TeamScope(models.TeamGlass)
	require.NoError(t, kv.Set(context.Background(), string(scope), []byte("{not json")))

	s := NewStore(kv)
	got, err := s.Get(context.Background(), scope)
	require.NoError(t, err, "parse failures must not escape")
	assert.Empty(t, got)

	// The corrupt value was replaced with an empty collection.
	raw, ok, err := kv.Get(context.Background(), string(scope))
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, "[]", string(raw))
}

func TestStore_PutMergesIntoExisting(t *testing.T) {
	s := NewStore(NewMemoryKV())
	scope := DispatcherScope()
	ctx := context.Background()

	_, err := s.Put(ctx, scope, models.OrderCollection{testOrder("o1", "PO-100", 10)})
	require.NoError(t, err)

	merged, err := s.Put(ctx, scope, models.OrderCollection{testOrder("o2", "PO-200")})
	require.NoError(t, err)

	assert.Len(t, merged, 2)
	got, err := s.Get(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_SeedOverwrites(t *testing.T) {
	s := NewStore(NewMemoryKV())
	scope := DispatcherScope()
	ctx := context.Background()

	_, err := s.Put(ctx, scope, models.OrderCollection{testOrder("o1", "PO-100")})
	require.NoError(t, err)

	require.NoError(t, s.Seed(ctx, scope, models.OrderCollection{testOrder("o2", "PO-200")}))

	got, err := s.Get(ctx, scope)
	require.NoError(t, err)
	require.Len(t, got, 1, "seed bypasses the merge and overwrites")
	assert.Equal(t, "o2", got[0].OrderID)
}

func TestStore_SubscribeNotifiedSynchronouslyAfterPut(t *testing.T) {
	s := NewStore(NewMemoryKV())
	scope := TeamScope(models.TeamCaps)

	var seen []models.OrderCollection
	unsub := s.Subscribe(scope, func(c models.OrderCollection) {
		seen = append(seen, c)
	})
	defer unsub()

	_, err := s.Put(context.Background(), scope, models.OrderCollection{testOrder("o1", "PO-100")})
	require.NoError(t, err)

	require.Len(t, seen, 1, "listener runs synchronously within Put")
	assert.Len(t, seen[0], 1)
}

func TestStore_UnsubscribeStopsNotifications(t *testing.T) {
	s := NewStore(NewMemoryKV())
	scope := TeamScope(models.TeamCaps)

	calls := 0
	unsub := s.Subscribe(scope, func(models.OrderCollection) { calls++ })
	unsub()

	_, err := s.Put(context.Background(), scope, models.OrderCollection{testOrder("o1", "PO-100")})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestStore_RemoveBypassesMerge(t *testing.T) {
	s := NewStore(NewMemoryKV())
	scope := DispatcherScope()
	ctx := context.Background()

	_, err := s.Put(ctx, scope, models.OrderCollection{
		testOrder("o1", "PO-100"),
		testOrder("o2", "PO-200"),
	})
	require.NoError(t, err)

	var notified models.OrderCollection
	s.Subscribe(scope, func(c models.OrderCollection) { notified = c })

	removed, err := s.Remove(ctx, scope, "o1")
	require.NoError(t, err)
	assert.True(t, removed)

	got, err := s.Get(ctx, scope)
	require.NoError(t, err)
	require.Len(t, got, 1, "the merge never deletes; Remove must")
	assert.Equal(t, "o2", got[0].OrderID)

	require.Len(t, notified, 1, "listeners see the shrunk collection")

	removed, err = s.Remove(ctx, scope, "o1")
	require.NoError(t, err)
	assert.False(t, removed, "removing an absent order is a no-op")
}

func TestStore_LastUnsubscribeDetachesNotifier(t *testing.T) {
	notifier := newNotifierStub()
	s := NewStore(NewMemoryKV(), WithNotifier(notifier))
	scope := TeamScope(models.TeamGlass)

	unsubA := s.Subscribe(scope, func(models.OrderCollection) {})
	unsubB := s.Subscribe(scope, func(models.OrderCollection) {})
	require.Equal(t, 1, notifier.subs, "one notifier subscription per scope")

	unsubA()
	assert.Zero(t, notifier.detached, "a remaining listener keeps the subscription")

	unsubB()
	assert.Equal(t, 1, notifier.detached, "the last unsubscribe releases it")

	// A later subscriber reattaches from scratch.
	s.Subscribe(scope, func(models.OrderCollection) {})
	assert.Equal(t, 2, notifier.subs)
}

func TestStore_TimelinePrependNewestFirst(t *testing.T) {
	s := NewStore(NewMemoryKV())
	ctx := context.Background()

	first := models.TimelineEntry{ID: "t1", Timestamp: time.Now()}
	second := models.TimelineEntry{ID: "t2", Timestamp: time.Now()}
	require.NoError(t, s.PrependTimeline(ctx, first))
	require.NoError(t, s.PrependTimeline(ctx, second))

	entries, err := s.GetTimeline(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "t2", entries[0].ID)
	assert.Equal(t, "t1", entries[1].ID)
}

func TestStore_CorruptTimelineSelfHeals(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), TimelineKey, []byte("oops")))

	s := NewStore(kv)
	entries, err := s.GetTimeline(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// notifierStub delivers published payloads to every subscriber in-process,
// standing in for the cross-context transport.
type notifierStub struct {
	handlers map[string][]func([]byte)
	subs     int
	detached int
}

func newNotifierStub() *notifierStub {
	return &notifierStub{handlers: map[string][]func([]byte){}}
}

func (n *notifierStub) Publish(_ context.Context, key string, payload []byte) error {
	for _, h := range n.handlers[key] {
		h(payload)
	}
	return nil
}

func (n *notifierStub) Subscribe(key string, handler func([]byte)) (func(), error) {
	n.handlers[key] = append(n.handlers[key], handler)
	n.subs++
	return func() { n.detached++ }, nil
}

func TestStore_CrossContextNotification(t *testing.T) {
	// Two stores over the same KV and notifier act as two sibling contexts
	// sharing a scope.
	kv := NewMemoryKV()
	notifier := newNotifierStub()
	writer := NewStore(kv, WithNotifier(notifier))
	reader := NewStore(kv, WithNotifier(notifier))

	scope := TeamScope(models.TeamGlass)

	var writerSeen, readerSeen int
	writer.Subscribe(scope, func(models.OrderCollection) { writerSeen++ })
	reader.Subscribe(scope, func(models.OrderCollection) { readerSeen++ })

	_, err := writer.Put(context.Background(), scope, models.OrderCollection{testOrder("o1", "PO-100")})
	require.NoError(t, err)

	assert.Equal(t, 1, writerSeen, "writer notifies its own listeners once, not again via the notifier loopback")
	assert.Equal(t, 1, readerSeen, "sibling context sees the write")
}

func TestStore_MalformedNotificationDropped(t *testing.T) {
	notifier := newNotifierStub()
	s := NewStore(NewMemoryKV(), WithNotifier(notifier))
	scope := TeamScope(models.TeamGlass)

	calls := 0
	s.Subscribe(scope, func(models.OrderCollection) { calls++ })

	require.NoError(t, notifier.Publish(context.Background(), string(scope), []byte("garbage")))
	assert.Zero(t, calls)
}

func TestScopeForRole(t *testing.T) {
	scope, err := ScopeForRole(models.RoleDispatcher, "")
	require.NoError(t, err)
	assert.Equal(t, DispatcherScope(), scope)

	scope, err = ScopeForRole("team", "Glass Line 2")
	require.NoError(t, err)
	assert.Equal(t, TeamScope(models.TeamGlass), scope)

	_, err = ScopeForRole("team", "warehouse")
	assert.Error(t, err)
}
