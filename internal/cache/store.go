// Package cache maintains the locally cached, per-role view of orders. A
// store wraps a persistent KV collaborator with an in-memory subscription
// surface: every put runs through the merge engine, listeners in the same
// process are notified synchronously after persistence, and a pluggable
// notifier fans writes out to sibling contexts sharing the same scope key.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"packline/internal/merge"
	"packline/internal/models"
)

// Listener receives the post-merge collection for a scope it subscribed to
type Listener func(models.OrderCollection)

// Notifier carries change notifications between contexts (tabs, windows,
// processes) that share a scope key. Implementations deliver the payload to
// every subscriber of the key, including the publisher's own context; the
// store filters out its own publications.
type Notifier interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Subscribe(key string, handler func(payload []byte)) (func(), error)
}

// envelope is the cross-context notification payload
type envelope struct {
	Origin     string          `json:"origin"`
	Collection json.RawMessage `json:"collection"`
}

// Store is the per-role order cache
type Store struct {
	kv       KV
	notifier Notifier
	origin   string

	mu        sync.Mutex
	listeners map[ScopeKey]map[int]Listener
	unsubs    map[ScopeKey]func()
	nextID    int
}

// Option configures a Store
type Option func(*Store)

// WithNotifier wires a cross-context notifier into the store
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// NewStore creates a cache store over the given KV
func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		origin:    uuid.NewString(),
		listeners: make(map[ScopeKey]map[int]Listener),
		unsubs:    make(map[ScopeKey]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the collection stored under the scope. A missing key yields an
// empty collection. Corrupted stored data is discarded: the store logs,
// writes back an empty collection, and returns it rather than propagating a
// parse failure.
func (s *Store) Get(ctx context.Context, scope ScopeKey) (models.OrderCollection, error) {
	raw, ok, err := s.kv.Get(ctx, string(scope))
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", scope, err)
	}
	if !ok {
		return models.OrderCollection{}, nil
	}

	var collection models.OrderCollection
	if err := json.Unmarshal(raw, &collection); err != nil {
		log.Printf("cache: corrupt data under %s, resetting to empty collection: %v", scope, err)
		empty := models.OrderCollection{}
		if werr := s.persist(ctx, scope, empty); werr != nil {
			log.Printf("cache: failed to self-heal %s: %v", scope, werr)
		}
		return empty, nil
	}
	return collection, nil
}

// Put merges the incoming collection into the stored one, persists the merge
// result, notifies in-process listeners synchronously, and publishes the new
// state to sibling contexts. Returns the merged collection.
func (s *Store) Put(ctx context.Context, scope ScopeKey, incoming models.OrderCollection) (models.OrderCollection, error) {
	existing, err := s.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	merged := merge.Merge(existing, incoming)
	if err := s.persist(ctx, scope, merged); err != nil {
		return nil, err
	}
	s.notifyLocal(scope, merged)
	s.publish(ctx, scope, merged)
	return merged, nil
}

// Remove deletes one order from the scope, bypassing the merge: the merge
// engine never drops orders, so explicit deletions must be applied directly.
// Listeners and sibling contexts are notified with the shrunk collection.
// Returns whether the order was present.
func (s *Store) Remove(ctx context.Context, scope ScopeKey, orderID string) (bool, error) {
	existing, err := s.Get(ctx, scope)
	if err != nil {
		return false, err
	}
	remaining := make(models.OrderCollection, 0, len(existing))
	for i := range existing {
		if existing[i].OrderID == orderID {
			continue
		}
		remaining = append(remaining, existing[i])
	}
	if len(remaining) == len(existing) {
		return false, nil
	}
	if err := s.persist(ctx, scope, remaining); err != nil {
		return false, err
	}
	s.notifyLocal(scope, remaining)
	s.publish(ctx, scope, remaining)
	return true, nil
}

// Seed stores a collection verbatim, bypassing the merge. Only the initial
// load from the backing store uses this; every later write goes through Put.
func (s *Store) Seed(ctx context.Context, scope ScopeKey, collection models.OrderCollection) error {
	if err := s.persist(ctx, scope, collection); err != nil {
		return err
	}
	s.notifyLocal(scope, collection)
	s.publish(ctx, scope, collection)
	return nil
}

// Subscribe registers a listener for a scope and returns its unsubscribe
// function. The first subscription for a scope also attaches the
// cross-context notifier for it.
func (s *Store) Subscribe(scope ScopeKey, l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listeners[scope] == nil {
		s.listeners[scope] = make(map[int]Listener)
	}
	id := s.nextID
	s.nextID++
	s.listeners[scope][id] = l

	if s.notifier != nil {
		if _, attached := s.unsubs[scope]; !attached {
			unsub, err := s.notifier.Subscribe(string(scope), func(payload []byte) {
				s.handleRemote(scope, payload)
			})
			if err != nil {
				log.Printf("cache: cross-context subscribe failed for %s: %v", scope, err)
			} else {
				s.unsubs[scope] = unsub
			}
		}
	}

	return func() {
		s.mu.Lock()
		delete(s.listeners[scope], id)
		var detach func()
		if len(s.listeners[scope]) == 0 {
			// Last listener gone; release the cross-context subscription too.
			delete(s.listeners, scope)
			if unsub, ok := s.unsubs[scope]; ok {
				detach = unsub
				delete(s.unsubs, scope)
			}
		}
		s.mu.Unlock()
		if detach != nil {
			detach()
		}
	}
}

// GetTimeline returns the stored audit timeline, newest entry first.
// Corruption self-heals to an empty log, same as order scopes.
func (s *Store) GetTimeline(ctx context.Context) ([]models.TimelineEntry, error) {
	raw, ok, err := s.kv.Get(ctx, TimelineKey)
	if err != nil {
		return nil, fmt.Errorf("cache get timeline: %w", err)
	}
	if !ok {
		return []models.TimelineEntry{}, nil
	}
	var entries []models.TimelineEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Printf("cache: corrupt timeline log, resetting: %v", err)
		return []models.TimelineEntry{}, s.writeTimeline(ctx, []models.TimelineEntry{})
	}
	return entries, nil
}

// PrependTimeline pushes a new entry onto the front of the stored log
func (s *Store) PrependTimeline(ctx context.Context, entry models.TimelineEntry) error {
	entries, err := s.GetTimeline(ctx)
	if err != nil {
		return err
	}
	entries = append([]models.TimelineEntry{entry}, entries...)
	return s.writeTimeline(ctx, entries)
}

func (s *Store) writeTimeline(ctx context.Context, entries []models.TimelineEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}
	if err := s.kv.Set(ctx, TimelineKey, raw); err != nil {
		return fmt.Errorf("cache set timeline: %w", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, scope ScopeKey, collection models.OrderCollection) error {
	raw, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("marshal collection: %w", err)
	}
	if err := s.kv.Set(ctx, string(scope), raw); err != nil {
		return fmt.Errorf("cache set %s: %w", scope, err)
	}
	return nil
}

func (s *Store) notifyLocal(scope ScopeKey, collection models.OrderCollection) {
	s.mu.Lock()
	ls := make([]Listener, 0, len(s.listeners[scope]))
	for _, l := range s.listeners[scope] {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(collection)
	}
}

func (s *Store) publish(ctx context.Context, scope ScopeKey, collection models.OrderCollection) {
	if s.notifier == nil {
		return
	}
	raw, err := json.Marshal(collection)
	if err != nil {
		log.Printf("cache: marshal for publish failed: %v", err)
		return
	}
	payload, err := json.Marshal(envelope{Origin: s.origin, Collection: raw})
	if err != nil {
		log.Printf("cache: marshal envelope failed: %v", err)
		return
	}
	if err := s.notifier.Publish(ctx, string(scope), payload); err != nil {
		log.Printf("cache: cross-context publish failed for %s: %v", scope, err)
	}
}

// handleRemote processes a notification from a sibling context. Malformed
// payloads are logged and dropped; the local cache keeps its last good state.
func (s *Store) handleRemote(scope ScopeKey, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("cache: dropping malformed notification on %s: %v", scope, err)
		return
	}
	if env.Origin == s.origin {
		return
	}
	var collection models.OrderCollection
	if err := json.Unmarshal(env.Collection, &collection); err != nil {
		log.Printf("cache: dropping malformed collection on %s: %v", scope, err)
		return
	}
	s.notifyLocal(scope, collection)
}
