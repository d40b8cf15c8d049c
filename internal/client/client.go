// Package client is the role-scoped facade embedded in an interactive
// client: it owns one cache scope, runs local mutations through the ledger
// and merge engine, derives timeline entries from every reconciliation, and
// republishes local changes on the sync channel.
package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"packline/internal/cache"
	"packline/internal/ledger"
	"packline/internal/models"
	"packline/internal/monitoring"
	"packline/internal/timeline"
)

// Backing is the slice of the backing store the client needs: the initial
// load. Everything after that arrives over the sync channel.
type Backing interface {
	ListOrders() (models.OrderCollection, error)
}

// Publisher sends local mutations out on the realtime channel
type Publisher interface {
	PublishUpdate(orderID string, team models.TeamType, items []models.ItemUpdate) error
}

// Client is one role's view of the order state
type Client struct {
	role  string
	team  models.TeamType
	scope cache.ScopeKey

	cache     *cache.Store
	backing   Backing
	publisher Publisher
	monitor   *monitoring.Monitor

	// Serializes reconciliations within this context so snapshot diffs see
	// consistent before/after states.
	mu sync.Mutex
}

// New creates a client for the given role. Team roles resolve their team
// type from the free-text team name; dispatchers use the global scope.
func New(role, teamName string, cacheStore *cache.Store, backing Backing, publisher Publisher, monitor *monitoring.Monitor) (*Client, error) {
	scope, err := cache.ScopeForRole(role, teamName)
	if err != nil {
		return nil, err
	}
	c := &Client{
		role:      role,
		scope:     scope,
		cache:     cacheStore,
		backing:   backing,
		publisher: publisher,
		monitor:   monitor,
	}
	if role != models.RoleDispatcher {
		team, _ := models.ResolveTeamType(teamName)
		c.team = team
	}
	return c, nil
}

// Scope returns the client's cache partition key
func (c *Client) Scope() cache.ScopeKey {
	return c.scope
}

// LoadInitial seeds the cache from the backing store. This is the only write
// that bypasses the merge engine.
func (c *Client) LoadInitial(ctx context.Context) error {
	if c.backing == nil {
		return fmt.Errorf("no backing store configured")
	}
	orders, err := c.backing.ListOrders()
	if err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	return c.cache.Seed(ctx, c.scope, orders)
}

// Orders returns the current cached collection
func (c *Client) Orders(ctx context.Context) (models.OrderCollection, error) {
	return c.cache.Get(ctx, c.scope)
}

// Timeline returns the audit log, newest first
func (c *Client) Timeline(ctx context.Context) ([]models.TimelineEntry, error) {
	return c.cache.GetTimeline(ctx)
}

// Subscribe registers a listener for this client's scope
func (c *Client) Subscribe(l cache.Listener) func() {
	return c.cache.Subscribe(c.scope, l)
}

// ApplyCompletion records a completed quantity against one of this team's
// line items. The mutation is validated by the ledger, merged into the local
// cache first, and only then published on the sync channel; a publish failure
// leaves the optimistic local state in place for eventual reconciliation.
func (c *Client) ApplyCompletion(ctx context.Context, orderID, itemID string, qty int) (models.Order, error) {
	if c.team == "" {
		return models.Order{}, fmt.Errorf("role %s has no team; completions are team-scoped", c.role)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.cache.Get(ctx, c.scope)
	if err != nil {
		return models.Order{}, err
	}
	src := current.FindOrder(orderID)
	if src == nil {
		return models.Order{}, fmt.Errorf("order %s not in local cache", orderID)
	}

	order := src.Clone()
	items := order.OrderDetails[c.team]
	var target *models.LineItem
	for i := range items {
		if items[i].ItemID == itemID {
			target = &items[i]
			break
		}
	}
	if target == nil {
		return models.Order{}, fmt.Errorf("item %s not found in %s of order %s", itemID, c.team, orderID)
	}
	// One instant stamps both the optimistic local entry and the published
	// update: when the hub applies the update and echoes the order back, the
	// echoed entry carries the same (qty, timestamp) key and the merge union
	// collapses it with the local one instead of counting it twice.
	at := time.Now().UTC()
	if err := ledger.ApplyCompletionAt(target, qty, at); err != nil {
		return models.Order{}, err
	}
	order.OrderDetails[c.team] = items
	ledger.RefreshOrder(&order)

	merged, err := c.reconcile(ctx, models.OrderCollection{order})
	if err != nil {
		return models.Order{}, err
	}

	if c.publisher != nil {
		if err := c.publisher.PublishUpdate(orderID, c.team, []models.ItemUpdate{{ItemID: itemID, QtyCompleted: qty, CompletedAt: at}}); err != nil {
			// Local-only optimistic mode; the next successful connection's
			// broadcasts converge the peers.
			log.Printf("client: publish failed, keeping local state: %v", err)
		}
	}

	if updated := merged.FindOrder(orderID); updated != nil {
		return *updated, nil
	}
	return order, nil
}

// ReconcileRemote merges an order pushed by a peer into the local cache.
// Implements the sync channel's Reconciler.
func (c *Client) ReconcileRemote(source models.TeamType, order models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.reconcile(context.Background(), models.OrderCollection{order}); err != nil {
		log.Printf("client: remote reconciliation failed: %v", err)
	}
}

// RemoveRemote drops an order the dispatcher deleted from the local cache.
// Deletion is the one mutation that bypasses the merge engine; the merge
// never removes orders, so the removal must be applied directly.
func (c *Client) RemoveRemote(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.cache.Remove(context.Background(), c.scope, orderID); err != nil {
		log.Printf("client: failed to remove order %s from cache: %v", orderID, err)
	}
}

// reconcile merges incoming orders into the cache and appends a timeline
// entry when any completed quantity increased. Callers hold c.mu.
func (c *Client) reconcile(ctx context.Context, incoming models.OrderCollection) (models.OrderCollection, error) {
	before, err := c.cache.Get(ctx, c.scope)
	if err != nil {
		return nil, err
	}
	prev := timeline.SnapshotOrders(before)

	merged, err := c.cache.Put(ctx, c.scope, incoming)
	if err != nil {
		return nil, err
	}

	entry := timeline.DetectChanges(prev, timeline.SnapshotOrders(merged))
	if entry != nil {
		if err := c.cache.PrependTimeline(ctx, *entry); err != nil {
			log.Printf("client: failed to append timeline entry: %v", err)
		} else {
			monitoring.TimelineEntries.Inc()
		}
	}
	if c.monitor != nil {
		c.monitor.RecordReconciliation(string(c.scope), len(merged), entry != nil)
	}
	return merged, nil
}
