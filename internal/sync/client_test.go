package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packline/internal/config"
	"packline/internal/models"
)

type reconcilerStub struct {
	mu      sync.Mutex
	orders  []models.Order
	teams   []models.TeamType
	removed []string
}

func (r *reconcilerStub) ReconcileRemote(source models.TeamType, order models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams = append(r.teams, source)
	r.orders = append(r.orders, order)
}

func (r *reconcilerStub) RemoveRemote(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, orderID)
}

func (r *reconcilerStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *reconcilerStub) removedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

// fakeHub acks registrations and pushes scripted frames. It records how many
// times clients registered so re-registration on reconnect can be asserted.
type fakeHub struct {
	mu        sync.Mutex
	registers int
	pushes    []Message
	dropAfter bool
}

func (f *fakeHub) handler() http.HandlerFunc {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != TypeRegister {
				continue
			}
			f.mu.Lock()
			f.registers++
			pushes := f.pushes
			drop := f.dropAfter
			f.mu.Unlock()

			conn.WriteJSON(Message{Type: TypeRegistered})
			for _, push := range pushes {
				conn.WriteJSON(push)
			}
			if drop {
				return
			}
		}
	}
}

func (f *fakeHub) registerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers
}

func startFakeHub(t *testing.T, f *fakeHub) string {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func orderFor(team models.TeamType) *models.Order {
	return &models.Order{
		OrderID:     "o1",
		OrderNumber: "PO-100",
		OrderDetails: map[models.TeamType][]models.LineItem{
			team: {{ItemID: "i1", RequiredQuantity: 10}},
		},
	}
}

func TestClient_RegistersAndReceives(t *testing.T) {
	hub := &fakeHub{pushes: []Message{
		{Type: TypeOrderUpdated, TeamType: models.TeamCaps, Order: orderFor(models.TeamCaps)},
	}}
	url := startFakeHub(t, hub)

	recon := &reconcilerStub{}
	c := NewClient(Options{URL: url, Role: "team", Team: models.TeamCaps}, recon, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool { return c.State() == StateRegistered }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return recon.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.TeamCaps, recon.teams[0])
}

func TestClient_TeamRoleFiltersForeignTeams(t *testing.T) {
	hub := &fakeHub{pushes: []Message{
		{Type: TypeOrderUpdated, TeamType: models.TeamGlass, Order: orderFor(models.TeamGlass)},
		{Type: TypeOrderUpdated, TeamType: models.TeamCaps, Order: orderFor(models.TeamCaps)},
	}}
	url := startFakeHub(t, hub)

	recon := &reconcilerStub{}
	c := NewClient(Options{URL: url, Role: "team", Team: models.TeamCaps}, recon, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool { return recon.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, recon.count(), "the glass update must be filtered out")
	assert.Equal(t, models.TeamCaps, recon.teams[0])
}

func TestClient_DispatcherMergesAllTeams(t *testing.T) {
	hub := &fakeHub{pushes: []Message{
		{Type: TypeOrderUpdated, TeamType: models.TeamGlass, Order: orderFor(models.TeamGlass)},
		{Type: TypeOrderUpdated, TeamType: models.TeamCaps, Order: orderFor(models.TeamCaps)},
	}}
	url := startFakeHub(t, hub)

	recon := &reconcilerStub{}
	c := NewClient(Options{URL: url, Role: models.RoleDispatcher}, recon, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool { return recon.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_OrderDeletedReachesReconciler(t *testing.T) {
	hub := &fakeHub{pushes: []Message{
		// Deletions apply to every role, so even a team client processes one
		// for a foreign team's order.
		{Type: TypeOrderDeleted, OrderID: "o9"},
	}}
	url := startFakeHub(t, hub)

	recon := &reconcilerStub{}
	c := NewClient(Options{URL: url, Role: "team", Team: models.TeamCaps}, recon, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool { return recon.removedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "o9", recon.removed[0])
}

func TestClient_ReRegistersAfterReconnect(t *testing.T) {
	hub := &fakeHub{dropAfter: true}
	url := startFakeHub(t, hub)

	recon := &reconcilerStub{}
	c := NewClient(Options{
		URL:        url,
		Role:       "team",
		Team:       models.TeamBoxes,
		BackoffMin: 10 * time.Millisecond,
		BackoffMax: 50 * time.Millisecond,
	}, recon, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool { return hub.registerCount() >= 2 }, 3*time.Second, 10*time.Millisecond,
		"every reconnect must re-register")
}

func TestClient_PublishRequiresRegistration(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:0", Role: "team", Team: models.TeamCaps}, &reconcilerStub{}, nil)

	err := c.PublishUpdate("o1", models.TeamCaps, []models.ItemUpdate{{ItemID: "i1", QtyCompleted: 1}})
	assert.ErrorIs(t, err, ErrChannelNotReady)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.SyncConfig{
		PingIntervalSeconds: 5,
		PongTimeoutSeconds:  15,
		BackoffMinSeconds:   2,
		BackoffMaxSeconds:   20,
	}, "ws://hub/ws", "team", models.TeamGlass)

	assert.Equal(t, "ws://hub/ws", opts.URL)
	assert.Equal(t, models.TeamGlass, opts.Team)
	assert.Equal(t, 5*time.Second, opts.PingInterval)
	assert.Equal(t, 15*time.Second, opts.PongTimeout)
	assert.Equal(t, 2*time.Second, opts.BackoffMin)
	assert.Equal(t, 20*time.Second, opts.BackoffMax)

	// Unset knobs defer to NewClient's defaults.
	zero := OptionsFromConfig(config.SyncConfig{}, "ws://hub/ws", "team", models.TeamGlass)
	zero.withDefaults()
	assert.Equal(t, 30*time.Second, zero.PingInterval)
	assert.Equal(t, 90*time.Second, zero.PongTimeout)
}

func TestNextBackoff_Bounded(t *testing.T) {
	max := 30 * time.Second
	b := time.Second
	for i := 0; i < 10; i++ {
		b = nextBackoff(b, max)
		assert.LessOrEqual(t, b, max)
	}
	assert.Equal(t, max, b)
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "registered", StateRegistered.String())
}
