// The packline client binary: one role's terminal. It loads the order
// snapshot over REST, keeps a role-scoped cache (redis-backed when
// configured, so sibling terminals on the same host share state), and holds
// the realtime channel open for updates.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"packline/internal/cache"
	"packline/internal/cache/rediscache"
	"packline/internal/client"
	"packline/internal/config"
	"packline/internal/models"
	"packline/internal/monitoring"
	"packline/internal/sync"
)

var (
	serverURL  = flag.String("server", "http://localhost:8080", "Base URL of the packline server")
	role       = flag.String("role", "team", "Client role: team or dispatcher")
	teamName   = flag.String("team", "", "Team name for team-role clients")
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var opts []cache.Option
	var kv cache.KV = cache.NewMemoryKV()
	if cfg.Redis.Enabled {
		rc := rediscache.New(cfg.Redis.Addr)
		kv = rc
		opts = append(opts, cache.WithNotifier(rc))
		log.Printf("Using redis cache backend at %s", cfg.Redis.Addr)
	}
	cacheStore := cache.NewStore(kv, opts...)

	monitor := monitoring.NewMonitor()
	backing := &restBacking{
		baseURL: strings.TrimRight(*serverURL, "/"),
		http:    http.Client{Timeout: 10 * time.Second},
	}

	// The sync client needs a reconciler and the facade needs a publisher;
	// the proxy breaks the construction cycle between them.
	proxy := &reconcilerProxy{}
	syncClient := sync.NewClient(
		sync.OptionsFromConfig(cfg.Sync, wsURL(*serverURL), *role, resolveTeam(*role, *teamName)),
		proxy, monitor)

	facade, err := client.New(*role, *teamName, cacheStore, backing, syncClient, monitor)
	if err != nil {
		log.Fatalf("Failed to build client: %v", err)
	}
	proxy.target = facade

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := facade.LoadInitial(ctx); err != nil {
		log.Fatalf("Failed to load initial orders: %v", err)
	}
	facade.Subscribe(func(orders models.OrderCollection) {
		log.Printf("Cache updated: %d orders in scope %s", len(orders), facade.Scope())
	})

	go syncClient.Run(ctx)
	log.Printf("Client running as %s %s against %s", *role, *teamName, *serverURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down client...")
}

// restBacking loads the initial snapshot over the server's REST surface
type restBacking struct {
	baseURL string
	http    http.Client
}

func (b *restBacking) ListOrders() (models.OrderCollection, error) {
	resp, err := b.http.Get(b.baseURL + "/api/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list orders: unexpected status %s", resp.Status)
	}
	var orders models.OrderCollection
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

type reconcilerProxy struct {
	target sync.Reconciler
}

func (p *reconcilerProxy) ReconcileRemote(source models.TeamType, order models.Order) {
	if p.target != nil {
		p.target.ReconcileRemote(source, order)
	}
}

func (p *reconcilerProxy) RemoveRemote(orderID string) {
	if p.target != nil {
		p.target.RemoveRemote(orderID)
	}
}

func resolveTeam(role, name string) models.TeamType {
	if role == models.RoleDispatcher {
		return ""
	}
	team, _ := models.ResolveTeamType(name)
	return team
}

func wsURL(server string) string {
	return strings.TrimRight(strings.Replace(server, "http", "ws", 1), "/") + "/ws"
}
