package sync

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"packline/internal/models"
	"packline/internal/monitoring"
	"packline/internal/store"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Room names. The dispatcher room receives every broadcast; each team room
// only receives its own team's updates.
const roomDispatcher = "dispatcher"

func roomForTeam(team models.TeamType) string {
	return "team:" + string(team)
}

// Hub is the server side of the realtime channel. It applies inbound team
// updates to the backing store and rebroadcasts the resulting order state to
// the dispatcher room and the acting team's room.
type Hub struct {
	store *store.Store

	mu    sync.Mutex
	rooms map[string]map[*hubConn]struct{}
}

// NewHub creates a hub over the backing store
func NewHub(st *store.Store) *Hub {
	return &Hub{
		store: st,
		rooms: make(map[string]map[*hubConn]struct{}),
	}
}

// hubConn maintains one client connection
type hubConn struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	registered bool
	role       string
	team       models.TeamType
	rooms      []string
}

// HandleWS upgrades the request and starts the connection's pumps
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("hub: failed to upgrade connection: %v", err)
		return
	}

	hc := &hubConn{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	go hc.writePump()
	go hc.readPump()
}

// readPump pumps messages from the connection into the hub
func (c *hubConn) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024) // 512KB
	c.conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})
	c.conn.SetPingHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("hub: connection error: %v", err)
			}
			break
		}
		c.handleMessage(raw)
	}
}

// writePump pumps messages from the hub to the connection
func (c *hubConn) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one inbound frame
func (c *hubConn) handleMessage(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("hub: dropping malformed message: %v", err)
		return
	}

	switch msg.Type {
	case TypeRegister:
		c.handleRegister(msg)
	case TypeUpdateOrderStatus:
		c.handleUpdateOrderStatus(msg)
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// handleRegister joins the connection to its rooms and acks. Team-scoped
// traffic is refused until a connection has registered.
func (c *hubConn) handleRegister(msg Message) {
	if msg.Role == models.RoleDispatcher {
		c.role = models.RoleDispatcher
		c.hub.join(c, roomDispatcher)
	} else {
		team, ok := models.ResolveTeamType(msg.Team)
		if !ok {
			c.sendError("cannot resolve team from: " + msg.Team)
			return
		}
		c.role = msg.Role
		c.team = team
		c.hub.join(c, roomForTeam(team))
	}
	c.registered = true
	monitoring.HubRegistrations.Inc()
	c.sendMessage(Message{Type: TypeRegistered})
}

// handleUpdateOrderStatus applies a team's increments through the backing
// store, then broadcasts the post-update order to the dispatcher room and the
// acting team's room. A ledger rejection goes back to the sender only.
func (c *hubConn) handleUpdateOrderStatus(msg Message) {
	if !c.registered {
		c.sendError("not registered")
		return
	}
	team := msg.TeamType
	if team == "" {
		team = c.team
	}
	if team == "" {
		c.sendError("team_type is required")
		return
	}

	order, err := c.hub.store.ApplyTeamUpdate(msg.OrderID, team, msg.Items)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.hub.broadcast(Message{
		Type:      TypeOrderUpdated,
		Order:     &order,
		TeamType:  team,
		Timestamp: time.Now().UTC(),
	}, roomDispatcher, roomForTeam(team))
}

// BroadcastOrder pushes an order snapshot to the dispatcher room and, when a
// source team is given, to that team's room. The REST layer calls this after
// dispatcher-level edits so connected clients converge without polling.
func (h *Hub) BroadcastOrder(order models.Order, source models.TeamType) {
	rooms := []string{roomDispatcher}
	if source != "" {
		rooms = append(rooms, roomForTeam(source))
	}
	h.broadcast(Message{
		Type:      TypeOrderUpdated,
		Order:     &order,
		TeamType:  source,
		Timestamp: time.Now().UTC(),
	}, rooms...)
}

// BroadcastOrderDeleted tells every room that an order was removed. A
// deletion affects every team, so unlike updates it is not scoped to one
// team's room.
func (h *Hub) BroadcastOrderDeleted(orderID string) {
	rooms := []string{roomDispatcher}
	for _, team := range models.AllTeamTypes() {
		rooms = append(rooms, roomForTeam(team))
	}
	h.broadcast(Message{
		Type:      TypeOrderDeleted,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	}, rooms...)
}

func (h *Hub) join(c *hubConn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*hubConn]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms = append(c.rooms, room)
}

func (h *Hub) drop(c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		delete(h.rooms[room], c)
	}
}

func (h *Hub) broadcast(msg Message, rooms ...string) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("hub: marshal broadcast failed: %v", err)
		return
	}

	h.mu.Lock()
	targets := make(map[*hubConn]struct{})
	for _, room := range rooms {
		for conn := range h.rooms[room] {
			targets[conn] = struct{}{}
		}
	}
	h.mu.Unlock()

	for conn := range targets {
		select {
		case conn.send <- data:
		default:
			log.Println("hub: send buffer full, dropping message")
		}
	}
	monitoring.HubBroadcasts.Inc()
}

func (c *hubConn) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("hub: marshal message failed: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Println("hub: send buffer full, dropping message")
	}
}

func (c *hubConn) sendError(message string) {
	c.sendMessage(Message{Type: TypeError, Message: message})
}
