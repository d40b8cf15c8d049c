package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"packline/internal/aggregate"
	"packline/internal/models"
	"packline/internal/store"
	"packline/internal/sync"
)

// OrderAPI is the dispatcher-facing HTTP surface: order lifecycle over the
// backing store, progress views, and the websocket endpoint for the realtime
// channel. Team progress updates do not go through here; they flow over the
// channel.
type OrderAPI struct {
	Router *gin.Engine
	store  *store.Store
	hub    *sync.Hub
}

// NewOrderAPI creates the API over the backing store and hub
func NewOrderAPI(st *store.Store, hub *sync.Hub) *OrderAPI {
	router := gin.Default()
	api := &OrderAPI{
		Router: router,
		store:  st,
		hub:    hub,
	}
	api.setupRoutes()
	return api
}

// setupRoutes configures all API endpoints
func (a *OrderAPI) setupRoutes() {
	a.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	a.Router.GET("/ws", a.hub.HandleWS)

	v1 := a.Router.Group("/api/v1")
	{
		v1.GET("/orders", a.ListOrders)
		v1.GET("/orders/:id", a.GetOrder)
		v1.POST("/orders", a.CreateOrder)
		v1.DELETE("/orders/:number", a.DeleteOrder)
		v1.GET("/progress", a.GetProgress)
	}
}

// ListOrders returns every order with full per-team details
func (a *OrderAPI) ListOrders(c *gin.Context) {
	orders, err := a.store.ListOrders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetOrder returns one order by its server-assigned ID
func (a *OrderAPI) GetOrder(c *gin.Context) {
	order, err := a.store.GetOrder(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// CreateOrder registers a new manufacturing order. A duplicate order number
// is a conflict, surfaced to the caller without retry.
func (a *OrderAPI) CreateOrder(c *gin.Context) {
	var order models.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := a.store.CreateOrder(order)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateOrderNumber) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if a.hub != nil {
		a.hub.BroadcastOrder(created, "")
	}
	c.JSON(http.StatusCreated, created)
}

// DeleteOrder removes an order by its business key and tells every connected
// client to drop it from its cache.
func (a *OrderAPI) DeleteOrder(c *gin.Context) {
	orderID, err := a.store.DeleteOrder(c.Param("number"))
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if a.hub != nil {
		a.hub.BroadcastOrderDeleted(orderID)
	}
	c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
}

// GetProgress returns per-team and overall completion for every order
func (a *OrderAPI) GetProgress(c *gin.Context) {
	orders, err := a.store.ListOrders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, aggregate.Summarize(orders))
}
