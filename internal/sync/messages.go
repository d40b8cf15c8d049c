package sync

import (
	"time"

	"packline/internal/models"
)

// Wire message types exchanged on the realtime channel
const (
	TypeRegister          = "register"
	TypeRegistered        = "registered"
	TypeUpdateOrderStatus = "updateOrderStatus"
	TypeOrderUpdated      = "order-updated"
	TypeOrderDeleted      = "order-deleted"
	TypeError             = "error"
)

// Message is the wire envelope for every frame on the channel. Fields are
// populated per Type and omitted otherwise.
type Message struct {
	Type      string              `json:"type"`
	Role      string              `json:"role,omitempty"`
	Team      string              `json:"team,omitempty"`
	OrderID   string              `json:"order_id,omitempty"`
	TeamType  models.TeamType     `json:"team_type,omitempty"`
	Items     []models.ItemUpdate `json:"items,omitempty"`
	Order     *models.Order       `json:"order,omitempty"`
	Timestamp time.Time           `json:"timestamp,omitempty"`
	Message   string              `json:"message,omitempty"`
}
