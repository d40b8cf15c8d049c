package models

import (
	"time"
)

// OrderStatus represents the possible states of a manufacturing order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

// TrackingStatus represents the completion state of a line item's team tracking
type TrackingStatus string

const (
	TrackingStatusPending            TrackingStatus = "pending"
	TrackingStatusPartiallyCompleted TrackingStatus = "partially_completed"
	TrackingStatusCompleted          TrackingStatus = "completed"
)

// CompletionEntry is a single increment reported against a line item.
// The entry list is append-only; totals are always recomputed from it.
type CompletionEntry struct {
	QtyCompleted int       `json:"qty_completed"`
	Timestamp    time.Time `json:"timestamp"`
}

// TeamTracking holds the append-only completion ledger for one line item
// along with the quantities and status derived from it.
type TeamTracking struct {
	TotalCompletedQty int               `json:"total_completed_qty"`
	Status            TrackingStatus    `json:"status"`
	CompletedEntries  []CompletionEntry `json:"completed_entries"`
}

// LineItem represents one produced part within an order. Descriptive fields
// differ per team and are carried opaquely in Attributes.
type LineItem struct {
	ItemID           string            `json:"item_id"`
	Name             string            `json:"name"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	RequiredQuantity int               `json:"required_quantity"`
	Status           TrackingStatus    `json:"status"`
	Tracking         TeamTracking      `json:"tracking"`
}

// Order represents a manufacturing order fanned out to the production teams
type Order struct {
	OrderID        string                  `json:"order_id"`
	OrderNumber    string                  `json:"order_number"`
	DispatcherName string                  `json:"dispatcher_name"`
	CustomerName   string                  `json:"customer_name"`
	OrderStatus    OrderStatus             `json:"order_status"`
	CreatedAt      time.Time               `json:"created_at"`
	OrderDetails   map[TeamType][]LineItem `json:"order_details"`
}

// OrderCollection is the unit the cache and merge engine operate on
type OrderCollection []Order

// ItemUpdate is a single reported quantity increment for one line item,
// as carried on the wire and applied through the backing store. CompletedAt
// is the instant the reporting client stamped on its own completion entry;
// every replica applying this update must reuse it so the entry dedupes as
// one, no matter how many paths deliver it.
type ItemUpdate struct {
	ItemID       string    `json:"item_id"`
	QtyCompleted int       `json:"qty_completed"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Clone returns a deep copy of the order. Merge results must never alias
// slices owned by either input collection.
func (o Order) Clone() Order {
	out := o
	if o.OrderDetails != nil {
		out.OrderDetails = make(map[TeamType][]LineItem, len(o.OrderDetails))
		for team, items := range o.OrderDetails {
			out.OrderDetails[team] = CloneItems(items)
		}
	}
	return out
}

// CloneItems deep-copies a team's line item list
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

// Clone returns a deep copy of the line item
func (li LineItem) Clone() LineItem {
	out := li
	if li.Attributes != nil {
		out.Attributes = make(map[string]string, len(li.Attributes))
		for k, v := range li.Attributes {
			out.Attributes[k] = v
		}
	}
	if li.Tracking.CompletedEntries != nil {
		entries := make([]CompletionEntry, len(li.Tracking.CompletedEntries))
		copy(entries, li.Tracking.CompletedEntries)
		out.Tracking.CompletedEntries = entries
	}
	return out
}

// Clone deep-copies the whole collection
func (c OrderCollection) Clone() OrderCollection {
	if c == nil {
		return nil
	}
	out := make(OrderCollection, len(c))
	for i, o := range c {
		out[i] = o.Clone()
	}
	return out
}

// FindOrder returns the order with the given ID, or nil if absent
func (c OrderCollection) FindOrder(orderID string) *Order {
	for i := range c {
		if c[i].OrderID == orderID {
			return &c[i]
		}
	}
	return nil
}
