// Package ledger enforces per line-item quantity invariants and derives
// completion status from the append-only completion entry log. All status
// derivation in the system goes through this package; callers never cache
// derived values independently.
package ledger

import (
	"fmt"
	"time"

	"packline/internal/models"
)

// QuantityExceededError is returned when a completion delta would push a line
// item past its required quantity. Remaining names the largest delta the item
// can still accept.
type QuantityExceededError struct {
	ItemID    string
	Requested int
	Remaining int
}

func (e *QuantityExceededError) Error() string {
	return fmt.Sprintf("quantity exceeded for item %s: requested %d, only %d remaining",
		e.ItemID, e.Requested, e.Remaining)
}

// ApplyCompletion appends a completion entry of the given delta to the item,
// then recomputes the derived total and status. The item is unchanged on error.
// A delta of zero or less is rejected; no-op updates must not append entries.
func ApplyCompletion(item *models.LineItem, delta int) error {
	return ApplyCompletionAt(item, delta, time.Now().UTC())
}

// ApplyCompletionAt is ApplyCompletion with an explicit entry timestamp
func ApplyCompletionAt(item *models.LineItem, delta int, at time.Time) error {
	if delta <= 0 {
		return fmt.Errorf("completion delta must be positive, got %d", delta)
	}
	remaining := item.RequiredQuantity - item.Tracking.TotalCompletedQty
	if delta > remaining {
		return &QuantityExceededError{
			ItemID:    item.ItemID,
			Requested: delta,
			Remaining: remaining,
		}
	}

	item.Tracking.CompletedEntries = append(item.Tracking.CompletedEntries, models.CompletionEntry{
		QtyCompleted: delta,
		Timestamp:    at,
	})
	Recalculate(item)
	return nil
}

// TotalCompleted sums the append-only entry log
func TotalCompleted(entries []models.CompletionEntry) int {
	total := 0
	for _, e := range entries {
		total += e.QtyCompleted
	}
	return total
}

// DeriveTrackingStatus maps a completed total against a requirement to the
// pending / partially completed / completed states.
func DeriveTrackingStatus(completed, required int) models.TrackingStatus {
	switch {
	case required > 0 && completed >= required:
		return models.TrackingStatusCompleted
	case completed > 0:
		return models.TrackingStatusPartiallyCompleted
	default:
		return models.TrackingStatusPending
	}
}

// Recalculate recomputes the item's derived total and status from its entries
func Recalculate(item *models.LineItem) {
	item.Tracking.TotalCompletedQty = TotalCompleted(item.Tracking.CompletedEntries)
	item.Tracking.Status = DeriveTrackingStatus(item.Tracking.TotalCompletedQty, item.RequiredQuantity)
	item.Status = item.Tracking.Status
}

// DeriveOrderStatus returns completed only when every line item across every
// team has completed tracking. Teams with no items are vacuously satisfied.
func DeriveOrderStatus(o *models.Order) models.OrderStatus {
	for _, items := range o.OrderDetails {
		for i := range items {
			if items[i].Tracking.Status != models.TrackingStatusCompleted {
				return models.OrderStatusPending
			}
		}
	}
	return models.OrderStatusCompleted
}

// RefreshOrder recomputes every item's derived fields and the order status
func RefreshOrder(o *models.Order) {
	for team, items := range o.OrderDetails {
		for i := range items {
			Recalculate(&items[i])
		}
		o.OrderDetails[team] = items
	}
	o.OrderStatus = DeriveOrderStatus(o)
}
