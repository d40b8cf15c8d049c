// Package timeline derives the append-only audit timeline by diffing tracking
// snapshots taken before and after a reconciliation.
package timeline

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"packline/internal/models"
)

// Snapshot captures one line item's tracking state at a point in time
type Snapshot struct {
	OrderID     string
	OrderNumber string
	ItemID      string
	ItemName    string
	TeamType    models.TeamType
	Completed   int
	Required    int
}

// SnapshotMap indexes snapshots by a key unique across orders and teams
type SnapshotMap map[string]Snapshot

// SnapshotOrders captures the tracking state of every line item in the
// collection, keyed by order and item.
func SnapshotOrders(orders models.OrderCollection) SnapshotMap {
	snap := make(SnapshotMap)
	for _, o := range orders {
		for team, items := range o.OrderDetails {
			for _, item := range items {
				snap[o.OrderID+"/"+item.ItemID] = Snapshot{
					OrderID:     o.OrderID,
					OrderNumber: o.OrderNumber,
					ItemID:      item.ItemID,
					ItemName:    item.Name,
					TeamType:    team,
					Completed:   item.Tracking.TotalCompletedQty,
					Required:    item.RequiredQuantity,
				}
			}
		}
	}
	return snap
}

// DetectChanges compares two snapshots and bundles every completed-quantity
// increase into a single timeline entry, timestamped at detection time. Keys
// absent from previous count as zero. Decreases are ignored. Returns nil when
// nothing increased, so no-op reconciliations never append timeline entries.
func DetectChanges(previous, next SnapshotMap) *models.TimelineEntry {
	return DetectChangesAt(previous, next, time.Now().UTC())
}

// DetectChangesAt is DetectChanges with an explicit detection timestamp
func DetectChangesAt(previous, next SnapshotMap, at time.Time) *models.TimelineEntry {
	var changes []models.Change
	for key, cur := range next {
		prevCompleted := 0
		if prev, ok := previous[key]; ok {
			prevCompleted = prev.Completed
		}
		if cur.Completed <= prevCompleted {
			continue
		}
		percent := 0.0
		if cur.Required > 0 {
			percent = float64(cur.Completed) / float64(cur.Required) * 100
		}
		changes = append(changes, models.Change{
			OrderID:           cur.OrderID,
			OrderNumber:       cur.OrderNumber,
			ItemID:            cur.ItemID,
			ItemName:          cur.ItemName,
			TeamType:          cur.TeamType,
			PreviousCompleted: prevCompleted,
			NewCompleted:      cur.Completed,
			Delta:             cur.Completed - prevCompleted,
			PercentComplete:   percent,
			IsComplete:        cur.Completed >= cur.Required,
		})
	}
	if len(changes) == 0 {
		return nil
	}
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].OrderNumber != changes[j].OrderNumber {
			return changes[i].OrderNumber < changes[j].OrderNumber
		}
		return changes[i].ItemID < changes[j].ItemID
	})
	return &models.TimelineEntry{
		ID:        uuid.NewString(),
		Timestamp: at,
		Changes:   changes,
	}
}
