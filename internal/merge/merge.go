// Package merge reconciles two order collections into a new consistent one.
// It is the single place where a locally cached view and an update arriving
// from a peer or the backing store are combined.
package merge

import (
	"log"

	"packline/internal/ledger"
	"packline/internal/models"
)

// Merge reconciles incoming orders into the existing collection and returns a
// new collection; neither input is mutated.
//
// Orders are matched by order ID. Incoming-only orders are inserted, existing
// orders are never deleted. For matched orders the incoming scalar fields win,
// and each team list supplied by incoming replaces that team's list wholesale;
// teams absent from incoming keep the existing list. Replacing a whole team
// list lets one team broadcast its update without clobbering sibling teams'
// in-flight progress.
func Merge(existing, incoming models.OrderCollection) models.OrderCollection {
	merged := existing.Clone()
	if merged == nil {
		merged = models.OrderCollection{}
	}

	index := make(map[string]int, len(merged))
	numbers := make(map[string]string, len(merged))
	for i := range merged {
		index[merged[i].OrderID] = i
		if n := merged[i].OrderNumber; n != "" {
			numbers[n] = merged[i].OrderID
		}
	}

	for _, in := range incoming {
		if in.OrderID == "" {
			log.Printf("merge: dropping incoming order record without order_id (number %q)", in.OrderNumber)
			continue
		}
		pos, ok := index[in.OrderID]
		if !ok {
			// Order numbers are unique within a collection; a record claiming
			// an existing number under a different ID is bad data, not a new
			// order.
			if owner, taken := numbers[in.OrderNumber]; taken && owner != in.OrderID {
				log.Printf("merge: dropping incoming order %s: number %q already held by order %s", in.OrderID, in.OrderNumber, owner)
				continue
			}
			merged = append(merged, in.Clone())
			index[in.OrderID] = len(merged) - 1
			if in.OrderNumber != "" {
				numbers[in.OrderNumber] = in.OrderID
			}
			continue
		}
		merged[pos] = mergeOrder(merged[pos], in)
	}

	return merged
}

// mergeOrder combines one matched pair. Takes ownership of cur; does not
// retain references into in.
func mergeOrder(cur, in models.Order) models.Order {
	out := cur
	out.OrderStatus = in.OrderStatus
	out.DispatcherName = in.DispatcherName
	out.CustomerName = in.CustomerName
	out.CreatedAt = in.CreatedAt

	if out.OrderDetails == nil && len(in.OrderDetails) > 0 {
		out.OrderDetails = make(map[models.TeamType][]models.LineItem, len(in.OrderDetails))
	}
	for team, items := range in.OrderDetails {
		out.OrderDetails[team] = mergeTeamItems(cur.OrderDetails[team], items)
	}

	ledger.RefreshOrder(&out)
	return out
}

// mergeTeamItems builds the replacement list for one team. The incoming list
// dictates membership and ordering; for items also present in the existing
// list, the union of completion entries is taken so an update arriving out of
// order cannot drop entries the other side already has.
func mergeTeamItems(existing, incoming []models.LineItem) []models.LineItem {
	byID := make(map[string]*models.LineItem, len(existing))
	for i := range existing {
		byID[existing[i].ItemID] = &existing[i]
	}

	out := models.CloneItems(incoming)
	for i := range out {
		prev, ok := byID[out[i].ItemID]
		if !ok {
			ledger.Recalculate(&out[i])
			continue
		}
		out[i].Tracking.CompletedEntries = unionEntries(prev.Tracking.CompletedEntries, out[i].Tracking.CompletedEntries)
		ledger.Recalculate(&out[i])
	}
	return out
}

// unionEntries merges two entry logs, deduplicating by (qty, timestamp). The
// same entry delivered over two paths (direct edit and broadcast) collapses
// to one; genuinely distinct entries from both sides are all kept.
func unionEntries(a, b []models.CompletionEntry) []models.CompletionEntry {
	if len(a) == 0 && len(b) == 0 {
		return b
	}
	type key struct {
		qty int
		ts  int64
	}
	seen := make(map[key]struct{}, len(a)+len(b))
	out := make([]models.CompletionEntry, 0, len(a)+len(b))
	for _, entries := range [][]models.CompletionEntry{a, b} {
		for _, e := range entries {
			k := key{qty: e.QtyCompleted, ts: e.Timestamp.UnixNano()}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}
