// Package aggregate derives per-team and overall completion figures from a
// merged order collection. It holds no state of its own; the presentation
// layer calls it on every snapshot it wants to render.
package aggregate

import (
	"packline/internal/ledger"
	"packline/internal/models"
)

// TeamProgress summarizes one team's completion across a set of items
type TeamProgress struct {
	TeamType       models.TeamType       `json:"team_type"`
	TotalItems     int                   `json:"total_items"`
	CompletedItems int                   `json:"completed_items"`
	RequiredQty    int                   `json:"required_qty"`
	CompletedQty   int                   `json:"completed_qty"`
	Percent        float64               `json:"percent"`
	Status         models.TrackingStatus `json:"status"`
}

// OrderProgress summarizes one order across all four teams
type OrderProgress struct {
	OrderID     string                           `json:"order_id"`
	OrderNumber string                           `json:"order_number"`
	Teams       map[models.TeamType]TeamProgress `json:"teams"`
	Overall     float64                          `json:"overall_percent"`
	Status      models.OrderStatus               `json:"status"`
}

// SummarizeOrder computes per-team and overall progress for a single order
func SummarizeOrder(o models.Order) OrderProgress {
	out := OrderProgress{
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		Teams:       make(map[models.TeamType]TeamProgress, len(o.OrderDetails)),
	}
	totalRequired, totalCompleted := 0, 0
	for _, team := range models.AllTeamTypes() {
		items, ok := o.OrderDetails[team]
		if !ok {
			continue
		}
		tp := summarizeItems(team, items)
		out.Teams[team] = tp
		totalRequired += tp.RequiredQty
		totalCompleted += tp.CompletedQty
	}
	if totalRequired > 0 {
		out.Overall = float64(totalCompleted) / float64(totalRequired) * 100
	}
	out.Status = ledger.DeriveOrderStatus(&o)
	return out
}

// Summarize computes progress for every order in the collection
func Summarize(orders models.OrderCollection) []OrderProgress {
	out := make([]OrderProgress, 0, len(orders))
	for _, o := range orders {
		out = append(out, SummarizeOrder(o))
	}
	return out
}

// TeamTotals aggregates one team's progress across every order in the
// collection, the figure a team dashboard leads with.
func TeamTotals(orders models.OrderCollection, team models.TeamType) TeamProgress {
	var all []models.LineItem
	for _, o := range orders {
		all = append(all, o.OrderDetails[team]...)
	}
	return summarizeItems(team, all)
}

func summarizeItems(team models.TeamType, items []models.LineItem) TeamProgress {
	tp := TeamProgress{TeamType: team, TotalItems: len(items)}
	for i := range items {
		tp.RequiredQty += items[i].RequiredQuantity
		tp.CompletedQty += items[i].Tracking.TotalCompletedQty
		if items[i].Tracking.Status == models.TrackingStatusCompleted {
			tp.CompletedItems++
		}
	}
	if tp.RequiredQty > 0 {
		tp.Percent = float64(tp.CompletedQty) / float64(tp.RequiredQty) * 100
	}
	tp.Status = ledger.DeriveTrackingStatus(tp.CompletedQty, tp.RequiredQty)
	return tp
}
