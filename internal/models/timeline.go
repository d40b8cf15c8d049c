package models

import "time"

// Change records one line item whose completed quantity increased during a
// single reconciliation pass.
type Change struct {
	OrderID           string   `json:"order_id"`
	OrderNumber       string   `json:"order_number"`
	ItemID            string   `json:"item_id"`
	ItemName          string   `json:"item_name"`
	TeamType          TeamType `json:"team_type"`
	PreviousCompleted int      `json:"previous_completed"`
	NewCompleted      int      `json:"new_completed"`
	Delta             int      `json:"delta"`
	PercentComplete   float64  `json:"percent_complete"`
	IsComplete        bool     `json:"is_complete"`
}

// TimelineEntry bundles all changes observed in one reconciliation pass.
// Entries are derived by diffing, never hand-edited.
type TimelineEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Changes   []Change  `json:"changes"`
}
