package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packline/internal/ledger"
	"packline/internal/models"
)

func snap(completed, required int) Snapshot {
	return Snapshot{
		OrderID:     "o1",
		OrderNumber: "PO-100",
		ItemID:      "g1",
		ItemName:    "bottle",
		TeamType:    models.TeamGlass,
		Completed:   completed,
		Required:    required,
	}
}

func TestDetectChanges_NullOnNoChange(t *testing.T) {
	s := SnapshotMap{"o1/g1": snap(40, 100)}
	assert.Nil(t, DetectChanges(s, s))
}

func TestDetectChanges_ReportsIncrease(t *testing.T) {
	prev := SnapshotMap{"o1/g1": snap(40, 100)}
	next := SnapshotMap{"o1/g1": snap(70, 100)}

	entry := DetectChangesAt(prev, next, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NotNil(t, entry)
	require.Len(t, entry.Changes, 1)

	ch := entry.Changes[0]
	assert.Equal(t, 40, ch.PreviousCompleted)
	assert.Equal(t, 70, ch.NewCompleted)
	assert.Equal(t, 30, ch.Delta)
	assert.InDelta(t, 70.0, ch.PercentComplete, 0.01)
	assert.False(t, ch.IsComplete)
	assert.NotEmpty(t, entry.ID)
}

func TestDetectChanges_AbsentKeyCountsAsZero(t *testing.T) {
	next := SnapshotMap{"o1/g1": snap(25, 100)}

	entry := DetectChanges(SnapshotMap{}, next)
	require.NotNil(t, entry)
	assert.Equal(t, 0, entry.Changes[0].PreviousCompleted)
	assert.Equal(t, 25, entry.Changes[0].Delta)
}

func TestDetectChanges_IgnoresDecreases(t *testing.T) {
	prev := SnapshotMap{"o1/g1": snap(70, 100)}
	next := SnapshotMap{"o1/g1": snap(40, 100)}

	assert.Nil(t, DetectChanges(prev, next), "decreases are ignored, not reverted")
}

func TestDetectChanges_CompleteFlag(t *testing.T) {
	prev := SnapshotMap{"o1/g1": snap(90, 100)}
	next := SnapshotMap{"o1/g1": snap(100, 100)}

	entry := DetectChanges(prev, next)
	require.NotNil(t, entry)
	assert.True(t, entry.Changes[0].IsComplete)
	assert.InDelta(t, 100.0, entry.Changes[0].PercentComplete, 0.01)
}

func TestDetectChanges_BundlesAllIncreases(t *testing.T) {
	prev := SnapshotMap{}
	next := SnapshotMap{
		"o1/g1": snap(10, 100),
		"o1/c1": {OrderID: "o1", OrderNumber: "PO-100", ItemID: "c1", ItemName: "cap",
			TeamType: models.TeamCaps, Completed: 5, Required: 50},
	}

	entry := DetectChanges(prev, next)
	require.NotNil(t, entry)
	assert.Len(t, entry.Changes, 2, "one entry bundles all changes of a pass")
}

func TestSnapshotOrders(t *testing.T) {
	it := models.LineItem{ItemID: "g1", Name: "bottle", RequiredQuantity: 100}
	require.NoError(t, ledger.ApplyCompletion(&it, 30))

	orders := models.OrderCollection{{
		OrderID:     "o1",
		OrderNumber: "PO-100",
		OrderDetails: map[models.TeamType][]models.LineItem{
			models.TeamGlass: {it},
		},
	}}

	snaps := SnapshotOrders(orders)
	require.Len(t, snaps, 1)
	got := snaps["o1/g1"]
	assert.Equal(t, 30, got.Completed)
	assert.Equal(t, 100, got.Required)
	assert.Equal(t, models.TeamGlass, got.TeamType)
	assert.Equal(t, "PO-100", got.OrderNumber)
}
