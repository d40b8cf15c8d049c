package models

import (
	"testing"
)

func TestResolveTeamType(t *testing.T) {
	cases := []struct {
		name string
		want TeamType
		ok   bool
	}{
		{"glass", TeamGlass, true},
		{"Glass Line 2", TeamGlass, true},
		{"CAPS-TEAM", TeamCaps, true},
		{"cap station", TeamCaps, true},
		{"box line", TeamBoxes, true},
		{"boxes", TeamBoxes, true},
		{"Pump Assembly", TeamPumps, true},
		{"warehouse", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := ResolveTeamType(tc.name)
		if ok != tc.ok {
			t.Errorf("ResolveTeamType(%q) ok = %v, want %v", tc.name, ok, tc.ok)
			continue
		}
		if got != tc.want {
			t.Errorf("ResolveTeamType(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestOrderClone_DoesNotAlias(t *testing.T) {
	o := Order{
		OrderID: "o1",
		OrderDetails: map[TeamType][]LineItem{
			TeamGlass: {{
				ItemID:           "g1",
				RequiredQuantity: 10,
				Attributes:       map[string]string{"size": "30ml"},
				Tracking: TeamTracking{
					CompletedEntries: []CompletionEntry{{QtyCompleted: 5}},
				},
			}},
		},
	}

	clone := o.Clone()
	clone.OrderDetails[TeamGlass][0].Attributes["size"] = "50ml"
	clone.OrderDetails[TeamGlass][0].Tracking.CompletedEntries[0].QtyCompleted = 9

	if o.OrderDetails[TeamGlass][0].Attributes["size"] != "30ml" {
		t.Error("clone aliases the attributes map")
	}
	if o.OrderDetails[TeamGlass][0].Tracking.CompletedEntries[0].QtyCompleted != 5 {
		t.Error("clone aliases the completion entries")
	}
}

func TestFindOrder(t *testing.T) {
	c := OrderCollection{{OrderID: "a"}, {OrderID: "b"}}
	if got := c.FindOrder("b"); got == nil || got.OrderID != "b" {
		t.Errorf("FindOrder(b) = %v", got)
	}
	if got := c.FindOrder("z"); got != nil {
		t.Errorf("FindOrder(z) = %v, want nil", got)
	}
}
