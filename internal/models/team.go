package models

import "strings"

// TeamType identifies one of the four production teams an order fans out to
type TeamType string

const (
	TeamGlass TeamType = "glass"
	TeamCaps  TeamType = "caps"
	TeamBoxes TeamType = "boxes"
	TeamPumps TeamType = "pumps"
)

// RoleDispatcher is the role that observes aggregate progress across all
// teams; every other role is resolved to one production team.
const RoleDispatcher = "dispatcher"

// AllTeamTypes returns the production teams in display order
func AllTeamTypes() []TeamType {
	return []TeamType{TeamGlass, TeamCaps, TeamBoxes, TeamPumps}
}

// ResolveTeamType maps a free-text team or role name to its team type by
// substring matching, e.g. "Glass Line 2" resolves to TeamGlass. Returns
// false when the name matches no team.
func ResolveTeamType(name string) (TeamType, bool) {
	lowered := strings.ToLower(name)
	for _, team := range AllTeamTypes() {
		if strings.Contains(lowered, string(team)) {
			return team, true
		}
	}
	// Common singular spellings ("cap team", "box line", "pump station")
	switch {
	case strings.Contains(lowered, "cap"):
		return TeamCaps, true
	case strings.Contains(lowered, "box"):
		return TeamBoxes, true
	case strings.Contains(lowered, "pump"):
		return TeamPumps, true
	}
	return "", false
}
