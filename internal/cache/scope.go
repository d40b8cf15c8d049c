package cache

import (
	"fmt"

	"packline/internal/models"
)

// ScopeKey identifies one cache partition. The dispatcher role shares a
// single global partition; each team role gets a partition for its resolved
// team type. Callers hold their scope explicitly; nothing in this package
// derives it from ambient state.
type ScopeKey string

// TimelineKey stores the serialized timeline log, shared across all roles
const TimelineKey = "packline:timeline"

// DispatcherScope returns the global dispatcher partition key
func DispatcherScope() ScopeKey {
	return "packline:orders:dispatcher"
}

// TeamScope returns the partition key for one production team
func TeamScope(team models.TeamType) ScopeKey {
	return ScopeKey("packline:orders:team:" + string(team))
}

// ScopeForRole resolves a role and free-text team name to a scope key.
// Dispatchers map to the global scope regardless of team; any other role
// must resolve to one of the production teams.
func ScopeForRole(role, teamName string) (ScopeKey, error) {
	if role == models.RoleDispatcher {
		return DispatcherScope(), nil
	}
	team, ok := models.ResolveTeamType(teamName)
	if !ok {
		return "", fmt.Errorf("cannot resolve team type from %q", teamName)
	}
	return TeamScope(team), nil
}
