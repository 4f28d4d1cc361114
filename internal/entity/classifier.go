// Package entity classifies Home Assistant entities. IsLight is the single
// predicate deciding which entities the dashboard shows as rooms and which
// it lets the browser toggle.
package entity

import (
	"strings"

	"familydash/internal/ha"
)

const (
	domainLight  = "light"
	domainSwitch = "switch"
)

// lightMarkers mark a switch as a light when found in its id or name
var lightMarkers = []string{"licht", "light"}

// Domain returns the text before the first "." of an entity id, or the
// whole id when it has no ".".
func Domain(entityID string) string {
	domain, _, _ := strings.Cut(entityID, ".")
	return domain
}

// FriendlyName returns the friendly_name attribute, or "" when missing or
// not a string.
func FriendlyName(state *ha.State) string {
	if state == nil || state.Attributes == nil {
		return ""
	}
	name, _ := state.Attributes["friendly_name"].(string)
	return name
}

// Label returns the display label for a state: its friendly name when
// non-empty, else its entity id. Whitespace names are kept as is.
func Label(state *ha.State) string {
	if name := FriendlyName(state); name != "" {
		return name
	}
	return state.EntityID
}

// IsLight reports whether state is a controllable light: any entity in the
// light domain, or a switch whose id or friendly name mentions a light.
func IsLight(state *ha.State) bool {
	if state == nil {
		return false
	}

	switch Domain(state.EntityID) {
	case domainLight:
		return true
	case domainSwitch:
		return mentionsLight(state.EntityID) || mentionsLight(FriendlyName(state))
	default:
		return false
	}
}

func mentionsLight(s string) bool {
	s = strings.ToLower(s)
	for _, marker := range lightMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
