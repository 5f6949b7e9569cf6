// Package rules implements the single rule evaluation used
// everywhere in the orchestrator: given a configuration snapshot's
// country-code set and mode, and a list of observed country codes,
// decide allowed/denied. Per spec.md §4.F, evaluation is the same for
// the network-country shortcut and the cached-country-code fallback
// branch alike.
package rules

import "github.com/malbeclabs/satgate/internal/configstore"

// Evaluate applies the AllowList/DenyList rule of spec.md §4.F to the
// observed country codes cc against snapshot's country-code set S.
func Evaluate(snapshot *configstore.ConfigSnapshot, cc []string) bool {
	if snapshot == nil {
		return false
	}
	switch snapshot.Mode {
	case configstore.ModeAllowList:
		return evalAllowList(snapshot.CountryCodes, cc)
	case configstore.ModeDenyList:
		return evalDenyList(snapshot.CountryCodes, cc)
	default:
		return false
	}
}

func evalAllowList(s map[string]struct{}, cc []string) bool {
	if len(cc) == 0 {
		return false
	}
	for _, c := range cc {
		if _, ok := s[c]; !ok {
			return false
		}
	}
	return true
}

func evalDenyList(s map[string]struct{}, cc []string) bool {
	if len(s) == 0 {
		return true
	}
	if len(cc) == 0 {
		return false
	}
	for _, c := range cc {
		if _, ok := s[c]; ok {
			return false
		}
	}
	return true
}
