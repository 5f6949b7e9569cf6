package configstore

import "time"

// Mode selects how CountryCodes is interpreted by the rule evaluation
// in internal/rules.
type Mode string

const (
	ModeAllowList Mode = "allow_list"
	ModeDenyList  Mode = "deny_list"
)

// OverlaySource records which configuration layer produced the
// currently active snapshot.
type OverlaySource string

const (
	SourceOverlay       OverlaySource = "overlay"
	SourceConfigUpdater OverlaySource = "config_updater"
	SourceTest          OverlaySource = "test"
)

// ConfigSnapshot is the immutable, atomically-replaced configuration
// in effect at a point in time, per spec.md §3. Snapshots are never
// mutated in place — every change constructs a new *ConfigSnapshot and
// swaps the store's pointer.
type ConfigSnapshot struct {
	CountryCodes          map[string]struct{}
	Mode                  Mode
	RangeFilePath         string
	LocationFreshDuration time.Duration
	Source                OverlaySource
}

// HasRangeFile reports whether an on-device range file is configured.
func (s *ConfigSnapshot) HasRangeFile() bool {
	return s != nil && s.RangeFilePath != ""
}

func newSnapshot(codes []string, mode Mode, rangeFilePath string, freshDuration time.Duration, source OverlaySource) *ConfigSnapshot {
	set := make(map[string]struct{}, len(codes))
	for _, cc := range codes {
		set[cc] = struct{}{}
	}
	return &ConfigSnapshot{
		CountryCodes:          set,
		Mode:                  mode,
		RangeFilePath:         rangeFilePath,
		LocationFreshDuration: freshDuration,
		Source:                source,
	}
}

// CachedVerdict is a previously computed verdict, valid for a bounded
// freshness window, persisted across restarts by the config store.
type CachedVerdict struct {
	Allowed bool
	SetTime time.Time
}

// Fresh reports whether the verdict is still within window of now.
func (v CachedVerdict) Fresh(now time.Time, window time.Duration) bool {
	return !v.SetTime.IsZero() && now.Sub(v.SetTime) <= window
}
