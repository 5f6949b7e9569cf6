package orchestrator

import (
	"github.com/malbeclabs/satgate/internal/collaborators"
	"github.com/malbeclabs/satgate/pkg/satgate"
)

// checkMsg requests an allowed-state decision for callerID; reply is
// invoked exactly once, possibly coalesced with other in-flight
// checks, per spec.md §4.F.
type checkMsg struct {
	callerID string
	reply    satgate.ReplySink
}

// locationArrivedMsg carries the (possibly nil, on failure) result of
// an outstanding LocationProvider.Current query.
type locationArrivedMsg struct {
	loc *collaborators.Location
}

// locationTimeoutMsg fires when the 180s location query deadline
// elapses without a locationArrivedMsg.
type locationTimeoutMsg struct{}

// idleTimeoutMsg fires when the on-device controller has sat unused
// for its configured idle window.
type idleTimeoutMsg struct{}

// configUpdatedMsg signals that the active config snapshot changed
// (config-updater delivery or test override set/reset).
type configUpdatedMsg struct{}

// setCachedVerdictMsg is the test-only lever of spec.md §6.
type setCachedVerdictMsg struct {
	state satgate.CachedVerdictState
}
