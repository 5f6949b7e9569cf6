// Package collaborators declares the external dependency surface of
// spec.md §6 as narrow Go interfaces, following the teacher's
// pattern of isolating outside systems behind small interfaces
// (controlplane/telemetry/internal/data/internet/provider.go's
// ServiceabilityClient/TelemetryClient) rather than a global,
// context-carrying singleton.
package collaborators

import (
	"context"
	"time"
)

// Location is a single position fix, per spec.md §6.
type Location struct {
	Lat     float64
	Lon     float64
	Elapsed time.Duration
	IsMock  bool
}

// CountryDetector reports the current network country and cached
// country-code history.
type CountryDetector interface {
	// CurrentNetworkCCList returns the current network MCC-derived
	// country code list, or nil if no network is attached.
	CurrentNetworkCCList() []string
	// CachedLocationCC returns the most recently cached
	// location-derived country code and when it was recorded.
	CachedLocationCC() (cc string, at time.Time, ok bool)
	// CachedNetworkCCHistory returns the cached network country codes
	// seen, keyed by code, with the time each was last observed.
	CachedNetworkCCHistory() map[string]time.Time
}

// LocationProvider supplies last-known and live location fixes.
type LocationProvider interface {
	// LastKnown returns the most recent location fix, if any.
	LastKnown() (Location, bool)
	// Current starts an asynchronous high-accuracy location query
	// ignoring provider freshness settings. reply is invoked exactly
	// once, from any goroutine, with the result or nil on failure.
	// The returned cancel func aborts the outstanding query.
	Current(ctx context.Context, reply func(*Location)) (cancel func())
}

// QueryResult is the bundled async reply shape for SatelliteStatus.
type QueryResult struct {
	OK    bool
	Error error
}

// SatelliteStatus answers the two satellite-capability preconditions
// of spec.md §4.F.
type SatelliteStatus interface {
	IsSupported(ctx context.Context, reply func(QueryResult))
	IsProvisioned(ctx context.Context, reply func(QueryResult))
}

// EmergencyOracle reports whether the device is currently in an
// emergency call/session.
type EmergencyOracle interface {
	IsInEmergency() bool
}

// PermissionOracle reports whether the platform currently grants this
// process location permission, per spec.md §4.F's on-device branch
// condition.
type PermissionOracle interface {
	LocationPermissionGranted() bool
}

// ConfigDelivery emits change notifications and exposes the most
// recently delivered, not-yet-applied config-updater payload.
type ConfigDelivery interface {
	// Updated fires once per delivered config change. The channel is
	// never closed by the provider, mirroring
	// client/doublezerod/internal/config.Config's non-blocking
	// Changed() <-chan struct{} idiom.
	Updated() <-chan struct{}
	// PendingConfig returns the most recently delivered payload, or
	// an error wrapping configstore.ErrNoPendingConfig if none exists.
	PendingConfig() (PendingConfig, error)
}

// PendingConfig is the payload surfaced by ConfigDelivery.PendingConfig.
type PendingConfig struct {
	CountryCodes       []string
	IsAllowedForRegion *bool
	RangeFilePath      string
}
