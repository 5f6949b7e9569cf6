// Package fakes provides in-memory test doubles for the
// collaborators interfaces, used by internal/orchestrator and
// internal/facade tests instead of reflection-based field overrides.
package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/malbeclabs/satgate/internal/collaborators"
)

// CountryDetector is a fully scriptable fake collaborators.CountryDetector.
type CountryDetector struct {
	mu sync.Mutex

	NetworkCC        []string
	LocationCC       string
	LocationCCAt     time.Time
	LocationCCSet    bool
	NetworkCCHistory map[string]time.Time
}

func (f *CountryDetector) CurrentNetworkCCList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.NetworkCC
}

func (f *CountryDetector) CachedLocationCC() (string, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.LocationCC, f.LocationCCAt, f.LocationCCSet
}

func (f *CountryDetector) CachedNetworkCCHistory() map[string]time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.NetworkCCHistory
}

// LocationProvider is a fully scriptable fake collaborators.LocationProvider.
type LocationProvider struct {
	mu sync.Mutex

	Last       *collaborators.Location
	OnCurrent  func(ctx context.Context, reply func(*collaborators.Location)) (cancel func())
	Cancelled  bool
	cancelFunc func()
}

func (f *LocationProvider) LastKnown() (collaborators.Location, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Last == nil {
		return collaborators.Location{}, false
	}
	return *f.Last, true
}

func (f *LocationProvider) Current(ctx context.Context, reply func(*collaborators.Location)) func() {
	if f.OnCurrent != nil {
		return f.OnCurrent(ctx, reply)
	}
	f.mu.Lock()
	f.cancelFunc = func() { f.Cancelled = true }
	cancel := f.cancelFunc
	f.mu.Unlock()
	return cancel
}

// SatelliteStatus is a fully scriptable fake collaborators.SatelliteStatus.
type SatelliteStatus struct {
	Supported   collaborators.QueryResult
	Provisioned collaborators.QueryResult
}

func (f *SatelliteStatus) IsSupported(ctx context.Context, reply func(collaborators.QueryResult)) {
	reply(f.Supported)
}

func (f *SatelliteStatus) IsProvisioned(ctx context.Context, reply func(collaborators.QueryResult)) {
	reply(f.Provisioned)
}

// EmergencyOracle is a fully scriptable fake collaborators.EmergencyOracle.
type EmergencyOracle struct {
	Emergency bool
}

func (f *EmergencyOracle) IsInEmergency() bool { return f.Emergency }

// PermissionOracle is a fully scriptable fake collaborators.PermissionOracle.
type PermissionOracle struct {
	Granted bool
}

func (f *PermissionOracle) LocationPermissionGranted() bool { return f.Granted }

// ConfigDelivery is a fully scriptable fake collaborators.ConfigDelivery.
type ConfigDelivery struct {
	mu      sync.Mutex
	updated chan struct{}
	pending *collaborators.PendingConfig
}

func NewConfigDelivery() *ConfigDelivery {
	return &ConfigDelivery{updated: make(chan struct{}, 1)}
}

func (f *ConfigDelivery) Updated() <-chan struct{} { return f.updated }

func (f *ConfigDelivery) PendingConfig() (collaborators.PendingConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return collaborators.PendingConfig{}, errNoPendingConfig
	}
	return *f.pending, nil
}

// Deliver sets the pending payload and signals Updated.
func (f *ConfigDelivery) Deliver(p collaborators.PendingConfig) {
	f.mu.Lock()
	f.pending = &p
	f.mu.Unlock()
	select {
	case f.updated <- struct{}{}:
	default:
	}
}

var errNoPendingConfig = &noPendingConfigError{}

type noPendingConfigError struct{}

func (*noPendingConfigError) Error() string { return "fakes: no pending config" }
