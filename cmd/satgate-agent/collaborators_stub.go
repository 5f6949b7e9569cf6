package main

import (
	"context"
	"time"

	"github.com/malbeclabs/satgate/internal/collaborators"
)

// The real CountryDetector/LocationProvider/SatelliteStatus/
// EmergencyOracle/PermissionOracle/ConfigDelivery implementations live
// in the platform's telephony and location stack, which is outside
// this repository's scope. The stubs below give the process something
// to run against standalone; a platform-specific build replaces them
// at the facade.Config call site in main().

// staticCountryDetector always reports the configured home country as
// the current network country, with no location or history data.
type staticCountryDetector struct {
	homeCC string
}

func (d *staticCountryDetector) CurrentNetworkCCList() []string {
	if d.homeCC == "" {
		return nil
	}
	return []string{d.homeCC}
}

func (d *staticCountryDetector) CachedLocationCC() (string, time.Time, bool) {
	return "", time.Time{}, false
}

func (d *staticCountryDetector) CachedNetworkCCHistory() map[string]time.Time {
	return nil
}

// unavailableLocationProvider reports no last-known fix and fails any
// live query immediately.
type unavailableLocationProvider struct{}

func (unavailableLocationProvider) LastKnown() (collaborators.Location, bool) {
	return collaborators.Location{}, false
}

func (unavailableLocationProvider) Current(ctx context.Context, reply func(*collaborators.Location)) func() {
	go reply(nil)
	return func() {}
}

// alwaysSatelliteStatus reports a fixed supported/provisioned answer.
type alwaysSatelliteStatus struct {
	supported   bool
	provisioned bool
}

func (s *alwaysSatelliteStatus) IsSupported(ctx context.Context, reply func(collaborators.QueryResult)) {
	reply(collaborators.QueryResult{OK: s.supported})
}

func (s *alwaysSatelliteStatus) IsProvisioned(ctx context.Context, reply func(collaborators.QueryResult)) {
	reply(collaborators.QueryResult{OK: s.provisioned})
}

// neverEmergency reports no active emergency.
type neverEmergency struct{}

func (neverEmergency) IsInEmergency() bool { return false }

// alwaysPermission reports a fixed location-permission answer.
type alwaysPermission struct{ granted bool }

func (p alwaysPermission) LocationPermissionGranted() bool { return p.granted }
