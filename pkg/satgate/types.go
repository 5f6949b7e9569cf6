// Package satgate defines the public request/reply surface for the
// satellite access-decision service.
package satgate

import "time"

// ResultCode is returned alongside every RequestIsAllowed reply.
type ResultCode string

const (
	ResultOK                   ResultCode = "OK"
	ResultRequestNotSupported  ResultCode = "REQUEST_NOT_SUPPORTED"
	ResultLocationNotAvailable ResultCode = "LOCATION_NOT_AVAILABLE"
	ResultSupportQueryFailed   ResultCode = "SUPPORT_QUERY_FAILED"
	ResultProvisionQueryFailed ResultCode = "PROVISION_QUERY_FAILED"
)

// RegistrationCode is returned by RegisterAllowedStateListener.
type RegistrationCode string

const (
	RegistrationOK                  RegistrationCode = "OK"
	RegistrationRequestNotSupported RegistrationCode = "REQUEST_NOT_SUPPORTED"
)

// Reply is the asynchronous result of a RequestIsAllowed call.
type Reply struct {
	Code    ResultCode
	Allowed bool
}

// ReplySink receives the asynchronous reply to a Check request.
type ReplySink func(Reply)

// AllowedStateSink receives allowed-state-changed notifications. A
// non-nil return removes the subscriber from the registry.
type AllowedStateSink func(allowed bool) error

// CachedVerdictState is the test-only lever for seeding or clearing
// the orchestrator's cached verdict, per spec.md §6.
type CachedVerdictState string

const (
	CacheAllowed            CachedVerdictState = "cache_allowed"
	CacheClearAndNotAllowed CachedVerdictState = "cache_clear_and_not_allowed"
	CacheClearOnly          CachedVerdictState = "clear_cache_only"
)

// TestOverride supersedes both the overlay and config-updater config
// snapshots until Reset. Permitted only when the platform's
// mock-modem-allowed system property is set. Never persisted.
type TestOverride struct {
	Reset                 bool
	IsAllowList           bool
	RangeFilePath         string
	LocationFreshDuration time.Duration
	CountryCodes          []string
}
