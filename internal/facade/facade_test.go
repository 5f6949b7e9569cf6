package facade

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/satgate/internal/collaborators"
	"github.com/malbeclabs/satgate/internal/collaborators/fakes"
	"github.com/malbeclabs/satgate/internal/configstore"
	"github.com/malbeclabs/satgate/internal/orchestrator"
	"github.com/malbeclabs/satgate/internal/rangefile/rfgen"
	"github.com/malbeclabs/satgate/internal/subscriber"
	"github.com/malbeclabs/satgate/internal/verdictcache"
	"github.com/malbeclabs/satgate/pkg/satgate"
)

func writeValidEmptyRangeFile(path string) error {
	return os.WriteFile(path, rfgen.Build(12, true, nil), 0o644)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFacade(t *testing.T, featureEnabled, mockAllowed bool, delivery collaborators.ConfigDelivery) (*Facade, func()) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store, err := configstore.New(configstore.Config{Logger: testLogger(), Clock: clock, PrivateDir: t.TempDir()})
	require.NoError(t, err)

	subs := subscriber.New()
	orch, err := orchestrator.New(orchestrator.Config{
		Logger:           testLogger(),
		Clock:            clock,
		CountryDetector:  &fakes.CountryDetector{},
		LocationProvider: &fakes.LocationProvider{},
		SatelliteStatus:  &fakes.SatelliteStatus{Supported: collaborators.QueryResult{OK: true}, Provisioned: collaborators.QueryResult{OK: true}},
		Emergency:        &fakes.EmergencyOracle{},
		Permission:       &fakes.PermissionOracle{},
		ConfigStore:      store,
		AnomalyLog:       &telemetryNoop{},
		Subscribers:      subs,
		VerdictCache:     verdictcache.New(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f, err := New(ctx, Config{
		Logger:           testLogger(),
		Orchestrator:     orch,
		ConfigStore:      store,
		Subscribers:      subs,
		ConfigDelivery:   delivery,
		FeatureEnabled:   func() bool { return featureEnabled },
		MockModemAllowed: func() bool { return mockAllowed },
	})
	require.NoError(t, err)
	return f, cancel
}

type telemetryNoop struct{}

func (telemetryNoop) ReportAnomaly(kind string, err error, fields ...any) {}

func TestRequestIsAllowed_FeatureDisabled(t *testing.T) {
	t.Parallel()
	f, cancel := newTestFacade(t, false, false, nil)
	defer cancel()

	ch := make(chan satgate.Reply, 1)
	f.RequestIsAllowed("caller", func(r satgate.Reply) { ch <- r })

	select {
	case r := <-ch:
		require.Equal(t, satgate.ResultRequestNotSupported, r.Code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestRegisterAllowedStateListener_FeatureDisabled(t *testing.T) {
	t.Parallel()
	f, cancel := newTestFacade(t, false, false, nil)
	defer cancel()

	_, code := f.RegisterAllowedStateListener(func(bool) error { return nil })
	require.Equal(t, satgate.RegistrationRequestNotSupported, code)
}

func TestSetTestOverride_RequiresMockModemAllowed(t *testing.T) {
	t.Parallel()
	f, cancel := newTestFacade(t, true, false, nil)
	defer cancel()

	ok := f.SetTestOverride(satgate.TestOverride{IsAllowList: true, CountryCodes: []string{"US"}})
	require.False(t, ok)
}

func TestSetTestOverride_AppliesAndDrivesCheck(t *testing.T) {
	t.Parallel()
	f, cancel := newTestFacade(t, true, true, nil)
	defer cancel()

	ok := f.SetTestOverride(satgate.TestOverride{IsAllowList: true, CountryCodes: []string{"US"}})
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	ch := make(chan satgate.Reply, 1)
	f.RequestIsAllowed("caller", func(r satgate.Reply) { ch <- r })
	select {
	case r := <-ch:
		require.Equal(t, satgate.ResultOK, r.Code)
		require.False(t, r.Allowed) // no network CC observed by the fake detector
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestShutdown_StopsBackgroundGoroutines(t *testing.T) {
	t.Parallel()
	f, cancel := newTestFacade(t, true, true, nil)
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	require.NoError(t, f.Shutdown(ctx))
}

func TestConfigDeliveryBridge_AppliesPendingConfig(t *testing.T) {
	t.Parallel()
	delivery := fakes.NewConfigDelivery()
	f, cancel := newTestFacade(t, true, true, delivery)
	defer cancel()

	allowed := true
	rfDir := t.TempDir()
	rfPath := rfDir + "/ranges.bin"
	require.NoError(t, writeValidEmptyRangeFile(rfPath))

	delivery.Deliver(collaborators.PendingConfig{
		CountryCodes:       []string{"US"},
		IsAllowedForRegion: &allowed,
		RangeFilePath:      rfPath,
	})

	require.Eventually(t, func() bool {
		return f.configStore.Active() != nil && f.configStore.Active().HasRangeFile()
	}, time.Second, 10*time.Millisecond)
}
