// Package facade implements the boundary façade of spec.md §4.H: the
// only surface the rest of the platform talks to, gating every public
// entry point on a feature flag and owning the background goroutines
// that bridge collaborator-delivered events into the orchestrator.
// Modeled on the teacher's top-level service wrapper in
// controlplane/telemetry/internal/telemetry.Collector, which likewise
// starts its own background goroutines in New and tears them down in
// a single Shutdown(ctx).
package facade

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/malbeclabs/satgate/internal/collaborators"
	"github.com/malbeclabs/satgate/internal/configstore"
	"github.com/malbeclabs/satgate/internal/orchestrator"
	"github.com/malbeclabs/satgate/internal/subscriber"
	"github.com/malbeclabs/satgate/pkg/satgate"
)

// FeatureFlag reports whether the satellite-allowed feature is
// currently enabled for this device.
type FeatureFlag func() bool

// MockModemAllowed reports the platform's mock-modem-allowed system
// property, gating SetTestOverride.
type MockModemAllowed func() bool

// Config configures a Facade.
type Config struct {
	Logger *slog.Logger

	Orchestrator   *orchestrator.Orchestrator
	ConfigStore    *configstore.Store
	Subscribers    *subscriber.Registry
	ConfigDelivery collaborators.ConfigDelivery

	FeatureEnabled   FeatureFlag
	MockModemAllowed MockModemAllowed
}

func (c *Config) validate() error {
	switch {
	case c.Logger == nil:
		return fmt.Errorf("facade: logger is required")
	case c.Orchestrator == nil:
		return fmt.Errorf("facade: orchestrator is required")
	case c.ConfigStore == nil:
		return fmt.Errorf("facade: config store is required")
	case c.Subscribers == nil:
		return fmt.Errorf("facade: subscriber registry is required")
	case c.FeatureEnabled == nil:
		return fmt.Errorf("facade: feature flag is required")
	case c.MockModemAllowed == nil:
		return fmt.Errorf("facade: mock modem allowed flag is required")
	}
	return nil
}

// Facade is the process-wide entry point described in spec.md §4.H.
type Facade struct {
	log *slog.Logger

	orch           *orchestrator.Orchestrator
	configStore    *configstore.Store
	subscribers    *subscriber.Registry
	configDelivery collaborators.ConfigDelivery

	featureEnabled   FeatureFlag
	mockModemAllowed MockModemAllowed

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Facade and starts its background goroutines: the
// orchestrator's message loop and, if cfg.ConfigDelivery is set, a
// bridge from collaborator-delivered config updates into the config
// store and orchestrator.
func New(ctx context.Context, cfg Config) (*Facade, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	f := &Facade{
		log:              cfg.Logger,
		orch:             cfg.Orchestrator,
		configStore:      cfg.ConfigStore,
		subscribers:      cfg.Subscribers,
		configDelivery:   cfg.ConfigDelivery,
		featureEnabled:   cfg.FeatureEnabled,
		mockModemAllowed: cfg.MockModemAllowed,
		cancel:           cancel,
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := f.orch.Run(runCtx); err != nil && runCtx.Err() == nil {
			f.log.Error("facade: orchestrator loop exited unexpectedly", "error", err)
		}
	}()

	if f.configDelivery != nil {
		f.wg.Add(1)
		go f.runConfigDeliveryBridge(runCtx)
	}

	return f, nil
}

// runConfigDeliveryBridge applies pending config-updater payloads as
// they arrive and forwards a ConfigUpdated message to the
// orchestrator, per spec.md §4.E/§4.F's wiring.
func (f *Facade) runConfigDeliveryBridge(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.configDelivery.Updated():
			pending, err := f.configDelivery.PendingConfig()
			if err != nil {
				f.log.Warn("facade: config delivery fired with no pending config", "error", err)
				continue
			}
			payload := configstore.ConfigUpdatePayload{
				CountryCodes:       pending.CountryCodes,
				IsAllowedForRegion: pending.IsAllowedForRegion,
				RangeFilePath:      pending.RangeFilePath,
			}
			if err := f.configStore.ApplyConfigUpdate(payload); err != nil {
				f.log.Error("facade: rejected config update", "error", err)
				continue
			}
			f.orch.NotifyConfigUpdated()
		}
	}
}

// RequestIsAllowed is the asynchronous public request surface of
// spec.md §6.
func (f *Facade) RequestIsAllowed(callerID string, reply satgate.ReplySink) {
	if !f.featureEnabled() {
		reply(satgate.Reply{Code: satgate.ResultRequestNotSupported, Allowed: false})
		return
	}
	f.orch.Check(callerID, reply)
}

// RegisterAllowedStateListener registers sink for allowed-state-changed
// notifications, gated on the feature flag.
func (f *Facade) RegisterAllowedStateListener(sink satgate.AllowedStateSink) (uuid.UUID, satgate.RegistrationCode) {
	if !f.featureEnabled() {
		return uuid.Nil, satgate.RegistrationRequestNotSupported
	}
	return f.subscribers.Register(subscriber.Sink(sink)), satgate.RegistrationOK
}

// UnregisterAllowedStateListener removes a previously registered
// listener, if present.
func (f *Facade) UnregisterAllowedStateListener(id uuid.UUID) {
	f.subscribers.Unregister(id)
}

// SetTestOverride installs or resets the test override, gated on the
// mock-modem-allowed system property, per spec.md §6.
func (f *Facade) SetTestOverride(o satgate.TestOverride) bool {
	if !f.mockModemAllowed() {
		return false
	}
	if o.Reset {
		f.configStore.ResetTestOverride()
		f.orch.NotifyConfigUpdated()
		return true
	}

	mode := configstore.ModeDenyList
	if o.IsAllowList {
		mode = configstore.ModeAllowList
	}
	f.configStore.SetTestOverride(o.CountryCodes, mode, o.RangeFilePath, o.LocationFreshDuration)
	f.orch.NotifyConfigUpdated()
	return true
}

// SetCachedVerdictState applies the test-only cached-verdict lever of
// spec.md §6.
func (f *Facade) SetCachedVerdictState(state satgate.CachedVerdictState) {
	f.orch.SetCachedVerdictState(state)
}

// Shutdown cancels background goroutines and waits for them to exit,
// or for ctx to be done, whichever comes first. The orchestrator's own
// Run releases the controller, timers, and any in-flight location
// query as part of exiting.
func (f *Facade) Shutdown(ctx context.Context) error {
	f.cancel()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
