// Package orchestrator implements the access-decision state machine
// of spec.md §4.F: a single goroutine driven entirely by an inbox
// channel, following the teacher's handler/message-loop idiom in
// controlplane/telemetry/global-monitor/internal/engine (one
// goroutine owns all mutable state; everything else talks to it
// through channels, never through shared memory).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/satgate/internal/collaborators"
	"github.com/malbeclabs/satgate/internal/configstore"
	"github.com/malbeclabs/satgate/internal/device"
	"github.com/malbeclabs/satgate/internal/rules"
	"github.com/malbeclabs/satgate/internal/s2cell"
	"github.com/malbeclabs/satgate/internal/subscriber"
	"github.com/malbeclabs/satgate/internal/telemetry"
	"github.com/malbeclabs/satgate/pkg/satgate"
)

const (
	cachedVerdictWindow  = 4 * time.Hour
	locationHardTimeout  = 180 * time.Second
	controllerIdleWindow = 30 * time.Minute
)

// ControllerOpener opens the on-device controller for a range file
// path. Production code uses device.New; tests substitute a fake.
type ControllerOpener func(path string) (*device.Controller, error)

// Config configures an Orchestrator.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	CountryDetector  collaborators.CountryDetector
	LocationProvider collaborators.LocationProvider
	SatelliteStatus  collaborators.SatelliteStatus
	Emergency        collaborators.EmergencyOracle
	Permission       collaborators.PermissionOracle

	ConfigStore  *configstore.Store
	Metrics      *telemetry.Metrics
	AnomalyLog   telemetry.AnomalyReporter
	Subscribers  *subscriber.Registry
	VerdictCache verdictCache

	// MockLocationAllowed mirrors the platform's mock-modem-allowed
	// system property: when false, a mock-flagged location fix is
	// treated as not-allowed rather than evaluated normally.
	MockLocationAllowed bool

	// ControllerOpener opens the on-device controller; defaults to
	// device.New.
	ControllerOpener ControllerOpener
}

// verdictCache is the seam internal/verdictcache.Cache satisfies,
// kept narrow so orchestrator tests can substitute a fake.
type verdictCache interface {
	Get(token s2cell.LocationToken) (bool, bool)
	Add(token s2cell.LocationToken, allowed bool)
	Len() int
	Clear()
}

func (c *Config) validate() error {
	switch {
	case c.Logger == nil:
		return fmt.Errorf("orchestrator: logger is required")
	case c.Clock == nil:
		return fmt.Errorf("orchestrator: clock is required")
	case c.CountryDetector == nil:
		return fmt.Errorf("orchestrator: country detector is required")
	case c.LocationProvider == nil:
		return fmt.Errorf("orchestrator: location provider is required")
	case c.SatelliteStatus == nil:
		return fmt.Errorf("orchestrator: satellite status is required")
	case c.Emergency == nil:
		return fmt.Errorf("orchestrator: emergency oracle is required")
	case c.Permission == nil:
		return fmt.Errorf("orchestrator: permission oracle is required")
	case c.ConfigStore == nil:
		return fmt.Errorf("orchestrator: config store is required")
	case c.AnomalyLog == nil:
		return fmt.Errorf("orchestrator: anomaly reporter is required")
	case c.Subscribers == nil:
		return fmt.Errorf("orchestrator: subscriber registry is required")
	case c.VerdictCache == nil:
		return fmt.Errorf("orchestrator: verdict cache is required")
	}
	return nil
}

// Orchestrator is the single-goroutine state machine of spec.md §4.F.
// Every field below is owned exclusively by the goroutine running
// Run; external callers only ever touch the inbox channel.
type Orchestrator struct {
	log   *slog.Logger
	clock clockwork.Clock

	countryDetector  collaborators.CountryDetector
	locationProvider collaborators.LocationProvider
	satelliteStatus  collaborators.SatelliteStatus
	emergency        collaborators.EmergencyOracle
	permission       collaborators.PermissionOracle

	configStore  *configstore.Store
	metrics      *telemetry.Metrics
	anomaly      telemetry.AnomalyReporter
	subscribers  *subscriber.Registry
	verdictCache verdictCache

	mockLocationAllowed bool
	openController      ControllerOpener

	inbox chan any

	// Goroutine-owned state below; never touched outside Run.
	controller     *device.Controller
	idleTimer      clockwork.Timer
	locationTimer  clockwork.Timer
	locationCancel func()

	pendingSinks   []satgate.ReplySink
	checkInFlight  bool
	checkStartedAt time.Time

	cachedVerdict *configstore.CachedVerdict
	lastAnnounced *bool
}

// New constructs an Orchestrator. It does not start its goroutine —
// call Run in a dedicated goroutine.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	opener := cfg.ControllerOpener
	if opener == nil {
		opener = device.New
	}

	o := &Orchestrator{
		log:                 cfg.Logger,
		clock:               cfg.Clock,
		countryDetector:     cfg.CountryDetector,
		locationProvider:    cfg.LocationProvider,
		satelliteStatus:     cfg.SatelliteStatus,
		emergency:           cfg.Emergency,
		permission:          cfg.Permission,
		configStore:         cfg.ConfigStore,
		metrics:             cfg.Metrics,
		anomaly:             cfg.AnomalyLog,
		subscribers:         cfg.Subscribers,
		verdictCache:        cfg.VerdictCache,
		mockLocationAllowed: cfg.MockLocationAllowed,
		openController:      opener,
		inbox:               make(chan any, 32),
	}
	if v, ok := cfg.ConfigStore.LoadPersistedVerdict(); ok {
		o.cachedVerdict = &v
	}
	return o, nil
}

// Check requests an allowed-state decision for callerID. Safe to call
// from any goroutine.
func (o *Orchestrator) Check(callerID string, reply satgate.ReplySink) {
	o.inbox <- checkMsg{callerID: callerID, reply: reply}
}

// NotifyConfigUpdated tells the orchestrator the active config
// snapshot changed. Safe to call from any goroutine.
func (o *Orchestrator) NotifyConfigUpdated() {
	o.inbox <- configUpdatedMsg{}
}

// SetCachedVerdictState applies the test-only cached-verdict lever of
// spec.md §6. Safe to call from any goroutine.
func (o *Orchestrator) SetCachedVerdictState(state satgate.CachedVerdictState) {
	o.inbox <- setCachedVerdictMsg{state: state}
}

// Run drives the message loop until ctx is cancelled, releasing all
// owned resources (controller, timers, outstanding location query)
// before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		var idleCh <-chan time.Time
		if o.idleTimer != nil {
			idleCh = o.idleTimer.Chan()
		}
		var locTimeoutCh <-chan time.Time
		if o.locationTimer != nil {
			locTimeoutCh = o.locationTimer.Chan()
		}

		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()

		case msg := <-o.inbox:
			o.dispatch(ctx, msg)

		case <-idleCh:
			o.handleIdleTimeout()

		case <-locTimeoutCh:
			o.handleLocationTimeout()
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case checkMsg:
		o.handleCheck(ctx, m)
	case locationArrivedMsg:
		o.handleLocationArrived(ctx, m)
	case configUpdatedMsg:
		o.handleConfigUpdated()
	case setCachedVerdictMsg:
		o.handleSetCachedVerdict(m.state)
	default:
		o.log.Warn("orchestrator: unrecognized message", "type", fmt.Sprintf("%T", msg))
	}
}

func (o *Orchestrator) shutdown() {
	if o.locationCancel != nil {
		o.locationCancel()
		o.locationCancel = nil
	}
	if o.locationTimer != nil {
		o.locationTimer.Stop()
		o.locationTimer = nil
	}
	if o.idleTimer != nil {
		o.idleTimer.Stop()
		o.idleTimer = nil
	}
	if o.controller != nil {
		_ = o.controller.Close()
		o.controller = nil
	}
}

// handleCheck implements the dataflow of spec.md §4.F: coalesce into
// any in-flight request, otherwise drive preconditions, the
// network-country shortcut, and the fallback branch.
func (o *Orchestrator) handleCheck(ctx context.Context, m checkMsg) {
	o.pendingSinks = append(o.pendingSinks, m.reply)
	if o.checkInFlight {
		return
	}
	o.checkInFlight = true
	o.checkStartedAt = o.clock.Now()
	o.driveCheck(ctx)
}

func (o *Orchestrator) driveCheck(ctx context.Context) {
	supported := o.queryBlocking(o.satelliteStatus.IsSupported)
	if supported.Error != nil {
		o.finish(satgate.Reply{Code: satgate.ResultSupportQueryFailed}, "precondition")
		return
	}
	if !supported.OK {
		o.finish(satgate.Reply{Code: satgate.ResultOK, Allowed: false}, "precondition")
		return
	}

	provisioned := o.queryBlocking(o.satelliteStatus.IsProvisioned)
	if provisioned.Error != nil {
		o.finish(satgate.Reply{Code: satgate.ResultProvisionQueryFailed}, "precondition")
		return
	}
	if !provisioned.OK {
		o.finish(satgate.Reply{Code: satgate.ResultOK, Allowed: false}, "precondition")
		return
	}

	if cc := o.countryDetector.CurrentNetworkCCList(); len(cc) > 0 {
		allowed := rules.Evaluate(o.configStore.Active(), cc)
		o.finish(satgate.Reply{Code: satgate.ResultOK, Allowed: allowed}, "network_cc")
		return
	}

	snapshot := o.configStore.Active()
	emergency := o.emergency.IsInEmergency()
	onDeviceEligible := snapshot.HasRangeFile() &&
		(emergency || o.permission.LocationPermissionGranted() || o.hasFreshLastKnown(snapshot))

	if !onDeviceEligible {
		o.cachedCountryCodeBranch()
		return
	}
	o.onDeviceBranch(ctx, snapshot, emergency)
}

func (o *Orchestrator) hasFreshLastKnown(snapshot *configstore.ConfigSnapshot) bool {
	loc, ok := o.locationProvider.LastKnown()
	return ok && loc.Elapsed <= snapshot.LocationFreshDuration
}

// queryBlocking suspends the orchestrator goroutine until start's
// externally-delivered reply arrives, per the suspension points
// named in spec.md §5.
func (o *Orchestrator) queryBlocking(start func(ctx context.Context, reply func(collaborators.QueryResult))) collaborators.QueryResult {
	ch := make(chan collaborators.QueryResult, 1)
	start(context.Background(), func(r collaborators.QueryResult) { ch <- r })
	return <-ch
}

func (o *Orchestrator) onDeviceBranch(ctx context.Context, snapshot *configstore.ConfigSnapshot, emergency bool) {
	if !emergency {
		if v, ok := o.freshCachedVerdict(); ok {
			o.finish(satgate.Reply{Code: satgate.ResultOK, Allowed: v.Allowed}, "cached_verdict")
			return
		}
	}

	if loc, ok := o.locationProvider.LastKnown(); ok && loc.Elapsed <= snapshot.LocationFreshDuration {
		o.onLocationObtained(loc)
		return
	}

	o.startLocationQuery(ctx)
}

func (o *Orchestrator) startLocationQuery(ctx context.Context) {
	o.locationCancel = o.locationProvider.Current(ctx, func(loc *collaborators.Location) {
		o.inbox <- locationArrivedMsg{loc: loc}
	})
	o.locationTimer = o.clock.NewTimer(locationHardTimeout)
}

func (o *Orchestrator) handleLocationArrived(ctx context.Context, m locationArrivedMsg) {
	o.stopLocationWait()
	if m.loc == nil {
		o.onLocationUnavailable()
		return
	}
	o.onLocationObtained(*m.loc)
}

func (o *Orchestrator) handleLocationTimeout() {
	if o.locationCancel != nil {
		o.locationCancel()
	}
	o.stopLocationWait()
	o.onLocationUnavailable()
}

func (o *Orchestrator) stopLocationWait() {
	if o.locationTimer != nil {
		o.locationTimer.Stop()
		o.locationTimer = nil
	}
	o.locationCancel = nil
}

func (o *Orchestrator) onLocationUnavailable() {
	if v, ok := o.freshCachedVerdict(); ok {
		o.finish(satgate.Reply{Code: satgate.ResultOK, Allowed: v.Allowed}, "location_timeout")
		return
	}
	o.finish(satgate.Reply{Code: satgate.ResultLocationNotAvailable, Allowed: false}, "location_timeout")
}

func (o *Orchestrator) onLocationObtained(loc collaborators.Location) {
	if loc.IsMock && !o.mockLocationAllowed {
		o.finish(satgate.Reply{Code: satgate.ResultOK, Allowed: false}, "on_device")
		return
	}

	o.ensureControllerOpen()
	if o.controller == nil {
		o.cachedCountryCodeBranch()
		return
	}

	token := o.controller.TokenFor(loc.Lat, loc.Lon)
	allowed, ok := o.verdictCache.Get(token)
	if !ok {
		var lookupOK bool
		allowed, lookupOK = o.safeIsAllowed(token)
		if !lookupOK {
			if v, ok := o.freshCachedVerdict(); ok {
				o.finish(satgate.Reply{Code: satgate.ResultOK, Allowed: v.Allowed}, "on_device")
				return
			}
			o.finish(satgate.Reply{Code: satgate.ResultOK, Allowed: false}, "on_device")
			return
		}
		o.verdictCache.Add(token, allowed)
	}
	o.resetIdleTimer()

	v := configstore.CachedVerdict{Allowed: allowed, SetTime: o.clock.Now()}
	o.cachedVerdict = &v
	if err := o.configStore.PersistVerdict(v); err != nil {
		o.anomaly.ReportAnomaly("persist_verdict_failed", err)
	}

	o.finish(satgate.Reply{Code: satgate.ResultOK, Allowed: allowed}, "on_device")
}

// safeIsAllowed guards against an exceptional on-device lookup
// failure (spec.md §7's failure-taxonomy item 4): an unexpected panic
// inside the range-file lookup is reported as an anomaly and treated
// as a lookup failure rather than crashing the orchestrator goroutine.
func (o *Orchestrator) safeIsAllowed(token s2cell.LocationToken) (allowed bool, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.anomaly.ReportAnomaly("on_device_lookup_panic", fmt.Errorf("%v", r))
			allowed, ok = false, false
		}
	}()
	return o.controller.IsAllowed(token), true
}

func (o *Orchestrator) ensureControllerOpen() {
	if o.controller != nil {
		return
	}
	snapshot := o.configStore.Active()
	if !snapshot.HasRangeFile() {
		return
	}
	ctrl, err := o.openController(snapshot.RangeFilePath)
	if err != nil {
		o.anomaly.ReportAnomaly("on_device_controller_open_failed", err)
		return
	}
	o.controller = ctrl
	o.resetIdleTimer()
}

func (o *Orchestrator) resetIdleTimer() {
	if o.idleTimer == nil {
		o.idleTimer = o.clock.NewTimer(controllerIdleWindow)
		return
	}
	o.idleTimer.Stop()
	o.idleTimer.Reset(controllerIdleWindow)
}

func (o *Orchestrator) handleIdleTimeout() {
	if o.controller != nil {
		_ = o.controller.Close()
		o.controller = nil
	}
	o.idleTimer = nil
}

// cachedCountryCodeBranch implements the fallback branch of spec.md
// §4.F: choose between the detector's cached location-country and its
// cached network-country history by whichever was observed more
// recently (see DESIGN.md for how ties and the empty case resolve).
func (o *Orchestrator) cachedCountryCodeBranch() {
	locCC, locAt, locOK := o.countryDetector.CachedLocationCC()
	history := o.countryDetector.CachedNetworkCCHistory()

	var newestHistoryAt time.Time
	for _, at := range history {
		if at.After(newestHistoryAt) {
			newestHistoryAt = at
		}
	}

	var cc []string
	switch {
	case locOK && locAt.After(newestHistoryAt):
		cc = []string{locCC}
	case len(history) > 0:
		for code := range history {
			cc = append(cc, code)
		}
	}

	allowed := rules.Evaluate(o.configStore.Active(), cc)
	o.finish(satgate.Reply{Code: satgate.ResultOK, Allowed: allowed}, "cached_country_code")
}

func (o *Orchestrator) freshCachedVerdict() (configstore.CachedVerdict, bool) {
	if o.cachedVerdict == nil {
		return configstore.CachedVerdict{}, false
	}
	if !o.cachedVerdict.Fresh(o.clock.Now(), cachedVerdictWindow) {
		return configstore.CachedVerdict{}, false
	}
	return *o.cachedVerdict, true
}

// handleConfigUpdated implements spec.md §4.F's ConfigUpdated
// transition: invalidate per-location caches, release the on-device
// controller, and do not itself trigger a recheck.
func (o *Orchestrator) handleConfigUpdated() {
	o.verdictCache.Clear()
	o.cachedVerdict = nil
	if o.controller != nil {
		_ = o.controller.Close()
		o.controller = nil
	}
	if o.idleTimer != nil {
		o.idleTimer.Stop()
		o.idleTimer = nil
	}
	if o.metrics != nil {
		o.metrics.ConfigUpdatesTotal.WithLabelValues("applied").Inc()
	}
}

func (o *Orchestrator) handleSetCachedVerdict(state satgate.CachedVerdictState) {
	switch state {
	case satgate.CacheAllowed:
		v := configstore.CachedVerdict{Allowed: true, SetTime: o.clock.Now()}
		o.cachedVerdict = &v
		_ = o.configStore.PersistVerdict(v)
	case satgate.CacheClearAndNotAllowed:
		o.cachedVerdict = nil
		_ = o.configStore.ClearPersistedVerdict()
	case satgate.CacheClearOnly:
		o.cachedVerdict = nil
	}
}

// finish delivers reply to every coalesced sink, notifies subscribers
// on an allowed-state transition, and records metrics, per spec.md
// §4.F/§4.G.
func (o *Orchestrator) finish(reply satgate.Reply, path string) {
	sinks := o.pendingSinks
	o.pendingSinks = nil
	o.checkInFlight = false

	for _, sink := range sinks {
		sink(reply)
	}

	if o.lastAnnounced == nil || *o.lastAnnounced != reply.Allowed {
		o.subscribers.Notify(reply.Allowed)
		allowed := reply.Allowed
		o.lastAnnounced = &allowed
	}

	if o.metrics != nil {
		o.metrics.ChecksTotal.WithLabelValues(path, string(reply.Code)).Inc()
		o.metrics.CheckDuration.Observe(o.clock.Now().Sub(o.checkStartedAt).Seconds())
		o.metrics.VerdictCacheSize.Set(float64(o.verdictCache.Len()))
		o.metrics.SubscribersActive.Set(float64(o.subscribers.Len()))
	}
}
