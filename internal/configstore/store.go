// Package configstore arbitrates between the built-in overlay
// defaults, a dynamically delivered config-updater dataset, and a
// test override, per spec.md §4.E. It owns the only file handle this
// service writes to: a small JSON state file persisted via
// write-temp-then-rename, the same atomic-write idiom used by the
// teacher's client/doublezerod/internal/manager package.
package configstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/satgate/internal/device"
)

const defaultLocationFreshDuration = 600 * time.Second

// verdictMemoTTL bounds how long LoadPersistedVerdict serves the
// latest verdict out of memory before falling back to disk, mirroring
// the cached-verdict freshness window the orchestrator applies on top
// (internal/orchestrator's cachedVerdictWindow). Modeled on the
// teacher's controlplane/telemetry/internal/data/internet provider,
// which keeps a ttlcache.Cache in front of its own on-disk/remote
// reads rather than hitting them on every lookup.
const verdictMemoTTL = 4 * time.Hour

const verdictMemoKey = "verdict"

// OverlayFile is the on-disk shape of the overlay defaults config,
// per spec.md §4.E.
type OverlayFile struct {
	CountryCodes          []string `json:"country_codes"`
	Mode                  Mode     `json:"mode"`
	RangeFilePath         string   `json:"range_file_path"`
	LocationFreshDuration Duration `json:"location_fresh_duration"`
}

// Duration allows the overlay JSON file to spell durations as "600s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Store arbitrates overlay, config-updater, and test-override
// snapshots (test > updater > overlay) and persists the latest
// verdict and config-updater selection across restarts.
type Store struct {
	log   *slog.Logger
	clock clockwork.Clock

	privateDir    string
	stateFilePath string

	overlay atomic.Pointer[ConfigSnapshot]
	updater atomic.Pointer[ConfigSnapshot]
	test    atomic.Pointer[ConfigSnapshot]

	changedCh chan struct{}

	verdictMemoMu sync.RWMutex
	verdictMemo   *ttlcache.Cache[string, CachedVerdict]
}

// Config configures a Store.
type Config struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	PrivateDir string
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return fmt.Errorf("configstore: logger is required")
	}
	if c.Clock == nil {
		return fmt.Errorf("configstore: clock is required")
	}
	if c.PrivateDir == "" {
		return fmt.Errorf("configstore: private dir is required")
	}
	return nil
}

// New constructs a Store rooted at cfg.PrivateDir and loads any
// config-updater selection and cached verdict persisted there from a
// previous run. It does not load the overlay — call LoadOverlay
// separately with the operator-supplied defaults path.
func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.PrivateDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating private dir: %v", ErrIO, err)
	}

	s := &Store{
		log:           cfg.Logger,
		clock:         cfg.Clock,
		privateDir:    cfg.PrivateDir,
		stateFilePath: filepath.Join(cfg.PrivateDir, stateFileName),
		changedCh:     make(chan struct{}, 1),
		verdictMemo:   ttlcache.New(ttlcache.WithTTL[string, CachedVerdict](verdictMemoTTL)),
	}

	persisted, err := loadPersistedState(s.stateFilePath)
	if err != nil {
		return nil, err
	}
	if persisted.HasConfigUpdaterSnapshot {
		mode := ModeDenyList
		if persisted.ConfigUpdaterIsAllowList {
			mode = ModeAllowList
		}
		s.updater.Store(newSnapshot(persisted.ConfigUpdaterCountryCodes, mode, s.rangeFilePath(), defaultLocationFreshDuration, SourceConfigUpdater))
	}
	return s, nil
}

func (s *Store) rangeFilePath() string {
	return filepath.Join(s.privateDir, "current-range-file.bin")
}

// LoadOverlay reads the operator-supplied overlay defaults file and
// installs it as the lowest-precedence snapshot.
func (s *Store) LoadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading overlay file: %v", ErrIO, err)
	}
	var f OverlayFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: decoding overlay file: %v", ErrIO, err)
	}

	fresh := time.Duration(f.LocationFreshDuration)
	if fresh <= 0 {
		fresh = defaultLocationFreshDuration
	}
	s.overlay.Store(newSnapshot(normalizeCountryCodes(f.CountryCodes), f.Mode, f.RangeFilePath, fresh, SourceOverlay))
	return nil
}

// Active resolves precedence (test > config-updater > overlay) and
// returns the currently effective, read-only snapshot.
func (s *Store) Active() *ConfigSnapshot {
	if t := s.test.Load(); t != nil {
		return t
	}
	if u := s.updater.Load(); u != nil {
		return u
	}
	return s.overlay.Load()
}

// ApplyConfigUpdate validates and installs a new config-updater
// snapshot, per spec.md §4.E. On any failure the active snapshot is
// left untouched and a wrapped sentinel error is returned.
func (s *Store) ApplyConfigUpdate(payload ConfigUpdatePayload) error {
	if payload.IsAllowedForRegion == nil {
		return fmt.Errorf("%w: is_allowed_for_region not set", ErrInvalidRangeFile)
	}
	codes := normalizeCountryCodes(payload.CountryCodes)
	if err := validateCountryCodes(codes); err != nil {
		return err
	}

	dest := s.rangeFilePath()
	if err := copyFileAtomic(payload.RangeFilePath, dest); err != nil {
		return fmt.Errorf("%w: copying range file: %v", ErrInvalidRangeFile, err)
	}

	// Open-and-validate via the production controller, then close
	// immediately: this store only needs a pass/fail verdict, not a
	// live handle (the orchestrator opens its own on first use).
	ctrl, err := device.New(dest)
	if err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("%w: %v", ErrInvalidRangeFile, err)
	}
	_ = ctrl.Close()

	mode := ModeDenyList
	if *payload.IsAllowedForRegion {
		mode = ModeAllowList
	}

	existing := s.Active()
	fresh := defaultLocationFreshDuration
	if existing != nil {
		fresh = existing.LocationFreshDuration
	}
	s.updater.Store(newSnapshot(codes, mode, dest, fresh, SourceConfigUpdater))

	if err := s.persistConfigUpdaterSelection(codes, mode); err != nil {
		return err
	}
	// A ConfigUpdated transition also invalidates any persisted
	// cached verdict (spec.md §9's resolved open question).
	if err := s.ClearPersistedVerdict(); err != nil {
		return err
	}

	s.notifyChanged()
	return nil
}

func (s *Store) persistConfigUpdaterSelection(codes []string, mode Mode) error {
	current, err := loadPersistedState(s.stateFilePath)
	if err != nil {
		return err
	}
	current.ConfigUpdaterCountryCodes = codes
	current.ConfigUpdaterIsAllowList = mode == ModeAllowList
	current.HasConfigUpdaterSnapshot = true
	return writeState(s.stateFilePath, current)
}

// SetTestOverride installs a test-only snapshot superseding both the
// overlay and config-updater snapshots until ResetTestOverride. Never
// persisted.
func (s *Store) SetTestOverride(codes []string, mode Mode, rangeFilePath string, freshDuration time.Duration) {
	if freshDuration <= 0 {
		freshDuration = defaultLocationFreshDuration
	}
	s.test.Store(newSnapshot(normalizeCountryCodes(codes), mode, rangeFilePath, freshDuration, SourceTest))
	s.notifyChanged()
}

// ResetTestOverride clears the test snapshot, reverting precedence to
// config-updater/overlay.
func (s *Store) ResetTestOverride() {
	s.test.Store(nil)
	s.notifyChanged()
}

// PersistVerdict durably records v as the latest verdict.
func (s *Store) PersistVerdict(v CachedVerdict) error {
	current, err := loadPersistedState(s.stateFilePath)
	if err != nil {
		return err
	}
	current.LatestAllowed = v.Allowed
	current.LatestAllowedSetTimeNs = v.SetTime.UnixNano()
	current.HasLatestAllowed = true
	if err := writeState(s.stateFilePath, current); err != nil {
		return err
	}

	s.verdictMemoMu.Lock()
	s.verdictMemo.Set(verdictMemoKey, v, verdictMemoTTL)
	s.verdictMemoMu.Unlock()
	return nil
}

// LoadPersistedVerdict returns the last persisted verdict, if any. A
// hit in the in-memory verdictMemo is served without touching disk;
// it naturally expires after verdictMemoTTL, at which point this
// falls through to the on-disk state file.
func (s *Store) LoadPersistedVerdict() (CachedVerdict, bool) {
	s.verdictMemoMu.RLock()
	item := s.verdictMemo.Get(verdictMemoKey)
	s.verdictMemoMu.RUnlock()
	if item != nil {
		return item.Value(), true
	}

	current, err := loadPersistedState(s.stateFilePath)
	if err != nil {
		s.log.Warn("configstore: failed to load persisted verdict", "error", err)
		return CachedVerdict{}, false
	}
	if !current.HasLatestAllowed {
		return CachedVerdict{}, false
	}
	v := CachedVerdict{
		Allowed: current.LatestAllowed,
		SetTime: time.Unix(0, current.LatestAllowedSetTimeNs),
	}

	s.verdictMemoMu.Lock()
	s.verdictMemo.Set(verdictMemoKey, v, verdictMemoTTL)
	s.verdictMemoMu.Unlock()
	return v, true
}

// ClearPersistedVerdict removes the persisted latest-verdict record,
// leaving the config-updater selection (if any) untouched.
func (s *Store) ClearPersistedVerdict() error {
	current, err := loadPersistedState(s.stateFilePath)
	if err != nil {
		return err
	}
	current.HasLatestAllowed = false
	current.LatestAllowed = false
	current.LatestAllowedSetTimeNs = 0
	if err := writeState(s.stateFilePath, current); err != nil {
		return err
	}

	s.verdictMemoMu.Lock()
	s.verdictMemo.Delete(verdictMemoKey)
	s.verdictMemoMu.Unlock()
	return nil
}

// Changed signals whenever the active snapshot changes (config-updater
// update or test override set/reset), so the façade can forward a
// ConfigUpdated message to the orchestrator.
func (s *Store) Changed() <-chan struct{} { return s.changedCh }

func (s *Store) notifyChanged() {
	select {
	case s.changedCh <- struct{}{}:
	default:
	}
}

func copyFileAtomic(srcPath, destPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".range-file-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
