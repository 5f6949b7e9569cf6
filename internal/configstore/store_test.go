package configstore

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/satgate/internal/rangefile/rfgen"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s, err := New(Config{Logger: testLogger(), Clock: clock, PrivateDir: t.TempDir()})
	require.NoError(t, err)
	return s, clock
}

func writeOverlay(t *testing.T, codes []string, mode Mode, rangeFilePath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.json")
	data, err := json.Marshal(struct {
		CountryCodes          []string `json:"country_codes"`
		Mode                  Mode     `json:"mode"`
		RangeFilePath         string   `json:"range_file_path"`
		LocationFreshDuration string   `json:"location_fresh_duration"`
	}{codes, mode, rangeFilePath, "600s"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadOverlay_BecomesActiveSnapshot(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	path := writeOverlay(t, []string{"us", "ca"}, ModeAllowList, "")
	require.NoError(t, s.LoadOverlay(path))

	active := s.Active()
	require.NotNil(t, active)
	require.Equal(t, SourceOverlay, active.Source)
	require.Equal(t, ModeAllowList, active.Mode)
	_, ok := active.CountryCodes["US"]
	require.True(t, ok)
}

func TestPrecedence_TestOverrideBeatsUpdaterBeatsOverlay(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	require.NoError(t, s.LoadOverlay(writeOverlay(t, []string{"US"}, ModeAllowList, "")))
	require.Equal(t, SourceOverlay, s.Active().Source)

	rfPath := writeRangeFixture(t)
	allowed := true
	require.NoError(t, s.ApplyConfigUpdate(ConfigUpdatePayload{
		CountryCodes:       []string{"GB"},
		IsAllowedForRegion: &allowed,
		RangeFilePath:      rfPath,
	}))
	require.Equal(t, SourceConfigUpdater, s.Active().Source)

	s.SetTestOverride([]string{"FR"}, ModeDenyList, "", time.Minute)
	require.Equal(t, SourceTest, s.Active().Source)

	s.ResetTestOverride()
	require.Equal(t, SourceConfigUpdater, s.Active().Source)
}

func TestApplyConfigUpdate_RejectsBadCountryCode(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	require.NoError(t, s.LoadOverlay(writeOverlay(t, []string{"US"}, ModeAllowList, "")))

	allowed := true
	err := s.ApplyConfigUpdate(ConfigUpdatePayload{
		CountryCodes:       []string{"USA"},
		IsAllowedForRegion: &allowed,
		RangeFilePath:      writeRangeFixture(t),
	})
	require.ErrorIs(t, err, ErrInvalidCountryCode)
	require.Equal(t, SourceOverlay, s.Active().Source)
}

func TestApplyConfigUpdate_RejectsInvalidRangeFile(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	require.NoError(t, s.LoadOverlay(writeOverlay(t, []string{"US"}, ModeAllowList, "")))

	badPath := filepath.Join(t.TempDir(), "bad.bin")
	require.NoError(t, os.WriteFile(badPath, []byte("not a range file"), 0o644))

	allowed := true
	err := s.ApplyConfigUpdate(ConfigUpdatePayload{
		CountryCodes:       []string{"US"},
		IsAllowedForRegion: &allowed,
		RangeFilePath:      badPath,
	})
	require.ErrorIs(t, err, ErrInvalidRangeFile)
	require.Equal(t, SourceOverlay, s.Active().Source)
}

func TestPersistVerdict_RoundTripsAcrossRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()

	s1, err := New(Config{Logger: testLogger(), Clock: clock, PrivateDir: dir})
	require.NoError(t, err)
	v := CachedVerdict{Allowed: true, SetTime: clock.Now()}
	require.NoError(t, s1.PersistVerdict(v))

	s2, err := New(Config{Logger: testLogger(), Clock: clock, PrivateDir: dir})
	require.NoError(t, err)
	got, ok := s2.LoadPersistedVerdict()
	require.True(t, ok)
	require.Equal(t, v.Allowed, got.Allowed)
	require.Equal(t, v.SetTime.UnixNano(), got.SetTime.UnixNano())
}

func TestApplyConfigUpdate_ClearsPersistedVerdict(t *testing.T) {
	t.Parallel()
	s, clock := newTestStore(t)
	require.NoError(t, s.PersistVerdict(CachedVerdict{Allowed: true, SetTime: clock.Now()}))

	_, ok := s.LoadPersistedVerdict()
	require.True(t, ok)

	allowed := true
	require.NoError(t, s.ApplyConfigUpdate(ConfigUpdatePayload{
		CountryCodes:       []string{"US"},
		IsAllowedForRegion: &allowed,
		RangeFilePath:      writeRangeFixture(t),
	}))

	_, ok = s.LoadPersistedVerdict()
	require.False(t, ok)
}

func writeRangeFixture(t *testing.T) string {
	t.Helper()
	data := rfgen.Build(12, true, []rfgen.Range{{Start: 1000, End: 2000}})
	path := filepath.Join(t.TempDir(), "ranges.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
