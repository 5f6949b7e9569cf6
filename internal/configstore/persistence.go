package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const stateFileName = "satgate-state.json"

// persistedState is the on-disk shape of everything the config store
// must survive a restart with, per spec.md §6's "Persisted state":
// the latest verdict and the config-updater's last-known country
// codes/mode (the overlay is re-read from its own file on every
// startup and needs no persistence of its own).
type persistedState struct {
	LatestAllowed              bool     `json:"latest_allowed"`
	LatestAllowedSetTimeNs     int64    `json:"latest_allowed_set_time_ns"`
	HasLatestAllowed           bool     `json:"has_latest_allowed"`
	ConfigUpdaterCountryCodes  []string `json:"config_updater_country_codes"`
	ConfigUpdaterIsAllowList   bool     `json:"config_updater_is_allow_list"`
	HasConfigUpdaterSnapshot   bool     `json:"has_config_updater_snapshot"`
}

func loadPersistedState(path string) (persistedState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return persistedState{}, nil
		}
		return persistedState{}, fmt.Errorf("%w: reading state file: %v", ErrIO, err)
	}
	var s persistedState
	if err := json.Unmarshal(data, &s); err != nil {
		return persistedState{}, fmt.Errorf("%w: decoding state file: %v", ErrIO, err)
	}
	return s, nil
}

// writeState atomically persists s to path: write to a sibling temp
// file, then rename over the destination, so a crash mid-write never
// leaves a truncated/corrupt state file behind.
func writeState(path string, s persistedState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: marshaling state: %v", ErrIO, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating state dir: %v", ErrIO, err)
	}

	tmp, err := os.CreateTemp(dir, ".satgate-state-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp state file: %v", ErrIO, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: writing temp state file: %v", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp state file: %v", ErrIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: renaming state file: %v", ErrIO, err)
	}
	return nil
}
