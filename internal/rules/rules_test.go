package rules_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/satgate/internal/configstore"
	"github.com/malbeclabs/satgate/internal/rules"
)

func snapshot(t *testing.T, mode configstore.Mode, codes []string) *configstore.ConfigSnapshot {
	t.Helper()
	set := map[string]struct{}{}
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return &configstore.ConfigSnapshot{Mode: mode, CountryCodes: set}
}

func TestEvaluate_AllowList_Hit(t *testing.T) {
	t.Parallel()
	s := snapshot(t, configstore.ModeAllowList, []string{"US", "CA"})
	require.True(t, rules.Evaluate(s, []string{"US"}))
}

func TestEvaluate_AllowList_PartialMiss(t *testing.T) {
	t.Parallel()
	s := snapshot(t, configstore.ModeAllowList, []string{"US", "CA"})
	require.False(t, rules.Evaluate(s, []string{"US", "MX"}))
}

func TestEvaluate_AllowList_EmptyCC_Uncertain(t *testing.T) {
	t.Parallel()
	s := snapshot(t, configstore.ModeAllowList, []string{"US"})
	require.False(t, rules.Evaluate(s, nil))
}

func TestEvaluate_DenyList_EmptySetEmptyCC_Allowed(t *testing.T) {
	t.Parallel()
	s := snapshot(t, configstore.ModeDenyList, nil)
	require.True(t, rules.Evaluate(s, nil))
}

func TestEvaluate_DenyList_EmptyCC_WithNonEmptySet_Denied(t *testing.T) {
	t.Parallel()
	s := snapshot(t, configstore.ModeDenyList, []string{"IR"})
	require.False(t, rules.Evaluate(s, nil))
}

func TestEvaluate_DenyList_Disjoint_Allowed(t *testing.T) {
	t.Parallel()
	s := snapshot(t, configstore.ModeDenyList, []string{"IR", "KP"})
	require.True(t, rules.Evaluate(s, []string{"US"}))
}

func TestEvaluate_DenyList_Intersects_Denied(t *testing.T) {
	t.Parallel()
	s := snapshot(t, configstore.ModeDenyList, []string{"IR", "KP"})
	require.False(t, rules.Evaluate(s, []string{"US", "IR"}))
}

func TestEvaluate_Idempotent(t *testing.T) {
	t.Parallel()
	s := snapshot(t, configstore.ModeAllowList, []string{"US"})
	first := rules.Evaluate(s, []string{"US"})
	second := rules.Evaluate(s, []string{"US"})
	require.Equal(t, first, second)
}
