package account

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccountsYAML = `
acme:
  id: "1234567890"
  login_customer_id: "9876543210"
  name: Acme Outdoor
  timezone: Australia/Sydney
  aliases: [acme-au, outdoor]
  brand_terms: [acme]
  competitor_terms: [rivalco]
widgets:
  id: "5550001111"
  name: Widget World
`

func writeAccounts(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testAccountsYAML), 0o644))
	return path
}

func TestLoadRegistry(t *testing.T) {
	registry, err := LoadRegistry(writeAccounts(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"acme", "widgets"}, registry.Keys())

	acc, err := registry.Lookup("acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", acc.Key)
	assert.Equal(t, "1234567890", acc.ID)
	assert.Equal(t, "9876543210", acc.Login())
	assert.Equal(t, []string{"acme"}, acc.BrandTerms)
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLookupByAlias(t *testing.T) {
	registry, err := LoadRegistry(writeAccounts(t))
	require.NoError(t, err)

	tests := []struct {
		alias string
		key   string
	}{
		{"acme-au", "acme"},
		{"OUTDOOR", "acme"},
		{"  Widgets ", "widgets"},
	}
	for _, tt := range tests {
		acc, err := registry.Lookup(tt.alias)
		require.NoError(t, err, tt.alias)
		assert.Equal(t, tt.key, acc.Key)
	}

	_, err = registry.Lookup("unknown")
	assert.Error(t, err)
}

func TestLoginFallsBackToID(t *testing.T) {
	acc := Account{ID: "5550001111"}
	assert.Equal(t, "5550001111", acc.Login())
}

func TestLocationDefaultsToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Account{}.Location())
	assert.Equal(t, time.UTC, Account{Timezone: "Not/AZone"}.Location())

	loc := Account{Timezone: "Australia/Sydney"}.Location()
	assert.Equal(t, "Australia/Sydney", loc.String())
}

func TestWindowEndsYesterday(t *testing.T) {
	acc := Account{Key: "acme", Timezone: "UTC"}
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	window := acc.Window(30, now)
	assert.Equal(t, "2026-08-30", window.EndDate())
	assert.Equal(t, "2026-08-01", window.StartDate())
	assert.Equal(t, 30, window.Days())
}

func TestWindowUsesAccountTimezone(t *testing.T) {
	acc := Account{Key: "acme", Timezone: "Australia/Sydney"}

	// 20:00 UTC on Aug 30 is already Aug 31 in Sydney, so "yesterday" there
	// is Aug 30.
	now := time.Date(2026, 8, 30, 20, 0, 0, 0, time.UTC)
	window := acc.Window(7, now)
	assert.Equal(t, "2026-08-30", window.EndDate())
	assert.Equal(t, "2026-08-24", window.StartDate())
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "acme-outdoor", Account{Key: "Acme Outdoor"}.Slug())
}
