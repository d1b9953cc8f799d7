package bot

import (
	"testing"

	"pgregory.net/rapid"

	"stream-wallet/internal/config"
)

// TestAdminPermissionCheckProperty checks that a user is an admin if and
// only if their id is configured.
func TestAdminPermissionCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := rapid.SliceOfN(rapid.Int64Range(1, 1000000000), 1, 10).Draw(t, "adminIDs")
		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		expected := false
		for _, id := range adminIDs {
			if id == userID {
				expected = true
				break
			}
		}

		if got := cfg.IsAdmin(userID); got != expected {
			t.Fatalf("admin check mismatch: userID=%d, adminIDs=%v, expected=%v, got=%v",
				userID, adminIDs, expected, got)
		}
	})
}

// TestKnownAdminProperty checks that every configured admin is recognized.
func TestKnownAdminProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := rapid.SliceOfN(rapid.Int64Range(1, 1000000000), 1, 10).Draw(t, "adminIDs")
		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}

		known := adminIDs[rapid.IntRange(0, len(adminIDs)-1).Draw(t, "adminIndex")]
		if !cfg.IsAdmin(known) {
			t.Fatalf("known admin %d not recognized, adminIDs=%v", known, adminIDs)
		}
	})
}

// TestEmptyAdminListDeniesEveryoneProperty checks that without configured
// admins the bot serves nobody.
func TestEmptyAdminListDeniesEveryoneProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := &config.Config{}
		userID := rapid.Int64().Draw(t, "userID")
		if cfg.IsAdmin(userID) {
			t.Fatalf("user %d recognized as admin with an empty admin list", userID)
		}
	})
}
