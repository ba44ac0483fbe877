package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/readstack/readstack-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestBooksMigrationGuardsCopyPool(t *testing.T) {
	content := readMigration(t, "*_create_books.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS books",
		"CHECK (available_copies >= 0)",
		"CHECK (available_copies <= total_copies)",
		"DROP TABLE IF EXISTS books",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestReservationsMigrationEnforcesSingleOpenEntry(t *testing.T) {
	content := readMigration(t, "*_create_reservations.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS reservations",
		"idx_reservations_open_member_book",
		"WHERE status IN ('pending', 'available')",
		"CHECK (queue_position >= 1)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestFinesMigrationEnforcesOneOverduePerLoan(t *testing.T) {
	content := readMigration(t, "*_create_fines.sql")

	checks := []string{
		"idx_fines_overdue_per_loan",
		"WHERE type = 'overdue'",
		"CHECK (amount_paid <= amount)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSubscriptionsMigrationDedupesPaymentRef(t *testing.T) {
	content := readMigration(t, "*_create_subscriptions.sql")

	if !strings.Contains(content, "idx_subscriptions_payment_ref") {
		t.Error("missing unique payment_ref index")
	}
	if !strings.Contains(content, "CHECK (expires_at > starts_at)") {
		t.Error("missing period check")
	}
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir invalid: %v", err)
	}
}
