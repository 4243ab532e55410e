package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/groupbuyhq/groupbuy-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir invalid: %v", err)
	}
}

func TestParticipantsMigrationEnforcesActiveUniqueness(t *testing.T) {
	content := readMigration(t, "*_create_participants.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS participants",
		"FOREIGN KEY (procurement_id) REFERENCES procurements(id) ON DELETE CASCADE",
		"idx_participants_active_unique",
		"WHERE is_active",
		"DROP TABLE IF EXISTS participants",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestProcurementsMigrationCarriesCatalogColumns(t *testing.T) {
	content := readMigration(t, "*_create_procurements.sql")

	checks := []string{
		"target_amount numeric(12,2) NOT NULL",
		"price_per_unit numeric(10,2)",
		"unit text NOT NULL DEFAULT 'units'",
		"supplier_id uuid",
		"payment_deadline timestamptz",
		"is_featured boolean NOT NULL DEFAULT false",
		"CHECK (target_amount > 0)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentsMigrationEnforcesCorrelationKeys(t *testing.T) {
	content := readMigration(t, "*_create_payments.sql")

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_order_id ON payments (order_id)",
		"idx_payments_external_id",
		"WHERE external_id IS NOT NULL",
		"CHECK (amount > 0)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestTransactionsMigrationProtectsLedgerInvariants(t *testing.T) {
	content := readMigration(t, "*_create_transactions.sql")

	checks := []string{
		"CHECK (amount <> 0)",
		"CHECK (balance_after >= 0)",
		"idx_transactions_user_created",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
