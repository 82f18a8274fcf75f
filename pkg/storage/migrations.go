package storage

import (
	"database/sql"
	"fmt"
)

// Money is stored as TEXT so decimal values round-trip exactly.
// Cost dates are YYYY-MM-DD; other timestamps are RFC3339 UTC.
var migrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS cost_records (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		account_id  TEXT NOT NULL DEFAULT '',
		date        TEXT NOT NULL,
		service     TEXT NOT NULL DEFAULT '',
		region      TEXT NOT NULL DEFAULT '',
		usage_type  TEXT NOT NULL DEFAULT '',
		tags        TEXT NOT NULL DEFAULT '{}',
		cost        TEXT NOT NULL,
		currency    TEXT NOT NULL DEFAULT 'USD',
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cost_tenant_date ON cost_records(tenant_id, date);
	CREATE INDEX IF NOT EXISTS idx_cost_service ON cost_records(service);
	CREATE INDEX IF NOT EXISTS idx_cost_region ON cost_records(region);

	CREATE TABLE IF NOT EXISTS budgets (
		id                    TEXT PRIMARY KEY,
		tenant_id             TEXT NOT NULL,
		account_id            TEXT NOT NULL DEFAULT '',
		service_name          TEXT NOT NULL DEFAULT '',
		region                TEXT NOT NULL DEFAULT '',
		name                  TEXT NOT NULL DEFAULT '',
		description           TEXT NOT NULL DEFAULT '',
		amount                TEXT NOT NULL,
		period                TEXT NOT NULL CHECK(period IN ('daily', 'weekly', 'monthly', 'quarterly', 'annually')),
		threshold_pct         INTEGER NOT NULL DEFAULT 80,
		channels              TEXT NOT NULL DEFAULT '[]',
		notification_emails   TEXT NOT NULL DEFAULT '[]',
		slack_webhook_url     TEXT NOT NULL DEFAULT '',
		webhook_url           TEXT NOT NULL DEFAULT '',
		is_active             INTEGER NOT NULL DEFAULT 1,
		last_alert_sent_at    TEXT,
		created_at            TEXT NOT NULL,
		updated_at            TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_budget_tenant ON budgets(tenant_id, is_active);

	CREATE TABLE IF NOT EXISTS budget_alerts (
		id                   TEXT PRIMARY KEY,
		budget_id            TEXT NOT NULL,
		alert_type           TEXT NOT NULL CHECK(alert_type IN ('threshold_exceeded', 'budget_exceeded')),
		current_amount       TEXT NOT NULL,
		budget_amount        TEXT NOT NULL,
		percentage_used      TEXT NOT NULL,
		period_start         TEXT NOT NULL,
		period_end           TEXT NOT NULL,
		notification_sent    INTEGER NOT NULL DEFAULT 0,
		notification_sent_at TEXT,
		channels_used        TEXT NOT NULL DEFAULT '[]',
		created_at           TEXT NOT NULL,
		UNIQUE(budget_id, period_start, period_end)
	);

	CREATE INDEX IF NOT EXISTS idx_alert_budget_created ON budget_alerts(budget_id, created_at);

	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		if err := applyMigration(db, i+1, migrations[i]); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(db *sql.DB, version int, stmt string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("run migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}
	return nil
}
