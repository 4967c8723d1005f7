package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the PullPay store (SQLite).
var Migrations = migrate.NewGroup("pullpay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_pullpay_billing_models",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pullpay_billing_models (
    key                TEXT PRIMARY KEY,
    engine_id          TEXT NOT NULL DEFAULT '',
    model_id           INTEGER NOT NULL DEFAULT 0,
    payee              TEXT NOT NULL DEFAULT '',
    name               TEXT NOT NULL DEFAULT '',
    merchant_name      TEXT NOT NULL DEFAULT '',
    unique_reference   TEXT NOT NULL DEFAULT '',
    merchant_url       TEXT NOT NULL DEFAULT '',
    amount             TEXT NOT NULL DEFAULT '',
    settlement_token   TEXT NOT NULL DEFAULT '',
    frequency          INTEGER NOT NULL DEFAULT 0,
    number_of_payments INTEGER NOT NULL DEFAULT 0,
    trial_period       INTEGER NOT NULL DEFAULT 0,
    initial_amount     TEXT NOT NULL DEFAULT '',
    recurring_type     INTEGER NOT NULL DEFAULT 0,
    creation_time      INTEGER NOT NULL DEFAULT 0,
    subscription_ids   TEXT NOT NULL DEFAULT '[]',
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pullpay_models_reference ON pullpay_billing_models (engine_id, unique_reference);
CREATE INDEX IF NOT EXISTS idx_pullpay_models_payee ON pullpay_billing_models (engine_id, payee);
CREATE INDEX IF NOT EXISTS idx_pullpay_models_name ON pullpay_billing_models (engine_id, name);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pullpay_billing_models`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_pullpay_subscriptions",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pullpay_subscriptions (
    key                    TEXT PRIMARY KEY,
    engine_id              TEXT NOT NULL DEFAULT '',
    subscription_id        INTEGER NOT NULL DEFAULT 0,
    billing_model_id       INTEGER NOT NULL DEFAULT 0,
    subscriber             TEXT NOT NULL DEFAULT '',
    payment_token          TEXT NOT NULL DEFAULT '',
    settlement_token       TEXT NOT NULL DEFAULT '',
    amount                 TEXT NOT NULL DEFAULT '',
    start_timestamp        INTEGER NOT NULL DEFAULT 0,
    next_payment_timestamp INTEGER NOT NULL DEFAULT 0,
    last_payment_timestamp INTEGER NOT NULL DEFAULT 0,
    cancel_timestamp       INTEGER NOT NULL DEFAULT 0,
    cancelled_by           TEXT NOT NULL DEFAULT '',
    total_payments         INTEGER NOT NULL DEFAULT 0,
    remaining_payments     INTEGER NOT NULL DEFAULT 0,
    frequency              INTEGER NOT NULL DEFAULT 0,
    trial_period           INTEGER NOT NULL DEFAULT 0,
    initial_amount         TEXT NOT NULL DEFAULT '',
    recurring_type         INTEGER NOT NULL DEFAULT 0,
    upkeep_disabled        INTEGER NOT NULL DEFAULT 0,
    pull_payment_ids       TEXT NOT NULL DEFAULT '[]',
    unique_reference       TEXT NOT NULL DEFAULT '',
    created_at             TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at             TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pullpay_subs_reference ON pullpay_subscriptions (engine_id, unique_reference);
CREATE INDEX IF NOT EXISTS idx_pullpay_subs_subscriber ON pullpay_subscriptions (engine_id, subscriber);
CREATE INDEX IF NOT EXISTS idx_pullpay_subs_due ON pullpay_subscriptions (engine_id, next_payment_timestamp);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pullpay_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_pullpay_pull_payments",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pullpay_pull_payments (
    key                 TEXT PRIMARY KEY,
    engine_id           TEXT NOT NULL DEFAULT '',
    payment_id          INTEGER NOT NULL DEFAULT 0,
    ref                 TEXT NOT NULL DEFAULT '',
    billing_model_id    INTEGER NOT NULL DEFAULT 0,
    subscription_id     INTEGER NOT NULL DEFAULT 0,
    amount              TEXT NOT NULL DEFAULT '',
    execution_timestamp INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pullpay_payments_sub ON pullpay_pull_payments (engine_id, subscription_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pullpay_pull_payments`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_pullpay_counters",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pullpay_counters (
    engine_id TEXT NOT NULL,
    entity    TEXT NOT NULL,
    value     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (engine_id, entity)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pullpay_counters`)
				return err
			},
		},
	)
}
