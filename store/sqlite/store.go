// Package sqlite implements store.Store using SQLite via the Grove ORM.
// Suited to embedded and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/pullpay/billing"
	pullpaystore "github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/types"
)

// compile-time interface check
var _ pullpaystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("pullpay/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("pullpay/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Billing models ====================

func (s *Store) CreateBillingModel(ctx context.Context, engineID string, m *billing.BillingModel) error {
	r := toBillingModelRow(engineID, m)
	_, err := s.sdb.NewInsert(r).Exec(ctx)
	if isDuplicate(err) {
		return pullpaystore.ErrDuplicate
	}
	return err
}

func (s *Store) GetBillingModel(ctx context.Context, engineID string, modelID uint64) (*billing.BillingModel, error) {
	r := new(billingModelRow)
	err := s.sdb.NewSelect(r).
		Where("key = ?", rowKey(engineID, modelID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, pullpaystore.ErrNotFound
		}
		return nil, err
	}
	return fromBillingModelRow(r)
}

func (s *Store) GetBillingModelByReference(ctx context.Context, engineID, reference string) (*billing.BillingModel, error) {
	r := new(billingModelRow)
	err := s.sdb.NewSelect(r).
		Where("engine_id = ?", engineID).
		Where("unique_reference = ?", reference).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, pullpaystore.ErrNotFound
		}
		return nil, err
	}
	return fromBillingModelRow(r)
}

func (s *Store) BillingModelNameExists(ctx context.Context, engineID, name string) (bool, error) {
	var count int64
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM pullpay_billing_models
		WHERE engine_id = ? AND name = ?
	`, engineID, name).Scan(ctx, &count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListBillingModels(ctx context.Context, engineID string, opts pullpaystore.ListOpts) ([]*billing.BillingModel, error) {
	var rows []billingModelRow
	q := s.sdb.NewSelect(&rows).Where("engine_id = ?", engineID)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("model_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return modelsFromRows(rows)
}

func (s *Store) ListBillingModelsByPayee(ctx context.Context, engineID string, payee types.Address) ([]*billing.BillingModel, error) {
	var rows []billingModelRow
	err := s.sdb.NewSelect(&rows).
		Where("engine_id = ?", engineID).
		Where("payee = ?", payee.Hex()).
		OrderExpr("model_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return modelsFromRows(rows)
}

func (s *Store) UpdateBillingModel(ctx context.Context, engineID string, m *billing.BillingModel) error {
	r := toBillingModelRow(engineID, m)
	res, err := s.sdb.NewUpdate(r).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pullpaystore.ErrNotFound
	}
	return nil
}

func (s *Store) NextBillingModelID(ctx context.Context, engineID string) (uint64, error) {
	return s.nextID(ctx, engineID, "billing_model")
}

func (s *Store) CurrentBillingModelID(ctx context.Context, engineID string) (uint64, error) {
	return s.currentID(ctx, engineID, "billing_model")
}

// ==================== Subscriptions ====================

func (s *Store) CreateSubscription(ctx context.Context, engineID string, sub *billing.Subscription) error {
	r := toSubscriptionRow(engineID, sub)
	_, err := s.sdb.NewInsert(r).Exec(ctx)
	if isDuplicate(err) {
		return pullpaystore.ErrDuplicate
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, engineID string, subID uint64) (*billing.Subscription, error) {
	r := new(subscriptionRow)
	err := s.sdb.NewSelect(r).
		Where("key = ?", rowKey(engineID, subID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, pullpaystore.ErrNotFound
		}
		return nil, err
	}
	return fromSubscriptionRow(r)
}

func (s *Store) GetSubscriptionByReference(ctx context.Context, engineID, reference string) (*billing.Subscription, error) {
	r := new(subscriptionRow)
	err := s.sdb.NewSelect(r).
		Where("engine_id = ?", engineID).
		Where("unique_reference = ?", reference).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, pullpaystore.ErrNotFound
		}
		return nil, err
	}
	return fromSubscriptionRow(r)
}

func (s *Store) ListSubscriptionsBySubscriber(ctx context.Context, engineID string, subscriber types.Address) ([]*billing.Subscription, error) {
	var rows []subscriptionRow
	err := s.sdb.NewSelect(&rows).
		Where("engine_id = ?", engineID).
		Where("subscriber = ?", subscriber.Hex()).
		OrderExpr("subscription_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return subscriptionsFromRows(rows)
}

func (s *Store) ListDueSubscriptions(ctx context.Context, engineID string, now int64, opts pullpaystore.ListOpts) ([]*billing.Subscription, error) {
	var rows []subscriptionRow
	q := s.sdb.NewSelect(&rows).
		Where("engine_id = ?", engineID).
		Where("cancel_timestamp = 0").
		Where("remaining_payments > 0").
		Where("upkeep_disabled = 0").
		Where("next_payment_timestamp <= ?", now)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("subscription_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return subscriptionsFromRows(rows)
}

func (s *Store) UpdateSubscription(ctx context.Context, engineID string, sub *billing.Subscription) error {
	r := toSubscriptionRow(engineID, sub)
	res, err := s.sdb.NewUpdate(r).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pullpaystore.ErrNotFound
	}
	return nil
}

func (s *Store) NextSubscriptionID(ctx context.Context, engineID string) (uint64, error) {
	return s.nextID(ctx, engineID, "subscription")
}

func (s *Store) CurrentSubscriptionID(ctx context.Context, engineID string) (uint64, error) {
	return s.currentID(ctx, engineID, "subscription")
}

// ==================== Pull payments ====================

func (s *Store) CreatePullPayment(ctx context.Context, engineID string, p *billing.PullPayment) error {
	r := toPullPaymentRow(engineID, p)
	_, err := s.sdb.NewInsert(r).Exec(ctx)
	if isDuplicate(err) {
		return pullpaystore.ErrDuplicate
	}
	return err
}

func (s *Store) GetPullPayment(ctx context.Context, engineID string, paymentID uint64) (*billing.PullPayment, error) {
	r := new(pullPaymentRow)
	err := s.sdb.NewSelect(r).
		Where("key = ?", rowKey(engineID, paymentID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, pullpaystore.ErrNotFound
		}
		return nil, err
	}
	return fromPullPaymentRow(r)
}

func (s *Store) ListPullPaymentsBySubscription(ctx context.Context, engineID string, subID uint64) ([]*billing.PullPayment, error) {
	var rows []pullPaymentRow
	err := s.sdb.NewSelect(&rows).
		Where("engine_id = ?", engineID).
		Where("subscription_id = ?", int64(subID)).
		OrderExpr("payment_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*billing.PullPayment, len(rows))
	for i := range rows {
		p, err := fromPullPaymentRow(&rows[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePullPayment(ctx context.Context, engineID string, p *billing.PullPayment) error {
	r := toPullPaymentRow(engineID, p)
	res, err := s.sdb.NewUpdate(r).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pullpaystore.ErrNotFound
	}
	return nil
}

func (s *Store) NextPullPaymentID(ctx context.Context, engineID string) (uint64, error) {
	return s.nextID(ctx, engineID, "pull_payment")
}

func (s *Store) CurrentPullPaymentID(ctx context.Context, engineID string) (uint64, error) {
	return s.currentID(ctx, engineID, "pull_payment")
}

// ==================== Helpers ====================

// nextID atomically increments a per-engine sequence.
func (s *Store) nextID(ctx context.Context, engineID, entity string) (uint64, error) {
	var value int64
	err := s.sdb.NewRaw(`
		INSERT INTO pullpay_counters (engine_id, entity, value)
		VALUES (?, ?, 1)
		ON CONFLICT (engine_id, entity)
		DO UPDATE SET value = value + 1
		RETURNING value
	`, engineID, entity).Scan(ctx, &value)
	if err != nil {
		return 0, err
	}
	return uint64(value), nil
}

func (s *Store) currentID(ctx context.Context, engineID, entity string) (uint64, error) {
	var value int64
	err := s.sdb.NewRaw(`
		SELECT COALESCE(
			(SELECT value FROM pullpay_counters WHERE engine_id = ? AND entity = ?),
			0
		)
	`, engineID, entity).Scan(ctx, &value)
	if err != nil {
		return 0, err
	}
	return uint64(value), nil
}

func modelsFromRows(rows []billingModelRow) ([]*billing.BillingModel, error) {
	result := make([]*billing.BillingModel, len(rows))
	for i := range rows {
		m, err := fromBillingModelRow(&rows[i])
		if err != nil {
			return nil, err
		}
		result[i] = m
	}
	return result, nil
}

func subscriptionsFromRows(rows []subscriptionRow) ([]*billing.Subscription, error) {
	result := make([]*billing.Subscription, len(rows))
	for i := range rows {
		sub, err := fromSubscriptionRow(&rows[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicate matches sqlite unique-violation errors.
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
