// Package mongo implements store.Store using MongoDB via the Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/pullpay/billing"
	pullpaystore "github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/types"
)

// Collection name constants.
const (
	colBillingModels = "pullpay_billing_models"
	colSubscriptions = "pullpay_subscriptions"
	colPullPayments  = "pullpay_pull_payments"
	colCounters      = "pullpay_counters"
)

// compile-time interface check
var _ pullpaystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("pullpay/mongo: migrate %s indexes: %w", col, err)
		}
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
	d := toBillingModelDoc(engineID, m)
	_, err := s.mdb.NewInsert(d).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pullpaystore.ErrDuplicate
		}
		return fmt.Errorf("pullpay/mongo: create billing model: %w", err)
	}
	return nil
}

func (s *Store) GetBillingModel(ctx context.Context, engineID string, modelID uint64) (*billing.BillingModel, error) {
	var d billingModelDoc
	err := s.mdb.NewFind(&d).
		Filter(bson.M{"_id": docKey(engineID, modelID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, pullpaystore.ErrNotFound
		}
		return nil, fmt.Errorf("pullpay/mongo: get billing model: %w", err)
	}
	return fromBillingModelDoc(&d)
}

func (s *Store) GetBillingModelByReference(ctx context.Context, engineID, reference string) (*billing.BillingModel, error) {
	var d billingModelDoc
	err := s.mdb.NewFind(&d).
		Filter(bson.M{"engine_id": engineID, "unique_reference": reference}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, pullpaystore.ErrNotFound
		}
		return nil, fmt.Errorf("pullpay/mongo: get billing model by reference: %w", err)
	}
	return fromBillingModelDoc(&d)
}

func (s *Store) BillingModelNameExists(ctx context.Context, engineID, name string) (bool, error) {
	count, err := s.mdb.Collection(colBillingModels).CountDocuments(ctx,
		bson.M{"engine_id": engineID, "name": name})
	if err != nil {
		return false, fmt.Errorf("pullpay/mongo: billing model name exists: %w", err)
	}
	return count > 0, nil
}

func (s *Store) ListBillingModels(ctx context.Context, engineID string, opts pullpaystore.ListOpts) ([]*billing.BillingModel, error) {
	var docs []billingModelDoc

	q := s.mdb.NewFind(&docs).
		Filter(bson.M{"engine_id": engineID}).
		Sort(bson.D{{Key: "model_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("pullpay/mongo: list billing models: %w", err)
	}
	return modelsFromDocs(docs)
}

func (s *Store) ListBillingModelsByPayee(ctx context.Context, engineID string, payee types.Address) ([]*billing.BillingModel, error) {
	var docs []billingModelDoc
	err := s.mdb.NewFind(&docs).
		Filter(bson.M{"engine_id": engineID, "payee": payee.Hex()}).
		Sort(bson.D{{Key: "model_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("pullpay/mongo: list billing models by payee: %w", err)
	}
	return modelsFromDocs(docs)
}

func (s *Store) UpdateBillingModel(ctx context.Context, engineID string, m *billing.BillingModel) error {
	d := toBillingModelDoc(engineID, m)

	res, err := s.mdb.NewUpdate(d).
		Filter(bson.M{"_id": d.Key}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("pullpay/mongo: update billing model: %w", err)
	}
	if res.MatchedCount() == 0 {
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
	d := toSubscriptionDoc(engineID, sub)
	_, err := s.mdb.NewInsert(d).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pullpaystore.ErrDuplicate
		}
		return fmt.Errorf("pullpay/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, engineID string, subID uint64) (*billing.Subscription, error) {
	var d subscriptionDoc
	err := s.mdb.NewFind(&d).
		Filter(bson.M{"_id": docKey(engineID, subID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, pullpaystore.ErrNotFound
		}
		return nil, fmt.Errorf("pullpay/mongo: get subscription: %w", err)
	}
	return fromSubscriptionDoc(&d)
}

func (s *Store) GetSubscriptionByReference(ctx context.Context, engineID, reference string) (*billing.Subscription, error) {
	var d subscriptionDoc
	err := s.mdb.NewFind(&d).
		Filter(bson.M{"engine_id": engineID, "unique_reference": reference}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, pullpaystore.ErrNotFound
		}
		return nil, fmt.Errorf("pullpay/mongo: get subscription by reference: %w", err)
	}
	return fromSubscriptionDoc(&d)
}

func (s *Store) ListSubscriptionsBySubscriber(ctx context.Context, engineID string, subscriber types.Address) ([]*billing.Subscription, error) {
	var docs []subscriptionDoc
	err := s.mdb.NewFind(&docs).
		Filter(bson.M{"engine_id": engineID, "subscriber": subscriber.Hex()}).
		Sort(bson.D{{Key: "subscription_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("pullpay/mongo: list subscriptions by subscriber: %w", err)
	}
	return subscriptionsFromDocs(docs)
}

func (s *Store) ListDueSubscriptions(ctx context.Context, engineID string, now int64, opts pullpaystore.ListOpts) ([]*billing.Subscription, error) {
	var docs []subscriptionDoc

	q := s.mdb.NewFind(&docs).
		Filter(bson.M{
			"engine_id":              engineID,
			"cancel_timestamp":       int64(0),
			"remaining_payments":     bson.M{"$gt": int64(0)},
			"upkeep_disabled":        false,
			"next_payment_timestamp": bson.M{"$lte": now},
		}).
		Sort(bson.D{{Key: "subscription_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("pullpay/mongo: list due subscriptions: %w", err)
	}
	return subscriptionsFromDocs(docs)
}

func (s *Store) UpdateSubscription(ctx context.Context, engineID string, sub *billing.Subscription) error {
	d := toSubscriptionDoc(engineID, sub)

	res, err := s.mdb.NewUpdate(d).
		Filter(bson.M{"_id": d.Key}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("pullpay/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
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
	d := toPullPaymentDoc(engineID, p)
	_, err := s.mdb.NewInsert(d).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pullpaystore.ErrDuplicate
		}
		return fmt.Errorf("pullpay/mongo: create pull payment: %w", err)
	}
	return nil
}

func (s *Store) GetPullPayment(ctx context.Context, engineID string, paymentID uint64) (*billing.PullPayment, error) {
	var d pullPaymentDoc
	err := s.mdb.NewFind(&d).
		Filter(bson.M{"_id": docKey(engineID, paymentID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, pullpaystore.ErrNotFound
		}
		return nil, fmt.Errorf("pullpay/mongo: get pull payment: %w", err)
	}
	return fromPullPaymentDoc(&d)
}

func (s *Store) ListPullPaymentsBySubscription(ctx context.Context, engineID string, subID uint64) ([]*billing.PullPayment, error) {
	var docs []pullPaymentDoc
	err := s.mdb.NewFind(&docs).
		Filter(bson.M{"engine_id": engineID, "subscription_id": int64(subID)}).
		Sort(bson.D{{Key: "payment_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("pullpay/mongo: list pull payments: %w", err)
	}

	result := make([]*billing.PullPayment, len(docs))
	for i := range docs {
		p, err := fromPullPaymentDoc(&docs[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePullPayment(ctx context.Context, engineID string, p *billing.PullPayment) error {
	d := toPullPaymentDoc(engineID, p)

	res, err := s.mdb.NewUpdate(d).
		Filter(bson.M{"_id": d.Key}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("pullpay/mongo: update pull payment: %w", err)
	}
	if res.MatchedCount() == 0 {
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

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// nextID atomically increments a per-engine sequence via an upserted counter
// document.
func (s *Store) nextID(ctx context.Context, engineID, entity string) (uint64, error) {
	var d counterDoc
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": engineID + ":" + entity},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		return 0, fmt.Errorf("pullpay/mongo: next id: %w", err)
	}
	return uint64(d.Value), nil
}

func (s *Store) currentID(ctx context.Context, engineID, entity string) (uint64, error) {
	var d counterDoc
	err := s.mdb.Collection(colCounters).FindOne(ctx,
		bson.M{"_id": engineID + ":" + entity},
	).Decode(&d)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("pullpay/mongo: current id: %w", err)
	}
	return uint64(d.Value), nil
}

func modelsFromDocs(docs []billingModelDoc) ([]*billing.BillingModel, error) {
	result := make([]*billing.BillingModel, len(docs))
	for i := range docs {
		m, err := fromBillingModelDoc(&docs[i])
		if err != nil {
			return nil, err
		}
		result[i] = m
	}
	return result, nil
}

func subscriptionsFromDocs(docs []subscriptionDoc) ([]*billing.Subscription, error) {
	result := make([]*billing.Subscription, len(docs))
	for i := range docs {
		sub, err := fromSubscriptionDoc(&docs[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colBillingModels: {
			{
				Keys:    bson.D{{Key: "engine_id", Value: 1}, {Key: "unique_reference", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "engine_id", Value: 1}, {Key: "payee", Value: 1}}},
			{Keys: bson.D{{Key: "engine_id", Value: 1}, {Key: "name", Value: 1}}},
		},
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "engine_id", Value: 1}, {Key: "unique_reference", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "engine_id", Value: 1}, {Key: "subscriber", Value: 1}}},
			{Keys: bson.D{{Key: "engine_id", Value: 1}, {Key: "next_payment_timestamp", Value: 1}}},
		},
		colPullPayments: {
			{Keys: bson.D{{Key: "engine_id", Value: 1}, {Key: "subscription_id", Value: 1}}},
		},
	}
}
