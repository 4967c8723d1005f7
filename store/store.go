// Package store defines the unified storage interface for PullPay
// entities. Every method is namespaced by engineID so that multiple
// engines (one per billing kind) can share a single backend without
// colliding on their sequential identifier spaces.
package store

import (
	"context"
	"errors"

	"github.com/xraph/pullpay/billing"
	"github.com/xraph/pullpay/types"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("store: duplicate record")
)

// ListOpts controls pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// Store is the unified storage interface for all PullPay entities.
// Instead of embedding sub-interfaces, all methods are declared
// explicitly to avoid naming conflicts.
type Store interface {
	// Billing model methods
	CreateBillingModel(ctx context.Context, engineID string, m *billing.BillingModel) error
	GetBillingModel(ctx context.Context, engineID string, modelID uint64) (*billing.BillingModel, error)
	GetBillingModelByReference(ctx context.Context, engineID, reference string) (*billing.BillingModel, error)
	BillingModelNameExists(ctx context.Context, engineID, name string) (bool, error)
	ListBillingModels(ctx context.Context, engineID string, opts ListOpts) ([]*billing.BillingModel, error)
	ListBillingModelsByPayee(ctx context.Context, engineID string, payee types.Address) ([]*billing.BillingModel, error)
	UpdateBillingModel(ctx context.Context, engineID string, m *billing.BillingModel) error
	NextBillingModelID(ctx context.Context, engineID string) (uint64, error)
	CurrentBillingModelID(ctx context.Context, engineID string) (uint64, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, engineID string, s *billing.Subscription) error
	GetSubscription(ctx context.Context, engineID string, subID uint64) (*billing.Subscription, error)
	GetSubscriptionByReference(ctx context.Context, engineID, reference string) (*billing.Subscription, error)
	ListSubscriptionsBySubscriber(ctx context.Context, engineID string, subscriber types.Address) ([]*billing.Subscription, error)
	ListDueSubscriptions(ctx context.Context, engineID string, now int64, opts ListOpts) ([]*billing.Subscription, error)
	UpdateSubscription(ctx context.Context, engineID string, s *billing.Subscription) error
	NextSubscriptionID(ctx context.Context, engineID string) (uint64, error)
	CurrentSubscriptionID(ctx context.Context, engineID string) (uint64, error)

	// Pull payment methods
	CreatePullPayment(ctx context.Context, engineID string, p *billing.PullPayment) error
	GetPullPayment(ctx context.Context, engineID string, paymentID uint64) (*billing.PullPayment, error)
	ListPullPaymentsBySubscription(ctx context.Context, engineID string, subID uint64) ([]*billing.PullPayment, error)
	UpdatePullPayment(ctx context.Context, engineID string, p *billing.PullPayment) error
	NextPullPaymentID(ctx context.Context, engineID string) (uint64, error)
	CurrentPullPaymentID(ctx context.Context, engineID string) (uint64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
