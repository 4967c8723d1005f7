// Package memory provides an in-memory Store implementation backed by
// maps. It is the default backend for tests and embedded use; all data
// is lost on process exit.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/xraph/pullpay/billing"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/types"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	// engineID -> entityID -> record
	models        map[string]map[uint64]*billing.BillingModel
	subscriptions map[string]map[uint64]*billing.Subscription
	payments      map[string]map[uint64]*billing.PullPayment

	// engineID -> secondary indexes
	modelRefs map[string]map[string]uint64 // reference -> model id
	subRefs   map[string]map[string]uint64 // reference -> subscription id

	// engineID -> sequence counters
	modelSeq map[string]uint64
	subSeq   map[string]uint64
	paySeq   map[string]uint64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		models:        make(map[string]map[uint64]*billing.BillingModel),
		subscriptions: make(map[string]map[uint64]*billing.Subscription),
		payments:      make(map[string]map[uint64]*billing.PullPayment),
		modelRefs:     make(map[string]map[string]uint64),
		subRefs:       make(map[string]map[string]uint64),
		modelSeq:      make(map[string]uint64),
		subSeq:        make(map[string]uint64),
		paySeq:        make(map[string]uint64),
	}
}

var _ store.Store = (*Store)(nil)

// ──────────────────────────────────────────────────
// Billing models
// ──────────────────────────────────────────────────

func (s *Store) CreateBillingModel(_ context.Context, engineID string, m *billing.BillingModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.models[engineID] == nil {
		s.models[engineID] = make(map[uint64]*billing.BillingModel)
		s.modelRefs[engineID] = make(map[string]uint64)
	}
	if _, ok := s.models[engineID][m.ID]; ok {
		return store.ErrDuplicate
	}
	if _, ok := s.modelRefs[engineID][m.UniqueReference]; ok {
		return store.ErrDuplicate
	}

	s.models[engineID][m.ID] = cloneModel(m)
	s.modelRefs[engineID][m.UniqueReference] = m.ID
	return nil
}

func (s *Store) GetBillingModel(_ context.Context, engineID string, modelID uint64) (*billing.BillingModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.models[engineID][modelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneModel(m), nil
}

func (s *Store) GetBillingModelByReference(_ context.Context, engineID, reference string) (*billing.BillingModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	modelID, ok := s.modelRefs[engineID][reference]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneModel(s.models[engineID][modelID]), nil
}

func (s *Store) BillingModelNameExists(_ context.Context, engineID, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.models[engineID] {
		if m.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListBillingModels(_ context.Context, engineID string, opts store.ListOpts) ([]*billing.BillingModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*billing.BillingModel, 0, len(s.models[engineID]))
	for _, m := range s.models[engineID] {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	all = paginate(all, opts)
	out := make([]*billing.BillingModel, len(all))
	for i, m := range all {
		out[i] = cloneModel(m)
	}
	return out, nil
}

func (s *Store) ListBillingModelsByPayee(_ context.Context, engineID string, payee types.Address) ([]*billing.BillingModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*billing.BillingModel
	for _, m := range s.models[engineID] {
		if m.Payee == payee {
			out = append(out, cloneModel(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateBillingModel(_ context.Context, engineID string, m *billing.BillingModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[engineID][m.ID]; !ok {
		return store.ErrNotFound
	}
	s.models[engineID][m.ID] = cloneModel(m)
	return nil
}

func (s *Store) NextBillingModelID(_ context.Context, engineID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modelSeq[engineID]++
	return s.modelSeq[engineID], nil
}

func (s *Store) CurrentBillingModelID(_ context.Context, engineID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelSeq[engineID], nil
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(_ context.Context, engineID string, sub *billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscriptions[engineID] == nil {
		s.subscriptions[engineID] = make(map[uint64]*billing.Subscription)
		s.subRefs[engineID] = make(map[string]uint64)
	}
	if _, ok := s.subscriptions[engineID][sub.ID]; ok {
		return store.ErrDuplicate
	}
	if _, ok := s.subRefs[engineID][sub.UniqueReference]; ok {
		return store.ErrDuplicate
	}

	s.subscriptions[engineID][sub.ID] = cloneSubscription(sub)
	s.subRefs[engineID][sub.UniqueReference] = sub.ID
	return nil
}

func (s *Store) GetSubscription(_ context.Context, engineID string, subID uint64) (*billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[engineID][subID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSubscription(sub), nil
}

func (s *Store) GetSubscriptionByReference(_ context.Context, engineID, reference string) (*billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subID, ok := s.subRefs[engineID][reference]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSubscription(s.subscriptions[engineID][subID]), nil
}

func (s *Store) ListSubscriptionsBySubscriber(_ context.Context, engineID string, subscriber types.Address) ([]*billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*billing.Subscription
	for _, sub := range s.subscriptions[engineID] {
		if sub.Subscriber == subscriber {
			out = append(out, cloneSubscription(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListDueSubscriptions(_ context.Context, engineID string, now int64, opts store.ListOpts) ([]*billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*billing.Subscription
	for _, sub := range s.subscriptions[engineID] {
		if sub.Cancelled() || sub.Exhausted() || sub.UpkeepDisabled {
			continue
		}
		if sub.NextPaymentTimestamp > now {
			continue
		}
		due = append(due, sub)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })

	due = paginate(due, opts)
	out := make([]*billing.Subscription, len(due))
	for i, sub := range due {
		out[i] = cloneSubscription(sub)
	}
	return out, nil
}

func (s *Store) UpdateSubscription(_ context.Context, engineID string, sub *billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[engineID][sub.ID]; !ok {
		return store.ErrNotFound
	}
	s.subscriptions[engineID][sub.ID] = cloneSubscription(sub)
	return nil
}

func (s *Store) NextSubscriptionID(_ context.Context, engineID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subSeq[engineID]++
	return s.subSeq[engineID], nil
}

func (s *Store) CurrentSubscriptionID(_ context.Context, engineID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subSeq[engineID], nil
}

// ──────────────────────────────────────────────────
// Pull payments
// ──────────────────────────────────────────────────

func (s *Store) CreatePullPayment(_ context.Context, engineID string, p *billing.PullPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.payments[engineID] == nil {
		s.payments[engineID] = make(map[uint64]*billing.PullPayment)
	}
	if _, ok := s.payments[engineID][p.ID]; ok {
		return store.ErrDuplicate
	}

	s.payments[engineID][p.ID] = clonePayment(p)
	return nil
}

func (s *Store) GetPullPayment(_ context.Context, engineID string, paymentID uint64) (*billing.PullPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[engineID][paymentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *Store) ListPullPaymentsBySubscription(_ context.Context, engineID string, subID uint64) ([]*billing.PullPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*billing.PullPayment
	for _, p := range s.payments[engineID] {
		if p.SubscriptionID == subID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdatePullPayment(_ context.Context, engineID string, p *billing.PullPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[engineID][p.ID]; !ok {
		return store.ErrNotFound
	}
	s.payments[engineID][p.ID] = clonePayment(p)
	return nil
}

func (s *Store) NextPullPaymentID(_ context.Context, engineID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paySeq[engineID]++
	return s.paySeq[engineID], nil
}

func (s *Store) CurrentPullPaymentID(_ context.Context, engineID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paySeq[engineID], nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

// clones guard callers from mutating shared state through returned
// pointers. big.Int fields are copied too since they are mutable.

func cloneModel(m *billing.BillingModel) *billing.BillingModel {
	out := *m
	out.Amount = cloneBig(m.Amount)
	out.InitialAmount = cloneBig(m.InitialAmount)
	out.SubscriptionIDs = append([]uint64(nil), m.SubscriptionIDs...)
	return &out
}

func cloneSubscription(sub *billing.Subscription) *billing.Subscription {
	out := *sub
	out.Amount = cloneBig(sub.Amount)
	out.InitialAmount = cloneBig(sub.InitialAmount)
	out.PullPaymentIDs = append([]uint64(nil), sub.PullPaymentIDs...)
	return &out
}

func clonePayment(p *billing.PullPayment) *billing.PullPayment {
	out := *p
	out.Amount = cloneBig(p.Amount)
	return &out
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func paginate[T any](items []T, opts store.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
