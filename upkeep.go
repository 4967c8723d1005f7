package pullpay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/types"
)

// checkUpkeepBatch caps how many due subscriptions one upkeep round
// reports.
const checkUpkeepBatch = 100

// UpkeepData is the payload handed from CheckUpkeep to PerformUpkeep.
type UpkeepData struct {
	SubscriptionIDs []uint64 `json:"subscription_ids"`
}

// CheckUpkeep reports whether any subscriptions are due for execution
// and returns the encoded batch to pass to PerformUpkeep.
func (e *Engine) CheckUpkeep(ctx context.Context) (bool, []byte, error) {
	due, err := e.store.ListDueSubscriptions(ctx, e.name, e.now(), store.ListOpts{Limit: checkUpkeepBatch})
	if err != nil {
		return false, nil, err
	}
	if len(due) == 0 {
		return false, nil, nil
	}

	data := UpkeepData{SubscriptionIDs: make([]uint64, len(due))}
	for i, sub := range due {
		data.SubscriptionIDs[i] = sub.ID
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return false, nil, err
	}
	return true, encoded, nil
}

// PerformUpkeep executes every due subscription in the batch. An
// underfunded subscription never fails the batch: inside the grace
// window it is skipped for the next round; once the window elapses it is
// auto-cancelled with the upkeep caller recorded as canceler and its
// upkeep permanently disabled.
func (e *Engine) PerformUpkeep(ctx context.Context, caller types.Address, performData []byte) error {
	var data UpkeepData
	if err := json.Unmarshal(performData, &data); err != nil {
		return fmt.Errorf("pullpay: invalid perform data: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var executed, skipped, cancelled int
	for _, subID := range data.SubscriptionIDs {
		outcome, err := e.upkeepOne(ctx, caller, subID)
		if err != nil {
			e.logger.Error("upkeep execution failed",
				"engine", e.name,
				"subscription_id", subID,
				"error", err,
			)
			skipped++
			continue
		}
		switch outcome {
		case upkeepExecuted:
			executed++
		case upkeepSkipped:
			skipped++
		case upkeepCancelled:
			cancelled++
		}
	}

	e.logger.Info("upkeep performed",
		"engine", e.name,
		"executed", executed,
		"skipped", skipped,
		"cancelled", cancelled,
		"caller", caller.Hex(),
	)
	e.plugins.EmitUpkeepPerformed(ctx, executed, skipped, cancelled)

	return nil
}

type upkeepOutcome int

const (
	upkeepExecuted upkeepOutcome = iota
	upkeepSkipped
	upkeepCancelled
)

func (e *Engine) upkeepOne(ctx context.Context, caller types.Address, subID uint64) (upkeepOutcome, error) {
	sub, err := e.getSubscription(ctx, subID)
	if err != nil {
		return upkeepSkipped, err
	}
	if sub.Cancelled() || sub.Exhausted() || sub.UpkeepDisabled {
		return upkeepSkipped, nil
	}

	now := e.now()
	if now < sub.NextPaymentTimestamp {
		return upkeepSkipped, nil
	}

	fundable, err := e.executor.CanExecute(ctx, sub.Subscriber, sub.PaymentToken, sub.Amount)
	if err != nil {
		return upkeepSkipped, err
	}

	if fundable {
		if _, err := e.executePullPayment(ctx, caller, subID); err != nil {
			return upkeepSkipped, err
		}
		return upkeepExecuted, nil
	}

	// Underfunded: wait out the grace window, then give up for good.
	grace := sub.NextPaymentTimestamp + int64(e.registry.ExtensionPeriod())
	if now < grace {
		return upkeepSkipped, nil
	}

	if err := e.cancelSubscription(ctx, caller, subID, true); err != nil {
		return upkeepSkipped, err
	}
	return upkeepCancelled, nil
}
