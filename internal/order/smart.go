package order

import (
	"fmt"

	"github.com/marketcalls/openalgo-sub001/internal/model"
)

// Delta is the outcome of smart-order reconciliation: either the child
// order quantity needed to reach the target position, or a no-op with a
// human-readable explanation. A no-op is a successful outcome.
type Delta struct {
	Quantity int64
	Noop     bool
	Message  string
}

// SmartDelta computes the order needed to move the current net position
// toward target in the direction of action. BUY only ever increases the
// position, SELL only ever decreases it; a target already met or
// overshot yields a no-op.
func SmartDelta(action string, target, current int64) (Delta, error) {
	switch action {
	case model.ActionBuy:
		if current >= target {
			return Delta{
				Noop:    true,
				Message: fmt.Sprintf("position %d already matches or exceeds target %d, no order placed", current, target),
			}, nil
		}
		return Delta{Quantity: target - current}, nil
	case model.ActionSell:
		if current <= target {
			return Delta{
				Noop:    true,
				Message: fmt.Sprintf("position %d already matches or is below target %d, no order placed", current, target),
			}, nil
		}
		return Delta{Quantity: current - target}, nil
	default:
		return Delta{}, &FieldError{Field: "action", Reason: fmt.Sprintf("unsupported smart-order action %q", action)}
	}
}
