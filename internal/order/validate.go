// Package order holds the broker-independent order logic: request
// validation, smart-order reconciliation, split planning, and the
// concurrent batch coordinator.
package order

import (
	"fmt"

	"github.com/marketcalls/openalgo-sub001/internal/model"
)

// FieldError reports a single invalid or missing request field. It maps
// to HTTP 400 and stops the pipeline before any side effect.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate normalizes and checks an order request. Smart orders
// additionally require a target position size via requireTarget.
func Validate(req *model.OrderRequest, requireTarget bool) error {
	req.Normalize()

	if req.Symbol == "" {
		return &FieldError{Field: "symbol", Reason: "required"}
	}
	if !model.Exchanges[req.Exchange] {
		return &FieldError{Field: "exchange", Reason: fmt.Sprintf("unknown exchange %q", req.Exchange)}
	}
	if !model.Actions[req.Action] {
		return &FieldError{Field: "action", Reason: "must be BUY or SELL"}
	}
	if !model.PriceTypes[req.PriceType] {
		return &FieldError{Field: "pricetype", Reason: "must be MARKET, LIMIT, SL or SL-M"}
	}
	if !model.Products[req.Product] {
		return &FieldError{Field: "product", Reason: "must be CNC, NRML or MIS"}
	}
	if req.Quantity <= 0 && !requireTarget {
		return &FieldError{Field: "quantity", Reason: "must be positive"}
	}
	if req.Quantity < 0 {
		return &FieldError{Field: "quantity", Reason: "must not be negative"}
	}
	if req.Price < 0 {
		return &FieldError{Field: "price", Reason: "must not be negative"}
	}
	if req.TriggerPrice < 0 {
		return &FieldError{Field: "trigger_price", Reason: "must not be negative"}
	}
	if req.DisclosedQty < 0 {
		return &FieldError{Field: "disclosed_quantity", Reason: "must not be negative"}
	}

	switch req.PriceType {
	case model.PriceTypeLimit:
		if req.Price <= 0 {
			return &FieldError{Field: "price", Reason: "required for LIMIT orders"}
		}
	case model.PriceTypeSL, model.PriceTypeSLM:
		if req.TriggerPrice <= 0 {
			return &FieldError{Field: "trigger_price", Reason: "required for stop orders"}
		}
	}

	if requireTarget && req.PositionSize < 0 {
		return &FieldError{Field: "position_size", Reason: "must not be negative"}
	}
	return nil
}

// ValidateModify checks a modify request.
func ValidateModify(req *model.ModifyRequest) error {
	if req.OrderID == "" {
		return &FieldError{Field: "orderid", Reason: "required"}
	}
	ord := model.OrderRequest{
		Symbol:       req.Symbol,
		Exchange:     req.Exchange,
		Action:       req.Action,
		Quantity:     req.Quantity,
		PriceType:    req.PriceType,
		Product:      req.Product,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
	}
	if err := Validate(&ord, false); err != nil {
		return err
	}
	req.Symbol, req.Exchange, req.Action = ord.Symbol, ord.Exchange, ord.Action
	req.PriceType, req.Product = ord.PriceType, ord.Product
	return nil
}

// ValidateLeg checks one option leg. The offset and option type are
// resolved later; this only guards enum membership and quantities.
func ValidateLeg(leg *model.Leg) error {
	leg.Normalize()

	if _, err := model.ParseOffset(leg.Offset); err != nil {
		return &FieldError{Field: "offset", Reason: err.Error()}
	}
	if leg.OptionType != model.OptionCall && leg.OptionType != model.OptionPut {
		return &FieldError{Field: "option_type", Reason: "must be CE or PE"}
	}
	if !model.Actions[leg.Action] {
		return &FieldError{Field: "action", Reason: "must be BUY or SELL"}
	}
	if leg.Quantity <= 0 {
		return &FieldError{Field: "quantity", Reason: "must be positive"}
	}
	if !model.PriceTypes[leg.PriceType] {
		return &FieldError{Field: "pricetype", Reason: "must be MARKET, LIMIT, SL or SL-M"}
	}
	if !model.Products[leg.Product] {
		return &FieldError{Field: "product", Reason: "must be CNC, NRML or MIS"}
	}
	if leg.SplitSize < 0 {
		return &FieldError{Field: "split_size", Reason: "must not be negative"}
	}
	return nil
}
