// Package model defines the order, position, and result types shared by
// every entry point of the execution engine.
package model

import "strings"

// Order field enums. These mirror the vocabulary used by Indian brokers
// (NSE segment names, SL/SL-M stop orders, MIS/CNC/NRML products).
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"

	PriceTypeMarket = "MARKET"
	PriceTypeLimit  = "LIMIT"
	PriceTypeSL     = "SL"
	PriceTypeSLM    = "SL-M"

	ProductCNC  = "CNC"  // delivery
	ProductNRML = "NRML" // carry-forward F&O
	ProductMIS  = "MIS"  // intraday
)

// Exchanges lists the supported exchange segments.
var Exchanges = map[string]bool{
	"NSE": true, "NFO": true, "BSE": true, "BFO": true, "CDS": true, "MCX": true,
}

// Actions, PriceTypes and Products are membership sets for validation.
var (
	Actions    = map[string]bool{ActionBuy: true, ActionSell: true}
	PriceTypes = map[string]bool{PriceTypeMarket: true, PriceTypeLimit: true, PriceTypeSL: true, PriceTypeSLM: true}
	Products   = map[string]bool{ProductCNC: true, ProductNRML: true, ProductMIS: true}
)

// OrderRequest is the generic order accepted by every placement entry
// point. APIKey identifies the account; it is resolved to a broker
// credential before dispatch and must never be persisted or logged.
type OrderRequest struct {
	APIKey   string `json:"apikey"`
	Strategy string `json:"strategy"`

	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Action   string `json:"action"`

	Quantity     int64   `json:"quantity"`
	PriceType    string  `json:"pricetype"`
	Product      string  `json:"product"`
	Price        float64 `json:"price,omitempty"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
	DisclosedQty int64   `json:"disclosed_quantity,omitempty"`

	// PositionSize is the target net position for smart orders; unused
	// by plain placement.
	PositionSize int64 `json:"position_size,omitempty"`

	// SplitSize, when nonzero, asks the coordinator to slice this order
	// into chunks and forces sequential rate-limited submission.
	SplitSize int64 `json:"split_size,omitempty"`
}

// Normalize upper-cases the enum-valued fields in place. Callers run it
// before Validate so "buy" and "BUY" behave identically.
func (o *OrderRequest) Normalize() {
	o.Action = strings.ToUpper(strings.TrimSpace(o.Action))
	o.Exchange = strings.ToUpper(strings.TrimSpace(o.Exchange))
	o.PriceType = strings.ToUpper(strings.TrimSpace(o.PriceType))
	o.Product = strings.ToUpper(strings.TrimSpace(o.Product))
	o.Symbol = strings.TrimSpace(o.Symbol)
}

// Sanitized returns a copy with the API key removed, safe for audit
// records and the approval queue.
func (o OrderRequest) Sanitized() OrderRequest {
	o.APIKey = ""
	return o
}

// ModifyRequest carries the mutable fields of an open order.
type ModifyRequest struct {
	APIKey       string  `json:"apikey"`
	OrderID      string  `json:"orderid"`
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	Action       string  `json:"action"`
	Quantity     int64   `json:"quantity"`
	PriceType    string  `json:"pricetype"`
	Product      string  `json:"product"`
	Price        float64 `json:"price,omitempty"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
}

// CancelRequest identifies a single open order to cancel.
type CancelRequest struct {
	APIKey  string `json:"apikey"`
	OrderID string `json:"orderid"`
}
