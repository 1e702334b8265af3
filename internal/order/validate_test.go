package order

import (
	"testing"

	"github.com/marketcalls/openalgo-sub001/internal/model"
)

func validRequest() model.OrderRequest {
	return model.OrderRequest{
		Symbol:    "SBIN-EQ",
		Exchange:  "NSE",
		Action:    "BUY",
		Quantity:  10,
		PriceType: "MARKET",
		Product:   "MIS",
	}
}

func TestValidate_OK(t *testing.T) {
	req := validRequest()
	if err := Validate(&req, false); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_CaseNormalization(t *testing.T) {
	req := validRequest()
	req.Action = "buy"
	req.Exchange = "nse"
	req.PriceType = "market"
	req.Product = "mis"

	if err := Validate(&req, false); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if req.Action != model.ActionBuy {
		t.Errorf("action not normalized: got %q", req.Action)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.OrderRequest)
		field  string
	}{
		{"missing symbol", func(r *model.OrderRequest) { r.Symbol = "" }, "symbol"},
		{"bad exchange", func(r *model.OrderRequest) { r.Exchange = "NYSE" }, "exchange"},
		{"bad action", func(r *model.OrderRequest) { r.Action = "HOLD" }, "action"},
		{"bad pricetype", func(r *model.OrderRequest) { r.PriceType = "ICEBERG" }, "pricetype"},
		{"bad product", func(r *model.OrderRequest) { r.Product = "MARGIN" }, "product"},
		{"zero quantity", func(r *model.OrderRequest) { r.Quantity = 0 }, "quantity"},
		{"negative quantity", func(r *model.OrderRequest) { r.Quantity = -5 }, "quantity"},
		{"negative price", func(r *model.OrderRequest) { r.Price = -1 }, "price"},
		{"limit without price", func(r *model.OrderRequest) { r.PriceType = "LIMIT" }, "price"},
		{"sl without trigger", func(r *model.OrderRequest) { r.PriceType = "SL"; r.Price = 100 }, "trigger_price"},
		{"sl-m without trigger", func(r *model.OrderRequest) { r.PriceType = "SL-M" }, "trigger_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := Validate(&req, false)
			if err == nil {
				t.Fatal("Validate() = nil, want FieldError")
			}
			fe, ok := err.(*FieldError)
			if !ok {
				t.Fatalf("Validate() error type = %T, want *FieldError", err)
			}
			if fe.Field != tt.field {
				t.Errorf("field = %q, want %q", fe.Field, tt.field)
			}
		})
	}
}

func TestValidate_SmartOrderAllowsZeroQuantity(t *testing.T) {
	// A smart order with quantity 0 and an explicit target is valid:
	// the delta is computed against the live position.
	req := validRequest()
	req.Quantity = 0
	req.PositionSize = 100
	if err := Validate(&req, true); err != nil {
		t.Fatalf("Validate(smart) = %v, want nil", err)
	}
}

func TestValidateLeg(t *testing.T) {
	leg := model.Leg{
		Offset: "ATM", OptionType: "CE", Action: "BUY",
		Quantity: 50, PriceType: "MARKET", Product: "NRML",
	}
	if err := ValidateLeg(&leg); err != nil {
		t.Fatalf("ValidateLeg() = %v, want nil", err)
	}

	bad := leg
	bad.Offset = "ITM99"
	if err := ValidateLeg(&bad); err == nil {
		t.Error("ValidateLeg(ITM99) = nil, want error")
	}

	bad = leg
	bad.OptionType = "CALL"
	if err := ValidateLeg(&bad); err == nil {
		t.Error("ValidateLeg(CALL) = nil, want error")
	}
}

func TestValidateLeg_CaseNormalization(t *testing.T) {
	leg := model.Leg{
		Offset: "otm2", OptionType: "ce", Action: "buy",
		Quantity: 50, PriceType: "market", Product: "nrml",
	}
	if err := ValidateLeg(&leg); err != nil {
		t.Fatalf("ValidateLeg(lowercase) = %v, want nil", err)
	}
	if leg.Action != "BUY" || leg.OptionType != "CE" || leg.PriceType != "MARKET" {
		t.Errorf("leg not normalized in place: %+v", leg)
	}
	if leg.Offset != "OTM2" {
		t.Errorf("offset = %q, want OTM2", leg.Offset)
	}
}
