package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/marketcalls/openalgo-sub001/internal/auth"
	"github.com/marketcalls/openalgo-sub001/internal/broker"
	"github.com/marketcalls/openalgo-sub001/internal/model"
)

type fakeAuth struct {
	creds map[string]auth.Credentials
}

func (f *fakeAuth) Verify(_ context.Context, apiKey string) (auth.Credentials, error) {
	c, ok := f.creds[apiKey]
	if !ok {
		return auth.Credentials{}, auth.ErrInvalidKey
	}
	return c, nil
}

func (f *fakeAuth) ByOwner(_ context.Context, owner string) (auth.Credentials, error) {
	for _, c := range f.creds {
		if c.Owner == owner {
			return c, nil
		}
	}
	return auth.Credentials{}, auth.ErrInvalidKey
}

type fakeAdapter struct {
	mu     sync.Mutex
	placed []model.OrderRequest
	smart  int
	seq    int
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) PlaceOrder(_ context.Context, _ string, req model.OrderRequest) (broker.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	f.seq++
	return broker.Reply{Status: model.StatusSuccess, OrderID: fmt.Sprintf("LIVE-%d", f.seq)}, nil
}

func (f *fakeAdapter) PlaceSmartOrder(_ context.Context, _ string, req model.OrderRequest) (broker.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.smart++
	return broker.Reply{Status: model.StatusSuccess, OrderID: "SMART-1"}, nil
}

func (f *fakeAdapter) ModifyOrder(context.Context, string, model.ModifyRequest) (broker.Reply, error) {
	return broker.Reply{Status: model.StatusSuccess}, nil
}

func (f *fakeAdapter) CancelOrder(_ context.Context, _ string, orderID string) (broker.Reply, error) {
	return broker.Reply{Status: model.StatusSuccess, OrderID: orderID}, nil
}

func (f *fakeAdapter) CancelAllOrders(context.Context, string) ([]string, []string, error) {
	return []string{"A1", "A2"}, nil, nil
}

func (f *fakeAdapter) CloseAllPositions(context.Context, string) (broker.Reply, error) {
	return broker.Reply{Status: model.StatusSuccess, Message: "all positions closed"}, nil
}

func (f *fakeAdapter) Positions(context.Context, string) ([]model.Position, error) {
	return nil, nil
}

func (f *fakeAdapter) placeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

type fakeApprovals struct {
	mu      sync.Mutex
	pending map[string]model.PendingOrder
	seq     int
}

func newFakeApprovals() *fakeApprovals {
	return &fakeApprovals{pending: map[string]model.PendingOrder{}}
}

func (f *fakeApprovals) Enqueue(_ context.Context, owner, op string, payload []byte) (model.PendingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	p := model.PendingOrder{
		ID: fmt.Sprintf("P%d", f.seq), Owner: owner, OperationType: op,
		Payload: payload, Status: model.PendingStatusPending,
	}
	f.pending[p.ID] = p
	return p, nil
}

func (f *fakeApprovals) Decide(_ context.Context, id, status, decidedBy, reason string) (model.PendingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[id]
	if !ok {
		return model.PendingOrder{}, fmt.Errorf("missing %s", id)
	}
	p.Status = status
	p.DecidedBy = decidedBy
	p.Reason = reason
	f.pending[id] = p
	return p, nil
}

func (f *fakeApprovals) SetBrokerResult(_ context.Context, id, brokerOrderID, brokerStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.pending[id]
	p.BrokerOrderID = brokerOrderID
	p.BrokerStatus = brokerStatus
	f.pending[id] = p
	return nil
}

func newTestEngine(adapter *fakeAdapter) *Engine {
	a := &fakeAuth{creds: map[string]auth.Credentials{
		"good-key": {Owner: "alice", Broker: "fake", AuthToken: "tok"},
		"semi-key": {Owner: "bob", Broker: "fake", AuthToken: "tok", TradingMode: "semi"},
	}}
	e := New(a)
	e.Resolve = func(name string) (broker.Adapter, error) {
		if name != "fake" {
			return nil, broker.ErrNotFound
		}
		return adapter, nil
	}
	return e
}

func validOrder(apiKey string) model.OrderRequest {
	return model.OrderRequest{
		APIKey: apiKey, Symbol: "SBIN", Exchange: "NSE", Action: "BUY",
		Quantity: 10, PriceType: "MARKET", Product: "MIS",
	}
}

func TestPlaceOrder_Live(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)

	res := e.PlaceOrder(context.Background(), validOrder("good-key"))
	if res.Status != model.StatusSuccess || res.HTTPStatus != 200 {
		t.Fatalf("result = %+v", res)
	}
	if res.Mode != model.ModeLive {
		t.Errorf("mode = %q, want live", res.Mode)
	}
	if res.OrderID != "LIVE-1" {
		t.Errorf("order id = %q, want LIVE-1", res.OrderID)
	}
	if adapter.placeCount() != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.placeCount())
	}
}

func TestPlaceOrder_AuthMiss(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)

	res := e.PlaceOrder(context.Background(), validOrder("bad-key"))
	if res.HTTPStatus != 403 || res.Status != model.StatusError {
		t.Fatalf("result = %+v, want 403 error", res)
	}
	if adapter.placeCount() != 0 {
		t.Errorf("adapter called on auth miss")
	}
}

func TestPlaceOrder_UnknownBroker(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)
	e.Resolve = func(string) (broker.Adapter, error) { return nil, broker.ErrNotFound }

	res := e.PlaceOrder(context.Background(), validOrder("good-key"))
	if res.HTTPStatus != 404 {
		t.Fatalf("status = %d, want 404", res.HTTPStatus)
	}
}

func TestPlaceOrder_ValidationStopsPipeline(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)

	req := validOrder("good-key")
	req.Quantity = 0
	res := e.PlaceOrder(context.Background(), req)
	if res.HTTPStatus != 400 {
		t.Fatalf("status = %d, want 400", res.HTTPStatus)
	}
	if adapter.placeCount() != 0 {
		t.Errorf("adapter called despite validation failure")
	}
}

func TestAnalyzeMode_NoBrokerCallsAndFreshIDs(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)
	e.SetMode(model.ModeAnalyze)

	first := e.PlaceOrder(context.Background(), validOrder("good-key"))
	second := e.PlaceOrder(context.Background(), validOrder("good-key"))

	for _, res := range []model.ExecutionResult{first, second} {
		if res.Status != model.StatusSuccess || res.Mode != model.ModeAnalyze {
			t.Fatalf("result = %+v", res)
		}
		if res.OrderID == "" {
			t.Fatal("analyze result missing synthetic order id")
		}
	}
	// Repeating the identical request yields a fresh synthetic id;
	// analyze mode carries no state between calls.
	if first.OrderID == second.OrderID {
		t.Errorf("synthetic ids collide: %q", first.OrderID)
	}
	if adapter.placeCount() != 0 || adapter.smart != 0 {
		t.Errorf("adapter reached in analyze mode: place=%d smart=%d", adapter.placeCount(), adapter.smart)
	}
}

func TestSmartOrder_DispatchesSmartPath(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)

	req := validOrder("good-key")
	req.Quantity = 0
	req.PositionSize = 100
	res := e.PlaceSmartOrder(context.Background(), req)
	if res.Status != model.StatusSuccess {
		t.Fatalf("result = %+v", res)
	}
	if adapter.smart != 1 {
		t.Errorf("smart calls = %d, want 1", adapter.smart)
	}
}

func TestBasket_InvalidChildDoesNotBlockSiblings(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)

	children := []model.OrderRequest{
		{Symbol: "SBIN", Exchange: "NSE", Action: "BUY", Quantity: 10, PriceType: "MARKET", Product: "MIS"},
		{Symbol: "", Exchange: "NSE", Action: "BUY", Quantity: 5, PriceType: "MARKET", Product: "MIS"},
		{Symbol: "INFY", Exchange: "NSE", Action: "SELL", Quantity: 3, PriceType: "MARKET", Product: "MIS"},
	}
	res := e.PlaceBasketOrder(context.Background(), "good-key", "momentum", children)

	if len(res.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(res.Results))
	}
	if res.Successful != 2 || res.Failed != 1 {
		t.Errorf("counts = (%d, %d), want (2, 1)", res.Successful, res.Failed)
	}
	if adapter.placeCount() != 2 {
		t.Errorf("adapter calls = %d, want 2 (invalid child never submitted)", adapter.placeCount())
	}
}

func TestSplit_CapRejectedBeforeSubmission(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)

	req := validOrder("good-key")
	req.Quantity = 500
	req.SplitSize = 1 // 500 children, over the cap
	res := e.PlaceSplitOrder(context.Background(), req)

	if res.HTTPStatus != 400 {
		t.Fatalf("status = %d, want 400", res.HTTPStatus)
	}
	if adapter.placeCount() != 0 {
		t.Errorf("adapter calls = %d, want 0", adapter.placeCount())
	}
}

func TestSemiAuto_ParksAndApproveExecutes(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)
	approvals := newFakeApprovals()
	e.Approvals = approvals

	res := e.PlaceOrder(context.Background(), validOrder("semi-key"))
	if res.Status != model.StatusSuccess || res.OrderID == "" {
		t.Fatalf("park result = %+v", res)
	}
	if adapter.placeCount() != 0 {
		t.Fatalf("adapter called while order parked")
	}

	// Stored payload must be credential-stripped.
	p := approvals.pending[res.OrderID]
	var parked model.OrderRequest
	if err := json.Unmarshal(p.Payload, &parked); err != nil {
		t.Fatalf("parked payload unmarshal: %v", err)
	}
	if parked.APIKey != "" {
		t.Error("parked payload retains api key")
	}

	got := e.Approve(context.Background(), res.OrderID, "ops")
	if got.Status != model.StatusSuccess {
		t.Fatalf("approve result = %+v", got)
	}
	if adapter.placeCount() != 1 {
		t.Errorf("adapter calls after approve = %d, want 1", adapter.placeCount())
	}
	if p := approvals.pending[res.OrderID]; p.BrokerOrderID != "LIVE-1" {
		t.Errorf("broker order id backfill = %q, want LIVE-1", p.BrokerOrderID)
	}
}

func TestSemiAuto_BasketParkReportsInvalidChildren(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)
	approvals := newFakeApprovals()
	e.Approvals = approvals

	good := validOrder("")
	bad := validOrder("")
	bad.Quantity = 0
	res := e.PlaceBasketOrder(context.Background(), "semi-key", "s1",
		[]model.OrderRequest{good, bad})

	if res.Status != model.StatusSuccess || res.OrderID == "" {
		t.Fatalf("park result = %+v", res)
	}
	if len(res.Results) != 1 || res.Results[0].Status != model.StatusError {
		t.Fatalf("invalid child missing from park result: %+v", res.Results)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}

	// Only the valid child was parked.
	var parked []model.OrderRequest
	if err := json.Unmarshal(approvals.pending[res.OrderID].Payload, &parked); err != nil {
		t.Fatalf("parked payload unmarshal: %v", err)
	}
	if len(parked) != 1 || parked[0].Quantity != good.Quantity {
		t.Errorf("parked children = %+v, want only the valid order", parked)
	}
}

func TestSemiAuto_AllInvalidBasketRejectedNotParked(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)
	approvals := newFakeApprovals()
	e.Approvals = approvals

	bad := validOrder("")
	bad.Quantity = 0
	res := e.PlaceBasketOrder(context.Background(), "semi-key", "s1",
		[]model.OrderRequest{bad, bad})

	if res.HTTPStatus != 400 || res.Status != model.StatusError {
		t.Fatalf("result = %+v, want 400 error", res)
	}
	if len(res.Results) != 2 || res.Failed != 2 {
		t.Errorf("results = %d failed = %d, want both children reported", len(res.Results), res.Failed)
	}
	if len(approvals.pending) != 0 {
		t.Errorf("empty basket parked: %+v", approvals.pending)
	}
	if adapter.placeCount() != 0 {
		t.Errorf("adapter called for all-invalid basket")
	}
}

func TestSemiAuto_RiskReducingPassesThrough(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)
	e.Approvals = newFakeApprovals()

	res := e.CancelOrder(context.Background(), model.CancelRequest{APIKey: "semi-key", OrderID: "X1"})
	if res.Status != model.StatusSuccess || res.OrderID != "X1" {
		t.Fatalf("cancel result = %+v, want direct execution", res)
	}
}

func TestCancelAll_AggregatesIDs(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(adapter)

	res := e.CancelAllOrders(context.Background(), "good-key")
	if res.Successful != 2 || res.Failed != 0 {
		t.Fatalf("counts = (%d, %d), want (2, 0)", res.Successful, res.Failed)
	}
}

func TestModeToggle(t *testing.T) {
	e := newTestEngine(&fakeAdapter{})
	if e.Mode() != model.ModeLive {
		t.Fatalf("default mode = %q, want live", e.Mode())
	}
	e.SetMode(model.ModeAnalyze)
	if e.Mode() != model.ModeAnalyze {
		t.Fatalf("mode = %q, want analyze", e.Mode())
	}
	e.SetMode("garbage")
	if e.Mode() != model.ModeLive {
		t.Fatalf("mode = %q, want live fallback", e.Mode())
	}
}
