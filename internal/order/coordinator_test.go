package order

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marketcalls/openalgo-sub001/internal/model"
)

// recordingSubmitter captures submission order for ordering assertions.
type recordingSubmitter struct {
	mu        sync.Mutex
	submitted []string // action:symbol in submission order
	fail      map[string]bool
}

func (r *recordingSubmitter) submit(_ context.Context, req model.OrderRequest) model.ChildResult {
	r.mu.Lock()
	r.submitted = append(r.submitted, req.Action+":"+req.Symbol)
	fail := r.fail[req.Symbol]
	r.mu.Unlock()

	if fail {
		return model.ChildResult{
			Symbol: req.Symbol, Action: req.Action, Quantity: req.Quantity,
			Status: model.StatusError, Message: "rejected by broker",
		}
	}
	return model.ChildResult{
		Symbol: req.Symbol, Action: req.Action, Quantity: req.Quantity,
		Status: model.StatusSuccess, OrderID: "OID-" + req.Symbol,
	}
}

func child(action, symbol string, qty int64) model.OrderRequest {
	return model.OrderRequest{
		Symbol: symbol, Exchange: "NFO", Action: action,
		Quantity: qty, PriceType: "MARKET", Product: "NRML",
	}
}

func TestCoordinator_BuyBeforeSell(t *testing.T) {
	rec := &recordingSubmitter{}
	c := NewCoordinator(4, 10)

	var children []model.OrderRequest
	for i := 0; i < 5; i++ {
		children = append(children, child("BUY", fmt.Sprintf("B%d", i), 10))
		children = append(children, child("SELL", fmt.Sprintf("S%d", i), 10))
	}

	agg := c.Execute(context.Background(), children, rec.submit)
	if len(agg.Results) != 10 {
		t.Fatalf("len(Results) = %d, want 10", len(agg.Results))
	}

	// Every BUY submission index must precede every SELL submission index.
	lastBuy, firstSell := -1, len(rec.submitted)
	for i, s := range rec.submitted {
		if strings.HasPrefix(s, "BUY:") && i > lastBuy {
			lastBuy = i
		}
		if strings.HasPrefix(s, "SELL:") && i < firstSell {
			firstSell = i
		}
	}
	if lastBuy >= firstSell {
		t.Fatalf("SELL submitted before all BUYs finished: order %v", rec.submitted)
	}
}

func TestCoordinator_PartialFailureCounts(t *testing.T) {
	tests := []struct {
		name     string
		fail     map[string]bool
		children []model.OrderRequest
		wantOK   int
		wantFail int
	}{
		{
			"all success",
			nil,
			[]model.OrderRequest{child("BUY", "A", 1), child("SELL", "B", 1)},
			2, 0,
		},
		{
			"all failure",
			map[string]bool{"A": true, "B": true},
			[]model.OrderRequest{child("BUY", "A", 1), child("SELL", "B", 1)},
			0, 2,
		},
		{
			"mixed",
			map[string]bool{"B": true},
			[]model.OrderRequest{child("BUY", "A", 1), child("BUY", "B", 1), child("SELL", "C", 1)},
			2, 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingSubmitter{fail: tt.fail}
			agg := NewCoordinator(2, 10).Execute(context.Background(), tt.children, rec.submit)
			if agg.Successful != tt.wantOK || agg.Failed != tt.wantFail {
				t.Errorf("counts = (%d ok, %d failed), want (%d, %d)",
					agg.Successful, agg.Failed, tt.wantOK, tt.wantFail)
			}
			if agg.Successful+agg.Failed != len(agg.Results) {
				t.Errorf("successful+failed = %d, want %d",
					agg.Successful+agg.Failed, len(agg.Results))
			}
		})
	}
}

func TestCoordinator_SplitForcesSequential(t *testing.T) {
	rec := &recordingSubmitter{}
	c := NewCoordinator(10, 20) // 50ms between sequential submissions

	var children []model.OrderRequest
	for i := 0; i < 3; i++ {
		ch := child("BUY", fmt.Sprintf("B%d", i), 20)
		ch.SplitSize = 20
		children = append(children, ch)
	}

	start := time.Now()
	c.Execute(context.Background(), children, rec.submit)
	elapsed := time.Since(start)

	// 3 sequential children with 2 inter-order delays of 50ms each.
	if elapsed < 100*time.Millisecond {
		t.Errorf("sequential batch finished in %v, want >= 100ms of rate-limit delay", elapsed)
	}
	want := []string{"BUY:B0", "BUY:B1", "BUY:B2"}
	for i, s := range rec.submitted {
		if s != want[i] {
			t.Fatalf("submission order = %v, want %v", rec.submitted, want)
		}
	}
}

func TestCoordinator_SingleBatchNotification(t *testing.T) {
	rec := &recordingSubmitter{}
	c := NewCoordinator(4, 10)

	var notifications int
	c.OnBatchDone = func(BatchResult) { notifications++ }

	var children []model.OrderRequest
	for i := 0; i < 8; i++ {
		children = append(children, child("BUY", fmt.Sprintf("B%d", i), 1))
	}
	c.Execute(context.Background(), children, rec.submit)

	if notifications != 1 {
		t.Fatalf("notifications = %d, want exactly 1 per batch", notifications)
	}
}

func TestCoordinator_FailureDoesNotBlockSiblings(t *testing.T) {
	rec := &recordingSubmitter{fail: map[string]bool{"B0": true}}
	c := NewCoordinator(2, 10)

	children := []model.OrderRequest{
		child("BUY", "B0", 1), child("BUY", "B1", 1), child("BUY", "B2", 1),
	}
	agg := c.Execute(context.Background(), children, rec.submit)

	if len(agg.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3: a failed child must not cancel siblings", len(agg.Results))
	}
	if agg.Successful != 2 || agg.Failed != 1 {
		t.Errorf("counts = (%d, %d), want (2, 1)", agg.Successful, agg.Failed)
	}
}
