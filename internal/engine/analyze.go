package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketcalls/openalgo-sub001/internal/markethours"
	"github.com/marketcalls/openalgo-sub001/internal/model"
)

// Analyze mode captures every order with full validation and a
// synthetic order id, without touching any broker adapter. Repeating a
// call yields a fresh id each time; nothing carries over between calls.

// syntheticID fabricates an analyze-mode order id. The AZ prefix keeps
// synthetic ids visually distinct from broker ids in logs and audits.
func syntheticID() string {
	return "AZ-" + uuid.NewString()
}

// marketAdvisory returns a warning when the market is closed. Advisory
// only: analyze mode accepts orders around the clock.
func marketAdvisory(now time.Time) string {
	if markethours.IsMarketOpen(now) {
		return ""
	}
	return markethours.StatusString(now)
}

// analyzeOrder captures a single validated order.
func (e *Engine) analyzeOrder(req model.OrderRequest) model.ExecutionResult {
	if e.Metrics != nil {
		e.Metrics.AnalyzedTotal.Inc()
	}
	return model.ExecutionResult{
		Status:     model.StatusSuccess,
		Mode:       model.ModeAnalyze,
		OrderID:    syntheticID(),
		Message:    marketAdvisory(time.Now()),
		HTTPStatus: 200,
	}
}

// analyzeSubmit is the coordinator SubmitFunc for analyze mode. Batches
// run through the same coordinator as live orders so ordering and
// aggregation behave identically; only the fill is synthetic.
func (e *Engine) analyzeSubmit(req model.OrderRequest) model.ChildResult {
	if e.Metrics != nil {
		e.Metrics.AnalyzedTotal.Inc()
	}
	return model.ChildResult{
		Symbol:   req.Symbol,
		Action:   req.Action,
		Quantity: req.Quantity,
		Status:   model.StatusSuccess,
		OrderID:  syntheticID(),
	}
}
