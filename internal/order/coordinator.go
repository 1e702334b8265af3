package order

import (
	"context"
	"sync"
	"time"

	"github.com/marketcalls/openalgo-sub001/internal/model"
)

// Default coordinator tuning, overridable via config.
const (
	DefaultWorkers         = 10
	DefaultOrdersPerSecond = 10
)

// SubmitFunc places one child order and reports its outcome. Failures
// are captured in the ChildResult, never returned as an error: one
// child's failure must not block or cancel its siblings.
type SubmitFunc func(ctx context.Context, req model.OrderRequest) model.ChildResult

// BatchResult aggregates every child's outcome. Successful+Failed
// always equals len(Results).
type BatchResult struct {
	Results    []model.ChildResult
	Successful int
	Failed     int
}

// Coordinator fans out the child orders of a basket, split, or
// multi-leg batch.
//
// All BUY children are fully resolved before any SELL child is
// submitted, so a SELL can never execute ahead of its offsetting BUY
// and trip a transient margin shortfall. Within a group, children run
// on a bounded worker pool, unless any child in the group carries a
// split size, in which case the whole group runs sequentially with an
// inter-order delay derived from the orders-per-second budget. The two
// concerns are deliberately coupled; see DESIGN.md.
type Coordinator struct {
	Workers         int
	OrdersPerSecond int

	// OnBatchDone, when set, fires exactly once per Execute with the
	// aggregate result. Batch notifications hang off this hook so a
	// 50-leg basket emits one event, not fifty.
	OnBatchDone func(BatchResult)
}

// NewCoordinator returns a Coordinator with the given tuning; zero
// values fall back to the defaults.
func NewCoordinator(workers, ordersPerSecond int) *Coordinator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if ordersPerSecond <= 0 {
		ordersPerSecond = DefaultOrdersPerSecond
	}
	return &Coordinator{Workers: workers, OrdersPerSecond: ordersPerSecond}
}

// Execute runs the batch and returns the aggregate. Results keep the
// caller's child order: all BUY children first, then all SELL children,
// each group in submission order.
func (c *Coordinator) Execute(ctx context.Context, children []model.OrderRequest, submit SubmitFunc) BatchResult {
	var buys, sells []model.OrderRequest
	for _, child := range children {
		if child.Action == model.ActionSell {
			sells = append(sells, child)
		} else {
			buys = append(buys, child)
		}
	}

	var agg BatchResult
	// Hard barrier: the BUY group is submitted and fully collected
	// before the first SELL goes out.
	agg.Results = append(agg.Results, c.runGroup(ctx, buys, submit)...)
	agg.Results = append(agg.Results, c.runGroup(ctx, sells, submit)...)

	for _, r := range agg.Results {
		if r.Ok() {
			agg.Successful++
		} else {
			agg.Failed++
		}
	}

	if c.OnBatchDone != nil {
		c.OnBatchDone(agg)
	}
	return agg
}

func (c *Coordinator) runGroup(ctx context.Context, group []model.OrderRequest, submit SubmitFunc) []model.ChildResult {
	if len(group) == 0 {
		return nil
	}
	if groupHasSplit(group) {
		return c.runSequential(ctx, group, submit)
	}
	return c.runPooled(ctx, group, submit)
}

// runSequential submits one order at a time with an inter-order delay
// honoring the broker-side rate limit.
func (c *Coordinator) runSequential(ctx context.Context, group []model.OrderRequest, submit SubmitFunc) []model.ChildResult {
	delay := time.Second / time.Duration(c.OrdersPerSecond)
	results := make([]model.ChildResult, 0, len(group))
	for i, child := range group {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				// Children already submitted ran to completion; the
				// rest are reported as not submitted.
				for _, rest := range group[i:] {
					results = append(results, model.ChildResult{
						Symbol:   rest.Symbol,
						Action:   rest.Action,
						Quantity: rest.Quantity,
						Status:   model.StatusError,
						Message:  "batch aborted: " + ctx.Err().Error(),
					})
				}
				return results
			}
		}
		results = append(results, submit(ctx, child))
	}
	return results
}

// runPooled fans the group out over a bounded worker pool and waits for
// every child to finish.
func (c *Coordinator) runPooled(ctx context.Context, group []model.OrderRequest, submit SubmitFunc) []model.ChildResult {
	workers := c.Workers
	if workers > len(group) {
		workers = len(group)
	}

	type indexed struct {
		i   int
		req model.OrderRequest
	}
	jobs := make(chan indexed)
	results := make([]model.ChildResult, len(group))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				results[job.i] = submit(ctx, job.req)
			}
		}()
	}
	for i, child := range group {
		jobs <- indexed{i: i, req: child}
	}
	close(jobs)
	wg.Wait()
	return results
}

func groupHasSplit(group []model.OrderRequest) bool {
	for _, child := range group {
		if child.SplitSize > 0 {
			return true
		}
	}
	return false
}
