// Package engine orchestrates the order pipeline: API key
// verification, validation, mode branching, approval parking, and
// broker dispatch. Every public operation returns exactly one
// ExecutionResult.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/marketcalls/openalgo-sub001/internal/approval"
	"github.com/marketcalls/openalgo-sub001/internal/audit"
	"github.com/marketcalls/openalgo-sub001/internal/auth"
	"github.com/marketcalls/openalgo-sub001/internal/broker"
	"github.com/marketcalls/openalgo-sub001/internal/metrics"
	"github.com/marketcalls/openalgo-sub001/internal/model"
	"github.com/marketcalls/openalgo-sub001/internal/notify"
	"github.com/marketcalls/openalgo-sub001/internal/options"
	"github.com/marketcalls/openalgo-sub001/internal/order"
	"github.com/marketcalls/openalgo-sub001/internal/queue"
)

// Operation identifiers, used for audit rows, approval routing, and
// metrics labels.
const (
	OpPlaceOrder    = "placeorder"
	OpSmartOrder    = "placesmartorder"
	OpBasketOrder   = "basketorder"
	OpSplitOrder    = "splitorder"
	OpOptionOrder   = "optionorder"
	OpModifyOrder   = "modifyorder"
	OpCancelOrder   = "cancelorder"
	OpCancelAll     = "cancelallorder"
	OpClosePosition = "closeposition"
	OpPositions     = "positions"
)

// Verifier resolves API keys and owners to broker credentials.
type Verifier interface {
	Verify(ctx context.Context, apiKey string) (auth.Credentials, error)
	ByOwner(ctx context.Context, owner string) (auth.Credentials, error)
}

// Approvals is the pending-order surface the engine drives.
type Approvals interface {
	Enqueue(ctx context.Context, owner, operationType string, payload []byte) (model.PendingOrder, error)
	Decide(ctx context.Context, id, status, decidedBy, reason string) (model.PendingOrder, error)
	SetBrokerResult(ctx context.Context, id, brokerOrderID, brokerStatus string) error
}

// Engine is the order gateway core. Auth and Resolve are required;
// everything else degrades gracefully when nil.
type Engine struct {
	Auth    Verifier
	Resolve func(name string) (broker.Adapter, error)
	Options *options.Resolver

	Approvals Approvals
	Queue     *queue.Queue
	Audit     *audit.Logger
	Events    *notify.Fanout
	Metrics   *metrics.Metrics
	Coord     *order.Coordinator

	mode modeCell
}

// New builds an engine over the global broker registry with default
// coordinator tuning.
func New(a Verifier) *Engine {
	return &Engine{
		Auth:    a,
		Resolve: broker.Resolve,
		Coord:   order.NewCoordinator(0, 0),
	}
}

func errResult(mode string, code int, msg string) model.ExecutionResult {
	return model.ExecutionResult{
		Status:     model.StatusError,
		Mode:       mode,
		Message:    msg,
		HTTPStatus: code,
	}
}

// verify resolves the API key. Auth misses short-circuit before any
// validation or audit work.
func (e *Engine) verify(ctx context.Context, apiKey string) (auth.Credentials, model.ExecutionResult, bool) {
	creds, err := e.Auth.Verify(ctx, apiKey)
	if err != nil {
		if e.Metrics != nil {
			e.Metrics.AuthFailures.Inc()
		}
		if errors.Is(err, auth.ErrInvalidKey) {
			return auth.Credentials{}, errResult(e.Mode(), 403, "invalid api key"), false
		}
		return auth.Credentials{}, errResult(e.Mode(), 500, err.Error()), false
	}
	return creds, model.ExecutionResult{}, true
}

func (e *Engine) adapterFor(creds auth.Credentials) (broker.Adapter, model.ExecutionResult, bool) {
	adapter, err := e.Resolve(creds.Broker)
	if err != nil {
		if errors.Is(err, broker.ErrNotFound) {
			return nil, errResult(e.Mode(), 404, "broker "+creds.Broker+" not available"), false
		}
		return nil, errResult(e.Mode(), 500, err.Error()), false
	}
	return adapter, model.ExecutionResult{}, true
}

// dispatch runs fn through the background queue so broker calls share
// one rate limit across all callers. Batch children bypass this; the
// coordinator paces them itself.
func (e *Engine) dispatch(smart bool, fn func()) {
	if e.Queue == nil {
		fn()
		return
	}
	done := make(chan struct{})
	job := func(context.Context) {
		fn()
		close(done)
	}
	if smart {
		e.Queue.EnqueueSmart(job)
	} else {
		e.Queue.Enqueue(job)
	}
	<-done
	if e.Metrics != nil {
		s, r := e.Queue.Depth()
		e.Metrics.QueueDepth.WithLabelValues("smart").Set(float64(s))
		e.Metrics.QueueDepth.WithLabelValues("regular").Set(float64(r))
	}
}

// record writes the audit row and publishes the order event. Never
// called for auth misses.
func (e *Engine) record(op string, creds auth.Credentials, req model.OrderRequest, res model.ExecutionResult) {
	if e.Metrics != nil {
		e.Metrics.OrdersTotal.WithLabelValues(op, res.Status).Inc()
	}
	if e.Audit != nil {
		payload, _ := json.Marshal(req.Sanitized())
		e.Audit.Record(audit.Entry{
			Operation: op,
			Owner:     creds.Owner,
			Broker:    creds.Broker,
			Mode:      res.Mode,
			Symbol:    req.Symbol,
			Exchange:  req.Exchange,
			Status:    res.Status,
			OrderID:   res.OrderID,
			Message:   res.Message,
			Payload:   payload,
		})
	}
	if e.Events != nil {
		e.Events.Publish(notify.Event{
			Operation: op,
			Symbol:    req.Symbol,
			Exchange:  req.Exchange,
			Action:    req.Action,
			Quantity:  req.Quantity,
			Status:    res.Status,
			OrderID:   res.OrderID,
			Mode:      res.Mode,
			Message:   res.Message,
		})
	}
}

func (e *Engine) replyResult(reply broker.Reply, err error) model.ExecutionResult {
	if err != nil {
		return errResult(model.ModeLive, 500, err.Error())
	}
	res := model.ExecutionResult{
		Status:     reply.Status,
		Mode:       model.ModeLive,
		OrderID:    reply.OrderID,
		Message:    reply.Message,
		HTTPStatus: 200,
	}
	if reply.Status == model.StatusError {
		res.HTTPStatus = 500
	}
	return res
}

// park stores a credential-stripped payload in the approval queue.
func (e *Engine) park(ctx context.Context, creds auth.Credentials, op string, payload interface{}) model.ExecutionResult {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errResult(model.ModeLive, 500, err.Error())
	}
	p, err := e.Approvals.Enqueue(ctx, creds.Owner, op, raw)
	if err != nil {
		return errResult(model.ModeLive, 500, err.Error())
	}
	if e.Metrics != nil {
		e.Metrics.PendingApprovals.Inc()
	}
	if e.Events != nil {
		e.Events.Publish(notify.Event{
			Operation: op,
			Status:    "pending approval",
			OrderID:   p.ID,
			Mode:      model.ModeLive,
		})
	}
	return model.ExecutionResult{
		Status:     model.StatusSuccess,
		Mode:       model.ModeLive,
		OrderID:    p.ID,
		Message:    "order parked for approval",
		HTTPStatus: 200,
	}
}

func (e *Engine) needsApproval(creds auth.Credentials, op string) bool {
	return e.Approvals != nil && approval.ShouldQueue(creds.TradingMode, op)
}

// PlaceOrder submits one order.
func (e *Engine) PlaceOrder(ctx context.Context, req model.OrderRequest) model.ExecutionResult {
	creds, errRes, ok := e.verify(ctx, req.APIKey)
	if !ok {
		return errRes
	}
	if err := order.Validate(&req, false); err != nil {
		res := errResult(e.Mode(), 400, err.Error())
		e.record(OpPlaceOrder, creds, req, res)
		return res
	}
	if e.Mode() == model.ModeAnalyze {
		res := e.analyzeOrder(req)
		e.record(OpPlaceOrder, creds, req, res)
		return res
	}
	if e.needsApproval(creds, OpPlaceOrder) {
		return e.park(ctx, creds, OpPlaceOrder, req.Sanitized())
	}
	res := e.placeLive(ctx, creds, req)
	e.record(OpPlaceOrder, creds, req, res)
	return res
}

func (e *Engine) placeLive(ctx context.Context, creds auth.Credentials, req model.OrderRequest) model.ExecutionResult {
	adapter, errRes, ok := e.adapterFor(creds)
	if !ok {
		return errRes
	}
	var reply broker.Reply
	var err error
	e.dispatch(false, func() {
		start := time.Now()
		reply, err = adapter.PlaceOrder(ctx, creds.AuthToken, req)
		if e.Metrics != nil {
			e.Metrics.ObserveBrokerCall(time.Since(start))
		}
	})
	return e.replyResult(reply, err)
}

// PlaceSmartOrder reconciles the net position toward req.PositionSize.
func (e *Engine) PlaceSmartOrder(ctx context.Context, req model.OrderRequest) model.ExecutionResult {
	creds, errRes, ok := e.verify(ctx, req.APIKey)
	if !ok {
		return errRes
	}
	if err := order.Validate(&req, true); err != nil {
		res := errResult(e.Mode(), 400, err.Error())
		e.record(OpSmartOrder, creds, req, res)
		return res
	}
	if e.Mode() == model.ModeAnalyze {
		res := e.analyzeOrder(req)
		e.record(OpSmartOrder, creds, req, res)
		return res
	}
	if e.needsApproval(creds, OpSmartOrder) {
		return e.park(ctx, creds, OpSmartOrder, req.Sanitized())
	}

	adapter, errRes, ok := e.adapterFor(creds)
	if !ok {
		return errRes
	}
	var reply broker.Reply
	var err error
	// Smart tier: strict pacing keeps the position read and the delta
	// submission consistent across concurrent smart orders.
	e.dispatch(true, func() {
		start := time.Now()
		reply, err = adapter.PlaceSmartOrder(ctx, creds.AuthToken, req)
		if e.Metrics != nil {
			e.Metrics.ObserveBrokerCall(time.Since(start))
		}
	})
	res := e.replyResult(reply, err)
	e.record(OpSmartOrder, creds, req, res)
	return res
}

// liveSubmit is the coordinator SubmitFunc for live batches.
func (e *Engine) liveSubmit(adapter broker.Adapter, authToken string) order.SubmitFunc {
	return func(ctx context.Context, req model.OrderRequest) model.ChildResult {
		start := time.Now()
		reply, err := adapter.PlaceOrder(ctx, authToken, req)
		if e.Metrics != nil {
			e.Metrics.ObserveBrokerCall(time.Since(start))
		}
		if err != nil {
			return model.ChildResult{
				Symbol: req.Symbol, Action: req.Action, Quantity: req.Quantity,
				Status: model.StatusError, Message: err.Error(),
			}
		}
		return model.ChildResult{
			Symbol: req.Symbol, Action: req.Action, Quantity: req.Quantity,
			Status: reply.Status, OrderID: reply.OrderID, Message: reply.Message,
		}
	}
}

// runBatch executes validated children in the current mode and folds
// the aggregate into an ExecutionResult.
func (e *Engine) runBatch(ctx context.Context, creds auth.Credentials, children []model.OrderRequest, invalid []model.ChildResult) model.ExecutionResult {
	mode := e.Mode()
	if e.Metrics != nil {
		e.Metrics.BatchSize.Observe(float64(len(children) + len(invalid)))
	}

	var submit order.SubmitFunc
	if mode == model.ModeAnalyze {
		submit = func(_ context.Context, req model.OrderRequest) model.ChildResult {
			return e.analyzeSubmit(req)
		}
	} else {
		adapter, errRes, ok := e.adapterFor(creds)
		if !ok {
			return errRes
		}
		submit = e.liveSubmit(adapter, creds.AuthToken)
	}

	agg := e.coord().Execute(ctx, children, submit)
	agg.Results = append(agg.Results, invalid...)
	agg.Failed += len(invalid)

	res := model.ExecutionResult{
		Status:     model.StatusSuccess,
		Mode:       mode,
		Results:    agg.Results,
		Successful: agg.Successful,
		Failed:     agg.Failed,
		HTTPStatus: 200,
	}
	if agg.Successful == 0 && agg.Failed > 0 {
		res.Status = model.StatusError
	}
	return res
}

func (e *Engine) coord() *order.Coordinator {
	if e.Coord != nil {
		return e.Coord
	}
	return order.NewCoordinator(0, 0)
}

// PlaceBasketOrder submits a batch of independent orders. Invalid
// children are reported without submission and never block siblings.
func (e *Engine) PlaceBasketOrder(ctx context.Context, apiKey, strategy string, children []model.OrderRequest) model.ExecutionResult {
	creds, errRes, ok := e.verify(ctx, apiKey)
	if !ok {
		return errRes
	}
	if len(children) == 0 {
		return errResult(e.Mode(), 400, "basket is empty")
	}

	var valid []model.OrderRequest
	var invalid []model.ChildResult
	for i := range children {
		child := children[i]
		child.APIKey = ""
		child.Strategy = strategy
		if err := order.Validate(&child, false); err != nil {
			invalid = append(invalid, model.ChildResult{
				Symbol: child.Symbol, Action: child.Action, Quantity: child.Quantity,
				Status: model.StatusError, Message: err.Error(),
			})
			continue
		}
		valid = append(valid, child)
	}

	if e.Mode() == model.ModeLive && e.needsApproval(creds, OpBasketOrder) {
		// Nothing left to approve when every child failed validation.
		if len(valid) == 0 {
			res := errResult(model.ModeLive, 400, "no valid orders in basket")
			res.Results = invalid
			res.Failed = len(invalid)
			e.recordBatch(OpBasketOrder, creds, res)
			return res
		}
		res := e.park(ctx, creds, OpBasketOrder, valid)
		// Invalid children are rejected now, not parked; the caller sees
		// both outcomes in one result.
		res.Results = invalid
		res.Failed = len(invalid)
		return res
	}

	res := e.runBatch(ctx, creds, valid, invalid)
	e.recordBatch(OpBasketOrder, creds, res)
	return res
}

// PlaceSplitOrder slices one order into rate-limited chunks.
func (e *Engine) PlaceSplitOrder(ctx context.Context, req model.OrderRequest) model.ExecutionResult {
	creds, errRes, ok := e.verify(ctx, req.APIKey)
	if !ok {
		return errRes
	}
	if err := order.Validate(&req, false); err != nil {
		res := errResult(e.Mode(), 400, err.Error())
		e.record(OpSplitOrder, creds, req, res)
		return res
	}
	plan, err := order.BuildSplitPlan(req.Quantity, req.SplitSize)
	if err != nil {
		res := errResult(e.Mode(), 400, err.Error())
		e.record(OpSplitOrder, creds, req, res)
		return res
	}

	children := make([]model.OrderRequest, 0, len(plan))
	for _, qty := range plan {
		child := req.Sanitized()
		child.Quantity = qty
		children = append(children, child)
	}

	if e.Mode() == model.ModeLive && e.needsApproval(creds, OpSplitOrder) {
		return e.park(ctx, creds, OpSplitOrder, children)
	}

	res := e.runBatch(ctx, creds, children, nil)
	e.recordBatch(OpSplitOrder, creds, res)
	return res
}

// PlaceOptionOrder resolves every leg's contract against live prices
// and submits the batch. Resolution failures reject the whole batch
// before any submission.
func (e *Engine) PlaceOptionOrder(ctx context.Context, m model.MultiLegOrder) model.ExecutionResult {
	creds, errRes, ok := e.verify(ctx, m.APIKey)
	if !ok {
		return errRes
	}
	if len(m.Legs) == 0 {
		return errResult(e.Mode(), 400, "no legs")
	}
	if e.Options == nil {
		return errResult(e.Mode(), 500, "option resolver not configured")
	}
	for i := range m.Legs {
		if err := order.ValidateLeg(&m.Legs[i]); err != nil {
			return errResult(e.Mode(), 400, err.Error())
		}
	}

	resolved, _, err := e.Options.ResolveBatch(ctx, m)
	if err != nil {
		return errResult(e.Mode(), 400, err.Error())
	}

	children := make([]model.OrderRequest, 0, len(m.Legs))
	for i, leg := range m.Legs {
		children = append(children, model.OrderRequest{
			Strategy:  m.Strategy,
			Symbol:    resolved[i].Symbol,
			Exchange:  resolved[i].Exchange,
			Action:    leg.Action,
			Quantity:  leg.Quantity,
			PriceType: leg.PriceType,
			Product:   leg.Product,
			SplitSize: leg.SplitSize,
		})
	}

	if e.Mode() == model.ModeLive && e.needsApproval(creds, OpOptionOrder) {
		return e.park(ctx, creds, OpOptionOrder, children)
	}

	res := e.runBatch(ctx, creds, children, nil)
	e.recordBatch(OpOptionOrder, creds, res)
	return res
}

func (e *Engine) recordBatch(op string, creds auth.Credentials, res model.ExecutionResult) {
	e.record(op, creds, model.OrderRequest{}, model.ExecutionResult{
		Status:  res.Status,
		Mode:    res.Mode,
		Message: res.Message,
	})
}

// ModifyOrder updates an open order.
func (e *Engine) ModifyOrder(ctx context.Context, req model.ModifyRequest) model.ExecutionResult {
	creds, errRes, ok := e.verify(ctx, req.APIKey)
	if !ok {
		return errRes
	}
	if err := order.ValidateModify(&req); err != nil {
		return errResult(e.Mode(), 400, err.Error())
	}
	if e.Mode() == model.ModeAnalyze {
		res := model.ExecutionResult{
			Status: model.StatusSuccess, Mode: model.ModeAnalyze,
			OrderID: req.OrderID, HTTPStatus: 200,
		}
		e.record(OpModifyOrder, creds, model.OrderRequest{Symbol: req.Symbol, Exchange: req.Exchange}, res)
		return res
	}

	adapter, errRes, ok := e.adapterFor(creds)
	if !ok {
		return errRes
	}
	var reply broker.Reply
	var err error
	e.dispatch(false, func() {
		reply, err = adapter.ModifyOrder(ctx, creds.AuthToken, req)
	})
	res := e.replyResult(reply, err)
	e.record(OpModifyOrder, creds, model.OrderRequest{Symbol: req.Symbol, Exchange: req.Exchange, Action: req.Action, Quantity: req.Quantity}, res)
	return res
}

// CancelOrder cancels one open order.
func (e *Engine) CancelOrder(ctx context.Context, req model.CancelRequest) model.ExecutionResult {
	creds, errRes, ok := e.verify(ctx, req.APIKey)
	if !ok {
		return errRes
	}
	if req.OrderID == "" {
		return errResult(e.Mode(), 400, "orderid required")
	}
	if e.Mode() == model.ModeAnalyze {
		res := model.ExecutionResult{
			Status: model.StatusSuccess, Mode: model.ModeAnalyze,
			OrderID: req.OrderID, HTTPStatus: 200,
		}
		e.record(OpCancelOrder, creds, model.OrderRequest{}, res)
		return res
	}

	adapter, errRes, ok := e.adapterFor(creds)
	if !ok {
		return errRes
	}
	var reply broker.Reply
	var err error
	e.dispatch(false, func() {
		reply, err = adapter.CancelOrder(ctx, creds.AuthToken, req.OrderID)
	})
	res := e.replyResult(reply, err)
	e.record(OpCancelOrder, creds, model.OrderRequest{}, res)
	return res
}

// CancelAllOrders cancels every open order.
func (e *Engine) CancelAllOrders(ctx context.Context, apiKey string) model.ExecutionResult {
	creds, errRes, ok := e.verify(ctx, apiKey)
	if !ok {
		return errRes
	}
	if e.Mode() == model.ModeAnalyze {
		res := model.ExecutionResult{Status: model.StatusSuccess, Mode: model.ModeAnalyze, HTTPStatus: 200}
		e.record(OpCancelAll, creds, model.OrderRequest{}, res)
		return res
	}

	adapter, errRes, ok := e.adapterFor(creds)
	if !ok {
		return errRes
	}
	var canceled, failed []string
	var err error
	e.dispatch(false, func() {
		canceled, failed, err = adapter.CancelAllOrders(ctx, creds.AuthToken)
	})
	if err != nil {
		res := errResult(model.ModeLive, 500, err.Error())
		e.record(OpCancelAll, creds, model.OrderRequest{}, res)
		return res
	}

	res := model.ExecutionResult{
		Status:     model.StatusSuccess,
		Mode:       model.ModeLive,
		Successful: len(canceled),
		Failed:     len(failed),
		HTTPStatus: 200,
	}
	for _, id := range canceled {
		res.Results = append(res.Results, model.ChildResult{OrderID: id, Status: model.StatusSuccess})
	}
	for _, id := range failed {
		res.Results = append(res.Results, model.ChildResult{OrderID: id, Status: model.StatusError})
	}
	e.record(OpCancelAll, creds, model.OrderRequest{}, res)
	return res
}

// ClosePositions flattens every open position with market orders.
func (e *Engine) ClosePositions(ctx context.Context, apiKey string) model.ExecutionResult {
	creds, errRes, ok := e.verify(ctx, apiKey)
	if !ok {
		return errRes
	}
	if e.Mode() == model.ModeAnalyze {
		res := model.ExecutionResult{Status: model.StatusSuccess, Mode: model.ModeAnalyze, HTTPStatus: 200}
		e.record(OpClosePosition, creds, model.OrderRequest{}, res)
		return res
	}

	adapter, errRes, ok := e.adapterFor(creds)
	if !ok {
		return errRes
	}
	var reply broker.Reply
	var err error
	e.dispatch(false, func() {
		reply, err = adapter.CloseAllPositions(ctx, creds.AuthToken)
	})
	res := e.replyResult(reply, err)
	e.record(OpClosePosition, creds, model.OrderRequest{}, res)
	return res
}

// Positions returns the account's position snapshot. Reads are never
// parked for approval and never audited.
func (e *Engine) Positions(ctx context.Context, apiKey string) ([]model.Position, model.ExecutionResult) {
	creds, errRes, ok := e.verify(ctx, apiKey)
	if !ok {
		return nil, errRes
	}
	adapter, errRes, ok := e.adapterFor(creds)
	if !ok {
		return nil, errRes
	}
	positions, err := adapter.Positions(ctx, creds.AuthToken)
	if err != nil {
		return nil, errResult(e.Mode(), 500, err.Error())
	}
	return positions, model.ExecutionResult{Status: model.StatusSuccess, Mode: e.Mode(), HTTPStatus: 200}
}

// Approve executes a parked order and backfills the broker result.
func (e *Engine) Approve(ctx context.Context, id, decidedBy string) model.ExecutionResult {
	if e.Approvals == nil {
		return errResult(model.ModeLive, 500, "approval queue not configured")
	}
	p, err := e.Approvals.Decide(ctx, id, model.PendingStatusApproved, decidedBy, "")
	if err != nil {
		return e.decideError(err)
	}
	if e.Metrics != nil {
		e.Metrics.PendingApprovals.Dec()
	}

	creds, err := e.Auth.ByOwner(ctx, p.Owner)
	if err != nil {
		return errResult(model.ModeLive, 500, "no broker session for owner "+p.Owner)
	}

	res := e.executeParked(ctx, creds, p)
	if err := e.Approvals.SetBrokerResult(ctx, p.ID, res.OrderID, res.Status); err != nil {
		res.Message = res.Message + " (broker result not recorded)"
	}
	res.HTTPStatus = 200
	return res
}

// Reject declines a parked order without executing it.
func (e *Engine) Reject(ctx context.Context, id, decidedBy, reason string) model.ExecutionResult {
	if e.Approvals == nil {
		return errResult(model.ModeLive, 500, "approval queue not configured")
	}
	if _, err := e.Approvals.Decide(ctx, id, model.PendingStatusRejected, decidedBy, reason); err != nil {
		return e.decideError(err)
	}
	if e.Metrics != nil {
		e.Metrics.PendingApprovals.Dec()
	}
	return model.ExecutionResult{
		Status:     model.StatusSuccess,
		Mode:       model.ModeLive,
		OrderID:    id,
		Message:    "order rejected",
		HTTPStatus: 200,
	}
}

func (e *Engine) decideError(err error) model.ExecutionResult {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		return errResult(model.ModeLive, 404, err.Error())
	case errors.Is(err, approval.ErrAlreadyDecided):
		return errResult(model.ModeLive, 400, err.Error())
	default:
		return errResult(model.ModeLive, 500, err.Error())
	}
}

// executeParked replays a parked payload through the live path.
func (e *Engine) executeParked(ctx context.Context, creds auth.Credentials, p model.PendingOrder) model.ExecutionResult {
	switch p.OperationType {
	case OpPlaceOrder, OpSmartOrder:
		var req model.OrderRequest
		if err := json.Unmarshal(p.Payload, &req); err != nil {
			return errResult(model.ModeLive, 500, "corrupt parked payload: "+err.Error())
		}
		if p.OperationType == OpSmartOrder {
			adapter, errRes, ok := e.adapterFor(creds)
			if !ok {
				return errRes
			}
			var reply broker.Reply
			var err error
			e.dispatch(true, func() {
				reply, err = adapter.PlaceSmartOrder(ctx, creds.AuthToken, req)
			})
			res := e.replyResult(reply, err)
			e.record(OpSmartOrder, creds, req, res)
			return res
		}
		res := e.placeLive(ctx, creds, req)
		e.record(OpPlaceOrder, creds, req, res)
		return res

	case OpBasketOrder, OpSplitOrder, OpOptionOrder:
		var children []model.OrderRequest
		if err := json.Unmarshal(p.Payload, &children); err != nil {
			return errResult(model.ModeLive, 500, "corrupt parked payload: "+err.Error())
		}
		res := e.runBatch(ctx, creds, children, nil)
		e.recordBatch(p.OperationType, creds, res)
		return res

	default:
		return errResult(model.ModeLive, 500, "unknown parked operation "+p.OperationType)
	}
}
