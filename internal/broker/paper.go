package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/marketcalls/openalgo-sub001/internal/model"
	"github.com/marketcalls/openalgo-sub001/internal/order"
)

// Compile-time interface check.
var _ Adapter = (*Paper)(nil)

// paperBook holds the simulated order and position state. It lives at
// package level because adapter instances are created per call; the
// book is the process-wide sandbox account.
type paperBook struct {
	mu        sync.Mutex
	seq       int64
	open      map[string]model.OrderRequest // orderID -> open order
	positions map[string]*model.Position    // exchange:symbol:product
}

var book = &paperBook{
	open:      make(map[string]model.OrderRequest),
	positions: make(map[string]*model.Position),
}

// Paper is an in-memory broker used for sandbox trading and tests.
// Market orders fill immediately at the requested (or zero) price;
// LIMIT and stop orders rest in the book until canceled.
type Paper struct{}

// NewPaper returns the paper adapter.
func NewPaper() *Paper { return &Paper{} }

// Name returns "paper".
func (p *Paper) Name() string { return "paper" }

func (p *Paper) PlaceOrder(_ context.Context, _ string, req model.OrderRequest) (Reply, error) {
	book.mu.Lock()
	defer book.mu.Unlock()

	book.seq++
	orderID := fmt.Sprintf("PAPER-%06d", book.seq)

	if req.PriceType != model.PriceTypeMarket {
		book.open[orderID] = req
		return Reply{Status: model.StatusSuccess, OrderID: orderID, Message: "open"}, nil
	}

	key := req.Exchange + ":" + req.Symbol + ":" + req.Product
	pos, ok := book.positions[key]
	if !ok {
		pos = &model.Position{Symbol: req.Symbol, Exchange: req.Exchange, Product: req.Product}
		book.positions[key] = pos
	}
	if req.Action == model.ActionBuy {
		pos.Qty += req.Quantity
	} else {
		pos.Qty -= req.Quantity
	}
	pos.AvgPrice = req.Price

	return Reply{Status: model.StatusSuccess, OrderID: orderID, Message: "filled"}, nil
}

func (p *Paper) PlaceSmartOrder(ctx context.Context, authToken string, req model.OrderRequest) (Reply, error) {
	positions, err := p.Positions(ctx, authToken)
	if err != nil {
		return Reply{}, err
	}
	current := model.NetQty(positions, req.Symbol, req.Exchange, req.Product)
	delta, err := order.SmartDelta(req.Action, req.PositionSize, current)
	if err != nil {
		return Reply{}, err
	}
	if delta.Noop {
		return Reply{Status: model.StatusSuccess, Message: delta.Message}, nil
	}
	child := req
	child.Quantity = delta.Quantity
	return p.PlaceOrder(ctx, authToken, child)
}

func (p *Paper) ModifyOrder(_ context.Context, _ string, req model.ModifyRequest) (Reply, error) {
	return Reply{Status: model.StatusSuccess, OrderID: req.OrderID, Message: "modified"}, nil
}

func (p *Paper) CancelOrder(_ context.Context, _ string, orderID string) (Reply, error) {
	book.mu.Lock()
	delete(book.open, orderID)
	book.mu.Unlock()
	return Reply{Status: model.StatusSuccess, OrderID: orderID, Message: "canceled"}, nil
}

func (p *Paper) CancelAllOrders(_ context.Context, _ string) ([]string, []string, error) {
	book.mu.Lock()
	defer book.mu.Unlock()
	canceled := make([]string, 0, len(book.open))
	for id := range book.open {
		canceled = append(canceled, id)
		delete(book.open, id)
	}
	return canceled, nil, nil
}

func (p *Paper) CloseAllPositions(ctx context.Context, authToken string) (Reply, error) {
	positions, err := p.Positions(ctx, authToken)
	if err != nil {
		return Reply{}, err
	}
	closed := 0
	for _, pos := range positions {
		if pos.Qty == 0 {
			continue
		}
		action := model.ActionSell
		qty := pos.Qty
		if qty < 0 {
			action = model.ActionBuy
			qty = -qty
		}
		req := model.OrderRequest{
			Symbol: pos.Symbol, Exchange: pos.Exchange, Product: pos.Product,
			Action: action, Quantity: qty, PriceType: model.PriceTypeMarket,
		}
		if _, err := p.PlaceOrder(ctx, authToken, req); err != nil {
			return Reply{Status: model.StatusError, Message: err.Error()}, nil
		}
		closed++
	}
	return Reply{Status: model.StatusSuccess, Message: fmt.Sprintf("closed %d positions", closed)}, nil
}

func (p *Paper) Positions(_ context.Context, _ string) ([]model.Position, error) {
	book.mu.Lock()
	defer book.mu.Unlock()
	out := make([]model.Position, 0, len(book.positions))
	for _, pos := range book.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// ResetPaperBook clears the sandbox state. Tests use it for isolation.
func ResetPaperBook() {
	book.mu.Lock()
	defer book.mu.Unlock()
	book.seq = 0
	book.open = make(map[string]model.OrderRequest)
	book.positions = make(map[string]*model.Position)
}
