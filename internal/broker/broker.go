// Package broker defines the Adapter capability set implemented by each
// broker backend and the registry that resolves a broker identifier to
// a fresh adapter instance.
//
// Adapters are stateless: credentials arrive per call and nothing is
// cached between unrelated requests. A broker rejection is a value
// (Reply with StatusError or a wrapped error), never a panic.
package broker

import (
	"context"
	"errors"

	"github.com/marketcalls/openalgo-sub001/internal/model"
)

// ErrNotFound is returned by Resolve for an unknown broker identifier.
// Callers treat it as a configuration problem (HTTP 404), not a fault.
var ErrNotFound = errors.New("broker module not found")

// Reply is the normalized outcome of a single broker call.
type Reply struct {
	Status  string // model.StatusSuccess or model.StatusError
	OrderID string
	Message string
}

// Adapter is the per-broker implementation of the order and position
// capability set.
type Adapter interface {
	// Name returns the broker identifier (e.g. "angel", "paper").
	Name() string

	// PlaceOrder submits a validated order.
	PlaceOrder(ctx context.Context, authToken string, req model.OrderRequest) (Reply, error)

	// PlaceSmartOrder reconciles the account's net position for the
	// order's symbol/exchange/product tuple toward req.PositionSize and
	// submits the delta, if any.
	PlaceSmartOrder(ctx context.Context, authToken string, req model.OrderRequest) (Reply, error)

	// ModifyOrder updates an open order.
	ModifyOrder(ctx context.Context, authToken string, req model.ModifyRequest) (Reply, error)

	// CancelOrder cancels one open order by broker order id.
	CancelOrder(ctx context.Context, authToken, orderID string) (Reply, error)

	// CancelAllOrders cancels every open order, returning the ids that
	// were canceled and the ids that could not be.
	CancelAllOrders(ctx context.Context, authToken string) (canceled, failed []string, err error)

	// CloseAllPositions flattens every open position with market orders.
	CloseAllPositions(ctx context.Context, authToken string) (Reply, error)

	// Positions returns the account's current position snapshot.
	Positions(ctx context.Context, authToken string) ([]model.Position, error)
}
