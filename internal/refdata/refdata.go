// Package refdata exposes the reference-data collaborator: listed
// option strikes, expiries, lot sizes, and last-traded prices. The
// engine only ever trades strikes that actually exist here.
package refdata

import (
	"context"
	"errors"
)

// Typed failures. The option resolver surfaces these instead of ever
// guessing a symbol.
var (
	ErrNoExpiry  = errors.New("no expiry list available")
	ErrNoStrikes = errors.New("no listed strikes found")
	ErrNoLTP     = errors.New("last traded price unavailable")
)

// Source supplies reference data for a given underlying/exchange.
type Source interface {
	// LTP returns the last traded price for a symbol.
	LTP(ctx context.Context, symbol, exchange string) (float64, error)

	// Expiries returns the listed expiries (DDMMMYY) for an underlying,
	// nearest first.
	Expiries(ctx context.Context, underlying, exchange string) ([]string, error)

	// Strikes returns the listed strikes for an underlying and expiry,
	// sorted ascending.
	Strikes(ctx context.Context, underlying, exchange, expiry string) ([]float64, error)

	// LotSize returns the contract lot size for a symbol.
	LotSize(ctx context.Context, symbol, exchange string) (int64, error)
}
