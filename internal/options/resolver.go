// Package options resolves (underlying, expiry, offset, option type)
// into tradable contract symbols against live prices and listed
// strikes.
package options

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/marketcalls/openalgo-sub001/internal/model"
	"github.com/marketcalls/openalgo-sub001/internal/refdata"
)

// Resolved is one leg's tradable contract.
type Resolved struct {
	Symbol        string
	Exchange      string
	Strike        float64
	UnderlyingLTP float64
}

// Resolver turns offset specs into listed contracts. It never
// fabricates a strike: every resolved strike comes from the reference
// data source.
type Resolver struct {
	src refdata.Source
}

// NewResolver builds a Resolver over the given reference data source.
func NewResolver(src refdata.Source) *Resolver {
	return &Resolver{src: src}
}

// ResolveBatch resolves every leg of a multi-leg order. The underlying
// LTP is fetched exactly once and shared by all legs; the strike chain
// is fetched once per batch as well.
func (r *Resolver) ResolveBatch(ctx context.Context, m model.MultiLegOrder) ([]Resolved, float64, error) {
	underlying, expiry := splitEmbeddedExpiry(m.Underlying, m.Expiry)

	if expiry == "" {
		expiries, err := r.src.Expiries(ctx, underlying, m.Exchange)
		if err != nil {
			return nil, 0, err
		}
		// Guard against sources that return an empty list without an
		// error.
		if len(expiries) == 0 {
			return nil, 0, fmt.Errorf("%s on %s: %w", underlying, m.Exchange, refdata.ErrNoExpiry)
		}
		expiry = expiries[0] // nearest
	}

	ltp, err := r.src.LTP(ctx, underlying, m.Exchange)
	if err != nil {
		return nil, 0, err
	}

	strikes, err := r.src.Strikes(ctx, underlying, m.Exchange, expiry)
	if err != nil {
		return nil, 0, err
	}
	if len(strikes) == 0 {
		return nil, 0, fmt.Errorf("%s %s on %s: %w", underlying, expiry, m.Exchange, refdata.ErrNoStrikes)
	}

	out := make([]Resolved, 0, len(m.Legs))
	for i, leg := range m.Legs {
		offset, err := model.ParseOffset(leg.Offset)
		if err != nil {
			return nil, 0, fmt.Errorf("leg %d: %w", i+1, err)
		}
		strike, err := selectStrike(strikes, ltp, offset, leg.OptionType)
		if err != nil {
			return nil, 0, fmt.Errorf("leg %d: %w", i+1, err)
		}
		out = append(out, Resolved{
			Symbol:        ContractSymbol(underlying, expiry, strike, leg.OptionType),
			Exchange:      m.Exchange,
			Strike:        strike,
			UnderlyingLTP: ltp,
		})
	}
	return out, ltp, nil
}

// selectStrike picks the listed strike for an offset. ATM is the strike
// nearest the spot. For a call, ITM strikes sit below spot and OTM
// above; a put inverts both directions.
func selectStrike(strikes []float64, ltp float64, offset model.Offset, optionType string) (float64, error) {
	atm := nearestIndex(strikes, ltp)

	steps := offset.Steps
	if offset.Kind == "ATM" {
		return strikes[atm], nil
	}

	// Direction of increasing strike index for this offset kind.
	down := offset.Kind == "ITM" // call ITM = below spot
	if optionType == model.OptionPut {
		down = !down
	}

	idx := atm + steps
	if down {
		idx = atm - steps
	}
	if idx < 0 || idx >= len(strikes) {
		return 0, fmt.Errorf("%s%d %s: only %d strikes listed around ATM: %w",
			offset.Kind, steps, optionType, len(strikes), refdata.ErrNoStrikes)
	}
	return strikes[idx], nil
}

// nearestIndex returns the index of the strike closest to ltp. Strikes
// are sorted ascending.
func nearestIndex(strikes []float64, ltp float64) int {
	best := 0
	bestDiff := math.Abs(strikes[0] - ltp)
	for i := 1; i < len(strikes); i++ {
		d := math.Abs(strikes[i] - ltp)
		if d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

// ContractSymbol formats a tradable option symbol:
// [UNDERLYING][DDMMMYY][STRIKE][CE|PE], e.g. NIFTY28MAR2424550CE.
func ContractSymbol(underlying, expiry string, strike float64, optionType string) string {
	return underlying + expiry + formatStrike(strike) + optionType
}

func formatStrike(strike float64) string {
	if strike == math.Trunc(strike) {
		return strconv.FormatInt(int64(strike), 10)
	}
	return strconv.FormatFloat(strike, 'f', -1, 64)
}

// splitEmbeddedExpiry handles an expiry embedded in the underlying
// string ("NIFTY28MAR24"). An explicit expiry argument wins.
func splitEmbeddedExpiry(underlying, expiry string) (string, string) {
	underlying = strings.ToUpper(strings.TrimSpace(underlying))
	if expiry != "" {
		return underlying, strings.ToUpper(strings.TrimSpace(expiry))
	}
	// DDMMMYY suffix: 2 digits, 3 letters, 2 digits.
	if len(underlying) > 7 {
		tail := underlying[len(underlying)-7:]
		if isDigits(tail[:2]) && isLetters(tail[2:5]) && isDigits(tail[5:]) {
			return underlying[:len(underlying)-7], tail
		}
	}
	return underlying, ""
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isLetters(s string) bool {
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
