// Package approval implements the semi-auto order gate: operations
// from semi-auto accounts are parked in a pending queue until a human
// approves or rejects them.
package approval

// Trading modes for an account.
const (
	ModeAuto     = "auto"
	ModeSemiAuto = "semi"
)

// passthrough lists the operations that never require approval, even
// for semi-auto accounts. These are reads plus risk-reducing actions
// that must stay fast.
var passthrough = map[string]bool{
	"cancelorder":    true,
	"cancelallorder": true,
	"modifyorder":    true,
	"closeposition":  true,
	"orderstatus":    true,
	"orderbook":      true,
	"tradebook":      true,
	"positions":      true,
	"openposition":   true,
	"holdings":       true,
	"funds":          true,
}

// ShouldQueue reports whether an operation from an account in the
// given trading mode must be parked for approval.
func ShouldQueue(tradingMode, operation string) bool {
	if tradingMode != ModeSemiAuto {
		return false
	}
	return !passthrough[operation]
}
