package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Option types.
const (
	OptionCall = "CE"
	OptionPut  = "PE"
)

// Offset is a strike selector relative to at-the-money. Zero steps is
// ATM; positive steps move n strikes into or out of the money.
type Offset struct {
	Kind  string // "ATM", "ITM", "OTM"
	Steps int    // 1..50 for ITM/OTM, 0 for ATM
}

// ParseOffset parses "ATM", "ITM1".."ITM50", "OTM1".."OTM50".
func ParseOffset(s string) (Offset, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "ATM" {
		return Offset{Kind: "ATM"}, nil
	}
	for _, kind := range []string{"ITM", "OTM"} {
		if strings.HasPrefix(s, kind) {
			n, err := strconv.Atoi(s[len(kind):])
			if err != nil || n < 1 || n > 50 {
				return Offset{}, fmt.Errorf("invalid offset %q: steps must be 1-50", s)
			}
			return Offset{Kind: kind, Steps: n}, nil
		}
	}
	return Offset{}, fmt.Errorf("invalid offset %q", s)
}

func (o Offset) String() string {
	if o.Kind == "ATM" {
		return "ATM"
	}
	return fmt.Sprintf("%s%d", o.Kind, o.Steps)
}

// Leg is one option order within a multi-leg strategy. Legs are
// independent except for sharing the batch's resolved underlying price.
type Leg struct {
	Offset     string `json:"offset"` // ATM / ITMn / OTMn
	OptionType string `json:"option_type"`
	Action     string `json:"action"`
	Quantity   int64  `json:"quantity"`
	PriceType  string `json:"pricetype"`
	Product    string `json:"product"`
	SplitSize  int64  `json:"split_size,omitempty"`
}

// Normalize upper-cases the enum-valued leg fields in place, matching
// OrderRequest.Normalize so "buy"/"ce"/"market" behave like their
// canonical forms.
func (l *Leg) Normalize() {
	l.Offset = strings.ToUpper(strings.TrimSpace(l.Offset))
	l.OptionType = strings.ToUpper(strings.TrimSpace(l.OptionType))
	l.Action = strings.ToUpper(strings.TrimSpace(l.Action))
	l.PriceType = strings.ToUpper(strings.TrimSpace(l.PriceType))
	l.Product = strings.ToUpper(strings.TrimSpace(l.Product))
}

// MultiLegOrder is a batch of option legs against one underlying.
type MultiLegOrder struct {
	APIKey     string `json:"apikey"`
	Strategy   string `json:"strategy"`
	Underlying string `json:"underlying"`
	Exchange   string `json:"exchange"`
	Expiry     string `json:"expiry"` // DDMMMYY, e.g. 28MAR24; may be embedded in Underlying
	Legs       []Leg  `json:"legs"`
}
