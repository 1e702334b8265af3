package model

// Position is a broker position snapshot row. Qty is the net quantity:
// positive long, negative short.
type Position struct {
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	Product  string  `json:"product"`
	Qty      int64   `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
	LTP      float64 `json:"ltp"`
}

// Key returns the identity tuple used for smart-order reconciliation.
func (p *Position) Key() string {
	return p.Exchange + ":" + p.Symbol + ":" + p.Product
}

// NetQty scans a snapshot for the exact symbol/exchange/product tuple.
// Absence of a match means a flat position, not an error.
func NetQty(positions []Position, symbol, exchange, product string) int64 {
	for i := range positions {
		p := &positions[i]
		if p.Symbol == symbol && p.Exchange == exchange && p.Product == product {
			return p.Qty
		}
	}
	return 0
}
