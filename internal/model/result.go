package model

// Execution modes. The process-wide toggle selects one; every result is
// labeled with the mode that produced it.
const (
	ModeLive    = "live"
	ModeAnalyze = "analyze"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ExecutionResult is the uniform top-level response of every public
// operation. Exactly one is produced per call; it owns its child
// results and is never mutated after being returned.
type ExecutionResult struct {
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	OrderID string `json:"orderid,omitempty"`
	Message string `json:"message,omitempty"`

	// Batch aggregation (basket/split/multi-leg).
	Results    []ChildResult `json:"results,omitempty"`
	Successful int           `json:"successful,omitempty"`
	Failed     int           `json:"failed,omitempty"`

	// HTTPStatus is the HTTP-equivalent code for transport layers.
	// 200 success (incl. no-op and partial batch), 400 validation,
	// 403 auth, 404 adapter not found, 500 adapter/internal failure.
	HTTPStatus int `json:"-"`
}

// ChildResult is the outcome of one child order within a batch.
type ChildResult struct {
	Symbol   string `json:"symbol"`
	Action   string `json:"action"`
	Quantity int64  `json:"quantity"`
	Status   string `json:"status"`
	OrderID  string `json:"orderid,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Ok reports whether the child succeeded.
func (c ChildResult) Ok() bool { return c.Status == StatusSuccess }
