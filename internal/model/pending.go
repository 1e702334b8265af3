package model

import "time"

// Pending order statuses. Transitions: pending -> approved | rejected.
// Only non-pending orders may be deleted.
const (
	PendingStatusPending  = "pending"
	PendingStatusApproved = "approved"
	PendingStatusRejected = "rejected"
)

// PendingOrder is an order parked in the approval queue for semi-auto
// accounts. Payload is stored credential-stripped.
type PendingOrder struct {
	ID            string    `json:"id"`
	Owner         string    `json:"owner"`
	OperationType string    `json:"operation_type"`
	Payload       []byte    `json:"payload"`
	Status        string    `json:"status"`
	BrokerOrderID string    `json:"broker_order_id,omitempty"`
	BrokerStatus  string    `json:"broker_status,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	DecidedBy     string    `json:"decided_by,omitempty"`
	DecidedAt     time.Time `json:"decided_at,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// Decided reports whether the order has left the pending state.
func (p *PendingOrder) Decided() bool {
	return p.Status != PendingStatusPending
}
