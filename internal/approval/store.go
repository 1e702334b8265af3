package approval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/marketcalls/openalgo-sub001/internal/model"
)

var (
	// ErrNotFound is returned for unknown pending order IDs.
	ErrNotFound = errors.New("pending order not found")

	// ErrAlreadyDecided guards the pending -> approved|rejected
	// transition: a decided order cannot be decided again.
	ErrAlreadyDecided = errors.New("pending order already decided")

	// ErrStillPending blocks deletion of undecided orders.
	ErrStillPending = errors.New("pending order not yet decided")
)

// Store persists the approval queue in SQLite.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// NewStore opens (or creates) the approval queue database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS pending_orders (
		id              TEXT PRIMARY KEY,
		owner           TEXT NOT NULL,
		operation_type  TEXT NOT NULL,
		payload         TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		broker_order_id TEXT,
		broker_status   TEXT,
		created_at      DATETIME NOT NULL,
		decided_by      TEXT,
		decided_at      DATETIME,
		reason          TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_pending_owner ON pending_orders(owner, status);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[approval] opened approval queue at %s", dbPath)
	return &Store{db: db}, nil
}

// Enqueue parks a credential-stripped payload and returns the pending
// order. The payload must already have its API key removed; this layer
// stores whatever it is given verbatim.
func (s *Store) Enqueue(ctx context.Context, owner, operationType string, payload []byte) (model.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := model.PendingOrder{
		ID:            uuid.NewString(),
		Owner:         owner,
		OperationType: operationType,
		Payload:       payload,
		Status:        model.PendingStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_orders (id, owner, operation_type, payload, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Owner, p.OperationType, string(p.Payload), p.Status,
		p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return model.PendingOrder{}, fmt.Errorf("approval enqueue: %w", err)
	}
	return p, nil
}

// Get returns one pending order by ID.
func (s *Store) Get(ctx context.Context, id string) (model.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id string) (model.PendingOrder, error) {
	var (
		p         model.PendingOrder
		payload   string
		createdAt string
		brokerID  sql.NullString
		brokerSt  sql.NullString
		decidedBy sql.NullString
		decidedAt sql.NullString
		reason    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner, operation_type, payload, status, broker_order_id, broker_status,
		        created_at, decided_by, decided_at, reason
		 FROM pending_orders WHERE id = ?`, id).Scan(
		&p.ID, &p.Owner, &p.OperationType, &payload, &p.Status,
		&brokerID, &brokerSt, &createdAt, &decidedBy, &decidedAt, &reason)
	if err == sql.ErrNoRows {
		return model.PendingOrder{}, ErrNotFound
	}
	if err != nil {
		return model.PendingOrder{}, fmt.Errorf("approval get: %w", err)
	}

	p.Payload = []byte(payload)
	p.BrokerOrderID = brokerID.String
	p.BrokerStatus = brokerSt.String
	p.DecidedBy = decidedBy.String
	p.Reason = reason.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if decidedAt.Valid {
		p.DecidedAt, _ = time.Parse(time.RFC3339, decidedAt.String)
	}
	return p, nil
}

// List returns an owner's queue, newest first. Empty status means all.
func (s *Store) List(ctx context.Context, owner, status string) ([]model.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := `SELECT id FROM pending_orders WHERE owner = ?`
	args := []interface{}{owner}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("approval list: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}

	out := make([]model.PendingOrder, 0, len(ids))
	for _, id := range ids {
		p, err := s.get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Decide moves a pending order to approved or rejected. The transition
// is one-way; deciding a decided order fails with ErrAlreadyDecided.
func (s *Store) Decide(ctx context.Context, id, status, decidedBy, reason string) (model.PendingOrder, error) {
	if status != model.PendingStatusApproved && status != model.PendingStatusRejected {
		return model.PendingOrder{}, fmt.Errorf("invalid decision %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.get(ctx, id)
	if err != nil {
		return model.PendingOrder{}, err
	}
	if p.Decided() {
		return model.PendingOrder{}, ErrAlreadyDecided
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE pending_orders SET status = ?, decided_by = ?, decided_at = ?, reason = ?
		 WHERE id = ? AND status = ?`,
		status, decidedBy, now.Format(time.RFC3339), reason, id, model.PendingStatusPending)
	if err != nil {
		return model.PendingOrder{}, fmt.Errorf("approval decide: %w", err)
	}

	p.Status = status
	p.DecidedBy = decidedBy
	p.DecidedAt = now
	p.Reason = reason
	return p, nil
}

// SetBrokerResult backfills the broker order ID and status after an
// approved order executes.
func (s *Store) SetBrokerResult(ctx context.Context, id, brokerOrderID, brokerStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_orders SET broker_order_id = ?, broker_status = ? WHERE id = ?`,
		brokerOrderID, brokerStatus, id)
	if err != nil {
		return fmt.Errorf("approval broker result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a decided order from the queue. Pending orders must be
// decided first.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !p.Decided() {
		return ErrStillPending
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM pending_orders WHERE id = ?`, id)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
