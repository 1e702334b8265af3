// Package audit records every authenticated order operation to a
// SQLite journal. Writes happen on a background goroutine so a slow or
// broken disk never delays or fails an order.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultBuffer = 1024

// Entry is one audited operation. The payload is the sanitized request
// body, never containing the caller's API key.
type Entry struct {
	Operation  string          `json:"operation"`
	Owner      string          `json:"owner"`
	Broker     string          `json:"broker"`
	Mode       string          `json:"mode"`
	Symbol     string          `json:"symbol"`
	Exchange   string          `json:"exchange"`
	Status     string          `json:"status"`
	OrderID    string          `json:"order_id"`
	Message    string          `json:"message"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Logger is the async audit journal.
type Logger struct {
	db      *sql.DB
	entries chan Entry
	done    chan struct{}
	once    sync.Once

	// OnDrop fires when the buffer is full and an entry is discarded.
	// Wired to a metrics counter by the caller.
	OnDrop func()
}

// New opens (or creates) the audit database and starts the writer
// goroutine.
func New(dbPath string) (*Logger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		operation   TEXT NOT NULL,
		owner       TEXT NOT NULL,
		broker      TEXT NOT NULL,
		mode        TEXT NOT NULL,
		symbol      TEXT,
		exchange    TEXT,
		status      TEXT NOT NULL,
		order_id    TEXT,
		message     TEXT,
		payload     TEXT,
		recorded_at DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_owner ON audit_log(owner);
	CREATE INDEX IF NOT EXISTS idx_audit_recorded ON audit_log(recorded_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	l := &Logger{
		db:      db,
		entries: make(chan Entry, defaultBuffer),
		done:    make(chan struct{}),
	}
	go l.run()

	log.Printf("[audit] opened audit log at %s", dbPath)
	return l, nil
}

// Record enqueues an entry. It never blocks: when the buffer is full
// the entry is dropped and OnDrop is notified.
func (l *Logger) Record(e Entry) {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	select {
	case l.entries <- e:
	default:
		if l.OnDrop != nil {
			l.OnDrop()
		}
		log.Printf("[audit] buffer full, dropped %s entry for %s", e.Operation, e.Owner)
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.entries {
		l.write(e)
	}
}

func (l *Logger) write(e Entry) {
	_, err := l.db.Exec(
		`INSERT INTO audit_log (operation, owner, broker, mode, symbol, exchange, status, order_id, message, payload, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Operation, e.Owner, e.Broker, e.Mode, e.Symbol, e.Exchange,
		e.Status, e.OrderID, e.Message, string(e.Payload),
		e.RecordedAt.Format(time.RFC3339),
	)
	if err != nil {
		log.Printf("[audit] write error: %v", err)
	}
}

// Record is one row from the audit log.
type Record struct {
	ID         int64  `json:"id"`
	Operation  string `json:"operation"`
	Owner      string `json:"owner"`
	Broker     string `json:"broker"`
	Mode       string `json:"mode"`
	Symbol     string `json:"symbol"`
	Exchange   string `json:"exchange"`
	Status     string `json:"status"`
	OrderID    string `json:"order_id"`
	Message    string `json:"message"`
	RecordedAt string `json:"recorded_at"`
}

// DB exposes the underlying handle. The health probe pings it.
func (l *Logger) DB() *sql.DB { return l.db }

// Recent returns the last N audit rows, newest first.
func (l *Logger) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, operation, owner, broker, mode, symbol, exchange, status, order_id, message, recorded_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Operation, &r.Owner, &r.Broker, &r.Mode,
			&r.Symbol, &r.Exchange, &r.Status, &r.OrderID, &r.Message, &r.RecordedAt); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Close drains buffered entries, stops the writer, and closes the
// database.
func (l *Logger) Close() error {
	l.once.Do(func() { close(l.entries) })
	<-l.done
	return l.db.Close()
}
