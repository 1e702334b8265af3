package refdata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestSource(t *testing.T) *SQLiteSource {
	t.Helper()
	s, err := NewSQLiteSource(filepath.Join(t.TempDir(), "symbols.db"))
	if err != nil {
		t.Fatalf("NewSQLiteSource: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSource_QuoteRoundTrip(t *testing.T) {
	s := newTestSource(t)
	ctx := context.Background()

	if err := s.UpsertQuote(ctx, "NIFTY", "NSE_INDEX", 24537.0); err != nil {
		t.Fatalf("UpsertQuote: %v", err)
	}
	ltp, err := s.LTP(ctx, "NIFTY", "NSE_INDEX")
	if err != nil {
		t.Fatalf("LTP: %v", err)
	}
	if ltp != 24537.0 {
		t.Errorf("ltp = %f, want 24537", ltp)
	}

	// Upsert replaces, not duplicates.
	if err := s.UpsertQuote(ctx, "NIFTY", "NSE_INDEX", 24601.5); err != nil {
		t.Fatalf("UpsertQuote update: %v", err)
	}
	ltp, err = s.LTP(ctx, "NIFTY", "NSE_INDEX")
	if err != nil {
		t.Fatalf("LTP after update: %v", err)
	}
	if ltp != 24601.5 {
		t.Errorf("ltp = %f, want 24601.5", ltp)
	}
}

func TestSQLiteSource_MissingQuote(t *testing.T) {
	s := newTestSource(t)
	_, err := s.LTP(context.Background(), "GHOST", "NSE")
	if !errors.Is(err, ErrNoLTP) {
		t.Errorf("expected ErrNoLTP, got %v", err)
	}
}

func TestSQLiteSource_StrikesSortedAscending(t *testing.T) {
	s := newTestSource(t)
	ctx := context.Background()

	for _, strike := range []float64{24600, 24500, 24550} {
		for _, ot := range []string{"CE", "PE"} {
			if err := s.UpsertContract(ctx, "NIFTY", "NFO", "28MAR24", strike, ot, 50, 0); err != nil {
				t.Fatalf("UpsertContract: %v", err)
			}
		}
	}

	strikes, err := s.Strikes(ctx, "NIFTY", "NFO", "28MAR24")
	if err != nil {
		t.Fatalf("Strikes: %v", err)
	}
	want := []float64{24500, 24550, 24600}
	if len(strikes) != len(want) {
		t.Fatalf("got %d strikes, want %d (CE/PE rows must dedupe)", len(strikes), len(want))
	}
	for i := range want {
		if strikes[i] != want[i] {
			t.Errorf("strikes[%d] = %f, want %f", i, strikes[i], want[i])
		}
	}
}

func TestSQLiteSource_NoStrikesForUnknownExpiry(t *testing.T) {
	s := newTestSource(t)
	_, err := s.Strikes(context.Background(), "NIFTY", "NFO", "01JAN99")
	if !errors.Is(err, ErrNoStrikes) {
		t.Errorf("expected ErrNoStrikes, got %v", err)
	}
}

func TestSQLiteSource_ExpiriesNearestFirst(t *testing.T) {
	s := newTestSource(t)
	ctx := context.Background()

	s.UpsertContract(ctx, "BANKNIFTY", "NFO", "25APR24", 48000, "CE", 15, 1)
	s.UpsertContract(ctx, "BANKNIFTY", "NFO", "28MAR24", 48000, "CE", 15, 0)

	expiries, err := s.Expiries(ctx, "BANKNIFTY", "NFO")
	if err != nil {
		t.Fatalf("Expiries: %v", err)
	}
	if len(expiries) != 2 || expiries[0] != "28MAR24" || expiries[1] != "25APR24" {
		t.Errorf("expiries = %v, want [28MAR24 25APR24]", expiries)
	}
}

func TestSQLiteSource_NoExpiries(t *testing.T) {
	s := newTestSource(t)
	_, err := s.Expiries(context.Background(), "GHOST", "NFO")
	if !errors.Is(err, ErrNoExpiry) {
		t.Errorf("expected ErrNoExpiry, got %v", err)
	}
}

func TestSQLiteSource_LotSizeDefaultsToOne(t *testing.T) {
	s := newTestSource(t)
	ctx := context.Background()

	lot, err := s.LotSize(ctx, "UNKNOWN", "NSE")
	if err != nil {
		t.Fatalf("LotSize: %v", err)
	}
	if lot != 1 {
		t.Errorf("lot = %d, want 1 for unknown symbol", lot)
	}

	s.UpsertContract(ctx, "NIFTY", "NFO", "28MAR24", 24550, "CE", 50, 0)
	lot, err = s.LotSize(ctx, "NIFTY", "NFO")
	if err != nil {
		t.Fatalf("LotSize: %v", err)
	}
	if lot != 50 {
		t.Errorf("lot = %d, want 50", lot)
	}
}
