package options

import (
	"context"
	"errors"
	"testing"

	"github.com/marketcalls/openalgo-sub001/internal/model"
	"github.com/marketcalls/openalgo-sub001/internal/refdata"
)

// fakeSource serves a fixed NIFTY chain. It refuses a second LTP fetch
// so tests can prove the price is fetched once per batch.
type fakeSource struct {
	ltp      float64
	ltpCalls int
	strikes  []float64
	expiries []string
}

func (f *fakeSource) LTP(context.Context, string, string) (float64, error) {
	f.ltpCalls++
	if f.ltpCalls > 1 {
		return 0, errors.New("ltp fetched more than once in a batch")
	}
	return f.ltp, nil
}

func (f *fakeSource) Expiries(context.Context, string, string) ([]string, error) {
	if len(f.expiries) == 0 {
		return nil, refdata.ErrNoExpiry
	}
	return f.expiries, nil
}

func (f *fakeSource) Strikes(context.Context, string, string, string) ([]float64, error) {
	if len(f.strikes) == 0 {
		return nil, refdata.ErrNoStrikes
	}
	return f.strikes, nil
}

func (f *fakeSource) LotSize(context.Context, string, string) (int64, error) {
	return 75, nil
}

func niftyChain(ltp float64) *fakeSource {
	var strikes []float64
	for k := 24000.0; k <= 25000; k += 50 {
		strikes = append(strikes, k)
	}
	return &fakeSource{ltp: ltp, strikes: strikes, expiries: []string{"28MAR24", "04APR24"}}
}

func leg(offset, optType string) model.Leg {
	return model.Leg{
		Offset: offset, OptionType: optType, Action: "BUY",
		Quantity: 75, PriceType: "MARKET", Product: "NRML",
	}
}

func batch(legs ...model.Leg) model.MultiLegOrder {
	return model.MultiLegOrder{
		Underlying: "NIFTY", Exchange: "NFO", Expiry: "28MAR24", Legs: legs,
	}
}

func TestResolveBatch_ATM(t *testing.T) {
	src := niftyChain(24537)
	r := NewResolver(src)

	got, ltp, err := r.ResolveBatch(context.Background(), batch(leg("ATM", model.OptionCall)))
	if err != nil {
		t.Fatalf("ResolveBatch error = %v", err)
	}
	if ltp != 24537 {
		t.Errorf("ltp = %v, want 24537", ltp)
	}
	// 24537 sits between 24500 and 24550; 24550 is nearer by 13 vs 37.
	if got[0].Strike != 24550 {
		t.Errorf("ATM strike = %v, want 24550", got[0].Strike)
	}
	if got[0].Symbol != "NIFTY28MAR2424550CE" {
		t.Errorf("symbol = %q, want NIFTY28MAR2424550CE", got[0].Symbol)
	}
}

func TestResolveBatch_ITMOTMDirections(t *testing.T) {
	tests := []struct {
		name    string
		offset  string
		optType string
		want    float64
	}{
		{"call ITM2 two strikes below ATM", "ITM2", model.OptionCall, 24450},
		{"call OTM1 one strike above ATM", "OTM1", model.OptionCall, 24600},
		{"put ITM2 two strikes above ATM", "ITM2", model.OptionPut, 24650},
		{"put OTM3 three strikes below ATM", "OTM3", model.OptionPut, 24400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(niftyChain(24537))
			got, _, err := r.ResolveBatch(context.Background(), batch(leg(tt.offset, tt.optType)))
			if err != nil {
				t.Fatalf("ResolveBatch error = %v", err)
			}
			if got[0].Strike != tt.want {
				t.Errorf("strike = %v, want %v", got[0].Strike, tt.want)
			}
		})
	}
}

func TestResolveBatch_FetchesLTPOnce(t *testing.T) {
	src := niftyChain(24537)
	r := NewResolver(src)

	// Four legs share one underlying price fetch. The fake errors on a
	// second call, so success proves reuse.
	m := batch(
		leg("ATM", model.OptionCall),
		leg("ATM", model.OptionPut),
		leg("OTM2", model.OptionCall),
		leg("OTM2", model.OptionPut),
	)
	got, _, err := r.ResolveBatch(context.Background(), m)
	if err != nil {
		t.Fatalf("ResolveBatch error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len(resolved) = %d, want 4", len(got))
	}
	if src.ltpCalls != 1 {
		t.Errorf("ltp fetched %d times, want 1", src.ltpCalls)
	}
}

func TestResolveBatch_NearestExpiryWhenUnset(t *testing.T) {
	r := NewResolver(niftyChain(24537))
	m := batch(leg("ATM", model.OptionCall))
	m.Expiry = ""

	got, _, err := r.ResolveBatch(context.Background(), m)
	if err != nil {
		t.Fatalf("ResolveBatch error = %v", err)
	}
	if got[0].Symbol != "NIFTY28MAR2424550CE" {
		t.Errorf("symbol = %q, want nearest expiry 28MAR24 used", got[0].Symbol)
	}
}

func TestResolveBatch_ExpiryEmbeddedInUnderlying(t *testing.T) {
	r := NewResolver(niftyChain(24537))
	m := batch(leg("ATM", model.OptionCall))
	m.Underlying = "NIFTY04APR24"
	m.Expiry = ""

	got, _, err := r.ResolveBatch(context.Background(), m)
	if err != nil {
		t.Fatalf("ResolveBatch error = %v", err)
	}
	if got[0].Symbol != "NIFTY04APR2424550CE" {
		t.Errorf("symbol = %q, want embedded expiry 04APR24 honored", got[0].Symbol)
	}
}

func TestResolveBatch_OffsetBeyondChain(t *testing.T) {
	src := niftyChain(24537)
	src.strikes = []float64{24500, 24550, 24600}
	r := NewResolver(src)

	_, _, err := r.ResolveBatch(context.Background(), batch(leg("ITM5", model.OptionCall)))
	if !errors.Is(err, refdata.ErrNoStrikes) {
		t.Fatalf("error = %v, want ErrNoStrikes: resolver must never guess a strike", err)
	}
}

// sloppySource returns empty slices with a nil error, which the Source
// docs do not forbid. The resolver must not index into them.
type sloppySource struct {
	fakeSource
	emptyExpiries bool
	emptyStrikes  bool
}

func (s *sloppySource) Expiries(ctx context.Context, u, ex string) ([]string, error) {
	if s.emptyExpiries {
		return []string{}, nil
	}
	return s.fakeSource.Expiries(ctx, u, ex)
}

func (s *sloppySource) Strikes(ctx context.Context, u, ex, exp string) ([]float64, error) {
	if s.emptyStrikes {
		return []float64{}, nil
	}
	return s.fakeSource.Strikes(ctx, u, ex, exp)
}

func TestResolveBatch_EmptyExpiryListWithoutError(t *testing.T) {
	src := &sloppySource{fakeSource: *niftyChain(24537), emptyExpiries: true}
	r := NewResolver(src)
	m := batch(leg("ATM", model.OptionCall))
	m.Expiry = ""

	_, _, err := r.ResolveBatch(context.Background(), m)
	if !errors.Is(err, refdata.ErrNoExpiry) {
		t.Fatalf("error = %v, want ErrNoExpiry", err)
	}
}

func TestResolveBatch_EmptyStrikeListWithoutError(t *testing.T) {
	src := &sloppySource{fakeSource: *niftyChain(24537), emptyStrikes: true}
	r := NewResolver(src)

	_, _, err := r.ResolveBatch(context.Background(), batch(leg("ATM", model.OptionCall)))
	if !errors.Is(err, refdata.ErrNoStrikes) {
		t.Fatalf("error = %v, want ErrNoStrikes", err)
	}
}

func TestResolveBatch_BadOffsetRejected(t *testing.T) {
	r := NewResolver(niftyChain(24537))
	_, _, err := r.ResolveBatch(context.Background(), batch(leg("ATM99", model.OptionCall)))
	if err == nil {
		t.Fatal("malformed offset accepted")
	}
}
