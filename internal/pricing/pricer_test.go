package pricing

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/twei55/otcbot/internal/marketdata"
)

func f64(v float64) *float64 { return &v }

// stubProvider serves canned quotes and records per-instrument call
// counts. Instruments without a canned quote come back markless, the
// same degraded shape the real client produces.
type stubProvider struct {
	mu     sync.Mutex
	quotes map[string]marketdata.Quote
	calls  map[string]int

	delay         time.Duration
	inFlight      int
	maxInFlight   int
	trackInFlight bool
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		quotes: map[string]marketdata.Quote{},
		calls:  map[string]int{},
	}
}

func (s *stubProvider) add(instrument string, mark float64, index *float64) {
	s.quotes[instrument] = marketdata.Quote{
		Instrument: instrument,
		MarkPrice:  f64(mark),
		IndexPrice: index,
	}
}

func (s *stubProvider) Ticker(_ context.Context, instrument string) marketdata.Quote {
	s.mu.Lock()
	s.calls[instrument]++
	if s.trackInFlight {
		s.inFlight++
		if s.inFlight > s.maxInFlight {
			s.maxInFlight = s.inFlight
		}
	}
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	if s.trackInFlight {
		s.inFlight--
	}
	q, ok := s.quotes[instrument]
	s.mu.Unlock()
	if !ok {
		return marketdata.Quote{Instrument: instrument}
	}
	return q
}

func TestPrice_MultiLegReport(t *testing.T) {
	stub := newStubProvider()
	stub.add("BTC-26SEP25-95000-P", 0.0512, f64(104000.52))
	stub.add("BTC-26SEP25-130000-C", 0.0288, f64(104000.52))
	pricer := NewPricer(stub, testLogger())

	report, err := pricer.Price(context.Background(), []string{
		"+1 BTC-26SEP25-95000-P",
		"-2 BTC-26SEP25-130000-C",
	})
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}

	want := strings.Join([]string{
		"Combo Mark Price per unit\n",
		" BUY  1x BTC-26SEP25-95000-P   : 0.0512",
		" SELL 2x BTC-26SEP25-130000-C  : 0.0288",
		"\n----------------------------------------",
		"  Net Combo Mark: -0.0064 BTC\n  Index Ref: $104,001",
	}, "\n")
	if report != want {
		t.Errorf("report mismatch\ngot:\n%s\nwant:\n%s", report, want)
	}
}

func TestPrice_SingleSellLeg(t *testing.T) {
	stub := newStubProvider()
	stub.add("ETH-27JUN25-4000-C", 0.105, nil)
	pricer := NewPricer(stub, testLogger())

	report, err := pricer.Price(context.Background(), []string{"-3 ETH-27JUN25-4000-C"})
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if !strings.Contains(report, " SELL 3x ETH-27JUN25-4000-C    : 0.1050") {
		t.Errorf("missing sell line in:\n%s", report)
	}
	// 3 * 0.105, negated for the short side.
	if !strings.Contains(report, "  Net Combo Mark: -0.3150 ETH") {
		t.Errorf("missing net line in:\n%s", report)
	}
	// First leg carried no index price.
	if !strings.Contains(report, "  Index Ref: $N/A") {
		t.Errorf("missing N/A index in:\n%s", report)
	}
}

func TestPrice_PartialFailure(t *testing.T) {
	stub := newStubProvider()
	stub.add("BTC-26SEP25-95000-P", 0.0512, f64(104000.52))
	// BTC-26SEP25-130000-C intentionally absent: its fetch fails.
	pricer := NewPricer(stub, testLogger())

	report, err := pricer.Price(context.Background(), []string{
		"+1 BTC-26SEP25-95000-P",
		"-2 BTC-26SEP25-130000-C",
	})
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if !strings.Contains(report, " BUY  1x BTC-26SEP25-95000-P   : 0.0512") {
		t.Errorf("healthy leg missing from report:\n%s", report)
	}
	if !strings.Contains(report, " SELL 2x BTC-26SEP25-130000-C  : ERROR (Price not found)") {
		t.Errorf("failed leg line missing from report:\n%s", report)
	}
	if !strings.Contains(report, "  Net Combo Mark: N/A (Could not fetch price for all legs)") {
		t.Errorf("expected N/A net in report:\n%s", report)
	}
	if strings.Contains(report, "Index Ref") {
		t.Errorf("index line must not appear on partial failure:\n%s", report)
	}
}

func TestPrice_AllLegsFail(t *testing.T) {
	stub := newStubProvider()
	pricer := NewPricer(stub, testLogger())

	report, err := pricer.Price(context.Background(), []string{"+1 BTC-26SEP25-95000-P"})
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if !strings.Contains(report, "ERROR (Price not found)") {
		t.Errorf("expected error line in:\n%s", report)
	}
	if !strings.Contains(report, "  Net Combo Mark: N/A (Could not fetch price for all legs)") {
		t.Errorf("expected N/A net in:\n%s", report)
	}
}

func TestPrice_IndexComesFromFirstLegOnly(t *testing.T) {
	stub := newStubProvider()
	// Only the second leg's result carries an index price.
	stub.add("BTC-26SEP25-95000-P", 0.0512, nil)
	stub.add("BTC-26SEP25-130000-C", 0.0288, f64(104000.52))
	pricer := NewPricer(stub, testLogger())

	report, err := pricer.Price(context.Background(), []string{
		"+1 BTC-26SEP25-95000-P",
		"-1 BTC-26SEP25-130000-C",
	})
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if !strings.Contains(report, "  Index Ref: $N/A") {
		t.Errorf("index must only come from the first leg, got:\n%s", report)
	}
}

func TestPrice_DuplicateLegsFetchedIndependently(t *testing.T) {
	stub := newStubProvider()
	stub.add("BTC-26SEP25-95000-P", 0.0512, nil)
	pricer := NewPricer(stub, testLogger())

	report, err := pricer.Price(context.Background(), []string{
		"+1 BTC-26SEP25-95000-P",
		"+2 BTC-26SEP25-95000-P",
	})
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if got := stub.calls["BTC-26SEP25-95000-P"]; got != 2 {
		t.Errorf("fetches for duplicate instrument = %d, want 2", got)
	}
	// Both legs price off the shared instrument: +1*0.0512 +2*0.0512.
	if !strings.Contains(report, "  Net Combo Mark: 0.1536 BTC") {
		t.Errorf("unexpected net in:\n%s", report)
	}
}

func TestPrice_LegsFetchedConcurrently(t *testing.T) {
	stub := newStubProvider()
	stub.trackInFlight = true
	stub.delay = 30 * time.Millisecond
	stub.add("BTC-26SEP25-90000-P", 0.01, nil)
	stub.add("BTC-26SEP25-95000-P", 0.02, nil)
	stub.add("BTC-26SEP25-100000-C", 0.03, nil)
	stub.add("BTC-26SEP25-105000-C", 0.04, nil)
	pricer := NewPricer(stub, testLogger())

	_, err := pricer.Price(context.Background(), []string{
		"+1 BTC-26SEP25-90000-P",
		"+1 BTC-26SEP25-95000-P",
		"-1 BTC-26SEP25-100000-C",
		"-1 BTC-26SEP25-105000-C",
	})
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if stub.maxInFlight < 2 {
		t.Errorf("maxInFlight = %d, want at least 2 overlapping fetches", stub.maxInFlight)
	}
}

func TestPrice_ValidationFailuresSkipFetching(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []string
		wantErr string
	}{
		{
			name:    "invalid leg",
			inputs:  []string{"+1 BTC-26SEP25-95000-P", "nope"},
			wantErr: "Error: Invalid leg format: 'nope'",
		},
		{
			name:    "empty input",
			inputs:  []string{},
			wantErr: "Error: No valid strategy legs provided.",
		},
		{
			name:    "mixed currencies",
			inputs:  []string{"+1 BTC-26SEP25-95000-P", "-1 ETH-27JUN25-4000-C"},
			wantErr: "Error: All legs must have the same underlying currency. Found 'BTC' and 'ETH'.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubProvider()
			pricer := NewPricer(stub, testLogger())

			_, err := pricer.Price(context.Background(), tt.inputs)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantErr)
			}
			if len(stub.calls) != 0 {
				t.Errorf("no quotes should be fetched on validation failure, got %v", stub.calls)
			}
		})
	}
}

func TestPrice_GroupedIndexReference(t *testing.T) {
	stub := newStubProvider()
	stub.add("BTC-26SEP25-95000-P", 0.0512, f64(1234567.4))
	pricer := NewPricer(stub, testLogger())

	report, err := pricer.Price(context.Background(), []string{"+1 BTC-26SEP25-95000-P"})
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if !strings.Contains(report, "  Index Ref: $1,234,567") {
		t.Errorf("expected grouped index reference in:\n%s", report)
	}
}
