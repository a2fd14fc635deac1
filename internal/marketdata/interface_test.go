package marketdata

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// stubProvider returns scripted quotes and counts calls.
type stubProvider struct {
	calls atomic.Int64
	fail  bool
}

func (s *stubProvider) Ticker(_ context.Context, instrument string) Quote {
	s.calls.Add(1)
	if s.fail {
		return Quote{Instrument: instrument}
	}
	mark := 0.25
	return Quote{Instrument: instrument, MarkPrice: &mark}
}

func TestCircuitBreakerProvider_PassThrough(t *testing.T) {
	stub := &stubProvider{}
	cb := NewCircuitBreakerProvider(stub, testLogger())

	q := cb.Ticker(context.Background(), "BTC-26SEP25-95000-P")
	if !q.HasMark() || *q.MarkPrice != 0.25 {
		t.Fatalf("Ticker() = %+v, want mark 0.25", q)
	}
	if stub.calls.Load() != 1 {
		t.Errorf("underlying calls = %d, want 1", stub.calls.Load())
	}
}

func TestCircuitBreakerProvider_OpensAfterFailures(t *testing.T) {
	stub := &stubProvider{fail: true}
	cb := NewCircuitBreakerProviderWithSettings(stub, testLogger(), CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	})

	for i := 0; i < 5; i++ {
		q := cb.Ticker(context.Background(), "BTC-26SEP25-95000-P")
		if q.HasMark() {
			t.Fatalf("call %d: expected degraded quote", i)
		}
		if q.Instrument != "BTC-26SEP25-95000-P" {
			t.Fatalf("call %d: instrument = %q, want preserved", i, q.Instrument)
		}
	}

	// After tripping, the breaker must refuse without touching the provider.
	if got := stub.calls.Load(); got >= 5 {
		t.Errorf("underlying calls = %d, want fewer than 5 once breaker opened", got)
	}
}

func TestCircuitBreakerProvider_SuccessesKeepBreakerClosed(t *testing.T) {
	stub := &stubProvider{}
	cb := NewCircuitBreakerProviderWithSettings(stub, testLogger(), CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	})

	for i := 0; i < 10; i++ {
		if q := cb.Ticker(context.Background(), "ETH-27JUN25-4000-C"); !q.HasMark() {
			t.Fatalf("call %d: expected mark price", i)
		}
	}
	if got := stub.calls.Load(); got != 10 {
		t.Errorf("underlying calls = %d, want 10", got)
	}
}
