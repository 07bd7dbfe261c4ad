package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/nodespace/corelogic/pkg/genmodel"
	genmock "github.com/nodespace/corelogic/pkg/genmodel/mock"
)

func TestGenerateFallback_Generate_PrimarySuccess(t *testing.T) {
	primary := &genmock.Provider{GenerateResult: "hello from primary"}
	secondary := &genmock.Provider{GenerateResult: "hello from secondary"}

	fb := NewGenerateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text, _, err := fb.Generate(context.Background(), "hi", genmodel.GenParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello from primary" {
		t.Fatalf("text = %q, want 'hello from primary'", text)
	}
	if len(secondary.GenerateCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.GenerateCalls))
	}
}

func TestGenerateFallback_Generate_Failover(t *testing.T) {
	primary := &genmock.Provider{GenerateErr: errors.New("primary down")}
	secondary := &genmock.Provider{GenerateResult: "hello from secondary"}

	fb := NewGenerateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text, _, err := fb.Generate(context.Background(), "hi", genmodel.GenParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello from secondary" {
		t.Fatalf("text = %q, want 'hello from secondary'", text)
	}
}

func TestGenerateFallback_Generate_AllFail(t *testing.T) {
	primary := &genmock.Provider{GenerateErr: errors.New("primary down")}
	secondary := &genmock.Provider{GenerateErr: errors.New("secondary down")}

	fb := NewGenerateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, _, err := fb.Generate(context.Background(), "hi", genmodel.GenParams{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestGenerateFallback_CountTokens(t *testing.T) {
	primary := &genmock.Provider{CountTokensErr: errors.New("count failed")}
	secondary := &genmock.Provider{TokenCount: 42}

	fb := NewGenerateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	count, err := fb.CountTokens("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Fatalf("count = %d, want 42", count)
	}
}
