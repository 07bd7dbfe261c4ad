package openai

import "testing"

func TestModelCapabilitiesGPT4o(t *testing.T) {
	caps := modelCapabilities("gpt-4o")
	if caps.ContextWindow != 128_000 || caps.MaxOutputTokens != 16_384 {
		t.Errorf("gpt-4o: got %+v", caps)
	}
}

func TestModelCapabilitiesGPT35Turbo(t *testing.T) {
	caps := modelCapabilities("gpt-3.5-turbo")
	if caps.ContextWindow != 16_385 {
		t.Errorf("gpt-3.5-turbo: got %+v", caps)
	}
}

func TestModelCapabilitiesUnknown(t *testing.T) {
	caps := modelCapabilities("some-future-model")
	if caps.ContextWindow != 128_000 || caps.MaxOutputTokens != 4_096 {
		t.Errorf("unknown model: got %+v, want default", caps)
	}
}

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	n, err := p.CountTokens("hello world")
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n <= 0 {
		t.Errorf("CountTokens() = %d, want positive", n)
	}
}

func TestNewMissingAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNewMissingModel(t *testing.T) {
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}
