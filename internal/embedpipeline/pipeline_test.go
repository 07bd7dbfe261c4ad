package embedpipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nodespace/corelogic/pkg/embedmodel/mock"
	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store/memstore"
)

func seedDate(t *testing.T, s *memstore.Store, date string) {
	t.Helper()
	if err := s.Upsert(context.Background(), node.Node{
		ID: date, Kind: node.KindDate, RootID: date,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed date: %v", err)
	}
}

func TestUpsertEmbedsContextualText(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedDate(t, s, "2026-01-01")

	if err := s.Upsert(ctx, node.Node{
		ID: "parent", Kind: node.KindText, Content: "Groceries",
		ParentID: "2026-01-01", RootID: "2026-01-01",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed parent: %v", err)
	}

	embed := &mock.Provider{EmbedResult: []float32{0.1, 0.2}}
	p := New(s, embed)

	n := node.Node{
		ID: "child", Kind: node.KindText, Content: "Milk",
		ParentID: "parent", RootID: "2026-01-01",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	out, err := p.Upsert(ctx, n)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(out.Embedding) != 2 {
		t.Fatalf("Embedding = %v, want length 2", out.Embedding)
	}
	if len(embed.EmbedCalls) != 1 {
		t.Fatalf("EmbedCalls = %d, want 1", len(embed.EmbedCalls))
	}
	want := "Groceries\nMilk"
	if got := embed.EmbedCalls[0].Text; got != want {
		t.Errorf("embedded text = %q, want %q", got, want)
	}
}

func TestUpsertAIChatEmbedsOnlyOwnContent(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedDate(t, s, "2026-01-01")
	if err := s.Upsert(ctx, node.Node{
		ID: "parent", Kind: node.KindText, Content: "Research",
		ParentID: "2026-01-01", RootID: "2026-01-01",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed parent: %v", err)
	}

	embed := &mock.Provider{EmbedResult: []float32{0.3}}
	p := New(s, embed)

	n := node.Node{
		ID: "chat1", Kind: node.KindAIChat, Content: "What is the capital of France?",
		ParentID: "parent", RootID: "2026-01-01",
		Metadata:  node.Metadata{"transcript": "a very long back and forth"},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if _, err := p.Upsert(ctx, n); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got := embed.EmbedCalls[0].Text; got != n.Content {
		t.Errorf("embedded text = %q, want only node content %q", got, n.Content)
	}
}

func TestUpsertSwallowsEmbedFailure(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedDate(t, s, "2026-01-01")

	embed := &mock.Provider{EmbedErr: errors.New("provider down")}
	p := New(s, embed)

	n := node.Node{
		ID: "n1", Kind: node.KindText, Content: "hello",
		ParentID: "2026-01-01", RootID: "2026-01-01",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	out, err := p.Upsert(ctx, n)
	if err != nil {
		t.Fatalf("Upsert should not fail on embed error, got %v", err)
	}
	if out.Embedding != nil {
		t.Errorf("Embedding = %v, want nil", out.Embedding)
	}
	stored, err := s.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Embedding != nil {
		t.Errorf("stored Embedding = %v, want nil", stored.Embedding)
	}
}

func TestAncestryPrefixSkipsEmptyDateHeader(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedDate(t, s, "2026-01-01")

	embed := &mock.Provider{EmbedResult: []float32{1}}
	p := New(s, embed)

	n := node.Node{
		ID: "top", Kind: node.KindText, Content: "Top level note",
		ParentID: "2026-01-01", RootID: "2026-01-01",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if _, err := p.Upsert(ctx, n); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got := embed.EmbedCalls[0].Text; got != "Top level note" {
		t.Errorf("embedded text = %q, want %q (date header skipped)", got, "Top level note")
	}
}

func TestReembedRecomputesVector(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedDate(t, s, "2026-01-01")

	embed := &mock.Provider{EmbedResult: []float32{9}}
	p := New(s, embed)

	n := node.Node{
		ID: "n1", Kind: node.KindText, Content: "hi",
		ParentID: "2026-01-01", RootID: "2026-01-01",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.Upsert(ctx, n); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, err := p.Reembed(ctx, "n1")
	if err != nil {
		t.Fatalf("Reembed: %v", err)
	}
	if len(out.Embedding) != 1 {
		t.Fatalf("Embedding = %v, want length 1", out.Embedding)
	}
}

func TestReembedStaleOnlyTargetsMissingEmbeddings(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedDate(t, s, "2026-01-01")

	embed := &mock.Provider{EmbedResult: []float32{1}}
	p := New(s, embed)

	withEmbedding := node.Node{
		ID: "has-embedding", Kind: node.KindText, Content: "a",
		ParentID: "2026-01-01", RootID: "2026-01-01", Embedding: []float32{5},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	missing := node.Node{
		ID: "missing", Kind: node.KindText, Content: "b",
		ParentID: "2026-01-01", RootID: "2026-01-01",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.Upsert(ctx, withEmbedding); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.Upsert(ctx, missing); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ids, err := p.ReembedStale(ctx, "2026-01-01")
	if err != nil {
		t.Fatalf("ReembedStale: %v", err)
	}
	if len(ids) != 1 || ids[0] != "missing" {
		t.Errorf("ReembedStale ids = %v, want [missing]", ids)
	}
}
