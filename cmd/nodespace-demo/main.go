// Command nodespace-demo exercises the core service end to end against an
// in-memory store and mock model providers. It requires no external
// services and is meant for local exploration of the hierarchy and
// retrieval operations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nodespace/corelogic/internal/config"
	"github.com/nodespace/corelogic/internal/core"
	"github.com/nodespace/corelogic/internal/hierarchy"
	embedmock "github.com/nodespace/corelogic/pkg/embedmodel/mock"
	genmock "github.com/nodespace/corelogic/pkg/genmodel/mock"
	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store/memstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	ctx := context.Background()

	cfg := &config.Config{
		RAG: config.RAGConfig{
			DefaultK:       5,
			PromptPreamble: "Answer using only the notes provided below.",
		},
	}
	providers := &core.Providers{
		Embeddings: &embedmock.Provider{EmbedResult: []float32{1, 0, 0}, DimensionsValue: 3, ModelIDValue: "demo"},
		Generate:   &genmock.Provider{GenerateResult: "Paris is the capital of France."},
	}

	svc := core.New(cfg, providers, core.WithStore(memstore.New()))
	if err := svc.Initialize(ctx); err != nil {
		slog.Error("initialize", "err", err)
		return 1
	}
	defer svc.Shutdown(ctx)

	date := "2026-08-01"
	root, err := svc.UpsertNode(ctx, hierarchy.UpsertParams{
		ID:      "note-1",
		Date:    date,
		Content: "France is a country in Europe whose capital is Paris.",
		Kind:    node.KindText,
	})
	if err != nil {
		slog.Error("upsert root note", "err", err)
		return 1
	}
	fmt.Printf("created node %s under %s\n", root.ID, date)

	child, err := svc.UpsertNode(ctx, hierarchy.UpsertParams{
		ID:       node.NewID(),
		Date:     date,
		Content:  "Paris sits on the river Seine.",
		Kind:     node.KindText,
		ParentID: root.ID,
	})
	if err != nil {
		slog.Error("upsert child note", "err", err)
		return 1
	}
	fmt.Printf("created child node %s under %s\n", child.ID, root.ID)

	nodes, err := svc.GetNodesForDate(ctx, date)
	if err != nil {
		slog.Error("get nodes for date", "err", err)
		return 1
	}
	fmt.Printf("date %s has %d nodes\n", date, len(nodes))

	results, err := svc.SemanticSearch(ctx, "What is the capital of France?", 0)
	if err != nil {
		slog.Error("semantic search", "err", err)
		return 1
	}
	fmt.Printf("semantic search returned %d results\n", len(results))

	answer, err := svc.ProcessQuery(ctx, "What is the capital of France?")
	if err != nil {
		slog.Error("process query", "err", err)
		return 1
	}
	fmt.Printf("answer: %s\n", answer.Text)

	return 0
}
