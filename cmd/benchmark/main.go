package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/config"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/bootstrap"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/logging"
)

func main() {
	indexPath := flag.String("index", ".", "Path to the directory holding .rag/")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	collections := flag.String("c", "", "Comma-separated collections (default all)")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -index ./kb -q \"query\"")
		fmt.Println("\nCompares, for one query:")
		fmt.Println("  1. Rank fusion (rrf) against score blending (blend)")
		fmt.Println("  2. Latency of each strategy, cold and cached")
		fmt.Println("  3. Overlap between the two result lists")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup("warn", cfg.Logging.Format)

	ctx := context.Background()
	rt, err := bootstrap.New(ctx, cfg, *indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening runtime: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	var targets []string
	if *collections != "" {
		targets = strings.Split(*collections, ",")
	}

	fmt.Println("HYBRID RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Model: %s (%s)\n", rt.Embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", rt.Embedder.Dimension())
	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println()

	lists := make(map[domain.FusionStrategy][]domain.QueryResult)
	for _, fusion := range []domain.FusionStrategy{domain.FusionRRF, domain.FusionBlend} {
		qc := rt.QueryConfig()
		qc.ResultCount = *topK
		qc.MergeStrategy = domain.MergeBest
		qc.Fusion = fusion

		start := time.Now()
		results, err := rt.Engine.Query(ctx, *query, targets, qc)
		cold := time.Since(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query error: %v\n", err)
			os.Exit(1)
		}

		start = time.Now()
		_, _ = rt.Engine.Query(ctx, *query, targets, qc)
		warm := time.Since(start)

		lists[fusion] = results
		printStrategy(fusion, results, cold, warm)
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("OVERLAP: %d of top %d shared between rrf and blend\n",
		overlap(lists[domain.FusionRRF], lists[domain.FusionBlend]), *topK)
}

func printStrategy(fusion domain.FusionStrategy, results []domain.QueryResult, cold, warm time.Duration) {
	fmt.Printf("[%s] %d results, cold %s, cached %s\n", fusion, len(results), cold.Round(time.Microsecond), warm.Round(time.Microsecond))
	fmt.Println(strings.Repeat("-", 70))

	for i, r := range results {
		preview := r.Content
		if len(preview) > 150 {
			preview = preview[:150] + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")

		rating := "LOW"
		if r.RelevanceScore > 0.7 {
			rating = "HIGH"
		} else if r.RelevanceScore > 0.5 {
			rating = "GOOD"
		} else if r.RelevanceScore > 0.3 {
			rating = "OK"
		}

		source, _ := r.Metadata["source"].(string)
		fmt.Printf("%d. [%s %.3f %s] %s %s (vec %.3f, bm25 %.3f)\n", i+1, rating, r.RelevanceScore, r.SourceType,
			r.CollectionName, shortPath(source), r.VectorScore, r.LexicalScore)
		fmt.Printf("   %s\n\n", preview)
	}
}

func overlap(a, b []domain.QueryResult) int {
	seen := make(map[string]struct{}, len(a))
	for _, r := range a {
		seen[r.CollectionName+"\x00"+r.Content] = struct{}{}
	}
	n := 0
	for _, r := range b {
		if _, ok := seen[r.CollectionName+"\x00"+r.Content]; ok {
			n++
		}
	}
	return n
}

func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		return parts[len(parts)-1]
	}
	return path
}
