package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
)

var (
	queryText         string
	queryCollections  []string
	queryTopK         int
	queryMinRelevance float64
	queryMerge        string
	queryFusion       string
	queryFilters      []string
	queryJSON         bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query collections with hybrid retrieval",
	Long: `Query one or more collections. Each collection is searched with weighted
rank fusion of vector and BM25 results, then the lists are merged.

Examples:
  rag query -q "notice period"
  rag query -q "§ 573" -c law -c faq --merge best -k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "query text (required)")
	queryCmd.Flags().StringSliceVarP(&queryCollections, "collection", "c", nil, "collection to query (default all)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().Float64Var(&queryMinRelevance, "min-relevance", -1, "drop results below this relevance (default from config)")
	queryCmd.Flags().StringVar(&queryMerge, "merge", "", "merge strategy: interleave or best")
	queryCmd.Flags().StringVar(&queryFusion, "fusion", "", "fusion strategy: rrf or blend")
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "metadata filter key=value (repeatable)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	filters, err := parseFilters(queryFilters)
	if err != nil {
		return err
	}

	rt, release, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer release()

	qc := rt.QueryConfig()
	qc.Filters = filters
	if queryTopK > 0 {
		qc.ResultCount = queryTopK
	}
	if queryMinRelevance >= 0 {
		qc.MinRelevance = queryMinRelevance
	}
	if queryMerge != "" {
		qc.MergeStrategy = domain.MergeStrategy(queryMerge)
	}
	if queryFusion != "" {
		qc.Fusion = domain.FusionStrategy(queryFusion)
	}

	results, err := rt.Engine.Query(cmd.Context(), queryText, queryCollections, qc)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	printResults(queryText, results)
	return nil
}

func printResults(query string, results []domain.QueryResult) {
	if len(results) == 0 {
		fmt.Println("No results found.")
		return
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), query)
	for i, r := range results {
		source, _ := r.Metadata["source"].(string)
		fmt.Printf("--- [%d] %s %s (score: %.3f, %s) ---\n", i+1, r.CollectionName, source, r.RelevanceScore, r.SourceType)
		fmt.Println(truncate(r.Content, 500))
		fmt.Println()
	}
}
