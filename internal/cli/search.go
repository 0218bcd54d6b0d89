package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchText        string
	searchCollections []string
	searchTopK        int
	searchFilters     []string
	searchJSON        bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search collections with score blending",
	Long: `Search collections by min-max normalizing vector and BM25 scores and
averaging them. Results are not cached.

Examples:
  rag search -q "rental contract" -c law
  rag search -q "deposit" -c law -c faq -k 10 --filter source=bgb.md`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "query text (required)")
	searchCmd.Flags().StringSliceVarP(&searchCollections, "collection", "c", nil, "collection to search (required)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "metadata filter key=value (repeatable)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("query")
	searchCmd.MarkFlagRequired("collection")
}

func runSearch(cmd *cobra.Command, args []string) error {
	filters, err := parseFilters(searchFilters)
	if err != nil {
		return err
	}

	rt, release, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer release()

	k := rt.Config.Retrieval.ResultCount
	if searchTopK > 0 {
		k = searchTopK
	}

	resp, err := rt.Search.Search(cmd.Context(), searchText, searchCollections, k, filters)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	printResults(searchText, resp.Documents)
	fmt.Printf("(%d candidates considered)\n", resp.TotalCandidates)
	return nil
}
