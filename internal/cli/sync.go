package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncAll bool

var syncCmd = &cobra.Command{
	Use:   "sync [collection...]",
	Short: "Rebuild lexical indexes from the vector store",
	Long: `Rebuild the BM25 index of each collection from the documents held by the
vector store. Run it after writing to the vector store outside of "rag ingest".

Examples:
  rag sync law
  rag sync --all`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "sync every collection")
}

func runSync(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !syncAll {
		return fmt.Errorf("name a collection or pass --all")
	}

	rt, release, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer release()

	if syncAll {
		counts, err := rt.Sync.SyncAll(cmd.Context())
		if err != nil {
			return err
		}
		for name, n := range counts {
			fmt.Printf("  %-24s %d documents\n", name, n)
		}
		return nil
	}

	for _, name := range args {
		n, err := rt.Sync.SyncLexicalIndex(cmd.Context(), name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-24s %d documents\n", name, n)
	}
	return nil
}
