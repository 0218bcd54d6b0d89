package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections with document and lexical index counts",
	RunE:  runCollections,
}

func init() {
	rootCmd.AddCommand(collectionsCmd)
}

func runCollections(cmd *cobra.Command, args []string) error {
	rt, release, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer release()

	ctx := cmd.Context()
	names, err := rt.Vectors.ListCollections(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No collections. Run 'rag ingest' first.")
		return nil
	}

	fmt.Printf("%-24s %10s %10s\n", "COLLECTION", "DOCUMENTS", "LEXICAL")
	for _, name := range names {
		handle, err := rt.Vectors.GetCollection(ctx, name)
		if err != nil {
			return err
		}
		lexical := rt.Lexicon.Get(ctx, name).Len()
		fmt.Printf("%-24s %10d %10d\n", name, handle.Count, lexical)
	}
	return nil
}
