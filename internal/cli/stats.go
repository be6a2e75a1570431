package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var statsDocuments bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsDocuments, "documents", false, "also list indexed documents")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	stats, err := a.Hub.Stats(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Documents: %d\n", stats.TotalDocuments)
	cmd.Printf("Chunks:    %d\n", stats.TotalChunks)
	if !statsDocuments {
		return nil
	}
	docs, err := a.Hub.Documents(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		name := d.Filename
		if name == "" {
			name = "-"
		}
		cmd.Printf("  %s  %-9s %4d chunks  %s\n", d.ID, d.Status, d.ChunkCount, name)
	}
	return nil
}
