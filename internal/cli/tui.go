package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"knowledgehub/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [files...]",
	Short: "Launch the interactive terminal UI",
	Long: `Indexes the given files, then opens an interactive prompt for asking
questions.

Controls:
  Enter    - Ask
  Up/Down  - Cycle through sources
  Ctrl+C   - Quit`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	var banner string
	if len(args) > 0 {
		results, err := ingestPaths(ctx, a.Hub, args)
		if err != nil {
			return err
		}
		chunks := 0
		for _, r := range results {
			chunks += r.ChunksCreated
		}
		banner = fmt.Sprintf("Indexed %d file(s), %d chunks.", len(results), chunks)
		if len(results) == 1 && results[0].Summary != "" {
			banner = results[0].Summary
		}
	} else {
		stats, err := a.Hub.Stats(ctx)
		if err != nil {
			return err
		}
		banner = fmt.Sprintf("%d document(s), %d chunks in the index.", stats.TotalDocuments, stats.TotalChunks)
	}

	m := tui.New(ctx, a.Hub, banner, a.Config.Retriever.TopK)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
