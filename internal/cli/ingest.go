package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/service"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Index documents",
	Long: `Extracts, chunks and embeds each file into the vector store.
Glob patterns are expanded. Files that are already indexed are reported
as duplicates and left untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	results, err := ingestPaths(ctx, a.Hub, args)
	for _, r := range results {
		printUpload(cmd, r)
	}
	return err
}

// expandPaths resolves glob patterns; a pattern without matches is kept as is
// so that the missing file is reported.
func expandPaths(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		out = append(out, matches...)
	}
	return out
}

// ingestPaths indexes every file and keeps going past failures.
func ingestPaths(ctx context.Context, hub *service.Hub, patterns []string) ([]domain.UploadResult, error) {
	var results []domain.UploadResult
	var errs []error
	for _, path := range expandPaths(patterns) {
		res, err := hub.IngestFile(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func printUpload(cmd *cobra.Command, r domain.UploadResult) {
	if r.Duplicate {
		cmd.Printf("%s  duplicate  (doc_id %s)\n", r.Filename, r.DocumentID)
		return
	}
	cmd.Printf("%s  %d chunks  (doc_id %s)\n", r.Filename, r.ChunksCreated, r.DocumentID)
	if r.Summary != "" {
		cmd.Printf("  %s\n", r.Summary)
	}
}
