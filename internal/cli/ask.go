package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"knowledgehub/internal/domain"
)

var (
	askTopK   int
	askStream bool
	askSystem string
	askFiles  []string
	askJSON   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the indexed documents",
	Long: `Retrieves the most relevant chunks and generates an answer citing them.
With the in-memory vector store nothing survives between runs, so pass the
documents to search with --file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default retriever.top_k)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
	askCmd.Flags().StringVar(&askSystem, "system", "", "override the system prompt")
	askCmd.Flags().StringSliceVarP(&askFiles, "file", "f", nil, "index these files before asking")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	question := strings.Join(args, " ")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if len(askFiles) > 0 {
		if _, err := ingestPaths(ctx, a.Hub, askFiles); err != nil {
			return err
		}
	}

	if askStream && !askJSON {
		stream, sources, err := a.Hub.QueryStream(ctx, question, askTopK, askSystem)
		if err != nil {
			return err
		}
		defer stream.Close()
		for {
			delta, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			cmd.Print(delta)
		}
		cmd.Println()
		printSources(cmd, sources)
		return nil
	}

	ans, err := a.Hub.Query(ctx, question, askTopK, askSystem)
	if err != nil {
		return err
	}
	if askJSON {
		data, err := json.MarshalIndent(ans, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Println(ans.Text)
	printSources(cmd, ans.Sources)
	return nil
}

func printSources(cmd *cobra.Command, sources []domain.Source) {
	cmd.Println()
	if len(sources) == 0 {
		cmd.Println("Sources: none (answer is not grounded in the knowledge base)")
		return
	}
	cmd.Println("Sources:")
	for i, s := range sources {
		cmd.Printf("  [%d] %s  chunk %d  (%.3f)\n", i+1, s.Filename, s.ChunkIndex, s.Score)
	}
}
