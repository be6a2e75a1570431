package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	khttp "knowledgehub/internal/http"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the upload, query, streaming query, stats, delete and health
endpoints until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if a.Config.Logging.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	addr := a.Config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := khttp.NewServer(a.Log, a.Hub, khttp.Options{
		AllowOrigins:   a.Config.Server.AllowOrigins,
		MaxUploadBytes: int64(a.Config.Server.MaxUploadMB) << 20,
	})
	return srv.Run(ctx, addr)
}
