package cli

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"knowledgehub/internal/app"
	"knowledgehub/internal/config"
	"knowledgehub/internal/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "knowledgehub",
	Short: "Ask questions about your documents",
	Long: `knowledgehub indexes PDF, DOCX, Markdown and text files into a vector
store and answers questions about them with cited sources.

Configuration is read from --config, ./config.yaml or
~/.config/knowledgehub/config.yaml. Secrets come from the environment
or a .env file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// openApp loads configuration and wires every component. The caller closes
// the returned app.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	log, err := logger.New(cfg.Logging.Mode, level)
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Log.Warn("close failed", "error", err)
	}
	a.Log.Sync()
}
