package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codeagentswarm/swarm-backend/internal/blob"
	"github.com/codeagentswarm/swarm-backend/internal/config"
	"github.com/codeagentswarm/swarm-backend/internal/logger"
	"github.com/codeagentswarm/swarm-backend/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what every subcommand works against
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.SQLiteStore
	blobs *blob.FileStore
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

var (
	current *app

	// Global flags.
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "swarmctl",
	Short: "Administer the CodeAgentSwarm update backend",
	Long: `swarmctl manages the data the update backend serves: published
releases and per-version changelogs.

It works directly against the configured SQLite database and blob root, so it
must run on the host (or volume) the server uses.

Examples:
  swarmctl release publish --platform darwin --arch arm64 --version 2.1.0 ./dist/CodeAgentSwarm-2.1.0-arm64.dmg
  swarmctl release list
  swarmctl changelog import --repo ./desktop --version 2.1.0`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current != nil {
			current.Close()
		}
	},
}

func openApp(cfg *config.Config) (*app, error) {
	log, err := logger.InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Storage.Path, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	blobs, err := blob.NewFileStore(cfg.Blob.Root, cfg.Server.BaseURL, cfg.Blob.SigningSecret)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open blob storage: %w", err)
	}
	return &app{cfg: cfg, log: log, store: st, blobs: blobs}, nil
}

// Execute runs the root command with signal handling.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Path to the config file")
}
