package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mx-space/drafts/internal/app"
	"github.com/mx-space/drafts/internal/config"
	"github.com/mx-space/drafts/internal/database"
	pkgredis "github.com/mx-space/drafts/internal/pkg/redis"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "draftctl",
	Short:         "Maintenance commands for the drafts service",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log service output")

	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(moveCmd())
	rootCmd.AddCommand(notifyCmd())
}

// env is one command's connections and services.
type env struct {
	cfg    *config.AppConfig
	db     *gorm.DB
	rc     *pkgredis.Client
	logger *zap.Logger
	*app.Services
	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}

	db, err := database.Connect(cfg, false)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, db: db, logger: logger}
	e.closers = append(e.closers, func() { _ = database.Close(db) })

	if cfg.RedisURL != "" {
		rc, err := pkgredis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		e.rc = rc
		e.closers = append(e.closers, func() { _ = rc.Close() })
	}

	store, closeStore, err := app.OpenStore(ctx, cfg, db)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, closeStore)
	e.Services = app.NewServices(cfg, db, e.rc, store, nil, logger)
	return e, nil
}

func withEnv(fn func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(ctx, cmd, e, args)
	}
}
