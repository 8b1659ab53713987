package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"webot/internal/bot"
	"webot/internal/browser"
	"webot/internal/config"
	"webot/internal/engine"
	"webot/internal/logging"
	"webot/internal/portal"
	"webot/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "webot",
	Short: "Telegram bot for the WE (my.te.eg) home internet portal",
	Long: `webot watches a WE home internet account through the my.te.eg portal
with a headless browser: linking accounts, reading usage, renewing the
plan, and alerting on unusual consumption.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional, real deployments use environment variables.
		_ = godotenv.Load()

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("webot %s\n", version)
	},
}

func runBot() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Initialize(cfg.Data.Dir, logging.Config{
		DebugMode:  cfg.Logging.DebugMode,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
	}); err != nil {
		return fmt.Errorf("initializing file logging: %w", err)
	}
	defer logging.CloseAll()
	logging.Boot("webot %s starting", version)

	st, err := store.New(cfg.Data.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	mgr := browser.NewManager(cfg.Browser)
	defer mgr.Shutdown()

	drv := portal.New(mgr, cfg.Portal)
	eng := engine.New(drv, st, engine.Options{})

	tg, err := bot.New(cfg.Telegram, eng, st)
	if err != nil {
		return fmt.Errorf("starting telegram bot: %w", err)
	}
	logger.Info("bot connected", zap.String("username", tg.Self()))

	var sched *bot.Scheduler
	if cfg.Cron.Enabled {
		sched, err = bot.NewScheduler(cfg.Cron, tg, st)
		if err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		sched.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tg.Run(ctx)

	logger.Info("shutting down")
	if sched != nil {
		sched.Stop()
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
