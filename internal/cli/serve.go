package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxkit/voxkit/internal/config"
	"github.com/voxkit/voxkit/internal/logger"
	"github.com/voxkit/voxkit/internal/metrics"
	"github.com/voxkit/voxkit/internal/server"
	"github.com/voxkit/voxkit/pkg/actions"
	"github.com/voxkit/voxkit/pkg/callcontrol"
	"github.com/voxkit/voxkit/pkg/callstart"
	"github.com/voxkit/voxkit/pkg/execution"
	"github.com/voxkit/voxkit/pkg/lifecycle"
	"github.com/voxkit/voxkit/pkg/messaging"
	"github.com/voxkit/voxkit/pkg/platform"
	"github.com/voxkit/voxkit/pkg/toolstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voxkit service",
	Long: `Run the voxkit HTTP service: the platform callback endpoint, the
call-started trigger, and the tool administration API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Close()
	log := appLogger.Zerolog()

	m := metrics.New()

	store, err := toolstore.Open(cfg.Store.Path, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	platformClient := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.APIKey, log)
	actionsClient := actions.NewClient(cfg.Actions.BaseURL, cfg.Actions.APIKey, log)
	messagingClient := messaging.NewClient(cfg.Messaging.BaseURL, log)
	injector := callcontrol.NewInjector(log)

	manager := lifecycle.NewManager(store, platformClient, cfg.Server.CallbackBaseURL, log, m)
	engine := execution.NewEngine(store, actionsClient, messagingClient, log, m)
	orchestrator := callstart.NewOrchestrator(store, platformClient, engine, injector, log, m)

	srv := server.NewServer(server.Options{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	}, manager, engine, orchestrator, m, log)

	// Hot-reload the log level when the config file changes.
	watcher, err := config.NewWatcher(loader, log, func(reloaded *config.Config) {
		appLogger.SetLevel(reloaded.Logging.Level)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	return srv.Stop()
}
