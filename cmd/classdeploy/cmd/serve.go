package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/api"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/api/handlers"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/cache"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/subscribers"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/history"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/hosts"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/shutdown"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/pkg/logging"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/pkg/metrics"
)

var (
	// serveAddr overrides the configured listen address
	serveAddr string
	// serveHostsFile is an optional roster imported at startup
	serveHostsFile string
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the deployment orchestrator and its HTTP API",
		Long: `Start the orchestrator: the job queue, the host registry, the
compile cache, and the REST API serving them.`,
		Example: `  classdeploy serve
  classdeploy serve --addr :9000
  classdeploy serve --hosts classroom.csv`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&serveHostsFile, "hosts", "", "CSV roster imported at startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	eventBus := bus.NewEventBus(logger.WithModule("events"))
	registry := hosts.NewRegistry(
		hosts.WithEventBus(eventBus),
		hosts.WithLogger(logger.WithModule("hosts")),
	)

	// Observability subscribers go on the bus before the startup import can
	// publish anything.
	metricsReg := metrics.NewRegistry(metrics.DefaultConfig())
	subscribers.NewMetricsSubscriber(metricsReg).Attach(eventBus)

	logSub := subscribers.NewLoggingSubscriber(logger.WithModule("events"))
	for _, t := range []bus.EventType{
		bus.EventJobEnqueued,
		bus.EventJobStarted,
		bus.EventJobCompleted,
		bus.EventJobFailed,
		bus.EventJobRetried,
		bus.EventJobCancelled,
	} {
		eventBus.Subscribe(t, logSub)
	}

	if serveHostsFile != "" {
		if err := importRoster(cmd.Context(), registry, serveHostsFile, logger); err != nil {
			return err
		}
	}

	buildCache, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init compile cache: %w", err)
	}

	manager, err := deploy.NewManager(cfg, registry, buildCache, eventBus, logger.WithModule("deploy"))
	if err != nil {
		return err
	}
	manager.RegisterDefaultStrategies(logger.WithModule("strategy"))

	// Deployment history.
	var historyStore history.Store
	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("init history store: %w", err)
		}
		historyStore = store
		history.NewRecorder(store, logger.WithModule("history")).Attach(eventBus)
	}

	addr := cfg.API.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	handler := handlers.NewHandler(manager, registry, historyStore)
	router := api.NewRouterWithConfig(handler, api.RouterConfig{
		MetricsHandler: metricsReg.Handler(),
	})
	server := api.NewServer(router, addr)

	shutdownMgr := shutdown.NewManager(logger)
	shutdownMgr.Register("http-server", shutdown.PriorityHTTPServer, server.Shutdown)
	shutdownMgr.Register("job-queue", shutdown.PriorityQueue, func(ctx context.Context) error {
		manager.CancelAll(ctx)
		return nil
	})
	if historyStore != nil {
		shutdownMgr.Register("history", shutdown.PriorityHistory, func(ctx context.Context) error {
			return historyStore.Close()
		})
	}
	shutdownMgr.Register("compile-cache", shutdown.PriorityCache, func(ctx context.Context) error {
		return buildCache.Close()
	})

	done := shutdownMgr.ListenForSignals()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", addr)
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-done:
		return nil
	}
}

// importRoster loads a CSV roster into the registry before serving.
func importRoster(ctx context.Context, registry *hosts.Registry, path string, logger *logging.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open roster %s: %w", path, err)
	}
	defer f.Close()

	result, err := registry.ImportCSV(ctx, f)
	if err != nil {
		return fmt.Errorf("import roster %s: %w", path, err)
	}
	logger.Info("roster imported",
		"file", path,
		"added", result.Added,
		"updated", result.Updated,
		"skipped", result.Skipped,
	)
	return nil
}
