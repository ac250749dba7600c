package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bargom/hookrelay/internal/api"
	"github.com/bargom/hookrelay/internal/api/handlers/webhooks"
	"github.com/bargom/hookrelay/internal/auth"
	"github.com/bargom/hookrelay/internal/cache"
	"github.com/bargom/hookrelay/internal/database"
	"github.com/bargom/hookrelay/internal/dispatch"
	"github.com/bargom/hookrelay/internal/dispatch/httpclient"
	"github.com/bargom/hookrelay/internal/event/bus"
	"github.com/bargom/hookrelay/internal/event/subscribers"
	"github.com/bargom/hookrelay/internal/health"
	"github.com/bargom/hookrelay/internal/health/checks"
	"github.com/bargom/hookrelay/internal/shutdown"
	"github.com/bargom/hookrelay/internal/shutdown/hooks"
	"github.com/bargom/hookrelay/internal/webhook/repository"
	"github.com/bargom/hookrelay/pkg/logging"
	"github.com/bargom/hookrelay/pkg/metrics"
)

var (
	// serverHost is the host to bind to.
	serverHost string
	// serverPort is the port to listen on.
	serverPort int

	// dbBackend selects the repository implementation: memory, postgres or sqlite.
	dbBackend string
	// dbDSN is a full connection string, overriding the discrete db-* flags.
	dbDSN      string
	dbHost     string
	dbPort     int
	dbName     string
	dbUser     string
	dbPassword string
	dbSSLMode  string

	// cacheBackend selects the webhook state cache's hot layer: none, memory or redis.
	cacheBackend string
	cacheURL     string

	// jwtSecret authenticates callers of the mutating operator API routes.
	// Left empty, those routes run unauthenticated (development only).
	jwtSecret string
	jwtIssuer string

	// batchMaxSize, batchMaxWait, retryBase, retryMax, retryFailureHorizon and
	// shutdownDrainDeadline override dispatch.DefaultConfig().
	batchMaxSize         int
	batchMaxWait         time.Duration
	retryBase            time.Duration
	retryMax             time.Duration
	retryFailureHorizon  time.Duration
	shutdownDrainDeadline time.Duration

	migrateDryRun bool
)

// newServerCmd creates the server command with its subcommands.
func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Server management commands",
		Long:  `Commands for running the hookrelay dispatch engine and operator API.`,
	}

	cmd.AddCommand(newServerStartCmd())
	cmd.AddCommand(newServerMigrateCmd())

	return cmd
}

func newServerStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the dispatch engine and operator API",
		Long: `Start the hookrelay dispatch engine and its operator API.

The operator API exposes webhook registration, delivery history, health
checks and Prometheus metrics.`,
		Example: `  hookrelay server start
  hookrelay server start --db-backend postgres --db-host localhost --db-name hookrelay
  hookrelay server start --db-backend sqlite --db-dsn ./hookrelay.db`,
		RunE: runServerStart,
	}

	cmd.Flags().StringVar(&serverHost, "host", "0.0.0.0", "host to bind to")
	cmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "port to listen on")

	cmd.Flags().StringVar(&dbBackend, "db-backend", "memory", "repository backend: memory, postgres or sqlite")
	cmd.Flags().StringVar(&dbDSN, "db-dsn", "", "full connection string (sqlite file path, or postgres DSN); overrides discrete db-* flags")
	cmd.Flags().StringVar(&dbHost, "db-host", "localhost", "postgres host")
	cmd.Flags().IntVar(&dbPort, "db-port", 5432, "postgres port")
	cmd.Flags().StringVar(&dbName, "db-name", "hookrelay", "postgres database name")
	cmd.Flags().StringVar(&dbUser, "db-user", "postgres", "postgres user")
	cmd.Flags().StringVar(&dbPassword, "db-password", "", "postgres password")
	cmd.Flags().StringVar(&dbSSLMode, "db-sslmode", "disable", "postgres SSL mode")

	cmd.Flags().StringVar(&cacheBackend, "cache-backend", "none", "webhook state cache hot layer: none, memory or redis")
	cmd.Flags().StringVar(&cacheURL, "cache-url", "", "redis URL (redis://host:port), required when cache-backend=redis")

	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "HS256 secret validating operator API bearer tokens; unset disables auth")
	cmd.Flags().StringVar(&jwtIssuer, "jwt-issuer", "", "required issuer claim; unset accepts any issuer")

	cmd.Flags().IntVar(&batchMaxSize, "batch-max-size", 0, "batching accumulator size (0 = use default)")
	cmd.Flags().DurationVar(&batchMaxWait, "batch-max-wait", 0, "batching accumulator wait (0 = use default)")
	cmd.Flags().DurationVar(&retryBase, "retry-base", 0, "initial retry backoff (0 = use default)")
	cmd.Flags().DurationVar(&retryMax, "retry-max", 0, "retry backoff ceiling (0 = use default)")
	cmd.Flags().DurationVar(&retryFailureHorizon, "retry-failure-horizon", 0, "time a webhook may spend retrying before going unavailable (0 = use default)")
	cmd.Flags().DurationVar(&shutdownDrainDeadline, "shutdown-drain-deadline", 0, "time to wait for in-flight dispatches on shutdown (0 = use default)")

	return cmd
}

func runServerStart(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	logger := logging.New(logging.DefaultConfig())

	reg := metrics.NewRegistry(metrics.DefaultConfig().WithVersion(Version))

	webhookRepo, eventRepo, stateRepo, deliveryRepo, db, err := buildRepository()
	if err != nil {
		return fmt.Errorf("building repository: %w", err)
	}

	var hotCache cache.Cache
	if cacheBackend != "none" {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Type = cacheBackend
		cacheCfg.URL = cacheURL
		hotCache, err = cache.New(cacheCfg)
		if err != nil {
			return fmt.Errorf("building cache: %w", err)
		}
	}

	eventBus := bus.NewEventBus(logger)
	eventBus.Subscribe(bus.EventWebhookDelivered, subscribers.NewLoggingSubscriber(logger))
	eventBus.Subscribe(bus.EventWebhookDeliveryFailed, subscribers.NewLoggingSubscriber(logger))
	eventBus.Subscribe(bus.EventWebhookStateChanged, subscribers.NewLoggingSubscriber(logger))
	deliveryMetrics := subscribers.NewMetricsSubscriber()
	eventBus.Subscribe(bus.EventWebhookDelivered, deliveryMetrics)
	eventBus.Subscribe(bus.EventWebhookDeliveryFailed, deliveryMetrics)

	dispatchCfg := dispatch.DefaultConfig()
	if batchMaxSize > 0 {
		dispatchCfg.Batching.MaxSize = batchMaxSize
	}
	if batchMaxWait > 0 {
		dispatchCfg.Batching.MaxWait = batchMaxWait
	}
	if retryBase > 0 {
		dispatchCfg.Retry.Base = retryBase
	}
	if retryMax > 0 {
		dispatchCfg.Retry.Max = retryMax
	}
	if retryFailureHorizon > 0 {
		dispatchCfg.Retry.FailureHorizon = retryFailureHorizon
	}
	if shutdownDrainDeadline > 0 {
		dispatchCfg.Shutdown.DrainDeadline = shutdownDrainDeadline
	}

	engine := dispatch.NewEngine(dispatchCfg, dispatch.EngineDeps{
		Webhooks:   webhookRepo,
		Events:     eventRepo,
		State:      stateRepo,
		Deliveries: deliveryRepo,
		Client:     httpclient.New(httpclient.DefaultConfig()),
		Logger:     logger,
		Metrics:    reg,
		HotCache:   hotCache,
		Bus:        eventBus,
	})

	engineCtx, engineCancel := context.WithCancel(context.Background())
	if err := engine.Start(engineCtx); err != nil {
		engineCancel()
		return fmt.Errorf("starting dispatch engine: %w", err)
	}

	go func() {
		for err := range engine.Errors(engineCtx) {
			logger.Error("dispatch engine error", "error", err)
		}
	}()

	healthRegistry := health.NewRegistry(Version)
	if db != nil {
		healthRegistry.Register(checks.NewDatabaseChecker(db))
	}
	if hotCache != nil {
		healthRegistry.Register(checks.NewCacheChecker(cachePinger{hotCache}))
	}
	healthRegistry.Register(checks.NewDiskChecker("."))
	healthRegistry.Register(checks.NewMemoryChecker())
	healthRegistry.Register(checks.NewCustomChecker("retry-backlog", retryBacklogCheck(engine.Retries())))

	var validator *auth.Validator
	if jwtSecret != "" {
		validator, err = auth.NewValidator(auth.Config{Secret: jwtSecret, Issuer: jwtIssuer})
		if err != nil {
			engineCancel()
			return fmt.Errorf("building auth validator: %w", err)
		}
	}

	router := api.NewRouter(api.Config{
		WebhookHandler: webhooks.NewHandler(webhookRepo, deliveryRepo),
		HealthHandler:  health.NewHandler(healthRegistry),
		Metrics:        reg,
		Auth:           validator,
		Cache:          hotCache,
	})

	addr := fmt.Sprintf("%s:%d", serverHost, serverPort)
	server := api.NewServer(router, addr)

	shutdownMgr := shutdown.NewManager(shutdown.DefaultConfig(), logger.Logger)

	// The engine must drain in-flight deliveries before the HTTP listener
	// stops accepting connections, so its hook runs ahead of
	// shutdown.PriorityHTTPServer.
	shutdownMgr.RegisterHook(shutdown.Hook{
		Name:     "dispatch-engine",
		Priority: shutdown.PriorityHTTPServer + 5,
		Fn: func(ctx context.Context) error {
			engine.Shutdown(ctx)
			engineCancel()
			return nil
		},
	})
	shutdownMgr.RegisterHook(hooks.HTTPServerShutdown(server.Server(), dispatchCfg.Shutdown.DrainDeadline))
	if hotCache != nil {
		shutdownMgr.RegisterHook(hooks.CacheShutdown("cache", hotCache))
	}
	if db != nil {
		shutdownMgr.RegisterHook(hooks.DatabaseShutdown("database", db))
	}
	shutdownMgr.Register("event-bus", shutdown.PriorityMetrics, func(ctx context.Context) error {
		eventBus.Close()
		return nil
	})

	done := shutdownMgr.ListenForSignals()

	fmt.Fprintf(out, "hookrelay listening on %s (backend=%s, cache=%s)\n", addr, dbBackend, cacheBackend)
	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	fmt.Fprintln(out, "hookrelay stopped")

	return nil
}

// cachePinger adapts cache.Cache's Health check to checks.Pinger.
type cachePinger struct {
	cache.Cache
}

func (c cachePinger) Ping(ctx context.Context) error {
	return c.Health(ctx)
}

// retryBacklogCheckThreshold is the number of webhooks simultaneously under
// retry above which the readiness endpoint reports degraded rather than
// healthy, surfacing a growing failure backlog before it hits the 7-day
// failure horizon.
const retryBacklogCheckThreshold = 50

// retryBacklogCheck reports how many webhooks currently have an active
// retry controller.
func retryBacklogCheck(retries *dispatch.RetryManager) func(context.Context) health.CheckResult {
	return func(ctx context.Context) health.CheckResult {
		n := retries.RetryingCount()
		status := health.StatusHealthy
		if n >= retryBacklogCheckThreshold {
			status = health.StatusDegraded
		}
		return health.CheckResult{
			Status:  status,
			Message: fmt.Sprintf("%d webhooks retrying", n),
			Details: map[string]any{"retrying_count": n},
		}
	}
}

// buildRepository constructs the repository backend selected by dbBackend.
// db is non-nil only for SQL-backed backends, for health checks and
// shutdown to close the pool.
func buildRepository() (repository.WebhookRepo, repository.WebhookEventRepo, repository.WebhookStateRepo, repository.DeliveryRepo, *sql.DB, error) {
	switch dbBackend {
	case "memory":
		repo := repository.NewMemoryRepository()
		return repo, repo, repo, repo, nil, nil

	case "postgres":
		dsn := dbDSN
		if dsn == "" {
			db, err := database.Connect(database.Config{
				Host: dbHost, Port: dbPort, Database: dbName,
				User: dbUser, Password: dbPassword, SSLMode: dbSSLMode,
			})
			if err != nil {
				return nil, nil, nil, nil, nil, err
			}
			if err := database.Ping(db); err != nil {
				return nil, nil, nil, nil, nil, err
			}
			repo := repository.NewPostgresRepository(db)
			return repo, repo, repo, repo, db, nil
		}
		db, err := database.ConnectWithDSN(dsn)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		if err := database.Ping(db); err != nil {
			return nil, nil, nil, nil, nil, err
		}
		repo := repository.NewPostgresRepository(db)
		return repo, repo, repo, repo, db, nil

	case "sqlite":
		path := dbDSN
		if path == "" {
			path = "hookrelay.db"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, nil, nil, nil, nil, err
		}
		repo := repository.NewSQLiteRepository(db)
		return repo, repo, repo, repo, db, nil

	default:
		return nil, nil, nil, nil, nil, fmt.Errorf("unknown db-backend %q", dbBackend)
	}
}

func newServerMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Run database migrations against the Postgres repository backend.

Use --dry-run to see pending migrations without applying them.`,
		Example: `  hookrelay server migrate
  hookrelay server migrate --dry-run
  hookrelay server migrate --db-host localhost --db-name hookrelay`,
		RunE: runServerMigrate,
	}

	cmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().StringVar(&dbHost, "db-host", "localhost", "postgres host")
	cmd.Flags().IntVar(&dbPort, "db-port", 5432, "postgres port")
	cmd.Flags().StringVar(&dbName, "db-name", "hookrelay", "postgres database name")
	cmd.Flags().StringVar(&dbUser, "db-user", "postgres", "postgres user")
	cmd.Flags().StringVar(&dbPassword, "db-password", "", "postgres password")
	cmd.Flags().StringVar(&dbSSLMode, "db-sslmode", "disable", "postgres SSL mode")

	return cmd
}

func runServerMigrate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	db, err := database.Connect(database.Config{
		Host: dbHost, Port: dbPort, Database: dbName,
		User: dbUser, Password: dbPassword, SSLMode: dbSSLMode,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close(db)

	migrator := database.NewMigrator(db)

	if migrateDryRun {
		all, err := migrator.Status()
		if err != nil {
			return fmt.Errorf("checking migration status: %w", err)
		}
		for _, m := range all {
			if m.AppliedAt == nil {
				fmt.Fprintf(out, "%s_%s\n", m.Version, m.Name)
			}
		}
		return nil
	}

	if err := migrator.MigrateUp(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Fprintln(out, "migrations applied")
	return nil
}
