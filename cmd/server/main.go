package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/api"
	"github.com/good-yellow-bee/blazewatch/internal/api/auth"
	"github.com/good-yellow-bee/blazewatch/internal/api/health"
	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/search"
	"github.com/good-yellow-bee/blazewatch/internal/storage"
	"github.com/good-yellow-bee/blazewatch/pkg/config"
)

// retentionInterval is how often archived alerts past retention are deleted.
const retentionInterval = time.Hour

var (
	configFile string
	httpAddr   string
	verbose    bool

	tokenSubject string
	tokenScope   string
	tokenTTL     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "blazewatch-server",
	Short: "BlazeWatch Server - monitor execution and alert lifecycle engine",
	Long: `BlazeWatch Server runs query and bucket level monitors against OpenSearch,
keeps the resulting alerts and notifies destinations when triggers fire.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.VersionString())
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token",
	Long:  `Issue a bearer token signed with auth.jwt_secret for watchctl or other API clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		scope, err := auth.ParseScope(tokenScope)
		if err != nil {
			return err
		}
		tok, err := auth.NewJWTService([]byte(cfg.Auth.JWTSecret)).GenerateToken(tokenSubject, scope, tokenTTL)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		fmt.Println(tok)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		return store.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address (overrides server.http_address)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "watchctl", "token subject")
	tokenCmd.Flags().StringVar(&tokenScope, "scope", string(auth.ScopeRead), "token scope (read or write)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")

	rootCmd.AddCommand(versionCmd, tokenCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*Config, error) {
	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose
	return cfg, nil
}

func openStorage(cfg *Config) (*storage.SQLiteStorage, error) {
	// Auto-create data directory
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	state, err := store.Migrate()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	log.Printf("database initialized at %s (schema version %d, %d migrations applied)",
		cfg.Database.Path, state.Version, len(state.Applied))
	return store, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var checkers []health.Checker
	checkers = append(checkers, health.NewSQLiteChecker(store.DB()))

	// History archive: SQLite in place, or ClickHouse behind a write buffer
	var history storage.AlertHistoryRepository = store.AlertHistory()
	if cfg.History.Backend == "clickhouse" {
		ch := cfg.History.ClickHouse
		chHistory := storage.NewClickHouseHistory(&storage.ClickHouseConfig{
			Addresses:     ch.Addresses,
			Database:      ch.Database,
			Username:      ch.Username,
			Password:      ch.Password,
			Compression:   ch.Compression,
			RetentionDays: int(cfg.History.Retention / (24 * time.Hour)),
		})
		if err := chHistory.Open(); err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chHistory.Close()
		if err := chHistory.Migrate(); err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}

		buffer := storage.NewHistoryBuffer(chHistory, &storage.HistoryBufferConfig{
			BatchSize:     ch.BatchSize,
			FlushInterval: ch.FlushInterval,
		})
		defer func() {
			if err := buffer.Close(); err != nil {
				log.Printf("history buffer close error: %v", err)
			}
		}()
		history = buffer
		checkers = append(checkers, health.NewClickHouseChecker(chHistory))
		log.Printf("alert history archived to clickhouse at %v", ch.Addresses)
	}

	searchClient, err := search.NewClient(&search.Config{
		Addresses:          cfg.OpenSearch.Addresses,
		Username:           cfg.OpenSearch.Username,
		Password:           cfg.OpenSearch.Password,
		InsecureSkipVerify: cfg.OpenSearch.InsecureSkipVerify,
	})
	if err != nil {
		return fmt.Errorf("create opensearch client: %w", err)
	}
	checkers = append(checkers, health.NewOpenSearchChecker(searchClient))

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		return fmt.Errorf("build destinations: %w", err)
	}
	defer dispatcher.Close()

	runner := alerting.NewRunner(
		search.NewResolver(searchClient, cfg.OpenSearch.InputTimeout),
		alerting.NewScriptEngine(),
		dispatcher,
		store.Alerts(),
		history,
		&alerting.RunnerOptions{
			ActionConcurrency:   cfg.Alerting.ActionConcurrency,
			BucketAlertLoadSize: cfg.Alerting.AlertLoadSize,
			HistoryBackend:      cfg.History.Backend,
		},
	)

	limits := alerting.Limits{
		MaxInputs:   cfg.Alerting.MaxInputs,
		MaxTriggers: cfg.Alerting.MaxTriggers,
		MinThrottle: cfg.Alerting.MinThrottle,
		MaxThrottle: cfg.Alerting.MaxThrottle,
	}

	apiServer, err := api.New(&api.Config{
		Address:            cfg.Server.HTTPAddress,
		JWTSecret:          []byte(cfg.Auth.JWTSecret),
		HTTPTLSEnabled:     cfg.Server.HTTPTLS.Enabled,
		HTTPTLSCertFile:    cfg.Server.HTTPTLS.CertFile,
		HTTPTLSKeyFile:     cfg.Server.HTTPTLS.KeyFile,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		ExecuteTimeout:     cfg.Server.ExecuteTimeout,
		Limits:             limits,
		Verbose:            cfg.Verbose,
	}, store, runner, history)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}
	for _, c := range checkers {
		apiServer.RegisterHealthChecker(c)
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	if cfg.Alerting.MonitorsFile != "" {
		watcher, err := alerting.NewMonitorFileWatcher(cfg.Alerting.MonitorsFile, limits, store.Monitors(), runner)
		if err != nil {
			return fmt.Errorf("create monitors file watcher: %w", err)
		}
		n, err := watcher.Load(ctx)
		if err != nil {
			return fmt.Errorf("load monitors file: %w", err)
		}
		log.Printf("loaded %d monitors from %s", n, cfg.Alerting.MonitorsFile)
		if cfg.Alerting.WatchMonitors {
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("watch monitors file: %w", err)
			}
			defer watcher.Stop()
		}
	}

	info := config.GetBuildInfo()
	metrics.SetBuildInfo(info.Version, info.Commit, info.BuildTime)
	var metricsServer *metrics.Server
	if cfg.Server.MetricsAddress != "" {
		metricsServer = metrics.NewServer(cfg.Server.MetricsAddress)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	go runRetention(ctx, history, cfg.History.Retention)

	// Run server
	log.Printf("starting blazewatch-server %s", config.Version)
	runErr := apiServer.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics server shutdown error: %v", err)
		}
		shutdownCancel()
	}
	if runErr != nil {
		return fmt.Errorf("run server: %w", runErr)
	}

	log.Printf("server stopped")
	return nil
}

// runRetention deletes archived alerts older than retention until ctx is done.
func runRetention(ctx context.Context, history storage.AlertHistoryRepository, retention time.Duration) {
	if retention <= 0 {
		return
	}
	sweep := func() {
		n, err := history.DeleteBefore(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Printf("history retention error: %v", err)
			return
		}
		if n > 0 {
			log.Printf("history retention: deleted %d alerts older than %s", n, retention)
		}
	}

	sweep()
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
