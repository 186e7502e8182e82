package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/moncash-relay/api"
	"github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/common/payload"
	"github.com/frahmantamala/moncash-relay/internal/core/events"
	"github.com/frahmantamala/moncash-relay/internal/payment"
	paymentRepository "github.com/frahmantamala/moncash-relay/internal/payment/postgres"
	"github.com/frahmantamala/moncash-relay/internal/paymentgateway"
	"github.com/frahmantamala/moncash-relay/internal/transport"
	"github.com/frahmantamala/moncash-relay/internal/transport/rest"
	"github.com/frahmantamala/moncash-relay/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server hosting the MonCash webhook, verify endpoint and landing page`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	// PublicDB is nil when no restricted DSN is configured.
	PublicDB *sqlx.DB
	Router   *chi.Mux
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		deps.close()
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func (d *Dependencies) close() {
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
	if d.PublicDB != nil {
		if err := d.PublicDB.Close(); err != nil {
			d.Logger.Error("Public database close error", "error", err)
		}
	}
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	if _, err := api.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid api document: %w", err)
	}

	eventBus := events.NewEventBus(lg)
	eventBus.Subscribe(events.EventTypePaymentReconciled, auditReconciled(lg))

	adminService, adminRepo, db, err := openPaymentService(config.Database.Source, config.Database, eventBus, lg)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Config: config,
		DB:     db,
		Router: chi.NewRouter(),
		Logger: lg,
	}

	healthComponents := map[string]rest.Pinger{"postgres": adminRepo}

	// The landing page runs with the restricted role when one is configured.
	publicService := adminService
	if config.Database.PublicSource != "" {
		svc, publicRepo, publicDB, err := openPaymentService(config.Database.PublicSource, config.Database, eventBus, lg)
		if err != nil {
			deps.close()
			return nil, fmt.Errorf("public store: %w", err)
		}
		deps.PublicDB = publicDB
		publicService = svc
		healthComponents["postgres_public"] = publicRepo
	} else {
		lg.Warn("no public database source configured; landing page uses the administrative store")
	}

	verifyService := payment.NewVerifyService(newGateway(config.MonCash, lg), adminService, lg)

	secretVerifier := payment.NewSecretVerifier(config.Webhook.Secret)
	if !secretVerifier.Enabled() {
		lg.Warn("webhook secret not configured; MonCash notifications are accepted without authentication")
	}

	resolver := payload.Default()
	baseHandler := transport.NewBaseHandler(lg)

	handlers := rest.Handlers{
		Webhook: payment.NewWebhookHandler(baseHandler, adminService, secretVerifier, resolver),
		Verify:  payment.NewVerifyHandler(baseHandler, verifyService, resolver),
		Page: payment.NewPageHandler(baseHandler, publicService, verifyService, resolver, payment.PageConfig{
			SupportContact: config.Page.SupportContact,
			AppDeepLink:    config.Page.AppDeepLink,
		}),
		Health:  rest.NewHealthHandler(healthComponents),
		OpenAPI: api.Document(),
	}

	rest.RegisterAllRoutes(deps.Router, handlers, rest.RouterConfig{
		AllowedOrigins: config.Server.AllowedOrigins,
		LogRequests:    true,
	}, lg)

	return deps, nil
}

// newGateway returns nil when credentials are missing so the verify flow
// reports a configuration error instead of calling MonCash.
func newGateway(cfg internal.MonCashConfig, lg *slog.Logger) payment.GatewayAPI {
	if !cfg.HasCredentials() {
		lg.Warn("MonCash credentials not configured; transaction verification is disabled")
		return nil
	}
	return paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:      cfg.BaseURL(),
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Timeout:      cfg.Timeout,
		CacheToken:   cfg.CacheToken,
	}, lg)
}

func auditReconciled(lg *slog.Logger) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.PaymentReconciledEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}
		audit := lg
		if scoped, ok := logger.Lookup(ctx); ok {
			audit = scoped
		}
		audit.Info("payment reconciled",
			"event_id", e.EventID(),
			"order_id", e.OrderID,
			"transaction_id", e.TransactionID,
			"amount", e.Amount.String(),
			"outcome", e.Outcome,
			"source", e.Source,
		)
		return nil
	}
}

// openPaymentService connects to dsn and builds a reconciliation service on it.
func openPaymentService(dsn string, cfg internal.DatabaseConfig, eventBus *events.EventBus, lg *slog.Logger) (*payment.Service, payment.RepositoryAPI, *sqlx.DB, error) {
	db, err := initDB(dsn, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store, err := openGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	repo := paymentRepository.NewPaymentRepository(store)
	service := payment.NewService(repo, eventBus, lg, payment.ServiceConfig{QueryTimeout: cfg.QueryTimeout})
	return service, repo, db, nil
}

// initDB initializes the database connection
func initDB(dsn string, cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return dbConn, nil
}

// openGorm reuses the sqlx pool so both handles share connections.
func openGorm(db *sqlx.DB) (*gorm.DB, error) {
	store, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return store, nil
}
