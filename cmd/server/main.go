package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"

	internalapi "github.com/dittorahmat/amal-kita/internal/api"
	"github.com/dittorahmat/amal-kita/internal/authz"
	appconfig "github.com/dittorahmat/amal-kita/internal/config"
	"github.com/dittorahmat/amal-kita/internal/events"
	"github.com/dittorahmat/amal-kita/internal/odoo"
	"github.com/dittorahmat/amal-kita/internal/secrets"
	postgres "github.com/dittorahmat/amal-kita/internal/storage/postgres"
	"github.com/dittorahmat/amal-kita/internal/telemetry"
	"github.com/dittorahmat/amal-kita/internal/xmlrpc"
)

func newLogger(cfg appconfig.Config) *log.Logger {
	prefix := ""
	if cfg.ServiceName != "" {
		prefix = fmt.Sprintf("[%s] ", cfg.ServiceName)
	}
	logger := log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds)
	log.SetOutput(os.Stdout)
	log.SetFlags(logger.Flags())
	log.SetPrefix(prefix)
	return logger
}

func setupTelemetry(lc fx.Lifecycle, cfg appconfig.Config) {
	var cleanup func()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			cleanup = telemetry.InitTracer(cfg.ServiceName)
			return nil
		},
		OnStop: func(context.Context) error {
			if cleanup != nil {
				cleanup()
			}
			return nil
		},
	})
}

// newSQLDB provides the shared *sql.DB. A failed connection is logged and
// tolerated; campaign/donation endpoints report errors per request.
func newSQLDB(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger) (*sql.DB, error) {
	logger.Printf("Connecting to PostgreSQL database %s@%s:%d", cfg.Database.Database, cfg.Database.Host, cfg.Database.Port)
	db, err := postgres.OpenDatabase(cfg.Database)
	if err != nil {
		logger.Printf("WARNING: failed to connect to database: %v", err)
		return nil, nil
	}
	logger.Printf("Database connection established successfully")
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return postgres.CloseDatabase()
		},
	})
	return db, nil
}

// newKafkaProducer constructs the shared producer and binds its lifecycle.
func newKafkaProducer(cfg appconfig.Config, lc fx.Lifecycle) *events.Producer {
	prod := events.NewProducerWithBrokers(cfg.Kafka.Brokers)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return prod.Close()
		},
	})
	return prod
}

// newOdooFactory builds per-donation synthesizers when ODOO_* is fully
// configured. Each sync run gets a fresh XML-RPC client with its own
// session cache; nothing is shared between concurrent dispatches.
// Returns nil when disabled; the donation flow then runs without invoicing.
func newOdooFactory(cfg appconfig.Config, repo *postgres.Repository, logger *log.Logger) odoo.ServiceFactory {
	if !cfg.Odoo.Enabled() {
		logger.Printf("Odoo integration disabled (ODOO_* not fully configured)")
		return nil
	}
	var seq odoo.Sequencer
	if repo != nil && repo.DB != nil {
		seq = postgres.SequenceSource{Repo: repo}
	}
	logger.Printf("Odoo integration enabled: %s (db=%s)", cfg.Odoo.BaseURL, cfg.Odoo.Database)
	return func() *odoo.Service {
		client := xmlrpc.NewClient(xmlrpc.ClientConfig{
			BaseURL:  cfg.Odoo.BaseURL,
			Database: cfg.Odoo.Database,
			Username: cfg.Odoo.Username,
			Password: cfg.Odoo.Password,
		})
		return odoo.NewService(client, seq, cfg.Invoice.NumberPrefix)
	}
}

// newDispatcher runs invoice syncs in-process. When the Odoo factory is
// nil the dispatcher is nil too and donations are simply acknowledged.
func newDispatcher(cfg appconfig.Config, factory odoo.ServiceFactory, repo *postgres.Repository, prod *events.Producer) *odoo.Dispatcher {
	if factory == nil {
		return nil
	}
	dp := &odoo.Dispatcher{
		NewService: factory,
		Topic:      cfg.Kafka.DonationsTopic,
	}
	if repo != nil && repo.DB != nil {
		dp.Store = repo
	}
	if prod != nil {
		dp.Producer = prod
	}
	return dp
}

func registerWebServer(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger, shutdowner fx.Shutdowner, prod *events.Producer, repo *postgres.Repository, dp *odoo.Dispatcher) {
	httpServer := newWebServer(cfg, prod, repo, dp)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Printf("API listening on %s", cfg.HTTP.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Printf("API server error: %v", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	})
}

func newWebServer(cfg appconfig.Config, prod *events.Producer, repo *postgres.Repository, dp *odoo.Dispatcher) *http.Server {
	mux := http.NewServeMux()

	deps := internalapi.Deps{
		Store: repo,
		Topic: cfg.Kafka.DonationsTopic,
		Authz: authz.NewFromEnv(),
	}
	if prod != nil {
		deps.Producer = prod
	}
	if dp != nil {
		deps.Syncer = dp
	}
	internalapi.RegisterCampaignRoutes(mux, deps)
	internalapi.RegisterDonationRoutes(mux, deps)

	mux.Handle("/healthz", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}), "healthz"))

	return &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: withCORS(mux),
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	_ = godotenv.Load()
	if err := secrets.Bootstrap(context.Background()); err != nil {
		log.Printf("WARNING: secrets bootstrap failed: %v", err)
	}

	app := fx.New(
		fx.Provide(
			appconfig.Load,
			newLogger,
			newKafkaProducer,
			newSQLDB,
			func(db *sql.DB) *postgres.Repository { return postgres.NewRepository(db) },
			newOdooFactory,
			newDispatcher,
		),
		fx.Invoke(
			func(logger *log.Logger, cfg appconfig.Config) {
				logger.Printf("Starting %s...", cfg.ServiceName)
			},
			setupTelemetry,
			registerWebServer,
		),
	)

	app.Run()
}
