package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prudhvinik1/possync/internal/config"
	"github.com/prudhvinik1/possync/internal/database"
	"github.com/prudhvinik1/possync/internal/metrics"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/registry"
	"github.com/prudhvinik1/possync/internal/repositories"
	"github.com/prudhvinik1/possync/internal/services"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/exp/slog"
)

// App holds the long-lived connections and the wired sync service shared by
// the HTTP server and the change-stream watcher.
type App struct {
	Config     *config.Config
	Log        *slog.Logger
	Registry   *registry.Registry
	Database   *mongo.Database
	Sync       *services.SyncService
	MCP        *repositories.NocoMCPClient
	Metrics    *metrics.Metrics
	Prometheus *prometheus.Registry

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Registry: registry.FromConfig(cfg)}

	mongoClient, err := database.NewMongoClient(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { mongoClient.Disconnect(context.Background()) })
	a.Database = mongoClient.Database(cfg.MongoDatabase)

	tables, err := repositories.NewNocoTableRepository(cfg.NocoBaseURL, cfg.NocoAPIToken, nil)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.NocoBaseURL == "" || cfg.NocoAPIToken == "" {
		log.Warn("NOCO_BASE_URL or NOCO_API_TOKEN not set; table service calls will fail")
	}

	a.MCP, err = repositories.NewNocoMCPClient(cfg.NocoMCPBaseURL, cfg.NocoMCPToken, nil)
	if err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.recordLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	events, err := a.eventRepository(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Prometheus = prometheus.NewRegistry()
	a.Prometheus.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Prometheus)

	a.Sync, err = services.NewSyncService(services.SyncDeps{
		Documents: repositories.NewMongoDocumentRepository(a.Database),
		Tables:    tables,
		Registry:  a.Registry,
		Locker:    locker,
		Events:    events,
		Metrics:   a.Metrics,
		Log:       log,
	}, SyncConfigFrom(cfg))
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// SyncConfigFrom translates the environment settings into the sync config.
func SyncConfigFrom(cfg *config.Config) services.SyncConfig {
	sc := services.DefaultSyncConfig()
	sc.Resolver = services.ResolverConfig{
		Policy: services.ConflictPolicy(cfg.ConflictPolicy),
		Priorities: map[models.Source]int{
			models.SourceTableService:  cfg.PriorityTableService,
			models.SourceDocumentStore: cfg.PriorityDocumentStore,
		},
	}
	if cfg.ResolveDirections == "both" {
		sc.ResolveDirections = []services.SyncDirection{
			services.TableServiceToDocumentStore,
			services.DocumentStoreToTableService,
		}
	}
	sc.StrictSchema = cfg.StrictSchema
	return sc
}

func (a *App) recordLocker(ctx context.Context) (repositories.RecordLocker, error) {
	if a.Config.RedisURL == "" {
		a.Log.Info("REDIS_URL not set; using in-process record locks")
		return repositories.NewLocalRecordLocker(), nil
	}
	client, err := database.NewRedisClient(ctx, a.Config.RedisURL)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { client.Close() })
	return repositories.NewRedisRecordLocker(client, a.Log), nil
}

func (a *App) eventRepository(ctx context.Context) (repositories.SyncEventRepository, error) {
	if a.Config.DatabaseURL != "" {
		if err := database.MigratePostgres(a.Config.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := database.NewPostgresPool(ctx, a.Config.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.onClose(pool.Close)
		return repositories.NewPostgresSyncEventRepository(pool), nil
	}
	if a.Config.SQLitePath == "" {
		a.Log.Info("no sync ledger configured")
		return nil, nil
	}
	db, err := database.OpenSQLite(a.Config.SQLitePath)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { db.Close() })
	return repositories.NewSQLiteSyncEventRepository(db), nil
}

// Migrate brings the configured ledger schema up to date without starting anything else.
func Migrate(cfg *config.Config) error {
	if cfg.DatabaseURL != "" {
		return database.MigratePostgres(cfg.DatabaseURL)
	}
	if cfg.SQLitePath == "" {
		return fmt.Errorf("neither DATABASE_URL nor SQLITE_PATH is set")
	}
	db, err := database.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return err
	}
	return db.Close()
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
