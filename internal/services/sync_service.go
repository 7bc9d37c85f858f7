package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prudhvinik1/possync/internal/metrics"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/registry"
	"github.com/prudhvinik1/possync/internal/repositories"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidDocument = errors.New("invalid document")

type SyncDirection string

const (
	DocumentStoreToTableService SyncDirection = "document_store_to_table_service"
	TableServiceToDocumentStore SyncDirection = "table_service_to_document_store"
)

func (d SyncDirection) Valid() bool {
	return d == DocumentStoreToTableService || d == TableServiceToDocumentStore
}

// producer is the source stamped on documents travelling in this direction.
func (d SyncDirection) producer() models.Source {
	if d == DocumentStoreToTableService {
		return models.SourceDocumentStore
	}
	return models.SourceTableService
}

type SyncConfig struct {
	Resolver ResolverConfig
	// ResolveDirections lists the directions that read the target and run
	// the resolver before writing. The others push directly.
	ResolveDirections []SyncDirection
	StrictSchema      bool
	Now               func() time.Time
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Resolver:          DefaultResolverConfig(),
		ResolveDirections: []SyncDirection{TableServiceToDocumentStore},
	}
}

type SyncResult struct {
	Outcome  models.SyncOutcome
	Document *models.SyncDocument
}

// StatusReport summarizes the reachability of both stores.
type StatusReport struct {
	DocumentStoreOK    bool
	DocumentStoreError string
	TableServiceOK     bool
	TableServiceError  string
	ConfiguredTables   map[string]bool
}

type SyncService struct {
	documents repositories.MirrorStore
	tables    repositories.MirrorStore
	registry  *registry.Registry
	resolver  *ConflictResolver
	locker    repositories.RecordLocker
	events    repositories.SyncEventRepository
	metrics   *metrics.Metrics
	log       *slog.Logger

	resolveInto map[SyncDirection]bool
	strict      bool
	now         func() time.Time
}

type SyncDeps struct {
	Documents repositories.MirrorStore
	Tables    repositories.MirrorStore
	Registry  *registry.Registry
	Locker    repositories.RecordLocker
	// Events and Metrics are optional.
	Events  repositories.SyncEventRepository
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

func NewSyncService(deps SyncDeps, cfg SyncConfig) (*SyncService, error) {
	if deps.Documents == nil || deps.Tables == nil || deps.Registry == nil {
		return nil, errors.New("document store, table service and registry are required")
	}
	resolver, err := NewConflictResolver(cfg.Resolver)
	if err != nil {
		return nil, err
	}
	if deps.Locker == nil {
		deps.Locker = repositories.NewLocalRecordLocker()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	resolveInto := make(map[SyncDirection]bool, len(cfg.ResolveDirections))
	for _, d := range cfg.ResolveDirections {
		if !d.Valid() {
			return nil, fmt.Errorf("unknown sync direction %q", d)
		}
		resolveInto[d] = true
	}

	return &SyncService{
		documents:   deps.Documents,
		tables:      deps.Tables,
		registry:    deps.Registry,
		resolver:    resolver,
		locker:      deps.Locker,
		events:      deps.Events,
		metrics:     deps.Metrics,
		log:         deps.Log.With(slog.String("component", "sync_service")),
		resolveInto: resolveInto,
		strict:      cfg.StrictSchema,
		now:         cfg.Now,
	}, nil
}

// SyncFromDocumentStore pushes a MongoDB change into NocoDB.
func (s *SyncService) SyncFromDocumentStore(ctx context.Context, collection string, doc *models.SyncDocument) (*SyncResult, error) {
	return s.SyncInto(ctx, DocumentStoreToTableService, collection, doc)
}

// SyncFromTableService applies a NocoDB change to MongoDB through the resolver.
func (s *SyncService) SyncFromTableService(ctx context.Context, collection string, doc *models.SyncDocument) (*SyncResult, error) {
	return s.SyncInto(ctx, TableServiceToDocumentStore, collection, doc)
}

// SyncInto is the single upsert path for both directions:
// lock -> (read target -> resolve) -> write.
func (s *SyncService) SyncInto(ctx context.Context, direction SyncDirection, collection string, doc *models.SyncDocument) (*SyncResult, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("unknown sync direction %q", direction)
	}
	if doc == nil || doc.ExternalID == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, models.ErrMissingExternalID)
	}

	target, location, err := s.target(direction, collection)
	if err != nil {
		s.metrics.ObserveFailure(string(direction), collection)
		return nil, err
	}

	incoming := doc.WithDefaults(direction.producer(), s.now())
	if err := s.validate(collection, incoming); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lockKey(collection, incoming.ExternalID))
	if err != nil {
		s.metrics.ObserveFailure(string(direction), collection)
		return nil, err
	}
	defer unlock()

	result, err := s.apply(ctx, direction, target, location, incoming)
	if err != nil {
		s.metrics.ObserveFailure(string(direction), collection)
		s.log.Error("sync failed",
			slog.String("direction", string(direction)),
			slog.String("collection", collection),
			slog.String("externalId", incoming.ExternalID),
			slog.Any("error", err),
		)
		return nil, err
	}

	s.record(ctx, direction, collection, incoming.ExternalID, models.OperationUpsert, result.Outcome)
	return result, nil
}

func (s *SyncService) apply(ctx context.Context, direction SyncDirection, target repositories.MirrorStore, location string, incoming *models.SyncDocument) (*SyncResult, error) {
	if s.resolveInto[direction] {
		existing, err := lookup(ctx, target, location, incoming.ExternalID)
		if err != nil {
			return nil, err
		}
		if s.resolver.Decide(existing, incoming) == KeepExisting {
			// the stored record already is the winner; nothing to write
			return &SyncResult{Outcome: models.OutcomeKeptExisting, Document: existing}, nil
		}
	}

	if err := target.UpsertByExternalID(ctx, location, incoming); err != nil {
		return nil, err
	}
	return &SyncResult{Outcome: models.OutcomeAppliedIncoming, Document: incoming}, nil
}

// DeleteSync removes the record from the store the direction points at.
// A missing record is not an error; it reports zero deleted.
func (s *SyncService) DeleteSync(ctx context.Context, direction SyncDirection, collection, externalID string) (int64, error) {
	if !direction.Valid() {
		return 0, fmt.Errorf("unknown sync direction %q", direction)
	}
	if externalID == "" {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDocument, models.ErrMissingExternalID)
	}

	target, location, err := s.target(direction, collection)
	if err != nil {
		s.metrics.ObserveFailure(string(direction), collection)
		return 0, err
	}

	unlock, err := s.locker.Lock(ctx, lockKey(collection, externalID))
	if err != nil {
		s.metrics.ObserveFailure(string(direction), collection)
		return 0, err
	}
	defer unlock()

	deleted, err := target.DeleteByExternalID(ctx, location, externalID)
	if err != nil {
		s.metrics.ObserveFailure(string(direction), collection)
		return 0, err
	}

	outcome := models.OutcomeDeleted
	if deleted == 0 {
		outcome = models.OutcomeNotFound
	}
	s.record(ctx, direction, collection, externalID, models.OperationDelete, outcome)
	return deleted, nil
}

// GetDocumentByExternalID returns nil when MongoDB has no such record.
func (s *SyncService) GetDocumentByExternalID(ctx context.Context, collection, externalID string) (*models.SyncDocument, error) {
	name, err := s.registry.DocumentCollection(collection)
	if err != nil {
		return nil, err
	}
	return lookup(ctx, s.documents, name, externalID)
}

// GetTableRowByExternalID returns nil when NocoDB has no such row.
func (s *SyncService) GetTableRowByExternalID(ctx context.Context, collection, externalID string) (*models.SyncDocument, error) {
	path, err := s.registry.TablePath(collection)
	if err != nil {
		return nil, err
	}
	return lookup(ctx, s.tables, path, externalID)
}

// Status pings both stores concurrently.
func (s *SyncService) Status(ctx context.Context) *StatusReport {
	report := &StatusReport{ConfiguredTables: s.registry.Configured()}

	var g errgroup.Group
	g.Go(func() error {
		if err := s.documents.Ping(ctx); err != nil {
			report.DocumentStoreError = err.Error()
			return nil
		}
		report.DocumentStoreOK = true
		return nil
	})
	g.Go(func() error {
		if err := s.tables.Ping(ctx); err != nil {
			report.TableServiceError = err.Error()
			return nil
		}
		report.TableServiceOK = true
		return nil
	})
	g.Wait()

	return report
}

// PingTableService is used by the NocoDB health endpoint.
func (s *SyncService) PingTableService(ctx context.Context) error {
	return s.tables.Ping(ctx)
}

// RecentEvents returns the newest ledger rows, or nothing without a ledger.
func (s *SyncService) RecentEvents(ctx context.Context, limit int) ([]*models.SyncEvent, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.Recent(ctx, limit)
}

func (s *SyncService) target(direction SyncDirection, collection string) (repositories.MirrorStore, string, error) {
	if direction == DocumentStoreToTableService {
		path, err := s.registry.TablePath(collection)
		if err != nil {
			return nil, "", err
		}
		return s.tables, path, nil
	}
	name, err := s.registry.DocumentCollection(collection)
	if err != nil {
		return nil, "", err
	}
	return s.documents, name, nil
}

func (s *SyncService) validate(collection string, doc *models.SyncDocument) error {
	if !doc.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidDocument, doc.Source)
	}
	if !s.strict {
		return nil
	}
	c, err := s.registry.Lookup(collection)
	if err != nil {
		return err
	}
	if err := models.DecodeEntity(doc, c.NewEntity()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// record appends to the ledger. Failures are logged and never fail the sync.
func (s *SyncService) record(ctx context.Context, direction SyncDirection, collection, externalID string, op models.SyncOperation, outcome models.SyncOutcome) {
	s.metrics.ObserveSync(string(direction), collection, string(outcome))
	s.log.Debug("sync processed",
		slog.String("direction", string(direction)),
		slog.String("collection", collection),
		slog.String("externalId", externalID),
		slog.String("operation", string(op)),
		slog.String("outcome", string(outcome)),
	)

	if s.events == nil {
		return
	}
	event := &models.SyncEvent{
		Direction:  string(direction),
		Collection: collection,
		ExternalID: externalID,
		Operation:  op,
		Outcome:    outcome,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.log.Warn("failed to append sync event", slog.Any("error", err))
	}
}

func lookup(ctx context.Context, store repositories.MirrorStore, location, externalID string) (*models.SyncDocument, error) {
	doc, err := store.GetByExternalID(ctx, location, externalID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func lockKey(collection, externalID string) string {
	return collection + "/" + externalID
}
