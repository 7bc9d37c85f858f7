package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prudhvinik1/possync/internal/logger"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/registry"
	"github.com/prudhvinik1/possync/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory MirrorStore keyed by location and externalId.
type memStore struct {
	mu      sync.Mutex
	records map[string]map[string]map[string]any
	upserts int
	pingErr error
}

func newMemStore() *memStore {
	return &memStore{records: map[string]map[string]map[string]any{}}
}

func (m *memStore) GetByExternalID(_ context.Context, location, externalID string) (*models.SyncDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.records[location][externalID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return models.DocumentFromMap(raw)
}

func (m *memStore) UpsertByExternalID(_ context.Context, location string, doc *models.SyncDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[location] == nil {
		m.records[location] = map[string]map[string]any{}
	}
	m.records[location][doc.ExternalID] = doc.Map()
	m.upserts++
	return nil
}

func (m *memStore) DeleteByExternalID(_ context.Context, location, externalID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[location][externalID]; !ok {
		return 0, nil
	}
	delete(m.records[location], externalID)
	return 1, nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) get(location, externalID string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[location][externalID]
}

// MockMirrorStore is used where a store has to fail.
type MockMirrorStore struct {
	mock.Mock
}

func (m *MockMirrorStore) GetByExternalID(ctx context.Context, location, externalID string) (*models.SyncDocument, error) {
	args := m.Called(ctx, location, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncDocument), args.Error(1)
}

func (m *MockMirrorStore) UpsertByExternalID(ctx context.Context, location string, doc *models.SyncDocument) error {
	args := m.Called(ctx, location, doc)
	return args.Error(0)
}

func (m *MockMirrorStore) DeleteByExternalID(ctx context.Context, location, externalID string) (int64, error) {
	args := m.Called(ctx, location, externalID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMirrorStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type memEvents struct {
	mu     sync.Mutex
	events []*models.SyncEvent
	err    error
}

func (e *memEvents) Append(_ context.Context, event *models.SyncEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

func (e *memEvents) Recent(_ context.Context, limit int) ([]*models.SyncEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.SyncEvent, 0, len(e.events))
	for i := len(e.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.events[i])
	}
	return out, nil
}

const chefTable = "/api/v2/tables/chef"

var fixedNow = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *SyncService
	documents *memStore
	tables    *memStore
	events    *memEvents
}

func newFixture(t *testing.T, mutate func(*SyncConfig)) *fixture {
	t.Helper()
	f := &fixture{documents: newMemStore(), tables: newMemStore(), events: &memEvents{}}
	cfg := DefaultSyncConfig()
	cfg.Now = func() time.Time { return fixedNow }
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewSyncService(SyncDeps{
		Documents: f.documents,
		Tables:    f.tables,
		Registry:  registry.New("/api/v2/tables/waiter", chefTable, ""),
		Events:    f.events,
		Log:       logger.Discard(),
	}, cfg)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func payload(t *testing.T, m map[string]any) *models.SyncDocument {
	t.Helper()
	d, err := models.DocumentFromMap(m)
	require.NoError(t, err)
	return d
}

func TestSyncFromTableService_NoExistingRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	data := map[string]any{
		"externalId": "ord-1",
		"status":     "ready",
		"items":      []any{map[string]any{"sku": "A1", "qty": float64(2)}},
		"updatedAt":  "2024-01-01T10:00:00Z",
	}

	// ACT
	result, err := f.svc.SyncFromTableService(ctx, registry.ChefOrders, payload(t, data))

	// ASSERT: the stored record is the payload verbatim plus source
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAppliedIncoming, result.Outcome)
	want := map[string]any{
		"externalId": "ord-1",
		"status":     "ready",
		"items":      []any{map[string]any{"sku": "A1", "qty": float64(2)}},
		"updatedAt":  "2024-01-01T10:00:00Z",
		"source":     "table_service",
	}
	assert.Equal(t, want, f.documents.get("chef_orders", "ord-1"))
}

func TestSyncFromTableService_PriorityOverridesRecency(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.documents.records["chef_orders"] = map[string]map[string]any{
		"ord-1": {"externalId": "ord-1", "status": "served", "updatedAt": "2024-01-01T09:00:00Z", "source": "document_store"},
	}

	result, err := f.svc.SyncFromTableService(ctx, registry.ChefOrders, payload(t, map[string]any{
		"externalId": "ord-1", "status": "ready", "updatedAt": "2024-01-01T08:00:00Z",
	}))

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAppliedIncoming, result.Outcome)
	stored := f.documents.get("chef_orders", "ord-1")
	assert.Equal(t, "ready", stored["status"])
	assert.Equal(t, "2024-01-01T08:00:00Z", stored["updatedAt"])
	assert.Equal(t, "table_service", stored["source"])
}

func TestSyncFromTableService_KeepsNewerSameSourceRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.documents.records["chef_orders"] = map[string]map[string]any{
		"ord-1": {"externalId": "ord-1", "status": "served", "updatedAt": "2024-01-01T09:00:00Z", "source": "table_service"},
	}

	result, err := f.svc.SyncFromTableService(ctx, registry.ChefOrders, payload(t, map[string]any{
		"externalId": "ord-1", "status": "ready", "updatedAt": "2024-01-01T08:00:00Z",
	}))

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeKeptExisting, result.Outcome)
	assert.Equal(t, "served", f.documents.get("chef_orders", "ord-1")["status"])
	assert.Equal(t, 0, f.documents.upserts, "existing winner is not rewritten")
}

func TestSyncFromTableService_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	data := map[string]any{"externalId": "ord-1", "status": "ready", "updatedAt": "2024-01-01T10:00:00Z"}

	_, err := f.svc.SyncFromTableService(ctx, registry.ChefOrders, payload(t, data))
	require.NoError(t, err)
	once := f.documents.get("chef_orders", "ord-1")

	_, err = f.svc.SyncFromTableService(ctx, registry.ChefOrders, payload(t, data))
	require.NoError(t, err)

	assert.Equal(t, once, f.documents.get("chef_orders", "ord-1"))
	assert.Len(t, f.documents.records["chef_orders"], 1)
}

func TestSyncFromTableService_StampsMissingUpdatedAt(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.SyncFromTableService(context.Background(), registry.WaiterOps, payload(t, map[string]any{
		"externalId": "w-1", "action": "seat",
	}))

	require.NoError(t, err)
	assert.Equal(t, "2024-02-01T12:00:00Z", f.documents.get("waiter_ops", "w-1")["updatedAt"])
}

func TestSyncFromDocumentStore_DirectPush(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	// a table-service row that would win any resolution
	f.tables.records[chefTable] = map[string]map[string]any{
		"ord-1": {"externalId": "ord-1", "status": "ready", "updatedAt": "2030-01-01T00:00:00Z", "source": "table_service"},
	}

	result, err := f.svc.SyncFromDocumentStore(ctx, registry.ChefOrders, payload(t, map[string]any{
		"externalId": "ord-1", "status": "served", "updatedAt": "2024-01-01T08:00:00Z",
	}))

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAppliedIncoming, result.Outcome)
	stored := f.tables.get(chefTable, "ord-1")
	assert.Equal(t, "served", stored["status"])
	assert.Equal(t, "document_store", stored["source"])
}

func TestSyncFromDocumentStore_ResolvesWhenBothDirectionsConfigured(t *testing.T) {
	f := newFixture(t, func(cfg *SyncConfig) {
		cfg.ResolveDirections = []SyncDirection{TableServiceToDocumentStore, DocumentStoreToTableService}
	})
	f.tables.records[chefTable] = map[string]map[string]any{
		"ord-1": {"externalId": "ord-1", "status": "ready", "updatedAt": "2024-01-01T07:00:00Z", "source": "table_service"},
	}

	result, err := f.svc.SyncFromDocumentStore(context.Background(), registry.ChefOrders, payload(t, map[string]any{
		"externalId": "ord-1", "status": "served", "updatedAt": "2024-01-01T08:00:00Z",
	}))

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeKeptExisting, result.Outcome)
	assert.Equal(t, "ready", f.tables.get(chefTable, "ord-1")["status"])
}

func TestSyncFromDocumentStore_TableNotConfigured(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.SyncFromDocumentStore(context.Background(), registry.CashierTxns, payload(t, map[string]any{
		"externalId": "t-1",
	}))

	assert.ErrorIs(t, err, registry.ErrTableNotConfigured)
	assert.Zero(t, f.tables.upserts)
}

func TestSyncInto_UnknownCollection(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.SyncFromTableService(context.Background(), "menu_items", payload(t, map[string]any{"externalId": "m-1"}))

	assert.ErrorIs(t, err, registry.ErrUnknownCollection)
}

func TestSyncInto_StrictSchema(t *testing.T) {
	f := newFixture(t, func(cfg *SyncConfig) { cfg.StrictSchema = true })

	_, err := f.svc.SyncFromTableService(context.Background(), registry.ChefOrders, payload(t, map[string]any{
		"externalId": "ord-1", "status": "burnt",
	}))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = f.svc.SyncFromTableService(context.Background(), registry.ChefOrders, payload(t, map[string]any{
		"externalId": "ord-1", "status": "ready", "items": []any{map[string]any{"sku": "A1", "qty": float64(2)}},
	}))
	assert.NoError(t, err)
}

func TestSyncInto_InvalidSource(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.SyncFromTableService(context.Background(), registry.ChefOrders, payload(t, map[string]any{
		"externalId": "ord-1", "source": "spreadsheet",
	}))

	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestSyncInto_StoreErrorPropagates(t *testing.T) {
	documents := new(MockMirrorStore)
	boom := errors.New("connection refused")
	documents.On("GetByExternalID", mock.Anything, "chef_orders", "ord-1").Return(nil, boom)

	events := &memEvents{}
	svc, err := NewSyncService(SyncDeps{
		Documents: documents,
		Tables:    newMemStore(),
		Registry:  registry.New("", chefTable, ""),
		Events:    events,
		Log:       logger.Discard(),
	}, DefaultSyncConfig())
	require.NoError(t, err)

	_, err = svc.SyncFromTableService(context.Background(), registry.ChefOrders, payload(t, map[string]any{"externalId": "ord-1"}))

	assert.ErrorIs(t, err, boom)
	documents.AssertNotCalled(t, "UpsertByExternalID", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, events.events, "failed syncs are not recorded")
}

func TestDeleteSync(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.tables.records[chefTable] = map[string]map[string]any{"ord-1": {"externalId": "ord-1"}}
	f.documents.records["chef_orders"] = map[string]map[string]any{"ord-2": {"externalId": "ord-2"}}

	deleted, err := f.svc.DeleteSync(ctx, DocumentStoreToTableService, registry.ChefOrders, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Nil(t, f.tables.get(chefTable, "ord-1"))

	deleted, err = f.svc.DeleteSync(ctx, TableServiceToDocumentStore, registry.ChefOrders, "ord-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Nil(t, f.documents.get("chef_orders", "ord-2"))
}

func TestDeleteSync_MissingRowIsNotAnError(t *testing.T) {
	f := newFixture(t, nil)

	deleted, err := f.svc.DeleteSync(context.Background(), DocumentStoreToTableService, registry.ChefOrders, "ghost")

	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, models.OutcomeNotFound, f.events.events[0].Outcome)
}

func TestDeleteSync_TableNotConfigured(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.DeleteSync(context.Background(), DocumentStoreToTableService, registry.CashierTxns, "t-1")

	assert.ErrorIs(t, err, registry.ErrTableNotConfigured)
}

func TestSyncService_RecordsLedger(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.SyncFromTableService(ctx, registry.ChefOrders, payload(t, map[string]any{"externalId": "ord-1"}))
	require.NoError(t, err)

	events, err := f.svc.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(TableServiceToDocumentStore), events[0].Direction)
	assert.Equal(t, "ord-1", events[0].ExternalID)
	assert.Equal(t, models.OperationUpsert, events[0].Operation)
	assert.Equal(t, fixedNow, events[0].CreatedAt)
}

func TestSyncService_LedgerFailureDoesNotFailSync(t *testing.T) {
	f := newFixture(t, nil)
	f.events.err = errors.New("disk full")

	_, err := f.svc.SyncFromTableService(context.Background(), registry.ChefOrders, payload(t, map[string]any{"externalId": "ord-1"}))

	require.NoError(t, err)
	assert.NotNil(t, f.documents.get("chef_orders", "ord-1"))
}

func TestSyncService_Lookups(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.documents.records["chef_orders"] = map[string]map[string]any{"ord-1": {"externalId": "ord-1", "status": "ready"}}

	got, err := f.svc.GetDocumentByExternalID(ctx, registry.ChefOrders, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "ready", got.Fields["status"])

	got, err = f.svc.GetDocumentByExternalID(ctx, registry.ChefOrders, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = f.svc.GetTableRowByExternalID(ctx, registry.ChefOrders, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.svc.GetTableRowByExternalID(ctx, registry.CashierTxns, "nope")
	assert.ErrorIs(t, err, registry.ErrTableNotConfigured)
}

func TestSyncService_Status(t *testing.T) {
	f := newFixture(t, nil)
	f.tables.pingErr = errors.New("NocoDB error 401: unauthorized")

	report := f.svc.Status(context.Background())

	assert.True(t, report.DocumentStoreOK)
	assert.False(t, report.TableServiceOK)
	assert.Contains(t, report.TableServiceError, "401")
	assert.Equal(t, map[string]bool{"waiter_ops": true, "chef_orders": true, "cashier_txns": false}, report.ConfiguredTables)
}

func TestSyncService_ConcurrentSameRecord(t *testing.T) {
	f := newFixture(t, func(cfg *SyncConfig) { cfg.Resolver.Policy = PolicyLastWriteWins })
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(minute int) {
			defer wg.Done()
			ts := time.Date(2024, 1, 1, 10, minute, 0, 0, time.UTC).Format(time.RFC3339)
			_, err := f.svc.SyncFromTableService(ctx, registry.ChefOrders, &models.SyncDocument{
				ExternalID: "ord-1",
				UpdatedAt:  ts,
				Fields:     map[string]any{"minute": minute},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// serialized read-resolve-write keeps the newest write
	assert.Equal(t, "2024-01-01T10:09:00Z", f.documents.get("chef_orders", "ord-1")["updatedAt"])
}

func TestNewSyncService_Validation(t *testing.T) {
	_, err := NewSyncService(SyncDeps{}, DefaultSyncConfig())
	assert.Error(t, err)

	cfg := DefaultSyncConfig()
	cfg.ResolveDirections = []SyncDirection{"sideways"}
	_, err = NewSyncService(SyncDeps{
		Documents: newMemStore(),
		Tables:    newMemStore(),
		Registry:  registry.New("", "", ""),
	}, cfg)
	assert.Error(t, err)
}
