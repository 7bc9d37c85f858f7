package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/prudhvinik1/possync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTablePath = "/api/v2/tables/chef"

// fakeNoco serves the subset of the NocoDB rows API the repository uses.
type fakeNoco struct {
	mu     sync.Mutex
	rows   map[int]map[string]any
	nextID int
	calls  []string
	token  string
}

func newFakeNoco(token string) *fakeNoco {
	return &fakeNoco{rows: map[int]map[string]any{}, nextID: 1, token: token}
}

func (f *fakeNoco) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	if r.Header.Get("xc-auth") != f.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rowsPath := testTablePath + "/rows"
	switch {
	case r.URL.Path == rowsPath && r.Method == http.MethodGet:
		externalID := strings.TrimPrefix(r.URL.Query().Get("where"), "externalId.eq.")
		list := []map[string]any{}
		for id := 1; id < f.nextID; id++ {
			if row, ok := f.rows[id]; ok && fmt.Sprint(row["externalId"]) == externalID {
				list = append(list, row)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"list": list})
	case r.URL.Path == rowsPath && r.Method == http.MethodPost:
		var row map[string]any
		json.NewDecoder(r.Body).Decode(&row)
		row["id"] = float64(f.nextID)
		f.rows[f.nextID] = row
		f.nextID++
		json.NewEncoder(w).Encode(row)
	case strings.HasPrefix(r.URL.Path, rowsPath+"/"):
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, rowsPath+"/"))
		row, ok := f.rows[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodDelete {
			delete(f.rows, id)
			w.WriteHeader(http.StatusOK)
			return
		}
		var patch map[string]any
		json.NewDecoder(r.Body).Decode(&patch)
		for k, v := range patch {
			row[k] = v
		}
		json.NewEncoder(w).Encode(row)
	case r.URL.Path == "/":
		w.Write([]byte(`{"ok":true}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestNocoRepo(t *testing.T) (*NocoTableRepository, *fakeNoco) {
	fake := newFakeNoco("secret-token")
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	repo, err := NewNocoTableRepository(server.URL, "secret-token", server.Client())
	require.NoError(t, err)
	return repo, fake
}

func TestNocoTableRepository_UpsertCreatesThenUpdates(t *testing.T) {
	repo, fake := newTestNocoRepo(t)
	ctx := context.Background()

	doc := &models.SyncDocument{
		ExternalID: "ord-1",
		Source:     models.SourceDocumentStore,
		UpdatedAt:  "2024-01-01T10:00:00Z",
		Fields:     map[string]any{"status": "queued"},
	}

	// ACT: first upsert inserts with externalId included
	require.NoError(t, repo.UpsertByExternalID(ctx, testTablePath, doc))
	require.Len(t, fake.rows, 1)
	assert.Equal(t, "ord-1", fake.rows[1]["externalId"])

	// ACT: second upsert patches the same row
	doc.Fields["status"] = "ready"
	require.NoError(t, repo.UpsertByExternalID(ctx, testTablePath, doc))

	// ASSERT
	require.Len(t, fake.rows, 1, "upsert must not duplicate rows")
	assert.Equal(t, "ready", fake.rows[1]["status"])
	assert.Contains(t, fake.calls, "PATCH "+testTablePath+"/rows/1")
}

func TestNocoTableRepository_GetByExternalID(t *testing.T) {
	repo, fake := newTestNocoRepo(t)
	ctx := context.Background()
	fake.rows[1] = map[string]any{"id": float64(1), "externalId": "w-1", "action": "seat", "CreatedAt": "x", "source": "table_service"}
	fake.nextID = 2

	doc, err := repo.GetByExternalID(ctx, testTablePath, "w-1")

	require.NoError(t, err)
	assert.Equal(t, "w-1", doc.ExternalID)
	assert.Equal(t, models.SourceTableService, doc.Source)
	assert.Equal(t, map[string]any{"action": "seat"}, doc.Fields)

	_, err = repo.GetByExternalID(ctx, testTablePath, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNocoTableRepository_GetByNumericExternalID(t *testing.T) {
	// ARRANGE: a number column sends externalId as a JSON number
	repo, fake := newTestNocoRepo(t)
	fake.rows[1] = map[string]any{"Id": float64(1), "externalId": float64(42), "method": "cash"}
	fake.nextID = 2

	// ACT
	doc, err := repo.GetByExternalID(context.Background(), testTablePath, "42")

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "42", doc.ExternalID)
	assert.Equal(t, map[string]any{"method": "cash"}, doc.Fields)
}

func TestNocoTableRepository_EndpointJoining(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{"list":[]}`))
	}))
	defer server.Close()
	ctx := context.Background()

	prefixed, err := NewNocoTableRepository(server.URL+"/noco/", "token", server.Client())
	require.NoError(t, err)
	_, err = prefixed.GetByExternalID(ctx, "/api/v2/tables/chef", "ord-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = prefixed.GetByExternalID(ctx, server.URL+"/other/api/v2/tables/chef", "ord-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, prefixed.Ping(ctx))

	assert.Equal(t, []string{
		"/noco/api/v2/tables/chef/rows",
		"/other/api/v2/tables/chef/rows",
		"/noco/",
	}, paths)
}

func TestNocoTableRepository_DeleteMissingReportsZero(t *testing.T) {
	repo, _ := newTestNocoRepo(t)

	deleted, err := repo.DeleteByExternalID(context.Background(), testTablePath, "nope")

	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestNocoTableRepository_DeleteExisting(t *testing.T) {
	repo, fake := newTestNocoRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertByExternalID(ctx, testTablePath, &models.SyncDocument{ExternalID: "t-1"}))

	deleted, err := repo.DeleteByExternalID(ctx, testTablePath, "t-1")

	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Empty(t, fake.rows)
}

func TestNocoTableRepository_ErrorsCarryStatus(t *testing.T) {
	fake := newFakeNoco("other-token")
	server := httptest.NewServer(fake)
	defer server.Close()
	repo, err := NewNocoTableRepository(server.URL, "wrong", server.Client())
	require.NoError(t, err)

	_, err = repo.GetByExternalID(context.Background(), testTablePath, "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "NocoDB error 401")
}

func TestNocoTableRepository_NotConfigured(t *testing.T) {
	repo, err := NewNocoTableRepository("", "", nil)
	require.NoError(t, err)

	err = repo.Ping(context.Background())

	assert.ErrorIs(t, err, ErrTableServiceNotConfigured)
}

func TestDecodeRows(t *testing.T) {
	rows, err := decodeRows([]byte(`[{"id":1}]`))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = decodeRows([]byte(`{"list":[{"id":1},{"id":2}],"pageInfo":{}}`))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	id, ok := rowIDOf(map[string]any{"row_id": "abc"})
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}
