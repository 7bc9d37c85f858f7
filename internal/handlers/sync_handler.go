package handlers

import (
	"context"
	"net/http"

	"github.com/prudhvinik1/possync/internal/metrics"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/services"
	"golang.org/x/exp/slog"
)

const (
	endpointDocumentChange = "mongo_change"
	endpointTableWebhook   = "nocodb_webhook"
)

// Syncer is the part of the sync service the HTTP layer depends on.
type Syncer interface {
	SyncFromDocumentStore(ctx context.Context, collection string, doc *models.SyncDocument) (*services.SyncResult, error)
	SyncFromTableService(ctx context.Context, collection string, doc *models.SyncDocument) (*services.SyncResult, error)
	DeleteSync(ctx context.Context, direction services.SyncDirection, collection, externalID string) (int64, error)
	Status(ctx context.Context) *services.StatusReport
	PingTableService(ctx context.Context) error
	RecentEvents(ctx context.Context, limit int) ([]*models.SyncEvent, error)
}

type SyncHandler struct {
	syncer  Syncer
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewSyncHandler(syncer Syncer, m *metrics.Metrics, log *slog.Logger) *SyncHandler {
	return &SyncHandler{
		syncer:  syncer,
		metrics: m,
		log:     log.With(slog.String("component", "sync_handler")),
	}
}

// DocumentChange handles POST /api/sync/mongo-change.
func (h *SyncHandler) DocumentChange(w http.ResponseWriter, r *http.Request) {
	var req DocumentChangeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, endpointDocumentChange, err)
		return
	}
	change, err := req.Validate()
	if err != nil {
		h.fail(w, endpointDocumentChange, err)
		return
	}

	if change.Delete {
		_, err = h.syncer.DeleteSync(r.Context(), services.DocumentStoreToTableService, change.Collection, change.ExternalID)
	} else {
		_, err = h.syncer.SyncFromDocumentStore(r.Context(), change.Collection, change.Document)
	}
	if err != nil {
		h.fail(w, endpointDocumentChange, err)
		return
	}
	h.ok(w, endpointDocumentChange)
}

// TableWebhook handles POST /api/sync/nocodb-webhook.
func (h *SyncHandler) TableWebhook(w http.ResponseWriter, r *http.Request) {
	var req TableWebhookRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, endpointTableWebhook, err)
		return
	}
	change, err := req.Validate()
	if err != nil {
		h.fail(w, endpointTableWebhook, err)
		return
	}

	if change.Delete {
		_, err = h.syncer.DeleteSync(r.Context(), services.TableServiceToDocumentStore, change.Collection, change.ExternalID)
	} else {
		_, err = h.syncer.SyncFromTableService(r.Context(), change.Collection, change.Document)
	}
	if err != nil {
		h.fail(w, endpointTableWebhook, err)
		return
	}
	h.ok(w, endpointTableWebhook)
}

func (h *SyncHandler) ok(w http.ResponseWriter, endpoint string) {
	h.metrics.ObserveIngest(endpoint, http.StatusOK)
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

func (h *SyncHandler) fail(w http.ResponseWriter, endpoint string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("ingestion failed", slog.String("endpoint", endpoint), slog.Any("error", err))
	} else {
		h.log.Debug("ingestion rejected", slog.String("endpoint", endpoint), slog.String("reason", err.Error()))
	}
	h.metrics.ObserveIngest(endpoint, code)
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
