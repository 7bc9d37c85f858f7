package handlers

import (
	"context"
	"net/http"

	"github.com/prudhvinik1/possync/internal/models"
	"golang.org/x/exp/slog"
)

const recentEventsLimit = 20

// Pinger is satisfied by the NocoDB MCP client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusOptions carries the optional extras of the status and health routes.
type StatusOptions struct {
	// MCP, when set, is pinged by the NocoDB health route.
	MCP Pinger
	// StatusEnv and HealthEnv report configuration presence, never values.
	StatusEnv map[string]bool
	HealthEnv map[string]any
}

type StatusHandler struct {
	syncer Syncer
	opts   StatusOptions
	log    *slog.Logger
}

func NewStatusHandler(syncer Syncer, opts StatusOptions, log *slog.Logger) *StatusHandler {
	return &StatusHandler{syncer: syncer, opts: opts, log: log.With(slog.String("component", "status_handler"))}
}

type statusResponse struct {
	Status             string              `json:"status"`
	DocumentStoreOK    bool                `json:"documentStoreOk"`
	DocumentStoreError string              `json:"documentStoreError,omitempty"`
	TableServiceOK     bool                `json:"tableServiceOk"`
	TableServiceError  string              `json:"tableServiceError,omitempty"`
	ConfiguredTables   map[string]bool     `json:"configuredTables"`
	Env                map[string]bool     `json:"env,omitempty"`
	RecentEvents       []*models.SyncEvent `json:"recentEvents"`
}

// SyncStatus handles GET /api/sync/status. It always answers 200; the
// per-store flags carry reachability.
func (h *StatusHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	report := h.syncer.Status(r.Context())

	events, err := h.syncer.RecentEvents(r.Context(), recentEventsLimit)
	if err != nil {
		h.log.Warn("failed to read recent sync events", slog.Any("error", err))
	}
	if events == nil {
		events = []*models.SyncEvent{}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:             "ok",
		DocumentStoreOK:    report.DocumentStoreOK,
		DocumentStoreError: report.DocumentStoreError,
		TableServiceOK:     report.TableServiceOK,
		TableServiceError:  report.TableServiceError,
		ConfiguredTables:   report.ConfiguredTables,
		Env:                h.opts.StatusEnv,
		RecentEvents:       events,
	})
}

type checkResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	MCP    *checkResult   `json:"mcp,omitempty"`
	Env    map[string]any `json:"env,omitempty"`
}

// TableServiceHealth handles GET /api/health/nocodb. The REST API must answer,
// and so must the MCP endpoint when one is configured.
func (h *StatusHandler) TableServiceHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Env: h.opts.HealthEnv}

	if err := h.syncer.PingTableService(r.Context()); err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
	}
	if h.opts.MCP != nil {
		resp.MCP = &checkResult{OK: true}
		if err := h.opts.MCP.Ping(r.Context()); err != nil {
			resp.MCP = &checkResult{Error: err.Error()}
			resp.Status = "error"
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, resp)
}
