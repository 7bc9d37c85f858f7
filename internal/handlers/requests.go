package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prudhvinik1/possync/internal/models"
)

const maxBodyBytes = 1 << 20

type DocumentOperation string

const (
	OperationInsert DocumentOperation = "insert"
	OperationUpdate DocumentOperation = "update"
	OperationDelete DocumentOperation = "delete"
)

type TableEvent string

const (
	EventRowCreated TableEvent = "row.created"
	EventRowUpdated TableEvent = "row.updated"
	EventRowDeleted TableEvent = "row.deleted"
)

// DocumentChangeRequest is the body of the MongoDB change endpoint.
type DocumentChangeRequest struct {
	Collection string            `json:"collection"`
	Operation  DocumentOperation `json:"operation"`
	Document   map[string]any    `json:"document,omitempty"`
	ExternalID any               `json:"externalId,omitempty"`
}

// TableWebhookRequest is the body NocoDB posts to the webhook endpoint.
type TableWebhookRequest struct {
	Table string         `json:"table"`
	Event TableEvent     `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Change is a validated ingestion request ready for dispatch.
type Change struct {
	Collection string
	Delete     bool
	ExternalID string
	Document   *models.SyncDocument
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalid("Invalid payload")
		}
		return invalid(fmt.Sprintf("Invalid payload: %v", err))
	}
	return nil
}

func (req *DocumentChangeRequest) Validate() (*Change, error) {
	if req.Collection == "" || req.Operation == "" {
		return nil, invalid("Invalid payload")
	}
	switch req.Operation {
	case OperationDelete:
		id, ok := externalIDOf(req.ExternalID)
		if !ok {
			return nil, invalid("externalId required")
		}
		return &Change{Collection: req.Collection, Delete: true, ExternalID: id}, nil
	case OperationInsert, OperationUpdate:
		doc, err := documentFrom(req.Document, "document.externalId required")
		if err != nil {
			return nil, err
		}
		return &Change{Collection: req.Collection, ExternalID: doc.ExternalID, Document: doc}, nil
	default:
		return nil, invalid(fmt.Sprintf("invalid operation %q", req.Operation))
	}
}

func (req *TableWebhookRequest) Validate() (*Change, error) {
	if req.Table == "" || req.Event == "" {
		return nil, invalid("Invalid payload")
	}
	switch req.Event {
	case EventRowDeleted:
		id, ok := externalIDOf(req.Data[models.FieldExternalID])
		if !ok {
			return nil, invalid("externalId required")
		}
		return &Change{Collection: req.Table, Delete: true, ExternalID: id}, nil
	case EventRowCreated, EventRowUpdated:
		doc, err := documentFrom(req.Data, "data.externalId required")
		if err != nil {
			return nil, err
		}
		return &Change{Collection: req.Table, ExternalID: doc.ExternalID, Document: doc}, nil
	default:
		return nil, invalid(fmt.Sprintf("invalid event %q", req.Event))
	}
}

// documentFrom builds a SyncDocument from a raw payload, rejecting a missing
// externalId and an updatedAt that does not parse.
func documentFrom(raw map[string]any, missingMsg string) (*models.SyncDocument, error) {
	id, ok := externalIDOf(raw[models.FieldExternalID])
	if !ok {
		return nil, invalid(missingMsg)
	}
	payload := make(map[string]any, len(raw))
	for k, v := range raw {
		payload[k] = v
	}
	payload[models.FieldExternalID] = id

	doc, err := models.DocumentFromMap(payload)
	if err != nil {
		return nil, invalid(err.Error())
	}
	if doc.UpdatedAt != "" {
		if _, ok := doc.Timestamp(); !ok {
			return nil, invalid(fmt.Sprintf("updatedAt %q is not a valid timestamp", doc.UpdatedAt))
		}
	}
	return doc, nil
}

// externalIDOf accepts non-empty strings and integral numbers.
func externalIDOf(v any) (string, bool) {
	id, ok := models.ExternalIDString(v)
	return id, ok && id != ""
}
