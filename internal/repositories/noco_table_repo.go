package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prudhvinik1/possync/internal/models"
)

const (
	nocoAuthHeader = "xc-auth"
	nocoRowsSuffix = "/rows"
	nocoTimeout    = 15 * time.Second
)

var ErrTableServiceNotConfigured = errors.New("NocoDB configuration missing")

// row id column names, in lookup order
var nocoRowIDKeys = []string{"id", "_id", "row_id", "Id"}

// system columns NocoDB adds to every row
var nocoSystemKeys = []string{"CreatedAt", "UpdatedAt"}

type NocoTableRepository struct {
	baseURL *url.URL
	token   string
	client  *http.Client
}

// NewNocoTableRepository never fails on empty settings; calls report
// ErrTableServiceNotConfigured instead so the process can still boot.
func NewNocoTableRepository(baseURL, token string, client *http.Client) (*NocoTableRepository, error) {
	if client == nil {
		client = &http.Client{Timeout: nocoTimeout}
	}
	repo := &NocoTableRepository{token: token, client: client}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("error parsing NocoDB base URL: %w", err)
		}
		repo.baseURL = u
	}
	return repo, nil
}

func (r *NocoTableRepository) GetByExternalID(ctx context.Context, tablePath, externalID string) (*models.SyncDocument, error) {
	row, err := r.findRow(ctx, tablePath, externalID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}

	fields := make(map[string]any, len(row))
	for k, v := range row {
		fields[k] = v
	}
	for _, k := range append(nocoRowIDKeys, nocoSystemKeys...) {
		delete(fields, k)
	}
	doc, err := models.DocumentFromMap(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}
	return doc, nil
}

// UpsertByExternalID patches the first row matching externalId, or creates
// a new row carrying externalId.
func (r *NocoTableRepository) UpsertByExternalID(ctx context.Context, tablePath string, doc *models.SyncDocument) error {
	row, err := r.findRow(ctx, tablePath, doc.ExternalID)
	if err != nil {
		return err
	}

	if row != nil {
		rowID, ok := rowIDOf(row)
		if !ok {
			return fmt.Errorf("NocoDB row for %s has no id column", doc.ExternalID)
		}
		_, err = r.request(ctx, http.MethodPatch, tablePath+nocoRowsSuffix+"/"+rowID, nil, doc.Map())
		if err != nil {
			return fmt.Errorf("failed to update row: %w", err)
		}
		return nil
	}

	if _, err := r.request(ctx, http.MethodPost, tablePath+nocoRowsSuffix, nil, doc.Map()); err != nil {
		return fmt.Errorf("failed to create row: %w", err)
	}
	return nil
}

// DeleteByExternalID reports zero deleted when no row matches.
func (r *NocoTableRepository) DeleteByExternalID(ctx context.Context, tablePath, externalID string) (int64, error) {
	row, err := r.findRow(ctx, tablePath, externalID)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	rowID, ok := rowIDOf(row)
	if !ok {
		return 0, fmt.Errorf("NocoDB row for %s has no id column", externalID)
	}
	if _, err := r.request(ctx, http.MethodDelete, tablePath+nocoRowsSuffix+"/"+rowID, nil, nil); err != nil {
		return 0, fmt.Errorf("failed to delete row: %w", err)
	}
	return 1, nil
}

func (r *NocoTableRepository) Ping(ctx context.Context) error {
	_, err := r.request(ctx, http.MethodGet, "", nil, nil)
	return err
}

func (r *NocoTableRepository) findRow(ctx context.Context, tablePath, externalID string) (map[string]any, error) {
	query := url.Values{}
	query.Set("where", fmt.Sprintf("%s.eq.%s", models.FieldExternalID, externalID))

	body, err := r.request(ctx, http.MethodGet, tablePath+nocoRowsSuffix, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *NocoTableRepository) request(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	if r.baseURL == nil || r.token == "" {
		return nil, ErrTableServiceNotConfigured
	}

	target, err := r.endpoint(path)
	if err != nil {
		return nil, err
	}
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(nocoAuthHeader, r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("NocoDB request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read NocoDB response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("NocoDB error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// endpoint appends path to the base URL, keeping any prefix the base carries
// (e.g. NocoDB served under /noco). A table path configured as a full URL is
// used as is.
func (r *NocoTableRepository) endpoint(path string) (*url.URL, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("error parsing NocoDB table URL: %w", err)
		}
		return u, nil
	}
	target := *r.baseURL
	target.RawPath = ""
	if path != "" {
		target.Path = strings.TrimRight(r.baseURL.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}
	return &target, nil
}

// decodeRows accepts both a bare array and the paged {"list": [...]} shape.
func decodeRows(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var rows []map[string]any
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode rows: %w", err)
		}
		return rows, nil
	}
	var paged struct {
		List []map[string]any `json:"list"`
	}
	if err := json.Unmarshal(trimmed, &paged); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return paged.List, nil
}

func rowIDOf(row map[string]any) (string, bool) {
	for _, k := range nocoRowIDKeys {
		switch v := row[k].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			return fmt.Sprintf("%.0f", v), true
		}
	}
	return "", false
}
