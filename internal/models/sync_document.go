package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

type Source string

const (
	SourceDocumentStore Source = "document_store"
	SourceTableService  Source = "table_service"
)

func (s Source) Valid() bool {
	return s == "" || s == SourceDocumentStore || s == SourceTableService
}

// Reserved keys of the flat document shape.
const (
	FieldExternalID = "externalId"
	FieldSource     = "source"
	FieldUpdatedAt  = "updatedAt"
	FieldVersion    = "version"
)

var ErrMissingExternalID = errors.New("externalId is required")

// SyncDocument is the common shape shared by every mirrored entity. Fields
// holds the entity payload verbatim; the resolver always picks a whole
// document, never a field-level merge.
type SyncDocument struct {
	ExternalID string
	Source     Source
	UpdatedAt  string
	Version    *int64
	Fields     map[string]any
}

// DocumentFromMap splits a flat payload into the reserved keys and the rest.
func DocumentFromMap(m map[string]any) (*SyncDocument, error) {
	doc := &SyncDocument{Fields: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case FieldExternalID:
			s, ok := ExternalIDString(v)
			if !ok {
				return nil, fmt.Errorf("externalId must be a string or an integer, got %T", v)
			}
			doc.ExternalID = s
		case FieldSource:
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("source must be a string, got %T", v)
			}
			doc.Source = Source(s)
		case FieldUpdatedAt:
			switch ts := v.(type) {
			case nil:
			case string:
				doc.UpdatedAt = ts
			case time.Time:
				doc.UpdatedAt = ts.UTC().Format(time.RFC3339Nano)
			default:
				return nil, fmt.Errorf("updatedAt must be a string, got %T", v)
			}
		case FieldVersion:
			if n, ok := toInt64(v); ok {
				doc.Version = &n
			} else if v != nil {
				// not a counter we understand; keep it as payload
				doc.Fields[k] = v
			}
		default:
			doc.Fields[k] = v
		}
	}
	if doc.ExternalID == "" {
		return nil, ErrMissingExternalID
	}
	return doc, nil
}

// Map returns the flat representation written to either store.
func (d *SyncDocument) Map() map[string]any {
	m := make(map[string]any, len(d.Fields)+4)
	for k, v := range d.Fields {
		m[k] = v
	}
	m[FieldExternalID] = d.ExternalID
	if d.Source != "" {
		m[FieldSource] = string(d.Source)
	}
	if d.UpdatedAt != "" {
		m[FieldUpdatedAt] = d.UpdatedAt
	}
	if d.Version != nil {
		m[FieldVersion] = *d.Version
	}
	return m
}

// WithDefaults returns a copy stamped with source and updatedAt where the
// producer left them empty. An existing source is kept so that echoes of a
// previous sync carry their origin.
func (d *SyncDocument) WithDefaults(source Source, now time.Time) *SyncDocument {
	out := d.Clone()
	if out.Source == "" {
		out.Source = source
	}
	if out.UpdatedAt == "" {
		out.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (d *SyncDocument) Clone() *SyncDocument {
	out := *d
	out.Fields = make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	if d.Version != nil {
		v := *d.Version
		out.Version = &v
	}
	return &out
}

// Timestamp parses UpdatedAt. ok is false for empty or malformed values.
func (d *SyncDocument) Timestamp() (time.Time, bool) {
	return ParseTimestamp(d.UpdatedAt)
}

func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (d SyncDocument) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

func (d *SyncDocument) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	doc, err := DocumentFromMap(m)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// ExternalIDString converts an externalId value to its string form. Number
// columns in NocoDB and numeric BSON values arrive as numbers; only integral
// ones are accepted.
func ExternalIDString(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	n, ok := toInt64(v)
	if !ok {
		return "", false
	}
	return strconv.FormatInt(n, 10), true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
