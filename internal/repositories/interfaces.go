package repositories

import (
	"context"
	"errors"

	"github.com/prudhvinik1/possync/internal/models"
)

var ErrNotFound = errors.New("not found")

// MirrorStore is the narrow view the sync core has of either external store.
// location is a MongoDB collection name or a NocoDB table path.
type MirrorStore interface {
	GetByExternalID(ctx context.Context, location, externalID string) (*models.SyncDocument, error)
	UpsertByExternalID(ctx context.Context, location string, doc *models.SyncDocument) error
	DeleteByExternalID(ctx context.Context, location, externalID string) (int64, error)
	Ping(ctx context.Context) error
}

type SyncEventRepository interface {
	Append(ctx context.Context, event *models.SyncEvent) error
	Recent(ctx context.Context, limit int) ([]*models.SyncEvent, error)
}

// RecordLocker serializes read-resolve-write sequences for one record key.
type RecordLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
