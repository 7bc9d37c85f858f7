package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/prudhvinik1/possync/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoDocumentRepository struct {
	db *mongo.Database
}

func NewMongoDocumentRepository(db *mongo.Database) *MongoDocumentRepository {
	return &MongoDocumentRepository{db: db}
}

func (r *MongoDocumentRepository) GetByExternalID(ctx context.Context, collection, externalID string) (*models.SyncDocument, error) {
	var raw bson.M
	err := r.db.Collection(collection).
		FindOne(ctx, bson.M{models.FieldExternalID: externalID}).
		Decode(&raw)

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document by externalId: %w", err)
	}

	return DocumentFromBSON(raw)
}

// UpsertByExternalID replaces the matching document's fields, inserting it when absent.
func (r *MongoDocumentRepository) UpsertByExternalID(ctx context.Context, collection string, doc *models.SyncDocument) error {
	_, err := r.db.Collection(collection).UpdateOne(ctx,
		bson.M{models.FieldExternalID: doc.ExternalID},
		bson.M{"$set": doc.Map()},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (r *MongoDocumentRepository) DeleteByExternalID(ctx context.Context, collection, externalID string) (int64, error) {
	result, err := r.db.Collection(collection).DeleteOne(ctx, bson.M{models.FieldExternalID: externalID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete document: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *MongoDocumentRepository) Ping(ctx context.Context) error {
	if err := r.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("error pinging mongodb: %w", err)
	}
	return nil
}

// DocumentFromBSON drops the MongoDB _id and converts driver types into
// plain maps and slices before building the SyncDocument.
func DocumentFromBSON(raw bson.M) (*models.SyncDocument, error) {
	m := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		m[k] = normalizeBSON(v)
	}
	doc, err := models.DocumentFromMap(m)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

func normalizeBSON(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = normalizeBSON(inner)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeBSON(inner)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.ObjectID:
		return val.Hex()
	case primitive.Decimal128:
		return val.String()
	}
	return v
}
