package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/registry"
	"github.com/prudhvinik1/possync/internal/repositories"
	"github.com/prudhvinik1/possync/internal/services"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/exp/slog"
)

const reopenDelay = 2 * time.Second

// errSkip marks change events that carry nothing to propagate.
var errSkip = errors.New("change skipped")

// Dispatcher receives the translated changes; *services.SyncService satisfies it.
type Dispatcher interface {
	SyncFromDocumentStore(ctx context.Context, collection string, doc *models.SyncDocument) (*services.SyncResult, error)
	DeleteSync(ctx context.Context, direction services.SyncDirection, collection, externalID string) (int64, error)
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	Namespace     struct {
		Collection string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey struct {
		ID any `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             bson.M `bson:"fullDocument"`
	FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
}

// Change is one document-store event translated for the sync service.
type Change struct {
	Collection string
	Delete     bool
	ExternalID string
	Document   *models.SyncDocument
}

// Watcher tails a MongoDB change stream over the mapped collections and
// forwards every change the way the ingestion endpoint would.
type Watcher struct {
	db         *mongo.Database
	registry   *registry.Registry
	dispatcher Dispatcher
	ids        *idIndex
	log        *slog.Logger
}

func New(db *mongo.Database, reg *registry.Registry, dispatcher Dispatcher, log *slog.Logger) *Watcher {
	return &Watcher{
		db:         db,
		registry:   reg,
		dispatcher: dispatcher,
		ids:        newIDIndex(),
		log:        log.With(slog.String("component", "watcher")),
	}
}

// Run blocks until ctx is cancelled. A broken stream is reopened from the
// last resume token.
func (w *Watcher) Run(ctx context.Context) error {
	var resumeToken bson.Raw
	for {
		token, err := w.watch(ctx, resumeToken)
		if token != nil {
			resumeToken = token
		}
		if ctx.Err() != nil {
			return nil
		}
		w.log.Error("change stream closed", slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reopenDelay):
		}
	}
}

func (w *Watcher) watch(ctx context.Context, resumeAfter bson.Raw) (bson.Raw, error) {
	names := make(bson.A, 0, len(w.registry.Keys()))
	for _, key := range w.registry.Keys() {
		name, err := w.registry.DocumentCollection(key)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: names}}}}}},
	}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if resumeAfter != nil {
		opts.SetResumeAfter(resumeAfter)
	}

	stream, err := w.db.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}
	defer stream.Close(context.Background())
	w.log.Info("watching change stream", slog.Any("collections", names))

	var last bson.Raw
	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			w.log.Warn("failed to decode change event", slog.Any("error", err))
		} else {
			w.handle(ctx, &ev)
		}
		last = stream.ResumeToken()
	}
	return last, stream.Err()
}

func (w *Watcher) handle(ctx context.Context, ev *changeEvent) {
	change, err := w.translate(ev)
	if errors.Is(err, errSkip) {
		return
	}
	if err != nil {
		w.log.Warn("dropping change event",
			slog.String("operation", ev.OperationType),
			slog.String("collection", ev.Namespace.Collection),
			slog.Any("error", err),
		)
		return
	}

	// failures are logged and counted by the sync service; the stream moves on
	if change.Delete {
		_, err = w.dispatcher.DeleteSync(ctx, services.DocumentStoreToTableService, change.Collection, change.ExternalID)
	} else {
		_, err = w.dispatcher.SyncFromDocumentStore(ctx, change.Collection, change.Document)
	}
	if err != nil {
		w.log.Error("failed to dispatch change",
			slog.String("collection", change.Collection),
			slog.String("externalId", change.ExternalID),
			slog.Any("error", err),
		)
	}
}

// translate turns a raw change event into a Change and maintains the
// _id -> externalId index used to resolve deletes.
func (w *Watcher) translate(ev *changeEvent) (*Change, error) {
	key, ok := w.registry.KeyForDocumentCollection(ev.Namespace.Collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownCollection, ev.Namespace.Collection)
	}
	docKey := documentKeyString(ev.DocumentKey.ID)

	switch ev.OperationType {
	case "insert", "update", "replace":
		if ev.FullDocument == nil {
			// the document was deleted before the update lookup ran
			return nil, errSkip
		}
		doc, err := repositories.DocumentFromBSON(ev.FullDocument)
		if err != nil {
			return nil, err
		}
		w.ids.put(docKey, doc.ExternalID)
		return &Change{Collection: key, ExternalID: doc.ExternalID, Document: doc}, nil

	case "delete":
		externalID, known := w.ids.take(docKey)
		if ev.FullDocumentBeforeChange != nil {
			if before, err := repositories.DocumentFromBSON(ev.FullDocumentBeforeChange); err == nil {
				externalID, known = before.ExternalID, true
			}
		}
		if !known {
			return nil, fmt.Errorf("no externalId known for deleted document %s", docKey)
		}
		return &Change{Collection: key, Delete: true, ExternalID: externalID}, nil
	}
	return nil, errSkip
}

func documentKeyString(id any) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}

// idIndex remembers which externalId each MongoDB _id carried, since delete
// events only report the _id.
type idIndex struct {
	mu  sync.Mutex
	ids map[string]string
}

func newIDIndex() *idIndex {
	return &idIndex{ids: make(map[string]string)}
}

func (i *idIndex) put(docKey, externalID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ids[docKey] = externalID
}

func (i *idIndex) take(docKey string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id, ok := i.ids[docKey]
	delete(i.ids, docKey)
	return id, ok
}
