package datastore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"amkj-server/internal/models"
)

// SearchQuery is the compiled object search; zero values mean "any".
type SearchQuery struct {
	OwnerIDs      []uint32
	DataType      uint16
	AnyDataType   bool
	Tags          []string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	UpdatedAfter  time.Time
	UpdatedBefore time.Time
	Offset        uint32
	Size          uint32
}

// Store is the persistence port for object metadata. Lookups return nil
// when the record is absent.
type Store interface {
	Insert(ctx context.Context, obj *models.DataStoreObject) error
	FindByDataID(ctx context.Context, dataID uint64) (*models.DataStoreObject, error)
	FindByPersistence(ctx context.Context, owner, persistenceID uint32) (*models.DataStoreObject, error)
	Replace(ctx context.Context, obj *models.DataStoreObject) error
	Delete(ctx context.Context, dataID uint64) error
	Search(ctx context.Context, q SearchQuery) ([]models.DataStoreObject, error)
}

// MongoStore implements Store on the datastore collection.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

func (s *MongoStore) Insert(ctx context.Context, obj *models.DataStoreObject) error {
	_, err := s.col.InsertOne(ctx, obj)
	return err
}

func (s *MongoStore) FindByDataID(ctx context.Context, dataID uint64) (*models.DataStoreObject, error) {
	return s.findOne(ctx, bson.M{"data_id": dataID})
}

func (s *MongoStore) FindByPersistence(ctx context.Context, owner, persistenceID uint32) (*models.DataStoreObject, error) {
	return s.findOne(ctx, bson.M{"owner": owner, "persistence_id": persistenceID})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.DataStoreObject, error) {
	var obj models.DataStoreObject
	err := s.col.FindOne(ctx, filter).Decode(&obj)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

func (s *MongoStore) Replace(ctx context.Context, obj *models.DataStoreObject) error {
	_, err := s.col.ReplaceOne(ctx, bson.M{"data_id": obj.DataID}, obj)
	return err
}

func (s *MongoStore) Delete(ctx context.Context, dataID uint64) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"data_id": dataID})
	return err
}

func (s *MongoStore) Search(ctx context.Context, q SearchQuery) ([]models.DataStoreObject, error) {
	filter := bson.M{}
	if len(q.OwnerIDs) > 0 {
		filter["owner"] = bson.M{"$in": q.OwnerIDs}
	}
	if !q.AnyDataType {
		filter["data_type"] = q.DataType
	}
	if len(q.Tags) > 0 {
		filter["tags"] = bson.M{"$all": q.Tags}
	}
	if created := timeWindow(q.CreatedAfter, q.CreatedBefore); created != nil {
		filter["created_time"] = created
	}
	if updated := timeWindow(q.UpdatedAfter, q.UpdatedBefore); updated != nil {
		filter["updated_time"] = updated
	}

	opts := options.Find().
		SetSkip(int64(q.Offset)).
		SetLimit(int64(q.Size))
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("search datastore objects: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.DataStoreObject
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func timeWindow(after, before time.Time) bson.M {
	window := bson.M{}
	if !after.IsZero() {
		window["$gte"] = after
	}
	if !before.IsZero() {
		window["$lte"] = before
	}
	if len(window) == 0 {
		return nil
	}
	return window
}
