package rmc

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"amkj-server/internal/models"
)

// MongoSessions implements SessionRecorder on the sessions collection.
// The collection is cleared at boot, so rows only ever describe the
// current process's connections.
type MongoSessions struct {
	col *mongo.Collection
}

func NewMongoSessions(col *mongo.Collection) *MongoSessions {
	return &MongoSessions{col: col}
}

func (s *MongoSessions) Insert(ctx context.Context, session *models.Session) error {
	// One row per pid; a reconnect replaces the stale row.
	if _, err := s.col.DeleteMany(ctx, bson.M{"pid": session.PID}); err != nil {
		return err
	}
	_, err := s.col.InsertOne(ctx, session)
	return err
}

func (s *MongoSessions) SetConnection(ctx context.Context, pid, connectionID uint32, urls []string) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"pid": pid},
		bson.M{"$set": bson.M{"connection_id": connectionID, "urls": urls}})
	return err
}

func (s *MongoSessions) DeleteByPID(ctx context.Context, pid uint32) error {
	_, err := s.col.DeleteMany(ctx, bson.M{"pid": pid})
	return err
}
