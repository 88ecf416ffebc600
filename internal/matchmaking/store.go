package matchmaking

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"amkj-server/internal/models"
)

// AttributeQuery matches gatherings on the attribute slots the game
// filters by: slot 0 tournament id, slot 3 region, slot 4 DLC status.
type AttributeQuery struct {
	TournamentID uint32
	Region       uint32
	DLCStatus    uint32
}

// Store is the persistence port for gatherings. Lookups return nil when
// the record is absent.
type Store interface {
	Insert(ctx context.Context, g *models.Gathering) error
	FindByID(ctx context.Context, gid uint32) (*models.Gathering, error)
	// AddPlayer seats the pid if it is not already in and the gathering
	// has room for seats more participants; reports whether the update
	// applied. Every seat occupies a players entry under the reserving
	// pid, so extra participants count against capacity until the
	// reserver leaves.
	AddPlayer(ctx context.Context, gid, pid uint32, seats uint32, joinMessage string) (bool, error)
	RemovePlayer(ctx context.Context, gid, pid uint32) error
	SetHost(ctx context.Context, gid, host uint32) error
	SetOwner(ctx context.Context, gid, owner uint32) error
	Delete(ctx context.Context, gid uint32) error
	FindByAttributes(ctx context.Context, q AttributeQuery, offset, limit uint32) ([]models.Gathering, error)
}

// MongoStore implements Store on the gatherings collection.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

func (s *MongoStore) Insert(ctx context.Context, g *models.Gathering) error {
	_, err := s.col.InsertOne(ctx, g)
	return err
}

func (s *MongoStore) FindByID(ctx context.Context, gid uint32) (*models.Gathering, error) {
	var g models.Gathering
	err := s.col.FindOne(ctx, bson.M{"id": gid}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// AddPlayer runs the capacity check and the seat insert as one
// conditional update, so two racing joins can never oversell the
// gathering.
func (s *MongoStore) AddPlayer(ctx context.Context, gid, pid uint32, seats uint32, joinMessage string) (bool, error) {
	filter := bson.M{
		"id":      gid,
		"players": bson.M{"$ne": pid},
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{bson.M{"$size": "$players"}, int64(seats)}},
			"$max_participants",
		}},
	}
	// Anonymous extra participants occupy real entries in the players
	// array, repeated under the reserving pid, so the $size predicate
	// stays the single capacity truth and $pull releases them with the
	// reserver.
	entries := make([]uint32, seats)
	for i := range entries {
		entries[i] = pid
	}
	update := bson.M{
		"$push": bson.M{"players": bson.M{"$each": entries}},
		"$set":  bson.M{"join_message": joinMessage},
	}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("add player to gathering %d: %w", gid, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) RemovePlayer(ctx context.Context, gid, pid uint32) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"id": gid},
		bson.M{"$pull": bson.M{"players": pid}})
	return err
}

func (s *MongoStore) SetHost(ctx context.Context, gid, host uint32) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"id": gid},
		bson.M{"$set": bson.M{"host": host}})
	return err
}

func (s *MongoStore) SetOwner(ctx context.Context, gid, owner uint32) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"id": gid},
		bson.M{"$set": bson.M{"owner": owner}})
	return err
}

func (s *MongoStore) Delete(ctx context.Context, gid uint32) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"id": gid})
	return err
}

func (s *MongoStore) FindByAttributes(ctx context.Context, q AttributeQuery, offset, limit uint32) ([]models.Gathering, error) {
	filter := bson.M{
		"type":      models.GatheringTypeMatchmakeSession,
		"attribs.0": q.TournamentID,
		"attribs.3": q.Region,
		"attribs.4": q.DLCStatus,
	}
	opts := options.Find().
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find gatherings: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Gathering
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll pages over every gathering, for the admin surface.
func (s *MongoStore) ListAll(ctx context.Context, offset, limit int64) ([]models.Gathering, error) {
	opts := options.Find().SetSkip(offset)
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list gatherings: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Gathering
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
