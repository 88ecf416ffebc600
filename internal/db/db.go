// Package db owns the document store connection and the named counter
// sequences every durable id is minted from.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"amkj-server/internal/config"
)

const serverSelectionTimeout = 3 * time.Second

// Counter seeds. Allocation returns the value before the increment, so
// the first gathering id handed out is exactly 1000.
const (
	CounterGathering       = "gathering_id"
	CounterTournament      = "tournament_id"
	CounterDataStoreObject = "datastore_object_id"
)

var counterSeeds = map[string]int64{
	CounterGathering:       1000,
	CounterTournament:      20000,
	CounterDataStoreObject: 20000,
}

// DB wraps the mongo client and the game database handles.
type DB struct {
	client   *mongo.Client
	database *mongo.Database

	Counters         *mongo.Collection
	Gatherings       *mongo.Collection
	Sessions         *mongo.Collection
	Tournaments      *mongo.Collection
	TournamentScores *mongo.Collection
	CommonData       *mongo.Collection
	Rankings         *mongo.Collection
	DataStore        *mongo.Collection
	Status           *mongo.Collection
}

// New connects, pings, and binds the configured collections.
func New(ctx context.Context, cfg *config.Config) (*DB, error) {
	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerSelectionTimeout(serverSelectionTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	database := client.Database(cfg.Database)
	return &DB{
		client:   client,
		database: database,

		Counters:         database.Collection(cfg.CountersCollection),
		Gatherings:       database.Collection(cfg.GatheringsCollection),
		Sessions:         database.Collection(cfg.SessionsCollection),
		Tournaments:      database.Collection(cfg.TournamentsCollection),
		TournamentScores: database.Collection(cfg.TournamentScoresCollection),
		CommonData:       database.Collection(cfg.CommonDataCollection),
		Rankings:         database.Collection(cfg.RankingsCollection),
		DataStore:        database.Collection(cfg.DataStoreCollection),
		Status:           database.Collection(cfg.StatusCollection),
	}, nil
}

// Close disconnects the underlying client.
func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// Init seeds the counter sequences if absent and clears any sessions left
// over from a previous run.
func (db *DB) Init(ctx context.Context) error {
	for name, seed := range counterSeeds {
		_, err := db.Counters.UpdateOne(ctx,
			bson.M{"_id": name},
			bson.M{"$setOnInsert": bson.M{"_id": name, "seq": seed}},
			options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("seed counter %s: %w", name, err)
		}
	}

	if _, err := db.Sessions.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}

// NextID atomically allocates the next value of a named counter. The
// pre-increment value is returned, matching the seeded initial ids. The
// tournament counter wraps back to zero after 0xFFFFFFFF.
func (db *DB) NextID(ctx context.Context, name string) (uint32, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := db.Counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("allocate %s: %w", name, err)
	}

	if name == CounterTournament && doc.Seq == 0xFFFFFFFF {
		_, err = db.Counters.UpdateOne(ctx,
			bson.M{"_id": name},
			bson.M{"$set": bson.M{"seq": int64(0)}})
		if err != nil {
			return 0, fmt.Errorf("wrap %s: %w", name, err)
		}
	}

	return uint32(doc.Seq), nil
}
