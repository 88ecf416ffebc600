package tournament

import (
	"context"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"amkj-server/internal/models"
)

// Update is the writable slice of a tournament; season and participant
// totals are only ever touched by the ranking engine.
type Update struct {
	Attributes     []uint32
	Metadata       []byte
	Datetime       models.TournamentDatetime
	ParsedMetadata models.ParsedMetadata
}

// Store is the persistence port for simple search objects. Lookups
// return nil (no error) when the record is absent.
type Store interface {
	Insert(ctx context.Context, t *models.Tournament) error
	FindByID(ctx context.Context, id uint32) (*models.Tournament, error)
	FindByCommunityCode(ctx context.Context, code string) (*models.Tournament, error)
	Update(ctx context.Context, id uint32, upd Update) error
	Delete(ctx context.Context, id uint32) error
	Search(ctx context.Context, q SearchQuery) ([]models.Tournament, error)
	FindByIDs(ctx context.Context, ids []uint32) ([]models.Tournament, error)
}

// MongoStore implements Store plus the aggregate mutations the ranking
// engine performs on tournament documents.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

func (s *MongoStore) Insert(ctx context.Context, t *models.Tournament) error {
	_, err := s.col.InsertOne(ctx, t)
	return err
}

func (s *MongoStore) FindByID(ctx context.Context, id uint32) (*models.Tournament, error) {
	return s.findOne(ctx, bson.M{"id": id})
}

func (s *MongoStore) FindByCommunityCode(ctx context.Context, code string) (*models.Tournament, error) {
	return s.findOne(ctx, bson.M{"community_code": code})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.Tournament, error) {
	var t models.Tournament
	err := s.col.FindOne(ctx, filter).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *MongoStore) Update(ctx context.Context, id uint32, upd Update) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"id": id}, bson.M{
		"$set": bson.M{
			"attributes":      upd.Attributes,
			"metadata":        upd.Metadata,
			"datetime":        upd.Datetime,
			"parsed_metadata": upd.ParsedMetadata,
		},
	})
	return err
}

func (s *MongoStore) Delete(ctx context.Context, id uint32) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"id": id})
	return err
}

var operatorNames = map[uint32]string{
	OpEqual:          "$eq",
	OpGreaterThan:    "$gt",
	OpLessThan:       "$lt",
	OpGreaterOrEqual: "$gte",
	OpLessOrEqual:    "$lte",
}

// compileSearchFilter translates the typed query into the document
// filter; every clause is conjoined.
func compileSearchFilter(q SearchQuery) bson.M {
	var clauses []bson.M
	if q.ID != 0 {
		clauses = append(clauses, bson.M{"id": q.ID})
	}
	if q.Owner != 0 {
		clauses = append(clauses, bson.M{"owner": q.Owner})
	}
	if q.CommunityCode != "" {
		clauses = append(clauses, bson.M{"community_code": q.CommunityCode})
	}
	for _, f := range q.Filters {
		field := "attributes." + strconv.Itoa(f.Slot)
		clauses = append(clauses, bson.M{field: bson.M{operatorNames[f.Operator]: f.Value}})
	}

	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	default:
		return bson.M{"$and": clauses}
	}
}

func (s *MongoStore) Search(ctx context.Context, q SearchQuery) ([]models.Tournament, error) {
	opts := options.Find().
		SetSkip(int64(q.Offset)).
		SetLimit(int64(q.Size))
	cursor, err := s.col.Find(ctx, compileSearchFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("search tournaments: %w", err)
	}
	return decodeAll(ctx, cursor)
}

func (s *MongoStore) FindByIDs(ctx context.Context, ids []uint32) ([]models.Tournament, error) {
	cursor, err := s.col.Find(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find tournaments by ids: %w", err)
	}
	return decodeAll(ctx, cursor)
}

// IncTotalParticipants bumps the participant total on first score
// upload.
func (s *MongoStore) IncTotalParticipants(ctx context.Context, id uint32, delta int32) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"id": id},
		bson.M{"$inc": bson.M{"total_participants": delta}})
	return err
}

// SetSeasonID advances the tournament's current season.
func (s *MongoStore) SetSeasonID(ctx context.Context, id uint32, season uint32) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"id": id},
		bson.M{"$set": bson.M{"season_id": season}})
	return err
}

// ListPublic returns public, listed tournaments ordered by participant
// count descending.
func (s *MongoStore) ListPublic(ctx context.Context, offset, size uint32) ([]models.Tournament, error) {
	filter := bson.M{
		"attributes.0":  1,
		"attributes.12": bson.M{"$ne": 2},
		"attributes.13": bson.M{"$ne": 2},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "total_participants", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(size))
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list public tournaments: %w", err)
	}
	return decodeAll(ctx, cursor)
}

// ListAll pages over every tournament, for the admin surface.
func (s *MongoStore) ListAll(ctx context.Context, offset, limit int64) ([]models.Tournament, error) {
	opts := options.Find().SetSkip(offset)
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	return decodeAll(ctx, cursor)
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]models.Tournament, error) {
	defer cursor.Close(ctx)

	var out []models.Tournament
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
