package ranking

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"amkj-server/internal/models"
)

// ScoreStore persists general per-category scores. Lookups return nil
// when the row is absent.
type ScoreStore interface {
	Upsert(ctx context.Context, score *models.RankingScore) error
	Find(ctx context.Context, category, pid uint32) (*models.RankingScore, error)
	// ListRange pages a category ordered ascending by score, ties by
	// earlier last_update.
	ListRange(ctx context.Context, category uint32, offset, size uint32) ([]models.RankingScore, error)
	// ListByPIDs returns the category rows for the given pids, in rank
	// order.
	ListByPIDs(ctx context.Context, category uint32, pids []uint32) ([]models.RankingScore, error)
	// Rank is the 1-based position of the score within its category.
	Rank(ctx context.Context, category uint32, score *models.RankingScore) (uint32, error)
}

// CompetitionStore persists tournament score rows, one per
// (tournament, season, pid).
type CompetitionStore interface {
	Find(ctx context.Context, tournamentID, seasonID, pid uint32) (*models.TournamentScore, error)
	Insert(ctx context.Context, score *models.TournamentScore) error
	Replace(ctx context.Context, score *models.TournamentScore) error
	// ListTop returns up to limit rows for the season ordered by score
	// descending, ties by earlier last_update.
	ListTop(ctx context.Context, tournamentID, seasonID uint32, limit int64) ([]models.TournamentScore, error)
}

// CommonDataStore persists the per-player blob, keyed by pid.
type CommonDataStore interface {
	Upsert(ctx context.Context, data *models.CommonData) error
	Find(ctx context.Context, pid uint32) (*models.CommonData, error)
}

// MongoScoreStore implements ScoreStore on the ranking_scores
// collection.
type MongoScoreStore struct {
	col *mongo.Collection
}

func NewMongoScoreStore(col *mongo.Collection) *MongoScoreStore {
	return &MongoScoreStore{col: col}
}

func (s *MongoScoreStore) Upsert(ctx context.Context, score *models.RankingScore) error {
	filter := bson.M{"category": score.Category, "pid": score.PID}
	opts := options.Replace().SetUpsert(true)
	_, err := s.col.ReplaceOne(ctx, filter, score, opts)
	return err
}

func (s *MongoScoreStore) Find(ctx context.Context, category, pid uint32) (*models.RankingScore, error) {
	var row models.RankingScore
	err := s.col.FindOne(ctx, bson.M{"category": category, "pid": pid}).Decode(&row)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// categoryOrder sorts ascending; every category in this title ranks
// lower scores better.
var categoryOrder = bson.D{{Key: "score", Value: 1}, {Key: "last_update", Value: 1}}

func (s *MongoScoreStore) ListRange(ctx context.Context, category uint32, offset, size uint32) ([]models.RankingScore, error) {
	opts := options.Find().
		SetSort(categoryOrder).
		SetSkip(int64(offset)).
		SetLimit(int64(size))
	cursor, err := s.col.Find(ctx, bson.M{"category": category}, opts)
	if err != nil {
		return nil, fmt.Errorf("list ranking range: %w", err)
	}
	return decodeScores(ctx, cursor)
}

func (s *MongoScoreStore) ListByPIDs(ctx context.Context, category uint32, pids []uint32) ([]models.RankingScore, error) {
	filter := bson.M{"category": category, "pid": bson.M{"$in": pids}}
	cursor, err := s.col.Find(ctx, filter, options.Find().SetSort(categoryOrder))
	if err != nil {
		return nil, fmt.Errorf("list ranking by pids: %w", err)
	}
	return decodeScores(ctx, cursor)
}

func (s *MongoScoreStore) Rank(ctx context.Context, category uint32, score *models.RankingScore) (uint32, error) {
	// Rows strictly better, plus equal scores uploaded earlier.
	filter := bson.M{
		"category": category,
		"$or": []bson.M{
			{"score": bson.M{"$lt": score.Score}},
			{"score": score.Score, "last_update": bson.M{"$lt": score.LastUpdate}},
		},
	}
	ahead, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count ranking position: %w", err)
	}
	return uint32(ahead) + 1, nil
}

func decodeScores(ctx context.Context, cursor *mongo.Cursor) ([]models.RankingScore, error) {
	defer cursor.Close(ctx)

	var out []models.RankingScore
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MongoCompetitionStore implements CompetitionStore on the
// tournaments_scores collection.
type MongoCompetitionStore struct {
	col *mongo.Collection
}

func NewMongoCompetitionStore(col *mongo.Collection) *MongoCompetitionStore {
	return &MongoCompetitionStore{col: col}
}

func competitionKey(tournamentID, seasonID, pid uint32) bson.M {
	return bson.M{"tournament_id": tournamentID, "season_id": seasonID, "pid": pid}
}

func (s *MongoCompetitionStore) Find(ctx context.Context, tournamentID, seasonID, pid uint32) (*models.TournamentScore, error) {
	var row models.TournamentScore
	err := s.col.FindOne(ctx, competitionKey(tournamentID, seasonID, pid)).Decode(&row)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *MongoCompetitionStore) Insert(ctx context.Context, score *models.TournamentScore) error {
	_, err := s.col.InsertOne(ctx, score)
	return err
}

func (s *MongoCompetitionStore) Replace(ctx context.Context, score *models.TournamentScore) error {
	_, err := s.col.ReplaceOne(ctx, competitionKey(score.TournamentID, score.SeasonID, score.PID), score)
	return err
}

func (s *MongoCompetitionStore) ListTop(ctx context.Context, tournamentID, seasonID uint32, limit int64) ([]models.TournamentScore, error) {
	filter := bson.M{"tournament_id": tournamentID, "season_id": seasonID}
	opts := options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}, {Key: "last_update", Value: 1}}).
		SetLimit(limit)
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list top scores: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.TournamentScore
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MongoCommonDataStore implements CommonDataStore on the commondata
// collection.
type MongoCommonDataStore struct {
	col *mongo.Collection
}

func NewMongoCommonDataStore(col *mongo.Collection) *MongoCommonDataStore {
	return &MongoCommonDataStore{col: col}
}

func (s *MongoCommonDataStore) Upsert(ctx context.Context, data *models.CommonData) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.col.ReplaceOne(ctx, bson.M{"pid": data.PID}, data, opts)
	return err
}

func (s *MongoCommonDataStore) Find(ctx context.Context, pid uint32) (*models.CommonData, error) {
	var row models.CommonData
	err := s.col.FindOne(ctx, bson.M{"pid": pid}).Decode(&row)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
