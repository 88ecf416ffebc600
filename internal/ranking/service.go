// Package ranking implements the two leaderboard surfaces: general
// per-category rankings and tournament competition scoring with
// per-season aggregates kept in the counter store.
package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"amkj-server/internal/counter"
	"amkj-server/internal/models"
	"amkj-server/internal/nex"
)

// TournamentDirectory is the slice of the tournament store the ranking
// engine touches: lookups plus the aggregate fields only this engine
// writes.
type TournamentDirectory interface {
	FindByID(ctx context.Context, id uint32) (*models.Tournament, error)
	IncTotalParticipants(ctx context.Context, id uint32, delta int32) error
	SetSeasonID(ctx context.Context, id uint32, season uint32) error
	ListPublic(ctx context.Context, offset, size uint32) ([]models.Tournament, error)
}

const (
	maxCompetitionMetadata = 0x100
	maxSeasonWindow        = 5
	maxInfoPage            = 100
	topScoresPerSeason     = 20
)

// teamCount: scores are partitioned into team 0 and team 1; any other
// team id participates without a team aggregate.
const teamCount = 2

// teamAttributeSlot holds 2 when the tournament is a team tournament.
const teamAttributeSlot = 4

// Counter-store key shapes. The per-season variants carry the season
// between the id and the suffix.
func participationTotalKey(tid uint32) string {
	return fmt.Sprintf("tournaments:participation:%d_total", tid)
}

func participationSeasonTotalKey(tid, season uint32) string {
	return fmt.Sprintf("tournaments:participation:%d_%d_total", tid, season)
}

func participationTeamKey(tid, team uint32) string {
	return fmt.Sprintf("tournaments:participation:%d_team%d", tid, team)
}

func participationSeasonTeamKey(tid, season, team uint32) string {
	return fmt.Sprintf("tournaments:participation:%d_%d_team%d", tid, season, team)
}

func scoresTeamKey(tid, team uint32) string {
	return fmt.Sprintf("tournaments:scores:%d_team%d", tid, team)
}

func scoresSeasonTeamKey(tid, season, team uint32) string {
	return fmt.Sprintf("tournaments:scores:%d_%d_team%d", tid, season, team)
}

// CompetitionUploadParam is the decoded upload request.
type CompetitionUploadParam struct {
	TournamentID uint32
	SeasonID     uint32
	Score        uint32
	TeamID       uint32
	TeamScore    uint32
	Metadata     []byte
}

// RankedScore is one general-category row with its computed rank.
type RankedScore struct {
	Rank  uint32
	Score models.RankingScore
}

// CompetitionScoreEntry is one individual row within a season.
type CompetitionScoreEntry struct {
	Rank       uint32
	PID        uint32
	Score      uint32
	TeamID     uint32
	LastUpdate time.Time
	Metadata   []byte
}

// CompetitionSeason is one season's slice of a competition response.
// TeamScores is [team0_score, team1_score, team0_participants,
// team1_participants]; all zero for non-team tournaments.
type CompetitionSeason struct {
	SeasonID        uint32
	NumParticipants int64
	TeamScores      [4]int64
	Scores          []CompetitionScoreEntry
}

// CompetitionInfo is one tournament's row in the public listing.
type CompetitionInfo struct {
	TournamentID    uint32
	NumParticipants int64
	TeamScores      [4]int64
}

// Service wires the score collections, the tournament directory and the
// counter store together.
type Service struct {
	scores      ScoreStore
	competition CompetitionStore
	commonData  CommonDataStore
	tournaments TournamentDirectory
	counters    counter.Store
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(scores ScoreStore, competition CompetitionStore, commonData CommonDataStore,
	tournaments TournamentDirectory, counters counter.Store, logger zerolog.Logger) *Service {
	return &Service{
		scores:      scores,
		competition: competition,
		commonData:  commonData,
		tournaments: tournaments,
		counters:    counters,
		logger:      logger.With().Str("component", "ranking").Logger(),
		now:         time.Now,
	}
}

// UploadScore upserts the caller's row for the category. When the
// upload carries common data the blob is decoded and stored too.
func (s *Service) UploadScore(ctx context.Context, pid uint32, score *models.RankingScore, commonData []byte, uniqueID uint64) error {
	row := *score
	row.PID = pid
	row.LastUpdate = s.now()
	if err := s.scores.Upsert(ctx, &row); err != nil {
		return err
	}

	if len(commonData) > 0 {
		if err := s.UploadCommonData(ctx, pid, commonData, uniqueID); err != nil {
			return err
		}
	}
	return nil
}

// GetRankingByRange pages a category in rank order.
func (s *Service) GetRankingByRange(ctx context.Context, category, offset, size uint32) ([]RankedScore, error) {
	rows, err := s.scores.ListRange(ctx, category, offset, size)
	if err != nil {
		return nil, err
	}
	out := make([]RankedScore, len(rows))
	for i, row := range rows {
		out[i] = RankedScore{Rank: offset + uint32(i) + 1, Score: row}
	}
	return out, nil
}

// GetRankingByPID returns the caller's row and computed rank.
func (s *Service) GetRankingByPID(ctx context.Context, category, pid uint32) (*RankedScore, error) {
	row, err := s.scores.Find(ctx, category, pid)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nex.Err("Ranking::NotFound")
	}
	rank, err := s.scores.Rank(ctx, category, row)
	if err != nil {
		return nil, err
	}
	return &RankedScore{Rank: rank, Score: *row}, nil
}

// GetRankingByPIDs returns the rows for the pid set in rank order, with
// ranks computed against the whole category. Pids without a row are
// dropped.
func (s *Service) GetRankingByPIDs(ctx context.Context, category uint32, pids []uint32) ([]RankedScore, error) {
	rows, err := s.scores.ListByPIDs(ctx, category, pids)
	if err != nil {
		return nil, err
	}
	out := make([]RankedScore, 0, len(rows))
	for i := range rows {
		rank, err := s.scores.Rank(ctx, category, &rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, RankedScore{Rank: rank, Score: rows[i]})
	}
	return out, nil
}

// UploadCommonData decodes and upserts the caller's blob.
func (s *Service) UploadCommonData(ctx context.Context, pid uint32, data []byte, uniqueID uint64) error {
	doc, err := ParseCommonData(pid, data, uniqueID, s.now())
	if err != nil {
		return err
	}
	return s.commonData.Upsert(ctx, doc)
}

// GetCommonData returns the raw blob a player last uploaded.
func (s *Service) GetCommonData(ctx context.Context, pid uint32) ([]byte, error) {
	doc, err := s.commonData.Find(ctx, pid)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nex.Err("Ranking::NotFound")
	}
	return doc.Data, nil
}

// UploadCompetitionScore upserts the caller's (tournament, season) row
// and maintains the aggregates: participant totals on first upload, and
// team score counters moved by the signed score delta.
func (s *Service) UploadCompetitionScore(ctx context.Context, pid uint32, param CompetitionUploadParam) error {
	if len(param.Metadata) > maxCompetitionMetadata {
		return nex.Err("Core::InvalidArgument")
	}

	tournament, err := s.tournaments.FindByID(ctx, param.TournamentID)
	if err != nil {
		return err
	}
	if tournament == nil {
		return nex.Err("Ranking::InvalidArgument")
	}

	row := &models.TournamentScore{
		PID:          pid,
		TournamentID: param.TournamentID,
		SeasonID:     param.SeasonID,
		Score:        param.Score,
		TeamID:       param.TeamID,
		TeamScore:    param.TeamScore,
		Metadata:     param.Metadata,
		LastUpdate:   s.now(),
	}

	old, err := s.competition.Find(ctx, param.TournamentID, param.SeasonID, pid)
	if err != nil {
		return err
	}

	diff := int64(param.Score)
	if old != nil {
		diff -= int64(old.Score)
		if err := s.competition.Replace(ctx, row); err != nil {
			return err
		}
	} else {
		if err := s.competition.Insert(ctx, row); err != nil {
			return err
		}

		if err := s.tournaments.IncTotalParticipants(ctx, param.TournamentID, 1); err != nil {
			return err
		}
		if err := s.counters.IncrBy(ctx, participationTotalKey(param.TournamentID), 1); err != nil {
			return err
		}
		if err := s.counters.IncrBy(ctx, participationSeasonTotalKey(param.TournamentID, param.SeasonID), 1); err != nil {
			return err
		}
		if param.TeamID < teamCount {
			if err := s.counters.IncrBy(ctx, participationTeamKey(param.TournamentID, param.TeamID), 1); err != nil {
				return err
			}
			if err := s.counters.IncrBy(ctx, participationSeasonTeamKey(param.TournamentID, param.SeasonID, param.TeamID), 1); err != nil {
				return err
			}
		}

		if param.SeasonID > tournament.SeasonID {
			if err := s.tournaments.SetSeasonID(ctx, param.TournamentID, param.SeasonID); err != nil {
				return err
			}
		}
	}

	if param.TeamID < teamCount {
		// A first upload bakes the player's participation offset into
		// the score counters; reads subtract participation back out to
		// get score-only totals.
		scoreDelta := diff
		if old == nil {
			scoreDelta++
		}
		if err := s.counters.IncrBy(ctx, scoresTeamKey(param.TournamentID, param.TeamID), scoreDelta); err != nil {
			return err
		}
		if err := s.counters.IncrBy(ctx, scoresSeasonTeamKey(param.TournamentID, param.SeasonID, param.TeamID), scoreDelta); err != nil {
			return err
		}
	}

	s.logger.Debug().
		Uint32("tournament", param.TournamentID).
		Uint32("season", param.SeasonID).
		Uint32("pid", pid).
		Uint32("score", param.Score).
		Int64("diff", diff).
		Msg("competition score uploaded")
	return nil
}

// seasonTeamScores materialises the team 4-tuple for one season. The
// scores counters carry participation offsets baked in by the game;
// subtracting participation yields the score-only totals.
func (s *Service) seasonTeamScores(ctx context.Context, tid, season uint32) ([4]int64, error) {
	var out [4]int64
	for team := uint32(0); team < teamCount; team++ {
		part, err := s.counters.GetInt(ctx, participationSeasonTeamKey(tid, season, team))
		if err != nil {
			return out, err
		}
		sum, err := s.counters.GetInt(ctx, scoresSeasonTeamKey(tid, season, team))
		if err != nil {
			return out, err
		}
		out[team] = sum - part
		out[2+team] = part
	}
	return out, nil
}

// totalTeamScores is the all-seasons variant used by the public
// listing.
func (s *Service) totalTeamScores(ctx context.Context, tid uint32) ([4]int64, error) {
	var out [4]int64
	for team := uint32(0); team < teamCount; team++ {
		part, err := s.counters.GetInt(ctx, participationTeamKey(tid, team))
		if err != nil {
			return out, err
		}
		sum, err := s.counters.GetInt(ctx, scoresTeamKey(tid, team))
		if err != nil {
			return out, err
		}
		out[team] = sum - part
		out[2+team] = part
	}
	return out, nil
}

// GetCompetitionRankingScore returns the most recent size seasons
// ending at the tournament's current season, newest last. Each season
// carries the top-20 rows ranked by score descending, ties by earlier
// upload.
func (s *Service) GetCompetitionRankingScore(ctx context.Context, tournamentID, size uint32) ([]CompetitionSeason, error) {
	if size > maxSeasonWindow {
		return nil, nex.Err("Core::InvalidArgument")
	}

	tournament, err := s.tournaments.FindByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament == nil {
		return nil, nex.Err("Ranking::InvalidArgument")
	}

	first := int64(tournament.SeasonID) - int64(size) + 1
	if first < 1 {
		first = 1
	}

	isTeam := len(tournament.Attributes) > teamAttributeSlot && tournament.Attributes[teamAttributeSlot] == 2

	var out []CompetitionSeason
	for season := uint32(first); season <= tournament.SeasonID; season++ {
		rows, err := s.competition.ListTop(ctx, tournamentID, season, topScoresPerSeason)
		if err != nil {
			return nil, err
		}

		info := CompetitionSeason{SeasonID: season}
		if isTeam {
			if info.TeamScores, err = s.seasonTeamScores(ctx, tournamentID, season); err != nil {
				return nil, err
			}
		}
		if info.NumParticipants, err = s.counters.GetInt(ctx, participationSeasonTotalKey(tournamentID, season)); err != nil {
			return nil, err
		}

		info.Scores = make([]CompetitionScoreEntry, len(rows))
		for i, row := range rows {
			info.Scores[i] = CompetitionScoreEntry{
				Rank:       uint32(i) + 1,
				PID:        row.PID,
				Score:      row.Score,
				TeamID:     row.TeamID,
				LastUpdate: row.LastUpdate,
				Metadata:   row.Metadata,
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// GetCompetitionInfo lists public tournaments by participant count
// descending, with all-season aggregates.
func (s *Service) GetCompetitionInfo(ctx context.Context, offset, size uint32) ([]CompetitionInfo, error) {
	if size > maxInfoPage {
		return nil, nex.Err("Core::InvalidArgument")
	}

	tournaments, err := s.tournaments.ListPublic(ctx, offset, size)
	if err != nil {
		return nil, err
	}

	out := make([]CompetitionInfo, 0, len(tournaments))
	for _, t := range tournaments {
		info := CompetitionInfo{TournamentID: t.ID}
		if info.NumParticipants, err = s.counters.GetInt(ctx, participationTotalKey(t.ID)); err != nil {
			return nil, err
		}
		if len(t.Attributes) > teamAttributeSlot && t.Attributes[teamAttributeSlot] == 2 {
			if info.TeamScores, err = s.totalTeamScores(ctx, t.ID); err != nil {
				return nil, err
			}
		}
		out = append(out, info)
	}
	return out, nil
}
