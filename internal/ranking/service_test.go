package ranking

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"amkj-server/internal/models"
	"amkj-server/internal/nex"
)

type memScores struct {
	rows []models.RankingScore
}

func (m *memScores) Upsert(_ context.Context, score *models.RankingScore) error {
	for i := range m.rows {
		if m.rows[i].Category == score.Category && m.rows[i].PID == score.PID {
			m.rows[i] = *score
			return nil
		}
	}
	m.rows = append(m.rows, *score)
	return nil
}

func (m *memScores) Find(_ context.Context, category, pid uint32) (*models.RankingScore, error) {
	for i := range m.rows {
		if m.rows[i].Category == category && m.rows[i].PID == pid {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (m *memScores) sorted(category uint32) []models.RankingScore {
	var out []models.RankingScore
	for _, row := range m.rows {
		if row.Category == category {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].LastUpdate.Before(out[j].LastUpdate)
	})
	return out
}

func (m *memScores) ListRange(_ context.Context, category uint32, offset, size uint32) ([]models.RankingScore, error) {
	out := m.sorted(category)
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if int(size) < len(out) {
		out = out[:size]
	}
	return out, nil
}

func (m *memScores) ListByPIDs(_ context.Context, category uint32, pids []uint32) ([]models.RankingScore, error) {
	want := make(map[uint32]bool, len(pids))
	for _, pid := range pids {
		want[pid] = true
	}
	var out []models.RankingScore
	for _, row := range m.sorted(category) {
		if want[row.PID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memScores) Rank(_ context.Context, category uint32, score *models.RankingScore) (uint32, error) {
	rank := uint32(1)
	for _, row := range m.rows {
		if row.Category != category {
			continue
		}
		if row.Score < score.Score ||
			(row.Score == score.Score && row.LastUpdate.Before(score.LastUpdate)) {
			rank++
		}
	}
	return rank, nil
}

type memCompetition struct {
	rows []models.TournamentScore
}

func (m *memCompetition) Find(_ context.Context, tid, season, pid uint32) (*models.TournamentScore, error) {
	for i := range m.rows {
		if m.rows[i].TournamentID == tid && m.rows[i].SeasonID == season && m.rows[i].PID == pid {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (m *memCompetition) Insert(_ context.Context, score *models.TournamentScore) error {
	m.rows = append(m.rows, *score)
	return nil
}

func (m *memCompetition) Replace(_ context.Context, score *models.TournamentScore) error {
	for i := range m.rows {
		if m.rows[i].TournamentID == score.TournamentID &&
			m.rows[i].SeasonID == score.SeasonID && m.rows[i].PID == score.PID {
			m.rows[i] = *score
		}
	}
	return nil
}

func (m *memCompetition) ListTop(_ context.Context, tid, season uint32, limit int64) ([]models.TournamentScore, error) {
	var out []models.TournamentScore
	for _, row := range m.rows {
		if row.TournamentID == tid && row.SeasonID == season {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].LastUpdate.Before(out[j].LastUpdate)
	})
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memCommonData struct {
	docs map[uint32]models.CommonData
}

func (m *memCommonData) Upsert(_ context.Context, data *models.CommonData) error {
	if m.docs == nil {
		m.docs = make(map[uint32]models.CommonData)
	}
	m.docs[data.PID] = *data
	return nil
}

func (m *memCommonData) Find(_ context.Context, pid uint32) (*models.CommonData, error) {
	doc, ok := m.docs[pid]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

type memDirectory struct {
	tournaments map[uint32]*models.Tournament
}

func (m *memDirectory) FindByID(_ context.Context, id uint32) (*models.Tournament, error) {
	t, ok := m.tournaments[id]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (m *memDirectory) IncTotalParticipants(_ context.Context, id uint32, delta int32) error {
	m.tournaments[id].TotalParticipants += uint32(delta)
	return nil
}

func (m *memDirectory) SetSeasonID(_ context.Context, id uint32, season uint32) error {
	m.tournaments[id].SeasonID = season
	return nil
}

func (m *memDirectory) ListPublic(_ context.Context, offset, size uint32) ([]models.Tournament, error) {
	var out []models.Tournament
	for _, t := range m.tournaments {
		if len(t.Attributes) > 13 && t.Attributes[0] == 1 && t.Attributes[12] != 2 && t.Attributes[13] != 2 {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TotalParticipants > out[j].TotalParticipants
	})
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if size > 0 && int(size) < len(out) {
		out = out[:size]
	}
	return out, nil
}

type memCounters struct {
	values map[string]int64
}

func (m *memCounters) IncrBy(_ context.Context, key string, delta int64) error {
	if m.values == nil {
		m.values = make(map[string]int64)
	}
	m.values[key] += delta
	return nil
}

func (m *memCounters) GetInt(_ context.Context, key string) (int64, error) {
	return m.values[key], nil
}

func teamTournament(id uint32) *models.Tournament {
	attrs := make([]uint32, 20)
	attrs[0] = 1
	attrs[teamAttributeSlot] = 2
	return &models.Tournament{ID: id, Attributes: attrs, SeasonID: 1}
}

type rankingFixture struct {
	svc         *Service
	competition *memCompetition
	directory   *memDirectory
	counters    *memCounters
	clock       time.Time
}

func newRankingFixture(tournaments ...*models.Tournament) *rankingFixture {
	f := &rankingFixture{
		competition: &memCompetition{},
		directory:   &memDirectory{tournaments: map[uint32]*models.Tournament{}},
		counters:    &memCounters{},
		clock:       time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, t := range tournaments {
		f.directory.tournaments[t.ID] = t
	}
	f.svc = NewService(&memScores{}, f.competition, &memCommonData{}, f.directory, f.counters, zerolog.Nop())
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func (f *rankingFixture) upload(t *testing.T, pid uint32, param CompetitionUploadParam) {
	t.Helper()
	if err := f.svc.UploadCompetitionScore(context.Background(), pid, param); err != nil {
		t.Fatalf("UploadCompetitionScore(pid=%d): %v", pid, err)
	}
}

func TestCompetitionScoreFlow(t *testing.T) {
	f := newRankingFixture(teamTournament(500))
	ctx := context.Background()

	f.upload(t, 100, CompetitionUploadParam{TournamentID: 500, SeasonID: 1, Score: 10, TeamID: 0})
	f.upload(t, 200, CompetitionUploadParam{TournamentID: 500, SeasonID: 1, Score: 15, TeamID: 1})

	seasons, err := f.svc.GetCompetitionRankingScore(ctx, 500, 1)
	if err != nil {
		t.Fatalf("GetCompetitionRankingScore: %v", err)
	}
	if len(seasons) != 1 || seasons[0].SeasonID != 1 {
		t.Fatalf("seasons = %+v, want one entry for season 1", seasons)
	}

	season := seasons[0]
	if season.NumParticipants != 2 {
		t.Errorf("NumParticipants = %d, want 2", season.NumParticipants)
	}
	if len(season.Scores) != 2 {
		t.Fatalf("scores = %d rows, want 2", len(season.Scores))
	}
	if season.Scores[0].PID != 200 || season.Scores[0].Rank != 1 || season.Scores[0].Score != 15 {
		t.Errorf("first = %+v, want pid 200 rank 1 score 15", season.Scores[0])
	}
	if season.Scores[1].PID != 100 || season.Scores[1].Rank != 2 || season.Scores[1].Score != 10 {
		t.Errorf("second = %+v, want pid 100 rank 2 score 10", season.Scores[1])
	}
	if season.TeamScores != [4]int64{10, 15, 1, 1} {
		t.Errorf("TeamScores = %v, want [10 15 1 1]", season.TeamScores)
	}

	// Re-upload replaces the row and moves the team total by the diff.
	f.upload(t, 100, CompetitionUploadParam{TournamentID: 500, SeasonID: 1, Score: 20, TeamID: 0})

	seasons, err = f.svc.GetCompetitionRankingScore(ctx, 500, 1)
	if err != nil {
		t.Fatalf("GetCompetitionRankingScore: %v", err)
	}
	season = seasons[0]
	if season.Scores[0].PID != 100 || season.Scores[1].PID != 200 {
		t.Errorf("order after re-upload = %d, %d; want 100, 200", season.Scores[0].PID, season.Scores[1].PID)
	}
	if season.TeamScores[0] != 20 {
		t.Errorf("TeamScores[0] = %d, want 20", season.TeamScores[0])
	}
	if season.NumParticipants != 2 {
		t.Errorf("NumParticipants after re-upload = %d, want 2", season.NumParticipants)
	}
	if f.directory.tournaments[500].TotalParticipants != 2 {
		t.Errorf("TotalParticipants = %d, want 2", f.directory.tournaments[500].TotalParticipants)
	}
}

func TestCompetitionScoreSeasonAdvance(t *testing.T) {
	f := newRankingFixture(teamTournament(501))

	f.upload(t, 100, CompetitionUploadParam{TournamentID: 501, SeasonID: 3, Score: 5, TeamID: 0})

	if got := f.directory.tournaments[501].SeasonID; got != 3 {
		t.Errorf("SeasonID = %d, want 3", got)
	}

	// An upload into a past season never rolls the tournament back.
	f.upload(t, 200, CompetitionUploadParam{TournamentID: 501, SeasonID: 2, Score: 5, TeamID: 1})
	if got := f.directory.tournaments[501].SeasonID; got != 3 {
		t.Errorf("SeasonID after old-season upload = %d, want 3", got)
	}
}

func TestCompetitionScoreValidation(t *testing.T) {
	f := newRankingFixture(teamTournament(502))
	ctx := context.Background()

	err := f.svc.UploadCompetitionScore(ctx, 100, CompetitionUploadParam{
		TournamentID: 502, SeasonID: 1, Metadata: make([]byte, maxCompetitionMetadata+1),
	})
	if !nex.IsError(err, "Core::InvalidArgument") {
		t.Errorf("oversized metadata err = %v, want Core::InvalidArgument", err)
	}

	err = f.svc.UploadCompetitionScore(ctx, 100, CompetitionUploadParam{TournamentID: 999, SeasonID: 1})
	if !nex.IsError(err, "Ranking::InvalidArgument") {
		t.Errorf("unknown tournament err = %v, want Ranking::InvalidArgument", err)
	}

	if _, err := f.svc.GetCompetitionRankingScore(ctx, 502, maxSeasonWindow+1); !nex.IsError(err, "Core::InvalidArgument") {
		t.Errorf("oversized window err = %v, want Core::InvalidArgument", err)
	}
	if _, err := f.svc.GetCompetitionRankingScore(ctx, 999, 1); !nex.IsError(err, "Ranking::InvalidArgument") {
		t.Errorf("unknown tournament err = %v, want Ranking::InvalidArgument", err)
	}
	if _, err := f.svc.GetCompetitionInfo(ctx, 0, maxInfoPage+1); !nex.IsError(err, "Core::InvalidArgument") {
		t.Errorf("oversized page err = %v, want Core::InvalidArgument", err)
	}
}

func TestCompetitionSeasonWindow(t *testing.T) {
	tournament := teamTournament(503)
	tournament.SeasonID = 4
	f := newRankingFixture(tournament)

	for season := uint32(1); season <= 4; season++ {
		f.upload(t, 100+season, CompetitionUploadParam{TournamentID: 503, SeasonID: season, Score: 1, TeamID: 0})
	}

	seasons, err := f.svc.GetCompetitionRankingScore(context.Background(), 503, 2)
	if err != nil {
		t.Fatalf("GetCompetitionRankingScore: %v", err)
	}
	if len(seasons) != 2 || seasons[0].SeasonID != 3 || seasons[1].SeasonID != 4 {
		t.Errorf("seasons = %+v, want 3 then 4", seasons)
	}
}

func TestGetCompetitionInfo(t *testing.T) {
	popular := teamTournament(600)
	private := teamTournament(601)
	private.Attributes[0] = 2
	quiet := teamTournament(602)
	f := newRankingFixture(popular, private, quiet)
	ctx := context.Background()

	f.upload(t, 1, CompetitionUploadParam{TournamentID: 600, SeasonID: 1, Score: 7, TeamID: 0})
	f.upload(t, 2, CompetitionUploadParam{TournamentID: 600, SeasonID: 1, Score: 9, TeamID: 1})
	f.upload(t, 3, CompetitionUploadParam{TournamentID: 602, SeasonID: 1, Score: 3, TeamID: 0})

	infos, err := f.svc.GetCompetitionInfo(ctx, 0, 10)
	if err != nil {
		t.Fatalf("GetCompetitionInfo: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("infos = %d rows, want 2 (private tournament hidden)", len(infos))
	}
	if infos[0].TournamentID != 600 || infos[1].TournamentID != 602 {
		t.Errorf("order = %d, %d; want 600 first", infos[0].TournamentID, infos[1].TournamentID)
	}
	if infos[0].NumParticipants != 2 {
		t.Errorf("NumParticipants = %d, want 2", infos[0].NumParticipants)
	}
	if infos[0].TeamScores != [4]int64{7, 9, 1, 1} {
		t.Errorf("TeamScores = %v, want [7 9 1 1]", infos[0].TeamScores)
	}
}

func TestGeneralRankingAscending(t *testing.T) {
	f := newRankingFixture()
	ctx := context.Background()

	// Lower score ranks better in every category of this title.
	for _, up := range []struct {
		pid   uint32
		score uint32
	}{{1, 300}, {2, 100}, {3, 200}} {
		err := f.svc.UploadScore(ctx, up.pid, &models.RankingScore{Category: 9, Score: up.score}, nil, 0)
		if err != nil {
			t.Fatalf("UploadScore: %v", err)
		}
	}

	rows, err := f.svc.GetRankingByRange(ctx, 9, 0, 10)
	if err != nil {
		t.Fatalf("GetRankingByRange: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	wantPIDs := []uint32{2, 3, 1}
	for i, row := range rows {
		if row.Score.PID != wantPIDs[i] || row.Rank != uint32(i)+1 {
			t.Errorf("row %d = pid %d rank %d, want pid %d rank %d",
				i, row.Score.PID, row.Rank, wantPIDs[i], i+1)
		}
	}

	self, err := f.svc.GetRankingByPID(ctx, 9, 3)
	if err != nil {
		t.Fatalf("GetRankingByPID: %v", err)
	}
	if self.Rank != 2 || self.Score.Score != 200 {
		t.Errorf("self = rank %d score %d, want rank 2 score 200", self.Rank, self.Score.Score)
	}

	if _, err := f.svc.GetRankingByPID(ctx, 9, 42); !nex.IsError(err, "Ranking::NotFound") {
		t.Errorf("missing pid err = %v, want Ranking::NotFound", err)
	}

	friends, err := f.svc.GetRankingByPIDs(ctx, 9, []uint32{1, 2, 42})
	if err != nil {
		t.Fatalf("GetRankingByPIDs: %v", err)
	}
	if len(friends) != 2 || friends[0].Score.PID != 2 || friends[1].Score.PID != 1 {
		t.Errorf("friends = %+v, want pids 2 then 1", friends)
	}
	if friends[1].Rank != 3 {
		t.Errorf("friend rank = %d, want 3 against the whole category", friends[1].Rank)
	}
}

func TestUploadScoreCarriesCommonData(t *testing.T) {
	f := newRankingFixture()
	ctx := context.Background()

	blob := buildCommonData()
	err := f.svc.UploadScore(ctx, 7, &models.RankingScore{Category: 1, Score: 50}, blob, 99)
	if err != nil {
		t.Fatalf("UploadScore: %v", err)
	}

	got, err := f.svc.GetCommonData(ctx, 7)
	if err != nil {
		t.Fatalf("GetCommonData: %v", err)
	}
	if len(got) != commonDataSize {
		t.Errorf("blob size = %d, want %d", len(got), commonDataSize)
	}

	if _, err := f.svc.GetCommonData(ctx, 8); !nex.IsError(err, "Ranking::NotFound") {
		t.Errorf("missing common data err = %v, want Ranking::NotFound", err)
	}
}
