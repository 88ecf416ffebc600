package rmc

import (
	"context"

	"github.com/rs/zerolog"

	"amkj-server/internal/models"
	"amkj-server/internal/nex"
	"amkj-server/internal/ranking"
)

// Ranking modes on the general GetRanking call.
const (
	rankingModeRange uint8 = 0
	rankingModeSelf  uint8 = 4
)

// RankingHandlers serves both leaderboard surfaces: the general
// per-category rankings and the tournament competition calls.
type RankingHandlers struct {
	svc    *ranking.Service
	logger zerolog.Logger
}

func NewRankingHandlers(svc *ranking.Service, logger zerolog.Logger) *RankingHandlers {
	return &RankingHandlers{
		svc:    svc,
		logger: logger.With().Str("component", "ranking-rmc").Logger(),
	}
}

func (h *RankingHandlers) Register(s *Server) {
	s.Handle(ProtocolRanking, MethodUploadScore, h.UploadScore)
	s.Handle(ProtocolRanking, MethodUploadCommonData, h.UploadCommonData)
	s.Handle(ProtocolRanking, MethodGetCommonData, h.GetCommonData)
	s.Handle(ProtocolRanking, MethodGetRanking, h.GetRanking)
	s.Handle(ProtocolRanking, MethodGetRankingByPIDList, h.GetRankingByPIDList)
	s.Handle(ProtocolRanking, MethodGetCompetitionRankingScore, h.GetCompetitionRankingScore)
	s.Handle(ProtocolRanking, MethodUploadCompetitionRankingScore, h.UploadCompetitionRankingScore)
	s.Handle(ProtocolRanking, MethodGetCompetitionInfo, h.GetCompetitionInfo)
}

// --- general rankings ---

func (h *RankingHandlers) UploadScore(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	score := &models.RankingScore{
		Category: in.ReadU32(),
		Score:    in.ReadU32(),
		Groups:   in.ReadQBuffer(),
		Param:    in.ReadU64(),
	}
	uniqueID := in.ReadU64()
	commonData := in.ReadBuffer()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	if err := h.svc.UploadScore(ctx, c.PID(), score, commonData, uniqueID); err != nil {
		return nil, err
	}
	out := nex.NewStreamOut()
	out.WriteBool(true)
	return out, nil
}

func (h *RankingHandlers) UploadCommonData(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	data := in.ReadBuffer()
	uniqueID := in.ReadU64()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	if err := h.svc.UploadCommonData(ctx, c.PID(), data, uniqueID); err != nil {
		return nil, err
	}
	out := nex.NewStreamOut()
	out.WriteBool(true)
	return out, nil
}

func (h *RankingHandlers) GetCommonData(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	pid := in.ReadPID()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	data, err := h.svc.GetCommonData(ctx, pid)
	if err != nil {
		return nil, err
	}
	out := nex.NewStreamOut()
	out.WriteBuffer(data)
	return out, nil
}

// GetRanking pages a category. Mode 0 walks the category from the
// requested offset; mode 4 returns just the caller's row and rank.
func (h *RankingHandlers) GetRanking(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	mode := in.ReadU8()
	category := in.ReadU32()
	offset := in.ReadU32()
	size := in.ReadU32()
	pid := in.ReadPID()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	switch mode {
	case rankingModeRange:
		rows, err := h.svc.GetRankingByRange(ctx, category, offset, size)
		if err != nil {
			return nil, err
		}
		return writeRankedScores(rows), nil
	case rankingModeSelf:
		if pid == 0 {
			pid = c.PID()
		}
		row, err := h.svc.GetRankingByPID(ctx, category, pid)
		if err != nil {
			return nil, err
		}
		return writeRankedScores([]ranking.RankedScore{*row}), nil
	default:
		return nil, nex.Err("Core::InvalidArgument")
	}
}

func (h *RankingHandlers) GetRankingByPIDList(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	pids := in.ReadListU32()
	category := in.ReadU32()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	rows, err := h.svc.GetRankingByPIDs(ctx, category, pids)
	if err != nil {
		return nil, err
	}
	return writeRankedScores(rows), nil
}

func writeRankedScores(rows []ranking.RankedScore) *nex.StreamOut {
	out := nex.NewStreamOut()
	out.WriteU32(uint32(len(rows)))
	for _, row := range rows {
		out.WriteU32(row.Rank)
		out.WritePID(row.Score.PID)
		out.WriteU32(row.Score.Category)
		out.WriteU32(row.Score.Score)
		out.WriteQBuffer(row.Score.Groups)
		out.WriteU64(row.Score.Param)
		out.WriteDateTime(nex.DateTimeFromTime(row.Score.LastUpdate))
	}
	return out
}

// --- tournament competition ---

func (h *RankingHandlers) GetCompetitionRankingScore(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	tournamentID := in.ReadU32()
	_ = in.ReadU32() // range offset, seasons always end at the current one
	size := in.ReadU32()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	seasons, err := h.svc.GetCompetitionRankingScore(ctx, tournamentID, size)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteU32(uint32(len(seasons)))
	for _, season := range seasons {
		out.WriteU32(season.SeasonID)
		out.WriteU32(uint32(season.NumParticipants))
		out.WriteU32(4)
		for _, v := range season.TeamScores {
			out.WriteU32(uint32(v))
		}
		out.WriteU32(uint32(len(season.Scores)))
		for _, row := range season.Scores {
			out.WriteU32(row.Rank)
			out.WritePID(row.PID)
			out.WriteU32(row.Score)
			out.WriteU32(row.TeamID)
			out.WriteDateTime(nex.DateTimeFromTime(row.LastUpdate))
			out.WriteBuffer(row.Metadata)
		}
	}
	return out, nil
}

func (h *RankingHandlers) UploadCompetitionRankingScore(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	param := ranking.CompetitionUploadParam{
		TournamentID: in.ReadU32(),
		SeasonID:     in.ReadU32(),
		Score:        in.ReadU32(),
		TeamID:       in.ReadU32(),
		TeamScore:    in.ReadU32(),
		Metadata:     in.ReadBuffer(),
	}
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	if err := h.svc.UploadCompetitionScore(ctx, c.PID(), param); err != nil {
		return nil, err
	}
	out := nex.NewStreamOut()
	out.WriteBool(true)
	return out, nil
}

func (h *RankingHandlers) GetCompetitionInfo(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	offset := in.ReadU32()
	size := in.ReadU32()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	infos, err := h.svc.GetCompetitionInfo(ctx, offset, size)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteU32(uint32(len(infos)))
	for _, info := range infos {
		out.WriteU32(info.TournamentID)
		out.WriteU32(uint32(info.NumParticipants))
		out.WriteU32(4)
		for _, v := range info.TeamScores {
			out.WriteU32(uint32(v))
		}
	}
	return out, nil
}
