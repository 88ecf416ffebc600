package rmc

import (
	"context"

	"github.com/rs/zerolog"

	"amkj-server/internal/matchmaking"
	"amkj-server/internal/models"
	"amkj-server/internal/nex"
	"amkj-server/internal/tournament"
)

// MatchmakingHandlers serves the match-making protocol and its title
// extension, which carries both session browsing and the tournament
// simple-search-object surface.
type MatchmakingHandlers struct {
	sessions    *matchmaking.Service
	tournaments *tournament.Service
	logger      zerolog.Logger
}

func NewMatchmakingHandlers(sessions *matchmaking.Service, tournaments *tournament.Service, logger zerolog.Logger) *MatchmakingHandlers {
	return &MatchmakingHandlers{
		sessions:    sessions,
		tournaments: tournaments,
		logger:      logger.With().Str("component", "matchmaking-rmc").Logger(),
	}
}

func (h *MatchmakingHandlers) Register(s *Server) {
	s.Handle(ProtocolMatchMaking, MethodUnregisterGathering, h.UnregisterGathering)
	s.Handle(ProtocolMatchMaking, MethodEndParticipation, h.EndParticipation)
	s.Handle(ProtocolMatchMaking, MethodFindBySingleID, h.FindBySingleID)
	s.Handle(ProtocolMatchMaking, MethodUpdateSessionHost, h.UpdateSessionHost)
	s.Handle(ProtocolMatchMaking, MethodMigrateOwnership, h.MigrateOwnership)

	s.Handle(ProtocolMatchmakeExtension, MethodCreateMatchmakeSession, h.CreateMatchmakeSession)
	s.Handle(ProtocolMatchmakeExtension, MethodJoinMatchmakeSession, h.JoinMatchmakeSession)
	s.Handle(ProtocolMatchmakeExtension, MethodBrowseMatchmakeSession, h.BrowseMatchmakeSession)
	s.Handle(ProtocolMatchmakeExtension, MethodJoinMatchmakeSessionWithExtraParticipants, h.JoinWithExtraParticipants)

	s.Handle(ProtocolMatchmakeExtension, MethodCreateSimpleSearchObject, h.CreateSimpleSearchObject)
	s.Handle(ProtocolMatchmakeExtension, MethodUpdateSimpleSearchObject, h.UpdateSimpleSearchObject)
	s.Handle(ProtocolMatchmakeExtension, MethodDeleteSimpleSearchObject, h.DeleteSimpleSearchObject)
	s.Handle(ProtocolMatchmakeExtension, MethodSearchSimpleSearchObject, h.SearchSimpleSearchObject)
	s.Handle(ProtocolMatchmakeExtension, MethodSearchSimpleSearchObjectByObjectIDs, h.SearchSimpleSearchObjectByObjectIDs)
}

// --- gathering codec ---

func readGathering(in *nex.StreamIn) *models.Gathering {
	g := &models.Gathering{Type: models.GatheringTypeMatchmakeSession}
	g.GID = in.ReadU32()
	g.OwnerPID = in.ReadPID()
	g.HostPID = in.ReadPID()
	g.MinParticipants = in.ReadU16()
	g.MaxParticipants = in.ReadU16()
	g.ParticipationPolicy = in.ReadU32()
	g.PolicyArgument = in.ReadU32()
	g.Flags = in.ReadU32()
	g.State = in.ReadU32()
	g.Description = in.ReadString()
	g.GameMode = in.ReadU32()
	g.Attributes = in.ReadListU32()
	g.OpenParticipation = in.ReadBool()
	g.ApplicationData = in.ReadBuffer()
	return g
}

func writeGathering(out *nex.StreamOut, g *models.Gathering) {
	out.WriteU32(g.GID)
	out.WritePID(g.OwnerPID)
	out.WritePID(g.HostPID)
	out.WriteU16(g.MinParticipants)
	out.WriteU16(g.MaxParticipants)
	out.WriteU32(g.ParticipationPolicy)
	out.WriteU32(g.PolicyArgument)
	out.WriteU32(g.Flags)
	out.WriteU32(g.State)
	out.WriteString(g.Description)
	out.WriteU32(g.GameMode)
	out.WriteListU32(g.Attributes)
	out.WriteBool(g.OpenParticipation)
	out.WriteBuffer(g.ApplicationData)
	out.WriteU32(uint32(len(g.Players)))
	out.WriteDateTime(nex.DateTimeFromTime(g.StartedTime))
}

// --- match making ---

func (h *MatchmakingHandlers) UnregisterGathering(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	gid := in.ReadU32()
	if err := h.sessions.Unregister(ctx, c.PID(), gid); err != nil {
		return nil, err
	}
	out := nex.NewStreamOut()
	out.WriteBool(true)
	return out, nil
}

func (h *MatchmakingHandlers) EndParticipation(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	gid := in.ReadU32()
	_ = in.ReadString() // leave message
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}
	if err := h.sessions.Leave(ctx, c.PID(), gid); err != nil {
		return nil, err
	}
	out := nex.NewStreamOut()
	out.WriteBool(true)
	return out, nil
}

func (h *MatchmakingHandlers) FindBySingleID(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	gid := in.ReadU32()
	g, err := h.sessions.FindByID(ctx, gid)
	if err != nil {
		return nil, err
	}
	out := nex.NewStreamOut()
	out.WriteBool(true)
	writeGathering(out, g)
	return out, nil
}

func (h *MatchmakingHandlers) UpdateSessionHost(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	gid := in.ReadU32()
	newHost := in.ReadPID()
	if err := h.sessions.UpdateSessionHost(ctx, c.PID(), gid, newHost); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *MatchmakingHandlers) MigrateOwnership(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	gid := in.ReadU32()
	newOwner := in.ReadPID()
	if err := h.sessions.MigrateOwnership(ctx, c.PID(), gid, newOwner); err != nil {
		return nil, err
	}
	return nil, nil
}

// --- matchmake extension ---

func (h *MatchmakingHandlers) CreateMatchmakeSession(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	template := readGathering(in)
	_ = in.ReadString() // join message, nothing to deliver it to yet
	_ = in.ReadU16()    // participation count
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	g, err := h.sessions.Create(ctx, c.PID(), template)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteU32(g.GID)
	out.WriteBuffer(g.SessionKey)
	return out, nil
}

func (h *MatchmakingHandlers) JoinMatchmakeSession(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	gid := in.ReadU32()
	joinMessage := in.ReadString()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	key, err := h.sessions.Join(ctx, c.PID(), gid, joinMessage, 0)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteBuffer(key)
	return out, nil
}

func (h *MatchmakingHandlers) JoinWithExtraParticipants(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	gid := in.ReadU32()
	joinMessage := in.ReadString()
	_ = in.ReadBool() // ignore blacklist; no blacklist service deployed
	_ = in.ReadU16()  // participation count
	extraParticipants := in.ReadU32()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	key, err := h.sessions.Join(ctx, c.PID(), gid, joinMessage, extraParticipants)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteBuffer(key)
	return out, nil
}

// BrowseMatchmakeSession matches on the tournament, region and DLC
// attribute slots of the requested template.
func (h *MatchmakingHandlers) BrowseMatchmakeSession(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	attributes := in.ReadListU32()
	offset := in.ReadU32()
	size := in.ReadU32()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}
	if len(attributes) < 5 {
		return nil, nex.Err("Core::InvalidArgument")
	}

	found, err := h.sessions.FindByAttributes(ctx, matchmaking.AttributeQuery{
		TournamentID: attributes[0],
		Region:       attributes[3],
		DLCStatus:    attributes[4],
	}, offset, size)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteU32(uint32(len(found)))
	for i := range found {
		writeGathering(out, &found[i])
	}
	return out, nil
}

// --- simple search object codec ---

func readTournamentObject(in *nex.StreamIn) *models.Tournament {
	t := &models.Tournament{}
	t.ID = in.ReadU32()
	t.OwnerPID = in.ReadPID()
	t.Attributes = in.ReadListU32()
	t.Metadata = in.ReadBuffer()
	t.CommunityID = in.ReadU32()
	t.CommunityCode = in.ReadString()
	t.Datetime = models.TournamentDatetime{
		StartDaytime:  in.ReadU32(),
		EndDaytime:    in.ReadU32(),
		StartTime:     in.ReadU32(),
		EndTime:       in.ReadU32(),
		StartDatetime: in.ReadU64(),
		EndDatetime:   in.ReadU64(),
	}
	return t
}

func writeTournamentObject(out *nex.StreamOut, t *models.Tournament) {
	out.WriteU32(t.ID)
	out.WritePID(t.OwnerPID)
	out.WriteListU32(t.Attributes)
	out.WriteBuffer(t.Metadata)
	out.WriteU32(t.CommunityID)
	out.WriteString(t.CommunityCode)
	out.WriteU32(t.Datetime.StartDaytime)
	out.WriteU32(t.Datetime.EndDaytime)
	out.WriteU32(t.Datetime.StartTime)
	out.WriteU32(t.Datetime.EndTime)
	out.WriteU64(t.Datetime.StartDatetime)
	out.WriteU64(t.Datetime.EndDatetime)
}

func (h *MatchmakingHandlers) CreateSimpleSearchObject(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	obj := readTournamentObject(in)
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	id, err := h.tournaments.Create(ctx, c.PID(), obj)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteU32(id)
	return out, nil
}

func (h *MatchmakingHandlers) UpdateSimpleSearchObject(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	id := in.ReadU32()
	obj := readTournamentObject(in)
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}
	return nil, h.tournaments.UpdateObject(ctx, c.PID(), id, obj)
}

func (h *MatchmakingHandlers) DeleteSimpleSearchObject(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	id := in.ReadU32()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}
	return nil, h.tournaments.DeleteObject(ctx, c.PID(), id)
}

func (h *MatchmakingHandlers) SearchSimpleSearchObject(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	param := tournament.SearchParam{
		ID:    in.ReadU32(),
		Owner: in.ReadPID(),
	}
	conditionCount := in.ReadU32()
	for i := uint32(0); i < conditionCount && in.Err() == nil; i++ {
		param.Conditions = append(param.Conditions, tournament.Condition{
			Value:    in.ReadU32(),
			Operator: in.ReadU32(),
		})
	}
	param.CommunityCode = in.ReadString()
	param.Offset = in.ReadU32()
	param.Size = in.ReadU32()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	found, err := h.tournaments.Search(ctx, param)
	if err != nil {
		return nil, err
	}
	return writeTournamentList(found), nil
}

func (h *MatchmakingHandlers) SearchSimpleSearchObjectByObjectIDs(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	ids := in.ReadListU32()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	found, err := h.tournaments.SearchByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return writeTournamentList(found), nil
}

func writeTournamentList(objects []models.Tournament) *nex.StreamOut {
	out := nex.NewStreamOut()
	out.WriteU32(uint32(len(objects)))
	for i := range objects {
		writeTournamentObject(out, &objects[i])
	}
	return out
}
