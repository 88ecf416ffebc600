// Package admin exposes the operator side channel: fleet status,
// maintenance scheduling, whitelist management, connection control and
// read-only views over the live game state. Everything is JSON over
// HTTP, gated by a shared API key.
package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"amkj-server/internal/models"
)

// miiNameFallback is shown for players whose common data never arrived;
// rejoining a race uploads it.
const miiNameFallback = "<Restart game>"

const listPageSize = 1000

// StatusController is the slice of the status engine the API drives.
type StatusController interface {
	Snapshot() models.ServerStatus
	StartMaintenance(start, end time.Time)
	EndMaintenance()
	ToggleWhitelist() bool
	Whitelist() []uint32
	AddWhitelistUser(pid uint32)
	DelWhitelistUser(pid uint32)
}

// Connections is the slice of the connection registry the API drives.
type Connections interface {
	Snapshot() []uint32
	Count() int
	Kick(pid uint32) bool
	KickAll() int
}

// GatheringLister pages every stored gathering.
type GatheringLister interface {
	ListAll(ctx context.Context, offset, limit int64) ([]models.Gathering, error)
}

// TournamentLister pages every stored tournament.
type TournamentLister interface {
	ListAll(ctx context.Context, offset, limit int64) ([]models.Tournament, error)
}

// CommonDataFinder resolves a player's decoded common data; nil means
// the player never uploaded any.
type CommonDataFinder interface {
	Find(ctx context.Context, pid uint32) (*models.CommonData, error)
}

// timestamp is the wire form of an instant.
type timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int64 `json:"nanos"`
}

func toTimestamp(t time.Time) timestamp {
	return timestamp{Seconds: t.Unix(), Nanos: int64(t.Nanosecond())}
}

func (t timestamp) time() time.Time {
	return time.Unix(t.Seconds, t.Nanos).UTC()
}

// Server is the admin API.
type Server struct {
	status      StatusController
	connections Connections
	gatherings  GatheringLister
	tournaments TournamentLister
	commonData  CommonDataFinder
	apiKey      string
	logger      zerolog.Logger
	metrics     *metrics
}

func NewServer(status StatusController, connections Connections, gatherings GatheringLister,
	tournaments TournamentLister, commonData CommonDataFinder, apiKey string, logger zerolog.Logger) *Server {
	s := &Server{
		status:      status,
		connections: connections,
		gatherings:  gatherings,
		tournaments: tournaments,
		commonData:  commonData,
		apiKey:      apiKey,
		logger:      logger.With().Str("component", "admin").Logger(),
	}
	s.metrics = newMetrics(connections.Count)
	return s
}

// Router builds the gin engine with auth, rate limiting and metrics
// applied to every API route. /metrics itself only needs the key.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), apiKeyAuth(s.apiKey))

	router.GET("/metrics", s.metrics.handler())

	api := router.Group("/v1")
	api.Use(newRateLimiter().middleware(), s.metrics.middleware())

	api.GET("/status", s.getServerStatus)
	api.POST("/maintenance/start", s.startMaintenance)
	api.POST("/maintenance/end", s.endMaintenance)

	api.POST("/whitelist/toggle", s.toggleWhitelist)
	api.GET("/whitelist", s.getWhitelist)
	api.POST("/whitelist/:pid", s.addWhitelistUser)
	api.DELETE("/whitelist/:pid", s.delWhitelistUser)

	api.GET("/users", s.getAllUsers)
	api.POST("/users/kick_all", s.kickAllUsers)
	api.POST("/users/:pid/kick", s.kickUser)
	api.GET("/users/:pid/unlocks", s.getUnlocks)

	api.GET("/gatherings", s.getAllGatherings)
	api.GET("/tournaments", s.getAllTournaments)

	return router
}

func pageParams(c *gin.Context) (offset, limit int64) {
	offset, _ = strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	limit, _ = strconv.ParseInt(c.DefaultQuery("limit", "0"), 10, 64)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > listPageSize {
		limit = listPageSize
	}
	return offset, limit
}

func pidParam(c *gin.Context) (uint32, bool) {
	pid, err := strconv.ParseUint(c.Param("pid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pid"})
		return 0, false
	}
	return uint32(pid), true
}

func (s *Server) getServerStatus(c *gin.Context) {
	snapshot := s.status.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"is_online":                    snapshot.IsOnline,
		"is_maintenance":               snapshot.IsMaintenance,
		"is_whitelist":                 snapshot.IsWhitelist,
		"num_clients":                  s.connections.Count(),
		"start_maintenance_time":       toTimestamp(snapshot.StartMaintenanceTime),
		"end_maintenance_time":         toTimestamp(snapshot.EndMaintenanceTime),
		"should_switch_to_maintenance": snapshot.ShouldSwitchToMaintenance,
	})
}

func (s *Server) startMaintenance(c *gin.Context) {
	var req struct {
		Start timestamp `json:"start"`
		End   timestamp `json:"end"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	start, end := req.Start.time(), req.End.time()
	if !end.After(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be after start"})
		return
	}

	s.status.StartMaintenance(start, end)
	s.logger.Info().Time("start", start).Time("end", end).Msg("maintenance scheduled")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) endMaintenance(c *gin.Context) {
	s.status.EndMaintenance()
	s.logger.Info().Msg("maintenance ended")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) toggleWhitelist(c *gin.Context) {
	enabled := s.status.ToggleWhitelist()
	s.logger.Info().Bool("enabled", enabled).Msg("whitelist toggled")
	c.JSON(http.StatusOK, gin.H{"is_whitelist": enabled})
}

func (s *Server) getWhitelist(c *gin.Context) {
	pids := s.status.Whitelist()
	if pids == nil {
		pids = []uint32{}
	}
	c.JSON(http.StatusOK, gin.H{"pids": pids})
}

func (s *Server) addWhitelistUser(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	s.status.AddWhitelistUser(pid)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) delWhitelistUser(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	s.status.DelWhitelistUser(pid)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) getAllUsers(c *gin.Context) {
	pids := s.connections.Snapshot()

	users := make([]gin.H, 0, len(pids))
	for _, pid := range pids {
		users = append(users, gin.H{
			"pid":      pid,
			"mii_name": s.miiName(c.Request.Context(), pid),
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) kickUser(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	wasConnected := s.connections.Kick(pid)
	s.logger.Info().Uint32("pid", pid).Bool("was_connected", wasConnected).Msg("kicked user")
	c.JSON(http.StatusOK, gin.H{"was_connected": wasConnected})
}

func (s *Server) kickAllUsers(c *gin.Context) {
	kicked := s.connections.KickAll()
	s.logger.Info().Int("kicked", kicked).Msg("kicked all users")
	c.JSON(http.StatusOK, gin.H{"num_kicked": kicked})
}

func (s *Server) getAllGatherings(c *gin.Context) {
	offset, limit := pageParams(c)
	gatherings, err := s.gatherings.ListAll(c.Request.Context(), offset, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list gatherings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}

	out := make([]gin.H, 0, len(gatherings))
	for _, g := range gatherings {
		players := make([]gin.H, 0, len(g.Players))
		for _, pid := range g.Players {
			players = append(players, gin.H{
				"pid":      pid,
				"mii_name": s.miiName(c.Request.Context(), pid),
			})
		}
		out = append(out, gin.H{
			"id":               g.GID,
			"type":             g.Type,
			"owner":            g.OwnerPID,
			"host":             g.HostPID,
			"game_mode":        g.GameMode,
			"attributes":       g.Attributes,
			"min_participants": g.MinParticipants,
			"max_participants": g.MaxParticipants,
			"players":          players,
			"started_time":     toTimestamp(g.StartedTime),
		})
	}
	c.JSON(http.StatusOK, gin.H{"gatherings": out})
}

func (s *Server) getAllTournaments(c *gin.Context) {
	offset, limit := pageParams(c)
	tournaments, err := s.tournaments.ListAll(c.Request.Context(), offset, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list tournaments")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}

	out := make([]gin.H, 0, len(tournaments))
	for _, t := range tournaments {
		// Private tournaments never leave the game surface.
		if len(t.Attributes) == 0 || t.Attributes[0] != 1 {
			continue
		}
		out = append(out, gin.H{
			"id":                 t.ID,
			"owner":              t.OwnerPID,
			"attributes":         t.Attributes,
			"community_code":     t.CommunityCode,
			"season_id":          t.SeasonID,
			"total_participants": t.TotalParticipants,
			"name":               t.ParsedMetadata.Name,
			"description":        t.ParsedMetadata.Description,
			"red_team":           t.ParsedMetadata.RedTeam,
			"blue_team":          t.ParsedMetadata.BlueTeam,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tournaments": out})
}

func (s *Server) getUnlocks(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}

	data, err := s.commonData.Find(c.Request.Context(), pid)
	if err != nil {
		s.logger.Error().Err(err).Uint32("pid", pid).Msg("find common data")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	if data == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no common data for pid"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pid":            pid,
		"mii_name":       data.MiiName,
		"vr_rate":        data.VRRate,
		"br_rate":        data.BRRate,
		"gp_unlocks":     data.GPUnlocks,
		"engine_unlocks": data.EngineUnlocks,
		"driver_unlocks": data.DriverUnlocks,
		"body_unlocks":   data.BodyUnlocks,
		"tire_unlocks":   data.TireUnlocks,
		"wing_unlocks":   data.WingUnlocks,
		"stamp_unlocks":  data.StampUnlocks,
		"dlc_unlocks":    data.DLCUnlocks,
	})
}

func (s *Server) miiName(ctx context.Context, pid uint32) string {
	data, err := s.commonData.Find(ctx, pid)
	if err != nil || data == nil || data.MiiName == "" {
		return miiNameFallback
	}
	return data.MiiName
}
