// Package matchmaking implements the gathering state machine: session
// creation, friend-aware joins, host migration and attribute search.
package matchmaking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"amkj-server/internal/db"
	"amkj-server/internal/models"
	"amkj-server/internal/nex"
	"amkj-server/internal/registry"
)

const (
	maxParticipants   = 12
	minAttributeCount = 5
	maxSearchLimit    = 100
)

// friendsOnlyPolicy marks a gathering joinable only by the owner's
// friends.
const friendsOnlyPolicy = 98

// Notification events pushed to surviving participants.
const (
	NotificationOwnershipChanged uint32 = 4000
	NotificationHostChanged      uint32 = 110000
)

// IDAllocator mints ids from the named counter sequences.
type IDAllocator interface {
	NextID(ctx context.Context, name string) (uint32, error)
}

// FriendLister resolves a principal's friend list on the external
// friends service.
type FriendLister interface {
	GetUserFriendPIDs(ctx context.Context, pid uint32) ([]uint32, error)
}

// Presence answers connection liveness; the registry satisfies it.
type Presence interface {
	Connected(pid uint32) bool
	Get(pid uint32) registry.Handle
}

// Service handles gathering lifecycle.
type Service struct {
	store    Store
	ids      IDAllocator
	friends  FriendLister
	presence Presence
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(store Store, ids IDAllocator, friends FriendLister, presence Presence, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		ids:      ids,
		friends:  friends,
		presence: presence,
		logger:   logger.With().Str("component", "matchmaking").Logger(),
		now:      time.Now,
	}
}

func verifyGathering(g *models.Gathering) error {
	if g.Type != models.GatheringTypeMatchmakeSession {
		return nex.Err("Core::InvalidArgument")
	}
	if g.MaxParticipants > maxParticipants {
		return nex.Err("Core::InvalidArgument")
	}
	if g.MinParticipants > g.MaxParticipants {
		return nex.Err("Core::InvalidArgument")
	}
	if len(g.Attributes) < minAttributeCount {
		return nex.Err("Core::InvalidArgument")
	}
	return nil
}

// Create validates the template, mints a gid and seats the creator as
// owner and host. The session key is 16 random bytes, stable for the
// gathering's lifetime.
func (s *Service) Create(ctx context.Context, creatorPID uint32, template *models.Gathering) (*models.Gathering, error) {
	if err := verifyGathering(template); err != nil {
		return nil, err
	}

	gid, err := s.ids.NextID(ctx, db.CounterGathering)
	if err != nil {
		return nil, err
	}

	key := uuid.New()

	g := *template
	g.GID = gid
	g.OwnerPID = creatorPID
	g.HostPID = creatorPID
	g.Players = []uint32{creatorPID}
	g.SessionKey = key[:]
	g.StartedTime = s.now()

	if err := s.store.Insert(ctx, &g); err != nil {
		return nil, err
	}

	s.logger.Info().
		Uint32("gid", gid).
		Uint32("owner", creatorPID).
		Uint32("game_mode", g.GameMode).
		Msg("gathering created")
	return &g, nil
}

// fetchLive loads the gathering and lazily closes it when its host has
// disconnected; callers then see SessionVoid.
func (s *Service) fetchLive(ctx context.Context, gid uint32) (*models.Gathering, error) {
	g, err := s.store.FindByID(ctx, gid)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, nex.Err("RendezVous::SessionVoid")
	}
	if len(g.Players) > 0 && !s.presence.Connected(g.HostPID) {
		if err := s.store.Delete(ctx, gid); err != nil {
			return nil, err
		}
		s.logger.Info().Uint32("gid", gid).Uint32("host", g.HostPID).
			Msg("gathering closed, host gone")
		return nil, nex.Err("RendezVous::SessionVoid")
	}
	return g, nil
}

// Join seats the caller plus extraParticipants anonymous seats. The
// capacity check is atomic with the seat insert; a gathering marked
// friends-only admits only pids on the owner's friend list.
func (s *Service) Join(ctx context.Context, pid, gid uint32, joinMessage string, extraParticipants uint32) ([]byte, error) {
	g, err := s.fetchLive(ctx, gid)
	if err != nil {
		return nil, err
	}

	for _, p := range g.Players {
		if p == pid {
			return nil, nex.Err("RendezVous::AlreadyParticipant")
		}
	}

	if g.ParticipationPolicy == friendsOnlyPolicy {
		friendPIDs, err := s.friends.GetUserFriendPIDs(ctx, g.OwnerPID)
		if err != nil {
			return nil, err
		}
		isFriend := pid == g.OwnerPID
		for _, p := range friendPIDs {
			if p == pid {
				isFriend = true
				break
			}
		}
		if !isFriend {
			return nil, nex.Err("RendezVous::NotFriend")
		}
	}

	applied, err := s.store.AddPlayer(ctx, gid, pid, 1+extraParticipants, joinMessage)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, nex.Err("RendezVous::SessionFull")
	}

	s.logger.Debug().Uint32("gid", gid).Uint32("pid", pid).
		Uint32("extra", extraParticipants).Msg("joined gathering")
	return g.SessionKey, nil
}

// Leave removes the caller. An empty gathering is destroyed; when the
// host leaves, the oldest remaining player inherits and the survivors
// are notified.
func (s *Service) Leave(ctx context.Context, pid, gid uint32) error {
	g, err := s.store.FindByID(ctx, gid)
	if err != nil {
		return err
	}
	if g == nil {
		return nex.Err("RendezVous::SessionVoid")
	}

	remaining := make([]uint32, 0, len(g.Players))
	found := false
	for _, p := range g.Players {
		if p == pid {
			found = true
			continue
		}
		remaining = append(remaining, p)
	}
	if !found {
		return nex.Err("RendezVous::NotParticipant")
	}

	if len(remaining) == 0 {
		if err := s.store.Delete(ctx, gid); err != nil {
			return err
		}
		s.logger.Info().Uint32("gid", gid).Msg("gathering destroyed, last player left")
		return nil
	}

	if err := s.store.RemovePlayer(ctx, gid, pid); err != nil {
		return err
	}

	if g.HostPID == pid {
		newHost := remaining[0]
		if err := s.store.SetHost(ctx, gid, newHost); err != nil {
			return err
		}
		s.notify(remaining, NotificationHostChanged, gid, newHost)
		s.logger.Info().Uint32("gid", gid).Uint32("host", newHost).
			Msg("host migrated")
	}
	return nil
}

// UpdateSessionHost reassigns the host seat. The owner or the current
// host may hand it to any present player.
func (s *Service) UpdateSessionHost(ctx context.Context, requesterPID, gid, newHost uint32) error {
	g, err := s.store.FindByID(ctx, gid)
	if err != nil {
		return err
	}
	if g == nil {
		return nex.Err("RendezVous::SessionVoid")
	}
	if requesterPID != g.OwnerPID && requesterPID != g.HostPID {
		return nex.Err("RendezVous::PermissionDenied")
	}
	if !contains(g.Players, newHost) {
		return nex.Err("RendezVous::NotParticipant")
	}

	if err := s.store.SetHost(ctx, gid, newHost); err != nil {
		return err
	}
	s.notify(g.Players, NotificationHostChanged, gid, newHost)
	return nil
}

// MigrateOwnership reassigns the owner seat to a present player.
func (s *Service) MigrateOwnership(ctx context.Context, requesterPID, gid, newOwner uint32) error {
	g, err := s.store.FindByID(ctx, gid)
	if err != nil {
		return err
	}
	if g == nil {
		return nex.Err("RendezVous::SessionVoid")
	}
	if requesterPID != g.OwnerPID && requesterPID != g.HostPID {
		return nex.Err("RendezVous::PermissionDenied")
	}
	if !contains(g.Players, newOwner) {
		return nex.Err("RendezVous::NotParticipant")
	}

	if err := s.store.SetOwner(ctx, gid, newOwner); err != nil {
		return err
	}
	s.notify(g.Players, NotificationOwnershipChanged, gid, newOwner)
	return nil
}

// Unregister destroys the gathering; only the owner may.
func (s *Service) Unregister(ctx context.Context, requesterPID, gid uint32) error {
	g, err := s.store.FindByID(ctx, gid)
	if err != nil {
		return err
	}
	if g == nil {
		return nex.Err("RendezVous::SessionVoid")
	}
	if g.OwnerPID != requesterPID {
		return nex.Err("RendezVous::PermissionDenied")
	}
	return s.store.Delete(ctx, gid)
}

// FindByID returns the gathering, sweeping it first if its host is
// gone.
func (s *Service) FindByID(ctx context.Context, gid uint32) (*models.Gathering, error) {
	return s.fetchLive(ctx, gid)
}

// FindByAttributes searches MatchmakeSession gatherings matching the
// filter's tournament, region and DLC slots exactly. Gatherings whose
// host has disconnected are swept out of the results.
func (s *Service) FindByAttributes(ctx context.Context, q AttributeQuery, offset, limit uint32) ([]models.Gathering, error) {
	if limit > maxSearchLimit {
		return nil, nex.Err("Core::InvalidArgument")
	}

	found, err := s.store.FindByAttributes(ctx, q, offset, limit)
	if err != nil {
		return nil, err
	}

	live := make([]models.Gathering, 0, len(found))
	for _, g := range found {
		if !s.presence.Connected(g.HostPID) {
			if err := s.store.Delete(ctx, g.GID); err != nil {
				return nil, err
			}
			continue
		}
		live = append(live, g)
	}
	return live, nil
}

// notify pushes a gathering event to every listed pid with a live
// session.
func (s *Service) notify(pids []uint32, event, gid, subject uint32) {
	out := nex.NewStreamOut()
	out.WriteU32(gid)
	out.WriteU32(subject)
	payload := out.Bytes()

	// Player lists may carry repeated entries for reserved seats; each
	// pid hears about the event once.
	seen := make(map[uint32]struct{}, len(pids))
	for _, pid := range pids {
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		if h := s.presence.Get(pid); h != nil {
			h.Notify(event, payload)
		}
	}
}

func contains(pids []uint32, pid uint32) bool {
	for _, p := range pids {
		if p == pid {
			return true
		}
	}
	return false
}
