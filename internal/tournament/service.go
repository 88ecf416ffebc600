// Package tournament implements the simple-search-object subsystem:
// tournaments with a fixed-width attribute array used as a search key,
// a 12-digit community join code, and chunked binary metadata.
package tournament

import (
	"context"

	"github.com/rs/zerolog"

	"amkj-server/internal/db"
	"amkj-server/internal/models"
	"amkj-server/internal/nex"
)

// IDAllocator mints ids from the named counter sequences.
type IDAllocator interface {
	NextID(ctx context.Context, name string) (uint32, error)
}

// SearchParam is the decoded search request before compilation.
type SearchParam struct {
	ID            uint32
	Owner         uint32
	CommunityCode string
	Conditions    []Condition
	Offset        uint32
	Size          uint32
}

const maxSearchSize = 100

// Service handles tournament lifecycle and search.
type Service struct {
	store  Store
	ids    IDAllocator
	logger zerolog.Logger
}

func NewService(store Store, ids IDAllocator, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		ids:    ids,
		logger: logger.With().Str("component", "tournament").Logger(),
	}
}

// verify checks everything about an incoming object except community
// code uniqueness, and returns the parsed metadata.
func (s *Service) verify(obj *models.Tournament) (*models.ParsedMetadata, error) {
	if err := ValidateAttributes(obj.Attributes); err != nil {
		return nil, err
	}
	meta, err := ParseMetadata(obj.Metadata)
	if err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}
	return meta, nil
}

// Create validates and stores a new tournament owned by the caller.
// Returns the minted id.
func (s *Service) Create(ctx context.Context, ownerPID uint32, obj *models.Tournament) (uint32, error) {
	meta, err := s.verify(obj)
	if err != nil {
		return 0, err
	}
	if obj.CommunityID == 0 {
		return 0, nex.Err("Core::InvalidArgument")
	}
	if err := ValidateCommunityCode(obj.CommunityCode); err != nil {
		return 0, err
	}

	existing, err := s.store.FindByCommunityCode(ctx, obj.CommunityCode)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, nex.Err("Core::InvalidArgument")
	}

	id, err := s.ids.NextID(ctx, db.CounterTournament)
	if err != nil {
		return 0, err
	}

	record := *obj
	record.ID = id
	record.OwnerPID = ownerPID
	record.SeasonID = 1
	record.TotalParticipants = 0
	record.ParsedMetadata = *meta

	if err := s.store.Insert(ctx, &record); err != nil {
		return 0, err
	}

	s.logger.Info().
		Uint32("id", id).
		Uint32("owner", ownerPID).
		Str("name", meta.Name).
		Msg("tournament created")
	return id, nil
}

// UpdateObject rewrites attributes, metadata and schedule. Season and
// participant totals are untouched. Only the owner may update.
func (s *Service) UpdateObject(ctx context.Context, requesterPID, id uint32, obj *models.Tournament) error {
	meta, err := s.verify(obj)
	if err != nil {
		return err
	}

	existing, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nex.Err("Core::InvalidIndex")
	}
	if existing.OwnerPID != requesterPID {
		return nex.Err("Core::AccessDenied")
	}

	return s.store.Update(ctx, id, Update{
		Attributes:     obj.Attributes,
		Metadata:       obj.Metadata,
		Datetime:       obj.Datetime,
		ParsedMetadata: *meta,
	})
}

// DeleteObject removes the record. Scores and counters are left behind
// for audit; they become unreachable through the search surfaces.
func (s *Service) DeleteObject(ctx context.Context, requesterPID, id uint32) error {
	existing, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nex.Err("Core::InvalidIndex")
	}
	if existing.OwnerPID != requesterPID {
		return nex.Err("Core::AccessDenied")
	}
	return s.store.Delete(ctx, id)
}

// Search compiles the param into a conjunctive filter set and pages the
// results.
func (s *Service) Search(ctx context.Context, param SearchParam) ([]models.Tournament, error) {
	if len(param.CommunityCode) > CommunityCodeLength {
		return nil, nex.Err("Core::InvalidArgument")
	}
	if param.Size > maxSearchSize {
		return nil, nex.Err("Core::InvalidArgument")
	}

	filters, err := CompileConditions(param.Conditions)
	if err != nil {
		return nil, err
	}

	// An unconstrained search returns nothing rather than the whole
	// collection.
	if param.ID == 0 && param.Owner == 0 && param.CommunityCode == "" && len(filters) == 0 {
		return nil, nil
	}

	return s.store.Search(ctx, SearchQuery{
		ID:            param.ID,
		Owner:         param.Owner,
		CommunityCode: param.CommunityCode,
		Filters:       filters,
		Offset:        param.Offset,
		Size:          param.Size,
	})
}

// SearchByIDs returns the tournaments whose ids are in the set; unknown
// ids are silently dropped.
func (s *Service) SearchByIDs(ctx context.Context, ids []uint32) ([]models.Tournament, error) {
	if len(ids) > maxSearchSize {
		return nil, nex.Err("Core::InvalidArgument")
	}
	return s.store.FindByIDs(ctx, ids)
}
