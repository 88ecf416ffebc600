package datastore

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"amkj-server/internal/db"
	"amkj-server/internal/models"
	"amkj-server/internal/nex"
)

// ChangeMeta modifies-flag bits; a clear bit leaves the column alone.
const (
	ModifyName uint32 = 1 << iota
	ModifyPermission
	ModifyDeletePermission
	ModifyPeriod
	ModifyMetaBinary
	ModifyTags
	ModifyUpdatePassword
	ModifyReferredCount
	ModifyDataType
	ModifyStatus
)

// ChangeMetaParam mirrors the wire structure; every listed field is
// required on the wire, so decoding enforces presence.
type ChangeMetaParam struct {
	DataID           uint64
	ModifiesFlag     uint32
	Name             string
	Permission       models.Permission
	DeletePermission models.Permission
	Period           uint16
	MetaBinary       []byte
	Tags             []string
	UpdatePassword   uint64
	ReferredCount    uint32
	DataType         uint16
	Status           uint8
}

// anyDataType is the wire sentinel for "no data-type filter".
const anyDataType = 0xFFFF

const maxSearchSize = 100

// SearchParam is the decoded object search request.
type SearchParam struct {
	OwnerIDs      []uint32
	DataType      uint16
	CreatedAfter  time.Time
	CreatedBefore time.Time
	UpdatedAfter  time.Time
	UpdatedBefore time.Time
	Tags          []string
	Offset        uint32
	Size          uint32
}

// ObjectResult pairs an object's metadata with its blob presence.
type ObjectResult struct {
	Meta models.DataStoreObject
	Blob ObjectInfo
}

// PostParam is the decoded upload preparation request.
type PostParam struct {
	Size             uint32
	Name             string
	DataType         uint16
	MetaBinary       []byte
	Permission       models.Permission
	DeletePermission models.Permission
	Flag             uint32
	Period           uint16
	Tags             []string
	PersistenceID    uint32
	DeleteLastObject bool
}

// PostInfo tells the client where to upload the blob it just announced.
type PostInfo struct {
	DataID uint64
	URL    string
}

// IDAllocator mints object ids from the named counter sequence.
type IDAllocator interface {
	NextID(ctx context.Context, name string) (uint32, error)
}

// Service handles metadata reads, flag-guarded updates and the
// two-phase object post.
type Service struct {
	store  Store
	prober Prober
	ids    IDAllocator
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, prober Prober, ids IDAllocator, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		prober: prober,
		ids:    ids,
		logger: logger.With().Str("component", "datastore").Logger(),
		now:    time.Now,
	}
}

// GetMeta resolves by data id, or by (owner, persistence id) when the
// data id is zero.
func (s *Service) GetMeta(ctx context.Context, dataID uint64, owner, persistenceID uint32) (*models.DataStoreObject, error) {
	var (
		obj *models.DataStoreObject
		err error
	)
	if dataID != 0 {
		obj, err = s.store.FindByDataID(ctx, dataID)
	} else {
		obj, err = s.store.FindByPersistence(ctx, owner, persistenceID)
	}
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, nex.Err("DataStore::NotFound")
	}
	return obj, nil
}

// ChangeMeta applies the flag-selected columns. The owner may always
// update; anyone else needs the object's update password.
func (s *Service) ChangeMeta(ctx context.Context, pid uint32, param ChangeMetaParam) error {
	obj, err := s.store.FindByDataID(ctx, param.DataID)
	if err != nil {
		return err
	}
	if obj == nil {
		return nex.Err("DataStore::NotFound")
	}
	if obj.OwnerPID != pid && (obj.UpdatePassword == 0 || obj.UpdatePassword != param.UpdatePassword) {
		return nex.Err("DataStore::PermissionDenied")
	}

	if param.ModifiesFlag&ModifyName != 0 {
		obj.Name = param.Name
	}
	if param.ModifiesFlag&ModifyPermission != 0 {
		obj.Permission = param.Permission
	}
	if param.ModifiesFlag&ModifyDeletePermission != 0 {
		obj.DeletePermission = param.DeletePermission
	}
	if param.ModifiesFlag&ModifyPeriod != 0 {
		obj.Period = param.Period
	}
	if param.ModifiesFlag&ModifyMetaBinary != 0 {
		obj.MetaBinary = param.MetaBinary
	}
	if param.ModifiesFlag&ModifyTags != 0 {
		obj.Tags = param.Tags
	}
	if param.ModifiesFlag&ModifyUpdatePassword != 0 {
		obj.UpdatePassword = param.UpdatePassword
	}
	if param.ModifiesFlag&ModifyReferredCount != 0 {
		obj.ReferredCount = param.ReferredCount
	}
	if param.ModifiesFlag&ModifyDataType != 0 {
		obj.DataType = param.DataType
	}
	if param.ModifiesFlag&ModifyStatus != 0 {
		obj.Status = param.Status
	}
	obj.UpdatedTime = s.now()

	if err := s.store.Replace(ctx, obj); err != nil {
		return err
	}
	s.logger.Debug().Uint64("data_id", param.DataID).
		Uint32("flags", param.ModifiesFlag).Msg("metadata changed")
	return nil
}

// PreparePostObject allocates a data id, records the announced metadata
// and hands back the CDN address the client uploads the blob to. With
// DeleteLastObject set, the caller's previous object in the same
// persistence slot is dropped first.
func (s *Service) PreparePostObject(ctx context.Context, pid uint32, param PostParam) (*PostInfo, error) {
	if param.DeleteLastObject {
		prev, err := s.store.FindByPersistence(ctx, pid, param.PersistenceID)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			if err := s.store.Delete(ctx, prev.DataID); err != nil {
				return nil, err
			}
		}
	}

	id, err := s.ids.NextID(ctx, db.CounterDataStoreObject)
	if err != nil {
		return nil, err
	}

	now := s.now()
	obj := &models.DataStoreObject{
		DataID:           uint64(id),
		OwnerPID:         pid,
		Name:             param.Name,
		DataType:         param.DataType,
		MetaBinary:       param.MetaBinary,
		Permission:       param.Permission,
		DeletePermission: param.DeletePermission,
		Period:           param.Period,
		Flag:             param.Flag,
		PersistenceID:    param.PersistenceID,
		Tags:             param.Tags,
		Size:             param.Size,
		CreatedTime:      now,
		UpdatedTime:      now,
		ExpireTime:       now.AddDate(0, 0, int(param.Period)),
	}
	if err := s.store.Insert(ctx, obj); err != nil {
		return nil, err
	}

	key := ObjectKey(pid, obj.PersistenceID, obj.DataID)
	s.logger.Debug().Uint64("data_id", obj.DataID).Uint32("owner", pid).
		Str("key", key).Msg("post prepared")
	return &PostInfo{DataID: obj.DataID, URL: s.prober.URL(key)}, nil
}

// CompletePostObject settles a prepared post. A failed upload drops the
// metadata again; a successful one records the uploaded size.
func (s *Service) CompletePostObject(ctx context.Context, pid uint32, dataID uint64, size uint32, success bool) error {
	obj, err := s.store.FindByDataID(ctx, dataID)
	if err != nil {
		return err
	}
	if obj == nil {
		return nex.Err("DataStore::NotFound")
	}
	if obj.OwnerPID != pid {
		return nex.Err("DataStore::PermissionDenied")
	}

	if !success {
		s.logger.Debug().Uint64("data_id", dataID).Msg("upload abandoned")
		return s.store.Delete(ctx, dataID)
	}

	obj.Size = size
	obj.UpdatedTime = s.now()
	return s.store.Replace(ctx, obj)
}

// GetObjectInfos resolves each data id to its metadata and probes the
// blob. Results align with the requested ids; errs[i] is non-nil for an
// unknown id.
func (s *Service) GetObjectInfos(ctx context.Context, dataIDs []uint64) ([]ObjectResult, []error, error) {
	results := make([]ObjectResult, len(dataIDs))
	errs := make([]error, len(dataIDs))

	for i, id := range dataIDs {
		obj, err := s.store.FindByDataID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if obj == nil {
			errs[i] = nex.Err("DataStore::NotFound")
			continue
		}

		key := ObjectKey(obj.OwnerPID, obj.PersistenceID, obj.DataID)
		blob, err := s.prober.Head(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		results[i] = ObjectResult{Meta: *obj, Blob: blob}
	}
	return results, errs, nil
}

// SearchObject pages metadata matching the structured param. All
// clauses are conjoined, matching the tournament search semantics.
func (s *Service) SearchObject(ctx context.Context, param SearchParam) ([]models.DataStoreObject, error) {
	if param.Size > maxSearchSize {
		return nil, nex.Err("Core::InvalidArgument")
	}

	return s.store.Search(ctx, SearchQuery{
		OwnerIDs:      param.OwnerIDs,
		DataType:      param.DataType,
		AnyDataType:   param.DataType == anyDataType,
		Tags:          param.Tags,
		CreatedAfter:  param.CreatedAfter,
		CreatedBefore: param.CreatedBefore,
		UpdatedAfter:  param.UpdatedAfter,
		UpdatedBefore: param.UpdatedBefore,
		Offset:        param.Offset,
		Size:          param.Size,
	})
}
