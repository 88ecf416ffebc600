package rmc

import (
	"context"

	"github.com/rs/zerolog"

	"amkj-server/internal/datastore"
	"amkj-server/internal/models"
	"amkj-server/internal/nex"
)

// datastoreNever is the packed datetime clients send for an unbounded
// time filter.
const datastoreNever nex.DateTime = 671076024059

// DataStoreHandlers serves the object metadata protocol.
type DataStoreHandlers struct {
	svc    *datastore.Service
	logger zerolog.Logger
}

func NewDataStoreHandlers(svc *datastore.Service, logger zerolog.Logger) *DataStoreHandlers {
	return &DataStoreHandlers{
		svc:    svc,
		logger: logger.With().Str("component", "datastore-rmc").Logger(),
	}
}

func (h *DataStoreHandlers) Register(s *Server) {
	s.Handle(ProtocolDataStore, MethodGetMeta, h.GetMeta)
	s.Handle(ProtocolDataStore, MethodChangeMeta, h.ChangeMeta)
	s.Handle(ProtocolDataStore, MethodSearchObject, h.SearchObject)
	s.Handle(ProtocolDataStore, MethodPreparePostObject, h.PreparePostObject)
	s.Handle(ProtocolDataStore, MethodCompletePostObject, h.CompletePostObject)
	s.Handle(ProtocolDataStore, MethodGetObjectInfos, h.GetObjectInfos)
}

// --- codec ---

func readPermission(in *nex.StreamIn) models.Permission {
	return models.Permission{
		Permission:   in.ReadU8(),
		RecipientIDs: in.ReadListU32(),
	}
}

func writePermission(out *nex.StreamOut, p models.Permission) {
	out.WriteU8(p.Permission)
	out.WriteListU32(p.RecipientIDs)
}

func writeObjectMeta(out *nex.StreamOut, obj *models.DataStoreObject) {
	out.WriteU64(obj.DataID)
	out.WritePID(obj.OwnerPID)
	out.WriteString(obj.Name)
	out.WriteU16(obj.DataType)
	out.WriteQBuffer(obj.MetaBinary)
	writePermission(out, obj.Permission)
	writePermission(out, obj.DeletePermission)
	out.WriteU16(obj.Period)
	out.WriteU32(obj.Flag)
	out.WriteU32(obj.PersistenceID)
	out.WriteU32(obj.ReferredCount)
	out.WriteU8(obj.Status)
	out.WriteU32(obj.Size)
	out.WriteListString(obj.Tags)
	out.WriteDateTime(nex.DateTimeFromTime(obj.CreatedTime))
	out.WriteDateTime(nex.DateTimeFromTime(obj.UpdatedTime))
	out.WriteDateTime(nex.DateTimeFromTime(obj.ExpireTime))
}

// --- methods ---

func (h *DataStoreHandlers) GetMeta(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	dataID := in.ReadU64()
	owner := in.ReadPID()
	persistenceID := in.ReadU32()
	_ = in.ReadU8()  // result option
	_ = in.ReadU64() // access password, objects here are all public
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}
	if owner == 0 {
		owner = c.PID()
	}

	obj, err := h.svc.GetMeta(ctx, dataID, owner, persistenceID)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	writeObjectMeta(out, obj)
	return out, nil
}

func (h *DataStoreHandlers) ChangeMeta(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	param := datastore.ChangeMetaParam{
		DataID:       in.ReadU64(),
		ModifiesFlag: in.ReadU32(),
		Name:         in.ReadString(),
	}
	param.Permission = readPermission(in)
	param.DeletePermission = readPermission(in)
	param.Period = in.ReadU16()
	param.MetaBinary = in.ReadQBuffer()
	param.Tags = in.ReadListString()
	param.UpdatePassword = in.ReadU64()
	param.ReferredCount = in.ReadU32()
	param.DataType = in.ReadU16()
	param.Status = in.ReadU8()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	return nil, h.svc.ChangeMeta(ctx, c.PID(), param)
}

// PreparePostObject opens the two-phase upload: the announced metadata
// is stored immediately and the response carries the CDN url the blob
// goes to, plus empty header, form-field and certificate sections since
// the CDN takes plain PUTs.
func (h *DataStoreHandlers) PreparePostObject(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	param := datastore.PostParam{
		Size:       in.ReadU32(),
		Name:       in.ReadString(),
		DataType:   in.ReadU16(),
		MetaBinary: in.ReadQBuffer(),
	}
	param.Permission = readPermission(in)
	param.DeletePermission = readPermission(in)
	param.Flag = in.ReadU32()
	param.Period = in.ReadU16()
	_ = in.ReadU32() // refer data id
	param.Tags = in.ReadListString()
	param.PersistenceID = uint32(in.ReadU16())
	param.DeleteLastObject = in.ReadBool()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	info, err := h.svc.PreparePostObject(ctx, c.PID(), param)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteU64(info.DataID)
	out.WriteString(info.URL)
	out.WriteU32(0)      // request headers
	out.WriteU32(0)      // form fields
	out.WriteBuffer(nil) // root ca cert
	return out, nil
}

// CompletePostObject settles the upload the client just finished or
// abandoned.
func (h *DataStoreHandlers) CompletePostObject(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	dataID := in.ReadU64()
	isSuccess := in.ReadBool()
	size := in.ReadU32()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	return nil, h.svc.CompletePostObject(ctx, c.PID(), dataID, size, isSuccess)
}

func (h *DataStoreHandlers) SearchObject(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	_ = in.ReadU8() // search target
	owners := in.ReadListU32()
	_ = in.ReadU8() // owner type
	destinationCount := in.ReadU32()
	for i := uint32(0); i < destinationCount && in.Err() == nil; i++ {
		_ = in.ReadU64()
	}
	param := datastore.SearchParam{
		OwnerIDs: owners,
		DataType: in.ReadU16(),
	}
	createdAfter := in.ReadDateTime()
	createdBefore := in.ReadDateTime()
	updatedAfter := in.ReadDateTime()
	updatedBefore := in.ReadDateTime()
	_ = in.ReadU64() // refer data id
	param.Tags = in.ReadListString()
	_ = in.ReadU8() // result order column
	_ = in.ReadU8() // result order
	param.Offset = in.ReadU32()
	param.Size = in.ReadU32()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	if createdAfter != datastoreNever && createdAfter != 0 {
		param.CreatedAfter = createdAfter.Time()
	}
	if createdBefore != datastoreNever && createdBefore != 0 {
		param.CreatedBefore = createdBefore.Time()
	}
	if updatedAfter != datastoreNever && updatedAfter != 0 {
		param.UpdatedAfter = updatedAfter.Time()
	}
	if updatedBefore != datastoreNever && updatedBefore != 0 {
		param.UpdatedBefore = updatedBefore.Time()
	}

	found, err := h.svc.SearchObject(ctx, param)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteU32(uint32(len(found)))
	for i := range found {
		writeObjectMeta(out, &found[i])
	}
	return out, nil
}

// GetObjectInfos resolves a batch of data ids; per-id results carry the
// metadata, the blob presence probe, and an individual result code.
func (h *DataStoreHandlers) GetObjectInfos(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	idCount := in.ReadU32()
	ids := make([]uint64, 0, idCount)
	for i := uint32(0); i < idCount && in.Err() == nil; i++ {
		ids = append(ids, in.ReadU64())
	}
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	results, errs, err := h.svc.GetObjectInfos(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteU32(uint32(len(results)))
	for i := range results {
		writeObjectMeta(out, &results[i].Meta)
		out.WriteBool(results[i].Blob.Present)
		out.WriteU32(results[i].Blob.Size)
		out.WriteString(results[i].Blob.URL)
	}
	out.WriteU32(uint32(len(errs)))
	for _, e := range errs {
		if e != nil {
			out.WriteU32(nex.ResultCode(e))
		} else {
			out.WriteU32(resultSuccess)
		}
	}
	return out, nil
}
