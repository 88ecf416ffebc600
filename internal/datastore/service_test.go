package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"amkj-server/internal/models"
	"amkj-server/internal/nex"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name          string
		pid           uint32
		persistenceID uint32
		objectID      uint64
		want          string
	}{
		{"ghost slot zero", 7, 0, 0, "ghosts/7/0.bin"},
		{"ghost slot high", 1234, 1023, 5000, "ghosts/1234/1023.bin"},
		{"tv replay", 7, 1024, 5000, "mktv/5000.bin"},
		{"tv replay large id", 7, 40000, 123456789, "mktv/123456789.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObjectKey(tt.pid, tt.persistenceID, tt.objectID); got != tt.want {
				t.Errorf("ObjectKey = %q, want %q", got, tt.want)
			}
		})
	}
}

type memObjects struct {
	records []models.DataStoreObject
}

func (m *memObjects) Insert(_ context.Context, obj *models.DataStoreObject) error {
	m.records = append(m.records, *obj)
	return nil
}

func (m *memObjects) FindByDataID(_ context.Context, dataID uint64) (*models.DataStoreObject, error) {
	for i := range m.records {
		if m.records[i].DataID == dataID {
			obj := m.records[i]
			return &obj, nil
		}
	}
	return nil, nil
}

func (m *memObjects) FindByPersistence(_ context.Context, owner, persistenceID uint32) (*models.DataStoreObject, error) {
	for i := range m.records {
		if m.records[i].OwnerPID == owner && m.records[i].PersistenceID == persistenceID {
			obj := m.records[i]
			return &obj, nil
		}
	}
	return nil, nil
}

func (m *memObjects) Replace(_ context.Context, obj *models.DataStoreObject) error {
	for i := range m.records {
		if m.records[i].DataID == obj.DataID {
			m.records[i] = *obj
		}
	}
	return nil
}

func (m *memObjects) Delete(_ context.Context, dataID uint64) error {
	out := m.records[:0]
	for _, obj := range m.records {
		if obj.DataID != dataID {
			out = append(out, obj)
		}
	}
	m.records = out
	return nil
}

func (m *memObjects) Search(_ context.Context, q SearchQuery) ([]models.DataStoreObject, error) {
	var out []models.DataStoreObject
	for _, obj := range m.records {
		if !q.AnyDataType && obj.DataType != q.DataType {
			continue
		}
		out = append(out, obj)
	}
	if int(q.Offset) >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Size > 0 && int(q.Size) < len(out) {
		out = out[:q.Size]
	}
	return out, nil
}

// fakeProber reports the listed keys as present with a fixed size.
type fakeProber struct {
	present map[string]uint32
	probed  []string
}

func (p *fakeProber) URL(key string) string {
	return "https://bucket.cdn.test/" + key
}

func (p *fakeProber) Head(_ context.Context, key string) (ObjectInfo, error) {
	p.probed = append(p.probed, key)
	url := p.URL(key)
	size, ok := p.present[key]
	if !ok {
		return ObjectInfo{URL: url}, nil
	}
	return ObjectInfo{Present: true, Size: size, URL: url}, nil
}

// fakeSequence hands out ids the way the seeded counter does.
type fakeSequence struct {
	next uint32
}

func (f *fakeSequence) NextID(_ context.Context, _ string) (uint32, error) {
	id := f.next
	f.next++
	return id, nil
}

func newObjectService(store *memObjects, prober *fakeProber) *Service {
	return NewService(store, prober, &fakeSequence{next: 20000}, zerolog.Nop())
}

func ghostObject(dataID uint64, owner uint32, persistenceID uint32) models.DataStoreObject {
	return models.DataStoreObject{
		DataID:        dataID,
		OwnerPID:      owner,
		PersistenceID: persistenceID,
		Name:          "ghost",
		DataType:      1,
	}
}

func TestGetMeta(t *testing.T) {
	store := &memObjects{records: []models.DataStoreObject{ghostObject(20000, 7, 0)}}
	svc := newObjectService(store, &fakeProber{})
	ctx := context.Background()

	byID, err := svc.GetMeta(ctx, 20000, 0, 0)
	if err != nil {
		t.Fatalf("GetMeta by id: %v", err)
	}
	if byID.DataID != 20000 {
		t.Errorf("DataID = %d, want 20000", byID.DataID)
	}

	bySlot, err := svc.GetMeta(ctx, 0, 7, 0)
	if err != nil {
		t.Fatalf("GetMeta by slot: %v", err)
	}
	if bySlot.DataID != 20000 {
		t.Errorf("DataID = %d, want 20000", bySlot.DataID)
	}

	if _, err := svc.GetMeta(ctx, 999, 0, 0); !nex.IsError(err, "DataStore::NotFound") {
		t.Errorf("missing object err = %v, want DataStore::NotFound", err)
	}
}

func TestChangeMeta(t *testing.T) {
	store := &memObjects{records: []models.DataStoreObject{ghostObject(20000, 7, 0)}}
	svc := newObjectService(store, &fakeProber{})
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	err := svc.ChangeMeta(ctx, 7, ChangeMetaParam{
		DataID:       20000,
		ModifiesFlag: ModifyName | ModifyStatus,
		Name:         "renamed",
		Status:       2,
		DataType:     9, // flag clear, must not apply
	})
	if err != nil {
		t.Fatalf("ChangeMeta: %v", err)
	}

	obj := store.records[0]
	if obj.Name != "renamed" || obj.Status != 2 {
		t.Errorf("name/status = %q/%d, want renamed/2", obj.Name, obj.Status)
	}
	if obj.DataType != 1 {
		t.Errorf("DataType = %d, want untouched 1", obj.DataType)
	}
	if obj.UpdatedTime.IsZero() {
		t.Error("UpdatedTime not set")
	}
}

func TestChangeMetaPermission(t *testing.T) {
	obj := ghostObject(20000, 7, 0)
	obj.UpdatePassword = 777
	store := &memObjects{records: []models.DataStoreObject{obj}}
	svc := newObjectService(store, &fakeProber{})
	ctx := context.Background()

	err := svc.ChangeMeta(ctx, 8, ChangeMetaParam{DataID: 20000, ModifiesFlag: ModifyName, Name: "x"})
	if !nex.IsError(err, "DataStore::PermissionDenied") {
		t.Errorf("stranger err = %v, want DataStore::PermissionDenied", err)
	}

	err = svc.ChangeMeta(ctx, 8, ChangeMetaParam{
		DataID: 20000, ModifiesFlag: ModifyName, Name: "x", UpdatePassword: 777,
	})
	if err != nil {
		t.Errorf("password-bearing change: %v", err)
	}

	err = svc.ChangeMeta(ctx, 8, ChangeMetaParam{DataID: 404, ModifiesFlag: ModifyName})
	if !nex.IsError(err, "DataStore::NotFound") {
		t.Errorf("missing object err = %v, want DataStore::NotFound", err)
	}
}

func TestGetObjectInfos(t *testing.T) {
	store := &memObjects{records: []models.DataStoreObject{
		ghostObject(20000, 7, 0),
		ghostObject(20001, 8, 2000),
	}}
	prober := &fakeProber{present: map[string]uint32{"ghosts/7/0.bin": 512}}
	svc := newObjectService(store, prober)

	results, errs, err := svc.GetObjectInfos(context.Background(), []uint64{20000, 20001, 404})
	if err != nil {
		t.Fatalf("GetObjectInfos: %v", err)
	}

	if errs[0] != nil || errs[1] != nil {
		t.Errorf("errs = %v, want first two nil", errs)
	}
	if !nex.IsError(errs[2], "DataStore::NotFound") {
		t.Errorf("errs[2] = %v, want DataStore::NotFound", errs[2])
	}

	if !results[0].Blob.Present || results[0].Blob.Size != 512 {
		t.Errorf("blob 0 = %+v, want present size 512", results[0].Blob)
	}
	// persistence_id 2000 is a TV object keyed by data id.
	if results[1].Blob.Present {
		t.Errorf("blob 1 = %+v, want absent", results[1].Blob)
	}
	if len(prober.probed) != 2 || prober.probed[1] != "mktv/20001.bin" {
		t.Errorf("probed = %v, want ghost then mktv key", prober.probed)
	}
}

func TestSearchObject(t *testing.T) {
	store := &memObjects{records: []models.DataStoreObject{
		ghostObject(1, 7, 0),
		ghostObject(2, 8, 0),
	}}
	svc := newObjectService(store, &fakeProber{})
	ctx := context.Background()

	got, err := svc.SearchObject(ctx, SearchParam{DataType: 1, Size: 10})
	if err != nil {
		t.Fatalf("SearchObject: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("results = %d, want 2", len(got))
	}

	got, err = svc.SearchObject(ctx, SearchParam{DataType: 5, Size: 10})
	if err != nil {
		t.Fatalf("SearchObject: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("results = %d, want 0 for unmatched type", len(got))
	}

	if _, err := svc.SearchObject(ctx, SearchParam{Size: maxSearchSize + 1}); !nex.IsError(err, "Core::InvalidArgument") {
		t.Errorf("oversized page err = %v, want Core::InvalidArgument", err)
	}
}

func TestPreparePostObject(t *testing.T) {
	store := &memObjects{}
	svc := newObjectService(store, &fakeProber{})
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	info, err := svc.PreparePostObject(ctx, 7, PostParam{
		Size: 256, Name: "ghost", DataType: 1, Period: 90,
	})
	if err != nil {
		t.Fatalf("PreparePostObject: %v", err)
	}
	if info.DataID != 20000 {
		t.Errorf("DataID = %d, want first counter value 20000", info.DataID)
	}
	if info.URL != "https://bucket.cdn.test/ghosts/7/0.bin" {
		t.Errorf("URL = %q, want the ghost slot address", info.URL)
	}

	obj := store.records[0]
	if obj.OwnerPID != 7 || obj.Size != 256 || obj.CreatedTime != svc.now() {
		t.Errorf("stored object = %+v, want owner 7 size 256 stamped now", obj)
	}
	if obj.ExpireTime != svc.now().AddDate(0, 0, 90) {
		t.Errorf("ExpireTime = %v, want period days out", obj.ExpireTime)
	}
}

func TestPreparePostObjectDeleteLastObject(t *testing.T) {
	store := &memObjects{records: []models.DataStoreObject{ghostObject(19000, 7, 3)}}
	svc := newObjectService(store, &fakeProber{})
	ctx := context.Background()

	info, err := svc.PreparePostObject(ctx, 7, PostParam{
		Name: "ghost", PersistenceID: 3, DeleteLastObject: true,
	})
	if err != nil {
		t.Fatalf("PreparePostObject: %v", err)
	}

	if prev, _ := store.FindByDataID(ctx, 19000); prev != nil {
		t.Error("previous slot occupant not deleted")
	}
	if cur, _ := store.FindByDataID(ctx, info.DataID); cur == nil || cur.PersistenceID != 3 {
		t.Errorf("replacement object = %+v, want slot 3", cur)
	}
}

func TestCompletePostObject(t *testing.T) {
	store := &memObjects{}
	svc := newObjectService(store, &fakeProber{})
	ctx := context.Background()

	info, err := svc.PreparePostObject(ctx, 7, PostParam{Name: "ghost"})
	if err != nil {
		t.Fatalf("PreparePostObject: %v", err)
	}

	if err := svc.CompletePostObject(ctx, 8, info.DataID, 512, true); !nex.IsError(err, "DataStore::PermissionDenied") {
		t.Errorf("stranger err = %v, want DataStore::PermissionDenied", err)
	}
	if err := svc.CompletePostObject(ctx, 7, 404, 512, true); !nex.IsError(err, "DataStore::NotFound") {
		t.Errorf("unknown id err = %v, want DataStore::NotFound", err)
	}

	if err := svc.CompletePostObject(ctx, 7, info.DataID, 512, true); err != nil {
		t.Fatalf("CompletePostObject: %v", err)
	}
	obj, _ := store.FindByDataID(ctx, info.DataID)
	if obj == nil || obj.Size != 512 {
		t.Errorf("object = %+v, want uploaded size 512", obj)
	}
}

func TestCompletePostObjectFailureDropsMetadata(t *testing.T) {
	store := &memObjects{}
	svc := newObjectService(store, &fakeProber{})
	ctx := context.Background()

	info, err := svc.PreparePostObject(ctx, 7, PostParam{Name: "ghost"})
	if err != nil {
		t.Fatalf("PreparePostObject: %v", err)
	}

	if err := svc.CompletePostObject(ctx, 7, info.DataID, 0, false); err != nil {
		t.Fatalf("CompletePostObject: %v", err)
	}
	if obj, _ := store.FindByDataID(ctx, info.DataID); obj != nil {
		t.Errorf("object = %+v, want abandoned upload gone", obj)
	}
}
