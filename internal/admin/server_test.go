package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"amkj-server/internal/models"
)

type fakeStatus struct {
	snapshot   models.ServerStatus
	whitelist  []uint32
	maintStart time.Time
	maintEnd   time.Time
	ended      bool
}

func (f *fakeStatus) Snapshot() models.ServerStatus { return f.snapshot }
func (f *fakeStatus) StartMaintenance(start, end time.Time) {
	f.maintStart, f.maintEnd = start, end
}
func (f *fakeStatus) EndMaintenance() { f.ended = true }
func (f *fakeStatus) ToggleWhitelist() bool {
	f.snapshot.IsWhitelist = !f.snapshot.IsWhitelist
	return f.snapshot.IsWhitelist
}
func (f *fakeStatus) Whitelist() []uint32 { return f.whitelist }
func (f *fakeStatus) AddWhitelistUser(pid uint32) {
	f.whitelist = append(f.whitelist, pid)
}
func (f *fakeStatus) DelWhitelistUser(pid uint32) {
	out := f.whitelist[:0]
	for _, p := range f.whitelist {
		if p != pid {
			out = append(out, p)
		}
	}
	f.whitelist = out
}

type fakeConnections struct {
	pids   []uint32
	kicked []uint32
}

func (f *fakeConnections) Snapshot() []uint32 { return f.pids }
func (f *fakeConnections) Count() int         { return len(f.pids) }
func (f *fakeConnections) Kick(pid uint32) bool {
	f.kicked = append(f.kicked, pid)
	for _, p := range f.pids {
		if p == pid {
			return true
		}
	}
	return false
}
func (f *fakeConnections) KickAll() int {
	n := len(f.pids)
	f.pids = nil
	return n
}

type fakeGatherings struct{ records []models.Gathering }

func (f *fakeGatherings) ListAll(_ context.Context, _, _ int64) ([]models.Gathering, error) {
	return f.records, nil
}

type fakeTournaments struct{ records []models.Tournament }

func (f *fakeTournaments) ListAll(_ context.Context, _, _ int64) ([]models.Tournament, error) {
	return f.records, nil
}

type fakeCommonData struct{ byPID map[uint32]*models.CommonData }

func (f *fakeCommonData) Find(_ context.Context, pid uint32) (*models.CommonData, error) {
	return f.byPID[pid], nil
}

const testKey = "sekrit"

type adminFixture struct {
	status      *fakeStatus
	connections *fakeConnections
	gatherings  *fakeGatherings
	tournaments *fakeTournaments
	commonData  *fakeCommonData
	router      http.Handler
}

func newFixture() *adminFixture {
	f := &adminFixture{
		status:      &fakeStatus{snapshot: models.ServerStatus{IsOnline: true}},
		connections: &fakeConnections{},
		gatherings:  &fakeGatherings{},
		tournaments: &fakeTournaments{},
		commonData:  &fakeCommonData{byPID: map[uint32]*models.CommonData{}},
	}
	srv := NewServer(f.status, f.connections, f.gatherings, f.tournaments, f.commonData, testKey, zerolog.Nop())
	f.router = srv.Router()
	return f
}

func (f *adminFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("x-api-key", testKey)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestAPIKeyGate(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("x-api-key", "wrong")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong key status = %d, want 403", rec.Code)
	}
}

func TestGetServerStatus(t *testing.T) {
	f := newFixture()
	f.connections.pids = []uint32{7, 8}

	rec := f.do(t, http.MethodGet, "/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["is_online"] != true {
		t.Error("is_online = false, want true")
	}
	if body["num_clients"] != float64(2) {
		t.Errorf("num_clients = %v, want 2", body["num_clients"])
	}
	if _, ok := body["start_maintenance_time"].(map[string]any); !ok {
		t.Errorf("start_maintenance_time = %T, want timestamp object", body["start_maintenance_time"])
	}
}

func TestMaintenanceLifecycle(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/v1/maintenance/start",
		`{"start": {"seconds": 1700000000, "nanos": 0}, "end": {"seconds": 1700003600, "nanos": 0}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	if f.status.maintStart.Unix() != 1700000000 || f.status.maintEnd.Unix() != 1700003600 {
		t.Errorf("scheduled window = %v..%v", f.status.maintStart, f.status.maintEnd)
	}

	rec = f.do(t, http.MethodPost, "/v1/maintenance/start",
		`{"start": {"seconds": 1700003600}, "end": {"seconds": 1700000000}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted window status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/v1/maintenance/end", "")
	if rec.Code != http.StatusOK || !f.status.ended {
		t.Errorf("end status = %d, ended = %v", rec.Code, f.status.ended)
	}
}

func TestWhitelist(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/v1/whitelist/toggle", "")
	if body := decodeBody(t, rec); body["is_whitelist"] != true {
		t.Errorf("toggle = %v, want true", body["is_whitelist"])
	}

	f.do(t, http.MethodPost, "/v1/whitelist/1234", "")
	f.do(t, http.MethodPost, "/v1/whitelist/5678", "")
	f.do(t, http.MethodDelete, "/v1/whitelist/1234", "")

	rec = f.do(t, http.MethodGet, "/v1/whitelist", "")
	body := decodeBody(t, rec)
	pids, _ := body["pids"].([]any)
	if len(pids) != 1 || pids[0] != float64(5678) {
		t.Errorf("whitelist = %v, want [5678]", pids)
	}

	if rec := f.do(t, http.MethodPost, "/v1/whitelist/notanumber", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad pid status = %d, want 400", rec.Code)
	}
}

func TestKicks(t *testing.T) {
	f := newFixture()
	f.connections.pids = []uint32{7, 8, 9}

	rec := f.do(t, http.MethodPost, "/v1/users/8/kick", "")
	if body := decodeBody(t, rec); body["was_connected"] != true {
		t.Errorf("was_connected = %v, want true", body["was_connected"])
	}

	rec = f.do(t, http.MethodPost, "/v1/users/404/kick", "")
	if body := decodeBody(t, rec); body["was_connected"] != false {
		t.Errorf("was_connected = %v, want false", body["was_connected"])
	}

	rec = f.do(t, http.MethodPost, "/v1/users/kick_all", "")
	if body := decodeBody(t, rec); body["num_kicked"] != float64(3) {
		t.Errorf("num_kicked = %v, want 3", body["num_kicked"])
	}
}

func TestGetAllGatheringsMiiJoin(t *testing.T) {
	f := newFixture()
	f.commonData.byPID[7] = &models.CommonData{PID: 7, MiiName: "Yoshi"}
	f.gatherings.records = []models.Gathering{{
		GID:     1000,
		Type:    models.GatheringTypeMatchmakeSession,
		Players: []uint32{7, 8},
	}}

	rec := f.do(t, http.MethodGet, "/v1/gatherings", "")
	body := decodeBody(t, rec)
	gatherings, _ := body["gatherings"].([]any)
	if len(gatherings) != 1 {
		t.Fatalf("gatherings = %d, want 1", len(gatherings))
	}
	players := gatherings[0].(map[string]any)["players"].([]any)
	first := players[0].(map[string]any)
	second := players[1].(map[string]any)
	if first["mii_name"] != "Yoshi" {
		t.Errorf("mii_name = %v, want Yoshi", first["mii_name"])
	}
	if second["mii_name"] != miiNameFallback {
		t.Errorf("fallback mii_name = %v, want %q", second["mii_name"], miiNameFallback)
	}
}

func TestGetAllTournamentsPublicOnly(t *testing.T) {
	f := newFixture()
	f.tournaments.records = []models.Tournament{
		{ID: 20001, Attributes: []uint32{1, 0, 0, 0, 0}, CommunityCode: "123456789012"},
		{ID: 20002, Attributes: []uint32{0, 0, 0, 0, 0}, CommunityCode: "210987654321"},
	}

	rec := f.do(t, http.MethodGet, "/v1/tournaments", "")
	body := decodeBody(t, rec)
	tournaments, _ := body["tournaments"].([]any)
	if len(tournaments) != 1 {
		t.Fatalf("tournaments = %d, want only the public one", len(tournaments))
	}
	if got := tournaments[0].(map[string]any)["id"]; got != float64(20001) {
		t.Errorf("id = %v, want 20001", got)
	}
}

func TestGetUnlocks(t *testing.T) {
	f := newFixture()
	f.commonData.byPID[7] = &models.CommonData{
		PID:        7,
		MiiName:    "Yoshi",
		VRRate:     1500,
		GPUnlocks:  []uint8{1, 0, 1},
		DLCUnlocks: []uint8{1, 1, 0, 0, 0},
	}

	rec := f.do(t, http.MethodGet, "/v1/users/7/unlocks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["vr_rate"] != float64(1500) {
		t.Errorf("vr_rate = %v, want 1500", body["vr_rate"])
	}
	gp, _ := body["gp_unlocks"].([]any)
	if len(gp) != 3 || gp[0] != float64(1) {
		t.Errorf("gp_unlocks = %v", gp)
	}

	if rec := f.do(t, http.MethodGet, "/v1/users/8/unlocks", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing data status = %d, want 404", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture()

	tripped := false
	for i := 0; i < limiterBurst+5; i++ {
		if rec := f.do(t, http.MethodGet, "/v1/status", ""); rec.Code == http.StatusTooManyRequests {
			tripped = true
			break
		}
	}
	if !tripped {
		t.Error("burst never tripped the rate limiter")
	}
}
