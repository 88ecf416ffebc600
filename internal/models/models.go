// Package models holds the durable entities shared by the engines. The
// bson field names match the deployed collections, so documents written
// by earlier revisions of the service load unchanged.
package models

import "time"

// GatheringTypeMatchmakeSession is the only gathering subtype this title
// creates or searches for.
const GatheringTypeMatchmakeSession = "MatchmakeSession"

// Gathering is a matchmake session document.
type Gathering struct {
	GID                 uint32    `bson:"id"`
	Type                string    `bson:"type"`
	OwnerPID            uint32    `bson:"owner"`
	HostPID             uint32    `bson:"host"`
	MinParticipants     uint16    `bson:"min_participants"`
	MaxParticipants     uint16    `bson:"max_participants"`
	ParticipationPolicy uint32    `bson:"participation_policy"`
	PolicyArgument      uint32    `bson:"policy_argument"`
	Flags               uint32    `bson:"flags"`
	State               uint32    `bson:"state"`
	Description         string    `bson:"description"`
	GameMode            uint32    `bson:"game_mode"`
	Attributes          []uint32  `bson:"attribs"`
	OpenParticipation   bool      `bson:"open_participation"`
	ApplicationData     []byte    `bson:"application_data"`
	Players             []uint32  `bson:"players"`
	SessionKey          []byte    `bson:"session_key"`
	JoinMessage         string    `bson:"join_message"`
	StartedTime         time.Time `bson:"started_time"`
}

// TournamentDatetime carries the simple-search-object schedule fields.
type TournamentDatetime struct {
	StartDaytime  uint32 `bson:"start_daytime"`
	EndDaytime    uint32 `bson:"end_daytime"`
	StartTime     uint32 `bson:"start_time"`
	EndTime       uint32 `bson:"end_time"`
	StartDatetime uint64 `bson:"start_datetime"`
	EndDatetime   uint64 `bson:"end_datetime"`
}

// ParsedMetadata is the decoded chunked tournament metadata, stored next
// to the raw bytes so the admin surface can read it without re-parsing.
type ParsedMetadata struct {
	Revision    uint8  `bson:"revision"`
	Version     uint32 `bson:"version"`
	Name        string `bson:"name"`
	IconType    uint8  `bson:"icon_type"`
	Description string `bson:"description"`
	RepeatType  uint32 `bson:"repeat_type"`
	GamesetNum  uint32 `bson:"gameset_num"`
	RedTeam     string `bson:"red_team"`
	BlueTeam    string `bson:"blue_team"`
	BattleTime  uint32 `bson:"battle_time"`
	UpdateDate  uint32 `bson:"update_date"`
}

// Tournament is a simple search object document.
type Tournament struct {
	ID                uint32             `bson:"id"`
	OwnerPID          uint32             `bson:"owner"`
	Attributes        []uint32           `bson:"attributes"`
	Metadata          []byte             `bson:"metadata"`
	CommunityID       uint32             `bson:"community_id"`
	CommunityCode     string             `bson:"community_code"`
	Datetime          TournamentDatetime `bson:"datetime"`
	SeasonID          uint32             `bson:"season_id"`
	TotalParticipants uint32             `bson:"total_participants"`
	ParsedMetadata    ParsedMetadata     `bson:"parsed_metadata"`
}

// TournamentScore is one row per (tournament, season, pid); upload
// replaces.
type TournamentScore struct {
	PID          uint32    `bson:"pid"`
	TournamentID uint32    `bson:"tournament_id"`
	SeasonID     uint32    `bson:"season_id"`
	Score        uint32    `bson:"score"`
	TeamID       uint32    `bson:"team_id"`
	TeamScore    uint32    `bson:"team_score"`
	Metadata     []byte    `bson:"metadata"`
	LastUpdate   time.Time `bson:"last_update"`
}

// RankingScore is a general per-category score row.
type RankingScore struct {
	Category   uint32    `bson:"category"`
	PID        uint32    `bson:"pid"`
	Score      uint32    `bson:"score"`
	Groups     []byte    `bson:"groups"`
	Param      uint64    `bson:"param"`
	LastUpdate time.Time `bson:"last_update"`
}

// CommonData is the per-player 212-byte blob plus its decoded fields.
type CommonData struct {
	PID        uint32    `bson:"pid"`
	Data       []byte    `bson:"data"`
	Size       int       `bson:"size"`
	UniqueID   uint64    `bson:"unique_id"`
	LastUpdate time.Time `bson:"last_update"`

	VRRate float32 `bson:"vr_rate"`
	BRRate float32 `bson:"br_rate"`

	GPUnlocks     []uint8 `bson:"gp_unlocks"`
	EngineUnlocks []uint8 `bson:"engine_unlocks"`
	DriverUnlocks []uint8 `bson:"driver_unlocks"`
	BodyUnlocks   []uint8 `bson:"body_unlocks"`
	TireUnlocks   []uint8 `bson:"tire_unlocks"`
	WingUnlocks   []uint8 `bson:"wing_unlocks"`
	StampUnlocks  []uint8 `bson:"stamp_unlocks"`
	DLCUnlocks    []uint8 `bson:"dlc_unlocks"`

	MiiName string `bson:"mii_name"`
}

// Permission mirrors the datastore permission pair.
type Permission struct {
	Permission   uint8    `bson:"permission"`
	RecipientIDs []uint32 `bson:"recipient_ids"`
}

// DataStoreObject is the metadata record; the blob itself lives in the
// object store under a derived key that is never persisted here.
type DataStoreObject struct {
	DataID           uint64     `bson:"data_id"`
	OwnerPID         uint32     `bson:"owner"`
	Name             string     `bson:"name"`
	DataType         uint16     `bson:"data_type"`
	MetaBinary       []byte     `bson:"meta_binary"`
	Permission       Permission `bson:"permission"`
	DeletePermission Permission `bson:"delete_permission"`
	Period           uint16     `bson:"period"`
	Flag             uint32     `bson:"flag"`
	PersistenceID    uint32     `bson:"persistence_id"`
	Tags             []string   `bson:"tags"`
	UpdatePassword   uint64     `bson:"update_password"`
	ReferredCount    uint32     `bson:"referred_count"`
	Status           uint8      `bson:"status"`
	Size             uint32     `bson:"size"`
	CreatedTime      time.Time  `bson:"created_time"`
	UpdatedTime      time.Time  `bson:"updated_time"`
	ExpireTime       time.Time  `bson:"expire_time"`
}

// ServerStatus is the persisted fleet status singleton. NumClients is a
// shutdown artefact: live reads come from the connection registry.
type ServerStatus struct {
	IsOnline                  bool      `bson:"is_online"`
	IsMaintenance             bool      `bson:"is_maintenance"`
	IsWhitelist               bool      `bson:"is_whitelist"`
	NumClients                int       `bson:"num_clients"`
	StartMaintenanceTime      time.Time `bson:"start_maintenance_time"`
	EndMaintenanceTime        time.Time `bson:"end_maintenance_time"`
	Whitelist                 []uint32  `bson:"whitelist"`
	ShouldSwitchToMaintenance bool      `bson:"should_switch_to_maintenance"`
}

// Session is a secure-connection registration document, purged at boot.
type Session struct {
	PID          uint32    `bson:"pid"`
	ConnectionID uint32    `bson:"connection_id"`
	URLs         []string  `bson:"urls"`
	CreatedTime  time.Time `bson:"created_time"`
}
