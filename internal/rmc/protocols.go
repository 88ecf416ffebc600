// Package rmc carries remote method calls between game clients and the
// feature engines: two websocket listeners (auth, secure), a binary
// frame codec, per-protocol dispatch tables and the ticket scheme the
// secure endpoint admits with.
package rmc

// Protocol ids.
const (
	ProtocolTicketGranting     uint8 = 0x0A
	ProtocolSecureConnection   uint8 = 0x0B
	ProtocolNotifications      uint8 = 0x0E
	ProtocolMatchMaking        uint8 = 0x15
	ProtocolMatchmakeExtension uint8 = 0x6D
	ProtocolRanking            uint8 = 0x70
	ProtocolDataStore          uint8 = 0x73
)

// TicketGranting methods.
const (
	MethodLogin         uint32 = 1
	MethodRequestTicket uint32 = 3
)

// SecureConnection methods.
const (
	MethodRegister uint32 = 1
)

// MatchMaking methods.
const (
	MethodUnregisterGathering uint32 = 2
	MethodEndParticipation    uint32 = 15
	MethodFindBySingleID      uint32 = 21
	MethodUpdateSessionHost   uint32 = 27
	MethodMigrateOwnership    uint32 = 31
)

// MatchmakeExtension methods. 36 through 41 carry the tournament
// surface this title bolts onto the protocol.
const (
	MethodCreateMatchmakeSession uint32 = 6
	MethodJoinMatchmakeSession   uint32 = 7
	MethodBrowseMatchmakeSession uint32 = 23

	MethodCreateSimpleSearchObject                  uint32 = 36
	MethodUpdateSimpleSearchObject                  uint32 = 37
	MethodDeleteSimpleSearchObject                  uint32 = 38
	MethodSearchSimpleSearchObject                  uint32 = 39
	MethodJoinMatchmakeSessionWithExtraParticipants uint32 = 40
	MethodSearchSimpleSearchObjectByObjectIDs       uint32 = 41
)

// Ranking methods. 14 through 16 are the tournament competition
// surface.
const (
	MethodUploadScore         uint32 = 1
	MethodUploadCommonData    uint32 = 4
	MethodGetCommonData       uint32 = 6
	MethodGetRanking          uint32 = 9
	MethodGetRankingByPIDList uint32 = 12

	MethodGetCompetitionRankingScore    uint32 = 14
	MethodUploadCompetitionRankingScore uint32 = 15
	MethodGetCompetitionInfo            uint32 = 16
)

// DataStore methods. 43 is the batched metadata+presence lookup.
const (
	MethodGetMeta            uint32 = 4
	MethodChangeMeta         uint32 = 6
	MethodSearchObject       uint32 = 18
	MethodPreparePostObject  uint32 = 22
	MethodCompletePostObject uint32 = 23
	MethodGetObjectInfos     uint32 = 43
)
