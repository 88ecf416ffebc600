package nex

import "errors"

// Error is a rendezvous result surfaced to the game client. The name is
// the canonical "Facility::Condition" form; the numeric code is what goes
// on the wire.
type Error struct {
	Name string
}

func (e *Error) Error() string {
	return e.Name
}

// Err returns the rendezvous error with the given result name.
func Err(name string) error {
	return &Error{Name: name}
}

// IsError reports whether err is (or wraps) the rendezvous result name.
func IsError(err error, name string) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Name == name
	}
	return false
}

const errorFlag uint32 = 0x80000000

var resultCodes = map[string]uint32{
	"Core::Unknown":          0x00010001,
	"Core::NotImplemented":   0x00010002,
	"Core::InvalidPointer":   0x00010003,
	"Core::InvalidOperation": 0x00010004,
	"Core::InvalidArgument":  0x00010005,
	"Core::Timeout":          0x00010006,
	"Core::AccessDenied":     0x0001000E,
	"Core::InvalidIndex":     0x0001000F,
	"Core::InvalidLockState": 0x00010010,

	"RendezVous::ConnectionFailure":            0x00030001,
	"RendezVous::NotAuthenticated":             0x00030002,
	"RendezVous::InvalidPID":                   0x0003000A,
	"RendezVous::SessionVoid":                  0x00030012,
	"RendezVous::SessionFull":                  0x00030014,
	"RendezVous::NotFriend":                    0x00030016,
	"RendezVous::NotParticipatedGathering":     0x00030017,
	"RendezVous::AlreadyParticipatedGathering": 0x00030018,
	"RendezVous::PermissionDenied":             0x0003001C,
	"RendezVous::NotParticipant":               0x0003001D,
	"RendezVous::AlreadyParticipant":           0x0003001E,

	"Authentication::NASAuthenticateError": 0x00100001,
	"Authentication::TokenParseError":      0x00100002,
	"Authentication::UnderMaintenance":     0x00100008,

	"Ranking::NotInitialized":    0x00700001,
	"Ranking::InvalidArgument":   0x00700002,
	"Ranking::RegistrationError": 0x00700003,
	"Ranking::NotFound":          0x00700005,
	"Ranking::InvalidScore":      0x00700006,
	"Ranking::InvalidDataSize":   0x00700007,

	"DataStore::Unknown":             0x00690001,
	"DataStore::InvalidArgument":     0x00690002,
	"DataStore::PermissionDenied":    0x00690003,
	"DataStore::NotFound":            0x00690009,
	"DataStore::OperationNotAllowed": 0x0069000B,
}

// ResultCode converts an error into the wire result code. Unrecognised
// errors (persistence faults, external RPC failures) collapse into
// Core::Unknown so internals never leak to the client.
func ResultCode(err error) uint32 {
	var rerr *Error
	if errors.As(err, &rerr) {
		if code, ok := resultCodes[rerr.Name]; ok {
			return code | errorFlag
		}
	}
	return resultCodes["Core::Unknown"] | errorFlag
}
