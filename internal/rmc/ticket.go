package rmc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"amkj-server/internal/nex"
)

// Tickets are minted by the auth endpoint and presented to the secure
// endpoint. Layout: pid u32 | expiry unix u64 | nonce [16] | mac [32],
// mac = HMAC-SHA256 over everything before it, keyed off the shared
// secure password.
const (
	ticketNonceSize = 16
	ticketMACSize   = sha256.Size
	ticketSize      = 4 + 8 + ticketNonceSize + ticketMACSize

	ticketLifetime = 2 * time.Minute

	keyIterations = 4096
	keySize       = 32
)

var ticketSalt = []byte("amkj-ticket-v1")

// TicketGranter mints and verifies admission tickets off the shared
// secure password.
type TicketGranter struct {
	key []byte
	now func() time.Time
}

func NewTicketGranter(securePassword string) *TicketGranter {
	return &TicketGranter{
		key: pbkdf2.Key([]byte(securePassword), ticketSalt, keyIterations, keySize, sha256.New),
		now: time.Now,
	}
}

// Mint issues a ticket for the pid.
func (t *TicketGranter) Mint(pid uint32) ([]byte, error) {
	buf := make([]byte, 0, ticketSize)
	buf = binary.LittleEndian.AppendUint32(buf, pid)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.now().Add(ticketLifetime).Unix()))

	nonce := make([]byte, ticketNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	buf = append(buf, nonce...)

	mac := hmac.New(sha256.New, t.key)
	mac.Write(buf)
	return mac.Sum(buf), nil
}

// Verify checks the mac and expiry and returns the pid inside.
func (t *TicketGranter) Verify(ticket []byte) (uint32, error) {
	if len(ticket) != ticketSize {
		return 0, nex.Err("Authentication::TokenParseError")
	}

	body, tag := ticket[:ticketSize-ticketMACSize], ticket[ticketSize-ticketMACSize:]
	mac := hmac.New(sha256.New, t.key)
	mac.Write(body)
	if subtle.ConstantTimeCompare(mac.Sum(nil), tag) != 1 {
		return 0, nex.Err("Authentication::TokenParseError")
	}

	expiry := int64(binary.LittleEndian.Uint64(body[4:]))
	if t.now().Unix() > expiry {
		return 0, nex.Err("Authentication::TokenParseError")
	}
	return binary.LittleEndian.Uint32(body), nil
}

// DeriveUserKey stretches a principal's rendezvous password into the
// per-user key the login response is sealed with.
func DeriveUserKey(password string, pid uint32) []byte {
	salt := binary.LittleEndian.AppendUint32(nil, pid)
	return pbkdf2.Key([]byte(password), salt, keyIterations, keySize, sha256.New)
}
