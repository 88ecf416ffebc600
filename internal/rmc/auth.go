package rmc

import (
	"context"
	"crypto/rc4"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"amkj-server/internal/nex"
)

// serverBuild is handed back at login so clients can report the fleet
// revision in crash logs.
const serverBuild = "branch:origin/project/amkj build:3_10_0"

// Reserved principals. Guests log in by name; the secure station's own
// principal never gets a ticket minted for it.
const (
	guestPID  uint32 = 100
	securePID uint32 = 2
)

// AccountClient resolves rendezvous credentials on the account service.
type AccountClient interface {
	GetNEXPassword(ctx context.Context, pid uint32) (string, error)
}

// AuthHandlers serves the ticket-granting protocol on the anonymous
// listener. Tickets handed out are sealed with a key stretched from the
// principal's rendezvous password, so only the credential holder can use
// them at the secure listener.
type AuthHandlers struct {
	admitter Admitter
	accounts AccountClient
	granter  *TicketGranter
	station  string
	logger   zerolog.Logger
}

func NewAuthHandlers(admitter Admitter, accounts AccountClient, granter *TicketGranter, externalAddress string, securePort uint16, logger zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		admitter: admitter,
		accounts: accounts,
		granter:  granter,
		station:  fmt.Sprintf("prudps:/address=%s;port=%d;sid=1;type=2", externalAddress, securePort),
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// Register binds the handlers onto the auth listener.
func (h *AuthHandlers) Register(s *Server) {
	s.Handle(ProtocolTicketGranting, MethodLogin, h.Login)
	s.Handle(ProtocolTicketGranting, MethodRequestTicket, h.RequestTicket)
}

// Login authenticates a principal by name, applies the admission gate,
// and returns a sealed ticket plus the secure station to present it at.
func (h *AuthHandlers) Login(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	username := in.ReadString()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	pid, err := resolvePrincipal(username)
	if err != nil {
		return nil, err
	}

	if err := h.admitter.Admit(pid); err != nil {
		return nil, err
	}

	ticket, err := h.mintSealed(ctx, pid)
	if err != nil {
		return nil, err
	}

	h.logger.Info().Uint32("pid", pid).Msg("login granted")

	out := nex.NewStreamOut()
	out.WritePID(pid)
	out.WriteBuffer(ticket)
	out.WriteString(h.station)
	out.WriteString(serverBuild)
	return out, nil
}

// RequestTicket re-issues a ticket mid-session; the target field is
// carried on the wire but there is only one secure station to target.
func (h *AuthHandlers) RequestTicket(ctx context.Context, _ *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	source := in.ReadPID()
	_ = in.ReadPID() // target
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	ticket, err := h.mintSealed(ctx, source)
	if err != nil {
		return nil, err
	}

	out := nex.NewStreamOut()
	out.WriteBuffer(ticket)
	return out, nil
}

func resolvePrincipal(username string) (uint32, error) {
	if username == "guest" {
		return guestPID, nil
	}
	pid64, err := strconv.ParseUint(username, 10, 32)
	if err != nil {
		return 0, nex.Err("Authentication::NASAuthenticateError")
	}
	if pid := uint32(pid64); pid != securePID {
		return pid, nil
	}
	return 0, nex.Err("Core::AccessDenied")
}

// mintSealed issues a ticket for pid and ciphers it under the key
// derived from the principal's rendezvous password.
func (h *AuthHandlers) mintSealed(ctx context.Context, pid uint32) ([]byte, error) {
	password, err := h.accounts.GetNEXPassword(ctx, pid)
	if err != nil {
		h.logger.Warn().Err(err).Uint32("pid", pid).Msg("account lookup failed")
		return nil, nex.Err("Authentication::NASAuthenticateError")
	}

	ticket, err := h.granter.Mint(pid)
	if err != nil {
		return nil, err
	}

	cipher, err := rc4.NewCipher(DeriveUserKey(password, pid))
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, len(ticket))
	cipher.XORKeyStream(sealed, ticket)
	return sealed, nil
}
