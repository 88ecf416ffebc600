package rmc

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"amkj-server/internal/nex"
)

// SecureHandlers serves the secure-connection protocol. The upgrade
// handshake already authenticated the session; Register just records the
// station urls the peer is reachable at and hands back a connection id.
type SecureHandlers struct {
	sessions SessionRecorder
	nextCID  atomic.Uint32
	logger   zerolog.Logger
}

func NewSecureHandlers(sessions SessionRecorder, logger zerolog.Logger) *SecureHandlers {
	h := &SecureHandlers{
		sessions: sessions,
		logger:   logger.With().Str("component", "secure").Logger(),
	}
	h.nextCID.Store(9)
	return h
}

func (h *SecureHandlers) Register(s *Server) {
	s.Handle(ProtocolSecureConnection, MethodRegister, h.RegisterUrls)
}

// RegisterUrls stores the caller's station urls and assigns the
// connection id other players address it by.
func (h *SecureHandlers) RegisterUrls(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error) {
	urls := in.ReadListString()
	if err := in.Err(); err != nil {
		return nil, nex.Err("Core::InvalidArgument")
	}

	cid := h.nextCID.Add(1)
	if err := h.sessions.SetConnection(ctx, c.PID(), cid, urls); err != nil {
		return nil, err
	}

	h.logger.Debug().Uint32("pid", c.PID()).Uint32("cid", cid).Msg("station registered")

	// Echo the first station back with the assigned connection id so the
	// client learns its public identity.
	public := ""
	if len(urls) > 0 {
		public = fmt.Sprintf("%s;RVCID=%d", urls[0], cid)
	}

	out := nex.NewStreamOut()
	out.WriteU32(cid)
	out.WriteString(public)
	return out, nil
}
