package rmc

import (
	"context"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"amkj-server/internal/models"
	"amkj-server/internal/nex"
	"amkj-server/internal/registry"
)

// Handler serves one method. A returned error becomes the frame's result
// code; a nil StreamOut means an empty success payload.
type Handler func(ctx context.Context, c *Client, in *nex.StreamIn) (*nex.StreamOut, error)

const requestTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Admitter gates sessions on maintenance and whitelist state.
type Admitter interface {
	Admit(pid uint32) error
}

// SessionRecorder persists secure-connection registrations.
type SessionRecorder interface {
	Insert(ctx context.Context, session *models.Session) error
	SetConnection(ctx context.Context, pid, connectionID uint32, urls []string) error
	DeleteByPID(ctx context.Context, pid uint32) error
}

// Server hosts one websocket listener and dispatches frames to the
// registered per-protocol handlers. The auth listener runs anonymous
// sessions; the secure listener demands a ticket on upgrade and attaches
// the session to the connection registry.
type Server struct {
	name      string
	handlers  map[uint8]map[uint32]Handler
	accessKey string
	logger    zerolog.Logger

	// secure-listener wiring, all nil on the auth listener
	granter  *TicketGranter
	admitter Admitter
	registry *registry.Registry
	sessions SessionRecorder
}

// NewAuthServer builds the anonymous listener for ticket granting.
// Upgrades still have to present the shared game access key.
func NewAuthServer(accessKey string, logger zerolog.Logger) *Server {
	return &Server{
		name:      "auth",
		handlers:  make(map[uint8]map[uint32]Handler),
		accessKey: accessKey,
		logger:    logger.With().Str("component", "rmc-auth").Logger(),
	}
}

// NewSecureServer builds the authenticated listener. Upgrades require
// the access key and a valid ticket, pass the admission gate, and
// register with the connection registry for the life of the socket.
func NewSecureServer(granter *TicketGranter, admitter Admitter, reg *registry.Registry, sessions SessionRecorder, accessKey string, logger zerolog.Logger) *Server {
	return &Server{
		name:      "secure",
		handlers:  make(map[uint8]map[uint32]Handler),
		accessKey: accessKey,
		logger:    logger.With().Str("component", "rmc-secure").Logger(),
		granter:   granter,
		admitter:  admitter,
		registry:  reg,
		sessions:  sessions,
	}
}

// Handle registers a method handler. Registering the same method twice is
// a programming error and panics at startup.
func (s *Server) Handle(protocol uint8, method uint32, h Handler) {
	methods, ok := s.handlers[protocol]
	if !ok {
		methods = make(map[uint32]Handler)
		s.handlers[protocol] = methods
	}
	if _, dup := methods[method]; dup {
		panic("rmc: duplicate handler registration")
	}
	methods[method] = h
}

// Router returns the gin engine serving the websocket upgrade at /.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/", s.serve)
	return router
}

func (s *Server) serve(c *gin.Context) {
	if c.Query("access") != s.accessKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad access key"})
		return
	}

	var pid uint32
	if s.granter != nil {
		ticket, err := hex.DecodeString(c.Query("ticket"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "bad ticket"})
			return
		}
		pid, err = s.granter.Verify(ticket)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "bad ticket"})
			return
		}
		if err := s.admitter.Admit(pid); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("upgrade failed")
		return
	}

	client := newClient(pid, conn, s.logger)
	if s.registry != nil {
		s.registry.Attach(pid, client)
		if err := s.sessions.Insert(c.Request.Context(), &models.Session{
			PID:         pid,
			CreatedTime: time.Now(),
		}); err != nil {
			s.logger.Error().Err(err).Uint32("pid", pid).Msg("record session")
		}
	}

	go client.writePump()
	s.readLoop(client)

	if s.registry != nil {
		s.registry.Detach(pid, client)
		if err := s.sessions.DeleteByPID(context.Background(), pid); err != nil {
			s.logger.Error().Err(err).Uint32("pid", pid).Msg("drop session")
		}
	}
	_ = client.Disconnect()
}

func (s *Server) readLoop(client *Client) {
	for {
		kind, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}

		req, err := decodeFrame(raw)
		if err != nil {
			s.logger.Debug().Uint32("pid", client.pid).Msg("malformed frame")
			return
		}
		client.enqueue(s.dispatch(client, req))
	}
}

func (s *Server) dispatch(client *Client, req frame) []byte {
	h, ok := s.handlers[req.protocol][req.method]
	if !ok {
		s.logger.Warn().
			Uint8("protocol", req.protocol).
			Uint32("method", req.method).
			Msg("unknown method")
		err := nex.Err("Core::NotImplemented")
		observeRPC(s.name, req.protocol, req.method, err)
		return encodeResponse(req, nex.ResultCode(err), nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	in := nex.NewStreamIn(req.payload)
	out, err := h(ctx, client, in)
	if err == nil {
		err = in.Err()
	}
	observeRPC(s.name, req.protocol, req.method, err)
	if err != nil {
		s.logger.Debug().Err(err).
			Uint8("protocol", req.protocol).
			Uint32("method", req.method).
			Uint32("pid", client.pid).
			Msg("call failed")
		return encodeResponse(req, nex.ResultCode(err), nil)
	}

	var payload []byte
	if out != nil {
		payload = out.Bytes()
	}
	return encodeResponse(req, resultSuccess, payload)
}
