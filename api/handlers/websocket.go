// Package handlers provides the HTTP entry points of the relay: the
// WebSocket attach endpoints for browser and worker clients.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cr8-studio/relay/internal/dispatch"
	"github.com/cr8-studio/relay/internal/endpoint"
	"github.com/cr8-studio/relay/internal/journal"
	"github.com/cr8-studio/relay/internal/model"
	"github.com/cr8-studio/relay/internal/router"
	"github.com/cr8-studio/relay/internal/session"
)

// Maximum message size allowed from peer.
const maxMessageSize = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// WebSocketHandler upgrades attach requests, registers the connection as a
// session endpoint and feeds inbound envelopes to the message router.
type WebSocketHandler struct {
	registry   *session.Registry
	router     *router.Router
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
	rec        journal.Recorder
}

// NewWebSocketHandler creates a WebSocketHandler.
func NewWebSocketHandler(registry *session.Registry, r *router.Router, d *dispatch.Dispatcher, log zerolog.Logger, rec journal.Recorder) *WebSocketHandler {
	if rec == nil {
		rec = journal.Nop{}
	}
	return &WebSocketHandler{
		registry:   registry,
		router:     r,
		dispatcher: d,
		log:        log,
		rec:        rec,
	}
}

// Attach handles GET /ws/:identity/:role.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	identity := c.Param("identity")
	role := model.Role(c.Param("role"))

	if identity == "" || !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity and a valid role (browser|worker) are required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("identity", identity).Msg("websocket upgrade failed")
		return
	}

	ep := endpoint.NewWS(conn)
	sess := h.registry.GetOrCreate(identity)

	if old := sess.SetEndpoint(role, ep); old != nil {
		// Replace wholesale on reconnect; the stale handle is closed, never
		// reused for in-flight sends.
		h.log.Warn().Str("identity", identity).Str("role", string(role)).
			Msg("replacing existing endpoint")
		old.Close()
	}
	h.rec.Record(identity, journal.EventEndpointConnected, string(role))

	// Confirm registration on the fresh channel.
	h.dispatcher.Send(ep, "connected", true, nil, "")

	h.readLoop(sess, role, ep, conn)
}

// readLoop pumps inbound messages into the router until the connection
// drops, then detaches the endpoint and reaps the session if it is done.
func (h *WebSocketHandler) readLoop(sess *session.Session, role model.Role, ep *endpoint.WS, conn *websocket.Conn) {
	identity := sess.Identity()
	defer func() {
		if sess.ClearEndpoint(role, ep) {
			h.rec.Record(identity, journal.EventEndpointDisconnected, string(role))
			h.log.Info().Str("identity", identity).Str("role", string(role)).Msg("endpoint disconnected")
		}
		ep.Close()

		// Reap the session once both endpoints are gone and no broadcast is
		// live. ErrSessionBusy just means someone reconnected or a run is
		// still unwinding.
		if err := h.registry.Remove(identity); err == nil {
			h.log.Info().Str("identity", identity).Msg("session reaped after disconnect")
		}
	}()

	conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Str("identity", identity).Msg("websocket read error")
			}
			return
		}

		var env model.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			h.log.Warn().Err(err).Str("identity", identity).Msg("malformed envelope dropped")
			continue
		}
		h.router.HandleMessage(identity, role, &env)
	}
}

// RegisterRoutes registers the attach route on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws/:identity/:role", h.Attach)
}
