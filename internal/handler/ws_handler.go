package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/examly/examly-backend/internal/clock"
	"github.com/examly/examly-backend/internal/middleware"
	"github.com/examly/examly-backend/internal/service"
	ws "github.com/examly/examly-backend/internal/websocket"
)

const tickInterval = 5 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the authoritative remaining time of an attempt. The
// stream never finalizes anything; expiry is enforced lazily by the HTTP
// lifecycle endpoints.
type WSHandler struct {
	attemptService *service.AttemptService
	clk            clock.Clock
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, clk clock.Clock, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		clk:            clk,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptClockStream godoc
// WS /ws/v1/attempts/:id/clock?token=...
// Pushes a tick with the remaining seconds every few seconds, then a final
// expired frame when the deadline passes.
func (h *WSHandler) AttemptClockStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	attempt, err := h.attemptService.GetOwnedAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "attempt not accessible"})
		return
	}
	if attempt.Submitted() || attempt.ExpiresAt == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "attempt is not running"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	wsLog := h.log.With().
		Str("attempt_id", attemptID.String()).
		Str("student_id", claims.UserID.String()).
		Logger()
	wsLog.Info().Msg("Clock stream connected")

	done := make(chan struct{})
	go h.readLoop(conn, wsLog, done)
	h.tickLoop(conn, wsLog, *attempt.ExpiresAt, done)
}

// readLoop drains client frames so pings are answered and closes are seen.
func (h *WSHandler) readLoop(conn *websocket.Conn, wsLog zerolog.Logger, done chan<- struct{}) {
	defer close(done)
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}
		switch msg.Action {
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			ws.WriteError(conn, fmt.Sprintf("unknown action %q", msg.Action))
		}
	}
}

// tickLoop pushes remaining-time frames until expiry or disconnect.
func (h *WSHandler) tickLoop(conn *websocket.Conn, wsLog zerolog.Logger, expiresAt time.Time, done <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		remaining := expiresAt.Sub(h.clk.Now())
		if remaining <= 0 {
			ws.WriteTyped(conn, ws.ExpiredResponse{Event: ws.EventExpired})
			ws.CloseNormal(conn, "time is up")
			wsLog.Info().Msg("Clock stream expired")
			return
		}

		if err := ws.WriteTyped(conn, ws.TickResponse{
			Event:            ws.EventTick,
			RemainingSeconds: int64(remaining / time.Second),
		}); err != nil {
			conn.Close()
			return
		}

		select {
		case <-done:
			conn.Close()
			return
		case <-ticker.C:
		}
	}
}
