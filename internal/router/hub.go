package router

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vucinatim/air-jam/backend/go/internal/auth"
	"github.com/vucinatim/air-jam/backend/go/internal/config"
	"github.com/vucinatim/air-jam/backend/go/internal/logging"
	"github.com/vucinatim/air-jam/backend/go/internal/metrics"
	"github.com/vucinatim/air-jam/backend/go/internal/protocol"
	"github.com/vucinatim/air-jam/backend/go/internal/ratelimit"
	"github.com/vucinatim/air-jam/backend/go/internal/registry"
)

// Hub is the Event Router's process-wide state: it owns every live
// connection, the grace-period timers for disconnected master hosts, and
// the dependencies (Registry, Verifier, RateLimiter) each handler needs.
// Unlike the Registry, which only tracks room/controller data, the Hub
// tracks the Router's own per-connection objects — the "weak backreference,
// lookup only" §9 describes for reaching a live socket from a ConnID.
type Hub struct {
	reg      *registry.Registry
	verifier auth.Verifier
	rl       *ratelimit.RateLimiter
	cfg      *config.Config

	upgrader websocket.Upgrader

	connsMu sync.RWMutex
	conns   map[registry.ConnID]*Client

	graceMu     sync.Mutex
	graceTimers map[registry.RoomCode]*time.Timer
}

func New(reg *registry.Registry, verifier auth.Verifier, rl *ratelimit.RateLimiter, cfg *config.Config) *Hub {
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = struct{}{}
	}

	return &Hub{
		reg:      reg,
		verifier: verifier,
		rl:       rl,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
		conns:       make(map[registry.ConnID]*Client),
		graceTimers: make(map[registry.RoomCode]*time.Timer),
	}
}

// ServeWs upgrades the HTTP request to a WebSocket and starts the
// connection's read/write pumps. The connection carries no room or role
// until its first inbound envelope — registration happens on the wire, not
// in the URL (spec §4.1/§6).
func (h *Hub) ServeWs(c *gin.Context) {
	if h.rl != nil && !h.rl.AllowWsConnect(c.Request.Context(), c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(conn, registry.ConnID(uuid.NewString()))

	h.connsMu.Lock()
	h.conns[client.id] = client
	h.connsMu.Unlock()

	metrics.IncConnection()

	go client.writePump(h)
	go client.readPump(h)
}

func (h *Hub) getClient(id registry.ConnID) (*Client, bool) {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

func (h *Hub) dropClient(id registry.ConnID) {
	h.connsMu.Lock()
	delete(h.conns, id)
	h.connsMu.Unlock()
	metrics.DecConnection()
}

// cancelGraceTimer stops and forgets any pending master-disconnect grace
// timer for code. Called whenever a master host (re-)registers for a room,
// since that proves the room still has an owner.
func (h *Hub) cancelGraceTimer(code registry.RoomCode) {
	h.graceMu.Lock()
	defer h.graceMu.Unlock()
	if t, ok := h.graceTimers[code]; ok {
		t.Stop()
		delete(h.graceTimers, code)
	}
}

// startGracePeriod arms the §5 ~3s grace window after a master host
// disconnects: if nobody has re-registered as master for this room by the
// time it fires, the room is torn down. Grounded on the teacher's
// pendingRoomCleanups timer-map pattern (session/hub.go).
func (h *Hub) startGracePeriod(code registry.RoomCode, disconnectedConn registry.ConnID) {
	h.graceMu.Lock()
	if t, ok := h.graceTimers[code]; ok {
		t.Stop()
	}
	h.graceTimers[code] = time.AfterFunc(h.cfg.MasterGracePeriod, func() {
		h.graceMu.Lock()
		delete(h.graceTimers, code)
		h.graceMu.Unlock()
		h.expireMasterGrace(code, disconnectedConn)
	})
	h.graceMu.Unlock()
}

func (h *Hub) expireMasterGrace(code registry.RoomCode, disconnectedConn registry.ConnID) {
	room, ok := h.reg.GetRoom(code)
	if !ok {
		return
	}

	room.Lock()
	stillGone := room.MasterHostConn == disconnectedConn
	room.Unlock()
	if !stillGone {
		return
	}

	removed := h.reg.RemoveRoom(code)
	if removed == nil {
		return
	}
	metrics.ActiveRooms.Set(float64(h.reg.Len()))
	metrics.RoomControllers.DeleteLabelValues(string(code))

	ctx := logging.WithRoomCode(context.Background(), string(code))
	logging.Info(ctx, "room closed after master grace period expired")
	h.teardownRoom(removed, "Host disconnected")
}

// Shutdown notifies every room of an imminent server shutdown and closes
// every live connection, grounded on the teacher's transport.Hub.Shutdown.
func (h *Hub) Shutdown(ctx context.Context) {
	h.connsMu.RLock()
	clients := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.connsMu.RUnlock()

	for _, c := range clients {
		// The room code comes from the registry's indices, not c.roomCode,
		// which only the client's own readPump goroutine touches.
		var code registry.RoomCode
		if room, ok := h.reg.GetRoomByHost(c.id); ok {
			code = room.Code
		} else if ctrlRoom, _, ok := h.reg.GetControllerInfo(c.id); ok {
			code = ctrlRoom
		}
		h.sendTo(c.id, protocol.EventServerHostLeft, protocol.HostLeftPayload{
			RoomID: string(code),
			Reason: "shutdown",
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for _, c := range clients {
		select {
		case <-ctx.Done():
		default:
		}
		if time.Now().After(deadline) {
			break
		}
		c.conn.Close()
	}
}
