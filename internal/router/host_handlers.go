package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vucinatim/air-jam/backend/go/internal/logging"
	"github.com/vucinatim/air-jam/backend/go/internal/metrics"
	"github.com/vucinatim/air-jam/backend/go/internal/protocol"
	"github.com/vucinatim/air-jam/backend/go/internal/registry"
)

// handleHostRegisterSystem implements §4.4 "Registration (master)". A
// takeover (room already present) retains controllers and any attached
// child; only masterHostConn moves to this connection.
func (h *Hub) handleHostRegisterSystem(ctx context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.HostRegisterSystemPayload](env.Payload)
	if err != nil {
		h.ackErr(client, env.AckID, protocol.ErrInvalidPayload, err.Error())
		return
	}

	ok, verr := h.verifier.VerifyAPIKey(ctx, payload.APIKey)
	if verr != nil {
		logging.Error(ctx, "api key verification failed", zap.Error(verr))
	}
	if verr != nil || !ok {
		h.ackErr(client, env.AckID, protocol.ErrInvalidAPIKey, "invalid api key")
		return
	}

	code := registry.RoomCode(payload.RoomID)
	if code == "" {
		code = h.allocateRoomCode()
	}
	h.registerMaster(ctx, client, env, code, registry.DefaultMaxPlayersSystem)
}

// handleHostRegister implements the legacy host:register path: no API key
// is required regardless of auth mode (§9 open question — preserved as
// specified, not gated further).
func (h *Hub) handleHostRegister(ctx context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.HostRegisterPayload](env.Payload)
	if err != nil {
		h.ackErr(client, env.AckID, protocol.ErrInvalidPayload, err.Error())
		return
	}

	maxPlayers := payload.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = registry.DefaultMaxPlayersStandalone
	}

	code := registry.RoomCode(payload.RoomID)
	if code == "" {
		code = h.allocateRoomCode()
	}
	h.registerMaster(ctx, client, env, code, maxPlayers)
}

// allocateRoomCode mints a broker-generated room code for a host that
// registered without supplying one, retrying on the vanishingly rare
// collision against a still-live room (§3: "Unique per live room").
func (h *Hub) allocateRoomCode() registry.RoomCode {
	for {
		code := registry.RoomCode(protocol.GenerateRoomCode())
		if _, exists := h.reg.GetRoom(code); !exists {
			return code
		}
	}
}

func (h *Hub) registerMaster(ctx context.Context, client *Client, env protocol.Envelope, code registry.RoomCode, maxPlayersIfNew int) {
	room, exists := h.reg.GetRoom(code)
	if !exists {
		room = registry.NewRoom(code, maxPlayersIfNew)
		h.reg.SetRoom(room)
		metrics.ActiveRooms.Set(float64(h.reg.Len()))
	}

	room.Lock()
	room.MasterHostConn = client.id
	room.Unlock()

	h.reg.SetHostRoom(client.id, code)
	h.cancelGraceTimer(code)

	client.role = roleHostMaster
	client.roomCode = code

	logging.Info(ctx, "master host registered", zap.String("room_code", string(code)))

	h.ackOk(client, env.AckID, protocol.RoomReadyPayload{RoomID: string(code)})

	room.Lock()
	h.broadcastRoom(room, protocol.EventServerRoomReady, protocol.RoomReadyPayload{RoomID: string(code)}, "")
	room.Unlock()
}

// handleHostJoinAsChild implements §4.4 "Child attach". The child socket is
// a brand-new connection distinct from the master's.
func (h *Hub) handleHostJoinAsChild(ctx context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.HostJoinAsChildPayload](env.Payload)
	if err != nil {
		h.ackErr(client, env.AckID, protocol.ErrInvalidPayload, err.Error())
		return
	}

	code := registry.RoomCode(payload.RoomID)
	room, ok := h.reg.GetRoom(code)
	if !ok {
		h.ackErr(client, env.AckID, protocol.ErrRoomNotFound, "room not found")
		return
	}

	room.Lock()
	if room.JoinToken == "" || room.JoinToken != payload.JoinToken {
		room.Unlock()
		logging.Warn(ctx, "child join token mismatch", zap.String("room_code", string(code)))
		h.ackErr(client, env.AckID, protocol.ErrInvalidToken, "invalid join token")
		return
	}
	room.ChildHostConn = client.id
	room.Focus = protocol.FocusGame
	room.JoinToken = ""
	room.Unlock()

	h.reg.SetHostRoom(client.id, code)
	client.role = roleHostChild
	client.roomCode = code

	h.ackOk(client, env.AckID, protocol.RoomReadyPayload{RoomID: string(code)})

	childConn := client.id
	time.AfterFunc(h.cfg.RosterReplayDelay, func() {
		h.replayRosterToChild(code, childConn)
	})
}

// replayRosterToChild sends the current controller roster plus game state
// to a newly attached child, re-checking it is still the attached child
// before sending (§9: timers must re-check identity before acting).
func (h *Hub) replayRosterToChild(code registry.RoomCode, childConn registry.ConnID) {
	room, ok := h.reg.GetRoom(code)
	if !ok {
		return
	}

	room.Lock()
	if room.ChildHostConn != childConn {
		room.Unlock()
		return
	}
	controllers := make([]*registry.Controller, 0, len(room.Controllers))
	for _, c := range room.Controllers {
		controllers = append(controllers, c)
	}
	gameState := room.GameState
	room.Unlock()

	for _, c := range controllers {
		h.sendTo(childConn, protocol.EventServerControllerJoined, protocol.ControllerJoinedPayload{
			ControllerID: string(c.ID),
			Nickname:     c.Nickname,
			Player:       c.Player,
		})
	}
	h.sendTo(childConn, protocol.EventServerState, protocol.StatePayload{
		RoomID: string(code),
		State:  protocol.RoomStateFields{GameState: &gameState},
	})
}

// handleSystemLaunchGame implements §4.4 "Launch". Repeated calls before a
// child joins are idempotent: the same joinToken is returned.
func (h *Hub) handleSystemLaunchGame(ctx context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.SystemLaunchGamePayload](env.Payload)
	if err != nil {
		h.ackErr(client, env.AckID, protocol.ErrInvalidPayload, err.Error())
		return
	}

	code := registry.RoomCode(payload.RoomID)
	room, ok := h.reg.GetRoom(code)
	if !ok {
		h.ackErr(client, env.AckID, protocol.ErrUnauthorized, "not the master host")
		return
	}

	room.Lock()
	if room.MasterHostConn != client.id {
		room.Unlock()
		h.ackErr(client, env.AckID, protocol.ErrUnauthorized, "not the master host")
		return
	}
	if room.ChildHostConn != "" {
		room.Unlock()
		h.ackErr(client, env.AckID, protocol.ErrAlreadyConnected, "a child is already attached")
		return
	}
	if room.JoinToken != "" {
		existing := room.JoinToken
		room.Unlock()
		h.ackOk(client, env.AckID, protocol.LaunchAckData{JoinToken: existing})
		return
	}

	token := uuid.NewString()
	room.JoinToken = token
	room.ActiveControllerURL = payload.GameURL
	room.Unlock()

	logging.Info(ctx, "game launched", zap.String("room_code", string(code)), zap.String("game_id", payload.GameID))

	room.Lock()
	h.broadcastRoom(room, protocol.EventClientLoadUi, protocol.LoadUiPayload{URL: payload.GameURL}, "")
	room.Unlock()

	h.ackOk(client, env.AckID, protocol.LaunchAckData{JoinToken: token})
}

// handleSystemCloseGame implements §4.4 "Close".
func (h *Hub) handleSystemCloseGame(ctx context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.SystemCloseGamePayload](env.Payload)
	if err != nil {
		h.ackErr(client, env.AckID, protocol.ErrInvalidPayload, err.Error())
		return
	}

	code := registry.RoomCode(payload.RoomID)
	room, ok := h.reg.GetRoom(code)
	if !ok {
		h.ackErr(client, env.AckID, protocol.ErrUnauthorized, "not the master host")
		return
	}

	room.Lock()
	if room.MasterHostConn != client.id {
		room.Unlock()
		h.ackErr(client, env.AckID, protocol.ErrUnauthorized, "not the master host")
		return
	}
	h.closeChildLocked(room)
	room.Unlock()

	h.ackOk(client, env.AckID, nil)
}

// closeChildLocked clears a room's child-attachment fields, forcibly
// disconnects the child socket if one was live, and notifies the room.
// Caller must hold the room lock. The socket close is dispatched on its own
// goroutine so no network I/O ever runs inside the critical section (§5).
func (h *Hub) closeChildLocked(room *registry.Room) {
	childConn := room.ChildHostConn
	room.ChildHostConn = ""
	room.JoinToken = ""
	room.ActiveControllerURL = ""
	room.Focus = protocol.FocusSystem
	room.GameState = protocol.GameStatePaused

	h.broadcastRoom(room, protocol.EventClientUnloadUi, nil, "")

	if childConn != "" {
		go h.forceDisconnect(childConn)
	}
}

func (h *Hub) forceDisconnect(id registry.ConnID) {
	client, ok := h.getClient(id)
	if !ok {
		return
	}
	client.conn.Close()
}

// handleHostState implements §4.4 "State sync" for host-originated updates.
func (h *Hub) handleHostState(_ context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.HostStatePayload](env.Payload)
	if err != nil {
		return
	}

	code := registry.RoomCode(payload.RoomID)
	room, ok := h.reg.GetRoom(code)
	if !ok {
		return
	}

	room.Lock()
	if client.id != room.MasterHostConn && client.id != room.ChildHostConn {
		room.Unlock()
		return
	}
	if payload.State.GameState != nil {
		room.GameState = *payload.State.GameState
	}
	state := room.GameState
	h.broadcastRoom(room, protocol.EventServerState, protocol.StatePayload{
		RoomID: string(code),
		State:  protocol.RoomStateFields{GameState: &state, Message: payload.State.Message},
	}, "")
	room.Unlock()
}

// handleHostSystem implements host:system{toggle_pause}; exit is a
// controller-only command.
func (h *Hub) handleHostSystem(_ context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.HostSystemPayload](env.Payload)
	if err != nil {
		h.ackErr(client, env.AckID, protocol.ErrInvalidPayload, err.Error())
		return
	}

	code := registry.RoomCode(payload.RoomID)
	room, ok := h.reg.GetRoom(code)
	if !ok {
		return
	}

	room.Lock()
	if client.id != room.MasterHostConn && client.id != room.ChildHostConn {
		room.Unlock()
		return
	}
	room.GameState = togglePause(room.GameState)
	state := room.GameState
	h.broadcastRoom(room, protocol.EventServerState, protocol.StatePayload{
		RoomID: string(code),
		State:  protocol.RoomStateFields{GameState: &state},
	}, "")
	room.Unlock()
}

func togglePause(s protocol.GameState) protocol.GameState {
	if s == protocol.GameStatePlaying {
		return protocol.GameStatePaused
	}
	return protocol.GameStatePlaying
}

// handleHostSignal implements §4.4 "Signals and sounds" for host:signal.
func (h *Hub) handleHostSignal(_ context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.HostSignalPayload](env.Payload)
	if err != nil {
		return
	}

	code := registry.RoomCode(payload.RoomID)
	room, ok := h.reg.GetRoom(code)
	if !ok {
		return
	}

	room.Lock()
	defer room.Unlock()
	if client.id != room.MasterHostConn && client.id != room.ChildHostConn {
		return
	}

	signalPayload := protocol.SignalPayload{FromHost: true, Signal: payload.Signal}
	if payload.TargetID != "" {
		if ctrl, ok := room.Controllers[registry.ControllerID(payload.TargetID)]; ok {
			h.sendTo(ctrl.Conn, protocol.EventServerSignal, signalPayload)
		}
		return
	}
	h.broadcastControllers(room, protocol.EventServerSignal, signalPayload, client.id)
}

// handleHostPlaySound implements host:play_sound, mirroring host:signal's
// single-target-or-broadcast routing.
func (h *Hub) handleHostPlaySound(_ context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.HostPlaySoundPayload](env.Payload)
	if err != nil {
		return
	}

	code := registry.RoomCode(payload.RoomID)
	room, ok := h.reg.GetRoom(code)
	if !ok {
		return
	}

	room.Lock()
	defer room.Unlock()
	if client.id != room.MasterHostConn && client.id != room.ChildHostConn {
		return
	}

	soundPayload := protocol.PlaySoundPayload{ID: payload.SoundID, Volume: payload.Volume, Loop: payload.Loop}
	if payload.TargetControllerID != "" {
		if ctrl, ok := room.Controllers[registry.ControllerID(payload.TargetControllerID)]; ok {
			h.sendTo(ctrl.Conn, protocol.EventServerPlaySound, soundPayload)
		}
		return
	}
	h.broadcastControllers(room, protocol.EventServerPlaySound, soundPayload, client.id)
}
