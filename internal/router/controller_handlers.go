package router

import (
	"context"
	"fmt"

	"github.com/vucinatim/air-jam/backend/go/internal/metrics"
	"github.com/vucinatim/air-jam/backend/go/internal/protocol"
	"github.com/vucinatim/air-jam/backend/go/internal/registry"
)

// handleControllerJoin implements §4.4 "Controller join".
func (h *Hub) handleControllerJoin(ctx context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.ControllerJoinPayload](env.Payload)
	if err != nil {
		h.ackErr(client, env.AckID, protocol.ErrInvalidPayload, err.Error())
		return
	}

	code := registry.RoomCode(payload.RoomID)
	if h.rl != nil && !h.rl.AllowControllerJoin(ctx, string(code)) {
		h.ackErr(client, env.AckID, protocol.ErrRoomFull, "too many joins, try again shortly")
		return
	}

	room, ok := h.reg.GetRoom(code)
	if !ok {
		h.ackErr(client, env.AckID, protocol.ErrRoomNotFound, "room not found")
		return
	}

	id := registry.ControllerID(payload.ControllerID)

	room.Lock()
	// If anything below panics while the lock is held, the deferred unlock
	// releases it so dispatch's recover does not leave the room locked.
	locked := true
	defer func() {
		if locked {
			room.Unlock()
		}
	}()
	if len(room.Controllers) >= room.MaxPlayers {
		locked = false
		room.Unlock()
		h.ackErr(client, env.AckID, protocol.ErrRoomFull, "room is full")
		h.sendToClient(client, protocol.EventServerError, protocol.WireError{
			Code:    protocol.ErrRoomFull,
			Message: "room is full",
		})
		return
	}

	if existing, ok := room.Controllers[id]; ok {
		h.reg.DeleteController(existing.Conn)
	}

	n := len(room.Controllers)
	label := payload.Nickname
	if label == "" {
		label = fmt.Sprintf("Player %d", n)
	}
	player := protocol.PlayerProfile{
		ID:    payload.ControllerID,
		Label: label,
		Color: protocol.ColorForJoinIndex(n),
	}
	room.Controllers[id] = &registry.Controller{
		ID:       id,
		Conn:     client.id,
		Nickname: payload.Nickname,
		Player:   player,
	}

	activeHost := room.ActiveHost()
	gameState := room.GameState
	activeURL := room.ActiveControllerURL
	controllerCount := len(room.Controllers)
	locked = false
	room.Unlock()

	metrics.RoomControllers.WithLabelValues(string(code)).Set(float64(controllerCount))
	h.reg.SetController(client.id, code, id)
	client.role = roleController
	client.roomCode = code
	client.controllerID = id

	h.sendTo(activeHost, protocol.EventServerControllerJoined, protocol.ControllerJoinedPayload{
		ControllerID: string(id),
		Nickname:     payload.Nickname,
		Player:       player,
	})

	h.ackOk(client, env.AckID, protocol.ControllerJoinAckData{
		ControllerID: string(id),
		RoomID:       string(code),
	})

	h.sendToClient(client, protocol.EventServerWelcome, protocol.WelcomePayload{
		ControllerID: string(id),
		RoomID:       string(code),
		Player:       player,
	})
	h.sendToClient(client, protocol.EventServerState, protocol.StatePayload{
		RoomID: string(code),
		State:  protocol.RoomStateFields{GameState: &gameState},
	})
	if activeURL != "" {
		h.sendToClient(client, protocol.EventClientLoadUi, protocol.LoadUiPayload{URL: activeURL})
	}
}

// handleControllerLeave removes a controller on its own request, the same
// cleanup disconnect handling performs, just triggered explicitly.
func (h *Hub) handleControllerLeave(_ context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.ControllerLeavePayload](env.Payload)
	if err != nil {
		h.ackErr(client, env.AckID, protocol.ErrInvalidPayload, err.Error())
		return
	}

	code := registry.RoomCode(payload.RoomID)
	h.removeController(code, registry.ControllerID(payload.ControllerID), client.id)
	h.ackOk(client, env.AckID, nil)
}

func (h *Hub) removeController(code registry.RoomCode, id registry.ControllerID, conn registry.ConnID) {
	room, ok := h.reg.GetRoom(code)
	if !ok {
		return
	}

	room.Lock()
	ctrl, present := room.Controllers[id]
	if !present || ctrl.Conn != conn {
		room.Unlock()
		return
	}
	delete(room.Controllers, id)
	activeHost := room.ActiveHost()
	controllerCount := len(room.Controllers)
	room.Unlock()

	metrics.RoomControllers.WithLabelValues(string(code)).Set(float64(controllerCount))
	h.reg.DeleteController(conn)
	h.sendTo(activeHost, protocol.EventServerControllerLeft, protocol.ControllerLeftPayload{ControllerID: string(id)})
}

// handleControllerInput implements §4.4 "Input forwarding". The input blob
// is forwarded byte-identical. The payload's controllerId is not checked
// against the connection's own controller id; an invalid payload or an
// unknown room drops the message silently (§7 propagation policy: high-rate
// messages never error back to the sender).
func (h *Hub) handleControllerInput(_ context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.ControllerInputPayload](env.Payload)
	if err != nil {
		return
	}

	code := registry.RoomCode(payload.RoomID)
	room, ok := h.reg.GetRoom(code)
	if !ok {
		return
	}

	room.Lock()
	target := room.ActiveHost()
	room.Unlock()

	h.sendTo(target, protocol.EventServerInput, protocol.InputPayload{
		ControllerID: payload.ControllerID,
		Input:        payload.Input,
	})
}

// handleControllerSystem implements controller:system{exit|toggle_pause}.
func (h *Hub) handleControllerSystem(_ context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.ControllerSystemPayload](env.Payload)
	if err != nil {
		h.ackErr(client, env.AckID, protocol.ErrInvalidPayload, err.Error())
		return
	}

	code := registry.RoomCode(payload.RoomID)
	room, ok := h.reg.GetRoom(code)
	if !ok {
		return
	}

	switch payload.Command {
	case protocol.SystemCommandExit:
		room.Lock()
		masterConn := room.MasterHostConn
		h.closeChildLocked(room)
		room.Unlock()
		if masterConn != "" {
			h.sendTo(masterConn, protocol.EventServerCloseChild, nil)
		}
	case protocol.SystemCommandTogglePause:
		room.Lock()
		room.GameState = togglePause(room.GameState)
		state := room.GameState
		h.broadcastRoom(room, protocol.EventServerState, protocol.StatePayload{
			RoomID: string(code),
			State:  protocol.RoomStateFields{GameState: &state},
		}, "")
		room.Unlock()
	}
}

// handleControllerPlaySound forwards controller:play_sound to the active
// host only.
func (h *Hub) handleControllerPlaySound(_ context.Context, client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.ControllerPlaySoundPayload](env.Payload)
	if err != nil {
		return
	}

	code := registry.RoomCode(payload.RoomID)
	room, ok := h.reg.GetRoom(code)
	if !ok {
		return
	}

	room.Lock()
	target := room.ActiveHost()
	room.Unlock()

	h.sendTo(target, protocol.EventServerPlaySound, protocol.PlaySoundPayload{
		ID:     payload.SoundID,
		Volume: payload.Volume,
		Loop:   payload.Loop,
	})
}
