package router

import (
	"context"

	"github.com/vucinatim/air-jam/backend/go/internal/logging"
	"github.com/vucinatim/air-jam/backend/go/internal/protocol"
)

// handleDisconnect implements §4.4 "Disconnect" for whichever role this
// connection had settled into, then drops it from the Hub entirely. It runs
// on the connection's own readPump goroutine as its final act (via defer),
// so it never races with any other dispatch call for this same client.
func (h *Hub) handleDisconnect(client *Client) {
	defer h.dropClient(client.id)

	switch client.role {
	case roleHostChild:
		h.handleChildDisconnect(client)
	case roleHostMaster:
		h.handleMasterDisconnect(client)
	case roleController:
		h.removeController(client.roomCode, client.controllerID, client.id)
	case roleUnknown:
		// Never registered; nothing to clean up.
	}
}

func (h *Hub) handleChildDisconnect(client *Client) {
	room, ok := h.reg.GetRoom(client.roomCode)
	if !ok {
		return
	}

	room.Lock()
	if room.ChildHostConn != client.id {
		// Already cleared by a concurrent system:closeGame/exit.
		room.Unlock()
		h.reg.DeleteHost(client.id)
		return
	}
	room.ChildHostConn = ""
	room.JoinToken = ""
	room.ActiveControllerURL = ""
	room.Focus = protocol.FocusSystem
	h.broadcastRoom(room, protocol.EventClientUnloadUi, nil, "")
	room.Unlock()

	h.reg.DeleteHost(client.id)
}

func (h *Hub) handleMasterDisconnect(client *Client) {
	room, ok := h.reg.GetRoom(client.roomCode)
	if !ok {
		return
	}

	room.Lock()
	stillMaster := room.MasterHostConn == client.id
	room.Unlock()
	if !stillMaster {
		// Taken over by another master; only this connection's index entry
		// is stale.
		h.reg.DeleteHost(client.id)
		return
	}

	h.reg.DeleteHost(client.id)

	ctx := logging.WithRoomCode(context.Background(), string(client.roomCode))
	logging.Info(ctx, "master host disconnected, starting grace period")
	h.startGracePeriod(client.roomCode, client.id)
}
