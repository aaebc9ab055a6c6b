package router

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/vucinatim/air-jam/backend/go/internal/logging"
	"github.com/vucinatim/air-jam/backend/go/internal/protocol"
	"github.com/vucinatim/air-jam/backend/go/internal/registry"
)

// RoleTarget is the broadcast-targeting axis a room's members fall into:
// either host (master or child) or controller. A nil set.Set[RoleTarget]
// means "every role", mirroring the teacher's broadcast(..., roles
// set.Set[RoleType]) shape (session/room.go) collapsed from its four-tier
// role ladder down to this spec's two origins.
type RoleTarget string

const (
	RoleTargetHost       RoleTarget = "host"
	RoleTargetController RoleTarget = "controller"
)

// AllRoles is the nil sentinel meaning "broadcast to every role" — passed
// explicitly so call sites read the same way the teacher's room.go does
// (broadcast(..., nil) for "send to all").
var AllRoles set.Set[RoleTarget]

// sendTo delivers a server-origin message to a single connection by id. It
// is a non-blocking send against the client's buffered channel: a slow or
// wedged client never blocks the caller, which usually holds a room lock
// (§5's "no blocking I/O inside a critical section").
func (h *Hub) sendTo(id registry.ConnID, event protocol.Event, payload any) {
	client, ok := h.getClient(id)
	if !ok {
		return
	}
	h.sendToClient(client, event, payload)
}

func (h *Hub) sendToClient(client *Client, event protocol.Event, payload any) {
	data, err := json.Marshal(protocol.Message{Event: event, Payload: payload})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal outbound message", zap.Error(err), zap.String("event", string(event)))
		return
	}

	select {
	case client.send <- data:
	default:
		logging.Warn(context.Background(), "dropping message to slow client", zap.String("event", string(event)))
	}
}

func (h *Hub) sendAck(client *Client, ackID string, ok bool, code protocol.ErrorCode, message string, data any) {
	if ackID == "" {
		return
	}
	h.sendToClient(client, protocol.EventServerAck, protocol.Ack{
		AckID:   ackID,
		Ok:      ok,
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func (h *Hub) ackOk(client *Client, ackID string, data any) {
	h.sendAck(client, ackID, true, "", "", data)
}

func (h *Hub) ackErr(client *Client, ackID string, code protocol.ErrorCode, message string) {
	h.sendAck(client, ackID, false, code, message, nil)
}

// roomConns collects every live connection id a room currently references,
// grouped by RoleTarget: both hosts under RoleTargetHost, every controller
// under RoleTargetController. Caller must hold the room lock.
func roomConns(room *registry.Room) map[RoleTarget][]registry.ConnID {
	hosts := make([]registry.ConnID, 0, 2)
	if room.MasterHostConn != "" {
		hosts = append(hosts, room.MasterHostConn)
	}
	if room.ChildHostConn != "" {
		hosts = append(hosts, room.ChildHostConn)
	}
	controllers := make([]registry.ConnID, 0, len(room.Controllers))
	for _, ctrl := range room.Controllers {
		controllers = append(controllers, ctrl.Conn)
	}
	return map[RoleTarget][]registry.ConnID{
		RoleTargetHost:       hosts,
		RoleTargetController: controllers,
	}
}

// broadcast sends event/payload to every connection whose role is in roles
// (AllRoles sends to every role), optionally skipping one connection
// (typically the sender). Caller must hold the room lock. Mirrors the
// teacher's Room.broadcastWithOptions(event, payload, roles, excludeSenderID).
func (h *Hub) broadcast(room *registry.Room, event protocol.Event, payload any, roles set.Set[RoleTarget], exclude registry.ConnID) {
	byRole := roomConns(room)
	for role, ids := range byRole {
		if roles != nil && !roles.Has(role) {
			continue
		}
		for _, id := range ids {
			if id == exclude {
				continue
			}
			h.sendTo(id, event, payload)
		}
	}
}

// broadcastRoom sends event/payload to every connection the room
// references (both roles), optionally skipping one. Caller must hold the
// room lock.
func (h *Hub) broadcastRoom(room *registry.Room, event protocol.Event, payload any, exclude registry.ConnID) {
	h.broadcast(room, event, payload, AllRoles, exclude)
}

// broadcastControllers sends event/payload to every controller in the room,
// optionally skipping one. Caller must hold the room lock.
func (h *Hub) broadcastControllers(room *registry.Room, event protocol.Event, payload any, exclude registry.ConnID) {
	h.broadcast(room, event, payload, set.New(RoleTargetController), exclude)
}

// teardownRoom notifies every remaining member of a removed room and lets
// their own disconnects follow naturally; it does not forcibly close
// sockets; clients are expected to close on receipt of server:hostLeft.
func (h *Hub) teardownRoom(room *registry.Room, reason string) {
	h.broadcast(room, protocol.EventServerHostLeft, protocol.HostLeftPayload{
		RoomID: string(room.Code),
		Reason: reason,
	}, AllRoles, "")
}
