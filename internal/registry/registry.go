package registry

import "sync"

// controllerRef is the derived index entry for a controller connection.
type controllerRef struct {
	Room         RoomCode
	ControllerID ControllerID
}

// Registry is the process-global room map plus its two derived indices
// (connId -> RoomCode for hosts, connId -> {RoomCode, ControllerId} for
// controllers). The Room map is the source of truth; the indices are
// derived and kept consistent on every insert/remove (§3 invariant 5).
//
// Registry's own mutex guards only the top-level maps (insert/lookup/
// delete of a Room, index updates) — it never guards a Room's internal
// fields. Per-room mutation serialization is the Room's own mutex.
type Registry struct {
	mu sync.RWMutex

	rooms           map[RoomCode]*Room
	hostIndex       map[ConnID]RoomCode
	controllerIndex map[ConnID]controllerRef
}

func New() *Registry {
	return &Registry{
		rooms:           make(map[RoomCode]*Room),
		hostIndex:       make(map[ConnID]RoomCode),
		controllerIndex: make(map[ConnID]controllerRef),
	}
}

// GetRoom returns the room for code, if it exists.
func (reg *Registry) GetRoom(code RoomCode) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[code]
	return room, ok
}

// SetRoom inserts or replaces the room entry for its own code.
func (reg *Registry) SetRoom(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rooms[room.Code] = room
}

// DeleteRoom removes a room entry directly, without cascading index
// cleanup. Most callers want RemoveRoom instead.
func (reg *Registry) DeleteRoom(code RoomCode) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, code)
}

// GetRoomByHost resolves a host connection to its room via the derived index.
func (reg *Registry) GetRoomByHost(conn ConnID) (*Room, bool) {
	reg.mu.RLock()
	code, ok := reg.hostIndex[conn]
	reg.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return reg.GetRoom(code)
}

// SetHostRoom records that conn is a host of room code.
func (reg *Registry) SetHostRoom(conn ConnID, code RoomCode) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.hostIndex[conn] = code
}

// DeleteHost removes a host connection's index entry.
func (reg *Registry) DeleteHost(conn ConnID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.hostIndex, conn)
}

// GetControllerInfo resolves a controller connection to its room code and
// controller id via the derived index.
func (reg *Registry) GetControllerInfo(conn ConnID) (RoomCode, ControllerID, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ref, ok := reg.controllerIndex[conn]
	if !ok {
		return "", "", false
	}
	return ref.Room, ref.ControllerID, true
}

// SetController records that conn is controller id within room code.
func (reg *Registry) SetController(conn ConnID, code RoomCode, id ControllerID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.controllerIndex[conn] = controllerRef{Room: code, ControllerID: id}
}

// DeleteController removes a controller connection's index entry.
func (reg *Registry) DeleteController(conn ConnID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.controllerIndex, conn)
}

// RemoveRoom performs the cascading cleanup §4.3 describes: it clears the
// host and controller indices for everything the room references and
// deletes the Room entry. It returns the removed room (nil if it did not
// exist) so the caller — the Router — can emit server:hostLeft and close
// connections; Registry itself never touches the wire.
func (reg *Registry) RemoveRoom(code RoomCode) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[code]
	if !ok {
		return nil
	}

	if room.MasterHostConn != "" {
		delete(reg.hostIndex, room.MasterHostConn)
	}
	if room.ChildHostConn != "" {
		delete(reg.hostIndex, room.ChildHostConn)
	}
	for _, ctrl := range room.Controllers {
		delete(reg.controllerIndex, ctrl.Conn)
	}

	delete(reg.rooms, code)
	return room
}

// Len reports the number of live rooms, for metrics.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
