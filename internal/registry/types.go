// Package registry implements the Room Registry (C3): the single-process,
// in-memory source of truth for rooms, hosts, controllers, focus, join
// tokens, and game state.
package registry

import (
	"sync"

	"github.com/vucinatim/air-jam/backend/go/internal/protocol"
)

// ConnID identifies a single connection, independent of any role it plays.
type ConnID string

// ControllerID is client-generated and persisted in the controller's own
// local storage, so it survives reconnects.
type ControllerID string

// DefaultMaxPlayersSystem and DefaultMaxPlayersStandalone are the two
// defaults §3 specifies for host:registerSystem and legacy host:register
// rooms respectively.
const (
	DefaultMaxPlayersSystem     = 32
	DefaultMaxPlayersStandalone = 8
)

// Controller is a single admitted controller connection.
type Controller struct {
	ID       ControllerID
	Conn     ConnID
	Nickname string
	Player   protocol.PlayerProfile
}

// Room is identified by its Code and owns its Controllers and JoinToken
// exclusively. All mutating access must go through the caller holding
// Lock/Unlock — the registry only arbitrates creation, lookup, and
// teardown of Room entries, not mutation of their fields.
type Room struct {
	mu sync.Mutex

	Code RoomCode

	MasterHostConn ConnID
	ChildHostConn  ConnID

	Focus     protocol.Focus
	GameState protocol.GameState

	JoinToken           string
	ActiveControllerURL string

	Controllers map[ControllerID]*Controller
	MaxPlayers  int
}

// NewRoom constructs a Room in its initial SYSTEM-focus, paused state.
func NewRoom(code RoomCode, maxPlayers int) *Room {
	return &Room{
		Code:        code,
		Focus:       protocol.FocusSystem,
		GameState:   protocol.GameStatePaused,
		Controllers: make(map[ControllerID]*Controller),
		MaxPlayers:  maxPlayers,
	}
}

// Lock/Unlock serialize all mutations to a single Room, satisfying §5's
// per-room mutual-exclusion requirement. Different rooms progress
// independently — this mutex never protects more than one Room.
func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

// ActiveHost returns the connection that currently owns input focus: the
// child host when focus is GAME and a child is attached, otherwise the
// master host. Caller must hold the room lock.
func (r *Room) ActiveHost() ConnID {
	if r.Focus == protocol.FocusGame && r.ChildHostConn != "" {
		return r.ChildHostConn
	}
	return r.MasterHostConn
}

// RoomCode is a short, case-sensitive, opaque room identifier.
type RoomCode string
