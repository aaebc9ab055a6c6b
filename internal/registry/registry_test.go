package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vucinatim/air-jam/backend/go/internal/protocol"
)

func TestRegistry_SetAndGetRoom(t *testing.T) {
	reg := New()
	room := NewRoom("ABCD", DefaultMaxPlayersSystem)
	reg.SetRoom(room)

	got, ok := reg.GetRoom("ABCD")
	require.True(t, ok)
	require.Same(t, room, got)

	_, ok = reg.GetRoom("ZZZZ")
	require.False(t, ok)
}

func TestRegistry_HostIndexRoundTrip(t *testing.T) {
	reg := New()
	room := NewRoom("ABCD", DefaultMaxPlayersSystem)
	room.MasterHostConn = "conn-1"
	reg.SetRoom(room)
	reg.SetHostRoom("conn-1", "ABCD")

	got, ok := reg.GetRoomByHost("conn-1")
	require.True(t, ok)
	require.Equal(t, RoomCode("ABCD"), got.Code)

	reg.DeleteHost("conn-1")
	_, ok = reg.GetRoomByHost("conn-1")
	require.False(t, ok)
}

func TestRegistry_ControllerIndexRoundTrip(t *testing.T) {
	reg := New()
	reg.SetController("conn-2", "ABCD", "c-1")

	code, id, ok := reg.GetControllerInfo("conn-2")
	require.True(t, ok)
	require.Equal(t, RoomCode("ABCD"), code)
	require.Equal(t, ControllerID("c-1"), id)

	reg.DeleteController("conn-2")
	_, _, ok = reg.GetControllerInfo("conn-2")
	require.False(t, ok)
}

func TestRegistry_RemoveRoom_ClearsBothIndices(t *testing.T) {
	reg := New()
	room := NewRoom("ABCD", DefaultMaxPlayersSystem)
	room.MasterHostConn = "host-conn"
	room.ChildHostConn = "child-conn"
	room.Controllers["c-1"] = &Controller{ID: "c-1", Conn: "ctrl-conn"}
	reg.SetRoom(room)
	reg.SetHostRoom("host-conn", "ABCD")
	reg.SetHostRoom("child-conn", "ABCD")
	reg.SetController("ctrl-conn", "ABCD", "c-1")

	removed := reg.RemoveRoom("ABCD")
	require.NotNil(t, removed)

	_, ok := reg.GetRoom("ABCD")
	require.False(t, ok)
	_, ok = reg.GetRoomByHost("host-conn")
	require.False(t, ok)
	_, ok = reg.GetRoomByHost("child-conn")
	require.False(t, ok)
	_, _, ok = reg.GetControllerInfo("ctrl-conn")
	require.False(t, ok)
}

func TestRegistry_RemoveRoom_UnknownReturnsNil(t *testing.T) {
	reg := New()
	require.Nil(t, reg.RemoveRoom("NOPE"))
}

func TestRoom_ActiveHost(t *testing.T) {
	room := NewRoom("ABCD", DefaultMaxPlayersSystem)
	room.MasterHostConn = "master"
	require.Equal(t, ConnID("master"), room.ActiveHost())

	room.ChildHostConn = "child"
	room.Focus = protocol.FocusGame
	require.Equal(t, ConnID("child"), room.ActiveHost())

	room.ChildHostConn = ""
	room.Focus = protocol.FocusSystem
	require.Equal(t, ConnID("master"), room.ActiveHost())
}
