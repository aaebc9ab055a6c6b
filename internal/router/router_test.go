package router

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vucinatim/air-jam/backend/go/internal/auth"
	"github.com/vucinatim/air-jam/backend/go/internal/config"
	"github.com/vucinatim/air-jam/backend/go/internal/protocol"
	"github.com/vucinatim/air-jam/backend/go/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeConn is a no-op wsConnection: these tests drive the Hub directly via
// dispatch() rather than through real sockets, so only Close needs to work.
type fakeConn struct{}

func (fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, nil }
func (fakeConn) WriteMessage(int, []byte) error    { return nil }
func (fakeConn) Close() error                      { return nil }
func (fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (fakeConn) SetPongHandler(func(string) error) {}

func newTestHub() *Hub {
	cfg := &config.Config{
		MasterGracePeriod: 3 * time.Second,
		RosterReplayDelay: 10 * time.Millisecond,
		HeartbeatInterval: 2 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		AllowedOrigins:    []string{"http://localhost:3000"},
	}
	return New(registry.New(), auth.NewDevVerifier(), nil, cfg)
}

func newTestClient(h *Hub, id string) *Client {
	c := newClient(fakeConn{}, registry.ConnID(id))
	h.connsMu.Lock()
	h.conns[c.id] = c
	h.connsMu.Unlock()
	return c
}

func send(h *Hub, c *Client, event protocol.Event, payload any, ackID string) {
	raw, _ := json.Marshal(payload)
	env, _ := json.Marshal(protocol.Envelope{Event: event, Payload: raw, AckID: ackID})
	h.dispatch(c, env)
}

func drain(t *testing.T, c *Client) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	for {
		select {
		case raw := <-c.send:
			var msg protocol.Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func decodeAck(t *testing.T, msg protocol.Message) protocol.Ack {
	t.Helper()
	raw, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(raw, &ack))
	return ack
}

func findAck(t *testing.T, msgs []protocol.Message) protocol.Ack {
	t.Helper()
	for _, m := range msgs {
		if m.Event == protocol.EventServerAck {
			return decodeAck(t, m)
		}
	}
	t.Fatal("no ack found")
	return protocol.Ack{}
}

func findEvent(msgs []protocol.Message, event protocol.Event) (protocol.Message, bool) {
	for _, m := range msgs {
		if m.Event == event {
			return m, true
		}
	}
	return protocol.Message{}, false
}

// TestScenario_NormalLaunch mirrors spec scenario 1: master registers,
// controller joins, launch mints a token, child attaches and receives the
// roster replay, and focus moves to GAME.
func TestScenario_NormalLaunch(t *testing.T) {
	h := newTestHub()
	master := newTestClient(h, "master")
	ctrl := newTestClient(h, "ctrl-1")

	send(h, master, protocol.EventHostRegisterSystem, protocol.HostRegisterSystemPayload{RoomID: "ABCD", APIKey: "anything"}, "ack-1")
	ack := findAck(t, drain(t, master))
	require.True(t, ack.Ok)

	send(h, ctrl, protocol.EventControllerJoin, protocol.ControllerJoinPayload{RoomID: "ABCD", ControllerID: "c-1"}, "ack-2")
	ctrlMsgs := drain(t, ctrl)
	welcomeMsg, ok := findEvent(ctrlMsgs, protocol.EventServerWelcome)
	require.True(t, ok)
	raw, _ := json.Marshal(welcomeMsg.Payload)
	var welcome protocol.WelcomePayload
	require.NoError(t, json.Unmarshal(raw, &welcome))
	require.Equal(t, "#38bdf8", welcome.Player.Color)

	masterMsgs := drain(t, master)
	_, gotJoined := findEvent(masterMsgs, protocol.EventServerControllerJoined)
	require.True(t, gotJoined)

	send(h, master, protocol.EventSystemLaunchGame, protocol.SystemLaunchGamePayload{RoomID: "ABCD", GameURL: "https://g/x"}, "ack-3")
	launchAck := findAck(t, drain(t, master))
	require.True(t, launchAck.Ok)

	ctrlMsgs = drain(t, ctrl)
	loadUi, ok := findEvent(ctrlMsgs, protocol.EventClientLoadUi)
	require.True(t, ok)

	room, ok := h.reg.GetRoom("ABCD")
	require.True(t, ok)
	room.Lock()
	token := room.JoinToken
	room.Unlock()
	require.NotEmpty(t, token)

	_ = loadUi

	child := newTestClient(h, "child")
	send(h, child, protocol.EventHostJoinAsChild, protocol.HostJoinAsChildPayload{RoomID: "ABCD", JoinToken: token}, "ack-4")
	attachAck := findAck(t, drain(t, child))
	require.True(t, attachAck.Ok)

	time.Sleep(30 * time.Millisecond)
	childMsgs := drain(t, child)
	_, gotRoster := findEvent(childMsgs, protocol.EventServerControllerJoined)
	require.True(t, gotRoster)
	_, gotState := findEvent(childMsgs, protocol.EventServerState)
	require.True(t, gotState)

	room.Lock()
	require.Equal(t, protocol.FocusGame, room.Focus)
	require.Equal(t, registry.ConnID("child"), room.ActiveHost())
	room.Unlock()
}

// TestScenario_FocusRouting mirrors spec scenario 2.
func TestScenario_FocusRouting(t *testing.T) {
	h := newTestHub()
	master := newTestClient(h, "master")
	child := newTestClient(h, "child")
	ctrl := newTestClient(h, "ctrl-1")

	send(h, master, protocol.EventHostRegisterSystem, protocol.HostRegisterSystemPayload{RoomID: "ABCD"}, "")
	drain(t, master)
	send(h, ctrl, protocol.EventControllerJoin, protocol.ControllerJoinPayload{RoomID: "ABCD", ControllerID: "c-1"}, "")
	drain(t, ctrl)
	drain(t, master)
	send(h, master, protocol.EventSystemLaunchGame, protocol.SystemLaunchGamePayload{RoomID: "ABCD", GameURL: "https://g/x"}, "ack")
	launchAck := findAck(t, drain(t, master))
	drain(t, ctrl)

	var tokenData protocol.LaunchAckData
	raw, _ := json.Marshal(launchAck.Data)
	require.NoError(t, json.Unmarshal(raw, &tokenData))

	send(h, child, protocol.EventHostJoinAsChild, protocol.HostJoinAsChildPayload{RoomID: "ABCD", JoinToken: tokenData.JoinToken}, "")
	drain(t, child)
	time.Sleep(30 * time.Millisecond)
	drain(t, child)

	send(h, ctrl, protocol.EventControllerInput, protocol.ControllerInputPayload{RoomID: "ABCD", ControllerID: "c-1", Input: json.RawMessage(`{"x":1}`)}, "")

	childMsgs := drain(t, child)
	inputMsg, ok := findEvent(childMsgs, protocol.EventServerInput)
	require.True(t, ok)
	raw, _ = json.Marshal(inputMsg.Payload)
	var input protocol.InputPayload
	require.NoError(t, json.Unmarshal(raw, &input))
	require.JSONEq(t, `{"x":1}`, string(input.Input))

	masterMsgs := drain(t, master)
	_, gotOnMaster := findEvent(masterMsgs, protocol.EventServerInput)
	require.False(t, gotOnMaster)
}

// TestScenario_RoomFull mirrors spec scenario 4.
func TestScenario_RoomFull(t *testing.T) {
	h := newTestHub()
	master := newTestClient(h, "master")
	send(h, master, protocol.EventHostRegister, protocol.HostRegisterPayload{RoomID: "ABCD", MaxPlayers: 2}, "")
	drain(t, master)

	c1 := newTestClient(h, "c1")
	c2 := newTestClient(h, "c2")
	c3 := newTestClient(h, "c3")

	send(h, c1, protocol.EventControllerJoin, protocol.ControllerJoinPayload{RoomID: "ABCD", ControllerID: "ctrl-1"}, "a1")
	require.True(t, findAck(t, drain(t, c1)).Ok)
	drain(t, master)

	send(h, c2, protocol.EventControllerJoin, protocol.ControllerJoinPayload{RoomID: "ABCD", ControllerID: "ctrl-2"}, "a2")
	require.True(t, findAck(t, drain(t, c2)).Ok)
	drain(t, master)

	send(h, c3, protocol.EventControllerJoin, protocol.ControllerJoinPayload{RoomID: "ABCD", ControllerID: "ctrl-3"}, "a3")
	msgs := drain(t, c3)
	ack := findAck(t, msgs)
	require.False(t, ack.Ok)
	require.Equal(t, protocol.ErrRoomFull, ack.Code)
	_, gotErr := findEvent(msgs, protocol.EventServerError)
	require.True(t, gotErr)

	room, _ := h.reg.GetRoom("ABCD")
	room.Lock()
	require.Len(t, room.Controllers, 2)
	room.Unlock()
}

// TestScenario_ChildDisconnect mirrors spec scenario 3: losing the child
// connection resets focus to SYSTEM and notifies controllers.
func TestScenario_ChildDisconnect(t *testing.T) {
	h := newTestHub()
	master := newTestClient(h, "master")
	child := newTestClient(h, "child")
	ctrl := newTestClient(h, "ctrl-1")

	send(h, master, protocol.EventHostRegisterSystem, protocol.HostRegisterSystemPayload{RoomID: "ABCD"}, "")
	drain(t, master)
	send(h, ctrl, protocol.EventControllerJoin, protocol.ControllerJoinPayload{RoomID: "ABCD", ControllerID: "c-1"}, "")
	drain(t, ctrl)
	drain(t, master)
	send(h, master, protocol.EventSystemLaunchGame, protocol.SystemLaunchGamePayload{RoomID: "ABCD", GameURL: "https://g/x"}, "ack")
	launchAck := findAck(t, drain(t, master))
	drain(t, ctrl)

	var tokenData protocol.LaunchAckData
	raw, _ := json.Marshal(launchAck.Data)
	require.NoError(t, json.Unmarshal(raw, &tokenData))
	send(h, child, protocol.EventHostJoinAsChild, protocol.HostJoinAsChildPayload{RoomID: "ABCD", JoinToken: tokenData.JoinToken}, "")
	drain(t, child)
	time.Sleep(30 * time.Millisecond)
	drain(t, child)

	h.handleDisconnect(child)

	ctrlMsgs := drain(t, ctrl)
	_, gotUnload := findEvent(ctrlMsgs, protocol.EventClientUnloadUi)
	require.True(t, gotUnload)

	room, _ := h.reg.GetRoom("ABCD")
	room.Lock()
	require.Equal(t, protocol.FocusSystem, room.Focus)
	require.Empty(t, room.JoinToken)
	require.Empty(t, room.ActiveControllerURL)
	require.Equal(t, registry.ConnID(""), room.ChildHostConn)
	room.Unlock()
}

// TestMasterGracePeriod_Reregister mirrors spec scenario 6's preserved path:
// a re-register before the grace timer fires cancels teardown.
func TestMasterGracePeriod_Reregister(t *testing.T) {
	h := newTestHub()
	master := newTestClient(h, "master")
	send(h, master, protocol.EventHostRegisterSystem, protocol.HostRegisterSystemPayload{RoomID: "ABCD"}, "")
	drain(t, master)

	h.handleDisconnect(master)
	require.Contains(t, h.graceTimers, registry.RoomCode("ABCD"))

	master2 := newTestClient(h, "master-2")
	send(h, master2, protocol.EventHostRegisterSystem, protocol.HostRegisterSystemPayload{RoomID: "ABCD"}, "")
	drain(t, master2)

	require.NotContains(t, h.graceTimers, registry.RoomCode("ABCD"))

	h.expireMasterGrace("ABCD", "master")
	_, stillThere := h.reg.GetRoom("ABCD")
	require.True(t, stillThere)
}

// TestMasterGracePeriod_Expires mirrors the teardown half of scenario 6.
func TestMasterGracePeriod_Expires(t *testing.T) {
	h := newTestHub()
	master := newTestClient(h, "master")
	send(h, master, protocol.EventHostRegisterSystem, protocol.HostRegisterSystemPayload{RoomID: "ABCD"}, "")
	drain(t, master)

	h.handleDisconnect(master)
	h.expireMasterGrace("ABCD", "master")

	_, stillThere := h.reg.GetRoom("ABCD")
	require.False(t, stillThere)
}

func TestControllerLeave_RemovesFromRoom(t *testing.T) {
	h := newTestHub()
	master := newTestClient(h, "master")
	ctrl := newTestClient(h, "ctrl-1")

	send(h, master, protocol.EventHostRegisterSystem, protocol.HostRegisterSystemPayload{RoomID: "ABCD"}, "")
	drain(t, master)
	send(h, ctrl, protocol.EventControllerJoin, protocol.ControllerJoinPayload{RoomID: "ABCD", ControllerID: "c-1"}, "")
	drain(t, ctrl)
	drain(t, master)

	send(h, ctrl, protocol.EventControllerLeave, protocol.ControllerLeavePayload{RoomID: "ABCD", ControllerID: "c-1"}, "leave-ack")
	ack := findAck(t, drain(t, ctrl))
	require.True(t, ack.Ok)

	room, _ := h.reg.GetRoom("ABCD")
	room.Lock()
	require.Len(t, room.Controllers, 0)
	room.Unlock()

	_, _, found := h.reg.GetControllerInfo("ctrl-1")
	require.False(t, found)
}

func TestTogglePause_BroadcastsToWholeRoom(t *testing.T) {
	h := newTestHub()
	master := newTestClient(h, "master")
	ctrl := newTestClient(h, "ctrl-1")

	send(h, master, protocol.EventHostRegisterSystem, protocol.HostRegisterSystemPayload{RoomID: "ABCD"}, "")
	drain(t, master)
	send(h, ctrl, protocol.EventControllerJoin, protocol.ControllerJoinPayload{RoomID: "ABCD", ControllerID: "c-1"}, "")
	drain(t, ctrl)
	drain(t, master)

	send(h, master, protocol.EventHostSystem, protocol.HostSystemPayload{RoomID: "ABCD", Command: protocol.SystemCommandTogglePause}, "")

	ctrlMsgs := drain(t, ctrl)
	stateMsg, ok := findEvent(ctrlMsgs, protocol.EventServerState)
	require.True(t, ok)
	raw, _ := json.Marshal(stateMsg.Payload)
	var state protocol.StatePayload
	require.NoError(t, json.Unmarshal(raw, &state))
	require.Equal(t, protocol.GameStatePlaying, *state.State.GameState)

	masterMsgs := drain(t, master)
	_, gotOnMaster := findEvent(masterMsgs, protocol.EventServerState)
	require.True(t, gotOnMaster)
}

// TestHostRegisterSystem_GeneratesRoomCodeWhenOmitted covers the
// allocateRoomCode path: a host that registers without a roomId gets one
// minted from protocol.GenerateRoomCode() back in the ack.
func TestHostRegisterSystem_GeneratesRoomCodeWhenOmitted(t *testing.T) {
	h := newTestHub()
	master := newTestClient(h, "master")

	send(h, master, protocol.EventHostRegisterSystem, protocol.HostRegisterSystemPayload{}, "ack-1")
	ack := findAck(t, drain(t, master))
	require.True(t, ack.Ok)

	var ready protocol.RoomReadyPayload
	raw, _ := json.Marshal(ack.Data)
	require.NoError(t, json.Unmarshal(raw, &ready))
	require.NotEmpty(t, ready.RoomID)

	_, exists := h.reg.GetRoom(registry.RoomCode(ready.RoomID))
	require.True(t, exists)
}

// TestHostJoinAsChild_ConsumesToken covers the §3 invariant 3 fix: once a
// child has attached, the joinToken is cleared and a replay of the same
// token is rejected rather than hijacking ChildHostConn.
func TestHostJoinAsChild_ConsumesToken(t *testing.T) {
	h := newTestHub()
	master := newTestClient(h, "master")
	child := newTestClient(h, "child")
	hijacker := newTestClient(h, "hijacker")

	send(h, master, protocol.EventHostRegisterSystem, protocol.HostRegisterSystemPayload{RoomID: "ABCD"}, "")
	drain(t, master)

	send(h, master, protocol.EventSystemLaunchGame, protocol.SystemLaunchGamePayload{RoomID: "ABCD", GameURL: "https://g/x"}, "ack")
	launchAck := findAck(t, drain(t, master))
	var tokenData protocol.LaunchAckData
	raw, _ := json.Marshal(launchAck.Data)
	require.NoError(t, json.Unmarshal(raw, &tokenData))

	send(h, child, protocol.EventHostJoinAsChild, protocol.HostJoinAsChildPayload{RoomID: "ABCD", JoinToken: tokenData.JoinToken}, "ack")
	require.True(t, findAck(t, drain(t, child)).Ok)

	room, _ := h.reg.GetRoom("ABCD")
	room.Lock()
	require.Empty(t, room.JoinToken)
	require.Equal(t, registry.ConnID("child"), room.ChildHostConn)
	room.Unlock()

	send(h, hijacker, protocol.EventHostJoinAsChild, protocol.HostJoinAsChildPayload{RoomID: "ABCD", JoinToken: tokenData.JoinToken}, "ack")
	hijackAck := findAck(t, drain(t, hijacker))
	require.False(t, hijackAck.Ok)
	require.Equal(t, protocol.ErrInvalidToken, hijackAck.Code)

	room.Lock()
	require.Equal(t, registry.ConnID("child"), room.ChildHostConn)
	room.Unlock()
}

// TestDispatch_RecoversFromHandlerPanic covers the §7 panic-isolation fix:
// a panicking handler must not take down the connection's read pump, let
// alone the process. A room with a nil Controllers map (state that should
// never occur via the normal registration path, but is cheap to force
// directly through the registry) makes handleControllerJoin's map write
// panic, exercising dispatch's recover for real rather than simulating it.
func TestDispatch_RecoversFromHandlerPanic(t *testing.T) {
	h := newTestHub()
	client := newTestClient(h, "c1")

	room := &registry.Room{
		Code:       "ABCD",
		Focus:      protocol.FocusSystem,
		GameState:  protocol.GameStatePaused,
		MaxPlayers: 8,
	}
	h.reg.SetRoom(room)

	require.NotPanics(t, func() {
		send(h, client, protocol.EventControllerJoin, protocol.ControllerJoinPayload{RoomID: "ABCD", ControllerID: "c-1"}, "ack-1")
	})

	// The connection survives the recovered panic and keeps dispatching.
	send(h, client, protocol.EventControllerLeave, protocol.ControllerLeavePayload{RoomID: "ABCD", ControllerID: "c-1"}, "ack-2")
	ack := findAck(t, drain(t, client))
	require.True(t, ack.Ok)
}
