package protocol

// Event is the wire name of a message. Every constant here is named
// verbatim as the corresponding entry in the event catalog.
type Event string

const (
	// Client -> Server, host origin
	EventHostRegisterSystem Event = "host:registerSystem"
	EventHostRegister       Event = "host:register"
	EventHostJoinAsChild    Event = "host:joinAsChild"
	EventSystemLaunchGame   Event = "system:launchGame"
	EventSystemCloseGame    Event = "system:closeGame"
	EventHostState          Event = "host:state"
	EventHostSystem         Event = "host:system"
	EventHostSignal         Event = "host:signal"
	EventHostPlaySound      Event = "host:play_sound"

	// Client -> Server, controller origin
	EventControllerJoin      Event = "controller:join"
	EventControllerLeave     Event = "controller:leave"
	EventControllerInput     Event = "controller:input"
	EventControllerSystem    Event = "controller:system"
	EventControllerPlaySound Event = "controller:play_sound"

	// Server -> Client
	EventServerRoomReady        Event = "server:roomReady"
	EventServerWelcome          Event = "server:welcome"
	EventServerControllerJoined Event = "server:controllerJoined"
	EventServerControllerLeft   Event = "server:controllerLeft"
	EventServerHostLeft         Event = "server:hostLeft"
	EventServerCloseChild       Event = "server:closeChild"
	EventServerState            Event = "server:state"
	EventServerInput            Event = "server:input"
	EventServerSignal           Event = "server:signal"
	EventServerPlaySound        Event = "server:playSound"
	EventServerError            Event = "server:error"
	EventServerAck              Event = "server:ack"

	EventClientLoadUi   Event = "client:loadUi"
	EventClientUnloadUi Event = "client:unloadUi"
)

// SystemCommand is the closed set of host/controller "system" commands.
type SystemCommand string

const (
	SystemCommandTogglePause SystemCommand = "toggle_pause"
	SystemCommandExit        SystemCommand = "exit" // controller:system only
)

// GameState is the room-authoritative play/pause state.
type GameState string

const (
	GameStatePlaying GameState = "playing"
	GameStatePaused  GameState = "paused"
)

// Focus is which host currently owns input routing.
type Focus string

const (
	FocusSystem Focus = "SYSTEM"
	FocusGame   Focus = "GAME"
)
