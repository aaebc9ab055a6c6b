package router

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/vucinatim/air-jam/backend/go/internal/logging"
	"github.com/vucinatim/air-jam/backend/go/internal/metrics"
	"github.com/vucinatim/air-jam/backend/go/internal/protocol"
)

// dispatch decodes one inbound frame and routes it to its handler. It runs
// synchronously on the connection's own readPump goroutine, which is what
// gives per-connection ordering guarantees for free (§5 guarantee 1). A
// recover() here isolates a handler panic to this one connection (§7:
// "panics must be isolated per connection") instead of crashing the
// process and every other room with it — readPump's own goroutine has no
// gin.Recovery() to fall back on.
func (h *Hub) dispatch(client *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(context.Background(), "recovered from panic in event dispatch",
				zap.Any("panic", r), zap.String("conn_id", string(client.id)))
		}
	}()

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	ctx := logging.WithConnID(context.Background(), string(client.id))
	if client.roomCode != "" {
		ctx = logging.WithRoomCode(ctx, string(client.roomCode))
	}

	timer := metrics.NewEventTimer(string(env.Event))
	defer timer.ObserveDuration()
	metrics.EventsTotal.WithLabelValues(string(env.Event), "received").Inc()

	switch env.Event {
	case protocol.EventHostRegisterSystem:
		h.handleHostRegisterSystem(ctx, client, env)
	case protocol.EventHostRegister:
		h.handleHostRegister(ctx, client, env)
	case protocol.EventHostJoinAsChild:
		h.handleHostJoinAsChild(ctx, client, env)
	case protocol.EventSystemLaunchGame:
		h.handleSystemLaunchGame(ctx, client, env)
	case protocol.EventSystemCloseGame:
		h.handleSystemCloseGame(ctx, client, env)
	case protocol.EventHostState:
		h.handleHostState(ctx, client, env)
	case protocol.EventHostSystem:
		h.handleHostSystem(ctx, client, env)
	case protocol.EventHostSignal:
		h.handleHostSignal(ctx, client, env)
	case protocol.EventHostPlaySound:
		h.handleHostPlaySound(ctx, client, env)

	case protocol.EventControllerJoin:
		h.handleControllerJoin(ctx, client, env)
	case protocol.EventControllerLeave:
		h.handleControllerLeave(ctx, client, env)
	case protocol.EventControllerInput:
		h.handleControllerInput(ctx, client, env)
	case protocol.EventControllerSystem:
		h.handleControllerSystem(ctx, client, env)
	case protocol.EventControllerPlaySound:
		h.handleControllerPlaySound(ctx, client, env)

	default:
		logging.Warn(ctx, "unknown event", zap.String("event", string(env.Event)))
		h.ackErr(client, env.AckID, protocol.ErrInvalidPayload, "unknown event")
	}
}
