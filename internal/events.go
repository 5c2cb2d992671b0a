package internal

import (
	"context"

	"github.com/bramble-dev/bramble/discord"
)

// OnEvent handles an event from the gateway.
func (sh *Shard) OnEvent(ctx context.Context, msg discord.GatewayPayload) {
	if msg.Sequence != nil && *msg.Sequence > sh.Sequence.Load() {
		sh.Sequence.Store(*msg.Sequence)
	}

	switch msg.Op {
	case discord.GatewayOpDispatch:
		sh.OnDispatch(ctx, msg)
	case discord.GatewayOpHeartbeat:
		sh.Logger.Debug().Msg("Received heartbeat request")

		err := sh.SendEvent(ctx, discord.GatewayOpHeartbeat, sh.Sequence.Load())
		if err != nil {
			sh.Logger.Error().Err(err).Msg("Failed to send requested heartbeat")

			sh.CloseTransport(WebsocketReconnectCloseCode)
		}
	case discord.GatewayOpReconnect:
		sh.Logger.Info().Msg("Reconnecting in response to gateway")

		// The session survives, the next connection resumes it.
		sh.CloseTransport(WebsocketReconnectCloseCode)
	case discord.GatewayOpInvalidSession:
		resumable := false

		err := sh.decodeContent(msg, &resumable)
		if err != nil {
			sh.Logger.Warn().Err(err).Msg("Failed to decode invalid session, assuming not resumable")
		}

		sh.Logger.Warn().Bool("resumable", resumable).Msg("Received invalid session from gateway")

		if !resumable {
			sh.clearSession()
		}

		sh.CloseTransport(WebsocketReconnectCloseCode)
	case discord.GatewayOpHeartbeatACK:
		now := sh.clock.Now()

		sh.LastHeartbeatAck.Store(now)

		latency := now.Sub(sh.LastHeartbeatSent.Load())
		sh.GatewayLatency.Store(latency)
		gatewayLatency.Set(latency.Seconds())

		sh.Logger.Debug().Dur("latency", latency).Msg("Received heartbeat ACK")
	default:
		sh.Logger.Warn().Int("op", int(msg.Op)).Msg("Received unknown operation")
	}
}

// OnDispatch handles a dispatch event from the gateway.
func (sh *Shard) OnDispatch(ctx context.Context, msg discord.GatewayPayload) {
	sh.Bramble.Stats.EventsReceived.Inc()
	gatewayEventCount.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case discord.DispatchReady:
		var ready discord.Ready

		err := sh.decodeContent(msg, &ready)
		if err != nil {
			return
		}

		sh.SessionID.Store(ready.SessionID)
		sh.ResumeGatewayURL.Store(ready.ResumeGatewayURL)
		sh.Bramble.User.Store(&ready.User)

		sh.Logger.Info().
			Str("session_id", ready.SessionID).
			Str("user_id", string(ready.User.ID)).
			Msg("Received READY payload")

		sh.SetStatus(ShardStatusConnected)
	case discord.DispatchResumed:
		sh.Logger.Info().Msg("Received RESUMED payload")

		sh.SetStatus(ShardStatusConnected)
	}

	sh.Bramble.Dispatcher.Dispatch(ctx, sh, msg)
}
