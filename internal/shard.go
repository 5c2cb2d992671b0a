package internal

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bramble-dev/bramble/discord"
	"github.com/bramble-dev/bramble/pkg/clock"
	"github.com/rs/zerolog"
	gotils_strconv "github.com/savsgio/gotils/strconv"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

const (
	GatewayVersion        = "10"
	GatewayLargeThreshold = 250

	// We use 110 both to allow heartbeating to not be limited and to allow
	// bursts of 10 messages to be sent.
	ShardWSRateLimit      = 110
	ShardWSRateLimitBurst = 10

	ShardBackoffMin = time.Second
	ShardBackoffMax = 60 * time.Second

	// Time a connection must survive before the backoff resets.
	ShardStableDuration = 30 * time.Second
)

type void struct{}

// ShardStatus represents the connection lifecycle state.
type ShardStatus int32

const (
	ShardStatusIdle ShardStatus = iota
	ShardStatusConnecting
	ShardStatusIdentifying
	ShardStatusResuming
	ShardStatusConnected
	ShardStatusReconnecting
	ShardStatusClosing
	ShardStatusClosed
	ShardStatusFailed
)

func (status ShardStatus) String() string {
	switch status {
	case ShardStatusIdle:
		return "Idle"
	case ShardStatusConnecting:
		return "Connecting"
	case ShardStatusIdentifying:
		return "Identifying"
	case ShardStatusResuming:
		return "Resuming"
	case ShardStatusConnected:
		return "Connected"
	case ShardStatusReconnecting:
		return "Reconnecting"
	case ShardStatusClosing:
		return "Closing"
	case ShardStatusClosed:
		return "Closed"
	case ShardStatusFailed:
		return "Failed"
	}

	return "Unknown"
}

// Shard represents the single gateway connection and its state machine.
type Shard struct {
	ctx    context.Context
	cancel func()

	Logger zerolog.Logger

	Bramble *Bramble

	Start             *atomic.Time
	ConnectedAt       *atomic.Time
	LastHeartbeatAck  *atomic.Time
	LastHeartbeatSent *atomic.Time

	GatewayLatency *atomic.Duration

	// Sequence is only written by the read loop and by session resets.
	Sequence         *atomic.Int64
	SessionID        *atomic.String
	ResumeGatewayURL *atomic.String

	status *atomic.Int32

	// HeartbeatInterval and the failure interval are set per connection
	// from HELLO, before the heartbeater starts.
	HeartbeatInterval time.Duration

	// Duration since the last heartbeat ack before the connection is
	// considered zombied. A single unacknowledged interval is enough.
	HeartbeatFailureInterval time.Duration

	heartbeatMu    sync.Mutex
	heartbeatTimer clock.Timer

	dial Dialer

	transportMu sync.RWMutex
	transport   Transport

	wsRatelimit *rate.Limiter

	zombied *atomic.Bool

	stop     chan void
	stopOnce sync.Once

	backoffMin      time.Duration
	backoffMax      time.Duration
	stableThreshold time.Duration

	clock clock.Clock
}

// NewShard creates a new shard object.
func NewShard(b *Bramble, dial Dialer) *Shard {
	sh := &Shard{
		Logger: b.Logger,

		Bramble: b,

		Start:             &atomic.Time{},
		ConnectedAt:       &atomic.Time{},
		LastHeartbeatAck:  &atomic.Time{},
		LastHeartbeatSent: &atomic.Time{},

		GatewayLatency: &atomic.Duration{},

		Sequence:         &atomic.Int64{},
		SessionID:        &atomic.String{},
		ResumeGatewayURL: &atomic.String{},

		status: atomic.NewInt32(int32(ShardStatusIdle)),

		dial: dial,

		wsRatelimit: rate.NewLimiter(rate.Limit(float64(ShardWSRateLimit)/120), ShardWSRateLimitBurst),

		zombied: atomic.NewBool(false),

		stop: make(chan void),

		backoffMin:      ShardBackoffMin,
		backoffMax:      ShardBackoffMax,
		stableThreshold: ShardStableDuration,

		clock: b.clock,
	}

	sh.ctx, sh.cancel = context.WithCancel(b.ctx)

	return sh
}

// Open runs the connection supervisor until the shard is stopped or hits
// a fatal closure. Recoverable failures reconnect with jittered
// exponential backoff; a connection that survives long enough resets the
// backoff.
func (sh *Shard) Open() {
	sh.Logger.Debug().Msg("Started shard supervisor")

	wait := sh.backoffMin

	for {
		err := sh.run()

		if sh.stopped() || errors.Is(err, context.Canceled) {
			sh.SetStatus(ShardStatusClosed)
			sh.Logger.Debug().Msg("Shard supervisor finished")

			return
		}

		var closeError CloseError

		resumable := true

		if errors.As(err, &closeError) {
			if !isCloseCodeRecoverable(closeError.Code) {
				sh.Logger.Error().
					Int("code", closeError.Code).
					Str("reason", closeError.Reason).
					Msg("Shard received fatal closure code")

				sh.SetStatus(ShardStatusFailed)

				return
			}

			resumable = isCloseCodeResumable(closeError.Code)
		}

		if sh.zombied.Load() {
			resumable = true
		}

		sh.Bramble.Stats.Reconnections.Inc()
		reconnectCount.Inc()

		if resumable && sh.SessionID.Load() != "" {
			sh.SetStatus(ShardStatusResuming)
		} else {
			sh.clearSession()
			sh.SetStatus(ShardStatusReconnecting)
		}

		if sh.connectionWasStable() {
			wait = sh.backoffMin
		}

		sh.Logger.Warn().
			Err(err).
			Dur("retry", wait).
			Bool("resumable", resumable).
			Msg("Gateway connection lost. Reconnecting")

		select {
		case <-time.After(jitterDuration(wait)):
		case <-sh.stop:
			sh.SetStatus(ShardStatusClosed)

			return
		case <-sh.ctx.Done():
			sh.SetStatus(ShardStatusClosed)

			return
		}

		wait *= 2
		if wait > sh.backoffMax {
			wait = sh.backoffMax
		}
	}
}

// run owns a single connection from dial to disconnect.
func (sh *Shard) run() error {
	sh.ConnectedAt.Store(time.Time{})

	ctx, cancel := context.WithCancel(sh.ctx)
	defer cancel()

	defer sh.stopHeartbeat()
	defer sh.CloseTransport(WebsocketReconnectCloseCode)

	err := sh.Connect(ctx)
	if err != nil {
		return err
	}

	return sh.Listen(ctx)
}

// Connect dials the gateway, waits for HELLO, starts the heartbeater and
// sends either an identify or a resume.
func (sh *Shard) Connect(ctx context.Context) error {
	sh.Logger.Debug().Msg("Connecting shard")

	// Do not override the Resuming or Reconnecting status set by the
	// supervisor.
	status := sh.GetStatus()
	if status != ShardStatusResuming && status != ShardStatusReconnecting {
		sh.SetStatus(ShardStatusConnecting)
	}

	resuming := sh.SessionID.Load() != "" && sh.Sequence.Load() != 0

	endpoint := sh.Bramble.gatewayEndpoint.Load()

	if resuming {
		if resumeURL := sh.ResumeGatewayURL.Load(); resumeURL != "" {
			endpoint = resumeURL
		}
	}

	connectionURL := strings.TrimSuffix(endpoint, "/") + "/?v=" + GatewayVersion + "&encoding=json"

	transport, err := sh.dial(ctx, connectionURL)
	if err != nil {
		sh.Logger.Error().Err(err).Str("url", connectionURL).Msg("Failed to dial gateway")

		return err
	}

	sh.transportMu.Lock()
	sh.transport = transport
	sh.transportMu.Unlock()

	msg, err := sh.readMessage(ctx)
	if err != nil {
		sh.Logger.Error().Err(err).Msg("Failed to read hello")

		return err
	}

	if msg.Op != discord.GatewayOpHello {
		return ErrShardUnexpectedHello
	}

	var hello discord.Hello

	err = sh.decodeContent(msg, &hello)
	if err != nil {
		return err
	}

	if hello.HeartbeatInterval <= 0 {
		return ErrShardInvalidHeartbeatInterval
	}

	now := sh.clock.Now()

	sh.Start.Store(now)
	sh.LastHeartbeatAck.Store(now)
	sh.LastHeartbeatSent.Store(now)

	sh.HeartbeatInterval = time.Duration(hello.HeartbeatInterval) * time.Millisecond
	sh.HeartbeatFailureInterval = sh.HeartbeatInterval

	sh.zombied.Store(false)

	sh.Logger.Debug().
		Dur("interval", sh.HeartbeatInterval).
		Int64("sequence", sh.Sequence.Load()).
		Msg("Received HELLO event")

	// First heartbeat fires at a random point within the first interval.
	sh.scheduleHeartbeat(ctx, time.Duration(rand.Int63n(int64(sh.HeartbeatInterval))))

	sh.SetStatus(ShardStatusIdentifying)

	if resuming {
		return sh.Resume(ctx)
	}

	sh.clearSession()

	return sh.Identify(ctx)
}

// Listen reads gateway frames and feeds them to the event handler until
// the connection dies.
func (sh *Shard) Listen(ctx context.Context) error {
	for {
		msg, err := sh.readMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}

			sh.Logger.Error().Err(err).Msg("Error reading from gateway")

			return err
		}

		sh.OnEvent(ctx, msg)
	}
}

func (sh *Shard) readMessage(ctx context.Context) (msg discord.GatewayPayload, err error) {
	transport := sh.getTransport()
	if transport == nil {
		return msg, ErrShardNoTransport
	}

	data, err := transport.ReadFrame(ctx)
	if err != nil {
		return msg, err
	}

	sh.Logger.Trace().Msg(">>> " + gotils_strconv.B2S(data))

	err = json.Unmarshal(data, &msg)
	if err != nil {
		return msg, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return msg, nil
}

// scheduleHeartbeat arms the next heartbeat. The beats reschedule
// themselves until the connection context ends or the shard zombies.
func (sh *Shard) scheduleHeartbeat(ctx context.Context, wait time.Duration) {
	sh.heartbeatMu.Lock()
	defer sh.heartbeatMu.Unlock()

	if sh.heartbeatTimer != nil {
		sh.heartbeatTimer.Stop()
	}

	sh.heartbeatTimer = sh.clock.AfterFunc(wait, func() {
		sh.beat(ctx)
	})
}

func (sh *Shard) stopHeartbeat() {
	sh.heartbeatMu.Lock()
	defer sh.heartbeatMu.Unlock()

	if sh.heartbeatTimer != nil {
		sh.heartbeatTimer.Stop()
		sh.heartbeatTimer = nil
	}
}

// beat sends a single heartbeat and checks the previous one was
// acknowledged in time. An unacknowledged interval marks the connection
// zombied and forces a reconnect that keeps the session.
func (sh *Shard) beat(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	now := sh.clock.Now()

	if now.Sub(sh.LastHeartbeatAck.Load()) > sh.HeartbeatFailureInterval {
		sh.Logger.Warn().Msg("Failed to ack and passed heartbeat failure interval")

		sh.zombied.Store(true)
		sh.CloseTransport(WebsocketReconnectCloseCode)

		return
	}

	err := sh.SendEvent(ctx, discord.GatewayOpHeartbeat, sh.Sequence.Load())
	if err != nil {
		sh.Logger.Error().Err(err).Msg("Failed to heartbeat. Reconnecting")

		sh.CloseTransport(WebsocketReconnectCloseCode)

		return
	}

	sh.LastHeartbeatSent.Store(now)

	sh.scheduleHeartbeat(ctx, sh.HeartbeatInterval)
}

// Identify sends the identify packet to the gateway.
func (sh *Shard) Identify(ctx context.Context) error {
	sh.Logger.Debug().Msg("Sending identify")

	return sh.SendEvent(ctx, discord.GatewayOpIdentify, discord.Identify{
		Token: sh.Bramble.Configuration.Token,
		Properties: &discord.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: "bramble " + VERSION,
			Device:  "bramble " + VERSION,
		},
		Compress:       true,
		LargeThreshold: GatewayLargeThreshold,
		Intents:        sh.Bramble.Configuration.Bot.Intents,
	})
}

// Resume sends the resume packet to the gateway.
func (sh *Shard) Resume(ctx context.Context) error {
	sh.Logger.Debug().
		Str("session_id", sh.SessionID.Load()).
		Int64("sequence", sh.Sequence.Load()).
		Msg("Sending resume")

	return sh.SendEvent(ctx, discord.GatewayOpResume, discord.Resume{
		Token:     sh.Bramble.Configuration.Token,
		SessionID: sh.SessionID.Load(),
		Sequence:  sh.Sequence.Load(),
	})
}

// SendEvent sends an event to the gateway.
func (sh *Shard) SendEvent(ctx context.Context, op discord.GatewayOp, data interface{}) error {
	res, err := json.Marshal(discord.SentPayload{
		Op:   op,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Heartbeats are never delayed behind other traffic.
	if op != discord.GatewayOpHeartbeat {
		err = sh.wsRatelimit.Wait(ctx)
		if err != nil {
			return err
		}
	}

	transport := sh.getTransport()
	if transport == nil {
		return ErrShardNoTransport
	}

	sh.Logger.Trace().Msg("<<< " + gotils_strconv.B2S(res))

	err = transport.WriteFrame(ctx, res)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// decodeContent converts the msg data into the passed interface.
func (sh *Shard) decodeContent(msg discord.GatewayPayload, out interface{}) error {
	err := json.Unmarshal(msg.Data, out)
	if err != nil {
		sh.Logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to decode event")

		return err
	}

	return nil
}

// Stop shuts the shard down for good. The supervisor does not redial.
func (sh *Shard) Stop(code int) {
	sh.stopOnce.Do(func() {
		sh.Logger.Info().Int("code", code).Msg("Stopping shard")

		sh.SetStatus(ShardStatusClosing)

		close(sh.stop)

		sh.stopHeartbeat()
		sh.CloseTransport(code)

		sh.cancel()
	})
}

func (sh *Shard) stopped() bool {
	select {
	case <-sh.stop:
		return true
	default:
		return false
	}
}

// CloseTransport closes the underlying connection. Errors are suppressed,
// the connection is gone either way.
func (sh *Shard) CloseTransport(code int) {
	sh.transportMu.Lock()
	transport := sh.transport
	sh.transport = nil
	sh.transportMu.Unlock()

	if transport == nil {
		return
	}

	sh.Logger.Debug().Int("code", code).Msg("Closing transport")

	err := transport.Close(code)
	if err != nil && !errors.Is(err, context.Canceled) {
		sh.Logger.Debug().Err(err).Msg("Encountered error closing transport")
	}
}

func (sh *Shard) getTransport() Transport {
	sh.transportMu.RLock()
	defer sh.transportMu.RUnlock()

	return sh.transport
}

// connectionWasStable reports whether the last session reached the
// connected state and held it past the stability threshold. A session
// stalled before connecting never counts, however long it lived.
func (sh *Shard) connectionWasStable() bool {
	connectedAt := sh.ConnectedAt.Load()
	if connectedAt.IsZero() {
		return false
	}

	return sh.clock.Now().Sub(connectedAt) >= sh.stableThreshold
}

// clearSession forgets the resume state so the next connection starts a
// fresh session.
func (sh *Shard) clearSession() {
	sh.SessionID.Store("")
	sh.Sequence.Store(0)
	sh.ResumeGatewayURL.Store("")
}

// GetStatus returns the status of the shard.
func (sh *Shard) GetStatus() ShardStatus {
	return ShardStatus(sh.status.Load())
}

// SetStatus sets the status of the shard.
func (sh *Shard) SetStatus(status ShardStatus) {
	if status == ShardStatusConnected {
		sh.ConnectedAt.Store(sh.clock.Now())
	}

	sh.status.Store(int32(status))

	shardStatusGauge.Set(float64(status))

	sh.Logger.Debug().Str("status", status.String()).Msg("Shard status changed")
}

// isCloseCodeRecoverable reports whether the connection may be retried at
// all after this closure code.
func isCloseCodeRecoverable(code int) bool {
	switch code {
	case discord.CloseNotAuthenticated,
		discord.CloseAuthenticationFailed,
		discord.CloseAlreadyAuthenticated,
		discord.CloseInvalidShard,
		discord.CloseShardingRequired,
		discord.CloseInvalidAPIVersion,
		discord.CloseInvalidIntents,
		discord.CloseDisallowedIntents:
		return false
	}

	return true
}

// isCloseCodeResumable reports whether the session survives this closure
// code. Non-resumable but recoverable codes reconnect with a fresh
// identify.
func isCloseCodeResumable(code int) bool {
	if !isCloseCodeRecoverable(code) {
		return false
	}

	switch code {
	case discord.CloseInvalidSeq, discord.CloseSessionTimeout:
		return false
	}

	return true
}

func jitterDuration(wait time.Duration) time.Duration {
	if wait <= 1 {
		return wait
	}

	return wait/2 + time.Duration(rand.Int63n(int64(wait/2)))
}
