package internal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bramble-dev/bramble/discord"
	"github.com/bramble-dev/bramble/pkg/clock"
	"github.com/bramble-dev/bramble/pkg/syncmap"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher routes message creation events to command handlers.
type Dispatcher struct {
	Logger zerolog.Logger

	Bramble *Bramble

	prefix         string
	ignoreSelf     bool
	cooldownNotice bool

	autodelete      bool
	autodeleteDelay time.Duration

	cooldowns *syncmap.Map[string, *cooldownEntry]

	clock clock.Clock

	wg sync.WaitGroup
}

type cooldownEntry struct {
	mu   sync.Mutex
	last time.Time
}

// NewDispatcher creates a dispatcher from the client configuration.
func NewDispatcher(b *Bramble) *Dispatcher {
	return &Dispatcher{
		Logger: b.Logger,

		Bramble: b,

		prefix:         b.Configuration.Bot.Prefix,
		ignoreSelf:     b.Configuration.Bot.IgnoreSelf,
		cooldownNotice: b.Configuration.Bot.CooldownNotice,

		autodelete:      b.Configuration.Bot.Autodelete,
		autodeleteDelay: b.Configuration.Bot.AutodeleteDelay,

		cooldowns: &syncmap.Map[string, *cooldownEntry]{},

		clock: b.clock,
	}
}

// Dispatch inspects a dispatch event and invokes a command handler when
// it is a prefixed command message. Everything else is ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, sh *Shard, msg discord.GatewayPayload) {
	if msg.Type != discord.DispatchMessageCreate {
		return
	}

	d.Bramble.Stats.MessagesProcessed.Inc()

	var message discord.Message

	err := json.Unmarshal(msg.Data, &message)
	if err != nil {
		d.Logger.Error().Err(err).Msg("Failed to unmarshal message event")

		return
	}

	if d.ignoreSelf {
		if user := d.Bramble.User.Load(); user != nil && message.Author.ID == user.ID {
			return
		}
	}

	if !strings.HasPrefix(message.Content, d.prefix) {
		return
	}

	tokens := strings.Fields(strings.TrimPrefix(message.Content, d.prefix))
	if len(tokens) == 0 {
		return
	}

	command, ok := d.Bramble.Registry.Resolve(tokens[0])
	if !ok {
		return
	}

	invocation := &InvocationContext{
		ID: uuid.NewString(),

		Bramble: d.Bramble,
		Shard:   sh,

		Message: message,
		Payload: msg.Data,

		Args: tokens[1:],
	}

	if !d.admitCooldown(command, message.Author.ID) {
		d.Logger.Debug().
			Str("command", command.Name).
			Str("author_id", string(message.Author.ID)).
			Msg("Dropped invocation due to cooldown")

		if d.cooldownNotice {
			d.wg.Add(1)

			go func() {
				defer d.wg.Done()

				err := invocation.Reply(ctx, "You are using this command too fast. Try again shortly.")
				if err != nil {
					d.Logger.Warn().Err(err).Msg("Failed to send cooldown notice")
				}
			}()
		}

		return
	}

	d.wg.Add(1)

	go d.invoke(ctx, command, invocation)

	if d.autodelete {
		channelID := message.ChannelID
		messageID := message.ID

		d.clock.AfterFunc(d.autodeleteDelay, func() {
			err := d.Bramble.Client.DeleteMessage(d.Bramble.ctx, channelID, messageID)
			if err != nil {
				d.Logger.Warn().Err(err).Msg("Failed to autodelete command message")
			}
		})
	}
}

// invoke runs a handler on its own goroutine. Panics are absorbed so a
// misbehaving handler cannot take the connection down.
func (d *Dispatcher) invoke(ctx context.Context, command *Command, invocation *InvocationContext) {
	defer d.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error().
				Interface("recovered", r).
				Str("command", command.Name).
				Str("invocation_id", invocation.ID).
				Msg("Recovered panic in command handler")

			commandErrorCount.WithLabelValues(command.Name).Inc()
		}
	}()

	d.Bramble.Stats.CommandsExecuted.Inc()
	commandInvocationCount.WithLabelValues(command.Name).Inc()

	d.Logger.Debug().
		Str("command", command.Name).
		Str("invocation_id", invocation.ID).
		Str("author_id", string(invocation.AuthorID())).
		Msg("Invoking command")

	err := command.Handler(ctx, invocation)
	if err != nil {
		d.Logger.Error().
			Err(err).
			Str("command", command.Name).
			Str("invocation_id", invocation.ID).
			Str("author_id", string(invocation.AuthorID())).
			Msg("Command handler returned error")

		commandErrorCount.WithLabelValues(command.Name).Inc()
	}
}

// admitCooldown checks and arms the per-user cooldown for a command.
func (d *Dispatcher) admitCooldown(command *Command, authorID discord.Snowflake) bool {
	if command.Cooldown <= 0 {
		return true
	}

	entry, _ := d.cooldowns.LoadOrStore(command.Name+":"+string(authorID), &cooldownEntry{})

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := d.clock.Now()

	if !entry.last.IsZero() && now.Sub(entry.last) < command.Cooldown {
		return false
	}

	entry.last = now

	return true
}

// Drain waits for in-flight handler invocations to finish, up to timeout.
// It reports whether everything finished in time.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	done := make(chan void)

	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
