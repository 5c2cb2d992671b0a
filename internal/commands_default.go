package internal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// registerDefaultCommands adds the builtin commands. Collisions cannot
// happen, this runs before user registrations.
func (b *Bramble) registerDefaultCommands() {
	_ = b.Registry.Register(&Command{
		Name:        "ping",
		Description: "Replies with the current gateway latency.",
		Cooldown:    5 * time.Second,
		Handler: func(ctx context.Context, invocation *InvocationContext) error {
			latency := invocation.Shard.GatewayLatency.Load()

			return invocation.Reply(ctx, fmt.Sprintf("Pong! Gateway latency is %dms.", latency.Milliseconds()))
		},
	})

	_ = b.Registry.Register(&Command{
		Name:        "help",
		Description: "Lists the registered commands.",
		Aliases:     []string{"commands"},
		Handler: func(ctx context.Context, invocation *InvocationContext) error {
			var builder strings.Builder

			builder.WriteString("Available commands:\n")

			for _, command := range invocation.Bramble.Registry.Commands() {
				builder.WriteString(invocation.Bramble.Configuration.Bot.Prefix)
				builder.WriteString(command.Name)

				if len(command.Aliases) > 0 {
					builder.WriteString(" (")
					builder.WriteString(strings.Join(command.Aliases, ", "))
					builder.WriteString(")")
				}

				if command.Description != "" {
					builder.WriteString(" - ")
					builder.WriteString(command.Description)
				}

				builder.WriteString("\n")
			}

			return invocation.Reply(ctx, builder.String())
		},
	})

	_ = b.Registry.Register(&Command{
		Name:        "stats",
		Description: "Shows runtime statistics.",
		Handler: func(ctx context.Context, invocation *InvocationContext) error {
			stats := invocation.Bramble.Stats

			return invocation.Reply(ctx, fmt.Sprintf(
				"Uptime: %s\nMessages processed: %d\nCommands executed: %d\nEvents received: %d\nReconnections: %d",
				formatDuration(time.Now().UTC().Sub(invocation.Bramble.StartTime)),
				stats.MessagesProcessed.Load(),
				stats.CommandsExecuted.Load(),
				stats.EventsReceived.Load(),
				stats.Reconnections.Load(),
			))
		},
	})

	_ = b.Registry.Register(&Command{
		Name:        "uptime",
		Description: "Shows how long the bot has been running.",
		Handler: func(ctx context.Context, invocation *InvocationContext) error {
			return invocation.Reply(ctx, "Up for "+formatDuration(time.Now().UTC().Sub(invocation.Bramble.StartTime)))
		},
	})
}
