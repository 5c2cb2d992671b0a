package internal

import (
	"context"
	stdjson "encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/bramble-dev/bramble/discord"
	"github.com/rs/zerolog"
)

// CommandHandler runs a command invocation. A returned error is logged,
// it never tears down the connection.
type CommandHandler func(ctx context.Context, invocation *InvocationContext) error

// Command represents a named command and its aliases.
type Command struct {
	Name        string
	Description string
	Aliases     []string

	// Cooldown is the minimum gap between invocations of this command by
	// the same user. Zero disables the cooldown.
	Cooldown time.Duration

	Handler CommandHandler
}

// Registry holds the registered commands, keyed by name and alias.
type Registry struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry creates an empty command registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger,

		commands: make(map[string]*Command),
	}
}

// Register adds a command under its name and every alias. If any of them
// collides with an existing entry, nothing is registered at all.
func (registry *Registry) Register(command *Command) error {
	if command.Name == "" {
		return ErrCommandMissingName
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	keys := append([]string{command.Name}, command.Aliases...)

	for _, key := range keys {
		if _, ok := registry.commands[key]; ok {
			return ErrCommandAlreadyRegistered
		}
	}

	for _, key := range keys {
		registry.commands[key] = command
	}

	registry.logger.Debug().Str("command", command.Name).Msg("Registered command")

	return nil
}

// Resolve looks up a command by name or alias. Matching is case
// sensitive.
func (registry *Registry) Resolve(name string) (*Command, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	command, ok := registry.commands[name]

	return command, ok
}

// Commands returns every registered command once, sorted by name.
func (registry *Registry) Commands() []*Command {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	seen := make(map[string]bool)
	commands := make([]*Command, 0, len(registry.commands))

	for _, command := range registry.commands {
		if seen[command.Name] {
			continue
		}

		seen[command.Name] = true
		commands = append(commands, command)
	}

	sort.Slice(commands, func(i, j int) bool {
		return commands[i].Name < commands[j].Name
	})

	return commands
}

// InvocationContext carries everything a command handler needs for a
// single invocation.
type InvocationContext struct {
	// ID uniquely identifies this invocation in logs.
	ID string

	Bramble *Bramble
	Shard   *Shard

	Message discord.Message

	// Payload is the raw dispatch data the message was decoded from.
	Payload stdjson.RawMessage

	// Args are the whitespace separated tokens after the command name.
	Args []string
}

// AuthorID returns the id of the invoking user.
func (invocation *InvocationContext) AuthorID() discord.Snowflake {
	return invocation.Message.Author.ID
}

// ChannelID returns the channel the invocation happened in.
func (invocation *InvocationContext) ChannelID() discord.Snowflake {
	return invocation.Message.ChannelID
}

// GuildID returns the guild of the invocation, or empty for direct
// messages.
func (invocation *InvocationContext) GuildID() discord.Snowflake {
	if invocation.Message.GuildID == nil {
		return ""
	}

	return *invocation.Message.GuildID
}

// Reply sends content to the invoking channel, chunked if it exceeds the
// message length limit.
func (invocation *InvocationContext) Reply(ctx context.Context, content string) error {
	return invocation.Bramble.Client.SendMessage(ctx, invocation.ChannelID(), content)
}
