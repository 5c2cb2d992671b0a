package internal

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()

	command := &Command{Name: "ping", Aliases: []string{"p"}}

	require.NoError(t, registry.Register(command))

	resolved, ok := registry.Resolve("ping")
	require.True(t, ok)
	assert.Same(t, command, resolved)

	resolved, ok = registry.Resolve("p")
	require.True(t, ok)
	assert.Same(t, command, resolved)
}

func TestRegistryResolveIsCaseSensitive(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()

	require.NoError(t, registry.Register(&Command{Name: "ping"}))

	_, ok := registry.Resolve("Ping")
	assert.False(t, ok)

	_, ok = registry.Resolve("PING")
	assert.False(t, ok)
}

func TestRegistryRegisterMissingName(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()

	assert.ErrorIs(t, registry.Register(&Command{}), ErrCommandMissingName)
}

func TestRegistryRegisterDuplicateName(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()

	require.NoError(t, registry.Register(&Command{Name: "ping"}))

	err := registry.Register(&Command{Name: "ping"})
	assert.ErrorIs(t, err, ErrCommandAlreadyRegistered)
}

func TestRegistryRegisterCollidingAliasLeavesRegistryUntouched(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()

	require.NoError(t, registry.Register(&Command{Name: "ping"}))

	// The name is free but an alias collides, so neither may register.
	err := registry.Register(&Command{Name: "latency", Aliases: []string{"ping"}})
	require.ErrorIs(t, err, ErrCommandAlreadyRegistered)

	_, ok := registry.Resolve("latency")
	assert.False(t, ok)

	resolved, ok := registry.Resolve("ping")
	require.True(t, ok)
	assert.Equal(t, "ping", resolved.Name)
}

func TestRegistryCommandsSortedAndUnique(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()

	require.NoError(t, registry.Register(&Command{Name: "uptime", Aliases: []string{"up", "alive"}}))
	require.NoError(t, registry.Register(&Command{Name: "ping"}))

	commands := registry.Commands()

	require.Len(t, commands, 2)
	assert.Equal(t, "ping", commands[0].Name)
	assert.Equal(t, "uptime", commands[1].Name)
}
