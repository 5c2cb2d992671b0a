package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	bramble "github.com/bramble-dev/bramble/internal"
)

// A small bot showing how commands are registered on top of the builtin
// ones. Requires a TOKEN environment variable.

func main() {
	b, err := bramble.NewBramble(os.Stdout, bramble.Options{
		Token: os.Getenv("TOKEN"),
	})
	if err != nil {
		println("Failed to create client:", err.Error())
		os.Exit(1)
	}

	err = b.RegisterCommand(&bramble.Command{
		Name:        "roll",
		Description: "Rolls a die.",
		Aliases:     []string{"dice"},
		Cooldown:    3 * time.Second,
		Handler: func(ctx context.Context, invocation *bramble.InvocationContext) error {
			return invocation.Reply(ctx, fmt.Sprintf("You rolled a %d!", time.Now().UnixNano()%6+1))
		},
	})
	if err != nil {
		println("Failed to register command:", err.Error())
		os.Exit(1)
	}

	err = b.RegisterCommand(&bramble.Command{
		Name:        "say",
		Description: "Repeats whatever you said.",
		Handler: func(ctx context.Context, invocation *bramble.InvocationContext) error {
			if len(invocation.Args) == 0 {
				return errors.New("nothing to say")
			}

			return invocation.Reply(ctx, strings.Join(invocation.Args, " "))
		},
	})
	if err != nil {
		println("Failed to register command:", err.Error())
		os.Exit(1)
	}

	err = b.Open()
	if err != nil {
		b.Logger.Error().Err(err).Msg("Failed to open client")
		os.Exit(1)
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	_ = b.Close()
}
