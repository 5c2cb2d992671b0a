package internal

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/bramble-dev/bramble/discord"
	"github.com/bramble-dev/bramble/pkg/bucketstore"
	"github.com/bramble-dev/bramble/pkg/clock"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// VERSION follows semantic versioning.
const VERSION = "0.4.0"

// DrainTimeout bounds how long Close waits for in-flight command
// handlers before giving up on them.
const DrainTimeout = 10 * time.Second

var baseURL = url.URL{
	Scheme: "https",
	Host:   "discord.com",
}

var gatewayURL = url.URL{
	Scheme: "wss",
	Host:   "gateway.discord.gg",
}

// Bramble is the client root object. It owns the command registry, the
// rate limiter, the REST client and the gateway shard, and mediates their
// lifecycles.
type Bramble struct {
	Logger zerolog.Logger

	ctx    context.Context
	cancel func()

	Configuration         Configuration
	ConfigurationLocation string

	Buckets    *bucketstore.BucketStore
	Registry   *Registry
	Client     *Client
	Shard      *Shard
	Dispatcher *Dispatcher

	// User is the authenticated identity, fetched during Open and updated
	// from READY. The dispatcher consults it for ignore-self.
	User *atomic.Pointer[discord.User]

	// gatewayEndpoint is the url the next fresh connection dials.
	gatewayEndpoint *atomic.String

	StartTime time.Time

	running *atomic.Bool

	Stats *Stats

	clock clock.Clock
}

// Stats tracks lifetime counters exposed by the status endpoint.
type Stats struct {
	EventsReceived    *atomic.Int64
	MessagesProcessed *atomic.Int64
	CommandsExecuted  *atomic.Int64
	Reconnections     *atomic.Int64
}

// Options represents any options passable when creating the client.
type Options struct {
	ConfigurationLocation string

	// Configuration bypasses the configuration file entirely when set.
	Configuration *Configuration

	// Token overrides the configuration file token when non-empty.
	Token string

	LogLevel zerolog.Level

	// Clock defaults to wall time. Tests inject a mock.
	Clock clock.Clock

	// Dialer defaults to the websocket transport. Tests inject fakes.
	Dialer Dialer
}

// NewBramble creates the client and initializes every component. It does
// not open any connection.
func NewBramble(logger io.Writer, options Options) (*Bramble, error) {
	var configuration Configuration

	var err error

	switch {
	case options.Configuration != nil:
		configuration = *options.Configuration
		configuration.applyDefaults()
	case options.ConfigurationLocation != "":
		configuration, err = LoadConfiguration(options.ConfigurationLocation)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration %q: %w", options.ConfigurationLocation, err)
		}
	default:
		configuration = DefaultConfiguration()
	}

	if options.Token != "" {
		configuration.Token = options.Token
	}

	if configuration.Token == "" {
		return nil, ErrMissingToken
	}

	b := &Bramble{
		Logger: zerolog.New(logger).With().Timestamp().Logger().Level(options.LogLevel),

		Configuration:         configuration,
		ConfigurationLocation: options.ConfigurationLocation,

		User: atomic.NewPointer[discord.User](nil),

		gatewayEndpoint: atomic.NewString(gatewayURL.String()),

		running: atomic.NewBool(false),

		Stats: &Stats{
			EventsReceived:    atomic.NewInt64(0),
			MessagesProcessed: atomic.NewInt64(0),
			CommandsExecuted:  atomic.NewInt64(0),
			Reconnections:     atomic.NewInt64(0),
		},

		clock: options.Clock,
	}

	if b.clock == nil {
		b.clock = clock.New()
	}

	b.ctx, b.cancel = context.WithCancel(context.Background())

	b.Buckets = bucketstore.NewBucketStore(
		configuration.RateLimits.DefaultCapacity,
		configuration.RateLimits.DefaultWindow,
		b.clock,
	)
	b.Buckets.SetGlobal(configuration.RateLimits.GlobalCapacity, configuration.RateLimits.GlobalWindow)

	b.Registry = NewRegistry(b.Logger)
	b.Client = NewClient(configuration.Token, b.Buckets, b.Logger)
	b.Dispatcher = NewDispatcher(b)

	dialer := options.Dialer
	if dialer == nil {
		dialer = DialWebsocket
	}

	b.Shard = NewShard(b, dialer)

	if configuration.Bot.DefaultCommands {
		b.registerDefaultCommands()
	}

	return b, nil
}

// RegisterCommand adds a command to the registry. It may be called at any
// point in the process lifetime, including after the connection is up.
func (b *Bramble) RegisterCommand(command *Command) error {
	return b.Registry.Register(command)
}

// Open authenticates against the REST API and starts the gateway shard.
// An invalid token fails here, before any gateway dial, and is not
// retried. Calling Open while already running fails with ErrAlreadyRunning.
func (b *Bramble) Open() error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	b.StartTime = time.Now().UTC()
	b.Logger.Info().Msgf("Starting bramble. Version %s", VERSION)

	user, err := b.Client.FetchCurrentUser(b.ctx)
	if err != nil {
		b.running.Store(false)

		return fmt.Errorf("failed to fetch current user: %w", err)
	}

	b.User.Store(user)
	b.Logger.Info().
		Str("username", user.Username).
		Str("user_id", string(user.ID)).
		Msg("Authenticated")

	endpoint, err := b.Client.FetchGatewayURL(b.ctx)
	if err != nil {
		b.Logger.Warn().Err(err).Msg("Failed to fetch gateway url, using default")
	} else {
		b.gatewayEndpoint.Store(endpoint)
	}

	if b.Configuration.HTTP.PrometheusAddress != "" {
		go b.setupPrometheus()
	}

	if b.Configuration.HTTP.Enabled {
		go b.setupHTTP()
	}

	go b.Shard.Open()

	return nil
}

// Close stops the shard, drains in-flight handler invocations up to
// DrainTimeout and releases the client context.
func (b *Bramble) Close() error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}

	b.Logger.Info().Msg("Closing bramble")

	b.Shard.Stop(WebsocketNormalClosure)

	if !b.Dispatcher.Drain(DrainTimeout) {
		b.Logger.Warn().Msg("Timed out draining command handlers")
	}

	b.cancel()

	return nil
}

// Running reports whether Open has succeeded and Close has not been
// called yet.
func (b *Bramble) Running() bool {
	return b.running.Load()
}
