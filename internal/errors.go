package internal

import "errors"

var (
	// ErrAlreadyRunning is returned when Open is called on a client that
	// is already running.
	ErrAlreadyRunning = errors.New("client is already running")

	// ErrInvalidToken is returned when the service rejects the token.
	// It is fatal: no reconnect is attempted.
	ErrInvalidToken = errors.New("token passed is not valid")

	// ErrMissingToken is returned when no token was configured.
	ErrMissingToken = errors.New("configuration is missing a token")
)

var (
	ErrReadConfigurationFailure = errors.New("failed to read configuration")
	ErrLoadConfigurationFailure = errors.New("failed to load configuration")
)

var (
	// ErrCommandAlreadyRegistered is returned when a command name or
	// alias collides with an existing registry entry.
	ErrCommandAlreadyRegistered = errors.New("command or alias with this name already exists")

	// ErrCommandMissingName is returned when registering a command
	// without a name.
	ErrCommandMissingName = errors.New("command requires a name")
)

var (
	ErrShardNoTransport              = errors.New("no transport connection")
	ErrShardUnexpectedHello          = errors.New("expected hello as the first gateway frame")
	ErrShardInvalidHeartbeatInterval = errors.New("gateway sent a non-positive heartbeat interval")
)
