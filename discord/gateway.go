package discord

import "encoding/json"

// gateway.go contains the frames exchanged with the gateway and the
// payloads we send over it.

// GatewayOp represents the operation codes of a gateway message.
type GatewayOp uint8

const (
	GatewayOpDispatch GatewayOp = iota
	GatewayOpHeartbeat
	GatewayOpIdentify
	GatewayOpStatusUpdate
	GatewayOpVoiceStateUpdate
	_
	GatewayOpResume
	GatewayOpReconnect
	GatewayOpRequestGuildMembers
	GatewayOpInvalidSession
	GatewayOpHello
	GatewayOpHeartbeatACK
)

// Gateway close codes.
const (
	CloseUnknownError = 4000 + iota
	CloseUnknownOpCode
	CloseDecodeError
	CloseNotAuthenticated
	CloseAuthenticationFailed
	CloseAlreadyAuthenticated
	_
	CloseInvalidSeq
	CloseRateLimited
	CloseSessionTimeout
	CloseInvalidShard
	CloseShardingRequired
	CloseInvalidAPIVersion
	CloseInvalidIntents
	CloseDisallowedIntents
)

// Dispatch event types the client handles itself. Everything else is
// passed through to registered handlers opaquely.
const (
	DispatchReady         = "READY"
	DispatchResumed       = "RESUMED"
	DispatchMessageCreate = "MESSAGE_CREATE"
)

// GatewayPayload represents the base frame received from the gateway.
type GatewayPayload struct {
	Op       GatewayOp       `json:"op"`
	Data     json.RawMessage `json:"d"`
	Sequence *int64          `json:"s"`
	Type     string          `json:"t,omitempty"`
}

// SentPayload represents the base frame we send to the gateway.
type SentPayload struct {
	Op   GatewayOp   `json:"op"`
	Data interface{} `json:"d"`
}

// Hello carries the negotiated heartbeat interval, in milliseconds.
type Hello struct {
	HeartbeatInterval int32 `json:"heartbeat_interval"`
}

// Identify represents the initial handshake with the gateway.
type Identify struct {
	Token          string              `json:"token"`
	Properties     *IdentifyProperties `json:"properties"`
	Compress       bool                `json:"compress"`
	LargeThreshold int32               `json:"large_threshold,omitempty"`
	Intents        int64               `json:"intents"`
}

// IdentifyProperties are the extra properties sent in the identify frame.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Resume resumes a dropped gateway session from a known sequence.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// Ready is dispatched after a successful identify.
type Ready struct {
	Version          int32  `json:"v"`
	User             User   `json:"user"`
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}
