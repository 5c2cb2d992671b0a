package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/WelcomerTeam/czlib"
	"nhooyr.io/websocket"
)

const (
	WebsocketReadLimit = 512 << 20

	// WebsocketNormalClosure tells the gateway the session is over for good.
	WebsocketNormalClosure = 1000

	// WebsocketReconnectCloseCode tells the gateway we will resume shortly.
	WebsocketReconnectCloseCode = 4000
)

// CloseError is returned by ReadFrame when the peer closed the
// connection with a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e CloseError) Error() string {
	return fmt.Sprintf("connection closed: %d %s", e.Code, e.Reason)
}

// Transport is a single framed connection to the gateway. Implementations
// decompress inbound frames before returning them.
type Transport interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, data []byte) error
	Close(code int) error
}

// Dialer opens a Transport against a gateway url.
type Dialer func(ctx context.Context, url string) (Transport, error)

type websocketTransport struct {
	conn *websocket.Conn
}

// DialWebsocket opens a websocket Transport. Binary frames are assumed
// zlib compressed and are decompressed transparently.
func DialWebsocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway: %w", err)
	}

	conn.SetReadLimit(WebsocketReadLimit)

	return &websocketTransport{conn: conn}, nil
}

func (t *websocketTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	messageType, data, err := t.conn.Read(ctx)
	if err != nil {
		var closeError websocket.CloseError
		if errors.As(err, &closeError) {
			return nil, CloseError{
				Code:   int(closeError.Code),
				Reason: closeError.Reason,
			}
		}

		return nil, err
	}

	if messageType == websocket.MessageBinary {
		data, err = czlib.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress frame: %w", err)
		}
	}

	return data, nil
}

func (t *websocketTransport) WriteFrame(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *websocketTransport) Close(code int) error {
	return t.conn.Close(websocket.StatusCode(code), "")
}
