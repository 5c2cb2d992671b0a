package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bramble-dev/bramble/discord"
	"github.com/bramble-dev/bramble/pkg/bucketstore"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client represents the REST client.
type Client struct {
	Logger zerolog.Logger

	Token string

	HTTP    *http.Client
	Buckets *bucketstore.BucketStore

	// We will manually add the API version.
	APIVersion string

	// Used to safely create URLs and is filled if empty.
	URLHost   string
	URLScheme string
	UserAgent string
}

// NewClient makes a new client.
func NewClient(token string, buckets *bucketstore.BucketStore, logger zerolog.Logger) *Client {
	return &Client{
		Logger: logger,

		Token: token,

		HTTP:    http.DefaultClient,
		Buckets: buckets,

		APIVersion: "10",

		URLHost:   baseURL.Host,
		URLScheme: baseURL.Scheme,
		UserAgent: "bramble/" + VERSION,
	}
}

// Execute makes a request against the REST API. Admission through the
// route bucket happens before the request leaves; the bucket is resized
// afterwards from the rate limit headers the service returned.
func (c *Client) Execute(ctx context.Context, method, path, bucket string, payload, out interface{}) error {
	if bucket != "" {
		err := c.Buckets.Admit(ctx, bucket)
		if err != nil {
			return err
		}
	}

	var body io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}

		body = bytes.NewReader(data)
	}

	url := replaceIfEmpty(c.URLScheme, baseURL.Scheme) + "://" +
		replaceIfEmpty(c.URLHost, baseURL.Host) + "/api/v" + c.APIVersion + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Authorization", "Bot "+c.Token)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if bucket != "" {
		c.feedbackBucket(bucket, res.Header)
	}

	if res.StatusCode == http.StatusTooManyRequests {
		var tooManyRequests discord.TooManyRequests

		err = json.NewDecoder(res.Body).Decode(&tooManyRequests)
		if err != nil {
			return fmt.Errorf("failed to decode rate limit response: %w", err)
		}

		wait := time.Duration(tooManyRequests.RetryAfter * float64(time.Second))

		c.Logger.Warn().
			Str("path", path).
			Dur("retry_after", wait).
			Bool("global", tooManyRequests.Global).
			Msg("Hit external rate limit")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		return c.Execute(ctx, method, path, bucket, payload, out)
	}

	if res.StatusCode == http.StatusUnauthorized {
		return ErrInvalidToken
	}

	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)

		return fmt.Errorf("request failed with status %d: %s", res.StatusCode, data)
	}

	if out != nil {
		err = json.NewDecoder(res.Body).Decode(out)
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// feedbackBucket resizes a bucket from the authoritative rate limit
// headers. Missing headers leave the bucket untouched.
func (c *Client) feedbackBucket(bucket string, header http.Header) {
	limitHeader := header.Get("X-RateLimit-Limit")
	if limitHeader == "" {
		return
	}

	limit, err := strconv.ParseInt(limitHeader, 10, 32)
	if err != nil {
		return
	}

	remaining := int64(-1)

	if remainingHeader := header.Get("X-RateLimit-Remaining"); remainingHeader != "" {
		remaining, err = strconv.ParseInt(remainingHeader, 10, 32)
		if err != nil {
			remaining = -1
		}
	}

	var (
		window  time.Duration
		resetAt time.Time
	)

	if resetAfterHeader := header.Get("X-RateLimit-Reset-After"); resetAfterHeader != "" {
		resetAfter, err := strconv.ParseFloat(resetAfterHeader, 64)
		if err == nil {
			window = time.Duration(resetAfter * float64(time.Second))
			resetAt = c.Buckets.Clock().Now().Add(window)
		}
	}

	c.Buckets.Update(bucket, int32(limit), int32(remaining), window, resetAt)
}

// SendMessage sends content to a channel. Content over the message length
// limit is split into multiple messages on line boundaries.
func (c *Client) SendMessage(ctx context.Context, channelID discord.Snowflake, content string) error {
	for _, chunk := range splitMessage(content, MaxMessageLength) {
		err := c.Execute(ctx,
			http.MethodPost,
			"/channels/"+string(channelID)+"/messages",
			"message-send:"+string(channelID),
			discord.MessageParams{Content: chunk},
			nil,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// EditMessage replaces the content of an existing message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID discord.Snowflake, content string) error {
	return c.Execute(ctx,
		http.MethodPatch,
		"/channels/"+string(channelID)+"/messages/"+string(messageID),
		"message-edit:"+string(channelID),
		discord.MessageParams{Content: content},
		nil,
	)
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID discord.Snowflake) error {
	return c.Execute(ctx,
		http.MethodDelete,
		"/channels/"+string(channelID)+"/messages/"+string(messageID),
		"message-delete:"+string(channelID),
		nil,
		nil,
	)
}

// FetchCurrentUser returns the user the token authenticates as.
func (c *Client) FetchCurrentUser(ctx context.Context) (*discord.User, error) {
	var user discord.User

	err := c.Execute(ctx, http.MethodGet, "/users/@me", "users-me", nil, &user)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// FetchGatewayURL returns the websocket url the gateway wants us to dial.
func (c *Client) FetchGatewayURL(ctx context.Context) (string, error) {
	var gateway discord.GatewayResponse

	err := c.Execute(ctx, http.MethodGet, "/gateway", "gateway", nil, &gateway)
	if err != nil {
		return "", err
	}

	return gateway.URL, nil
}
