package discord

// Snowflake is an opaque object id. The wire format is a string.
type Snowflake string

// User represents a user record as far as the client needs one.
type User struct {
	ID       Snowflake `json:"id"`
	Username string    `json:"username"`
	Bot      bool      `json:"bot"`
}

// Message represents the subset of a message-creation event the
// dispatcher inspects. The full payload travels alongside it untouched.
type Message struct {
	ID        Snowflake  `json:"id"`
	ChannelID Snowflake  `json:"channel_id"`
	GuildID   *Snowflake `json:"guild_id,omitempty"`
	Author    User       `json:"author"`
	Content   string     `json:"content"`
}

// MessageParams is the body of a message create or edit request.
type MessageParams struct {
	Content string `json:"content"`
}
