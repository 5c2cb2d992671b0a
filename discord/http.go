package discord

// http.go represents the structures of the REST endpoints we use.

// GatewayResponse represents a GET /gateway response.
type GatewayResponse struct {
	URL string `json:"url"`
}

// TooManyRequests represents a 429 response body. RetryAfter is in
// seconds.
type TooManyRequests struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}
