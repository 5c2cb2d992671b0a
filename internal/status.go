package internal

import (
	"net/http"
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
)

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Uptime string `json:"uptime"`

	ShardStatus  string `json:"shard_status"`
	LatencyMilli int64  `json:"latency_ms"`

	EventsReceived    int64 `json:"events_received"`
	MessagesProcessed int64 `json:"messages_processed"`
	CommandsExecuted  int64 `json:"commands_executed"`
	Reconnections     int64 `json:"reconnections"`
}

// CommandResponse is one entry of GET /commands.
type CommandResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Cooldown    string   `json:"cooldown,omitempty"`
}

// setupHTTP serves the status endpoints until the listener fails.
func (b *Bramble) setupHTTP() {
	r := router.New()
	r.GET("/status", b.handleStatus)
	r.GET("/commands", b.handleCommands)

	b.Logger.Info().Msgf("Running HTTP server at %s", b.Configuration.HTTP.Host)

	err := fasthttp.ListenAndServe(b.Configuration.HTTP.Host, r.Handler)
	if err != nil {
		b.Logger.Error().Err(err).Msg("Error occured whilst running fasthttp")
	}
}

func (b *Bramble) handleStatus(ctx *fasthttp.RequestCtx) {
	response := StatusResponse{
		Uptime: formatDuration(time.Now().UTC().Sub(b.StartTime)),

		ShardStatus:  b.Shard.GetStatus().String(),
		LatencyMilli: b.Shard.GatewayLatency.Load().Milliseconds(),

		EventsReceived:    b.Stats.EventsReceived.Load(),
		MessagesProcessed: b.Stats.MessagesProcessed.Load(),
		CommandsExecuted:  b.Stats.CommandsExecuted.Load(),
		Reconnections:     b.Stats.Reconnections.Load(),
	}

	writeJSONResponse(ctx, response)
}

func (b *Bramble) handleCommands(ctx *fasthttp.RequestCtx) {
	commands := b.Registry.Commands()
	response := make([]CommandResponse, 0, len(commands))

	for _, command := range commands {
		entry := CommandResponse{
			Name:        command.Name,
			Description: command.Description,
			Aliases:     command.Aliases,
		}

		if command.Cooldown > 0 {
			entry.Cooldown = command.Cooldown.String()
		}

		response = append(response, entry)
	}

	writeJSONResponse(ctx, response)
}

func writeJSONResponse(ctx *fasthttp.RequestCtx, response interface{}) {
	data, err := json.Marshal(response)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)

		return
	}

	ctx.Response.Header.Set("content-type", "application/json;charset=UTF-8")
	ctx.Write(data)
}

// setupPrometheus exposes the metrics endpoint until the listener fails.
func (b *Bramble) setupPrometheus() {
	prometheus.MustRegister(gatewayEventCount)
	prometheus.MustRegister(reconnectCount)
	prometheus.MustRegister(gatewayLatency)
	prometheus.MustRegister(shardStatusGauge)
	prometheus.MustRegister(commandInvocationCount)
	prometheus.MustRegister(commandErrorCount)

	http.Handle("/metrics", promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{},
	))

	b.Logger.Info().Msgf("Serving prometheus at %s", b.Configuration.HTTP.PrometheusAddress)

	err := http.ListenAndServe(b.Configuration.HTTP.PrometheusAddress, nil)
	if err != nil {
		b.Logger.Error().
			Str("host", b.Configuration.HTTP.PrometheusAddress).
			Err(err).
			Msg("Failed to serve prometheus server")
	}
}
