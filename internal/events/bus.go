// Package events publishes risk events onto NATS so downstream
// consumers (dashboards, alert pipelines) can react without coupling
// to the scoring process.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/risk"
)

// SubjectPrefix namespaces all subjects published by this process.
// Risk events land on stockfunk.risk.<event_type>.
const SubjectPrefix = "stockfunk."

// Bus wraps a NATS connection as a risk.EventSink.
type Bus struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

// Connect dials NATS with reconnect handling.
func Connect(url string) (*Bus, error) {
	logger := config.NewLogger("event_bus")
	nc, err := nats.Connect(
		url,
		nats.Name("stockfunk"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	logger.Info().Str("url", url).Msg("Event bus connected")
	return &Bus{nc: nc, logger: logger}, nil
}

// Publish sends a risk event. Delivery is fire-and-forget: the risk
// manager must never stall on a slow bus, so failures are logged and
// dropped.
func (b *Bus) Publish(e risk.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Error().Err(err).Msg("Encoding risk event failed")
		return
	}
	subject := fmt.Sprintf("%srisk.%s", SubjectPrefix, e.Type)
	if err := b.nc.Publish(subject, data); err != nil {
		b.logger.Warn().Err(err).Str("subject", subject).Msg("Risk event not published")
	}
}

// Close drains in-flight messages and closes the connection.
func (b *Bus) Close() {
	if err := b.nc.Drain(); err != nil {
		b.logger.Warn().Err(err).Msg("NATS drain failed")
	}
}

var _ risk.EventSink = (*Bus)(nil)
