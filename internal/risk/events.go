// Package risk implements the stateful policy layer consulted by the
// backtest engine: quality-tiered trailing stops, portfolio drawdown
// defense, volatility-scaled exposure and concentration caps. Risk
// actions are typed events, never errors.
package risk

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/metrics"
)

// EventType enumerates the risk actions.
type EventType string

const (
	EventDrawdownProtection EventType = "DRAWDOWN_PROTECTION"
	EventStopLoss           EventType = "STOP_LOSS"
	EventSectorCap          EventType = "SECTOR_CAP"
	EventPositionCap        EventType = "POSITION_CAP"
	EventVolatilityScale    EventType = "VOLATILITY_SCALE"
)

// Event is one risk action. Symbol is empty for portfolio-level events.
type Event struct {
	Type   EventType `json:"type"`
	Symbol string    `json:"symbol,omitempty"`
	Detail string    `json:"detail"`
	Value  float64   `json:"value"`
	Date   time.Time `json:"date"`
}

// EventSink receives risk events. Sinks must not block; slow delivery
// belongs behind a goroutine or buffered transport.
type EventSink interface {
	Publish(Event)
}

// LogSink writes events to the structured log. It is always installed.
type LogSink struct{}

func (LogSink) Publish(e Event) {
	log.Info().
		Str("event", string(e.Type)).
		Str("symbol", e.Symbol).
		Str("detail", e.Detail).
		Float64("value", e.Value).
		Time("date", e.Date).
		Msg("Risk event")
}

// emit fans an event out to every sink and the event log.
func (m *Manager) emit(e Event) {
	metrics.RiskEvents.WithLabelValues(string(e.Type)).Inc()
	m.events = append(m.events, e)
	for _, sink := range m.sinks {
		sink.Publish(e)
	}
}
