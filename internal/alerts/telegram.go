// Package alerts delivers risk events to operators over Telegram.
package alerts

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/risk"
)

// sender is the slice of the Telegram API the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier forwards risk events to a Telegram chat. Sends happen on a
// background goroutine; the risk manager never blocks on the network.
type Notifier struct {
	api    sender
	chatID int64
	queue  chan risk.Event
	done   chan struct{}
	logger zerolog.Logger
}

// New authorizes the bot and starts the delivery loop.
func New(botToken string, chatID int64) (*Notifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("creating bot API: %w", err)
	}
	logger := config.NewLogger("alerts")
	logger.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")
	return newNotifier(api, chatID, logger), nil
}

func newNotifier(api sender, chatID int64, logger zerolog.Logger) *Notifier {
	n := &Notifier{
		api:    api,
		chatID: chatID,
		queue:  make(chan risk.Event, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	go n.deliver()
	return n
}

// Publish enqueues a risk event for delivery. Events are dropped when
// the queue is full rather than stalling the caller.
func (n *Notifier) Publish(e risk.Event) {
	select {
	case n.queue <- e:
	default:
		n.logger.Warn().Str("event", string(e.Type)).Msg("Alert queue full, dropping event")
	}
}

// Close stops the delivery loop after draining queued events.
func (n *Notifier) Close() {
	close(n.queue)
	<-n.done
}

func (n *Notifier) deliver() {
	defer close(n.done)
	for e := range n.queue {
		msg := tgbotapi.NewMessage(n.chatID, formatEvent(e))
		msg.ParseMode = "Markdown"
		if _, err := n.api.Send(msg); err != nil {
			n.logger.Warn().Err(err).Str("event", string(e.Type)).Msg("Alert not delivered")
		}
	}
}

// formatEvent renders a risk event as a Telegram Markdown message.
func formatEvent(e risk.Event) string {
	title := "Risk event"
	switch e.Type {
	case risk.EventDrawdownProtection:
		title = "Drawdown protection"
	case risk.EventStopLoss:
		title = "Stop loss"
	case risk.EventSectorCap:
		title = "Sector cap"
	case risk.EventPositionCap:
		title = "Position cap"
	case risk.EventVolatilityScale:
		title = "Volatility scaling"
	}
	text := fmt.Sprintf("*%s*", title)
	if e.Symbol != "" {
		text += fmt.Sprintf(" `%s`", e.Symbol)
	}
	text += fmt.Sprintf("\n%s\n_%s_", e.Detail, e.Date.Format("2006-01-02"))
	return text
}

var _ risk.EventSink = (*Notifier)(nil)
