package alerts

import (
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/internal/risk"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New("", 42)
	require.Error(t, err)
}

func TestPublishDeliversFormattedAlert(t *testing.T) {
	fake := &fakeSender{}
	n := newNotifier(fake, 42, zerolog.Nop())

	n.Publish(risk.Event{
		Type:   risk.EventStopLoss,
		Symbol: "AAPL",
		Detail: "HIGH-tier stop: -31.0% from peak 182.50 breached -30% threshold",
		Value:  -0.31,
		Date:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	n.Close()

	msgs := fake.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].ChatID)
	assert.Equal(t, "Markdown", msgs[0].ParseMode)
	assert.Contains(t, msgs[0].Text, "*Stop loss*")
	assert.Contains(t, msgs[0].Text, "`AAPL`")
	assert.Contains(t, msgs[0].Text, "2024-03-01")
}

func TestCloseDrainsQueue(t *testing.T) {
	fake := &fakeSender{}
	n := newNotifier(fake, 7, zerolog.Nop())

	for i := 0; i < 5; i++ {
		n.Publish(risk.Event{Type: risk.EventPositionCap, Detail: "cap applied"})
	}
	n.Close()
	assert.Len(t, fake.messages(), 5)
}

func TestFormatEventPortfolioLevel(t *testing.T) {
	text := formatEvent(risk.Event{
		Type:   risk.EventDrawdownProtection,
		Detail: "drawdown 16.0% breached 15% limit",
		Date:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Contains(t, text, "*Drawdown protection*")
	assert.NotContains(t, text, "``", "no empty symbol marker")
}
