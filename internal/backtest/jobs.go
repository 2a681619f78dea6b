package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/risk"
	btengine "github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// Progress is one status update streamed to WebSocket subscribers.
type Progress struct {
	RunID   uuid.UUID `json:"run_id"`
	Status  JobStatus `json:"status"`
	Day     int       `json:"day"`
	Total   int       `json:"total"`
	Percent float64   `json:"percent"`
	Error   string    `json:"error,omitempty"`
}

// RunFunc executes one backtest. Injected so the manager is testable
// without a full scoring stack.
type RunFunc func(ctx context.Context, cfg btengine.Config, progress func(day, total int)) (*btengine.Result, error)

// EngineRunner builds the production RunFunc on top of the engine.
// Extra event sinks (bus, alerting) are attached to every run's risk
// manager.
func EngineRunner(provider marketdata.Provider, scorer btengine.Scorer, sinks ...risk.EventSink) RunFunc {
	return func(ctx context.Context, cfg btengine.Config, progress func(day, total int)) (*btengine.Result, error) {
		engine, err := btengine.New(cfg, provider, scorer, risk.NewManager(cfg.Risk, sinks...), btengine.WithProgress(progress))
		if err != nil {
			return nil, err
		}
		return engine.Run(ctx)
	}
}

// Manager runs backtests asynchronously, persisting every state
// transition and fanning progress out to subscribers.
type Manager struct {
	store Store
	run   RunFunc

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	subs    map[uuid.UUID][]chan Progress
	wg      sync.WaitGroup
}

// NewManager builds a job manager over a store and a run function.
func NewManager(store Store, run RunFunc) *Manager {
	return &Manager{
		store:   store,
		run:     run,
		cancels: make(map[uuid.UUID]context.CancelFunc),
		subs:    make(map[uuid.UUID][]chan Progress),
	}
}

// Submit validates the config, persists a pending record and starts
// the run in the background. The run outlives the submitting request.
func (m *Manager) Submit(ctx context.Context, name string, cfg btengine.Config) (*Record, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("backtest-%s", time.Now().UTC().Format("20060102-150405"))
	}

	rec := &Record{
		ID:            uuid.New(),
		SchemaVersion: SchemaVersion,
		Name:          name,
		Status:        JobStatusPending,
		Config:        cfg,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[rec.ID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.execute(runCtx, rec)

	log.Info().Str("run_id", rec.ID.String()).Str("name", name).Msg("Backtest submitted")
	return rec, nil
}

func (m *Manager) execute(ctx context.Context, rec *Record) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.cancels, rec.ID)
		m.mu.Unlock()
	}()

	now := time.Now().UTC()
	rec.Status = JobStatusRunning
	rec.StartedAt = &now
	if err := m.store.Save(context.Background(), rec); err != nil {
		log.Error().Err(err).Str("run_id", rec.ID.String()).Msg("Failed to persist running state")
	}
	m.publish(Progress{RunID: rec.ID, Status: JobStatusRunning})

	result, err := m.run(ctx, rec.Config, func(day, total int) {
		var pct float64
		if total > 0 {
			pct = float64(day) / float64(total) * 100
		}
		m.publish(Progress{RunID: rec.ID, Status: JobStatusRunning, Day: day, Total: total, Percent: pct})
	})

	done := time.Now().UTC()
	rec.CompletedAt = &done
	switch {
	case ctx.Err() != nil:
		rec.Status = JobStatusCancelled
		rec.ErrorMessage = "run cancelled"
		metrics.BacktestRuns.WithLabelValues("cancelled").Inc()
	case err != nil:
		rec.Status = JobStatusFailed
		rec.ErrorMessage = err.Error()
		metrics.BacktestRuns.WithLabelValues("failed").Inc()
		log.Error().Err(err).Str("run_id", rec.ID.String()).Msg("Backtest failed")
	default:
		rec.Status = JobStatusCompleted
		rec.Result = result
	}
	if err := m.store.Save(context.Background(), rec); err != nil {
		log.Error().Err(err).Str("run_id", rec.ID.String()).Msg("Failed to persist terminal state")
	}
	m.publish(Progress{RunID: rec.ID, Status: rec.Status, Percent: 100, Error: rec.ErrorMessage})
	m.closeSubs(rec.ID)
}

// Cancel stops a running job. Terminal jobs are left untouched.
func (m *Manager) Cancel(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

// Subscribe returns a progress channel for a run and a cancel func.
// The channel closes when the run reaches a terminal state.
func (m *Manager) Subscribe(id uuid.UUID) (<-chan Progress, func()) {
	ch := make(chan Progress, 16)
	m.mu.Lock()
	m.subs[id] = append(m.subs[id], ch)
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		channels := m.subs[id]
		for i, c := range channels {
			if c == ch {
				m.subs[id] = append(channels[:i], channels[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, unsubscribe
}

// publish fans a progress update out without blocking: slow consumers
// miss intermediate updates, never terminal ones.
func (m *Manager) publish(p Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[p.RunID] {
		select {
		case ch <- p:
		default:
			if p.Status == JobStatusRunning {
				continue
			}
			// Terminal update: make room and deliver.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}

func (m *Manager) closeSubs(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[id] {
		close(ch)
	}
	delete(m.subs, id)
}

// Get, List and Delete expose the underlying store to the API layer.

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	return m.store.List(ctx)
}

// Delete cancels the run if still active, then removes the record.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	m.Cancel(id)
	return m.store.Delete(ctx, id)
}

// Wait blocks until all in-flight runs finish. Used on shutdown and
// in tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}
