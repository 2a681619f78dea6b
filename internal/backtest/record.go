// Package backtest persists completed runs and manages asynchronous
// execution of new ones for the API.
package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	btengine "github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// SchemaVersion is written into every stored record. Loading an older
// record applies the registered migrations below in order.
const SchemaVersion = "1.1.0"

// ErrNotFound is returned when a run id is unknown to the store.
var ErrNotFound = errors.New("backtest run not found")

// JobStatus is the lifecycle of a run.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Record is one stored run: the full config, the result once the run
// completes, and lifecycle metadata.
type Record struct {
	ID            uuid.UUID        `json:"id"`
	SchemaVersion string           `json:"schema_version"`
	Name          string           `json:"name"`
	Status        JobStatus        `json:"status"`
	Config        btengine.Config  `json:"config"`
	Result        *btengine.Result `json:"result,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	LastAccessAt  time.Time        `json:"last_access_at"`
}

// Summary is the listing view of a record; the full result stays on
// disk until the record itself is requested.
type Summary struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Status         JobStatus `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	TotalReturnPct float64   `json:"total_return_pct,omitempty"`
	SharpeRatio    float64   `json:"sharpe_ratio,omitempty"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct,omitempty"`
	TotalTrades    int       `json:"total_trades,omitempty"`
}

// Summarize projects a record onto its listing view.
func (r *Record) Summarize() Summary {
	s := Summary{
		ID:        r.ID,
		Name:      r.Name,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if r.Result != nil && r.Result.Metrics != nil {
		s.TotalReturnPct = r.Result.Metrics.TotalReturnPct
		s.SharpeRatio = r.Result.Metrics.SharpeRatio
		s.MaxDrawdownPct = r.Result.Metrics.MaxDrawdownPct
		s.TotalTrades = r.Result.Metrics.TotalTrades
	}
	return s
}

// ============================================================================
// SCHEMA MIGRATIONS
// ============================================================================

// migration upgrades the raw JSON of any record written before the
// given version.
type migration struct {
	before *semver.Version
	apply  func(raw map[string]any)
}

var migrations = []migration{
	// 1.1.0 renamed config.commission_bps to config.cost_bps.
	{
		before: semver.MustParse("1.1.0"),
		apply: func(raw map[string]any) {
			cfg, ok := raw["config"].(map[string]any)
			if !ok {
				return
			}
			if v, ok := cfg["commission_bps"]; ok {
				cfg["cost_bps"] = v
				delete(cfg, "commission_bps")
			}
		},
	},
}

// decodeRecord parses stored bytes, migrating older schema versions
// forward before the final unmarshal.
func decodeRecord(data []byte) (*Record, error) {
	var probe struct {
		SchemaVersion string `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing stored record: %w", err)
	}
	if probe.SchemaVersion == "" {
		probe.SchemaVersion = "1.0.0"
	}
	stored, err := semver.NewVersion(probe.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid record schema version %q: %w", probe.SchemaVersion, err)
	}

	if stored.LessThan(semver.MustParse(SchemaVersion)) {
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing stored record for migration: %w", err)
		}
		sort.SliceStable(migrations, func(i, j int) bool {
			return migrations[i].before.LessThan(migrations[j].before)
		})
		for _, m := range migrations {
			if stored.LessThan(m.before) {
				m.apply(raw)
			}
		}
		raw["schema_version"] = SchemaVersion
		if data, err = json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("re-encoding migrated record: %w", err)
		}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing record: %w", err)
	}
	rec.SchemaVersion = SchemaVersion
	return &rec, nil
}
