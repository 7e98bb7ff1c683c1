package feed

import (
	"fmt"
	"sync"

	"github.com/kosty-cloud/kosty/internal/models"
)

// ThresholdUpdate is a partial threshold override. Nil fields keep the
// current value.
type ThresholdUpdate struct {
	BudgetPct        *float64 `json:"budget_threshold_percentage,omitempty"`
	ForecastPct      *float64 `json:"forecast_threshold_percentage,omitempty"`
	CostSpikeUSD     *float64 `json:"cost_spike_threshold,omitempty"`
	AnomalyMinUSD    *float64 `json:"anomaly_min_impact,omitempty"`
	IdleDays         *int     `json:"idle_days_threshold,omitempty"`
	SecurityScoreMin *float64 `json:"security_score_min,omitempty"`
}

// ThresholdStore holds the live alert thresholds behind a lock so the feed
// handlers can reconfigure them while audits read them.
type ThresholdStore struct {
	mu      sync.RWMutex
	current models.Thresholds
}

// NewThresholdStore starts from the given limits, usually the configured or
// default set.
func NewThresholdStore(initial models.Thresholds) *ThresholdStore {
	return &ThresholdStore{current: initial}
}

// Snapshot returns a copy of the active thresholds.
func (s *ThresholdStore) Snapshot() models.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Configure applies a partial update. All supplied values must be positive;
// on validation failure nothing changes. Returns the resulting thresholds.
func (s *ThresholdStore) Configure(update ThresholdUpdate) (models.Thresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if update.BudgetPct != nil {
		if *update.BudgetPct <= 0 {
			return s.current, fmt.Errorf("budget_threshold_percentage must be positive, got %v", *update.BudgetPct)
		}
		next.BudgetPct = *update.BudgetPct
	}
	if update.ForecastPct != nil {
		if *update.ForecastPct <= 0 {
			return s.current, fmt.Errorf("forecast_threshold_percentage must be positive, got %v", *update.ForecastPct)
		}
		next.ForecastPct = *update.ForecastPct
	}
	if update.CostSpikeUSD != nil {
		if *update.CostSpikeUSD <= 0 {
			return s.current, fmt.Errorf("cost_spike_threshold must be positive, got %v", *update.CostSpikeUSD)
		}
		next.CostSpikeUSD = *update.CostSpikeUSD
	}
	if update.AnomalyMinUSD != nil {
		if *update.AnomalyMinUSD <= 0 {
			return s.current, fmt.Errorf("anomaly_min_impact must be positive, got %v", *update.AnomalyMinUSD)
		}
		next.AnomalyMinUSD = *update.AnomalyMinUSD
	}
	if update.IdleDays != nil {
		if *update.IdleDays <= 0 {
			return s.current, fmt.Errorf("idle_days_threshold must be positive, got %v", *update.IdleDays)
		}
		next.IdleDays = *update.IdleDays
	}
	if update.SecurityScoreMin != nil {
		if *update.SecurityScoreMin <= 0 || *update.SecurityScoreMin > 10 {
			return s.current, fmt.Errorf("security_score_min must be in (0, 10], got %v", *update.SecurityScoreMin)
		}
		next.SecurityScoreMin = *update.SecurityScoreMin
	}

	s.current = next
	return next, nil
}
