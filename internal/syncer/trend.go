package syncer

import (
	"time"

	"main/internal/model"
)

// TrendDirection summarizes recent drift movement.
type TrendDirection string

const (
	TrendInsufficient TrendDirection = "insufficient_data"
	TrendIncreasing   TrendDirection = "increasing"
	TrendDecreasing   TrendDirection = "decreasing"
	TrendStable       TrendDirection = "stable"
)

// TrendAnalysis is a point-in-time view of drift behavior for operators.
type TrendAnalysis struct {
	Checks         uint64
	RecentAvg      time.Duration
	RecentMax      time.Duration
	FailureRate    float64
	Direction      TrendDirection
	Recommendation string
}

// Trend analyzes the rolling sample history.
func (m *Manager) Trend() TrendAnalysis {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := TrendAnalysis{Checks: m.checks, Direction: TrendInsufficient}
	if m.checks > 0 {
		out.FailureRate = float64(m.failed) / float64(m.checks)
	}

	n := len(m.history)
	if n == 0 {
		out.Recommendation = recommend(out)
		return out
	}

	recent := m.history
	if n > 20 {
		recent = m.history[n-20:]
	}
	var sum time.Duration
	for _, s := range recent {
		mag := magnitude(s.Offset)
		sum += mag
		if mag > out.RecentMax {
			out.RecentMax = mag
		}
	}
	out.RecentAvg = sum / time.Duration(len(recent))
	out.Direction = direction(recent)
	out.Recommendation = recommend(out)
	return out
}

func direction(samples []model.DriftSample) TrendDirection {
	if len(samples) < 10 {
		return TrendInsufficient
	}
	half := len(samples) / 2
	early := avgMagnitude(samples[:half])
	late := avgMagnitude(samples[half:])
	switch {
	case late > early+early/5:
		return TrendIncreasing
	case late < early-early/5:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func avgMagnitude(samples []model.DriftSample) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range samples {
		sum += magnitude(s.Offset)
	}
	return sum / time.Duration(len(samples))
}

func magnitude(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func recommend(t TrendAnalysis) string {
	switch {
	case t.FailureRate > 0.5:
		return "check time source"
	case t.FailureRate > 0.2:
		return "monitor closely"
	case t.Direction == TrendIncreasing:
		return "investigate growing drift"
	default:
		return "nominal"
	}
}
