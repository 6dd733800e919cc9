package session

import (
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/studymate/internal/domain"
)

// Stats is a projection over the outcomes of a session.
type Stats struct {
	Counts      map[domain.Grade]int
	Total       int
	Correct     int     // good and easy answers
	Accuracy    float64 // Correct / Total, zero when nothing was answered
	MeanLatency time.Duration
}

// NewStats computes statistics over outcomes. Outcomes without a recorded
// latency do not count towards MeanLatency.
func NewStats(outcomes []domain.ReviewOutcome) Stats {
	st := Stats{
		Counts: make(map[domain.Grade]int, len(domain.Grades)),
		Total:  len(outcomes),
	}
	for _, g := range domain.Grades {
		st.Counts[g] = lo.CountBy(outcomes, func(o domain.ReviewOutcome) bool { return o.Grade == g })
	}
	st.Correct = lo.CountBy(outcomes, func(o domain.ReviewOutcome) bool { return o.Grade.Correct() })
	if st.Total > 0 {
		st.Accuracy = float64(st.Correct) / float64(st.Total)
	}

	timed := lo.Filter(outcomes, func(o domain.ReviewOutcome, _ int) bool { return o.Latency > 0 })
	if len(timed) > 0 {
		var sum time.Duration
		for _, o := range timed {
			sum += o.Latency
		}
		st.MeanLatency = sum / time.Duration(len(timed))
	}
	return st
}
