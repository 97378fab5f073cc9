package waitlist

import (
	"time"

	"github.com/medflow/waitlist-api/internal/model"
)

// Scorer converts an entry's attributes into a single orderable score.
// Lower scores are served first.
type Scorer interface {
	Score(entry *model.WaitlistEntry, policy *model.EffectivePolicy, now time.Time) int64
}

// arrivalScorer ranks by join time: the score is the monotonic clock reading
// at creation, so earlier joiners sort first. The policy weight map is a
// forward-looking extension point; only this FIFO policy consumes it today,
// and it ignores everything but arrival.
type arrivalScorer struct{}

func NewArrivalScorer() Scorer {
	return arrivalScorer{}
}

func (arrivalScorer) Score(_ *model.WaitlistEntry, _ *model.EffectivePolicy, now time.Time) int64 {
	return now.UnixNano()
}
