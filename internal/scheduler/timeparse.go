package scheduler

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Parse confidence levels. An explicit clock time ("at 5pm") is a stronger
// signal than a bare day reference ("tomorrow").
const (
	confidenceDay   = 0.8
	confidenceClock = 0.9
)

// TimeParser resolves natural-language due phrases against a base time.
type TimeParser interface {
	// Parse returns the resolved time, a confidence score, and whether
	// anything parseable was found.
	Parse(text string, base time.Time) (time.Time, float64, bool)
}

// whenParser backs TimeParser with the when rule engine (English rules plus
// common clock formats).
type whenParser struct {
	w *when.Parser
}

// NewTimeParser builds the production parser.
func NewTimeParser() TimeParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &whenParser{w: w}
}

func (p *whenParser) Parse(text string, base time.Time) (time.Time, float64, bool) {
	r, err := p.w.Parse(text, base)
	if err != nil || r == nil {
		return time.Time{}, 0, false
	}
	// Results in the past are useless for scheduling.
	if !r.Time.After(base) {
		return time.Time{}, 0, false
	}
	return r.Time, matchConfidence(r.Text), true
}

// matchConfidence scores the matched phrase: digits mean an explicit clock
// or calendar reference.
func matchConfidence(matched string) float64 {
	if strings.ContainsAny(matched, "0123456789") {
		return confidenceClock
	}
	return confidenceDay
}

var _ TimeParser = (*whenParser)(nil)
