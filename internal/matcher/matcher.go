// Package matcher turns a face embedding into a roll-number decision.
package matcher

import (
	"errors"
	"fmt"
	"math"

	"github.com/amirhossein5/rollcall/internal/store"
)

// Status is the outcome of matching one probe.
type Status int

const (
	// Unknown means no enrolled identity is close enough to mention.
	Unknown Status = iota
	// NearMiss is the "unmanaged" band between the match and near-miss
	// thresholds. It is logged for tuning and never counted present.
	NearMiss
	// Matched means the closest identity is under the match threshold.
	Matched
)

func (s Status) String() string {
	switch s {
	case Matched:
		return "matched"
	case NearMiss:
		return "near-miss"
	default:
		return "unknown"
	}
}

// Decision is derived per probe and never stored.
type Decision struct {
	Status Status
	// RollNo and Name are set for Matched and, as the candidate, for NearMiss.
	RollNo string
	Name   string
	// Distance is NaN when nothing was enrolled.
	Distance   float64
	Confidence float64
}

// Label is the overlay text for a decision: "Name 87.5%" when matched.
func (d Decision) Label() string {
	if d.Status != Matched {
		return "Unknown"
	}
	return fmt.Sprintf("%s %g%%", d.Name, d.Confidence)
}

// Config holds the operator-tunable thresholds.
type Config struct {
	MatchThreshold    float64
	NearMissThreshold float64
	// Precision is the number of decimals kept in Confidence.
	Precision int
}

// DefaultConfig favors recall: a missed student costs more than a rare false accept.
func DefaultConfig() Config {
	return Config{
		MatchThreshold:    0.55,
		NearMissThreshold: 0.65,
		Precision:         2,
	}
}

func (c Config) Validate() error {
	if c.MatchThreshold <= 0 {
		return errors.New("match threshold must be positive")
	}
	if c.NearMissThreshold < c.MatchThreshold {
		return fmt.Errorf("near-miss threshold %.3f is below match threshold %.3f", c.NearMissThreshold, c.MatchThreshold)
	}
	if c.Precision < 0 {
		return errors.New("confidence precision must not be negative")
	}
	return nil
}

// Matcher is stateless apart from its thresholds.
type Matcher struct {
	cfg Config
}

func New(cfg Config) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{cfg: cfg}, nil
}

// WithPrecision returns a copy that rounds confidence to p decimals.
func (m *Matcher) WithPrecision(p int) *Matcher {
	cfg := m.cfg
	cfg.Precision = p
	return &Matcher{cfg: cfg}
}

func (m *Matcher) Config() Config { return m.cfg }

// Match compares probe against every enrolled embedding. Ties go to the
// identity enrolled first.
func (m *Matcher) Match(probe []float64, enrolled []store.Identity) Decision {
	best := -1
	bestDist := math.Inf(1)
	for i, id := range enrolled {
		d := Distance(probe, id.Embedding)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Decision{Status: Unknown, Distance: math.NaN()}
	}

	id := enrolled[best]
	switch {
	case bestDist < m.cfg.MatchThreshold:
		return Decision{
			Status:     Matched,
			RollNo:     id.RollNo,
			Name:       id.Name,
			Distance:   bestDist,
			Confidence: round((1-bestDist)*100, m.cfg.Precision),
		}
	case bestDist < m.cfg.NearMissThreshold:
		return Decision{Status: NearMiss, RollNo: id.RollNo, Name: id.Name, Distance: bestDist}
	default:
		return Decision{Status: Unknown, Distance: bestDist}
	}
}

// Distance is the Euclidean distance between a and b, or +Inf when their
// lengths differ.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
