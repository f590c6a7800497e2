package attendance

import (
	"sync"
	"time"

	"github.com/amirhossein5/rollcall/internal/rollno"
)

// Sighting is the first confirmed match of a person within a scope.
type Sighting struct {
	RollNo     string
	Name       string
	Distance   float64
	Confidence float64
	At         time.Time
}

// PresentSet holds the roll numbers matched within one photo or one live
// session. It only grows; a new scope gets a new set.
type PresentSet struct {
	mu    sync.RWMutex
	order []string
	seen  map[string]Sighting
}

func NewPresentSet() *PresentSet {
	return &PresentSet{seen: make(map[string]Sighting)}
}

// Record adds s unless its roll number is already present. The first sighting
// wins; it returns true only when s was newly recorded.
func (p *PresentSet) Record(s Sighting) bool {
	key, err := rollno.Canonical(s.RollNo)
	if err != nil {
		return false
	}
	s.RollNo = key

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[key]; ok {
		return false
	}
	p.seen[key] = s
	p.order = append(p.order, key)
	return true
}

// Has reports whether rollNo was matched in this scope.
func (p *PresentSet) Has(rollNo string) bool {
	key, err := rollno.Canonical(rollNo)
	if err != nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.seen[key]
	return ok
}

// Merge unions other into p and returns how many roll numbers were new.
func (p *PresentSet) Merge(other *PresentSet) int {
	if other == nil || other == p {
		return 0
	}
	added := 0
	for _, s := range other.Sightings() {
		if p.Record(s) {
			added++
		}
	}
	return added
}

func (p *PresentSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Sightings returns the recorded sightings in first-seen order.
func (p *PresentSet) Sightings() []Sighting {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Sighting, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, p.seen[key])
	}
	return out
}

// RollNos returns the recorded roll numbers in first-seen order.
func (p *PresentSet) RollNos() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}
