// Package store holds the enrolled identities used for matching and reconciliation.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/amirhossein5/rollcall/internal/rollno"
	"github.com/amirhossein5/rollcall/pkg/logger"
)

// ErrStoreIO wraps persistence failures. The in-memory mutation has already
// been applied when it is returned.
var ErrStoreIO = errors.New("enrollment store I/O failed")

// ErrInvalidIdentity is returned for blank names or empty embeddings.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is one enrolled person.
type Identity struct {
	RollNo    string
	Name      string
	Embedding []float64
	// Path is the saved reference image, if any.
	Path string
}

// Persister writes identities somewhere that survives a restart.
type Persister interface {
	Load(ctx context.Context) ([]Identity, error)
	Save(ctx context.Context, id Identity) error
	Remove(ctx context.Context, rollNo string) error
}

// Store is safe for concurrent use: matching passes read a snapshot under a
// shared lock while enrollment changes take the exclusive one.
type Store struct {
	mu      sync.RWMutex
	order   []string
	byKey   map[string]Identity
	persist Persister
	log     logger.Logger
}

// Open loads every identity from p. A nil Persister gives a memory-only store.
func Open(ctx context.Context, p Persister) (*Store, error) {
	s := &Store{
		byKey:   make(map[string]Identity),
		persist: p,
		log:     logger.Named("store"),
	}
	if p == nil {
		return s, nil
	}

	ids, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", ErrStoreIO, err)
	}
	for _, id := range ids {
		key, err := rollno.Canonical(id.RollNo)
		if err != nil {
			s.log.Warn(ctx, "skipping stored identity with bad roll number",
				logger.String("roll_no", id.RollNo), logger.Error(err))
			continue
		}
		id.RollNo = key
		if _, dup := s.byKey[key]; dup {
			s.log.Warn(ctx, "duplicate stored roll number, keeping the later record", logger.String("roll_no", key))
		} else {
			s.order = append(s.order, key)
		}
		s.byKey[key] = id
	}
	s.log.Info(ctx, "loaded enrolled identities", logger.Int("count", len(s.order)))
	return s, nil
}

// NewMemory returns an empty store with no persistence.
func NewMemory() *Store {
	s, _ := Open(context.Background(), nil)
	return s
}

// All returns a snapshot in enrollment order. Callers may keep it across
// later mutations of the store.
func (s *Store) All() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Identity, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byKey[key])
	}
	return out
}

// Len reports the number of enrolled identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Get looks up rollNo given as a string or integer.
func (s *Store) Get(rollNo any) (Identity, bool, error) {
	key, err := rollno.Canonical(rollNo)
	if err != nil {
		return Identity{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byKey[key]; ok {
		return id, true, nil
	}
	if other, ok := s.ambiguousLocked(key); ok {
		return Identity{}, false, fmt.Errorf("%w: %q vs stored %q", rollno.ErrAmbiguous, key, other)
	}
	return Identity{}, false, nil
}

// Upsert enrolls or overwrites an identity. Overwrites keep the roster position.
func (s *Store) Upsert(ctx context.Context, rollNo any, name string, embedding []float64, path string) error {
	key, err := rollno.Canonical(rollNo)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidIdentity)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding is empty", ErrInvalidIdentity)
	}

	id := Identity{
		RollNo:    key,
		Name:      name,
		Embedding: append([]float64(nil), embedding...),
		Path:      path,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[key]; exists {
		s.log.Warn(ctx, "roll number already enrolled, overwriting", logger.String("roll_no", key))
	} else {
		s.order = append(s.order, key)
	}
	s.byKey[key] = id

	if s.persist != nil {
		if err := s.persist.Save(ctx, id); err != nil {
			s.log.Error(ctx, "persisting identity failed", logger.String("roll_no", key), logger.Error(err))
			return fmt.Errorf("%w: save %s: %w", ErrStoreIO, key, err)
		}
	}
	return nil
}

// Delete removes rollNo. It reports false when nothing was enrolled under it.
func (s *Store) Delete(ctx context.Context, rollNo any) (bool, error) {
	key, err := rollno.Canonical(rollNo)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[key]; !ok {
		if other, ok := s.ambiguousLocked(key); ok {
			return false, fmt.Errorf("%w: %q vs stored %q", rollno.ErrAmbiguous, key, other)
		}
		return false, nil
	}

	delete(s.byKey, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.persist != nil {
		if err := s.persist.Remove(ctx, key); err != nil {
			s.log.Error(ctx, "persisting deletion failed", logger.String("roll_no", key), logger.Error(err))
			return true, fmt.Errorf("%w: remove %s: %w", ErrStoreIO, key, err)
		}
	}
	return true, nil
}

func (s *Store) ambiguousLocked(key string) (string, bool) {
	for _, k := range s.order {
		if rollno.Ambiguous(key, k) {
			return k, true
		}
	}
	return "", false
}
