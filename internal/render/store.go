package render

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store keeps job records. Get and List return copies; the only way to
// change a stored job is Update.
type Store interface {
	Create(job Job) error
	Get(id string) (Job, error)
	Update(id string, fn func(*Job)) (Job, error)
	List() []Job
	Prune(before time.Time) int
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Create(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	j := job.clone()
	s.jobs[job.ID] = &j
	return nil
}

func (s *MemoryStore) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.clone(), nil
}

// Update applies fn to the stored job under the write lock and stamps
// UpdatedAt.
func (s *MemoryStore) Update(id string, fn func(*Job)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	fn(j)
	j.UpdatedAt = time.Now()
	return j.clone(), nil
}

// List returns all jobs, newest first.
func (s *MemoryStore) List() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Prune drops terminal jobs last updated before the cutoff.
func (s *MemoryStore) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(before) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}
