package imports

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/youread/internal/manga"
)

var _ JobStore = (*MemoryJobStore)(nil)

// MemoryJobStore keeps import jobs in process.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
	now  func() time.Time
}

// NewMemoryJobStore constructs a MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new job.
func (s *MemoryJobStore) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// Update applies fn to the stored job and stamps start and finish times on
// state transitions.
func (s *MemoryJobStore) Update(_ context.Context, id string, fn func(*Job)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	fn(&job)
	now := s.now()
	if job.State == StateRunning && job.StartedAt == nil {
		job.StartedAt = pointerTime(now)
	}
	if job.State.Terminal() && job.FinishedAt == nil {
		job.FinishedAt = pointerTime(now)
	}
	job = cloneJob(job)
	s.jobs[id] = job
	return cloneJob(job), nil
}

// Get fetches a job by ID.
func (s *MemoryJobStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return cloneJob(job), nil
}

func cloneJob(j Job) Job {
	j.Records = append([]manga.Record(nil), j.Records...)
	j.Request.Seed = append([]manga.Record(nil), j.Request.Seed...)
	if j.Summary != nil {
		sum := *j.Summary
		j.Summary = &sum
	}
	return j
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
