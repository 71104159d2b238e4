package services

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// SearchFilter selects jobs from a SearchStore
type SearchFilter struct {
	Status SearchStatus
	Since  time.Time
	Limit  int
}

// SearchStore is an in-memory store of search jobs. Readers always receive
// copies so a running job can be updated while it is being listed.
type SearchStore struct {
	mu   sync.RWMutex
	jobs map[string]*SearchJob
}

// NewSearchStore creates an empty store
func NewSearchStore() *SearchStore {
	return &SearchStore{
		jobs: make(map[string]*SearchJob),
	}
}

// Create adds a copy of job. Later changes go through Update.
func (s *SearchStore) Create(job *SearchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("search %s already exists", job.ID)
	}

	s.jobs[job.ID] = job.clone()
	return nil
}

// Get returns a copy of the job with the given id
func (s *SearchStore) Get(id string) (*SearchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSearchNotFound, id)
	}
	return job.clone(), nil
}

// Update applies fn to the stored job under the store lock
func (s *SearchStore) Update(id string, fn func(job *SearchJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSearchNotFound, id)
	}
	fn(job)
	return nil
}

// List returns the jobs matching filter, newest first
func (s *SearchStore) List(filter SearchFilter) []*SearchJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*SearchJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && job.CreatedAt.Before(filter.Since) {
			continue
		}
		result = append(result, job.clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

// Delete removes a job from the store
func (s *SearchStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrSearchNotFound, id)
	}
	delete(s.jobs, id)
	return nil
}

// CleanupOld removes finished jobs created before now minus olderThan and
// returns their ids
func (s *SearchStore) CleanupOld(now time.Time, olderThan time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-olderThan)
	var deleted []string
	for id, job := range s.jobs {
		if job.Status.Finished() && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted = append(deleted, id)
		}
	}
	sort.Strings(deleted)
	return deleted
}

// Stats counts jobs per status
func (s *SearchStore) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{
		"total": len(s.jobs),
	}
	for _, job := range s.jobs {
		stats[string(job.Status)]++
	}
	return stats
}
