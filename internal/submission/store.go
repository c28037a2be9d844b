package submission

import (
	"context"
	"errors"
	"sync"

	"github.com/noah-isme/gema-exec/internal/execution"
	"github.com/noah-isme/gema-exec/internal/grading"
)

// ErrNotFound indicates the submission is unknown to the store.
var ErrNotFound = errors.New("submission not found")

// Store is the persistence collaborator. The engine computes everything the
// store needs and never reads its own writes during grading; SaveResults must
// persist the terminal status and the batch atomically.
type Store interface {
	Create(ctx context.Context, sub *Submission) error
	UpdateStatus(ctx context.Context, id string, status execution.Status, errMsg string) error
	SaveResults(ctx context.Context, sub *Submission, batch grading.BatchResult) error
	GetByID(ctx context.Context, id string) (*Submission, error)
}

// MemoryStore keeps submissions in process memory. It backs single-node
// deployments without a database and the engine's own tests.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]*Submission
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Submission)}
}

func (s *MemoryStore) Create(_ context.Context, sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sub
	s.subs[sub.ID] = &clone
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status execution.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return ErrNotFound
	}
	sub.Status = status
	sub.Error = errMsg
	return nil
}

func (s *MemoryStore) SaveResults(_ context.Context, sub *Submission, _ grading.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return ErrNotFound
	}
	clone := *sub
	s.subs[sub.ID] = &clone
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *sub
	return &clone, nil
}
