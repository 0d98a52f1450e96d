package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blockfix/backend/internal/app/domain/complaint"
	"github.com/blockfix/backend/internal/app/domain/fund"
	"github.com/blockfix/backend/internal/app/domain/vote"
	"github.com/blockfix/backend/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu             sync.RWMutex
	nextID         int64
	complaints     map[string]complaint.Complaint
	complaintOrder []string
	votes          map[string][]vote.Vote
	requests       map[string]fund.Request
	requestOrder   []string
	pool           *fund.Pool
}

var _ storage.ComplaintStore = (*Store)(nil)
var _ storage.VoteStore = (*Store)(nil)
var _ storage.FundRequestStore = (*Store)(nil)
var _ storage.FundPoolStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:     1,
		complaints: make(map[string]complaint.Complaint),
		votes:      make(map[string][]vote.Vote),
		requests:   make(map[string]fund.Request),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ComplaintStore implementation ----------------------------------------------

func (s *Store) CreateComplaint(_ context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.complaints[c.ID]; exists {
		return complaint.Complaint{}, fmt.Errorf("complaint %s already exists", c.ID)
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.VotedBy = append([]string(nil), c.VotedBy...)

	s.complaints[c.ID] = c
	s.complaintOrder = append(s.complaintOrder, c.ID)
	return cloneComplaint(c), nil
}

func (s *Store) UpdateComplaint(_ context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.complaints[c.ID]
	if !ok {
		return complaint.Complaint{}, fmt.Errorf("complaint %s: %w", c.ID, storage.ErrNotFound)
	}

	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	c.VotedBy = append([]string(nil), c.VotedBy...)

	s.complaints[c.ID] = c
	return cloneComplaint(c), nil
}

func (s *Store) GetComplaint(_ context.Context, id string) (complaint.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.complaints[id]
	if !ok {
		return complaint.Complaint{}, fmt.Errorf("complaint %s: %w", id, storage.ErrNotFound)
	}
	return cloneComplaint(c), nil
}

func (s *Store) ListComplaints(_ context.Context) ([]complaint.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]complaint.Complaint, 0, len(s.complaintOrder))
	for i := len(s.complaintOrder) - 1; i >= 0; i-- {
		result = append(result, cloneComplaint(s.complaints[s.complaintOrder[i]]))
	}
	return result, nil
}

// VoteStore implementation -----------------------------------------------------

func (s *Store) CreateVote(_ context.Context, v vote.Vote) (vote.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = s.nextIDLocked()
	}
	v.CreatedAt = time.Now().UTC()

	s.votes[v.ComplaintID] = append(s.votes[v.ComplaintID], v)
	return v, nil
}

func (s *Store) ListVotes(_ context.Context, complaintID string) ([]vote.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]vote.Vote(nil), s.votes[complaintID]...), nil
}

// FundRequestStore implementation ---------------------------------------------

func (s *Store) CreateFundRequest(_ context.Context, req fund.Request) (fund.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	} else if _, exists := s.requests[req.ID]; exists {
		return fund.Request{}, fmt.Errorf("fund request %s already exists", req.ID)
	}

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	s.requests[req.ID] = req
	s.requestOrder = append(s.requestOrder, req.ID)
	return req, nil
}

func (s *Store) UpdateFundRequest(_ context.Context, req fund.Request) (fund.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.requests[req.ID]
	if !ok {
		return fund.Request{}, fmt.Errorf("fund request %s: %w", req.ID, storage.ErrNotFound)
	}

	req.CreatedAt = original.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) GetFundRequest(_ context.Context, id string) (fund.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return fund.Request{}, fmt.Errorf("fund request %s: %w", id, storage.ErrNotFound)
	}
	return req, nil
}

func (s *Store) ListFundRequests(_ context.Context) ([]fund.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]fund.Request, 0, len(s.requestOrder))
	for i := len(s.requestOrder) - 1; i >= 0; i-- {
		result = append(result, s.requests[s.requestOrder[i]])
	}
	return result, nil
}

// FundPoolStore implementation --------------------------------------------------

func (s *Store) EnsurePool(_ context.Context, initialTotal float64) (fund.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		now := time.Now().UTC()
		s.pool = &fund.Pool{Total: initialTotal, CreatedAt: now, UpdatedAt: now}
	}
	return clonePool(*s.pool), nil
}

func (s *Store) GetPool(_ context.Context) (fund.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pool == nil {
		return fund.Pool{}, fmt.Errorf("fund pool: %w", storage.ErrNotFound)
	}
	return clonePool(*s.pool), nil
}

func (s *Store) DebitPool(_ context.Context, amount float64, complaintRef, note string) (fund.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		return fund.Pool{}, fmt.Errorf("fund pool: %w", storage.ErrNotFound)
	}
	if amount > s.pool.Total {
		return fund.Pool{}, fund.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	s.pool.Total -= amount
	s.pool.UpdatedAt = now
	s.pool.History = append(s.pool.History, fund.PoolEntry{
		Timestamp:   now,
		ComplaintID: complaintRef,
		Amount:      amount,
		Note:        note,
	})
	return clonePool(*s.pool), nil
}

func (s *Store) CreditPool(_ context.Context, amount float64, complaintRef, note string) (fund.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		return fund.Pool{}, fmt.Errorf("fund pool: %w", storage.ErrNotFound)
	}

	now := time.Now().UTC()
	s.pool.Total += amount
	s.pool.UpdatedAt = now
	s.pool.History = append(s.pool.History, fund.PoolEntry{
		Timestamp:   now,
		ComplaintID: complaintRef,
		Amount:      -amount,
		Note:        note,
	})
	return clonePool(*s.pool), nil
}

// Helpers ----------------------------------------------------------------------

func cloneComplaint(c complaint.Complaint) complaint.Complaint {
	c.VotedBy = append([]string(nil), c.VotedBy...)
	return c
}

func clonePool(p fund.Pool) fund.Pool {
	p.History = append([]fund.PoolEntry(nil), p.History...)
	return p
}
