package fund

import (
	"errors"
	"time"
)

// RequestStatus of a monetary claim against the pool.
type RequestStatus string

const (
	StatusRequested RequestStatus = "Requested"
	StatusApproved  RequestStatus = "Approved"
	StatusReleased  RequestStatus = "Released"
)

// allowedTransitions mirrors the request lifecycle: Approved may be skipped,
// Released is terminal.
var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusRequested: {StatusApproved, StatusReleased},
	StatusApproved:  {StatusReleased},
	StatusReleased:  nil,
}

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is allowed.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var (
	// ErrInsufficientFunds is a recoverable business condition: the debit was
	// refused and nothing was mutated.
	ErrInsufficientFunds = errors.New("insufficient fund pool balance")

	ErrInvalidTransition = errors.New("fund request status transition not allowed")
	ErrInvalidAmount     = errors.New("fund amount must be positive")
)

// Request is a monetary claim tied to a complaint.
type Request struct {
	ID          string        `json:"id"`
	ComplaintID string        `json:"complaintId"`
	Amount      float64       `json:"amount"`
	Status      RequestStatus `json:"status"`
	Note        string        `json:"note,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// PoolEntry is one debit recorded in the pool's append-only history.
type PoolEntry struct {
	Timestamp   time.Time `json:"date"`
	ComplaintID string    `json:"id"`
	Amount      float64   `json:"amount"`
	Note        string    `json:"note,omitempty"`
}

// Pool is the process-wide shared ledger. Total never goes negative; every
// debit pairs with exactly one history entry.
type Pool struct {
	Total     float64     `json:"total"`
	History   []PoolEntry `json:"history"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
