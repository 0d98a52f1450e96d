package storage

import (
	"context"
	"errors"

	"github.com/blockfix/backend/internal/app/domain/complaint"
	"github.com/blockfix/backend/internal/app/domain/fund"
	"github.com/blockfix/backend/internal/app/domain/vote"
)

// ErrNotFound is returned by every backend when a referenced record is
// absent. Callers branch with errors.Is regardless of the store in use.
var ErrNotFound = errors.New("record not found")

// ComplaintStore persists complaint records.
type ComplaintStore interface {
	CreateComplaint(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error)
	UpdateComplaint(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error)
	GetComplaint(ctx context.Context, id string) (complaint.Complaint, error)
	// ListComplaints returns complaints newest first.
	ListComplaints(ctx context.Context) ([]complaint.Complaint, error)
}

// VoteStore persists the append-only vote audit trail.
type VoteStore interface {
	CreateVote(ctx context.Context, v vote.Vote) (vote.Vote, error)
	ListVotes(ctx context.Context, complaintID string) ([]vote.Vote, error)
}

// FundRequestStore persists fund requests.
type FundRequestStore interface {
	CreateFundRequest(ctx context.Context, req fund.Request) (fund.Request, error)
	UpdateFundRequest(ctx context.Context, req fund.Request) (fund.Request, error)
	GetFundRequest(ctx context.Context, id string) (fund.Request, error)
	// ListFundRequests returns requests newest first.
	ListFundRequests(ctx context.Context) ([]fund.Request, error)
}

// FundPoolStore persists the singleton pool ledger. DebitPool and CreditPool
// carry the atomicity requirement: the balance change and its history entry
// commit together or not at all.
type FundPoolStore interface {
	// EnsurePool creates the singleton with the given balance if absent and
	// returns the current pool either way.
	EnsurePool(ctx context.Context, initialTotal float64) (fund.Pool, error)
	GetPool(ctx context.Context) (fund.Pool, error)
	// DebitPool decrements the balance and appends one history entry. It
	// fails with fund.ErrInsufficientFunds, mutating nothing, when amount
	// exceeds the current total.
	DebitPool(ctx context.Context, amount float64, complaintRef, note string) (fund.Pool, error)
	// CreditPool restores a debited amount. It exists solely so a caller can
	// compensate when a write that depends on a successful debit fails.
	CreditPool(ctx context.Context, amount float64, complaintRef, note string) (fund.Pool, error)
}
