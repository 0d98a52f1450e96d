package complaint

import (
	"errors"
	"time"
)

// Status places a complaint within its lifecycle. The wire values are kept
// verbatim for compatibility with existing clients.
type Status string

const (
	StatusPending       Status = "Pending"
	StatusVerified      Status = "Verified by Community"
	StatusSolved        Status = "Solved by Vendor"
	StatusConfirmed     Status = "Confirmed by Student"
	StatusFundsReleased Status = "Funds Released"
)

// statusRank orders the lifecycle. Transitions may skip stages but never move
// backwards; StatusFundsReleased is terminal.
var statusRank = map[Status]int{
	StatusPending:       0,
	StatusVerified:      1,
	StatusSolved:        2,
	StatusConfirmed:     3,
	StatusFundsReleased: 4,
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether moving from s to next respects the
// forward-only lifecycle.
func (s Status) CanTransition(next Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Domain-rule violations surfaced to callers. They are idempotent: retrying
// with the same input yields the same error and no mutation.
var (
	ErrAlreadyVoted      = errors.New("registration number has already voted on this complaint")
	ErrAlreadyConfirmed  = errors.New("complaint already confirmed by student")
	ErrNotYetSolved      = errors.New("vendor has not marked the complaint solved")
	ErrInvalidTransition = errors.New("complaint status transition not allowed")
)

// Complaint represents one reported civic-infrastructure issue.
type Complaint struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	Location         string    `json:"location"`
	PhotoRef         string    `json:"photo,omitempty"`
	RegNo            string    `json:"regNo"`
	Name             string    `json:"name,omitempty"`
	Status           Status    `json:"status"`
	Sensitive        bool      `json:"sensitive"`
	Votes            int       `json:"votes"`
	VotedBy          []string  `json:"votedBy"`
	AdminSetAmount   float64   `json:"adminSetAmount"`
	VendorAssigned   string    `json:"vendorAssigned,omitempty"`
	VendorProof      string    `json:"vendorProof,omitempty"`
	VendorNote       string    `json:"vendorNote,omitempty"`
	VendorName       string    `json:"vendorName,omitempty"`
	SolvedByVendor   bool      `json:"solvedByVendor"`
	StudentConfirmed bool      `json:"studentConfirmed"`
	FundsReleased    bool      `json:"fundsReleased"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// HasVoted reports whether regNo already appears in the voter set.
func (c Complaint) HasVoted(regNo string) bool {
	for _, v := range c.VotedBy {
		if v == regNo {
			return true
		}
	}
	return false
}

// Update carries the admin-mutable fields. Nil pointers leave the field
// untouched. Vote tallies and the confirmation/release flags are deliberately
// absent: they are owned by the lifecycle state machine.
type Update struct {
	Status         *Status
	AdminSetAmount *float64
	VendorAssigned *string
	VendorName     *string
	VendorNote     *string
	Sensitive      *bool
}
