// Package complaints implements the complaint lifecycle state machine:
// submission, community voting, vendor proof, admin updates and student
// confirmation with automatic fund release.
package complaints

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blockfix/backend/internal/app/domain/complaint"
	"github.com/blockfix/backend/internal/app/domain/fund"
	"github.com/blockfix/backend/internal/app/domain/vote"
	"github.com/blockfix/backend/internal/app/keylock"
	"github.com/blockfix/backend/internal/app/metrics"
	"github.com/blockfix/backend/internal/app/services/funds"
	"github.com/blockfix/backend/internal/app/storage"
	"github.com/blockfix/backend/pkg/logger"
)

// Validation failures for caller-supplied fields.
var (
	ErrMissingRegNo   = errors.New("regNo is required")
	ErrMissingProof   = errors.New("proof reference is required")
	ErrNegativeAmount = errors.New("adminSetAmount cannot be negative")
	ErrUnknownStatus  = errors.New("unknown complaint status")
)

// Config carries the business constants of the lifecycle. Zero values fall
// back to the historical defaults.
type Config struct {
	// VoteThreshold is the unique-vote count at which a non-sensitive
	// complaint becomes community-verified.
	VoteThreshold int
	// DefaultAward is the compensation used when the admin never set an
	// amount (a stored amount of 0 means "unset").
	DefaultAward float64
}

const (
	defaultVoteThreshold = 3
	defaultAward         = 1000
)

// Service owns complaint state and orchestrates the funds service on
// confirmation.
type Service struct {
	store storage.ComplaintStore
	votes storage.VoteStore
	funds *funds.Service
	cfg   Config
	log   *logger.Logger
	locks *keylock.KeyedMutex
}

// New constructs a complaints service. locks must be the same instance the
// funds service writes complaints under; a nil value gets a fresh one.
func New(store storage.ComplaintStore, votes storage.VoteStore, fundsSvc *funds.Service, locks *keylock.KeyedMutex, cfg Config, log *logger.Logger) *Service {
	if cfg.VoteThreshold <= 0 {
		cfg.VoteThreshold = defaultVoteThreshold
	}
	if cfg.DefaultAward <= 0 {
		cfg.DefaultAward = defaultAward
	}
	if locks == nil {
		locks = keylock.New()
	}
	if log == nil {
		log = logger.NewDefault("complaints")
	}
	return &Service{
		store: store,
		votes: votes,
		funds: fundsSvc,
		cfg:   cfg,
		log:   log,
		locks: locks,
	}
}

// SubmitInput carries the student-supplied fields of a new complaint.
type SubmitInput struct {
	Subject     string
	Description string
	Category    string
	Location    string
	PhotoRef    string
	Name        string
	RegNo       string
	Sensitive   bool
}

// Submit creates a complaint in Pending status with an empty voter set.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (complaint.Complaint, error) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = "(no subject)"
	}

	c, err := s.store.CreateComplaint(ctx, complaint.Complaint{
		Subject:     subject,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		PhotoRef:    in.PhotoRef,
		Name:        in.Name,
		RegNo:       in.RegNo,
		Status:      complaint.StatusPending,
		Sensitive:   in.Sensitive,
		VotedBy:     []string{},
	})
	if err != nil {
		return complaint.Complaint{}, err
	}

	metrics.RecordComplaintSubmitted()
	s.log.WithField("complaint_id", c.ID).
		WithField("reg_no", c.RegNo).
		WithField("sensitive", c.Sensitive).
		Info("complaint submitted")
	return c, nil
}

// List returns all complaints, newest first.
func (s *Service) List(ctx context.Context) ([]complaint.Complaint, error) {
	return s.store.ListComplaints(ctx)
}

// Get returns a single complaint.
func (s *Service) Get(ctx context.Context, id string) (complaint.Complaint, error) {
	return s.store.GetComplaint(ctx, id)
}

// Vote records one vote by regNo. A repeat vote fails with
// complaint.ErrAlreadyVoted and leaves the tally untouched. Reaching the
// threshold promotes a non-sensitive complaint to community-verified.
func (s *Service) Vote(ctx context.Context, id, regNo string) (int, complaint.Complaint, error) {
	regNo = strings.TrimSpace(regNo)
	if regNo == "" {
		return 0, complaint.Complaint{}, ErrMissingRegNo
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.store.GetComplaint(ctx, id)
	if err != nil {
		return 0, complaint.Complaint{}, err
	}
	if c.HasVoted(regNo) {
		return c.Votes, complaint.Complaint{}, complaint.ErrAlreadyVoted
	}

	c.VotedBy = append(c.VotedBy, regNo)
	c.Votes = len(c.VotedBy)
	if c.Votes >= s.cfg.VoteThreshold && !c.Sensitive && c.Status.CanTransition(complaint.StatusVerified) {
		c.Status = complaint.StatusVerified
		s.log.WithField("complaint_id", id).
			WithField("votes", c.Votes).
			Info("complaint verified by community")
	}

	c, err = s.store.UpdateComplaint(ctx, c)
	if err != nil {
		return 0, complaint.Complaint{}, err
	}
	metrics.RecordVote()

	// Audit trail only; the complaint's voter set stays authoritative, so a
	// failed write is reported but never unwinds the vote.
	if _, err := s.votes.CreateVote(ctx, vote.Vote{ComplaintID: id, RegNo: regNo}); err != nil {
		metrics.RecordVoteAuditFailure()
		s.log.WithError(err).WithField("complaint_id", id).Warn("vote audit record not persisted")
	}

	return c.Votes, c, nil
}

// AttachProof records vendor resolution evidence and moves the complaint to
// solved-by-vendor.
func (s *Service) AttachProof(ctx context.Context, id, proofRef, note, vendorName string) (complaint.Complaint, error) {
	if strings.TrimSpace(proofRef) == "" {
		return complaint.Complaint{}, ErrMissingProof
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.store.GetComplaint(ctx, id)
	if err != nil {
		return complaint.Complaint{}, err
	}

	c.VendorProof = proofRef
	c.VendorNote = note
	c.VendorName = vendorName
	c.SolvedByVendor = true
	if c.Status.CanTransition(complaint.StatusSolved) {
		c.Status = complaint.StatusSolved
	}

	c, err = s.store.UpdateComplaint(ctx, c)
	if err != nil {
		return complaint.Complaint{}, err
	}
	s.log.WithField("complaint_id", id).
		WithField("vendor", vendorName).
		Info("vendor proof attached")
	return c, nil
}

// Update applies an admin partial update. Only allow-listed fields are
// mutable and a status override must move forward through the lifecycle.
func (s *Service) Update(ctx context.Context, id string, upd complaint.Update) (complaint.Complaint, error) {
	if upd.AdminSetAmount != nil && *upd.AdminSetAmount < 0 {
		return complaint.Complaint{}, ErrNegativeAmount
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return complaint.Complaint{}, fmt.Errorf("%w %q", ErrUnknownStatus, *upd.Status)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.store.GetComplaint(ctx, id)
	if err != nil {
		return complaint.Complaint{}, err
	}

	if upd.Status != nil && *upd.Status != c.Status {
		if !c.Status.CanTransition(*upd.Status) {
			return complaint.Complaint{}, fmt.Errorf("%s -> %s: %w", c.Status, *upd.Status, complaint.ErrInvalidTransition)
		}
		c.Status = *upd.Status
	}
	if upd.AdminSetAmount != nil {
		c.AdminSetAmount = *upd.AdminSetAmount
	}
	if upd.VendorAssigned != nil {
		c.VendorAssigned = *upd.VendorAssigned
	}
	if upd.VendorName != nil {
		c.VendorName = *upd.VendorName
	}
	if upd.VendorNote != nil {
		c.VendorNote = *upd.VendorNote
	}
	if upd.Sensitive != nil {
		c.Sensitive = *upd.Sensitive
	}

	c, err = s.store.UpdateComplaint(ctx, c)
	if err != nil {
		return complaint.Complaint{}, err
	}
	s.log.WithField("complaint_id", id).Info("complaint updated")
	return c, nil
}

// ConfirmResult is the outcome of a student confirmation. Request is nil only
// when no funds service is attached.
type ConfirmResult struct {
	Complaint complaint.Complaint
	Request   *fund.Request
	Pool      fund.Pool
	// Released reports whether the debit went through; false means the pool
	// could not cover the amount and the request stays pending.
	Released bool
}

// Confirm marks the complaint confirmed by its submitter and attempts the
// automatic fund release. With a sufficient pool the complaint ends at
// funds-released; otherwise it stays confirmed with a pending fund request.
func (s *Service) Confirm(ctx context.Context, id string) (ConfirmResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.store.GetComplaint(ctx, id)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !c.SolvedByVendor {
		return ConfirmResult{}, complaint.ErrNotYetSolved
	}
	if c.StudentConfirmed {
		return ConfirmResult{}, complaint.ErrAlreadyConfirmed
	}
	// A complaint paid out through the manual release path is terminal;
	// confirming it would regress the status and debit the pool again.
	if c.FundsReleased || !c.Status.CanTransition(complaint.StatusConfirmed) {
		return ConfirmResult{}, fmt.Errorf("%s -> %s: %w", c.Status, complaint.StatusConfirmed, complaint.ErrInvalidTransition)
	}

	c.StudentConfirmed = true
	c.Status = complaint.StatusConfirmed
	c, err = s.store.UpdateComplaint(ctx, c)
	if err != nil {
		return ConfirmResult{}, err
	}
	s.log.WithField("complaint_id", id).Info("complaint confirmed by student")

	amount := c.AdminSetAmount
	if amount <= 0 {
		amount = s.cfg.DefaultAward
	}

	req, pool, err := s.funds.Release(ctx, id, amount, "Auto pay for "+id)
	if err != nil {
		if errors.Is(err, fund.ErrInsufficientFunds) {
			// Recoverable: the request stays Requested for later manual
			// release and the complaint remains at confirmed.
			return ConfirmResult{Complaint: c, Request: &req, Pool: pool}, nil
		}
		return ConfirmResult{}, err
	}

	// The release marked the complaint; re-read so the caller sees the final
	// state.
	c, err = s.store.GetComplaint(ctx, id)
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{Complaint: c, Request: &req, Pool: pool, Released: true}, nil
}
