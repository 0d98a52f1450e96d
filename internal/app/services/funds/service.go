// Package funds implements the fund request manager and the pool ledger
// orchestration: request status transitions, the single debit per release,
// and the compensating rollback that keeps the debit, the request update and
// the complaint flags behaving as one unit.
package funds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/blockfix/backend/internal/app/domain/complaint"
	"github.com/blockfix/backend/internal/app/domain/fund"
	"github.com/blockfix/backend/internal/app/keylock"
	"github.com/blockfix/backend/internal/app/metrics"
	"github.com/blockfix/backend/internal/app/storage"
	"github.com/blockfix/backend/pkg/logger"
)

// Validation failures for caller-supplied fields.
var (
	ErrMissingComplaintID = errors.New("complaint id is required")
	ErrUnknownStatus      = errors.New("unknown fund request status")
)

// Service manages fund requests and every debit against the shared pool.
type Service struct {
	complaints storage.ComplaintStore
	store      storage.FundRequestStore
	pool       storage.FundPoolStore
	locks      *keylock.KeyedMutex
	log        *logger.Logger

	// releaseMu is the serialization point for the pool: the pool is a true
	// shared singleton, so release units (debit + request + complaint) must
	// not interleave.
	releaseMu sync.Mutex
}

// New constructs a funds service. locks must be the instance the complaints
// service locks complaints under; a nil value gets a fresh one.
func New(complaints storage.ComplaintStore, store storage.FundRequestStore, pool storage.FundPoolStore, locks *keylock.KeyedMutex, log *logger.Logger) *Service {
	if locks == nil {
		locks = keylock.New()
	}
	if log == nil {
		log = logger.NewDefault("funds")
	}
	return &Service{
		complaints: complaints,
		store:      store,
		pool:       pool,
		locks:      locks,
		log:        log,
	}
}

// Pool returns the current balance and debit history.
func (s *Service) Pool(ctx context.Context) (fund.Pool, error) {
	return s.pool.GetPool(ctx)
}

// CreateRequest registers a manual fund request in Requested status. The
// complaint must exist at creation time; later complaint mutation does not
// retroactively invalidate the request.
func (s *Service) CreateRequest(ctx context.Context, complaintID string, amount float64, note string) (fund.Request, error) {
	complaintID = strings.TrimSpace(complaintID)
	if complaintID == "" {
		return fund.Request{}, ErrMissingComplaintID
	}
	if amount <= 0 {
		return fund.Request{}, fund.ErrInvalidAmount
	}

	if _, err := s.complaints.GetComplaint(ctx, complaintID); err != nil {
		return fund.Request{}, err
	}

	req, err := s.store.CreateFundRequest(ctx, fund.Request{
		ComplaintID: complaintID,
		Amount:      amount,
		Status:      fund.StatusRequested,
		Note:        note,
	})
	if err != nil {
		return fund.Request{}, err
	}
	s.log.WithField("request_id", req.ID).
		WithField("complaint_id", complaintID).
		WithField("amount", amount).
		Info("fund request created")
	return req, nil
}

// List returns all fund requests, newest first.
func (s *Service) List(ctx context.Context) ([]fund.Request, error) {
	return s.store.ListFundRequests(ctx)
}

// Get returns a single fund request.
func (s *Service) Get(ctx context.Context, id string) (fund.Request, error) {
	return s.store.GetFundRequest(ctx, id)
}

// SetStatus moves a request along Requested -> Approved -> Released (Approved
// may be skipped). Transitioning to Released performs exactly one pool debit;
// on fund.ErrInsufficientFunds the request keeps its prior status.
func (s *Service) SetStatus(ctx context.Context, id string, next fund.RequestStatus) (fund.Request, error) {
	if !next.Valid() {
		return fund.Request{}, fmt.Errorf("%w %q", ErrUnknownStatus, next)
	}

	req, err := s.store.GetFundRequest(ctx, id)
	if err != nil {
		return fund.Request{}, err
	}

	// The release unit writes the linked complaint, so it must hold that
	// complaint's lock. Lock order matches the confirm path: complaint
	// lock first, then releaseMu.
	unlock := s.locks.Lock(req.ComplaintID)
	defer unlock()

	s.releaseMu.Lock()
	defer s.releaseMu.Unlock()

	req, err = s.store.GetFundRequest(ctx, id)
	if err != nil {
		return fund.Request{}, err
	}
	if !req.Status.CanTransition(next) {
		return fund.Request{}, fmt.Errorf("%s -> %s: %w", req.Status, next, fund.ErrInvalidTransition)
	}

	if next != fund.StatusReleased {
		req.Status = next
		updated, err := s.store.UpdateFundRequest(ctx, req)
		if err != nil {
			return fund.Request{}, err
		}
		s.log.WithField("request_id", id).WithField("status", next).Info("fund request status updated")
		return updated, nil
	}

	released, _, err := s.releaseLocked(ctx, req)
	return released, err
}

// Release is the auto-release path used on student confirmation: it creates a
// request for the complaint and immediately attempts the debit. The caller
// must already hold the complaint's lock. When the pool cannot cover the
// amount the freshly created request stays Requested and
// fund.ErrInsufficientFunds is returned alongside it.
func (s *Service) Release(ctx context.Context, complaintID string, amount float64, note string) (fund.Request, fund.Pool, error) {
	if amount <= 0 {
		return fund.Request{}, fund.Pool{}, fund.ErrInvalidAmount
	}

	s.releaseMu.Lock()
	defer s.releaseMu.Unlock()

	req, err := s.store.CreateFundRequest(ctx, fund.Request{
		ComplaintID: complaintID,
		Amount:      amount,
		Status:      fund.StatusRequested,
		Note:        note,
	})
	if err != nil {
		return fund.Request{}, fund.Pool{}, err
	}

	released, pool, err := s.releaseLocked(ctx, req)
	if err != nil {
		if errors.Is(err, fund.ErrInsufficientFunds) {
			if current, poolErr := s.pool.GetPool(ctx); poolErr == nil {
				pool = current
			}
		}
		return req, pool, err
	}
	return released, pool, nil
}

// releaseLocked performs the release unit: debit the pool, move the request
// to Released and mark the linked complaint. The debit itself is atomic in
// the store; the dependent writes compensate with a credit when they fail so
// a partial release never survives.
func (s *Service) releaseLocked(ctx context.Context, req fund.Request) (fund.Request, fund.Pool, error) {
	pool, err := s.pool.DebitPool(ctx, req.Amount, req.ComplaintID, req.Note)
	if err != nil {
		if errors.Is(err, fund.ErrInsufficientFunds) {
			metrics.RecordFundRelease(req.Amount, false)
			s.log.WithField("request_id", req.ID).
				WithField("amount", req.Amount).
				Warn("fund release refused: insufficient pool balance")
		}
		return fund.Request{}, fund.Pool{}, err
	}

	prior := req.Status
	req.Status = fund.StatusReleased
	updated, err := s.store.UpdateFundRequest(ctx, req)
	if err != nil {
		s.compensate(ctx, req, "request update failed after debit")
		return fund.Request{}, fund.Pool{}, err
	}

	if err := s.markComplaintReleased(ctx, req.ComplaintID); err != nil {
		req.Status = prior
		if _, revertErr := s.store.UpdateFundRequest(ctx, req); revertErr != nil {
			s.log.WithError(revertErr).WithField("request_id", req.ID).Error("revert fund request status failed")
		}
		s.compensate(ctx, req, "complaint update failed after debit")
		return fund.Request{}, fund.Pool{}, err
	}

	metrics.RecordFundRelease(req.Amount, true)
	s.log.WithField("request_id", req.ID).
		WithField("complaint_id", req.ComplaintID).
		WithField("amount", req.Amount).
		WithField("pool_total", pool.Total).
		Info("funds released")
	return updated, pool, nil
}

func (s *Service) markComplaintReleased(ctx context.Context, complaintID string) error {
	c, err := s.complaints.GetComplaint(ctx, complaintID)
	if err != nil {
		return err
	}
	c.FundsReleased = true
	c.Status = complaint.StatusFundsReleased
	_, err = s.complaints.UpdateComplaint(ctx, c)
	return err
}

func (s *Service) compensate(ctx context.Context, req fund.Request, reason string) {
	if _, err := s.pool.CreditPool(ctx, req.Amount, req.ComplaintID, "rollback: "+reason); err != nil {
		s.log.WithError(err).
			WithField("request_id", req.ID).
			WithField("amount", req.Amount).
			Error("compensating credit failed; pool and request disagree")
	}
}
