package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/blockfix/backend/internal/app/domain/complaint"
	"github.com/blockfix/backend/internal/app/domain/fund"
	"github.com/blockfix/backend/internal/app/domain/vote"
	"github.com/blockfix/backend/internal/app/storage"
)

// poolID pins the singleton ledger row.
const poolID = 1

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.ComplaintStore = (*Store)(nil)
var _ storage.VoteStore = (*Store)(nil)
var _ storage.FundRequestStore = (*Store)(nil)
var _ storage.FundPoolStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return err
}

// --- ComplaintStore ----------------------------------------------------------

const complaintColumns = `id, subject, description, category, location, photo_ref, reg_no, name,
	status, sensitive, votes, voted_by, admin_set_amount, vendor_assigned, vendor_proof,
	vendor_note, vendor_name, solved_by_vendor, student_confirmed, funds_released,
	created_at, updated_at`

func (s *Store) CreateComplaint(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO complaints (`+complaintColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`, c.ID, c.Subject, c.Description, c.Category, c.Location, c.PhotoRef, c.RegNo, c.Name,
		string(c.Status), c.Sensitive, c.Votes, pq.Array(c.VotedBy), c.AdminSetAmount,
		c.VendorAssigned, c.VendorProof, c.VendorNote, c.VendorName,
		c.SolvedByVendor, c.StudentConfirmed, c.FundsReleased, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return complaint.Complaint{}, err
	}
	return c, nil
}

func (s *Store) UpdateComplaint(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	existing, err := s.GetComplaint(ctx, c.ID)
	if err != nil {
		return complaint.Complaint{}, err
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE complaints
		SET subject = $2, description = $3, category = $4, location = $5, photo_ref = $6,
			reg_no = $7, name = $8, status = $9, sensitive = $10, votes = $11, voted_by = $12,
			admin_set_amount = $13, vendor_assigned = $14, vendor_proof = $15, vendor_note = $16,
			vendor_name = $17, solved_by_vendor = $18, student_confirmed = $19, funds_released = $20,
			updated_at = $21
		WHERE id = $1
	`, c.ID, c.Subject, c.Description, c.Category, c.Location, c.PhotoRef, c.RegNo, c.Name,
		string(c.Status), c.Sensitive, c.Votes, pq.Array(c.VotedBy), c.AdminSetAmount,
		c.VendorAssigned, c.VendorProof, c.VendorNote, c.VendorName,
		c.SolvedByVendor, c.StudentConfirmed, c.FundsReleased, c.UpdatedAt)
	if err != nil {
		return complaint.Complaint{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return complaint.Complaint{}, fmt.Errorf("complaint %s: %w", c.ID, storage.ErrNotFound)
	}
	return c, nil
}

func scanComplaint(scan func(dest ...any) error) (complaint.Complaint, error) {
	var (
		c      complaint.Complaint
		status string
	)
	err := scan(&c.ID, &c.Subject, &c.Description, &c.Category, &c.Location, &c.PhotoRef,
		&c.RegNo, &c.Name, &status, &c.Sensitive, &c.Votes, pq.Array(&c.VotedBy),
		&c.AdminSetAmount, &c.VendorAssigned, &c.VendorProof, &c.VendorNote, &c.VendorName,
		&c.SolvedByVendor, &c.StudentConfirmed, &c.FundsReleased, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return complaint.Complaint{}, err
	}
	c.Status = complaint.Status(status)
	return c, nil
}

func (s *Store) GetComplaint(ctx context.Context, id string) (complaint.Complaint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		WHERE id = $1
	`, id)

	c, err := scanComplaint(row.Scan)
	if err != nil {
		return complaint.Complaint{}, notFound(err, "complaint", id)
	}
	return c, nil
}

func (s *Store) ListComplaints(ctx context.Context) ([]complaint.Complaint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []complaint.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// --- VoteStore ---------------------------------------------------------------

func (s *Store) CreateVote(ctx context.Context, v vote.Vote) (vote.Vote, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (id, complaint_id, reg_no, created_at)
		VALUES ($1, $2, $3, $4)
	`, v.ID, v.ComplaintID, v.RegNo, v.CreatedAt)
	if err != nil {
		return vote.Vote{}, err
	}
	return v, nil
}

func (s *Store) ListVotes(ctx context.Context, complaintID string) ([]vote.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, complaint_id, reg_no, created_at
		FROM votes
		WHERE complaint_id = $1
		ORDER BY created_at
	`, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []vote.Vote
	for rows.Next() {
		var v vote.Vote
		if err := rows.Scan(&v.ID, &v.ComplaintID, &v.RegNo, &v.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// --- FundRequestStore --------------------------------------------------------

func (s *Store) CreateFundRequest(ctx context.Context, req fund.Request) (fund.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fund_requests (id, complaint_id, amount, status, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, req.ID, req.ComplaintID, req.Amount, string(req.Status), req.Note, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fund.Request{}, err
	}
	return req, nil
}

func (s *Store) UpdateFundRequest(ctx context.Context, req fund.Request) (fund.Request, error) {
	existing, err := s.GetFundRequest(ctx, req.ID)
	if err != nil {
		return fund.Request{}, err
	}

	req.ComplaintID = existing.ComplaintID
	req.CreatedAt = existing.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE fund_requests
		SET amount = $2, status = $3, note = $4, updated_at = $5
		WHERE id = $1
	`, req.ID, req.Amount, string(req.Status), req.Note, req.UpdatedAt)
	if err != nil {
		return fund.Request{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fund.Request{}, fmt.Errorf("fund request %s: %w", req.ID, storage.ErrNotFound)
	}
	return req, nil
}

func (s *Store) GetFundRequest(ctx context.Context, id string) (fund.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, complaint_id, amount, status, note, created_at, updated_at
		FROM fund_requests
		WHERE id = $1
	`, id)

	var (
		req    fund.Request
		status string
	)
	if err := row.Scan(&req.ID, &req.ComplaintID, &req.Amount, &status, &req.Note, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return fund.Request{}, notFound(err, "fund request", id)
	}
	req.Status = fund.RequestStatus(status)
	return req, nil
}

func (s *Store) ListFundRequests(ctx context.Context) ([]fund.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, complaint_id, amount, status, note, created_at, updated_at
		FROM fund_requests
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []fund.Request
	for rows.Next() {
		var (
			req    fund.Request
			status string
		)
		if err := rows.Scan(&req.ID, &req.ComplaintID, &req.Amount, &status, &req.Note, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		req.Status = fund.RequestStatus(status)
		result = append(result, req)
	}
	return result, rows.Err()
}

// --- FundPoolStore -----------------------------------------------------------

func (s *Store) EnsurePool(ctx context.Context, initialTotal float64) (fund.Pool, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fund_pool (id, total, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO NOTHING
	`, poolID, initialTotal, now)
	if err != nil {
		return fund.Pool{}, err
	}
	return s.GetPool(ctx)
}

func (s *Store) GetPool(ctx context.Context) (fund.Pool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT total, created_at, updated_at
		FROM fund_pool
		WHERE id = $1
	`, poolID)

	var p fund.Pool
	if err := row.Scan(&p.Total, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fund.Pool{}, notFound(err, "fund pool", "singleton")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT complaint_id, amount, note, created_at
		FROM fund_pool_history
		WHERE pool_id = $1
		ORDER BY created_at
	`, poolID)
	if err != nil {
		return fund.Pool{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry fund.PoolEntry
		if err := rows.Scan(&entry.ComplaintID, &entry.Amount, &entry.Note, &entry.Timestamp); err != nil {
			return fund.Pool{}, err
		}
		p.History = append(p.History, entry)
	}
	return p, rows.Err()
}

// DebitPool performs the guarded decrement and the history append in one
// transaction. The WHERE total >= amount clause makes concurrent debits fail
// cleanly instead of racing the balance below zero.
func (s *Store) DebitPool(ctx context.Context, amount float64, complaintRef, note string) (fund.Pool, error) {
	return s.adjustPool(ctx, amount, -amount, complaintRef, note)
}

func (s *Store) CreditPool(ctx context.Context, amount float64, complaintRef, note string) (fund.Pool, error) {
	return s.adjustPool(ctx, 0, amount, complaintRef, note)
}

func (s *Store) adjustPool(ctx context.Context, required, delta float64, complaintRef, note string) (fund.Pool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fund.Pool{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE fund_pool
		SET total = total + $2, updated_at = $3
		WHERE id = $1 AND total >= $4
	`, poolID, delta, now, required)
	if err != nil {
		return fund.Pool{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM fund_pool WHERE id = $1)`, poolID).Scan(&exists); err != nil {
			return fund.Pool{}, err
		}
		if !exists {
			return fund.Pool{}, fmt.Errorf("fund pool: %w", storage.ErrNotFound)
		}
		return fund.Pool{}, fund.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fund_pool_history (pool_id, complaint_id, amount, note, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, poolID, complaintRef, -delta, note, now); err != nil {
		return fund.Pool{}, err
	}

	if err := tx.Commit(); err != nil {
		return fund.Pool{}, err
	}
	return s.GetPool(ctx)
}
