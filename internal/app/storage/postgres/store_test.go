package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/blockfix/backend/internal/app/domain/fund"
	"github.com/blockfix/backend/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestDebitPoolSuccess(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fund_pool")).
		WithArgs(poolID, -500.0, sqlmock.AnyArg(), 500.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fund_pool_history")).
		WithArgs(poolID, "c-42", 500.0, "award", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT total, created_at, updated_at")).
		WithArgs(poolID).
		WillReturnRows(sqlmock.NewRows([]string{"total", "created_at", "updated_at"}).
			AddRow(19500.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fund_pool_history")).
		WithArgs(poolID).
		WillReturnRows(sqlmock.NewRows([]string{"complaint_id", "amount", "note", "created_at"}).
			AddRow("c-42", 500.0, "award", now))

	pool, err := store.DebitPool(context.Background(), 500, "c-42", "award")
	if err != nil {
		t.Fatalf("DebitPool: %v", err)
	}
	if pool.Total != 19500 {
		t.Fatalf("total = %v, want 19500", pool.Total)
	}
	if len(pool.History) != 1 || pool.History[0].ComplaintID != "c-42" || pool.History[0].Amount != 500 {
		t.Fatalf("unexpected history: %+v", pool.History)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDebitPoolInsufficient(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fund_pool")).
		WithArgs(poolID, -5000.0, sqlmock.AnyArg(), 5000.0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(poolID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := store.DebitPool(context.Background(), 5000, "c-42", "")
	if !errors.Is(err, fund.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDebitPoolMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fund_pool")).
		WithArgs(poolID, -100.0, sqlmock.AnyArg(), 100.0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(poolID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := store.DebitPool(context.Background(), 100, "c-42", "")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreditPoolRecordsNegativeEntry(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fund_pool")).
		WithArgs(poolID, 1000.0, sqlmock.AnyArg(), 0.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fund_pool_history")).
		WithArgs(poolID, "c-42", -1000.0, "rollback: complaint update failed after debit", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT total, created_at, updated_at")).
		WithArgs(poolID).
		WillReturnRows(sqlmock.NewRows([]string{"total", "created_at", "updated_at"}).
			AddRow(20000.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fund_pool_history")).
		WithArgs(poolID).
		WillReturnRows(sqlmock.NewRows([]string{"complaint_id", "amount", "note", "created_at"}))

	pool, err := store.CreditPool(context.Background(), 1000, "c-42", "rollback: complaint update failed after debit")
	if err != nil {
		t.Fatalf("CreditPool: %v", err)
	}
	if pool.Total != 20000 {
		t.Fatalf("total = %v, want 20000", pool.Total)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetFundRequestNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fund_requests")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "complaint_id", "amount", "status", "note", "created_at", "updated_at"}))

	_, err := store.GetFundRequest(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnsurePoolIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fund_pool")).
		WithArgs(poolID, 20000.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT total, created_at, updated_at")).
		WithArgs(poolID).
		WillReturnRows(sqlmock.NewRows([]string{"total", "created_at", "updated_at"}).
			AddRow(18000.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fund_pool_history")).
		WithArgs(poolID).
		WillReturnRows(sqlmock.NewRows([]string{"complaint_id", "amount", "note", "created_at"}))

	pool, err := store.EnsurePool(context.Background(), 20000)
	if err != nil {
		t.Fatalf("EnsurePool: %v", err)
	}
	if pool.Total != 18000 {
		t.Fatalf("total = %v, want the existing 18000 balance", pool.Total)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
