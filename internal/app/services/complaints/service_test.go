package complaints

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/blockfix/backend/internal/app/domain/complaint"
	"github.com/blockfix/backend/internal/app/domain/fund"
	"github.com/blockfix/backend/internal/app/keylock"
	"github.com/blockfix/backend/internal/app/services/funds"
	"github.com/blockfix/backend/internal/app/storage/memory"
)

func newTestService(t *testing.T, initialPool float64) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	if _, err := store.EnsurePool(context.Background(), initialPool); err != nil {
		t.Fatalf("EnsurePool: %v", err)
	}
	locks := keylock.New()
	fundsSvc := funds.New(store, store, store, locks, nil)
	return New(store, store, fundsSvc, locks, Config{}, nil), store
}

func submit(t *testing.T, svc *Service, in SubmitInput) complaint.Complaint {
	t.Helper()
	c, err := svc.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return c
}

func TestSubmitDefaults(t *testing.T) {
	svc, _ := newTestService(t, 20000)

	c := submit(t, svc, SubmitInput{Description: "water everywhere", RegNo: "RA100"})
	if c.Subject != "(no subject)" {
		t.Fatalf("subject = %q, want placeholder", c.Subject)
	}
	if c.Status != complaint.StatusPending {
		t.Fatalf("status = %q, want %q", c.Status, complaint.StatusPending)
	}
	if c.Votes != 0 || len(c.VotedBy) != 0 {
		t.Fatalf("new complaint must start with no votes: %+v", c)
	}
	if c.SolvedByVendor || c.StudentConfirmed || c.FundsReleased {
		t.Fatalf("new complaint must start with all flags clear: %+v", c)
	}
}

func TestVoteTallyMatchesVoterSet(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "dark corridor", RegNo: "RA100"})

	votes, updated, err := svc.Vote(ctx, c.ID, "RA200")
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if votes != 1 || len(updated.VotedBy) != 1 {
		t.Fatalf("votes = %d, votedBy = %v", votes, updated.VotedBy)
	}
	if updated.Status != complaint.StatusPending {
		t.Fatalf("status = %q, want Pending below threshold", updated.Status)
	}

	trail, err := store.ListVotes(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListVotes: %v", err)
	}
	if len(trail) != 1 || trail[0].RegNo != "RA200" {
		t.Fatalf("unexpected audit trail: %+v", trail)
	}
}

func TestVoteDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "dark corridor"})

	if _, _, err := svc.Vote(ctx, c.ID, "RA200"); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	votes, _, err := svc.Vote(ctx, c.ID, "RA200")
	if !errors.Is(err, complaint.ErrAlreadyVoted) {
		t.Fatalf("error = %v, want ErrAlreadyVoted", err)
	}
	if votes != 1 {
		t.Fatalf("tally after duplicate = %d, want 1", votes)
	}
}

func TestVoteRequiresRegNo(t *testing.T) {
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "dark corridor"})

	if _, _, err := svc.Vote(context.Background(), c.ID, "  "); !errors.Is(err, ErrMissingRegNo) {
		t.Fatalf("error = %v, want ErrMissingRegNo", err)
	}
}

func TestVoteThresholdVerifies(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "collapsed shelf"})

	var last complaint.Complaint
	for i := 0; i < 3; i++ {
		var err error
		_, last, err = svc.Vote(ctx, c.ID, fmt.Sprintf("RA%d", i))
		if err != nil {
			t.Fatalf("Vote %d: %v", i, err)
		}
	}
	if last.Status != complaint.StatusVerified {
		t.Fatalf("status = %q, want %q after third vote", last.Status, complaint.StatusVerified)
	}
}

func TestVoteSensitiveNeverAutoVerifies(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "harassment near gate", Sensitive: true})

	var last complaint.Complaint
	for i := 0; i < 5; i++ {
		var err error
		_, last, err = svc.Vote(ctx, c.ID, fmt.Sprintf("RA%d", i))
		if err != nil {
			t.Fatalf("Vote %d: %v", i, err)
		}
	}
	if last.Status != complaint.StatusPending {
		t.Fatalf("status = %q, want Pending for sensitive complaint", last.Status)
	}
	if last.Votes != 5 {
		t.Fatalf("votes = %d, want 5", last.Votes)
	}
}

func TestVoteNeverMovesStatusBackwards(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "jammed door"})

	if _, _, err := svc.Vote(ctx, c.ID, "RA0"); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if _, err := svc.AttachProof(ctx, c.ID, "photo-17", "hinge replaced", "CampusFix Ltd"); err != nil {
		t.Fatalf("AttachProof: %v", err)
	}

	// Late votes past the threshold must not drag a solved complaint back
	// to community-verified.
	var last complaint.Complaint
	for i := 1; i < 4; i++ {
		var err error
		_, last, err = svc.Vote(ctx, c.ID, fmt.Sprintf("RA%d", i))
		if err != nil {
			t.Fatalf("Vote %d: %v", i, err)
		}
	}
	if last.Status != complaint.StatusSolved {
		t.Fatalf("status = %q, want %q", last.Status, complaint.StatusSolved)
	}
}

func TestAttachProofRequiresReference(t *testing.T) {
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "jammed door"})

	if _, err := svc.AttachProof(context.Background(), c.ID, "", "note", "vendor"); !errors.Is(err, ErrMissingProof) {
		t.Fatalf("error = %v, want ErrMissingProof", err)
	}
}

func TestAttachProofMarksSolved(t *testing.T) {
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "jammed door"})

	updated, err := svc.AttachProof(context.Background(), c.ID, "photo-17", "hinge replaced", "CampusFix Ltd")
	if err != nil {
		t.Fatalf("AttachProof: %v", err)
	}
	if !updated.SolvedByVendor {
		t.Fatal("SolvedByVendor not set")
	}
	if updated.Status != complaint.StatusSolved {
		t.Fatalf("status = %q, want %q", updated.Status, complaint.StatusSolved)
	}
	if updated.VendorProof != "photo-17" || updated.VendorNote != "hinge replaced" || updated.VendorName != "CampusFix Ltd" {
		t.Fatalf("vendor fields not recorded: %+v", updated)
	}
}

func TestUpdateAppliesAllowListedFields(t *testing.T) {
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "flooded basement"})

	amount := 2500.0
	vendor := "PumpWorks"
	sensitive := true
	status := complaint.StatusVerified
	updated, err := svc.Update(context.Background(), c.ID, complaint.Update{
		Status:         &status,
		AdminSetAmount: &amount,
		VendorAssigned: &vendor,
		Sensitive:      &sensitive,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != complaint.StatusVerified {
		t.Fatalf("status = %q, want %q", updated.Status, complaint.StatusVerified)
	}
	if updated.AdminSetAmount != 2500 || updated.VendorAssigned != "PumpWorks" || !updated.Sensitive {
		t.Fatalf("fields not applied: %+v", updated)
	}
}

func TestUpdateRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "flooded basement"})

	negative := -10.0
	if _, err := svc.Update(ctx, c.ID, complaint.Update{AdminSetAmount: &negative}); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("error = %v, want ErrNegativeAmount", err)
	}

	bogus := complaint.Status("Archived")
	if _, err := svc.Update(ctx, c.ID, complaint.Update{Status: &bogus}); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("error = %v, want ErrUnknownStatus", err)
	}

	solved := complaint.StatusSolved
	if _, err := svc.Update(ctx, c.ID, complaint.Update{Status: &solved}); err != nil {
		t.Fatalf("Update to solved: %v", err)
	}
	back := complaint.StatusPending
	if _, err := svc.Update(ctx, c.ID, complaint.Update{Status: &back}); !errors.Is(err, complaint.ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
}

func TestConfirmRequiresVendorSolve(t *testing.T) {
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "broken bench"})

	if _, err := svc.Confirm(context.Background(), c.ID); !errors.Is(err, complaint.ErrNotYetSolved) {
		t.Fatalf("error = %v, want ErrNotYetSolved", err)
	}
}

func TestConfirmReleasesDefaultAward(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "broken bench"})

	if _, err := svc.AttachProof(ctx, c.ID, "photo-9", "", "CampusFix Ltd"); err != nil {
		t.Fatalf("AttachProof: %v", err)
	}

	result, err := svc.Confirm(ctx, c.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !result.Released {
		t.Fatal("expected funds to release")
	}
	if result.Complaint.Status != complaint.StatusFundsReleased || !result.Complaint.FundsReleased {
		t.Fatalf("complaint not finalised: %+v", result.Complaint)
	}
	if !result.Complaint.StudentConfirmed {
		t.Fatal("StudentConfirmed not set")
	}
	if result.Request == nil || result.Request.Status != fund.StatusReleased || result.Request.Amount != 1000 {
		t.Fatalf("unexpected request: %+v", result.Request)
	}
	if result.Pool.Total != 19000 {
		t.Fatalf("pool total = %v, want 19000", result.Pool.Total)
	}
	if len(result.Pool.History) != 1 || result.Pool.History[0].ComplaintID != c.ID {
		t.Fatalf("unexpected pool history: %+v", result.Pool.History)
	}

	stored, _ := store.GetComplaint(ctx, c.ID)
	if stored.Status != complaint.StatusFundsReleased {
		t.Fatalf("stored status = %q, want %q", stored.Status, complaint.StatusFundsReleased)
	}
}

func TestConfirmUsesAdminSetAmount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "broken bench"})

	amount := 2500.0
	if _, err := svc.Update(ctx, c.ID, complaint.Update{AdminSetAmount: &amount}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.AttachProof(ctx, c.ID, "photo-9", "", ""); err != nil {
		t.Fatalf("AttachProof: %v", err)
	}

	result, err := svc.Confirm(ctx, c.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Request.Amount != 2500 {
		t.Fatalf("award = %v, want 2500", result.Request.Amount)
	}
	if result.Pool.Total != 17500 {
		t.Fatalf("pool total = %v, want 17500", result.Pool.Total)
	}
}

func TestConfirmIsNotRepeatable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "broken bench"})

	if _, err := svc.AttachProof(ctx, c.ID, "photo-9", "", ""); err != nil {
		t.Fatalf("AttachProof: %v", err)
	}
	if _, err := svc.Confirm(ctx, c.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if _, err := svc.Confirm(ctx, c.ID); !errors.Is(err, complaint.ErrAlreadyConfirmed) {
		t.Fatalf("error = %v, want ErrAlreadyConfirmed", err)
	}

	// The duplicate confirmation must not debit the pool again.
	pool, err := svc.funds.Pool(ctx)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if pool.Total != 19000 || len(pool.History) != 1 {
		t.Fatalf("pool debited twice: total=%v history=%d", pool.Total, len(pool.History))
	}
}

func TestConfirmInsufficientFundsLeavesRequestPending(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 500)
	c := submit(t, svc, SubmitInput{Subject: "broken bench"})

	if _, err := svc.AttachProof(ctx, c.ID, "photo-9", "", ""); err != nil {
		t.Fatalf("AttachProof: %v", err)
	}

	result, err := svc.Confirm(ctx, c.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Released {
		t.Fatal("release must be refused with a 500 pool and a 1000 award")
	}
	if result.Complaint.Status != complaint.StatusConfirmed || !result.Complaint.StudentConfirmed {
		t.Fatalf("complaint must stay confirmed: %+v", result.Complaint)
	}
	if result.Complaint.FundsReleased {
		t.Fatal("FundsReleased must stay clear")
	}
	if result.Request == nil || result.Request.Status != fund.StatusRequested {
		t.Fatalf("request must stay pending: %+v", result.Request)
	}
	if result.Pool.Total != 500 || len(result.Pool.History) != 0 {
		t.Fatalf("pool mutated by refused release: %+v", result.Pool)
	}

	// A later top-up releases the surviving request via the manual path.
	if _, err := store.CreditPool(ctx, 1000, "", "budget top-up"); err != nil {
		t.Fatalf("CreditPool: %v", err)
	}
	released, err := svc.funds.SetStatus(ctx, result.Request.ID, fund.StatusReleased)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if released.Status != fund.StatusReleased {
		t.Fatalf("status = %q, want %q", released.Status, fund.StatusReleased)
	}
	final, _ := store.GetComplaint(ctx, c.ID)
	if !final.FundsReleased || final.Status != complaint.StatusFundsReleased {
		t.Fatalf("complaint not finalised after manual release: %+v", final)
	}
}

func TestConfirmAfterManualReleaseRejected(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "shattered noticeboard"})

	if _, err := svc.AttachProof(ctx, c.ID, "photo-2", "", "GlassPro"); err != nil {
		t.Fatalf("AttachProof: %v", err)
	}
	req, err := svc.funds.CreateRequest(ctx, c.ID, 1000, "manual claim")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, err := svc.funds.SetStatus(ctx, req.ID, fund.StatusReleased); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	// The complaint is already paid out; confirming it again must not
	// regress the status or debit the pool a second time.
	if _, err := svc.Confirm(ctx, c.ID); !errors.Is(err, complaint.ErrInvalidTransition) {
		t.Fatalf("Confirm error = %v, want ErrInvalidTransition", err)
	}

	pool, err := svc.funds.Pool(ctx)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if pool.Total != 19000 || len(pool.History) != 1 {
		t.Fatalf("paid-out complaint debited twice: total=%v history=%d", pool.Total, len(pool.History))
	}

	final, _ := store.GetComplaint(ctx, c.ID)
	if final.Status != complaint.StatusFundsReleased || !final.FundsReleased {
		t.Fatalf("terminal state regressed: %+v", final)
	}
	if final.StudentConfirmed {
		t.Fatal("rejected confirm must not mutate the complaint")
	}
}

func TestManualReleaseHoldsComplaintLock(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 20000)
	c := submit(t, svc, SubmitInput{Subject: "torn volleyball net"})

	if _, err := svc.AttachProof(ctx, c.ID, "photo-5", "", ""); err != nil {
		t.Fatalf("AttachProof: %v", err)
	}
	req, err := svc.funds.CreateRequest(ctx, c.ID, 1000, "")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	// While a complaint operation holds the per-complaint lock, a manual
	// release of the same complaint must wait instead of interleaving its
	// read-modify-write.
	unlock := svc.locks.Lock(c.ID)
	done := make(chan error, 1)
	go func() {
		_, err := svc.funds.SetStatus(ctx, req.ID, fund.StatusReleased)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("release committed while the complaint lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()

	if err := <-done; err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	final, _ := store.GetComplaint(ctx, c.ID)
	if !final.FundsReleased || final.Status != complaint.StatusFundsReleased {
		t.Fatalf("complaint not finalised after release: %+v", final)
	}
}
