package fund

import "testing"

func TestRequestStatusTransitions(t *testing.T) {
	cases := []struct {
		from RequestStatus
		to   RequestStatus
		want bool
	}{
		{StatusRequested, StatusApproved, true},
		{StatusRequested, StatusReleased, true},
		{StatusApproved, StatusReleased, true},
		{StatusApproved, StatusRequested, false},
		{StatusReleased, StatusRequested, false},
		{StatusReleased, StatusApproved, false},
		{StatusReleased, StatusReleased, false},
		{StatusRequested, RequestStatus("Burned"), false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%q -> %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRequestStatusValid(t *testing.T) {
	for _, s := range []RequestStatus{StatusRequested, StatusApproved, StatusReleased} {
		if !s.Valid() {
			t.Errorf("Valid(%q) = false, want true", s)
		}
	}
	if RequestStatus("Pending").Valid() {
		t.Error("Valid(\"Pending\") = true, want false")
	}
}
