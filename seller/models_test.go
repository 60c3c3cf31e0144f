package seller

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusSuspended, false},
		{StatusApproved, StatusSuspended, true},
		{StatusApproved, StatusApproved, false},
		{StatusApproved, StatusRejected, false},
		{StatusSuspended, StatusApproved, true},
		{StatusSuspended, StatusRejected, false},
		{StatusRejected, StatusApproved, false},
		{StatusRejected, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+" to "+string(tt.to), func(t *testing.T) {
			s := &Seller{Status: tt.from}
			if got := s.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusApproved, false},
		{StatusSuspended, false},
		{StatusRejected, true},
	}

	for _, tt := range tests {
		s := &Seller{Status: tt.status}
		if got := s.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%s): got %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsActive(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusSuspended, StatusRejected} {
		s := &Seller{Status: status}
		if s.IsActive() {
			t.Errorf("IsActive(%s): got true, want false", status)
		}
	}
	s := &Seller{Status: StatusApproved}
	if !s.IsActive() {
		t.Error("IsActive(approved): got false, want true")
	}
}
