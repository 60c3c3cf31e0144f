package violation

import (
	"testing"

	"github.com/xraph/granary/types"
)

func TestCanResolveTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusNew, StatusWarned, true},
		{StatusNew, StatusAdjusted, true},
		{StatusNew, StatusSuspended, true},
		{StatusNew, StatusNew, false},
		{StatusWarned, StatusAdjusted, true},
		{StatusWarned, StatusSuspended, true},
		{StatusWarned, StatusNew, false},
		{StatusWarned, StatusWarned, false},
		{StatusAdjusted, StatusSuspended, false},
		{StatusAdjusted, StatusWarned, false},
		{StatusSuspended, StatusAdjusted, false},
		{StatusSuspended, StatusNew, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+" to "+string(tt.to), func(t *testing.T) {
			v := &Violation{Status: tt.from}
			if got := v.CanResolveTo(tt.to); got != tt.want {
				t.Errorf("CanResolveTo: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanResolveToUnknownStatus(t *testing.T) {
	v := &Violation{Status: StatusNew}
	if v.CanResolveTo(Status("escalated")) {
		t.Error("unknown status accepted as resolution")
	}
}

func TestIsOpen(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusNew, true},
		{StatusWarned, true},
		{StatusAdjusted, false},
		{StatusSuspended, false},
	}

	for _, tt := range tests {
		v := &Violation{Status: tt.status}
		if got := v.IsOpen(); got != tt.want {
			t.Errorf("IsOpen(%s): got %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestOveragePercent(t *testing.T) {
	tests := []struct {
		bps  int64
		want string
	}{
		{1, "0.01"},
		{100, "1.00"},
		{1250, "12.50"},
		{10000, "100.00"},
	}

	for _, tt := range tests {
		v := &Violation{
			ListedPrice:        types.USD(11250),
			CeilingAtDetection: types.USD(10000),
			OverageBps:         tt.bps,
		}
		if got := v.OveragePercent(); got != tt.want {
			t.Errorf("OveragePercent(%d): got %q, want %q", tt.bps, got, tt.want)
		}
	}
}
