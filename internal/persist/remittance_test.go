package persist

import (
	"testing"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/model"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name         string
		paidAmount   float64
		netRequested float64
		allDenied    bool
		want         model.TimelineStatus
	}{
		{"full pay matches net exactly", 214.13, 214.13, false, model.StatusPaid},
		{"partial pay below net", 100, 214.13, false, model.StatusPartiallyPaid},
		{"all denied zero payment", 0, 214.13, true, model.StatusRejected},
		{"remittance before submission, net zero, payment present", 50, 0, false, model.StatusPartiallyPaid},
		{"zero net zero payment is a paid no-op claim", 0, 0, false, model.StatusPaid},
		{"overpayment falls to conservative default", 300, 214.13, false, model.StatusPartiallyPaid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := deriveStatus(tc.paidAmount, tc.netRequested, tc.allDenied)
			if got != tc.want {
				t.Fatalf("deriveStatus(%v, %v, %v) = %v, want %v", tc.paidAmount, tc.netRequested, tc.allDenied, got, tc.want)
			}
		})
	}
}

func TestCentsEqual(t *testing.T) {
	tests := []struct {
		a, b float64
		want bool
	}{
		{214.13, 214.13, true},
		{214.130001, 214.13, true},
		{214.13, 214.14, false},
		{0, 0, true},
		{100.50, 100.504, true},
	}
	for _, tc := range tests {
		if got := centsEqual(tc.a, tc.b); got != tc.want {
			t.Errorf("centsEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
