package types

import (
	"testing"
	"time"
)

func planStarted(daysAgo, lockDays int, status PlanStatus) *TreatmentPlan {
	start := time.Now().UTC().AddDate(0, 0, -daysAgo)
	return &TreatmentPlan{
		Status:           status,
		StartDate:        start,
		PlannedEndDate:   start.AddDate(0, 0, lockDays),
		LockDurationDays: lockDays,
	}
}

func TestPlanLockBoundary(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name    string
		daysAgo int
		want    bool
	}{
		{name: "day_0", daysAgo: 0, want: true},
		{name: "day_13", daysAgo: 13, want: true},
		{name: "day_14_unlocks", daysAgo: 14, want: false},
		{name: "day_15", daysAgo: 15, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := planStarted(tc.daysAgo, 14, PlanStatusActive)
			if got := p.IsLocked(now); got != tc.want {
				t.Fatalf("IsLocked at day %d = %v, want %v", tc.daysAgo, got, tc.want)
			}
		})
	}
}

func TestPlanLockIgnoresNonActive(t *testing.T) {
	p := planStarted(1, 21, PlanStatusAdjusted)
	if p.IsLocked(time.Now()) {
		t.Fatal("non-active plan must never be locked")
	}
	if got := p.DaysRemaining(time.Now()); got != 0 {
		t.Fatalf("DaysRemaining on non-active plan = %d, want 0", got)
	}
}

func TestPlanDaysRemaining(t *testing.T) {
	now := time.Now()

	p := planStarted(5, 21, PlanStatusActive)
	if got := p.DaysRemaining(now); got != 16 {
		t.Fatalf("DaysRemaining = %d, want 16", got)
	}
	if got := p.DaysElapsed(now); got != 5 {
		t.Fatalf("DaysElapsed = %d, want 5", got)
	}

	expired := planStarted(30, 21, PlanStatusActive)
	if got := expired.DaysRemaining(now); got != 0 {
		t.Fatalf("DaysRemaining past planned end = %d, want 0", got)
	}
}
