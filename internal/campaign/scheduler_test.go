package campaign

import (
	"testing"
	"time"

	"github.com/reputul/reputul-backend/internal/models"
	"pgregory.net/rapid"
)

func TestNextFireTime_FirstStepCountsFromStart(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	exec := &models.CampaignExecution{StartedAt: started}
	step := &models.CampaignStep{StepNumber: 1, DelayHours: 24, IsActive: true}

	got := NextFireTime(exec, step)
	want := started.Add(24 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("NextFireTime = %v, want %v", got, want)
	}
}

func TestNextFireTime_LaterStepsCountFromPreviousFire(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fired := started.Add(30 * time.Hour)
	exec := &models.CampaignExecution{StartedAt: started, LastStepFiredAt: &fired}
	step := &models.CampaignStep{StepNumber: 2, DelayHours: 48, IsActive: true}

	got := NextFireTime(exec, step)
	want := fired.Add(48 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("NextFireTime = %v, want %v", got, want)
	}
}

func TestNextFireTime_ZeroDelayDueImmediately(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	exec := &models.CampaignExecution{StartedAt: started}
	step := &models.CampaignStep{StepNumber: 1, DelayHours: 0, IsActive: true}

	if !IsDue(exec, step, time.Now()) {
		t.Error("zero-delay step must be due as soon as the execution starts")
	}
}

func TestIsDue_InactiveStepDueImmediately(t *testing.T) {
	exec := &models.CampaignExecution{StartedAt: time.Now()}
	step := &models.CampaignStep{StepNumber: 1, DelayHours: 720, IsActive: false}

	if !IsDue(exec, step, time.Now()) {
		t.Error("inactive step must be due immediately so the execution can advance past it")
	}
}

func TestIsDue_NotBeforeDelayElapses(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	exec := &models.CampaignExecution{StartedAt: started}
	step := &models.CampaignStep{StepNumber: 1, DelayHours: 24, IsActive: true}

	if IsDue(exec, step, started.Add(23*time.Hour)) {
		t.Error("step due before its delay elapsed")
	}
	if !IsDue(exec, step, started.Add(24*time.Hour)) {
		t.Error("step not due exactly at its fire time")
	}
}

func TestStepByNumber(t *testing.T) {
	steps := []models.CampaignStep{
		{StepNumber: 1}, {StepNumber: 2}, {StepNumber: 3},
	}
	if s := StepByNumber(steps, 2); s == nil || s.StepNumber != 2 {
		t.Errorf("StepByNumber(2) = %+v", s)
	}
	if s := StepByNumber(steps, 4); s != nil {
		t.Errorf("StepByNumber past end must be nil, got %+v", s)
	}
}

// TestProperty_NextFireTime_NeverBeforeBasis tests scheduling sanity
// *For any* execution and step, the fire time SHALL never precede the
// execution start or the previous step's fire time.
func TestProperty_NextFireTime_NeverBeforeBasis(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		started := time.Unix(rapid.Int64Range(1e9, 2e9).Draw(rt, "started"), 0)
		exec := &models.CampaignExecution{StartedAt: started}

		if rapid.Bool().Draw(rt, "hasFired") {
			fired := started.Add(time.Duration(rapid.IntRange(0, 1000).Draw(rt, "firedOffset")) * time.Hour)
			exec.LastStepFiredAt = &fired
		}

		step := &models.CampaignStep{
			StepNumber: rapid.IntRange(1, 10).Draw(rt, "stepNumber"),
			DelayHours: rapid.IntRange(0, 8760).Draw(rt, "delayHours"),
			IsActive:   true,
		}

		fireTime := NextFireTime(exec, step)
		if fireTime.Before(exec.StartedAt) {
			t.Fatalf("PROPERTY VIOLATION: fire time %v before start %v", fireTime, exec.StartedAt)
		}
		if exec.LastStepFiredAt != nil && fireTime.Before(*exec.LastStepFiredAt) {
			t.Fatalf("PROPERTY VIOLATION: fire time %v before previous fire %v", fireTime, *exec.LastStepFiredAt)
		}

		// Delay is honored relative to the later basis
		base := exec.StartedAt
		if exec.LastStepFiredAt != nil && exec.LastStepFiredAt.After(base) {
			base = *exec.LastStepFiredAt
		}
		if got := fireTime.Sub(base); got != time.Duration(step.DelayHours)*time.Hour {
			t.Fatalf("PROPERTY VIOLATION: delay %dh not honored, got %v", step.DelayHours, got)
		}
	})
}

func TestCountActive(t *testing.T) {
	steps := []models.CampaignStep{
		{StepNumber: 1, IsActive: true},
		{StepNumber: 2, IsActive: false},
		{StepNumber: 3, IsActive: true},
	}
	if n := CountActive(steps); n != 2 {
		t.Errorf("CountActive = %d, want 2", n)
	}
	if n := CountActive(nil); n != 0 {
		t.Errorf("CountActive(nil) = %d, want 0", n)
	}
}
