package campaign

import (
	"time"

	"github.com/reputul/reputul-backend/internal/models"
)

// NextFireTime computes when an execution's current step becomes due:
// the step's delay counted from the later of the execution start and
// the previous step's fire time. Skipped steps never move the basis,
// so a long-dormant execution fires its next real step relative to the
// last message actually sent.
func NextFireTime(exec *models.CampaignExecution, step *models.CampaignStep) time.Time {
	base := exec.StartedAt
	if exec.LastStepFiredAt != nil && exec.LastStepFiredAt.After(base) {
		base = *exec.LastStepFiredAt
	}
	return base.Add(time.Duration(step.DelayHours) * time.Hour)
}

// IsDue reports whether an execution's current step should run now.
// Inactive steps are due immediately; they advance without firing.
func IsDue(exec *models.CampaignExecution, step *models.CampaignStep, now time.Time) bool {
	if !step.IsActive {
		return true
	}
	return !now.Before(NextFireTime(exec, step))
}

// StepByNumber returns the step with the given 1-based number, or nil
func StepByNumber(steps []models.CampaignStep, n int) *models.CampaignStep {
	for i := range steps {
		if steps[i].StepNumber == n {
			return &steps[i]
		}
	}
	return nil
}

// CountActive returns how many steps in a sequence are active
func CountActive(steps []models.CampaignStep) int {
	n := 0
	for _, s := range steps {
		if s.IsActive {
			n++
		}
	}
	return n
}
