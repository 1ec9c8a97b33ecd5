package reconciler

import (
	"testing"
	"time"

	"github.com/reputul/reputul-backend/internal/models"
	"pgregory.net/rapid"
)

func newRequest() *models.ReviewRequest {
	return &models.ReviewRequest{Status: models.RequestStatusPending}
}

func event(typ string, ts int64) DeliveryEvent {
	return DeliveryEvent{Type: typ, ProviderMessageID: "msg-1", Timestamp: ts}
}

func TestApply_TransitionTable(t *testing.T) {
	now := time.Now().Unix()

	tests := []struct {
		name       string
		before     models.RequestStatus
		eventType  string
		wantOut    Outcome
		wantStatus models.RequestStatus
	}{
		{"processed from pending", models.RequestStatusPending, "processed", OutcomeApplied, models.RequestStatusSent},
		{"processed from sent ignored", models.RequestStatusSent, "processed", OutcomeIgnored, models.RequestStatusSent},
		{"delivered from pending", models.RequestStatusPending, "delivered", OutcomeApplied, models.RequestStatusDelivered},
		{"delivered from sent", models.RequestStatusSent, "delivered", OutcomeApplied, models.RequestStatusDelivered},
		{"delivered from opened ignored", models.RequestStatusOpened, "delivered", OutcomeIgnored, models.RequestStatusOpened},
		{"open from delivered", models.RequestStatusDelivered, "open", OutcomeApplied, models.RequestStatusOpened},
		{"open from clicked ignored", models.RequestStatusClicked, "open", OutcomeIgnored, models.RequestStatusClicked},
		{"open from completed ignored", models.RequestStatusCompleted, "open", OutcomeIgnored, models.RequestStatusCompleted},
		{"click from sent", models.RequestStatusSent, "click", OutcomeApplied, models.RequestStatusClicked},
		{"click from opened", models.RequestStatusOpened, "click", OutcomeApplied, models.RequestStatusClicked},
		{"click from completed ignored", models.RequestStatusCompleted, "click", OutcomeIgnored, models.RequestStatusCompleted},
		{"bounce from pending", models.RequestStatusPending, "bounce", OutcomeApplied, models.RequestStatusBounced},
		{"bounce from sent", models.RequestStatusSent, "bounce", OutcomeApplied, models.RequestStatusBounced},
		{"bounce after delivery ignored", models.RequestStatusDelivered, "bounce", OutcomeIgnored, models.RequestStatusDelivered},
		{"blocked from pending", models.RequestStatusPending, "blocked", OutcomeApplied, models.RequestStatusFailed},
		{"blocked from sent ignored", models.RequestStatusSent, "blocked", OutcomeIgnored, models.RequestStatusSent},
		{"dropped from pending", models.RequestStatusPending, "dropped", OutcomeApplied, models.RequestStatusFailed},
		{"deferred never changes state", models.RequestStatusSent, "deferred", OutcomeIgnored, models.RequestStatusSent},
		{"unknown type reported", models.RequestStatusSent, "spam_report", OutcomeUnknown, models.RequestStatusSent},
		{"open after bounce ignored", models.RequestStatusBounced, "open", OutcomeIgnored, models.RequestStatusBounced},
		{"click after failure ignored", models.RequestStatusFailed, "click", OutcomeIgnored, models.RequestStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest()
			req.Status = tt.before

			out := Apply(req, event(tt.eventType, now))
			if out != tt.wantOut {
				t.Errorf("outcome: got %s, want %s", out, tt.wantOut)
			}
			if req.Status != tt.wantStatus {
				t.Errorf("status: got %s, want %s", req.Status, tt.wantStatus)
			}
		})
	}
}

func TestApply_DeliveredBackfillsSentAt(t *testing.T) {
	req := newRequest()
	ts := time.Now().Unix()

	// The processed event never arrived; delivered lands first
	out := Apply(req, event("delivered", ts))
	if out != OutcomeApplied {
		t.Fatalf("expected applied, got %s", out)
	}
	if req.SentAt == nil {
		t.Error("delivered must backfill sent_at when processed was missed")
	}
	if req.DeliveredAt == nil {
		t.Error("delivered must set delivered_at")
	}
}

func TestApply_TimestampsSetOnce(t *testing.T) {
	req := newRequest()

	first := time.Now().Add(-time.Hour).Unix()
	Apply(req, event("processed", first))
	sentAt := *req.SentAt

	// A replayed processed event with a later timestamp must not move it
	Apply(req, event("processed", time.Now().Unix()))
	if !req.SentAt.Equal(sentAt) {
		t.Errorf("sent_at moved on replay: %v -> %v", sentAt, *req.SentAt)
	}
}

func TestApply_BounceRecordsError(t *testing.T) {
	req := newRequest()
	ev := event("bounce", time.Now().Unix())
	ev.Code = "550"
	ev.Reason = "mailbox does not exist"

	Apply(req, ev)
	if req.ErrorCode == nil || *req.ErrorCode != "550" {
		t.Errorf("expected error code 550, got %v", req.ErrorCode)
	}
	if req.ErrorMessage == nil || *req.ErrorMessage != "mailbox does not exist" {
		t.Errorf("expected error message, got %v", req.ErrorMessage)
	}
}

var allEventTypes = []string{"processed", "delivered", "open", "click", "bounce", "blocked", "dropped", "deferred", "garbage"}

// TestProperty_Apply_MonotonicLattice tests forward-only status movement
// *For any* sequence of delivery events, the status rank SHALL never
// decrease, and failure states SHALL absorb all later events.
func TestProperty_Apply_MonotonicLattice(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		req := newRequest()
		n := rapid.IntRange(1, 30).Draw(rt, "n")

		for i := 0; i < n; i++ {
			prev := req.Status
			prevRank := prev.Rank()

			typ := rapid.SampledFrom(allEventTypes).Draw(rt, "event")
			Apply(req, event(typ, time.Now().Unix()))

			if prev.IsFailure() && req.Status != prev {
				t.Fatalf("PROPERTY VIOLATION: failure state %s left via %s event", prev, typ)
			}
			if prev == models.RequestStatusCompleted && req.Status != prev {
				t.Fatalf("PROPERTY VIOLATION: completed state left via %s event", typ)
			}
			if prevRank >= 0 && req.Status.Rank() >= 0 && req.Status.Rank() < prevRank {
				t.Fatalf("PROPERTY VIOLATION: rank decreased %s -> %s via %s", prev, req.Status, typ)
			}
			if req.Status.IsFailure() && prevRank >= models.RequestStatusDelivered.Rank() {
				t.Fatalf("PROPERTY VIOLATION: %s reached failure after delivery via %s", prev, typ)
			}
		}
	})
}

// TestProperty_Apply_ReplayIdempotent tests webhook retry safety
// *For any* event applied to any state, applying the same event again
// SHALL leave the request unchanged.
func TestProperty_Apply_ReplayIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		req := newRequest()
		n := rapid.IntRange(0, 15).Draw(rt, "n")
		for i := 0; i < n; i++ {
			typ := rapid.SampledFrom(allEventTypes).Draw(rt, "warmup")
			Apply(req, event(typ, time.Now().Unix()))
		}

		ev := event(rapid.SampledFrom(allEventTypes).Draw(rt, "replayed"), time.Now().Unix())
		Apply(req, ev)
		snapshot := *req
		Apply(req, ev)

		if *req != snapshot {
			t.Fatalf("PROPERTY VIOLATION: replay changed request: %+v -> %+v", snapshot, *req)
		}
	})
}
