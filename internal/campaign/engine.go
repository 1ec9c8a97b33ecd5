package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/reputul/reputul-backend/internal/config"
	"github.com/reputul/reputul-backend/internal/logging"
	"github.com/reputul/reputul-backend/internal/models"
	"github.com/reputul/reputul-backend/internal/monitoring"
	"github.com/rs/zerolog/log"
)

// Engine errors
var (
	ErrExecutionNotFound = errors.New("campaign execution not found")
	ErrAlreadyRunning    = errors.New("an active campaign execution already exists for this review request")
	ErrSequenceInactive  = errors.New("campaign sequence is not active")
)

const uniqueViolation = "23505"

// StepDispatcher sends the message for one campaign step and records
// the resulting review request.
type StepDispatcher interface {
	DispatchStep(ctx context.Context, exec *models.CampaignExecution, step *models.CampaignStep) (*models.ReviewRequest, error)
}

// Engine drives campaign executions: starting them, firing due steps,
// and stopping or cancelling them. Step execution is poll-driven; the
// worker binary calls ProcessDue on an interval.
type Engine struct {
	db         *pgxpool.Pool
	rdb        *redis.Client
	sequences  *SequenceStore
	dispatcher StepDispatcher
	config     *config.CampaignConfig
}

// NewEngine creates a new campaign engine
func NewEngine(db *pgxpool.Pool, rdb *redis.Client, sequences *SequenceStore, dispatcher StepDispatcher, cfg *config.CampaignConfig) *Engine {
	return &Engine{
		db:         db,
		rdb:        rdb,
		sequences:  sequences,
		dispatcher: dispatcher,
		config:     cfg,
	}
}

// Start begins a campaign execution of the given sequence for a review
// request. At most one active execution may exist per review request;
// a second start fails with ErrAlreadyRunning. A sequence with no
// active steps produces an execution that is already completed.
func (e *Engine) Start(ctx context.Context, reviewRequestID, sequenceID uuid.UUID) (*models.CampaignExecution, error) {
	seq, err := e.sequences.Get(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	if !seq.IsActive {
		return nil, ErrSequenceInactive
	}

	steps, err := e.sequences.Steps(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}

	now := time.Now()
	exec := &models.CampaignExecution{
		ID:              uuid.New(),
		ReviewRequestID: reviewRequestID,
		SequenceID:      sequenceID,
		CurrentStep:     1,
		Status:          models.ExecutionStatusActive,
		StartedAt:       now,
	}
	if CountActive(steps) == 0 {
		exec.Status = models.ExecutionStatusCompleted
		exec.CurrentStep = len(steps) + 1
		exec.CompletedAt = &now
	}

	_, err = e.db.Exec(ctx, `
		INSERT INTO campaign_executions (id, review_request_id, sequence_id, current_step, status, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, exec.ID, exec.ReviewRequestID, exec.SequenceID, exec.CurrentStep, exec.Status, exec.StartedAt, exec.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	monitoring.RecordExecutionStarted()
	if exec.Status == models.ExecutionStatusCompleted {
		monitoring.RecordExecutionTerminated(string(exec.Status))
	}
	logging.LogExecutionEvent(exec.ID.String(), "started", exec.CurrentStep, string(exec.Status))

	return exec, nil
}

// StartDefault starts the organization's default sequence for a review
// request. Fails with ErrNoDefaultSequence when none is configured.
func (e *Engine) StartDefault(ctx context.Context, reviewRequestID, orgID uuid.UUID) (*models.CampaignExecution, error) {
	seq, err := e.sequences.GetDefault(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return e.Start(ctx, reviewRequestID, seq.ID)
}

// Get loads an execution by ID
func (e *Engine) Get(ctx context.Context, executionID uuid.UUID) (*models.CampaignExecution, error) {
	return e.getExecution(ctx, executionID)
}

// Stop moves an active execution to stopped. Stopping an execution
// that is already terminal is a no-op.
func (e *Engine) Stop(ctx context.Context, executionID uuid.UUID, reason string) (*models.CampaignExecution, error) {
	return e.terminate(ctx, executionID, models.ExecutionStatusStopped, reason)
}

// Cancel moves an active execution to cancelled
func (e *Engine) Cancel(ctx context.Context, executionID uuid.UUID) (*models.CampaignExecution, error) {
	return e.terminate(ctx, executionID, models.ExecutionStatusCancelled, "cancelled by operator")
}

// terminate applies a terminal status to an active execution. The
// conditional update makes concurrent terminations race-safe: only
// one writer wins, everyone observes a terminal row afterwards.
func (e *Engine) terminate(ctx context.Context, executionID uuid.UUID, status models.ExecutionStatus, reason string) (*models.CampaignExecution, error) {
	tag, err := e.db.Exec(ctx, `
		UPDATE campaign_executions
		SET status = $1, stop_reason = $2, completed_at = NOW()
		WHERE id = $3 AND status = 'active'
	`, status, reason, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to terminate execution: %w", err)
	}

	exec, getErr := e.getExecution(ctx, executionID)
	if getErr != nil {
		return nil, getErr
	}

	if tag.RowsAffected() > 0 {
		monitoring.RecordExecutionTerminated(string(status))
		logging.LogExecutionEvent(executionID.String(), "terminated", exec.CurrentStep, string(status))
	}

	return exec, nil
}

// ProcessDue sweeps active executions: every due step is fired, and
// executions whose originating review request has completed are picked
// up for stopping regardless of when their next step would be due.
// Each execution is handled independently; one failure never blocks
// the rest of the sweep.
func (e *Engine) ProcessDue(ctx context.Context) error {
	rows, err := e.db.Query(ctx, `
		SELECT e.id
		FROM campaign_executions e
		JOIN review_requests r ON r.id = e.review_request_id
		LEFT JOIN campaign_steps s ON s.sequence_id = e.sequence_id AND s.step_number = e.current_step
		WHERE e.status = 'active'
		  AND (r.status = 'completed'
		       OR s.id IS NULL
		       OR NOT s.is_active
		       OR GREATEST(e.started_at, COALESCE(e.last_step_fired_at, e.started_at))
		          + make_interval(hours => s.delay_hours) <= NOW())
	`)
	if err != nil {
		return fmt.Errorf("failed to query due executions: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan execution id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating due executions: %w", err)
	}

	for _, id := range ids {
		if err := e.ExecuteDueStep(ctx, id); err != nil {
			logging.LogError(err, "campaign", "execute_due_step")
		}
	}

	return nil
}

// ExecuteDueStep fires the current step of one execution if it is due.
// A Redis claim keeps concurrent workers off the same execution, and a
// compare-and-swap advance guarantees each step fires at most once
// even if the claim is lost.
func (e *Engine) ExecuteDueStep(ctx context.Context, executionID uuid.UUID) error {
	release, claimed, err := e.claimExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	defer release()

	exec, err := e.getExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return nil
	}

	// A converted customer ends the campaign
	var requestStatus models.RequestStatus
	err = e.db.QueryRow(ctx, `
		SELECT status FROM review_requests WHERE id = $1
	`, exec.ReviewRequestID).Scan(&requestStatus)
	if err != nil {
		return fmt.Errorf("failed to get review request status: %w", err)
	}
	if requestStatus == models.RequestStatusCompleted {
		_, err := e.Stop(ctx, executionID, "review request completed")
		return err
	}

	steps, err := e.sequences.Steps(ctx, exec.SequenceID)
	if err != nil {
		return err
	}

	step := StepByNumber(steps, exec.CurrentStep)
	if step == nil {
		return e.complete(ctx, exec, nil)
	}

	now := time.Now()
	if !IsDue(exec, step, now) {
		return nil
	}

	if !step.IsActive {
		return e.advance(ctx, exec, len(steps), nil)
	}

	attempts, err := e.countAttempts(ctx, exec.ID, step.StepNumber)
	if err != nil {
		return err
	}
	if attempts >= e.config.MaxStepAttempts {
		return e.fail(ctx, exec, fmt.Sprintf("step %d exceeded %d attempts", step.StepNumber, e.config.MaxStepAttempts))
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, e.config.DispatchTimeout)
	defer cancel()

	_, dispatchErr := e.dispatcher.DispatchStep(dispatchCtx, exec, step)
	if recordErr := e.recordAttempt(ctx, exec.ID, step.StepNumber, attempts+1, dispatchErr); recordErr != nil {
		return recordErr
	}

	if dispatchErr != nil {
		monitoring.RecordStepAttempt("failure")
		if attempts+1 >= e.config.MaxStepAttempts {
			return e.fail(ctx, exec, fmt.Sprintf("step %d exceeded %d attempts: %s",
				step.StepNumber, e.config.MaxStepAttempts, dispatchErr))
		}
		return fmt.Errorf("failed to dispatch step %d: %w", step.StepNumber, dispatchErr)
	}

	monitoring.RecordStepAttempt("success")
	return e.advance(ctx, exec, len(steps), &now)
}

// claimExecution takes the exclusive dispatch claim for one execution.
// Redis SetNX is the fast path; without Redis, or when it errors, the
// claim degrades to a conditional update of claimed_until so two
// overlapping sweeps still cannot both reach the provider call.
func (e *Engine) claimExecution(ctx context.Context, executionID uuid.UUID) (func(), bool, error) {
	if e.rdb != nil {
		ok, err := e.rdb.SetNX(ctx, claimKey(executionID), "1", e.config.ClaimTTL).Result()
		if err == nil {
			if !ok {
				return nil, false, nil
			}
			return func() {
				e.rdb.Del(context.WithoutCancel(ctx), claimKey(executionID))
			}, true, nil
		}
		log.Warn().Err(err).Msg("Redis claim failed, falling back to database claim")
	}

	tag, err := e.db.Exec(ctx, `
		UPDATE campaign_executions
		SET claimed_until = NOW() + make_interval(secs => $1)
		WHERE id = $2 AND status = 'active'
		  AND (claimed_until IS NULL OR claimed_until <= NOW())
	`, e.config.ClaimTTL.Seconds(), executionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, false, nil
	}

	return func() {
		_, err := e.db.Exec(context.WithoutCancel(ctx), `
			UPDATE campaign_executions SET claimed_until = NULL WHERE id = $1
		`, executionID)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to release execution claim")
		}
	}, true, nil
}

// advance moves an execution past its current step. firedAt is nil for
// skipped inactive steps so the scheduling basis only tracks messages
// actually sent. Advancing past the last step completes the execution.
func (e *Engine) advance(ctx context.Context, exec *models.CampaignExecution, totalSteps int, firedAt *time.Time) error {
	if exec.CurrentStep >= totalSteps {
		return e.complete(ctx, exec, firedAt)
	}

	tag, err := e.db.Exec(ctx, `
		UPDATE campaign_executions
		SET current_step = current_step + 1,
		    last_step_fired_at = COALESCE($1, last_step_fired_at)
		WHERE id = $2 AND status = 'active' AND current_step = $3
	`, firedAt, exec.ID, exec.CurrentStep)
	if err != nil {
		return fmt.Errorf("failed to advance execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the race to a concurrent worker or a termination
		return nil
	}

	logging.LogExecutionEvent(exec.ID.String(), "advanced", exec.CurrentStep+1, "")
	return nil
}

func (e *Engine) complete(ctx context.Context, exec *models.CampaignExecution, firedAt *time.Time) error {
	tag, err := e.db.Exec(ctx, `
		UPDATE campaign_executions
		SET current_step = current_step + 1,
		    last_step_fired_at = COALESCE($1, last_step_fired_at),
		    status = 'completed', completed_at = NOW()
		WHERE id = $2 AND status = 'active' AND current_step = $3
	`, firedAt, exec.ID, exec.CurrentStep)
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}
	if tag.RowsAffected() > 0 {
		monitoring.RecordExecutionTerminated(string(models.ExecutionStatusCompleted))
		logging.LogExecutionEvent(exec.ID.String(), "terminated", exec.CurrentStep, "completed")
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, exec *models.CampaignExecution, reason string) error {
	tag, err := e.db.Exec(ctx, `
		UPDATE campaign_executions
		SET status = 'failed', stop_reason = $1, completed_at = NOW()
		WHERE id = $2 AND status = 'active'
	`, reason, exec.ID)
	if err != nil {
		return fmt.Errorf("failed to mark execution failed: %w", err)
	}
	if tag.RowsAffected() > 0 {
		monitoring.RecordExecutionTerminated(string(models.ExecutionStatusFailed))
		logging.LogExecutionEvent(exec.ID.String(), "terminated", exec.CurrentStep, "failed")
	}
	return nil
}

func (e *Engine) getExecution(ctx context.Context, executionID uuid.UUID) (*models.CampaignExecution, error) {
	var exec models.CampaignExecution
	err := e.db.QueryRow(ctx, `
		SELECT id, review_request_id, sequence_id, current_step, status,
		       started_at, last_step_fired_at, completed_at, stop_reason
		FROM campaign_executions WHERE id = $1
	`, executionID).Scan(
		&exec.ID, &exec.ReviewRequestID, &exec.SequenceID, &exec.CurrentStep, &exec.Status,
		&exec.StartedAt, &exec.LastStepFiredAt, &exec.CompletedAt, &exec.StopReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return &exec, nil
}

// countAttempts returns how many dispatch attempts were recorded for a
// step. The counter is persisted so retries survive worker restarts.
func (e *Engine) countAttempts(ctx context.Context, executionID uuid.UUID, stepNumber int) (int, error) {
	var count int
	err := e.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM campaign_step_attempts
		WHERE execution_id = $1 AND step_number = $2
	`, executionID, stepNumber).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count step attempts: %w", err)
	}
	return count, nil
}

func (e *Engine) recordAttempt(ctx context.Context, executionID uuid.UUID, stepNumber, attemptNumber int, dispatchErr error) error {
	var errMsg *string
	if dispatchErr != nil {
		msg := dispatchErr.Error()
		errMsg = &msg
	}
	_, err := e.db.Exec(ctx, `
		INSERT INTO campaign_step_attempts (id, execution_id, step_number, attempt_number, succeeded, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, uuid.New(), executionID, stepNumber, attemptNumber, dispatchErr == nil, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record step attempt: %w", err)
	}
	return nil
}

func claimKey(executionID uuid.UUID) string {
	return "campaign:claim:" + executionID.String()
}
