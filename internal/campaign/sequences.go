package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reputul/reputul-backend/internal/models"
)

// Sequence store errors
var (
	ErrSequenceNotFound  = errors.New("campaign sequence not found")
	ErrNoDefaultSequence = errors.New("no default campaign sequence configured")
	ErrNoSteps           = errors.New("campaign sequence has no steps")
)

// SequenceStore persists campaign sequences and their steps
type SequenceStore struct {
	db *pgxpool.Pool
}

// NewSequenceStore creates a new sequence store
func NewSequenceStore(db *pgxpool.Pool) *SequenceStore {
	return &SequenceStore{db: db}
}

// CreateSequenceInput describes a new sequence and its steps
type CreateSequenceInput struct {
	OrgID    uuid.UUID         `json:"org_id" binding:"required"`
	Name     string            `json:"name" binding:"required"`
	IsActive bool              `json:"is_active"`
	Steps    []CreateStepInput `json:"steps"`
}

// CreateStepInput describes one step of a new sequence
type CreateStepInput struct {
	DelayHours  int            `json:"delay_hours"`
	MessageType models.Channel `json:"message_type" binding:"required"`
	Subject     string         `json:"subject"`
	Body        string         `json:"body"`
	IsActive    bool           `json:"is_active"`
}

// Create stores a sequence with its steps. Step numbers are assigned
// from slice order, starting at 1.
func (s *SequenceStore) Create(ctx context.Context, input CreateSequenceInput) (*models.CampaignSequence, error) {
	if len(input.Steps) == 0 {
		return nil, ErrNoSteps
	}
	for _, step := range input.Steps {
		if !step.MessageType.Valid() {
			return nil, fmt.Errorf("invalid step message type: %s", step.MessageType)
		}
		if step.DelayHours < 0 {
			return nil, fmt.Errorf("step delay hours must not be negative")
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	seq := &models.CampaignSequence{
		ID:        uuid.New(),
		OrgID:     input.OrgID,
		Name:      input.Name,
		IsActive:  input.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO campaign_sequences (id, org_id, name, is_default, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, false, $4, $5, $5)
	`, seq.ID, seq.OrgID, seq.Name, seq.IsActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create sequence: %w", err)
	}

	for i, step := range input.Steps {
		_, err = tx.Exec(ctx, `
			INSERT INTO campaign_steps (id, sequence_id, step_number, delay_hours, message_type, subject, body, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New(), seq.ID, i+1, step.DelayHours, step.MessageType, step.Subject, step.Body, step.IsActive)
		if err != nil {
			return nil, fmt.Errorf("failed to create step %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return seq, nil
}

// Get loads a sequence by ID
func (s *SequenceStore) Get(ctx context.Context, id uuid.UUID) (*models.CampaignSequence, error) {
	var seq models.CampaignSequence
	err := s.db.QueryRow(ctx, `
		SELECT id, org_id, name, is_default, is_active, created_at, updated_at
		FROM campaign_sequences WHERE id = $1
	`, id).Scan(&seq.ID, &seq.OrgID, &seq.Name, &seq.IsDefault, &seq.IsActive, &seq.CreatedAt, &seq.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSequenceNotFound
		}
		return nil, fmt.Errorf("failed to get sequence: %w", err)
	}
	return &seq, nil
}

// GetDefault loads an organization's default sequence
func (s *SequenceStore) GetDefault(ctx context.Context, orgID uuid.UUID) (*models.CampaignSequence, error) {
	var seq models.CampaignSequence
	err := s.db.QueryRow(ctx, `
		SELECT id, org_id, name, is_default, is_active, created_at, updated_at
		FROM campaign_sequences WHERE org_id = $1 AND is_default = true
	`, orgID).Scan(&seq.ID, &seq.OrgID, &seq.Name, &seq.IsDefault, &seq.IsActive, &seq.CreatedAt, &seq.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDefaultSequence
		}
		return nil, fmt.Errorf("failed to get default sequence: %w", err)
	}
	return &seq, nil
}

// List returns all sequences for an organization
func (s *SequenceStore) List(ctx context.Context, orgID uuid.UUID) ([]models.CampaignSequence, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, org_id, name, is_default, is_active, created_at, updated_at
		FROM campaign_sequences WHERE org_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequences: %w", err)
	}
	defer rows.Close()

	var sequences []models.CampaignSequence
	for rows.Next() {
		var seq models.CampaignSequence
		if err := rows.Scan(&seq.ID, &seq.OrgID, &seq.Name, &seq.IsDefault, &seq.IsActive, &seq.CreatedAt, &seq.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sequence: %w", err)
		}
		sequences = append(sequences, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sequences: %w", err)
	}
	return sequences, nil
}

// Steps loads a sequence's steps ordered by step number
func (s *SequenceStore) Steps(ctx context.Context, sequenceID uuid.UUID) ([]models.CampaignStep, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, sequence_id, step_number, delay_hours, message_type, subject, body, is_active
		FROM campaign_steps WHERE sequence_id = $1
		ORDER BY step_number
	`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []models.CampaignStep
	for rows.Next() {
		var step models.CampaignStep
		if err := rows.Scan(&step.ID, &step.SequenceID, &step.StepNumber, &step.DelayHours,
			&step.MessageType, &step.Subject, &step.Body, &step.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}
	return steps, nil
}

// SetDefault makes a sequence the organization's default, clearing any
// previous default in the same transaction.
func (s *SequenceStore) SetDefault(ctx context.Context, orgID, sequenceID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE campaign_sequences SET is_default = false, updated_at = NOW()
		WHERE org_id = $1 AND is_default = true
	`, orgID)
	if err != nil {
		return fmt.Errorf("failed to clear previous default: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE campaign_sequences SET is_default = true, updated_at = NOW()
		WHERE id = $1 AND org_id = $2
	`, sequenceID, orgID)
	if err != nil {
		return fmt.Errorf("failed to set default sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSequenceNotFound
	}

	return tx.Commit(ctx)
}

// SetActive toggles whether a sequence may start new executions
func (s *SequenceStore) SetActive(ctx context.Context, sequenceID uuid.UUID, active bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE campaign_sequences SET is_active = $1, updated_at = NOW() WHERE id = $2
	`, active, sequenceID)
	if err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSequenceNotFound
	}
	return nil
}
