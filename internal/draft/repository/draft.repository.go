package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reviewdraft/internal/draft/model"
	"reviewdraft/pkg/logger"
	"reviewdraft/store"
)

// Store is the keyed draft persistence backend. A missing draft is a normal
// (nil, nil) result from Load; Delete of a missing key succeeds.
type Store interface {
	Load(ctx context.Context, recordID string) (*store.Draft, error)
	Save(ctx context.Context, recordID, content string) (*store.Draft, error)
	Delete(ctx context.Context, recordID string) error
}

// DecisionRecorder stores the outcome of a finalized review.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, recordID string, decision model.Decision, notes string) error
}

// Key namespaces a record id for storage.
func Key(prefix, recordID string) string {
	return prefix + recordID
}

type PostgresStore struct {
	DB     *sql.DB
	Prefix string
}

func NewPostgresStore(db *sql.DB, prefix string) *PostgresStore {
	return &PostgresStore{DB: db, Prefix: prefix}
}

func (r *PostgresStore) Load(ctx context.Context, recordID string) (*store.Draft, error) {
	var d store.Draft
	err := r.DB.QueryRowContext(ctx,
		"SELECT record_id, content, updated_at FROM review_drafts WHERE draft_key = $1",
		Key(r.Prefix, recordID),
	).Scan(&d.RecordID, &d.Content, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load draft for record %s: %v", recordID, err)
		return nil, fmt.Errorf("%w: %w", model.ErrLoadFailure, err)
	}
	return &d, nil
}

func (r *PostgresStore) Save(ctx context.Context, recordID, content string) (*store.Draft, error) {
	d := store.Draft{RecordID: recordID, Content: content}
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO review_drafts (draft_key, record_id, content, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (draft_key) DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
		RETURNING updated_at`,
		Key(r.Prefix, recordID), recordID, content,
	).Scan(&d.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to save draft for record %s: %v", recordID, err)
		return nil, fmt.Errorf("%w: %w", model.ErrSaveFailure, err)
	}
	return &d, nil
}

func (r *PostgresStore) Delete(ctx context.Context, recordID string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM review_drafts WHERE draft_key = $1", Key(r.Prefix, recordID))
	if err != nil {
		logger.Sugar.Errorf("Failed to delete draft for record %s: %v", recordID, err)
		return fmt.Errorf("%w: %w", model.ErrDeleteFailure, err)
	}
	return nil
}

func (r *PostgresStore) RecordDecision(ctx context.Context, recordID string, decision model.Decision, notes string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO review_decisions (record_id, decision, notes, decided_at) VALUES ($1, $2, $3, NOW())`,
		recordID, string(decision), notes)
	if err != nil {
		logger.Sugar.Errorf("Failed to record %s decision for record %s: %v", decision, recordID, err)
	}
	return err
}
