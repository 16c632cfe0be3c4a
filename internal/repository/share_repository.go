package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docshare-api/internal/models"
)

const shareColumns = `s.id, s.document_id, s.owner_id, s.token, s.share_type, s.share_code, s.expires_at, s.access_count, s.created_at, s.updated_at`

// ShareRepository persists document shares. A document has at most one share row.
type ShareRepository struct {
	db *sqlx.DB
}

// NewShareRepository constructs a ShareRepository.
func NewShareRepository(db *sqlx.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// Upsert creates the share for share.DocumentID or replaces its type, code and
// expiry. The token and identifier of an existing share are kept. share is
// overwritten with the stored row; created reports whether a new row was inserted.
func (r *ShareRepository) Upsert(ctx context.Context, share *models.Share) (bool, error) {
	if share.ID == "" {
		share.ID = uuid.NewString()
	}
	if share.Token == "" {
		share.Token = uuid.NewString()
	}
	now := time.Now().UTC()
	attemptedID := share.ID

	const query = `INSERT INTO document_shares AS s (id, document_id, owner_id, token, share_type, share_code, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (document_id) DO UPDATE SET share_type = EXCLUDED.share_type, share_code = EXCLUDED.share_code, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
RETURNING ` + shareColumns

	var stored models.Share
	if err := r.db.GetContext(ctx, &stored, query, share.ID, share.DocumentID, share.OwnerID, share.Token, share.Type, share.Code, share.ExpiresAt, now); err != nil {
		return false, fmt.Errorf("upsert share: %w", err)
	}
	*share = stored
	return stored.ID == attemptedID, nil
}

// GetByDocument returns the share for a document or sql.ErrNoRows.
func (r *ShareRepository) GetByDocument(ctx context.Context, documentID string) (*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM document_shares s WHERE s.document_id = $1`
	var share models.Share
	if err := r.db.GetContext(ctx, &share, query, documentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get share by document: %w", err)
	}
	return &share, nil
}

// GetByToken returns the share and its document for a public token or sql.ErrNoRows.
func (r *ShareRepository) GetByToken(ctx context.Context, token string) (*models.SharedDocument, error) {
	query := `SELECT ` + shareColumns + `, d.filename, d.mime_type, d.file_size, d.storage_key FROM document_shares s JOIN documents d ON d.id = s.document_id WHERE s.token = $1`
	var shared models.SharedDocument
	if err := r.db.GetContext(ctx, &shared, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get share by token: %w", err)
	}
	return &shared, nil
}

// DeleteByDocument removes the share of a document. Missing rows are not an error.
func (r *ShareRepository) DeleteByDocument(ctx context.Context, documentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM document_shares WHERE document_id = $1`, documentID)
	if err != nil {
		return false, fmt.Errorf("delete share: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete share: %w", err)
	}
	return n > 0, nil
}

// ListByOwner returns every share created by the owner along with document details.
func (r *ShareRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.SharedDocument, error) {
	query := `SELECT ` + shareColumns + `, d.filename, d.mime_type, d.file_size, '' AS storage_key FROM document_shares s JOIN documents d ON d.id = s.document_id WHERE s.owner_id = $1 ORDER BY s.updated_at DESC`
	var shares []models.SharedDocument
	if err := r.db.SelectContext(ctx, &shares, query, ownerID); err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	return shares, nil
}

// IncrementAccessCount bumps the anonymous access counter.
func (r *ShareRepository) IncrementAccessCount(ctx context.Context, shareID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE document_shares SET access_count = access_count + 1 WHERE id = $1`, shareID); err != nil {
		return fmt.Errorf("increment access count: %w", err)
	}
	return nil
}

// DeleteExpiredBefore removes shares whose expiry is older than cutoff and
// returns the tokens that were removed.
func (r *ShareRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var tokens []string
	if err := r.db.SelectContext(ctx, &tokens, `DELETE FROM document_shares WHERE expires_at IS NOT NULL AND expires_at < $1 RETURNING token`, cutoff); err != nil {
		return nil, fmt.Errorf("delete expired shares: %w", err)
	}
	return tokens, nil
}
