package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docshare-api/internal/models"
)

const documentColumns = `id, filename, file_md5, file_size, mime_type, storage_key, file_uuid, uploader_id, is_public, download_count, created_at, updated_at`

// DocumentRepository persists uploaded document metadata.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs a DocumentRepository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document row.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	const query = `INSERT INTO documents (id, filename, file_md5, file_size, mime_type, storage_key, file_uuid, uploader_id, is_public, download_count, created_at, updated_at) VALUES (:id, :filename, :file_md5, :file_size, :mime_type, :storage_key, :file_uuid, :uploader_id, :is_public, :download_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID returns a document or sql.ErrNoRows.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// FindByMD5 returns the uploader's existing document with the same content hash.
func (r *DocumentRepository) FindByMD5(ctx context.Context, uploaderID, md5sum string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE uploader_id = $1 AND file_md5 = $2 ORDER BY created_at ASC LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, uploaderID, md5sum); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find document by md5: %w", err)
	}
	return &doc, nil
}

// ListByUploader returns the uploader's documents with their share state, newest first.
func (r *DocumentRepository) ListByUploader(ctx context.Context, uploaderID string, filter models.DocumentFilter) ([]models.DocumentListItem, int, error) {
	where := ` FROM documents d LEFT JOIN document_shares s ON s.document_id = d.id WHERE d.uploader_id = $1`
	args := []interface{}{uploaderID}
	if filter.Search != "" {
		where += ` AND LOWER(d.filename) LIKE $2`
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT d.id, d.filename, d.file_md5, d.file_size, d.mime_type, d.storage_key, d.file_uuid, d.uploader_id, d.is_public, d.download_count, d.created_at, d.updated_at, s.token AS share_token, s.share_type AS share_type, s.expires_at AS share_expires_at%s ORDER BY d.created_at DESC LIMIT %d OFFSET %d`, where, pageSize, offset)

	var items []models.DocumentListItem
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	return items, total, nil
}

// Delete removes a document row. Its share row goes with it via ON DELETE CASCADE.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IncrementDownloadCount bumps the download counter.
func (r *DocumentRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE documents SET download_count = download_count + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("increment download count: %w", err)
	}
	return nil
}
