package service

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/docshare-api/internal/dto"
	"github.com/noah-isme/docshare-api/internal/models"
	appErrors "github.com/noah-isme/docshare-api/pkg/errors"
	"github.com/noah-isme/docshare-api/pkg/jobs"
	"github.com/noah-isme/docshare-api/pkg/storage"
)

// Background job types handled by CounterJobHandler.
const (
	JobTypeDownloadCount = "document.download_count"
	JobTypeShareAccess   = "share.access_count"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	FindByMD5(ctx context.Context, uploaderID, md5sum string) (*models.Document, error)
	ListByUploader(ctx context.Context, uploaderID string, filter models.DocumentFilter) ([]models.DocumentListItem, int, error)
	Delete(ctx context.Context, id string) error
}

type jobEnqueuer interface {
	Name() string
	TryEnqueue(job jobs.Job) error
}

type documentShareCleaner interface {
	ForgetDocument(ctx context.Context, documentID string)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// DocumentUpload carries upload metadata and the content stream.
type DocumentUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.ReadSeeker
}

// DocumentDownload is an opened document ready for streaming. Callers close Body.
type DocumentDownload struct {
	Body     io.ReadCloser
	Filename string
	MimeType string
	Size     int64
}

// DocumentServiceConfig holds upload limits and preview link lifetime.
type DocumentServiceConfig struct {
	MaxFileSize int64
	PreviewTTL  time.Duration
}

// DocumentService manages uploaded documents and their blobs.
type DocumentService struct {
	repo     documentStore
	store    storage.ObjectStore
	counters jobEnqueuer
	shares   documentShareCleaner
	audit    auditLogger
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      DocumentServiceConfig
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(repo documentStore, store storage.ObjectStore, counters jobEnqueuer, audit auditLogger, metrics *MetricsService, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 100 * 1024 * 1024
	}
	if cfg.PreviewTTL <= 0 {
		cfg.PreviewTTL = 10 * time.Minute
	}
	return &DocumentService{repo: repo, store: store, counters: counters, audit: audit, metrics: metrics, logger: logger, cfg: cfg}
}

// SetShareCleaner registers the component that drops share state when a document is deleted.
func (s *DocumentService) SetShareCleaner(cleaner documentShareCleaner) {
	s.shares = cleaner
}

// Upload stores a new document for the actor. Content already uploaded by the
// same user (same MD5) is not stored twice; the existing document is returned
// with deduplicated set.
func (s *DocumentService) Upload(ctx context.Context, upload DocumentUpload, actor *models.JWTClaims) (*models.Document, bool, error) {
	if actor == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, false, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	filename := cleanFilename(upload.Filename)
	if filename == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "filename is required")
	}

	sum, err := contentMD5(upload.Content)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash upload")
	}

	existing, err := s.repo.FindByMD5(ctx, actor.UserID, sum)
	switch {
	case err == nil:
		s.metrics.RecordUpload("deduplicated", 0)
		return existing, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for duplicates")
	}

	mimeType, err := detectMimeType(filename, upload)
	if err != nil {
		return nil, false, err
	}

	fileUUID := uuid.NewString()
	key := fmt.Sprintf("%s/%s%s", actor.UserID, fileUUID, strings.ToLower(filepath.Ext(filename)))
	if err := s.store.Put(ctx, key, upload.Content, upload.Size, mimeType); err != nil {
		s.metrics.RecordUpload("failed", 0)
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	doc := &models.Document{
		Filename:   filename,
		FileMD5:    sum,
		FileSize:   upload.Size,
		MimeType:   mimeType,
		StorageKey: key,
		FileUUID:   fileUUID,
		UploaderID: actor.UserID,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned blob", zap.String("key", key), zap.Error(delErr))
		}
		s.metrics.RecordUpload("failed", 0)
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}

	s.metrics.RecordUpload("stored", doc.FileSize)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionDocumentUpload,
		Resource:   "document",
		ResourceID: &doc.ID,
		NewValues:  []byte(fmt.Sprintf(`{"filename":%q,"size":%d}`, doc.Filename, doc.FileSize)),
	})
	return doc, false, nil
}

// List returns the actor's documents with their share state.
func (s *DocumentService) List(ctx context.Context, query dto.DocumentListQuery, actor *models.JWTClaims) ([]dto.DocumentItem, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter := models.DocumentFilter{Search: strings.TrimSpace(query.Search), Page: query.Page, PageSize: query.PageSize}
	rows, total, err := s.repo.ListByUploader(ctx, actor.UserID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	items := make([]dto.DocumentItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.DocumentItem{DocumentListItem: row, IsShared: row.HasShare()})
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a document owned by the actor.
func (s *DocumentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.UploaderID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "document belongs to another user")
	}
	return doc, nil
}

// Preview returns a time-limited inline link for a document owned by the actor.
func (s *DocumentService) Preview(ctx context.Context, id string, actor *models.JWTClaims) (*dto.PreviewResponse, error) {
	doc, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	link, err := s.store.PresignGet(ctx, doc.StorageKey, storage.PresignOptions{
		Filename:    doc.Filename,
		ContentType: doc.MimeType,
		TTL:         s.cfg.PreviewTTL,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate preview url")
	}
	return &dto.PreviewResponse{
		Filename:   doc.Filename,
		MimeType:   doc.MimeType,
		FileSize:   doc.FileSize,
		PreviewURL: link.URL,
		ExpiresAt:  link.ExpiresAt,
	}, nil
}

// Download opens a document owned by the actor and counts the download.
func (s *DocumentService) Download(ctx context.Context, id string, actor *models.JWTClaims) (*DocumentDownload, error) {
	doc, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	obj, err := s.store.Get(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file content missing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	s.enqueueCounter(JobTypeDownloadCount, doc.ID)
	return &DocumentDownload{
		Body:     obj.Body,
		Filename: doc.Filename,
		MimeType: doc.MimeType,
		Size:     obj.Size,
	}, nil
}

// Delete removes a document owned by the actor together with its blob and share.
func (s *DocumentService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	doc, err := s.Get(ctx, id, actor)
	if err != nil {
		return err
	}
	if s.shares != nil {
		s.shares.ForgetDocument(ctx, doc.ID)
	}
	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		s.logger.Warn("failed to delete blob", zap.String("key", doc.StorageKey), zap.Error(err))
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionDocumentDelete,
		Resource:   "document",
		ResourceID: &doc.ID,
	})
	return nil
}

func (s *DocumentService) enqueueCounter(jobType, id string) {
	if s.counters == nil {
		return
	}
	if err := s.counters.TryEnqueue(jobs.Job{Type: jobType, Payload: id}); err != nil {
		s.metrics.RecordJobDropped(s.counters.Name())
		s.logger.Warn("counter job dropped", zap.String("type", jobType), zap.String("id", id), zap.Error(err))
	}
}

func (s *DocumentService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to create document audit", zap.Error(err))
	}
}

func contentMD5(r io.ReadSeeker) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func detectMimeType(filename string, upload DocumentUpload) (string, error) {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt, nil
	}
	if upload.MimeType != "" && upload.MimeType != "application/octet-stream" {
		return upload.MimeType, nil
	}
	header := make([]byte, 512)
	n, err := upload.Content.Read(header)
	if err != nil && err != io.EOF {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	return http.DetectContentType(header[:n]), nil
}

func cleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(filepath.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	for len(name) > 255 {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}
