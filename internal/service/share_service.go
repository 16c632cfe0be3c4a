package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/docshare-api/internal/dto"
	"github.com/noah-isme/docshare-api/internal/models"
	appErrors "github.com/noah-isme/docshare-api/pkg/errors"
	"github.com/noah-isme/docshare-api/pkg/jobs"
	"github.com/noah-isme/docshare-api/pkg/sharecode"
	"github.com/noah-isme/docshare-api/pkg/storage"
)

type shareStore interface {
	Upsert(ctx context.Context, share *models.Share) (bool, error)
	GetByDocument(ctx context.Context, documentID string) (*models.Share, error)
	GetByToken(ctx context.Context, token string) (*models.SharedDocument, error)
	DeleteByDocument(ctx context.Context, documentID string) (bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.SharedDocument, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

type shareDocumentLookup interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
}

type sharePresigner interface {
	PresignGet(ctx context.Context, key string, opts storage.PresignOptions) (*storage.PresignedURL, error)
}

// ShareServiceConfig tunes public links and cleanup.
type ShareServiceConfig struct {
	PublicOrigin     string
	PreviewTTL       time.Duration
	CheckCacheTTL    time.Duration
	ExpiredRetention time.Duration
}

// shareCheckEntry is the cached form of a share status check. ExpiresAt is
// re-evaluated on every read so a cached entry never outlives its share.
type shareCheckEntry struct {
	RequiresPassword bool       `json:"requires_password"`
	Filename         string     `json:"filename"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

var errShareNotFound = appErrors.Clone(appErrors.ErrNotFound, "share not found or expired")

// ShareService owns the lifecycle of document shares and anonymous access to them.
type ShareService struct {
	repo      shareStore
	documents shareDocumentLookup
	store     sharePresigner
	cache     *CacheService
	counters  jobEnqueuer
	audit     auditLogger
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ShareServiceConfig
	now       func() time.Time
}

// NewShareService constructs a ShareService. validate must have the sharecode tag registered.
func NewShareService(repo shareStore, documents shareDocumentLookup, store sharePresigner, cache *CacheService, counters jobEnqueuer, audit auditLogger, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg ShareServiceConfig) *ShareService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
		_ = sharecode.Register(validate)
	}
	if cfg.PreviewTTL <= 0 {
		cfg.PreviewTTL = 10 * time.Minute
	}
	if cfg.CheckCacheTTL <= 0 {
		cfg.CheckCacheTTL = time.Minute
	}
	if cfg.ExpiredRetention < 0 {
		cfg.ExpiredRetention = 0
	}
	cfg.PublicOrigin = strings.TrimRight(cfg.PublicOrigin, "/")
	return &ShareService{
		repo:      repo,
		documents: documents,
		store:     store,
		cache:     cache,
		counters:  counters,
		audit:     audit,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ShareURL returns the public link for a token.
func (s *ShareService) ShareURL(token string) string {
	return s.cfg.PublicOrigin + "/shared/" + token
}

// GetStatus returns the share of a document owned by the actor. Expired
// shares are still returned with IsExpired set.
func (s *ShareService) GetStatus(ctx context.Context, documentID string, actor *models.JWTClaims) (*dto.ShareResponse, error) {
	if _, err := s.ownedDocument(ctx, documentID, actor); err != nil {
		return nil, err
	}
	share, err := s.repo.GetByDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document is not shared")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load share")
	}
	return s.toResponse(share), nil
}

// CreateOrUpdate enables sharing for a document or replaces its settings.
// The token of an existing share is never changed. created reports whether
// the share did not exist before.
func (s *ShareService) CreateOrUpdate(ctx context.Context, documentID string, req dto.ShareRequest, actor *models.JWTClaims) (*dto.ShareResponse, bool, error) {
	code, expiresAt, err := s.validateRequest(req)
	if err != nil {
		return nil, false, err
	}
	doc, err := s.ownedDocument(ctx, documentID, actor)
	if err != nil {
		return nil, false, err
	}

	share := &models.Share{
		DocumentID: doc.ID,
		OwnerID:    doc.UploaderID,
		Type:       req.ShareType,
		Code:       code,
		ExpiresAt:  expiresAt,
	}
	created, err := s.repo.Upsert(ctx, share)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save share")
	}
	_ = s.cache.Invalidate(ctx, checkCacheKey(share.Token))

	action := models.AuditActionShareUpdate
	if created {
		action = models.AuditActionShareCreate
	}
	s.metrics.RecordShareMutation(action)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "document_share",
		ResourceID: &doc.ID,
		NewValues:  []byte(fmt.Sprintf(`{"share_type":%q,"expires_at":%s}`, share.Type, jsonTime(share.ExpiresAt))),
	})
	return s.toResponse(share), created, nil
}

// UpdateByToken applies new settings to the share identified by its token.
func (s *ShareService) UpdateByToken(ctx context.Context, token string, req dto.ShareRequest, actor *models.JWTClaims) (*dto.ShareResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	shared, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "share not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load share")
	}
	if shared.OwnerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "share belongs to another user")
	}
	resp, _, err := s.CreateOrUpdate(ctx, shared.DocumentID, req, actor)
	return resp, err
}

// Revoke disables sharing for a document. Revoking an unshared document succeeds.
func (s *ShareService) Revoke(ctx context.Context, documentID string, actor *models.JWTClaims) error {
	if _, err := s.ownedDocument(ctx, documentID, actor); err != nil {
		return err
	}
	existing, err := s.repo.GetByDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load share")
	}
	deleted, err := s.repo.DeleteByDocument(ctx, documentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke share")
	}
	_ = s.cache.Invalidate(ctx, checkCacheKey(existing.Token))
	if !deleted {
		return nil
	}
	s.metrics.RecordShareMutation(models.AuditActionShareRevoke)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionShareRevoke,
		Resource:   "document_share",
		ResourceID: &documentID,
	})
	return nil
}

// ForgetDocument drops cached state for a document's share before the document is deleted.
func (s *ShareService) ForgetDocument(ctx context.Context, documentID string) {
	share, err := s.repo.GetByDocument(ctx, documentID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load share for deleted document", zap.String("document_id", documentID), zap.Error(err))
		}
		return
	}
	_ = s.cache.Invalidate(ctx, checkCacheKey(share.Token))
}

// Check reports whether a live share needs an access code. Unknown, revoked
// and expired tokens are all reported as not found.
func (s *ShareService) Check(ctx context.Context, token string) (*dto.ShareCheckResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errShareNotFound
	}
	key := checkCacheKey(token)

	var entry shareCheckEntry
	if hit, _ := s.cache.Get(ctx, key, &entry); hit {
		if entry.ExpiresAt != nil && !s.now().Before(*entry.ExpiresAt) {
			_ = s.cache.Invalidate(ctx, key)
			s.metrics.RecordShareResolution("check", ShareOutcomeNotFound)
			return nil, errShareNotFound
		}
		return s.checkResponse(entry), nil
	}

	shared, err := s.liveShare(ctx, token, "check")
	if err != nil {
		return nil, err
	}
	entry = shareCheckEntry{
		RequiresPassword: shared.Type.RequiresCode(),
		Filename:         shared.Filename,
		ExpiresAt:        shared.ExpiresAt,
	}
	ttl := s.cfg.CheckCacheTTL
	if shared.ExpiresAt != nil {
		if remaining := shared.ExpiresAt.Sub(s.now()); remaining < ttl {
			ttl = remaining
		}
	}
	_ = s.cache.Set(ctx, key, entry, ttl)
	return s.checkResponse(entry), nil
}

func (s *ShareService) checkResponse(entry shareCheckEntry) *dto.ShareCheckResponse {
	outcome := ShareOutcomeResolved
	if entry.RequiresPassword {
		outcome = ShareOutcomeCodeNeeded
	}
	s.metrics.RecordShareResolution("check", outcome)
	return &dto.ShareCheckResponse{RequiresPassword: entry.RequiresPassword, Filename: entry.Filename}
}

// Resolve returns the shared document descriptor with a time-limited preview
// link. A live password share with a missing or wrong code yields ErrInvalidShareCode.
func (s *ShareService) Resolve(ctx context.Context, token, code string) (*dto.SharedAccessResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errShareNotFound
	}
	shared, err := s.liveShare(ctx, token, "resolve")
	if err != nil {
		return nil, err
	}
	if shared.Type.RequiresCode() && !codesMatch(shared.Code, code) {
		s.metrics.RecordShareResolution("resolve", ShareOutcomeInvalidCode)
		return nil, appErrors.Clone(appErrors.ErrInvalidShareCode, "invalid share code")
	}

	link, err := s.store.PresignGet(ctx, shared.StorageKey, storage.PresignOptions{
		Filename:    shared.Filename,
		ContentType: shared.MimeType,
		TTL:         s.cfg.PreviewTTL,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate preview url")
	}

	s.enqueueAccess(shared.ID)
	s.metrics.RecordShareResolution("resolve", ShareOutcomeResolved)
	return &dto.SharedAccessResponse{
		Filename:       shared.Filename,
		MimeType:       shared.MimeType,
		FileSize:       shared.FileSize,
		PreviewURL:     link.URL,
		ExpiresAt:      link.ExpiresAt,
		ShareExpiresAt: shared.ExpiresAt,
	}, nil
}

// ListMine returns every share owned by the actor, newest first.
func (s *ShareService) ListMine(ctx context.Context, actor *models.JWTClaims) ([]dto.SharedDocumentItem, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	rows, err := s.repo.ListByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list shares")
	}
	now := s.now()
	items := make([]dto.SharedDocumentItem, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		items = append(items, dto.SharedDocumentItem{
			DocumentID:  row.DocumentID,
			Filename:    row.Filename,
			MimeType:    row.MimeType,
			FileSize:    row.FileSize,
			ShareToken:  row.Token,
			ShareURL:    s.ShareURL(row.Token),
			ShareType:   row.Type,
			ExpiresAt:   row.ExpiresAt,
			IsExpired:   row.Share.Expired(now),
			AccessCount: row.AccessCount,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return items, nil
}

// SweepExpired deletes shares that expired longer ago than the retention window.
func (s *ShareService) SweepExpired(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.cfg.ExpiredRetention)
	tokens, err := s.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(tokens) > 0 {
		keys := make([]string, 0, len(tokens))
		for _, token := range tokens {
			keys = append(keys, checkCacheKey(token))
		}
		_ = s.cache.Invalidate(ctx, keys...)
		s.logger.Info("expired shares swept", zap.Int("count", len(tokens)), zap.Time("cutoff", cutoff))
	}
	return len(tokens), nil
}

func (s *ShareService) liveShare(ctx context.Context, token, stage string) (*models.SharedDocument, error) {
	shared, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordShareResolution(stage, ShareOutcomeNotFound)
			return nil, errShareNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load share")
	}
	if shared.Share.Expired(s.now()) {
		s.metrics.RecordShareResolution(stage, ShareOutcomeNotFound)
		return nil, errShareNotFound
	}
	return shared, nil
}

func (s *ShareService) ownedDocument(ctx context.Context, documentID string, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.UploaderID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner can manage sharing")
	}
	return doc, nil
}

func (s *ShareService) validateRequest(req dto.ShareRequest) (*string, *time.Time, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid share settings")
	}

	var code *string
	if req.ShareType.RequiresCode() {
		value := ""
		if req.ShareCode != nil {
			value = strings.TrimSpace(*req.ShareCode)
		}
		if err := s.validator.Var(value, "required,"+sharecode.ValidationTag); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "share code must be exactly 4 digits")
		}
		code = &value
	}

	now := s.now().UTC()
	var expiresAt *time.Time
	switch {
	case req.ExpireDays != nil && req.ExpiresAt != nil:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "expire_days and expires_at are mutually exclusive")
	case req.ExpireDays != nil:
		at := now.Add(time.Duration(*req.ExpireDays) * 24 * time.Hour)
		expiresAt = &at
	case req.ExpiresAt != nil:
		at := req.ExpiresAt.UTC()
		if !at.After(now) {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "expires_at must be in the future")
		}
		expiresAt = &at
	}
	return code, expiresAt, nil
}

func (s *ShareService) toResponse(share *models.Share) *dto.ShareResponse {
	return &dto.ShareResponse{
		DocumentID:  share.DocumentID,
		ShareToken:  share.Token,
		ShareURL:    s.ShareURL(share.Token),
		ShareType:   share.Type,
		ShareCode:   share.Code,
		ExpiresAt:   share.ExpiresAt,
		IsExpired:   share.Expired(s.now()),
		AccessCount: share.AccessCount,
		CreatedAt:   share.CreatedAt,
		UpdatedAt:   share.UpdatedAt,
	}
}

func (s *ShareService) enqueueAccess(shareID string) {
	if s.counters == nil {
		return
	}
	if err := s.counters.TryEnqueue(jobs.Job{Type: JobTypeShareAccess, Payload: shareID}); err != nil {
		s.metrics.RecordJobDropped(s.counters.Name())
		s.logger.Warn("share access counter dropped", zap.String("share_id", shareID), zap.Error(err))
	}
}

func (s *ShareService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to create share audit", zap.String("action", log.Action), zap.Error(err))
	}
}

func codesMatch(stored *string, supplied string) bool {
	if stored == nil {
		return false
	}
	supplied = strings.TrimSpace(supplied)
	if len(supplied) != len(*stored) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(supplied)) == 1
}

func checkCacheKey(token string) string {
	return "share:check:" + token
}

func jsonTime(t *time.Time) string {
	if t == nil {
		return "null"
	}
	return `"` + t.UTC().Format(time.RFC3339) + `"`
}
