package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/docshare-api/internal/dto"
	"github.com/noah-isme/docshare-api/internal/models"
	"github.com/noah-isme/docshare-api/internal/repository"
	appErrors "github.com/noah-isme/docshare-api/pkg/errors"
	"github.com/noah-isme/docshare-api/pkg/jobs"
	"github.com/noah-isme/docshare-api/pkg/sharecode"
	"github.com/noah-isme/docshare-api/pkg/storage"
)

type documentRepoStub struct {
	docs map[string]*models.Document
}

func newDocumentRepoStub(docs ...*models.Document) *documentRepoStub {
	stub := &documentRepoStub{docs: make(map[string]*models.Document)}
	for _, d := range docs {
		stub.docs[d.ID] = d
	}
	return stub
}

func (r *documentRepoStub) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc-%d", len(r.docs)+1)
	}
	copy := *doc
	r.docs[doc.ID] = &copy
	return nil
}

func (r *documentRepoStub) GetByID(ctx context.Context, id string) (*models.Document, error) {
	if d, ok := r.docs[id]; ok {
		copy := *d
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *documentRepoStub) FindByMD5(ctx context.Context, uploaderID, md5sum string) (*models.Document, error) {
	for _, d := range r.docs {
		if d.UploaderID == uploaderID && d.FileMD5 == md5sum {
			copy := *d
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *documentRepoStub) ListByUploader(ctx context.Context, uploaderID string, filter models.DocumentFilter) ([]models.DocumentListItem, int, error) {
	var items []models.DocumentListItem
	for _, d := range r.docs {
		if d.UploaderID == uploaderID {
			items = append(items, models.DocumentListItem{Document: *d})
		}
	}
	return items, len(items), nil
}

func (r *documentRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := r.docs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.docs, id)
	return nil
}

type shareRepoStub struct {
	docs   *documentRepoStub
	shares map[string]*models.Share
	seq    int
}

func newShareRepoStub(docs *documentRepoStub) *shareRepoStub {
	return &shareRepoStub{docs: docs, shares: make(map[string]*models.Share)}
}

func (r *shareRepoStub) Upsert(ctx context.Context, share *models.Share) (bool, error) {
	now := time.Now().UTC()
	if existing, ok := r.shares[share.DocumentID]; ok {
		existing.Type = share.Type
		existing.Code = share.Code
		existing.ExpiresAt = share.ExpiresAt
		existing.UpdatedAt = now
		*share = *existing
		return false, nil
	}
	r.seq++
	stored := *share
	stored.ID = fmt.Sprintf("share-%d", r.seq)
	stored.Token = fmt.Sprintf("token-%d", r.seq)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.shares[share.DocumentID] = &stored
	*share = stored
	return true, nil
}

func (r *shareRepoStub) GetByDocument(ctx context.Context, documentID string) (*models.Share, error) {
	if s, ok := r.shares[documentID]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *shareRepoStub) GetByToken(ctx context.Context, token string) (*models.SharedDocument, error) {
	for _, s := range r.shares {
		if s.Token == token {
			doc := r.docs.docs[s.DocumentID]
			return &models.SharedDocument{Share: *s, Filename: doc.Filename, MimeType: doc.MimeType, FileSize: doc.FileSize, StorageKey: doc.StorageKey}, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *shareRepoStub) DeleteByDocument(ctx context.Context, documentID string) (bool, error) {
	_, ok := r.shares[documentID]
	delete(r.shares, documentID)
	return ok, nil
}

func (r *shareRepoStub) ListByOwner(ctx context.Context, ownerID string) ([]models.SharedDocument, error) {
	var out []models.SharedDocument
	for _, s := range r.shares {
		if s.OwnerID == ownerID {
			doc := r.docs.docs[s.DocumentID]
			out = append(out, models.SharedDocument{Share: *s, Filename: doc.Filename, MimeType: doc.MimeType, FileSize: doc.FileSize})
		}
	}
	return out, nil
}

func (r *shareRepoStub) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var tokens []string
	for docID, s := range r.shares {
		if s.ExpiresAt != nil && s.ExpiresAt.Before(cutoff) {
			tokens = append(tokens, s.Token)
			delete(r.shares, docID)
		}
	}
	return tokens, nil
}

type presignStub struct{}

func (presignStub) PresignGet(ctx context.Context, key string, opts storage.PresignOptions) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{URL: "https://files.test/" + key, ExpiresAt: time.Now().Add(opts.TTL)}, nil
}

type enqueueStub struct {
	jobs []jobs.Job
	err  error
}

func (e *enqueueStub) Name() string { return "counters" }

func (e *enqueueStub) TryEnqueue(job jobs.Job) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, job)
	return nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type shareFixture struct {
	svc      *ShareService
	docs     *documentRepoStub
	shares   *shareRepoStub
	counters *enqueueStub
	audit    *auditStub
	owner    *models.JWTClaims
	stranger *models.JWTClaims
	clock    time.Time
}

func newShareFixture(t *testing.T) *shareFixture {
	t.Helper()
	docs := newDocumentRepoStub(
		&models.Document{ID: "doc-1", Filename: "report.pdf", MimeType: "application/pdf", FileSize: 2048, StorageKey: "owner/report.pdf", UploaderID: "owner"},
	)
	shares := newShareRepoStub(docs)
	validate := validator.New()
	require.NoError(t, sharecode.Register(validate))

	f := &shareFixture{
		docs:     docs,
		shares:   shares,
		counters: &enqueueStub{},
		audit:    &auditStub{},
		owner:    &models.JWTClaims{UserID: "owner"},
		stranger: &models.JWTClaims{UserID: "stranger"},
		clock:    time.Now().UTC(),
	}
	cache := NewCacheService(repository.NewLRUCacheRepository(64, time.Minute), nil, time.Minute, zap.NewNop(), true)
	f.svc = NewShareService(shares, docs, presignStub{}, cache, f.counters, f.audit, validate, nil, zap.NewNop(), ShareServiceConfig{
		PublicOrigin:     "https://docs.example.com/",
		PreviewTTL:       10 * time.Minute,
		ExpiredRetention: 24 * time.Hour,
	})
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

func TestShareStatusNotFoundThenCreated(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetStatus(ctx, "doc-1", f.owner)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	resp, created, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypePassword, ShareCode: strPtr("0427")}, f.owner)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "https://docs.example.com/shared/"+resp.ShareToken, resp.ShareURL)

	status, err := f.svc.GetStatus(ctx, "doc-1", f.owner)
	require.NoError(t, err)
	assert.Equal(t, models.ShareTypePassword, status.ShareType)
	require.NotNil(t, status.ShareCode)
	assert.Equal(t, "0427", *status.ShareCode)
	assert.False(t, status.IsExpired)

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionShareCreate, f.audit.logs[0].Action)
}

func TestShareCodeValidation(t *testing.T) {
	cases := []struct {
		name  string
		code  *string
		valid bool
	}{
		{name: "letter", code: strPtr("12a4")},
		{name: "too short", code: strPtr("123")},
		{name: "too long", code: strPtr("12345")},
		{name: "missing", code: nil},
		{name: "empty", code: strPtr("")},
		{name: "leading zero", code: strPtr("0427"), valid: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newShareFixture(t)
			_, _, err := f.svc.CreateOrUpdate(context.Background(), "doc-1", dto.ShareRequest{ShareType: models.ShareTypePassword, ShareCode: tc.code}, f.owner)
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
		})
	}
}

func TestShareOpenIgnoresCode(t *testing.T) {
	f := newShareFixture(t)

	resp, _, err := f.svc.CreateOrUpdate(context.Background(), "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen, ShareCode: strPtr("zz")}, f.owner)
	require.NoError(t, err)
	assert.Nil(t, resp.ShareCode)
	assert.Nil(t, resp.ExpiresAt)
}

func TestShareTokenStableAcrossUpdates(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	first, created, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen}, f.owner)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypePassword, ShareCode: strPtr("4821"), ExpireDays: intPtr(7)}, f.owner)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ShareToken, second.ShareToken)
	assert.Equal(t, models.ShareTypePassword, second.ShareType)
	require.NotNil(t, second.ExpiresAt)
	assert.WithinDuration(t, f.clock.Add(7*24*time.Hour), *second.ExpiresAt, time.Second)

	third, err := f.svc.UpdateByToken(ctx, first.ShareToken, dto.ShareRequest{ShareType: models.ShareTypeOpen}, f.owner)
	require.NoError(t, err)
	assert.Equal(t, first.ShareToken, third.ShareToken)
	assert.Nil(t, third.ShareCode)
}

func TestShareExpiryValidation(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()
	past := f.clock.Add(-time.Minute)
	future := f.clock.Add(time.Hour)

	_, _, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen, ExpiresAt: &past}, f.owner)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, _, err = f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen, ExpireDays: intPtr(0)}, f.owner)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, _, err = f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen, ExpireDays: intPtr(1), ExpiresAt: &future}, f.owner)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	resp, _, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen, ExpiresAt: &future}, f.owner)
	require.NoError(t, err)
	require.NotNil(t, resp.ExpiresAt)
	assert.WithinDuration(t, future, *resp.ExpiresAt, time.Millisecond)
}

func TestShareOnlyOwnerManages(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetStatus(ctx, "doc-1", f.stranger)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, _, err = f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen}, f.stranger)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	err = f.svc.Revoke(ctx, "doc-1", f.stranger)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.GetStatus(ctx, "missing", f.owner)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestShareResolvePasswordFlow(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	resp, _, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypePassword, ShareCode: strPtr("4821")}, f.owner)
	require.NoError(t, err)

	check, err := f.svc.Check(ctx, resp.ShareToken)
	require.NoError(t, err)
	assert.True(t, check.RequiresPassword)
	assert.Equal(t, "report.pdf", check.Filename)

	_, err = f.svc.Resolve(ctx, resp.ShareToken, "0000")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidShareCode))
	assert.False(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Resolve(ctx, resp.ShareToken, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidShareCode))

	doc, err := f.svc.Resolve(ctx, resp.ShareToken, "4821")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Equal(t, int64(2048), doc.FileSize)
	assert.Equal(t, "https://files.test/owner/report.pdf", doc.PreviewURL)

	require.Len(t, f.counters.jobs, 1)
	assert.Equal(t, JobTypeShareAccess, f.counters.jobs[0].Type)

	_, err = f.svc.Resolve(ctx, "unknown-token", "4821")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	_, err = f.svc.Check(ctx, "unknown-token")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestShareOpenResolvesWithoutCode(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	resp, _, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen}, f.owner)
	require.NoError(t, err)

	check, err := f.svc.Check(ctx, resp.ShareToken)
	require.NoError(t, err)
	assert.False(t, check.RequiresPassword)

	_, err = f.svc.Resolve(ctx, resp.ShareToken, "")
	require.NoError(t, err)
}

func TestShareCheckCacheInvalidatedOnUpdate(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	resp, _, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen}, f.owner)
	require.NoError(t, err)

	check, err := f.svc.Check(ctx, resp.ShareToken)
	require.NoError(t, err)
	assert.False(t, check.RequiresPassword)

	_, _, err = f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypePassword, ShareCode: strPtr("1111")}, f.owner)
	require.NoError(t, err)

	check, err = f.svc.Check(ctx, resp.ShareToken)
	require.NoError(t, err)
	assert.True(t, check.RequiresPassword)
}

func TestShareExpiredIsNotFoundForVisitorsOnly(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	resp, _, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen, ExpireDays: intPtr(1)}, f.owner)
	require.NoError(t, err)

	_, err = f.svc.Check(ctx, resp.ShareToken)
	require.NoError(t, err)

	f.clock = f.clock.Add(25 * time.Hour)

	_, err = f.svc.Check(ctx, resp.ShareToken)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	_, err = f.svc.Resolve(ctx, resp.ShareToken, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	status, err := f.svc.GetStatus(ctx, "doc-1", f.owner)
	require.NoError(t, err)
	assert.True(t, status.IsExpired)

	items, err := f.svc.ListMine(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsExpired)
}

func TestShareRevokeIsIdempotent(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	resp, _, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen}, f.owner)
	require.NoError(t, err)
	_, err = f.svc.Check(ctx, resp.ShareToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, "doc-1", f.owner))
	require.NoError(t, f.svc.Revoke(ctx, "doc-1", f.owner))

	_, err = f.svc.Check(ctx, resp.ShareToken)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	_, err = f.svc.Resolve(ctx, resp.ShareToken, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.GetStatus(ctx, "doc-1", f.owner)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, ok := f.docs.docs["doc-1"]
	assert.True(t, ok, "document must survive revoke")
}

func TestShareSweepExpired(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CreateOrUpdate(ctx, "doc-1", dto.ShareRequest{ShareType: models.ShareTypeOpen, ExpireDays: intPtr(1)}, f.owner)
	require.NoError(t, err)

	f.clock = f.clock.Add(36 * time.Hour)
	removed, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "retention window not yet elapsed")

	f.clock = f.clock.Add(24 * time.Hour)
	job := NewShareSweepJob(f.svc)
	assert.Equal(t, "share-sweeper", job.Name())
	require.NoError(t, job.Run(ctx))
	assert.Empty(t, f.shares.shares)
}

func TestCodesMatch(t *testing.T) {
	assert.True(t, codesMatch(strPtr("4821"), "4821"))
	assert.True(t, codesMatch(strPtr("4821"), " 4821 "))
	assert.False(t, codesMatch(strPtr("4821"), "482"))
	assert.False(t, codesMatch(nil, "4821"))
}
