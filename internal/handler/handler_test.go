package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docshare-api/internal/dto"
	"github.com/noah-isme/docshare-api/internal/middleware"
	"github.com/noah-isme/docshare-api/internal/models"
	"github.com/noah-isme/docshare-api/internal/service"
	appErrors "github.com/noah-isme/docshare-api/pkg/errors"
	"github.com/noah-isme/docshare-api/pkg/storage"
)

var testClaims = &models.JWTClaims{UserID: "user-1", Email: "owner@example.com"}

type authServiceStub struct {
	loginReq  models.LoginRequest
	loginResp *models.LoginResponse
	loginErr  error
	me        *models.UserInfo
}

func (s *authServiceStub) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	s.loginReq = req
	return s.loginResp, s.loginErr
}

func (s *authServiceStub) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	return &models.UserInfo{ID: "new", Email: req.Email, Username: req.Username}, nil
}

func (s *authServiceStub) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	return s.me, nil
}

type documentServiceStub struct {
	uploaded  service.DocumentUpload
	dedup     bool
	items     []dto.DocumentItem
	download  *service.DocumentDownload
	err       error
	deletedID string
}

func (s *documentServiceStub) Upload(ctx context.Context, upload service.DocumentUpload, actor *models.JWTClaims) (*models.Document, bool, error) {
	s.uploaded = upload
	if s.err != nil {
		return nil, false, s.err
	}
	return &models.Document{ID: "doc-1", Filename: upload.Filename, FileSize: upload.Size}, s.dedup, nil
}

func (s *documentServiceStub) List(ctx context.Context, query dto.DocumentListQuery, actor *models.JWTClaims) ([]dto.DocumentItem, *models.Pagination, error) {
	return s.items, &models.Pagination{Page: 1, PageSize: 50, TotalCount: len(s.items)}, s.err
}

func (s *documentServiceStub) Preview(ctx context.Context, id string, actor *models.JWTClaims) (*dto.PreviewResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.PreviewResponse{Filename: "a.txt", PreviewURL: "https://files/a"}, nil
}

func (s *documentServiceStub) Download(ctx context.Context, id string, actor *models.JWTClaims) (*service.DocumentDownload, error) {
	return s.download, s.err
}

func (s *documentServiceStub) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	s.deletedID = id
	return s.err
}

type shareServiceStub struct {
	status      *dto.ShareResponse
	statusErr   error
	created     bool
	upsertReq   dto.ShareRequest
	upsertDocID string
	upsertErr   error
	updateToken string
	revokedID   string
	check       *dto.ShareCheckResponse
	checkErr    error
	resolved    *dto.SharedAccessResponse
	resolveErr  error
	resolveCode string
	listed      []dto.SharedDocumentItem
}

func (s *shareServiceStub) GetStatus(ctx context.Context, documentID string, actor *models.JWTClaims) (*dto.ShareResponse, error) {
	return s.status, s.statusErr
}

func (s *shareServiceStub) CreateOrUpdate(ctx context.Context, documentID string, req dto.ShareRequest, actor *models.JWTClaims) (*dto.ShareResponse, bool, error) {
	s.upsertDocID = documentID
	s.upsertReq = req
	if s.upsertErr != nil {
		return nil, false, s.upsertErr
	}
	return &dto.ShareResponse{DocumentID: documentID, ShareToken: "tok", ShareType: req.ShareType}, s.created, nil
}

func (s *shareServiceStub) UpdateByToken(ctx context.Context, token string, req dto.ShareRequest, actor *models.JWTClaims) (*dto.ShareResponse, error) {
	s.updateToken = token
	return &dto.ShareResponse{ShareToken: token, ShareType: req.ShareType}, nil
}

func (s *shareServiceStub) Revoke(ctx context.Context, documentID string, actor *models.JWTClaims) error {
	s.revokedID = documentID
	return nil
}

func (s *shareServiceStub) ListMine(ctx context.Context, actor *models.JWTClaims) ([]dto.SharedDocumentItem, error) {
	return s.listed, nil
}

func (s *shareServiceStub) Check(ctx context.Context, token string) (*dto.ShareCheckResponse, error) {
	return s.check, s.checkErr
}

func (s *shareServiceStub) Resolve(ctx context.Context, token, code string) (*dto.SharedAccessResponse, error) {
	s.resolveCode = code
	return s.resolved, s.resolveErr
}

type exporterStub struct {
	format string
}

func (s *exporterStub) ExportShared(ctx context.Context, format string, actor *models.JWTClaims) (*service.ExportResult, error) {
	s.format = format
	return &service.ExportResult{Filename: "shared-documents-20260101.csv", ContentType: "text/csv", Data: []byte("Filename\n")}, nil
}

type signedOpenerStub struct {
	obj      *storage.Object
	filename string
	err      error
}

func (s *signedOpenerStub) OpenSigned(ctx context.Context, token string) (*storage.Object, string, error) {
	return s.obj, s.filename, s.err
}

type testDeps struct {
	auth   *authServiceStub
	docs   *documentServiceStub
	shares *shareServiceStub
	export *exporterStub
	files  *signedOpenerStub
}

func newTestRouter(t *testing.T) (*gin.Engine, *testDeps) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	deps := &testDeps{
		auth:   &authServiceStub{},
		docs:   &documentServiceStub{},
		shares: &shareServiceStub{},
		export: &exporterStub{},
		files:  &signedOpenerStub{},
	}
	requireAuth := func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(middleware.ContextUserKey, testClaims)
		c.Next()
	}

	r := gin.New()
	RegisterRoutes(r, Routes{
		APIPrefix:    "/api",
		Auth:         NewAuthHandler(deps.auth),
		Documents:    NewDocumentHandler(deps.docs),
		Shares:       NewShareHandler(deps.shares, deps.export),
		Metrics:      NewMetricsHandler(service.NewMetricsService(), nil),
		Files:        NewFileHandler(deps.files),
		RequireAuth:  requireAuth,
		RequireAdmin: middleware.RequireAdmin(),
	})
	return r, deps
}

func perform(r *gin.Engine, method, path string, body io.Reader, contentType string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer test")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func performJSON(r *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(payload)
	return perform(r, method, path, bytes.NewReader(raw), "application/json", true)
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}
