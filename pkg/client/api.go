package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Share kinds understood by the server.
const (
	ShareKindOpen     = "no_password"
	ShareKindPassword = "with_password"
)

// Document is an uploaded file.
type Document struct {
	ID            string     `json:"id"`
	Filename      string     `json:"filename"`
	FileSize      int64      `json:"file_size"`
	MimeType      string     `json:"mime_type"`
	FileMD5       string     `json:"file_md5"`
	DownloadCount int64      `json:"download_count"`
	IsShared      bool       `json:"is_shared"`
	ShareToken    *string    `json:"share_token,omitempty"`
	ShareType     *string    `json:"share_type,omitempty"`
	ShareExpires  *time.Time `json:"share_expired_at,omitempty"`
	Deduplicated  bool       `json:"deduplicated"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ShareSettings is the body of a create or update call. Leaving both expiry
// fields empty means the share never expires.
type ShareSettings struct {
	ShareType  string     `json:"share_type"`
	ShareCode  *string    `json:"share_code,omitempty"`
	ExpireDays *int       `json:"expire_days,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Share is the owner's view of a document share.
type Share struct {
	DocumentID  string     `json:"document_id"`
	ShareToken  string     `json:"share_token"`
	ShareURL    string     `json:"share_url"`
	ShareType   string     `json:"share_type"`
	ShareCode   *string    `json:"share_code,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at"`
	IsExpired   bool       `json:"is_expired"`
	AccessCount int64      `json:"access_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SharedItem is a row of the owner's share list.
type SharedItem struct {
	DocumentID  string     `json:"document_id"`
	Filename    string     `json:"filename"`
	MimeType    string     `json:"mime_type"`
	FileSize    int64      `json:"file_size"`
	ShareToken  string     `json:"share_token"`
	ShareURL    string     `json:"share_url"`
	ShareType   string     `json:"share_type"`
	ExpiresAt   *time.Time `json:"expires_at"`
	IsExpired   bool       `json:"is_expired"`
	AccessCount int64      `json:"access_count"`
}

// ShareCheck is the anonymous status of a share link.
type ShareCheck struct {
	RequiresPassword bool   `json:"requires_password"`
	Filename         string `json:"filename"`
}

// SharedDocument describes a resolved share.
type SharedDocument struct {
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type"`
	FileSize   int64     `json:"file_size"`
	PreviewURL string    `json:"preview_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Preview is a time-limited link to one of the caller's documents.
type Preview struct {
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type"`
	FileSize   int64     `json:"file_size"`
	PreviewURL string    `json:"preview_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        User   `json:"user"`
}

// Login exchanges credentials for a token and stores the session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	form := url.Values{
		"username":   {email},
		"password":   {password},
		"grant_type": {"password"},
	}
	var res tokenResponse
	req := request{
		method:      http.MethodPost,
		path:        "/token",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}
	if _, err := c.do(ctx, req, &res); err != nil {
		return nil, err
	}
	if res.AccessToken == "" {
		return nil, &APIError{Kind: KindInternal, Message: "token response without access_token"}
	}
	session := &Session{AccessToken: res.AccessToken, TokenType: res.TokenType, User: res.User}
	if res.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
	}
	if err := c.session.Save(session); err != nil {
		return nil, &APIError{Kind: KindInternal, Message: "save session", Err: err}
	}
	return session, nil
}

// Logout forgets the stored session.
func (c *Client) Logout() error {
	return c.session.Clear()
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, username, password string) (*User, error) {
	req, err := jsonRequest(http.MethodPost, "/register", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	var user User
	if _, err := c.do(ctx, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/users/me"}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Upload streams r as a multipart upload named filename.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*Document, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()

	var doc Document
	req := request{method: http.MethodPost, path: "/documents/upload", body: pr, contentType: writer.FormDataContentType()}
	_, err := c.do(ctx, req, &doc)
	pr.Close()
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns one page of the caller's documents.
func (c *Client) ListDocuments(ctx context.Context, search string, page, pageSize int) ([]Document, *Pagination, error) {
	query := url.Values{}
	if search != "" {
		query.Set("search", search)
	}
	if page > 0 {
		query.Set("page", fmt.Sprint(page))
	}
	if pageSize > 0 {
		query.Set("page_size", fmt.Sprint(pageSize))
	}
	var docs []Document
	pagination, err := c.do(ctx, request{method: http.MethodGet, path: "/documents/my-documents", query: query}, &docs)
	if err != nil {
		return nil, nil, err
	}
	return docs, pagination, nil
}

// ListShared returns every share owned by the caller.
func (c *Client) ListShared(ctx context.Context) ([]SharedItem, error) {
	var items []SharedItem
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/documents/shared"}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Preview returns a time-limited link to a document.
func (c *Client) Preview(ctx context.Context, documentID string) (*Preview, error) {
	var preview Preview
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/documents/preview/" + url.PathEscape(documentID)}, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// Download copies the document content into w and returns the byte count.
func (c *Client) Download(ctx context.Context, documentID string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, request{method: http.MethodGet, path: "/documents/download/" + url.PathEscape(documentID)})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, networkError(err)
	}
	return n, nil
}

// DeleteDocument removes a document and its share.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: "/documents/" + url.PathEscape(documentID)}, nil)
	return err
}

// GetShareStatus returns the document's share. A document without a share
// yields an error of KindNotFound.
func (c *Client) GetShareStatus(ctx context.Context, documentID string) (*Share, error) {
	var share Share
	if _, err := c.do(ctx, request{method: http.MethodGet, path: sharePath(documentID)}, &share); err != nil {
		return nil, err
	}
	return &share, nil
}

// CreateShare enables sharing. Calling it on a shared document updates the
// settings and keeps the token.
func (c *Client) CreateShare(ctx context.Context, documentID string, settings ShareSettings) (*Share, error) {
	return c.writeShare(ctx, http.MethodPost, documentID, settings)
}

// UpdateShare changes share settings without rotating the token.
func (c *Client) UpdateShare(ctx context.Context, documentID string, settings ShareSettings) (*Share, error) {
	return c.writeShare(ctx, http.MethodPut, documentID, settings)
}

func (c *Client) writeShare(ctx context.Context, method, documentID string, settings ShareSettings) (*Share, error) {
	req, err := jsonRequest(method, sharePath(documentID), settings)
	if err != nil {
		return nil, err
	}
	var share Share
	if _, err := c.do(ctx, req, &share); err != nil {
		return nil, err
	}
	return &share, nil
}

// RevokeShare disables sharing. Revoking an unshared document succeeds.
func (c *Client) RevokeShare(ctx context.Context, documentID string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: sharePath(documentID)}, nil)
	return err
}

// CheckShare reports whether a share link needs an access code.
func (c *Client) CheckShare(ctx context.Context, token string) (*ShareCheck, error) {
	var check ShareCheck
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/documents/shared/" + url.PathEscape(token) + "/check"}, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

// ResolveShare opens a share link. code may be empty for open shares.
func (c *Client) ResolveShare(ctx context.Context, token, code string) (*SharedDocument, error) {
	var query url.Values
	if code != "" {
		query = url.Values{"share_code": {code}}
	}
	var doc SharedDocument
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/documents/shared/" + url.PathEscape(token), query: query}, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func sharePath(documentID string) string {
	return "/documents/" + url.PathEscape(documentID) + "/share"
}
