package sharedialog

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docshare-api/pkg/client"
)

type apiStub struct {
	status    *client.Share
	statusErr error
	createErr error
	updateErr error
	revokeErr error

	gate chan struct{}

	created []client.ShareSettings
	updated []client.ShareSettings
	revoked int
	queried int
}

func (s *apiStub) GetShareStatus(ctx context.Context, documentID string) (*client.Share, error) {
	s.queried++
	if s.gate != nil {
		<-s.gate
	}
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.status, nil
}

func (s *apiStub) CreateShare(ctx context.Context, documentID string, settings client.ShareSettings) (*client.Share, error) {
	s.created = append(s.created, settings)
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &client.Share{DocumentID: documentID, ShareToken: "tok-1", ShareType: settings.ShareType, ShareCode: settings.ShareCode}, nil
}

func (s *apiStub) UpdateShare(ctx context.Context, documentID string, settings client.ShareSettings) (*client.Share, error) {
	s.updated = append(s.updated, settings)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return &client.Share{DocumentID: documentID, ShareToken: "tok-1", ShareType: settings.ShareType, ShareCode: settings.ShareCode}, nil
}

func (s *apiStub) RevokeShare(ctx context.Context, documentID string) error {
	s.revoked++
	return s.revokeErr
}

func notFound() error {
	return &client.APIError{Kind: client.KindNotFound, Status: http.StatusNotFound, Message: "share not found"}
}

func TestOpenTreatsNotFoundAsDisabled(t *testing.T) {
	api := &apiStub{statusErr: notFound()}
	d := New(api, "https://docs.example.com")

	require.NoError(t, d.Open(context.Background(), "doc-1"))
	view := d.View()
	assert.True(t, view.Open)
	assert.False(t, view.Enabled)
	assert.Nil(t, view.Err)
	assert.Empty(t, view.Link)
}

func TestOpenSurfacesOtherFailures(t *testing.T) {
	api := &apiStub{statusErr: &client.APIError{Kind: client.KindForbidden, Status: http.StatusForbidden}}
	d := New(api, "https://docs.example.com")

	err := d.Open(context.Background(), "doc-1")
	require.Error(t, err)
	assert.Equal(t, err, d.View().Err)
}

func TestEnableCommitsAndBuildsLink(t *testing.T) {
	api := &apiStub{statusErr: notFound()}
	d := New(api, "https://docs.example.com/")
	require.NoError(t, d.Open(context.Background(), "doc-1"))

	require.NoError(t, d.Enable(context.Background(), Form{Kind: client.ShareKindPassword, Code: "4821", ExpireDays: 7}))

	view := d.View()
	assert.True(t, view.Enabled)
	assert.Equal(t, ToggleCommitted, view.Toggle)
	assert.Equal(t, "https://docs.example.com/shared/tok-1", view.Link)
	require.Len(t, api.created, 1)
	assert.Equal(t, "4821", *api.created[0].ShareCode)
	assert.Equal(t, 7, *api.created[0].ExpireDays)
}

func TestEnableRevertsOnFailure(t *testing.T) {
	api := &apiStub{statusErr: notFound(), createErr: &client.APIError{Kind: client.KindInternal, Status: 500}}
	d := New(api, "https://docs.example.com")
	require.NoError(t, d.Open(context.Background(), "doc-1"))

	require.Error(t, d.Enable(context.Background(), Form{Kind: client.ShareKindOpen}))

	view := d.View()
	assert.False(t, view.Enabled)
	assert.Equal(t, ToggleReverted, view.Toggle)
	assert.NotNil(t, view.Err)
}

func TestDisableRevertsOnFailure(t *testing.T) {
	api := &apiStub{status: &client.Share{ShareToken: "tok-1"}, revokeErr: &client.APIError{Kind: client.KindNetwork}}
	d := New(api, "https://docs.example.com")
	require.NoError(t, d.Open(context.Background(), "doc-1"))

	require.Error(t, d.Disable(context.Background()))
	view := d.View()
	assert.True(t, view.Enabled)
	assert.Equal(t, ToggleReverted, view.Toggle)
	assert.Equal(t, "https://docs.example.com/shared/tok-1", view.Link)
}

func TestConflictAdoptsServerTruth(t *testing.T) {
	api := &apiStub{statusErr: notFound(), createErr: &client.APIError{Kind: client.KindConflict, Status: http.StatusConflict}}
	d := New(api, "https://docs.example.com")
	require.NoError(t, d.Open(context.Background(), "doc-1"))

	// another tab enabled the share meanwhile
	api.statusErr = nil
	api.status = &client.Share{ShareToken: "tok-server", ShareType: client.ShareKindOpen}

	require.Error(t, d.Enable(context.Background(), Form{Kind: client.ShareKindOpen}))
	view := d.View()
	assert.True(t, view.Enabled)
	assert.Equal(t, "https://docs.example.com/shared/tok-server", view.Link)
	assert.Equal(t, 2, api.queried)
}

func TestPasswordKindRequiresFourDigits(t *testing.T) {
	api := &apiStub{statusErr: notFound()}
	d := New(api, "https://docs.example.com")
	require.NoError(t, d.Open(context.Background(), "doc-1"))

	for _, code := range []string{"", "123", "12345", "12a4", "٤٨٢١"} {
		err := d.Enable(context.Background(), Form{Kind: client.ShareKindPassword, Code: code})
		assert.True(t, client.IsKind(err, client.KindValidation), code)
	}
	assert.Empty(t, api.created)
	assert.Equal(t, ToggleIdle, d.View().Toggle)
}

func TestUpdateSettingsKeepsToken(t *testing.T) {
	api := &apiStub{status: &client.Share{ShareToken: "tok-1", ShareType: client.ShareKindOpen}}
	d := New(api, "https://docs.example.com")
	require.NoError(t, d.Open(context.Background(), "doc-1"))
	before := d.Link()

	require.NoError(t, d.UpdateSettings(context.Background(), Form{Kind: client.ShareKindPassword, Code: "0042"}))
	assert.Equal(t, before, d.Link())
	require.Len(t, api.updated, 1)
	assert.Empty(t, api.created)
}

func TestUpdateSettingsRequiresEnabledShare(t *testing.T) {
	d := New(&apiStub{statusErr: notFound()}, "https://docs.example.com")
	assert.ErrorIs(t, d.UpdateSettings(context.Background(), Form{Kind: client.ShareKindOpen}), ErrNotOpen)

	require.NoError(t, d.Open(context.Background(), "doc-1"))
	err := d.UpdateSettings(context.Background(), Form{Kind: client.ShareKindOpen})
	assert.True(t, client.IsKind(err, client.KindValidation))
}

func TestStaleStatusAfterCloseIsDiscarded(t *testing.T) {
	api := &apiStub{status: &client.Share{ShareToken: "tok-1"}, gate: make(chan struct{})}
	d := New(api, "https://docs.example.com")

	done := make(chan error, 1)
	go func() { done <- d.Open(context.Background(), "doc-1") }()

	require.Eventually(t, func() bool { return d.View().Loading }, time.Second, time.Millisecond)
	d.Close()
	close(api.gate)

	assert.ErrorIs(t, <-done, ErrDiscarded)
	view := d.View()
	assert.False(t, view.Open)
	assert.False(t, view.Enabled)
	assert.Nil(t, view.Share)
}

type failingClipboard struct{}

func (failingClipboard) WriteText(context.Context, string) error {
	return client.ErrClipboardUnavailable
}

func TestCopyLinkFallsBack(t *testing.T) {
	api := &apiStub{status: &client.Share{ShareToken: "tok-1"}}
	d := New(api, "https://docs.example.com", WithClipboard(failingClipboard{}))
	require.NoError(t, d.Open(context.Background(), "doc-1"))

	res, err := d.CopyLink(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Copied)
	assert.Equal(t, "https://docs.example.com/shared/tok-1", res.ManualText)
}

func TestExpired(t *testing.T) {
	past := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	api := &apiStub{status: &client.Share{ShareToken: "tok-1", ExpiresAt: &past}}
	d := New(api, "https://docs.example.com")
	d.now = func() time.Time { return past.Add(time.Hour) }
	require.NoError(t, d.Open(context.Background(), "doc-1"))
	assert.True(t, d.Expired())
}
