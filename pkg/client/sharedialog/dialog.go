// Package sharedialog drives the owner-side share settings of one document.
package sharedialog

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/docshare-api/pkg/client"
	"github.com/noah-isme/docshare-api/pkg/sharecode"
)

// ErrDiscarded is returned when a response arrives after the dialog was
// closed or re-opened for another document. The response is not applied.
var ErrDiscarded = errors.New("sharedialog: stale response discarded")

// ErrNotOpen is returned by mutations issued while no document is open.
var ErrNotOpen = errors.New("sharedialog: dialog is not open")

// API is the subset of *client.Client the dialog talks to.
type API interface {
	GetShareStatus(ctx context.Context, documentID string) (*client.Share, error)
	CreateShare(ctx context.Context, documentID string, settings client.ShareSettings) (*client.Share, error)
	UpdateShare(ctx context.Context, documentID string, settings client.ShareSettings) (*client.Share, error)
	RevokeShare(ctx context.Context, documentID string) error
}

// ToggleState tracks the sharing switch through one mutation.
type ToggleState string

const (
	ToggleIdle      ToggleState = "idle"
	TogglePending   ToggleState = "pending"
	ToggleCommitted ToggleState = "committed"
	ToggleReverted  ToggleState = "reverted"
)

// Form holds the editable share settings. ExpireDays of zero means the share never expires.
type Form struct {
	Kind       string
	Code       string
	ExpireDays int
}

// ValidateForm mirrors the server rules so obviously bad input never leaves the client.
func ValidateForm(form Form) error {
	switch form.Kind {
	case client.ShareKindOpen:
	case client.ShareKindPassword:
		if !sharecode.Valid(form.Code) {
			return client.ValidationError("share code must be exactly 4 digits")
		}
	default:
		return client.ValidationError("share type must be no_password or with_password")
	}
	if form.ExpireDays < 0 {
		return client.ValidationError("expire days must be positive")
	}
	return nil
}

func (f Form) settings() client.ShareSettings {
	settings := client.ShareSettings{ShareType: f.Kind}
	if f.Kind == client.ShareKindPassword {
		code := f.Code
		settings.ShareCode = &code
	}
	if f.ExpireDays > 0 {
		days := f.ExpireDays
		settings.ExpireDays = &days
	}
	return settings
}

// View is a snapshot of the dialog for rendering.
type View struct {
	Open       bool
	DocumentID string
	Loading    bool
	Enabled    bool
	Toggle     ToggleState
	Share      *client.Share
	Link       string
	Err        error
}

// Dialog is the state of one share dialog. It is safe for concurrent use.
type Dialog struct {
	api       API
	origin    string
	clipboard client.Clipboard
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	generation uint64
	open       bool
	documentID string
	loading    bool
	enabled    bool
	toggle     ToggleState
	share      *client.Share
	err        error
}

// Option customises a Dialog.
type Option func(*Dialog)

// WithClipboard sets the clipboard used by CopyLink.
func WithClipboard(cb client.Clipboard) Option {
	return func(d *Dialog) { d.clipboard = cb }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dialog) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New builds a closed dialog. origin is the public web origin used for share links.
func New(api API, origin string, opts ...Option) *Dialog {
	d := &Dialog{
		api:    api,
		origin: origin,
		logger: zap.NewNop(),
		now:    time.Now,
		toggle: ToggleIdle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open shows the dialog for documentID and loads its share status. A missing
// share means sharing is disabled and is not an error.
func (d *Dialog) Open(ctx context.Context, documentID string) error {
	d.mu.Lock()
	d.generation++
	gen := d.generation
	d.open = true
	d.documentID = documentID
	d.loading = true
	d.enabled = false
	d.toggle = ToggleIdle
	d.share = nil
	d.err = nil
	d.mu.Unlock()

	share, err := d.api.GetShareStatus(ctx, documentID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.generation {
		d.logger.Debug("dropping share status for stale dialog", zap.String("document_id", documentID))
		return ErrDiscarded
	}
	d.loading = false
	switch {
	case err == nil:
		d.enabled = true
		d.share = share
	case client.IsKind(err, client.KindNotFound):
		d.enabled = false
	default:
		d.err = err
		return err
	}
	return nil
}

// Close dismisses the dialog. Responses still in flight are discarded.
func (d *Dialog) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	d.open = false
	d.documentID = ""
	d.loading = false
	d.enabled = false
	d.toggle = ToggleIdle
	d.share = nil
	d.err = nil
}

// Enable turns sharing on with the given form. The toggle flips immediately
// and reverts when the server rejects the change.
func (d *Dialog) Enable(ctx context.Context, form Form) error {
	if err := ValidateForm(form); err != nil {
		d.setError(err)
		return err
	}
	return d.mutate(ctx, true, func(documentID string) (*client.Share, error) {
		return d.api.CreateShare(ctx, documentID, form.settings())
	})
}

// Disable revokes the share.
func (d *Dialog) Disable(ctx context.Context) error {
	return d.mutate(ctx, false, func(documentID string) (*client.Share, error) {
		return nil, d.api.RevokeShare(ctx, documentID)
	})
}

// UpdateSettings changes kind, code or expiry of an enabled share. The token,
// and therefore any link already handed out, stays the same.
func (d *Dialog) UpdateSettings(ctx context.Context, form Form) error {
	if err := ValidateForm(form); err != nil {
		d.setError(err)
		return err
	}
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrNotOpen
	}
	if !d.enabled {
		d.mu.Unlock()
		return client.ValidationError("sharing is disabled")
	}
	gen := d.generation
	documentID := d.documentID
	d.err = nil
	d.mu.Unlock()

	share, err := d.api.UpdateShare(ctx, documentID, form.settings())

	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		return ErrDiscarded
	}
	if err != nil {
		d.err = err
		d.mu.Unlock()
		if client.IsKind(err, client.KindConflict) {
			d.reconcile(ctx, gen, documentID)
		}
		return err
	}
	d.share = share
	d.mu.Unlock()
	return nil
}

func (d *Dialog) mutate(ctx context.Context, target bool, call func(documentID string) (*client.Share, error)) error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrNotOpen
	}
	if d.toggle == TogglePending {
		d.mu.Unlock()
		return client.ValidationError("a share change is already in progress")
	}
	gen := d.generation
	documentID := d.documentID
	previous := d.enabled
	d.enabled = target
	d.toggle = TogglePending
	d.err = nil
	d.mu.Unlock()

	share, err := call(documentID)

	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		return ErrDiscarded
	}
	if err != nil {
		d.enabled = previous
		d.toggle = ToggleReverted
		d.err = err
		d.mu.Unlock()
		d.logger.Warn("share change reverted", zap.String("document_id", documentID), zap.Bool("enable", target), zap.Error(err))
		if client.IsKind(err, client.KindConflict) {
			d.reconcile(ctx, gen, documentID)
		}
		return err
	}
	d.toggle = ToggleCommitted
	d.share = share
	d.mu.Unlock()
	return nil
}

// reconcile re-reads the share after a conflicting write and adopts what the server holds.
func (d *Dialog) reconcile(ctx context.Context, gen uint64, documentID string) {
	share, err := d.api.GetShareStatus(ctx, documentID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.generation {
		return
	}
	switch {
	case err == nil:
		d.enabled = true
		d.share = share
	case client.IsKind(err, client.KindNotFound):
		d.enabled = false
		d.share = nil
	default:
		d.logger.Warn("share status re-query failed", zap.String("document_id", documentID), zap.Error(err))
	}
}

func (d *Dialog) setError(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Link returns the public share link, or "" while sharing is disabled.
func (d *Dialog) Link() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linkLocked()
}

func (d *Dialog) linkLocked() string {
	if !d.enabled || d.share == nil || d.share.ShareToken == "" {
		return ""
	}
	return client.ShareLink(d.origin, d.share.ShareToken)
}

// CopyLink copies the share link. When the clipboard cannot be used the result
// carries the link for manual selection.
func (d *Dialog) CopyLink(ctx context.Context) (client.CopyResult, error) {
	link := d.Link()
	if link == "" {
		return client.CopyResult{}, client.ValidationError("sharing is disabled")
	}
	return client.Copy(ctx, d.clipboard, link), nil
}

// View returns a snapshot of the current state.
func (d *Dialog) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := View{
		Open:       d.open,
		DocumentID: d.documentID,
		Loading:    d.loading,
		Enabled:    d.enabled,
		Toggle:     d.toggle,
		Link:       d.linkLocked(),
		Err:        d.err,
	}
	if d.share != nil {
		share := *d.share
		v.Share = &share
	}
	return v
}

// Expired reports whether the loaded share is past its expiry.
func (d *Dialog) Expired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.share == nil {
		return false
	}
	if d.share.IsExpired {
		return true
	}
	return d.share.ExpiresAt != nil && !d.now().Before(*d.share.ExpiresAt)
}
