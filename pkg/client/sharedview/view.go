// Package sharedview implements the anonymous flow behind a /shared/<token> link.
package sharedview

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/docshare-api/pkg/client"
	"github.com/noah-isme/docshare-api/pkg/sharecode"
)

// ErrDiscarded is returned when a newer Load superseded the call.
var ErrDiscarded = errors.New("sharedview: stale response discarded")

const (
	inlineInvalidCode = "Invalid share code, please try again"
	inlineRetry       = "Could not check the code right now, please try again"
)

// State is the phase of the shared page.
type State string

const (
	StateLoading          State = "loading"
	StatePasswordRequired State = "password_required"
	StateResolved         State = "resolved"
	StateNotFound         State = "not_found"
	StateFailed           State = "failed"
)

// Presentation says how a resolved document is shown.
type Presentation string

const (
	PresentImage    Presentation = "image"
	PresentMedia    Presentation = "media"
	PresentDownload Presentation = "download"
)

// PresentationFor picks the rendering for a MIME type.
func PresentationFor(mimeType string) Presentation {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return PresentImage
	case strings.HasPrefix(mimeType, "video/"), strings.HasPrefix(mimeType, "audio/"):
		return PresentMedia
	default:
		return PresentDownload
	}
}

// API is the anonymous subset of *client.Client.
type API interface {
	CheckShare(ctx context.Context, token string) (*client.ShareCheck, error)
	ResolveShare(ctx context.Context, token, code string) (*client.SharedDocument, error)
}

// Snapshot is the view state for rendering. InlineError is set while the
// code prompt should show a message next to the input.
type Snapshot struct {
	State        State
	Token        string
	Filename     string
	Document     *client.SharedDocument
	Presentation Presentation
	InlineError  string
	Err          error
}

// View is the state of one shared page. It is safe for concurrent use.
type View struct {
	api    API
	logger *zap.Logger

	mu         sync.Mutex
	generation uint64
	state      State
	token      string
	filename   string
	document   *client.SharedDocument
	inline     string
	err        error
}

// New returns a view in the loading state.
func New(api API, logger *zap.Logger) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{api: api, logger: logger, state: StateLoading}
}

// Load checks the token and, when no code is needed, resolves it straight away.
func (v *View) Load(ctx context.Context, token string) error {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.state = StateLoading
	v.token = token
	v.filename = ""
	v.document = nil
	v.inline = ""
	v.err = nil
	v.mu.Unlock()

	check, err := v.api.CheckShare(ctx, token)
	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		return ErrDiscarded
	}
	if err != nil {
		v.failLocked(err)
		v.mu.Unlock()
		return err
	}
	v.filename = check.Filename
	if check.RequiresPassword {
		v.state = StatePasswordRequired
		v.mu.Unlock()
		return nil
	}
	v.mu.Unlock()

	err = v.resolve(ctx, gen, token, "")
	if client.IsKind(err, client.KindInvalidCode) {
		return nil
	}
	return err
}

// Submit sends an access code. Codes that are not four digits are rejected
// inline without a network call.
func (v *View) Submit(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)

	v.mu.Lock()
	if v.state != StatePasswordRequired {
		state := v.state
		v.mu.Unlock()
		return client.ValidationError("no access code is expected in state " + string(state))
	}
	if !sharecode.Valid(code) {
		v.inline = "Please enter the 4-digit share code"
		v.mu.Unlock()
		return client.ValidationError("share code must be exactly 4 digits")
	}
	gen := v.generation
	token := v.token
	v.inline = ""
	v.mu.Unlock()

	return v.resolve(ctx, gen, token, code)
}

func (v *View) resolve(ctx context.Context, gen uint64, token, code string) error {
	doc, err := v.api.ResolveShare(ctx, token, code)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return ErrDiscarded
	}
	switch {
	case err == nil:
		v.state = StateResolved
		v.document = doc
		v.inline = ""
		v.err = nil
		return nil
	case client.IsKind(err, client.KindNotFound):
		v.failLocked(err)
	case client.IsKind(err, client.KindInvalidCode):
		v.state = StatePasswordRequired
		if code == "" {
			// protected after the check; ask for the code
			v.err = nil
			v.inline = ""
			break
		}
		v.err = err
		v.inline = inlineInvalidCode
	case code != "":
		// Only the submission failed; the prompt stays usable.
		v.logger.Warn("share code submission failed", zap.String("token", token), zap.Error(err))
		v.state = StatePasswordRequired
		v.err = err
		v.inline = inlineRetry
	default:
		v.failLocked(err)
	}
	return err
}

func (v *View) failLocked(err error) {
	v.err = err
	if client.IsKind(err, client.KindNotFound) {
		v.state = StateNotFound
		return
	}
	v.logger.Warn("shared document failed to load", zap.String("token", v.token), zap.Error(err))
	v.state = StateFailed
}

// Snapshot returns the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := Snapshot{
		State:       v.state,
		Token:       v.token,
		Filename:    v.filename,
		InlineError: v.inline,
		Err:         v.err,
	}
	if v.document != nil {
		doc := *v.document
		s.Document = &doc
		s.Presentation = PresentationFor(doc.MimeType)
		if doc.Filename != "" {
			s.Filename = doc.Filename
		}
	}
	return s
}
