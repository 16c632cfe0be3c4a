package client

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
)

// ErrClipboardUnavailable is returned when no clipboard can be reached.
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// Clipboard writes text to the platform clipboard.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// CopyResult says whether text reached the clipboard. When it did not,
// ManualText holds what the user should select and copy by hand.
type CopyResult struct {
	Copied     bool
	ManualText string
	Err        error
}

// Copy tries the clipboard and falls back to manual selection. It never fails.
func Copy(ctx context.Context, cb Clipboard, text string) CopyResult {
	if cb == nil {
		return CopyResult{ManualText: text, Err: ErrClipboardUnavailable}
	}
	if err := cb.WriteText(ctx, text); err != nil {
		return CopyResult{ManualText: text, Err: err}
	}
	return CopyResult{Copied: true}
}

// CommandClipboard pipes text into the first available system clipboard tool.
type CommandClipboard struct {
	candidates [][]string
	lookPath   func(string) (string, error)
}

// NewCommandClipboard picks clipboard tools for the running OS.
func NewCommandClipboard() *CommandClipboard {
	var candidates [][]string
	switch runtime.GOOS {
	case "darwin":
		candidates = [][]string{{"pbcopy"}}
	case "windows":
		candidates = [][]string{{"clip"}}
	default:
		candidates = [][]string{{"wl-copy"}, {"xclip", "-selection", "clipboard"}, {"xsel", "--clipboard", "--input"}}
	}
	return &CommandClipboard{candidates: candidates, lookPath: exec.LookPath}
}

func (c *CommandClipboard) WriteText(ctx context.Context, text string) error {
	for _, argv := range c.candidates {
		bin, err := c.lookPath(argv[0])
		if err != nil {
			continue
		}
		cmd := exec.CommandContext(ctx, bin, argv[1:]...)
		cmd.Stdin = strings.NewReader(text)
		if err := cmd.Run(); err != nil {
			return err
		}
		return nil
	}
	return ErrClipboardUnavailable
}
