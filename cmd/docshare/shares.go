package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/docshare-api/pkg/client"
	"github.com/noah-isme/docshare-api/pkg/client/sharedialog"
	"github.com/noah-isme/docshare-api/pkg/client/sharedview"
)

func newSharedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shared",
		Short: "List your shared documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.client.ListShared(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOCUMENT\tNAME\tTYPE\tEXPIRES\tOPENED\tLINK")
			for _, item := range items {
				expires := "never"
				if item.ExpiresAt != nil {
					expires = item.ExpiresAt.Local().Format("2006-01-02 15:04")
				}
				if item.IsExpired {
					expires = "expired"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					item.DocumentID, item.Filename, item.ShareType, expires, item.AccessCount, a.client.ShareLink(item.ShareToken))
			}
			return w.Flush()
		},
	}
}

type shareFlags struct {
	code       string
	expireDays int
	copy       bool
}

func (f *shareFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.code, "code", "", "4-digit access code; makes the share password protected")
	cmd.Flags().IntVar(&f.expireDays, "expire-days", 0, "Days until the link expires (0 keeps it forever)")
	cmd.Flags().BoolVar(&f.copy, "copy", false, "Copy the link to the clipboard")
}

func (f *shareFlags) form() sharedialog.Form {
	form := sharedialog.Form{Kind: client.ShareKindOpen, ExpireDays: f.expireDays}
	if f.code != "" {
		form.Kind = client.ShareKindPassword
		form.Code = f.code
	}
	return form
}

func newShareCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Manage the share link of a document",
	}
	cmd.AddCommand(
		newShareStatusCmd(a),
		newShareEnableCmd(a),
		newShareUpdateCmd(a),
		newShareDisableCmd(a),
	)
	return cmd
}

func (a *app) openDialog(ctx context.Context, documentID string) (*sharedialog.Dialog, error) {
	dialog := sharedialog.New(a.client, a.origin,
		sharedialog.WithClipboard(a.clipboard),
		sharedialog.WithLogger(a.logger),
	)
	if err := dialog.Open(ctx, documentID); err != nil {
		return nil, err
	}
	return dialog, nil
}

func newShareStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show whether a document is shared",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dialog, err := a.openDialog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printShare(dialog)
			return nil
		},
	}
}

func newShareEnableCmd(a *app) *cobra.Command {
	flags := &shareFlags{}
	cmd := &cobra.Command{
		Use:   "enable <document-id>",
		Short: "Share a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dialog, err := a.openDialog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := dialog.Enable(cmd.Context(), flags.form()); err != nil {
				return err
			}
			a.printShare(dialog)
			return a.copyLink(cmd.Context(), dialog, flags.copy)
		},
	}
	flags.bind(cmd)
	return cmd
}

func newShareUpdateCmd(a *app) *cobra.Command {
	flags := &shareFlags{}
	cmd := &cobra.Command{
		Use:   "update <document-id>",
		Short: "Change access code or expiry; the link stays the same",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dialog, err := a.openDialog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := dialog.UpdateSettings(cmd.Context(), flags.form()); err != nil {
				return err
			}
			a.printShare(dialog)
			return a.copyLink(cmd.Context(), dialog, flags.copy)
		},
	}
	flags.bind(cmd)
	return cmd
}

func newShareDisableCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <document-id>",
		Short: "Revoke the share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dialog, err := a.openDialog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !dialog.View().Enabled {
				a.printf("Sharing is already disabled\n")
				return nil
			}
			if err := dialog.Disable(cmd.Context()); err != nil {
				return err
			}
			a.printf("Sharing disabled\n")
			return nil
		},
	}
}

func (a *app) printShare(dialog *sharedialog.Dialog) {
	view := dialog.View()
	if !view.Enabled || view.Share == nil {
		a.printf("Sharing is disabled\n")
		return
	}
	share := view.Share
	a.printf("Link:     %s\n", view.Link)
	a.printf("Type:     %s\n", share.ShareType)
	if share.ShareCode != nil {
		a.printf("Code:     %s\n", *share.ShareCode)
	}
	switch {
	case dialog.Expired():
		a.printf("Expires:  expired\n")
	case share.ExpiresAt != nil:
		a.printf("Expires:  %s\n", share.ExpiresAt.Local().Format("2006-01-02 15:04"))
	default:
		a.printf("Expires:  never\n")
	}
	a.printf("Opened:   %d times\n", share.AccessCount)
}

func (a *app) copyLink(ctx context.Context, dialog *sharedialog.Dialog, enabled bool) error {
	if !enabled {
		return nil
	}
	res, err := dialog.CopyLink(ctx)
	if err != nil {
		return err
	}
	if res.Copied {
		a.printf("Link copied to clipboard\n")
		return nil
	}
	a.logger.Debug("clipboard unavailable", zap.Error(res.Err))
	a.printf("Clipboard unavailable, copy the link manually:\n%s\n", res.ManualText)
	return nil
}

func newOpenCmd(a *app) *cobra.Command {
	var code, output string
	cmd := &cobra.Command{
		Use:   "open <link|token>",
		Short: "Open a shared link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := client.TokenFromLink(args[0])
			a.location = "/shared/" + token

			view := sharedview.New(a.client, a.logger)
			if err := view.Load(cmd.Context(), token); err != nil {
				return describeShareError(err)
			}
			if view.Snapshot().State == sharedview.StatePasswordRequired {
				if err := a.submitCode(cmd.Context(), view, code); err != nil {
					return err
				}
			}

			snap := view.Snapshot()
			doc := snap.Document
			a.printf("Name:     %s\n", doc.Filename)
			a.printf("Type:     %s (%s)\n", doc.MimeType, snap.Presentation)
			a.printf("Size:     %s\n", client.FormatSize(doc.FileSize))
			a.printf("URL:      %s\n", doc.PreviewURL)
			if output == "" {
				return nil
			}
			if output == "." {
				output = filepath.Base(doc.Filename)
			}
			return a.fetch(cmd.Context(), doc.PreviewURL, output)
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "4-digit access code")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Save the document to this file ('.' uses its name)")
	return cmd
}

const maxCodeAttempts = 3

// submitCode uses the --code flag when given, otherwise prompts until the code
// is accepted or the attempts run out.
func (a *app) submitCode(ctx context.Context, view *sharedview.View, code string) error {
	if code != "" {
		return describeShareError(view.Submit(ctx, code))
	}
	for attempt := 1; ; attempt++ {
		entered, err := a.prompt("Share code: ")
		if err != nil {
			return err
		}
		err = view.Submit(ctx, entered)
		if err == nil {
			return nil
		}
		if view.Snapshot().State != sharedview.StatePasswordRequired || attempt == maxCodeAttempts {
			return describeShareError(err)
		}
		fmt.Fprintln(a.errOut, view.Snapshot().InlineError)
	}
}

func describeShareError(err error) error {
	switch {
	case err == nil:
		return nil
	case client.IsKind(err, client.KindNotFound):
		return fmt.Errorf("share not found or expired")
	case client.IsKind(err, client.KindInvalidCode):
		return fmt.Errorf("invalid share code")
	case client.IsKind(err, client.KindRateLimited):
		return fmt.Errorf("too many attempts, try again later")
	default:
		return err
	}
}

// fetch downloads a preview URL. Preview URLs are pre-signed, so no session is attached.
func (a *app) fetch(ctx context.Context, url, output string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	file, err := os.Create(output)
	if err != nil {
		return err
	}
	n, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(output)
		return err
	}
	a.printf("Saved %s (%s)\n", output, client.FormatSize(n))
	return nil
}
