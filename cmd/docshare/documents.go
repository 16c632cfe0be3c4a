package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/docshare-api/pkg/client"
)

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.location = client.LandingRoute
			var err error
			if email == "" {
				if email, err = a.prompt("Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = a.prompt("Password: "); err != nil {
					return err
				}
			}
			session, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			a.printf("Logged in as %s\n", displayName(session.User))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Logout(); err != nil {
				return err
			}
			a.printf("Logged out\n")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			a.printf("%s (%s)\n", displayName(*user), user.ID)
			return nil
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				doc, err := uploadFile(cmd, a, path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				note := ""
				if doc.Deduplicated {
					note = " (already uploaded)"
				}
				a.printf("%s\t%s\t%s%s\n", doc.ID, doc.Filename, client.FormatSize(doc.FileSize), note)
			}
			return nil
		},
	}
}

func uploadFile(cmd *cobra.Command, a *app, path string) (*client.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return a.client.Upload(cmd.Context(), filepath.Base(path), file)
}

func newListCmd(a *app) *cobra.Command {
	var search string
	var page, pageSize int
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List your documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, pagination, err := a.client.ListDocuments(cmd.Context(), search, page, pageSize)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tDOWNLOADS\tSHARED\tUPLOADED")
			for _, doc := range docs {
				shared := "-"
				if doc.IsShared && doc.ShareType != nil {
					shared = *doc.ShareType
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					doc.ID, doc.Filename, client.FormatSize(doc.FileSize), doc.DownloadCount, shared,
					doc.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if pagination != nil && pagination.TotalCount > len(docs) {
				a.printf("page %d, %d of %d documents\n", pagination.Page, len(docs), pagination.TotalCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Filter by filename")
	cmd.Flags().IntVar(&page, "page", 0, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Documents per page")
	return cmd
}

func newDownloadCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <document-id>",
		Short: "Download one of your documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				preview, err := a.client.Preview(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				output = filepath.Base(preview.Filename)
			}
			file, err := os.Create(output)
			if err != nil {
				return err
			}
			n, err := a.client.Download(cmd.Context(), args[0], file)
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(output)
				return err
			}
			a.printf("Saved %s (%s)\n", output, client.FormatSize(n))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (defaults to the document name)")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <document-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a document and its share link",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func displayName(user client.User) string {
	if user.Username != "" {
		return user.Username
	}
	return user.Email
}
