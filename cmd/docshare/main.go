package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "docshare: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return newRootCommandFor(&app{})
}

func newRootCommandFor(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docshare",
		Short: "DocShare command line client",
		Long: `docshare uploads documents to a DocShare server, manages their share links
and opens links other people shared with you.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	a.bindFlags(cmd)
	cmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newUploadCmd(a),
		newListCmd(a),
		newDownloadCmd(a),
		newRemoveCmd(a),
		newSharedCmd(a),
		newShareCmd(a),
		newOpenCmd(a),
	)
	return cmd
}
