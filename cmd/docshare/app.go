package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/noah-isme/docshare-api/pkg/client"
	"github.com/noah-isme/docshare-api/pkg/logger"
)

const (
	defaultAPI      = "http://localhost:8000/api"
	defaultOrigin   = "http://localhost:3000"
	defaultLocation = "/documents"
)

// app carries what every subcommand needs. It is populated by init once flags are parsed.
type app struct {
	v         *viper.Viper
	client    *client.Client
	logger    *zap.Logger
	clipboard client.Clipboard
	origin    string

	// location is the page the command acts on behalf of. It selects the
	// 401 behaviour of the transport.
	location string

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func (a *app) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("api", defaultAPI, "DocShare API base URL (env DOCSHARE_API)")
	flags.String("origin", defaultOrigin, "Public web origin used in share links (env DOCSHARE_ORIGIN)")
	flags.String("session", "", "Session file (env DOCSHARE_SESSION, defaults to the user config dir)")
	flags.String("log-level", "warn", "Log level for request tracing (env DOCSHARE_LOG_LEVEL)")
}

func (a *app) init(cmd *cobra.Command) error {
	a.v = viper.New()
	a.v.SetEnvPrefix("DOCSHARE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	log, err := logger.NewCLI(a.v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.logger = log

	sessionPath := a.v.GetString("session")
	if sessionPath == "" {
		sessionPath, err = client.DefaultSessionPath()
		if err != nil {
			return fmt.Errorf("locate session file: %w", err)
		}
	}

	a.in = bufio.NewReader(cmd.InOrStdin())
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()
	a.origin = strings.TrimRight(a.v.GetString("origin"), "/")
	if a.location == "" {
		a.location = defaultLocation
	}
	if a.clipboard == nil {
		a.clipboard = client.NewCommandClipboard()
	}

	a.client = client.New(client.Config{
		BaseURL:   a.v.GetString("api"),
		Origin:    a.origin,
		Session:   client.NewFileStore(sessionPath),
		Logger:    a.logger,
		Navigator: client.NavigatorFunc(a.navigate),
		Location:  func() string { return a.location },
	})
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// navigate is where the transport sends the user after the session was dropped.
func (a *app) navigate(route string) {
	if route == client.LandingRoute {
		fmt.Fprintln(a.errOut, "session expired or invalid, run `docshare login`")
	}
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

// prompt reads one line from stdin.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.errOut, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimSpace(line), nil
}
