// attractions-tool is a command-line client for the attractions catalog.  It
// can list the catalog, write and manage reviews, and (for the administrator)
// add attractions.
package main

import (
	"context"
	"flag"
	"fmt"

	"attractions/backends"
	"attractions/catalog"
	"attractions/config"
	"attractions/identity"
	"attractions/upload"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var cmdRoot = &cobra.Command{
	Use:          "attractions-tool",
	SilenceUsage: true,
}

func init() {
	config.RegisterFlags(cmdRoot.PersistentFlags())
	cmdRoot.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

// app is everything a subcommand needs, opened from the configuration.
type app struct {
	cfg      *config.Config
	backends *backends.Backends
	session  *identity.Session
	repo     *catalog.Repository
	pipeline *upload.Pipeline
}

// openApp connects to the backends and, if a token is configured, signs in.
func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("while loading configuration: %w", err)
	}

	b, err := backends.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	session, err := newSession(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		backends: b,
		session:  session,
		repo:     catalog.New(b.Store, session, catalog.WithFetchTimeout(cfg.FetchTimeout)),
		pipeline: upload.New(b.Sink, session, upload.WithTimeout(cfg.UploadTimeout)),
	}
	return a, nil
}

func newSession(ctx context.Context, cfg *config.Config) (*identity.Session, error) {
	var tokens identity.TokenSource
	switch {
	case cfg.IDTokenFile != "":
		tokens = identity.TokenFromFile(cfg.IDTokenFile)
	case cfg.IDToken != "":
		tokens = identity.StaticToken(cfg.IDToken)
	}

	if tokens == nil || cfg.OAuthClientID == "" {
		glog.Infof("No identity token or OAuth client configured; continuing signed out")
		session := identity.NewSession(signedOut{}, cfg.AdminEmail)
		session.Start()
		return session, nil
	}

	provider, err := identity.NewGoogleProvider(ctx, cfg.OAuthClientID, tokens)
	if err != nil {
		return nil, err
	}
	session := identity.NewSession(provider, cfg.AdminEmail)
	session.Start()
	if _, err := session.SignIn(ctx); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

func (a *app) Close() {
	a.session.Close()
	if err := a.backends.Close(); err != nil {
		glog.Errorf("Error closing backends: %v", err)
	}
	glog.Flush()
}

// signedOut is the identity provider used when no credentials are configured.
type signedOut struct{}

func (signedOut) SignIn(ctx context.Context) (*identity.User, error) {
	return nil, identity.ErrNoToken
}

func (signedOut) SignOut(ctx context.Context) error { return nil }

func (signedOut) OnChange(fn func(*identity.User)) func() {
	fn(nil)
	return func() {}
}

// withApp adapts a subcommand body to cobra, opening and closing the app
// around it.
func withApp(run func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return run(ctx, a, cmd, args)
	}
}

func main() {
	glog.CopyStandardLogTo("INFO")

	cmdRoot.AddCommand(cmdCatalog, cmdWhoami, cmdReview, cmdAttraction)
	cmdCatalog.AddCommand(cmdCatalogList)
	cmdReview.AddCommand(cmdReviewAdd, cmdReviewEdit, cmdReviewDelete)
	cmdAttraction.AddCommand(cmdAttractionAdd)

	if err := cmdRoot.Execute(); err != nil {
		glog.Exitf("Error: %v", err)
	}
}
