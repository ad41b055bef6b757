// Package cmd defines the CLI commands for the ogproxy executable.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/ogp-proxy/internal/config"
	"github.com/JakeFAU/ogp-proxy/internal/server"
)

// Build metadata, set with -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

// runner is what the serve command drives. It is an interface so tests can
// substitute the application.
type runner interface {
	Run(ctx context.Context) error
}

// newRunner builds the application. It's a variable so tests can replace it.
var newRunner = func(ctx context.Context, cfg *config.Config, version string) (runner, error) {
	app, err := server.Build(ctx, cfg, version)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}
	return app, nil
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd(out io.Writer) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "ogproxy",
		Short: "Open Graph metadata and image proxy.",
		Long: `ogproxy fetches web pages and images on behalf of clients. It extracts
Open Graph metadata as JSON and re-encodes preview images and favicons into
small WebP thumbnails, falling back to placeholder images on failure.`,
		SilenceUsage: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars prefixed OGPROXY_ override it")

	cmd.AddCommand(newServeCmd(&cfgFile))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
