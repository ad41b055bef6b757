package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/ogp-proxy/internal/config"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP proxy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := newRunner(cmd.Context(), &cfg, version)
			if err != nil {
				return err
			}
			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run server: %w", err)
			}
			return nil
		},
	}
}
