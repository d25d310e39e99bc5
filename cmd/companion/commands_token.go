package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/companion/internal/config"
	"github.com/haasonsaas/companion/internal/httpapi"
)

func buildTokenCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the configured API secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tokens := httpapi.NewTokenService(cfg.Server.APISecret, 0)
			token, err := tokens.Issue()
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "companion.yaml", "Path to configuration file")
	return cmd
}
