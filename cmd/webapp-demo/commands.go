// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/hashicorp/oidc-webapp-demo/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "webapp-demo",
		Short: "OIDC authorization code flow web application",
		Long: `webapp-demo is a web application which authenticates its users with an
OpenID Connect provider using the authorization code flow. It supports
RP-initiated and back-channel logout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newCheckConfigCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		configFile string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return serve(cmd.Context(), cfg, newLogger(cfg, cmd.ErrOrStderr()))
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the configuration")
	return cmd
}

func newCheckConfigCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: issuer=%s client_id=%s redirect_url=%s store=%s\n",
				cfg.OIDC.Issuer, cfg.OIDC.ClientID, cfg.RedirectURL(), cfg.Session.Store)
			return err
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a YAML configuration file")
	return cmd
}
