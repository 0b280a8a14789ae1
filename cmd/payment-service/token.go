package main

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-payment/internal/config"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/auth"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		configPath string
		subject    string
		roles      []string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for calling the API",
		Example: `  payment-service token --sub alice --role ADMIN
  curl -H "Authorization: Bearer $(payment-service token --role ADMIN)" localhost:8080/payment/<id>`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			tok, err := auth.NewIssuer(cfg.Auth.Secret).Issue(subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&subject, "sub", "local-admin", "token subject")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleAdmin}, "roles to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
