package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/apikeys"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/moderation"
)

type keyReport struct {
	OrgType string `json:"org_type"`
	EnvName string `json:"env_name"`
	Source  string `json:"source"`
	Key     string `json:"key,omitempty"`
}

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys <org>",
		Short: "Show which fal key an organization would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			org := moderation.NormalizeOrgType(args[0])
			report := keyReport{OrgType: org, EnvName: apikeys.EnvName(org)}
			key, source, err := apikeys.New().FalKey(org)
			switch {
			case errors.Is(err, apikeys.ErrMissingKey):
				report.Source = "missing"
			case err != nil:
				return err
			default:
				report.Source = string(source)
				report.Key = apikeys.Mask(key)
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}
