package main

import (
	"github.com/spf13/cobra"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/providers"
)

type providerReport struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type resolveReport struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func newProvidersCmd(root *rootOptions) *cobra.Command {
	var model string
	var edit bool
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List image providers, or show where --model would be routed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("model") {
				defs := providers.DefaultDefinitions()
				out := make([]providerReport, 0, len(defs))
				for _, def := range defs {
					out = append(out, providerReport{Name: def.Name, Description: def.Description})
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}
			fc := cfg.Providers.Fal
			// routing only; no clients are built
			registry := providers.NewRegistry(fc.DefaultModel, fc.EditModel,
				providers.Route{Provider: providers.ProviderFal, Model: fc.DefaultModel},
				providers.Route{Provider: providers.ProviderOpenAI, Model: cfg.Providers.OpenAI.Model},
			)
			route, err := registry.Resolve(model, edit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resolveReport{Provider: route.Provider, Model: route.Model})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model to resolve")
	cmd.Flags().BoolVar(&edit, "edit", false, "Resolve for the edit path")
	return cmd
}
