package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/moderation"
)

func loadRegistry(root *rootOptions) (*moderation.Registry, error) {
	cfg, err := root.load()
	if err != nil {
		return nil, err
	}
	profiles := moderation.BuiltinProfiles()
	if path := strings.TrimSpace(cfg.Moderation.ProfilesFile); path != "" {
		if profiles, err = moderation.LoadProfiles(path); err != nil {
			return nil, err
		}
	}
	return moderation.NewRegistry(profiles), nil
}

// The CLI runs the rule pass only; classifiers need network credentials.
func newModerateCmd(root *rootOptions) *cobra.Command {
	var org, imageURL string
	cmd := &cobra.Command{
		Use:   "moderate <prompt>",
		Short: "Check a prompt against an organization's moderation profile",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(root)
			if err != nil {
				return err
			}
			m := moderation.New(registry, moderation.WithEnabled(true))
			verdict := m.Check(cmd.Context(), moderation.Input{
				Prompt:   strings.Join(args, " "),
				ImageURL: imageURL,
			}, moderation.NormalizeOrgType(org))
			return writeJSON(cmd.OutOrStdout(), verdict)
		},
	}
	cmd.Flags().StringVar(&org, "org", moderation.DefaultOrgType, "Organization type")
	cmd.Flags().StringVar(&imageURL, "image-url", "", "Image URL to check alongside the prompt")
	return cmd
}

func newProfilesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List moderation profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadRegistry(root)
			if err != nil {
				return err
			}
			names := registry.Names()
			out := make([]moderation.PublicProfile, 0, len(names))
			for _, name := range names {
				out = append(out, registry.PublicView(name))
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
