package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/enhancement"
)

func newEnhanceCmd(root *rootOptions) *cobra.Command {
	var (
		selects    []string
		mode       string
		withText   bool
		customText string
	)
	cmd := &cobra.Command{
		Use:   "enhance <prompt>",
		Short: "Assemble the canonical prompt for a set of selections",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selections, err := parseSelections(selects)
			if err != nil {
				return err
			}
			cfg, err := root.load()
			if err != nil {
				return err
			}
			enhancer := enhancement.New(enhancement.LoadSource(cfg.Enhancement.ConfigFile, root.logger(cfg)).Current())

			result := enhancer.Generate(strings.Join(args, " "), selections)
			out := struct {
				enhancement.Result
				Text *enhancement.TextResult `json:"text,omitempty"`
			}{Result: result}
			if withText || customText != "" {
				text := enhancer.ApplyText(result.EnhancedPrompt, enhancement.TextOptions{
					Mode:        enhancement.ParseMode(mode),
					UseEditText: cfg.Enhancement.EditTextMode == config.EditTextModeEdit,
					CustomText:  customText,
				})
				out.Text = &text
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringArrayVarP(&selects, "select", "s", nil, "Selection as category=option (repeatable)")
	cmd.Flags().StringVar(&mode, "mode", "generate", "generate or edit")
	cmd.Flags().BoolVar(&withText, "text", false, "Append the enhancement text")
	cmd.Flags().StringVar(&customText, "custom-text", "", "Replace the configured enhancement text")
	return cmd
}

func newOptionsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List enhancement categories, options and defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			snap := enhancement.LoadSource(cfg.Enhancement.ConfigFile, root.logger(cfg)).Current()
			enhancer := enhancement.New(snap)
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"options":     enhancer.ListOptions(),
				"defaults":    enhancer.Defaults(),
				"weights":     enhancer.Weights(),
				"version":     snap.Version(),
				"origin":      snap.Origin(),
				"fingerprint": snap.Fingerprint(),
			})
		},
	}
}

func parseSelections(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, s := range raw {
		category, option, ok := strings.Cut(s, "=")
		category, option = strings.TrimSpace(category), strings.TrimSpace(option)
		if !ok || category == "" || option == "" {
			return nil, fmt.Errorf("invalid selection %q, want category=option", s)
		}
		out[category] = option
	}
	return out, nil
}
