package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/branding"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/database"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/moderation"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/redisclient"
)

func newBrandingCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branding",
		Short: "Manage branding profiles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <org> <file.json>",
		Short: "Upsert a branding profile and invalidate its cache entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			org := moderation.NormalizeOrgType(args[0])
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			profile, err := branding.ParseProfile(org, data)
			if err != nil {
				return err
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled() {
				return errors.New("branding import requires database.url")
			}
			ctx := cmd.Context()
			if err := database.RunMigrations(ctx, cfg.Database); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			pool, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			var store branding.Store = branding.NewPostgresStore(pool)
			if cfg.Redis.Enabled() {
				client := redisclient.New(cfg.Redis)
				defer client.Close()
				store = branding.NewCachedStore(store, branding.NewRedisCache(client, cfg.Branding.CacheTTL, root.logger(cfg)))
			}
			if err := store.Upsert(ctx, profile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported branding profile for %s\n", profile.OrgType)
			return nil
		},
	})
	return cmd
}
