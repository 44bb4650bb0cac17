package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile      string
	envFile         string
	enhancementFile string
	verbose         bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "promptctl",
		Short:         "Inspect and exercise the image studio prompt pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pflags := cmd.PersistentFlags()
	pflags.StringVar(&opts.configFile, "config-file", "", "Path to the studio config file")
	pflags.StringVar(&opts.envFile, "env-file", "", "Path to the env file")
	pflags.StringVar(&opts.enhancementFile, "enhancement-file", "", "Override enhancement.config_file")
	pflags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")

	cmd.AddCommand(
		newEnhanceCmd(opts),
		newOptionsCmd(opts),
		newModerateCmd(opts),
		newProfilesCmd(opts),
		newBrandingCmd(opts),
		newKeysCmd(),
		newProvidersCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(config.Options{ConfigFile: o.configFile, EnvFile: o.envFile})
	if err != nil {
		return nil, err
	}
	if f := strings.TrimSpace(o.enhancementFile); f != "" {
		cfg.Enhancement.ConfigFile = f
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config) *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
