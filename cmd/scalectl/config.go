package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skobkin/scalectl/internal/config"
)

func newConfigCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the config file",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newConfigInitCmd(env), newConfigShowCmd(env))

	return cmd
}

func newConfigInitCmd(env *cliEnv) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with defaults and the given flags",
		Long: `init writes the default config, with any connection flags applied, to
the config location. The format follows the file extension: .yaml, .yml
and .toml are recognized, anything else is JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := env.resolvePaths()
			if err != nil {
				return err
			}
			if _, err := os.Stat(paths.ConfigFile); err == nil && !force {
				return fmt.Errorf("config %s already exists, use --force to replace it", paths.ConfigFile)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("check config: %w", err)
			}

			cfg := config.Default()
			env.flags.apply(&cfg)
			cfg.FillMissingDefaults()
			if err := config.Save(paths.ConfigFile, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("wrote "+paths.ConfigFile))

			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing config file")

	return cmd
}

func newConfigShowCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config, flags included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := env.resolvePaths()
			if err != nil {
				return err
			}
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			raw, err := config.Encode(paths.ConfigFile, cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)

			return err
		},
	}
}
