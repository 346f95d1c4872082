package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skobkin/scalectl/internal/app"
)

func newVersionCmd(env *cliEnv) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show scalectl version",
		Args:  cobra.NoArgs,
		// The version needs no config or device.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, app.VersionLine())
			fmt.Fprintf(out, "minimum firmware %s\n", app.MinFirmwareVersion)
			if !check {
				return nil
			}

			res, err := app.ReleaseChecker{Endpoint: env.releaseEndpoint}.Check(cmd.Context())
			if err != nil {
				return fmt.Errorf("check for updates: %w", err)
			}
			if !res.Newer {
				fmt.Fprintln(out, dimStyle.Render("up to date"))
				return nil
			}
			fmt.Fprintln(out, warnStyle.Render("update available: "+res.Latest.Version))
			if res.Latest.URL != "" {
				fmt.Fprintln(out, res.Latest.URL)
			}

			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check "+app.SourceURL+" for a newer release")

	return cmd
}
