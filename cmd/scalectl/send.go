package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "send <command> [args...]",
		Short: "Send one command and print the reply",
		Example: `  scalectl send getStatus
  scalectl send readBuffer 0 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := env.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			_, resp, err := rt.Session.ExecuteLine(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Pretty())

			return nil
		},
	}
}
