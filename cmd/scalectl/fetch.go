package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newFetchCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Read all buffered records, drop them from the device and save them",
		Long: `fetch syncs the device clock, reads the whole record buffer, then drops
exactly the records it read. Each record is printed as one JSON line and
appended to the local records log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := env.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			res, fetchErr := rt.Fetch(cmd.Context(), time.Now())
			out := cmd.OutOrStdout()
			for _, rec := range res.Records {
				fmt.Fprintln(out, string(rec))
			}

			summary := fmt.Sprintf("read %d of %d records, dropped %d, saved %d to %s",
				res.Read, res.BufferSize, res.Dropped, res.Saved, res.RecordsFile)
			fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render(summary))

			return fetchErr
		},
	}
}
