package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skobkin/scalectl/internal/persistence"
)

func newRecordsCmd(env *cliEnv) *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Print records saved by earlier fetches",
		Long: `records prints the local records log, one JSON line per record, without
connecting to the scale.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if last < 0 {
				return fmt.Errorf("--last must not be negative: %d", last)
			}
			paths, err := env.resolvePaths()
			if err != nil {
				return err
			}
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			path := paths.WithRecordsFile(cfg.Fetch.RecordsFile).RecordsFile

			records, err := persistence.ReadAll(path)
			if err != nil {
				return err
			}
			total := len(records)
			if last > 0 && last < total {
				records = records[total-last:]
			}

			out := cmd.OutOrStdout()
			for _, rec := range records {
				fmt.Fprintln(out, string(rec))
			}
			fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render(fmt.Sprintf("%d of %d records from %s", len(records), total, path)))

			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 0, "print only the newest N records")

	return cmd
}
