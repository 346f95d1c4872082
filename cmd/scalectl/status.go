package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skobkin/scalectl/internal/app"
	"github.com/skobkin/scalectl/internal/protocol"
)

func newStatusCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show firmware version, logging state, buffer fill and device time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := env.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			version := warnFirmware(cmd, rt)
			status, err := rt.Session.GetStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("query status: %w", err)
			}
			now, err := rt.Session.GetNow(cmd.Context())
			if err != nil {
				return fmt.Errorf("query device time: %w", err)
			}
			conn, _ := rt.CurrentConnStatus()

			return writeStatus(cmd.OutOrStdout(), deviceStatus{
				Target:    conn.Target,
				Transport: conn.TransportName,
				Firmware:  version,
				Status:    status,
				Now:       now,
			})
		},
	}
}

type deviceStatus struct {
	Target    string
	Transport string
	Firmware  string
	Status    protocol.GetStatusResponse
	Now       protocol.GetNowResponse
}

func writeStatus(out io.Writer, s deviceStatus) error {
	firmware := s.Firmware
	if firmware == "" {
		firmware = "unknown"
	}
	logging := "stopped"
	if s.Status.Logging {
		logging = "running"
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"device", fmt.Sprintf("%s (%s)", s.Target, s.Transport)},
		{"firmware", firmware},
		{"minimum firmware", app.MinFirmwareVersion},
		{"logging", logging},
		{"buffered records", strconv.Itoa(s.Status.BufferSize)},
		{"sampling rate", strconv.Itoa(s.Status.RateHz) + " Hz"},
		{"device time", fmt.Sprintf("%s (epoch %d)", s.Now.Local, s.Now.Epoch)},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s:\t%s\n", headerStyle.Render(row[0]), row[1])
	}

	return w.Flush()
}
