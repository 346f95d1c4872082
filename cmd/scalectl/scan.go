package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/scalectl/internal/bluetoothutil"
)

const defaultScanDuration = 5 * time.Second

func newScanCmd(env *cliEnv) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List nearby Bluetooth LE devices",
		Long: `scan listens for advertisements for a while and lists what it saw.
Devices offering the UART service or matching the configured device name
are marked with "*".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration <= 0 {
				return fmt.Errorf("scan duration must be positive: %s", duration)
			}
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}

			adapter, err := bluetoothutil.OpenAdapter(cfg.Connection.BluetoothAdapter)
			if err != nil {
				return err
			}

			scanCtx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()
			fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("scanning for "+duration.String()+"..."))
			devices, err := bluetoothutil.Scan(scanCtx, adapter)
			if err != nil {
				return fmt.Errorf("bluetooth scan: %w", err)
			}
			bluetoothutil.SortScanDevices(devices)

			return writeScanTable(cmd.OutOrStdout(), devices, cfg.Connection.DeviceName)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", defaultScanDuration, "how long to listen for advertisements")

	return cmd
}

func writeScanTable(out io.Writer, devices []bluetoothutil.ScanDevice, nameFilter string) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No devices found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	header := []string{" ", "ADDRESS", "NAME", "RSSI", "UART"}
	for i, cell := range header {
		header[i] = headerStyle.Render(cell)
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, dev := range devices {
		mark := " "
		if dev.HasUARTService || (dev.Name != "" && bluetoothutil.MatchesName(dev.Name, nameFilter)) {
			mark = "*"
		}
		name := dev.Name
		if name == "" {
			name = "-"
		}
		uart := "no"
		if dev.HasUARTService {
			uart = "yes"
		}
		fmt.Fprintln(w, strings.Join([]string{mark, dev.Address, name, strconv.Itoa(dev.RSSI), uart}, "\t"))
	}

	return w.Flush()
}
