package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/scalectl/internal/protocol"
)

type lineExecutor interface {
	ExecuteLine(ctx context.Context, line string) (protocol.Command, protocol.Response, error)
}

func newCLICmd(env *cliEnv) *cobra.Command {
	var noSetTime bool

	cmd := &cobra.Command{
		Use:   "cli",
		Short: "Interactive command session with the scale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := env.openRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if rt.Config.SetTimeOnFetch() && !noSetTime {
				offset, err := rt.SyncClock(cmd.Context(), time.Now())
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("warning: "+err.Error()))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(fmt.Sprintf("device clock set, offset %ds", offset)))
				}
			}
			if version := warnFirmware(cmd, rt); version != "" {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("connected, firmware "+version))
			}
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(`type "help" for commands, "exit" to quit`))

			return runREPL(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), rt.Session)
		},
	}
	cmd.Flags().BoolVar(&noSetTime, "no-set-time", false, "leave the device clock alone on connect")

	return cmd
}

// runREPL reads operator lines until exit or EOF. Command failures are
// printed and the session keeps going.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, exec lineExecutor) error {
	scanner := bufio.NewScanner(in)
	prompt := func() { fmt.Fprint(out, commandStyle.Render("> ")) }

	prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "exit", "quit":
			return nil
		case "help", "?":
			printHelp(out)
		default:
			_, resp, err := exec.ExecuteLine(ctx, line)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
				break
			}
			fmt.Fprintln(out, responseStyle.Render(resp.Pretty()))
		}
		if ctx.Err() != nil {
			return nil
		}
		prompt()
	}

	return scanner.Err()
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, headerStyle.Render("Commands:"))
	for _, spec := range protocol.Specs() {
		fmt.Fprintf(out, "  %-36s %s\n", commandStyle.Render(spec.Usage()), spec.Doc)
	}
	fmt.Fprintf(out, "  %-36s %s\n", commandStyle.Render("help"), "Show this list")
	fmt.Fprintf(out, "  %-36s %s\n", commandStyle.Render("exit"), "Leave the session")
}
