package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/scalectl/internal/app"
	"github.com/skobkin/scalectl/internal/config"
	"github.com/skobkin/scalectl/internal/logging"
	"github.com/skobkin/scalectl/internal/transport"
)

// cliEnv carries what the commands share. Tests fill the injection points;
// main leaves them empty so config and the real connectors are used.
type cliEnv struct {
	flags rootFlags

	paths     *app.Paths
	transport transport.Transport
	logOutput io.Writer
	// releaseEndpoint overrides the release API queried by "version --check".
	releaseEndpoint string
}

type rootFlags struct {
	configFile string
	connector  string
	address    string
	adapter    string
	port       string
	name       string
	timeout    time.Duration
	logLevel   string
	transcript bool
	raw        bool
}

func newRootCmd(env *cliEnv) *cobra.Command {
	root := &cobra.Command{
		Use:   app.Name,
		Short: "Talk to the ESP32 scale over Bluetooth LE or serial",
		Long: `scalectl drives the ESP32 scale firmware through its line protocol:
send single commands, run an interactive session, or fetch and drop the
buffered weight records into a local JSON lines log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.flags.validate()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&env.flags.configFile, "config", "", "config file (default is <user config dir>/scalectl/config.json)")
	pf.StringVar(&env.flags.connector, "connector", "", "connector: bluetooth or serial")
	pf.StringVar(&env.flags.address, "address", "", "Bluetooth address of the scale")
	pf.StringVar(&env.flags.adapter, "adapter", "", "Bluetooth adapter id, e.g. hci1 (Linux only)")
	pf.StringVar(&env.flags.port, "port", "", "serial port, implies --connector=serial")
	pf.StringVar(&env.flags.name, "name", "", "device name filter used for Bluetooth discovery")
	pf.DurationVar(&env.flags.timeout, "timeout", 0, "response timeout per command (default 5s)")
	pf.StringVar(&env.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&env.flags.transcript, "transcript", false, "mirror all device traffic to stderr")
	pf.BoolVar(&env.flags.raw, "raw", false, "mirror undecoded frames to stderr, implies --transcript")

	root.AddCommand(
		newCLICmd(env),
		newConfigCmd(env),
		newRecordsCmd(env),
		newFetchCmd(env),
		newSendCmd(env),
		newScanCmd(env),
		newStatusCmd(env),
		newVersionCmd(env),
	)

	return root
}

func (f rootFlags) validate() error {
	switch config.ConnectorType(strings.TrimSpace(f.connector)) {
	case "", config.ConnectorBluetooth, config.ConnectorSerial:
	default:
		return fmt.Errorf("unknown connector: %q", f.connector)
	}
	if f.timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %s", f.timeout)
	}
	if strings.TrimSpace(f.logLevel) != "" {
		if err := logging.ParseLevel(f.logLevel); err != nil {
			return err
		}
	}

	return nil
}

// apply overlays command line flags on the loaded config.
func (f rootFlags) apply(cfg *config.AppConfig) {
	if connector := strings.TrimSpace(f.connector); connector != "" {
		cfg.Connection.Connector = config.ConnectorType(connector)
	}
	if port := strings.TrimSpace(f.port); port != "" {
		cfg.Connection.SerialPort = port
		if strings.TrimSpace(f.connector) == "" {
			cfg.Connection.Connector = config.ConnectorSerial
		}
	}
	if addr := strings.TrimSpace(f.address); addr != "" {
		cfg.Connection.BluetoothAddress = addr
	}
	if adapter := strings.TrimSpace(f.adapter); adapter != "" {
		cfg.Connection.BluetoothAdapter = adapter
	}
	if name := strings.TrimSpace(f.name); name != "" {
		cfg.Connection.DeviceName = name
	}
	if f.timeout > 0 {
		cfg.Protocol.ResponseTimeoutMS = int(f.timeout.Milliseconds())
	}
	if level := strings.TrimSpace(f.logLevel); level != "" {
		cfg.Logging.Level = level
	}
}

func (e *cliEnv) options(cmd *cobra.Command) app.Options {
	opts := app.Options{
		ConfigFile: e.flags.configFile,
		Paths:      e.paths,
		Override:   e.flags.apply,
		Transport:  e.transport,
		LogOutput:  e.logOutput,
	}
	if e.flags.transcript || e.flags.raw {
		opts.Transcript = cmd.ErrOrStderr()
		opts.RawTranscript = e.flags.raw
	}

	return opts
}

// openRuntime builds the runtime and connects to the device.
func (e *cliEnv) openRuntime(cmd *cobra.Command) (*app.Runtime, error) {
	rt, err := app.Initialize(cmd.Context(), e.options(cmd))
	if err != nil {
		return nil, err
	}
	if err := rt.Connect(cmd.Context()); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("connect to %s: %w", app.ConnectionTarget(rt.Config.Connection), err)
	}

	return rt, nil
}

// warnFirmware prints a warning for an old or unreadable firmware version
// and carries on.
func warnFirmware(cmd *cobra.Command, rt *app.Runtime) string {
	version, err := rt.CheckFirmware(cmd.Context())
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("warning: "+err.Error()))
	}

	return version
}

// loadConfig reads the config with flag overrides applied, for commands
// that do not open a session.
func (e *cliEnv) loadConfig() (config.AppConfig, error) {
	paths, err := e.resolvePaths()
	if err != nil {
		return config.AppConfig{}, err
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return config.AppConfig{}, err
	}
	e.flags.apply(&cfg)
	cfg.FillMissingDefaults()

	return cfg, nil
}

func (e *cliEnv) resolvePaths() (app.Paths, error) {
	if e.paths != nil {
		return *e.paths, nil
	}
	resolved, err := app.ResolvePaths()
	if err != nil {
		return app.Paths{}, err
	}

	return resolved.WithConfigFile(e.flags.configFile), nil
}
