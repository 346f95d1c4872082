package protocol

import "sort"

// Command is a device command name as it appears on the wire.
type Command string

const (
	CommandGetVersion      Command = "getVersion"
	CommandSetTime         Command = "setTime"
	CommandClearBuffer     Command = "clearBuffer"
	CommandReadBuffer      Command = "readBuffer"
	CommandStartLogging    Command = "startLogging"
	CommandStopLogging     Command = "stopLogging"
	CommandGetNow          Command = "getNow"
	CommandGetStatus       Command = "getStatus"
	CommandSetSamplingRate Command = "setSamplingRate"
	CommandCalibrate       Command = "calibrate"
	CommandReset           Command = "reset"
	CommandSetLogLevel     Command = "setLogLevel"
	CommandDropRecords     Command = "dropRecords"
)

// ArgType is the declared wire type of a positional argument.
type ArgType int

const (
	ArgInt ArgType = iota
	ArgString
)

func (t ArgType) String() string {
	switch t {
	case ArgInt:
		return "int"
	case ArgString:
		return "string"
	default:
		return "unknown"
	}
}

// ArgSpec describes one positional argument.
type ArgSpec struct {
	Name string
	Type ArgType
	Doc  string
}

// Spec describes a command and its argument shape.
type Spec struct {
	Command Command
	Doc     string
	Args    []ArgSpec
}

var catalog = map[Command]Spec{
	CommandGetVersion: {Command: CommandGetVersion, Doc: "Get firmware version (string)"},
	CommandSetTime: {Command: CommandSetTime, Doc: "Set device time to given epoch", Args: []ArgSpec{
		{Name: "epoch", Type: ArgInt, Doc: "Unix epoch seconds"},
	}},
	CommandClearBuffer: {Command: CommandClearBuffer, Doc: "Clear the data buffer"},
	CommandReadBuffer: {Command: CommandReadBuffer, Doc: "Read paginated buffer", Args: []ArgSpec{
		{Name: "offset", Type: ArgInt, Doc: "Start index"},
		{Name: "length", Type: ArgInt, Doc: "Number of records"},
	}},
	CommandStartLogging: {Command: CommandStartLogging, Doc: "Enable logging"},
	CommandStopLogging:  {Command: CommandStopLogging, Doc: "Disable logging"},
	CommandGetNow:       {Command: CommandGetNow, Doc: "Get current device time"},
	CommandGetStatus:    {Command: CommandGetStatus, Doc: "Get device status"},
	CommandSetSamplingRate: {Command: CommandSetSamplingRate, Doc: "Set sampling rate", Args: []ArgSpec{
		{Name: "rate", Type: ArgInt, Doc: "Sampling rate in Hz"},
	}},
	CommandCalibrate: {Command: CommandCalibrate, Doc: "Calibrate the scale", Args: []ArgSpec{
		{Name: "low", Type: ArgInt, Doc: "No-load reading"},
		{Name: "high", Type: ArgInt, Doc: "Loaded reading"},
		{Name: "weight", Type: ArgInt, Doc: "Actual weight in grams"},
	}},
	CommandReset: {Command: CommandReset, Doc: "Reset the device"},
	CommandSetLogLevel: {Command: CommandSetLogLevel, Doc: "Set log level for a printer", Args: []ArgSpec{
		{Name: "printer", Type: ArgString, Doc: "Printer name (raw/event/status)"},
		{Name: "level", Type: ArgInt, Doc: "Log level"},
	}},
	CommandDropRecords: {Command: CommandDropRecords, Doc: "Drop records from buffer", Args: []ArgSpec{
		{Name: "offset", Type: ArgInt, Doc: "Start index"},
		{Name: "length", Type: ArgInt, Doc: "Number of records"},
	}},
}

// Lookup returns the spec of a known command.
func Lookup(cmd Command) (Spec, bool) {
	spec, ok := catalog[cmd]
	return spec, ok
}

// Specs lists the whole catalogue sorted by command name.
func Specs() []Spec {
	out := make([]Spec, 0, len(catalog))
	for _, spec := range catalog {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Command < out[j].Command
	})

	return out
}

// Usage renders the command with its argument names, e.g. "readBuffer <offset> <length>".
func (s Spec) Usage() string {
	out := string(s.Command)
	for _, arg := range s.Args {
		out += " <" + arg.Name + ">"
	}

	return out
}
