package app

const (
	Name            = "scalectl"
	SourceURL       = "https://git.skobk.in/skobkin/scalectl"
	ConfigFilename  = "config.json"
	LogFilename     = "app.log"
	RecordsFilename = "records.jsonl"
	// MinFirmwareVersion is the oldest firmware whose command set matches
	// the built-in catalogue.
	MinFirmwareVersion = "0.0.1"
)
