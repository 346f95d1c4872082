package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/skobkin/scalectl/internal/bus"
	"github.com/skobkin/scalectl/internal/config"
	"github.com/skobkin/scalectl/internal/connectors"
	"github.com/skobkin/scalectl/internal/logging"
	"github.com/skobkin/scalectl/internal/persistence"
	"github.com/skobkin/scalectl/internal/platform"
	"github.com/skobkin/scalectl/internal/session"
	"github.com/skobkin/scalectl/internal/transcript"
	"github.com/skobkin/scalectl/internal/transport"
)

// Options adjusts how Initialize builds the runtime.
type Options struct {
	// ConfigFile overrides the config location under the user config dir.
	ConfigFile string
	// Paths replaces path resolution entirely.
	Paths *Paths
	// Override is applied to the loaded config before validation, for CLI flags.
	Override func(*config.AppConfig)
	// Transport replaces the connector built from config.
	Transport transport.Transport
	// LogOutput receives console logs; nil means stderr.
	LogOutput io.Writer
	// Transcript, when set, receives the operator transcript of all traffic.
	Transcript io.Writer
	// RawTranscript mirrors link frames instead of decoded replies.
	RawTranscript bool
}

type Runtime struct {
	ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	Transport  transport.Transport
	Session    *session.Session
	Records    *persistence.RecordLog

	transcript *transcript.Writer

	lockMu     sync.Mutex
	deviceLock platform.DeviceLock

	closeOnce sync.Once
	closeErr  error

	connStatusMu    sync.RWMutex
	connStatus      connectors.ConnectionStatus
	connStatusKnown bool
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	var paths Paths
	if opts.Paths != nil {
		paths = *opts.Paths
	} else {
		resolved, err := ResolvePaths()
		if err != nil {
			return nil, err
		}
		paths = resolved.WithConfigFile(opts.ConfigFile)
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.Override != nil {
		opts.Override(&cfg)
		cfg.FillMissingDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	paths = paths.WithRecordsFile(cfg.Fetch.RecordsFile)

	logOut := opts.LogOutput
	logMgr := logging.NewManager()
	if logOut != nil {
		logMgr = logging.NewManagerWithOutput(logOut)
	}
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	slog.Debug("starting runtime", "version", BuildVersion(), "build_date", BuildDateYMD(), "config", paths.ConfigFile)

	tr := opts.Transport
	if tr == nil {
		tr, err = NewTransport(cfg.Connection)
		if err != nil {
			_ = logMgr.Close()
			return nil, fmt.Errorf("initialize transport: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		ctx:        ctx,
		cancel:     cancel,
		Paths:      paths,
		Config:     cfg,
		LogManager: logMgr,
		Transport:  tr,
		Records:    persistence.NewRecordLog(logMgr.Logger("persistence"), paths.RecordsFile),
	}
	rt.setConnStatus(ConnectionStatusFromConfig(cfg.Connection))

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	connSub := b.Subscribe(connectors.TopicConnStatus)
	go rt.captureConnStatus(ctx, connSub)

	if opts.Transcript != nil {
		mode := transcript.ModeDecoded
		if opts.RawTranscript {
			mode = transcript.ModeRaw
		}
		rt.transcript = transcript.New(logMgr.Logger("transcript"), b, opts.Transcript, mode)
		rt.transcript.Start()
	}

	rt.Session = session.New(logMgr.Logger("session"), b, tr, session.Options{
		ResponseTimeout: cfg.ResponseTimeout(),
	})

	return rt, nil
}

// Connect locks the device against other scalectl processes and opens the
// session, bounded by the configured connect timeout.
func (r *Runtime) Connect(ctx context.Context) error {
	if err := r.lockDevice(); err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, r.Config.ConnectTimeout())
	defer cancel()

	if err := r.Session.Open(connectCtx); err != nil {
		r.unlockDevice()
		return err
	}

	return nil
}

func (r *Runtime) lockDevice() error {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	if r.deviceLock != nil {
		return nil
	}

	target := ConnectionTarget(r.Config.Connection)
	lock, err := platform.AcquireDeviceLock(r.Paths.LockDir(), target)
	switch {
	case err == nil:
		r.deviceLock = lock
		return nil
	case errors.Is(err, platform.ErrDeviceLockUnsupported):
		r.LogManager.Logger("app").Debug("device lock unavailable", "error", err)
		return nil
	case errors.Is(err, platform.ErrDeviceBusy):
		return fmt.Errorf("%w: %s", err, target)
	default:
		return fmt.Errorf("lock device: %w", err)
	}
}

func (r *Runtime) unlockDevice() {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	if r.deviceLock == nil {
		return
	}
	if err := r.deviceLock.Release(); err != nil {
		r.LogManager.Logger("app").Warn("release device lock", "error", err)
	}
	r.deviceLock = nil
}

// CheckFirmware asks the device for its version and compares it with
// MinFirmwareVersion.
func (r *Runtime) CheckFirmware(ctx context.Context) (string, error) {
	raw, err := r.Session.GetVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("query firmware version: %w", err)
	}

	return CheckFirmwareVersion(raw)
}

func (r *Runtime) captureConnStatus(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			status, ok := raw.(connectors.ConnectionStatus)
			if !ok {
				continue
			}
			r.setConnStatus(status)
		}
	}
}

func (r *Runtime) setConnStatus(status connectors.ConnectionStatus) {
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusKnown = true
	r.connStatusMu.Unlock()
}

func (r *Runtime) CurrentConnStatus() (connectors.ConnectionStatus, bool) {
	r.connStatusMu.RLock()
	status := r.connStatus
	known := r.connStatusKnown
	r.connStatusMu.RUnlock()
	return status, known
}

// Close tears down the session, the transcript and logging. It is safe to
// call more than once.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		if r.Session != nil {
			r.closeErr = r.Session.Close()
		}
		r.unlockDevice()
		if r.transcript != nil {
			r.transcript.Stop()
		}
		if r.cancel != nil {
			r.cancel()
		}
		if r.Bus != nil {
			r.Bus.Close()
		}
		if r.LogManager != nil {
			_ = r.LogManager.Close()
		}
	})

	return r.closeErr
}
