package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skobkin/scalectl/internal/drain"
)

type FetchResult struct {
	drain.Result
	// ClockOffset is the device clock correction reported by setTime.
	ClockOffset int64
	ClockSynced bool
	Saved       int
	RecordsFile string
}

// Fetch syncs the device clock, drains its buffer and appends the records
// to the local log. Records are saved when the read phase completed, even
// if dropping them from the device failed afterwards.
func (r *Runtime) Fetch(ctx context.Context, now time.Time) (FetchResult, error) {
	logger := r.LogManager.Logger("fetch")
	out := FetchResult{RecordsFile: r.Records.Path()}

	if r.Config.SetTimeOnFetch() {
		offset, err := r.SyncClock(ctx, now)
		if err != nil {
			return out, err
		}
		out.ClockSynced = true
		out.ClockOffset = offset
	}

	orch, err := drain.New(r.LogManager.Logger("drain"), r.Session, r.Config.Fetch.ChunkSize)
	if err != nil {
		return out, err
	}
	res, drainErr := orch.Drain(ctx)
	out.Result = res

	if len(res.Records) > 0 && readPhaseCompleted(drainErr) {
		if err := r.Records.Append(ctx, res.Records); err != nil {
			return out, errors.Join(drainErr, fmt.Errorf("save records: %w", err))
		}
		out.Saved = len(res.Records)
	} else if len(res.Records) > 0 {
		logger.Warn("records not saved: device still holds them", "count", len(res.Records), "error", drainErr)
	}

	if drainErr != nil {
		return out, drainErr
	}
	logger.Info("fetch complete", "records", len(res.Records), "saved", out.Saved)

	return out, nil
}

// SyncClock sets the device clock to now and returns the correction the
// device applied, in seconds.
func (r *Runtime) SyncClock(ctx context.Context, now time.Time) (int64, error) {
	reply, err := r.Session.SetTime(ctx, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("set device time: %w", err)
	}
	r.LogManager.Logger("clock").Info("device time set", "epoch", now.Unix(), "offset", reply.Offset)

	return reply.Offset, nil
}

// readPhaseCompleted reports whether every record meant to be read was read,
// so saving them cannot duplicate what a later fetch returns.
func readPhaseCompleted(err error) bool {
	if err == nil {
		return true
	}
	var phaseErr *drain.PhaseError

	return errors.As(err, &phaseErr) && phaseErr.Phase == drain.PhaseDrop
}
