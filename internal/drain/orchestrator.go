package drain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skobkin/scalectl/internal/protocol"
)

// DefaultChunkSize is the number of records requested per read or drop.
const DefaultChunkSize = 5

// Device is the subset of the device client the drain needs.
type Device interface {
	GetStatus(ctx context.Context) (protocol.GetStatusResponse, error)
	ReadBuffer(ctx context.Context, offset, length int) (protocol.ReadBufferResponse, error)
	DropRecords(ctx context.Context, offset, length int) (protocol.DropRecordsResponse, error)
}

type Phase string

const (
	PhaseQuery Phase = "query"
	PhaseRead  Phase = "read"
	PhaseDrop  Phase = "drop"
)

// PhaseError tells which pass of the drain failed. A failure in PhaseDrop
// means every returned record was read but the device may still hold some.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("drain %s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

type Result struct {
	Records []protocol.Record
	// BufferSize is the record count reported by the device before reading.
	BufferSize int
	Read       int
	Dropped    int
	Reads      int
	Drops      int
}

// Orchestrator empties the device ring buffer in two passes: every record
// is read first while the buffer is untouched, then exactly the records
// read are dropped from the front.
type Orchestrator struct {
	logger    *slog.Logger
	device    Device
	chunkSize int
}

func New(logger *slog.Logger, device Device, chunkSize int) (*Orchestrator, error) {
	if device == nil {
		return nil, fmt.Errorf("drain device is nil")
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", chunkSize)
	}
	if logger == nil {
		logger = slog.Default().With("component", "drain")
	}

	return &Orchestrator{logger: logger, device: device, chunkSize: chunkSize}, nil
}

// Drain reads and then drops all buffered records. Records read so far are
// returned even when an error ends either phase; a failed drop stops the
// drop phase without retrying.
func (o *Orchestrator) Drain(ctx context.Context) (Result, error) {
	var res Result

	status, err := o.device.GetStatus(ctx)
	if err != nil {
		return res, &PhaseError{Phase: PhaseQuery, Err: fmt.Errorf("query buffer size: %w", err)}
	}
	res.BufferSize = status.BufferSize
	if res.BufferSize <= 0 {
		o.logger.Info("device buffer is empty")
		return res, nil
	}
	o.logger.Info("draining device buffer", "buffer_size", res.BufferSize, "chunk_size", o.chunkSize)

	if err := o.readAll(ctx, &res); err != nil {
		return res, &PhaseError{Phase: PhaseRead, Err: err}
	}
	if err := o.dropRead(ctx, &res); err != nil {
		return res, &PhaseError{Phase: PhaseDrop, Err: err}
	}

	o.logger.Info("drain complete", "read", res.Read, "dropped", res.Dropped, "reads", res.Reads, "drops", res.Drops)
	return res, nil
}

func (o *Orchestrator) readAll(ctx context.Context, res *Result) error {
	for res.Read < res.BufferSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := o.device.ReadBuffer(ctx, res.Read, o.chunkSize)
		if err != nil {
			o.logger.Warn("read phase aborted", "offset", res.Read, "records_kept", len(res.Records), "error", err)
			return fmt.Errorf("read buffer at offset %d: %w", res.Read, err)
		}
		res.Reads++

		n := chunk.Length
		if n != len(chunk.Records) {
			o.logger.Warn("chunk length disagrees with records", "offset", res.Read, "length", n, "records", len(chunk.Records))
			n = min(n, len(chunk.Records))
		}
		if n < 0 {
			n = 0
		}
		if remaining := res.BufferSize - res.Read; n > remaining {
			o.logger.Warn("chunk exceeds reported buffer size, truncating", "offset", res.Read, "length", n, "remaining", remaining)
			n = remaining
		}

		res.Records = append(res.Records, chunk.Records[:n]...)
		res.Read += n
		o.logger.Debug("chunk read", "offset", res.Read-n, "length", n, "read", res.Read, "buffer_size", res.BufferSize)

		if n < o.chunkSize {
			if res.Read < res.BufferSize {
				o.logger.Info("device exhausted before reported buffer size", "read", res.Read, "buffer_size", res.BufferSize)
			}
			break
		}
	}

	return nil
}

func (o *Orchestrator) dropRead(ctx context.Context, res *Result) error {
	toDrop := res.Read
	for toDrop > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		size := min(o.chunkSize, toDrop)
		reply, err := o.device.DropRecords(ctx, 0, size)
		if err != nil {
			o.logger.Warn("drop phase aborted", "dropped", res.Dropped, "remaining", toDrop, "error", err)
			return fmt.Errorf("drop %d records: %w", size, err)
		}
		res.Drops++
		if reply.Length != size {
			o.logger.Warn("device confirmed a different drop size", "requested", size, "confirmed", reply.Length)
		}

		toDrop -= size
		res.Dropped += size
		o.logger.Debug("chunk dropped", "length", size, "remaining", toDrop)
	}

	return nil
}
