package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/skobkin/scalectl/internal/protocol"
)

// GetVersion returns the firmware version. The device answers with a bare
// version string rather than an object, so the raw text is returned.
func (s *Session) GetVersion(ctx context.Context) (string, error) {
	resp, err := s.Execute(ctx, protocol.CommandGetVersion)
	if err != nil {
		return "", err
	}
	if resp.Valid() {
		if err := protocol.CheckStatus(protocol.CommandGetVersion, resp); err != nil {
			return "", err
		}
	}

	return strings.TrimSpace(resp.Raw), nil
}

func (s *Session) SetTime(ctx context.Context, epoch int64) (protocol.SetTimeResponse, error) {
	return executeInto[protocol.SetTimeResponse](ctx, s, protocol.CommandSetTime, epoch)
}

func (s *Session) ClearBuffer(ctx context.Context) (protocol.StatusResponse, error) {
	return executeInto[protocol.StatusResponse](ctx, s, protocol.CommandClearBuffer)
}

func (s *Session) ReadBuffer(ctx context.Context, offset, length int) (protocol.ReadBufferResponse, error) {
	return executeInto[protocol.ReadBufferResponse](ctx, s, protocol.CommandReadBuffer, offset, length)
}

func (s *Session) StartLogging(ctx context.Context) (protocol.StatusResponse, error) {
	return executeInto[protocol.StatusResponse](ctx, s, protocol.CommandStartLogging)
}

func (s *Session) StopLogging(ctx context.Context) (protocol.StatusResponse, error) {
	return executeInto[protocol.StatusResponse](ctx, s, protocol.CommandStopLogging)
}

func (s *Session) GetNow(ctx context.Context) (protocol.GetNowResponse, error) {
	return executeInto[protocol.GetNowResponse](ctx, s, protocol.CommandGetNow)
}

func (s *Session) GetStatus(ctx context.Context) (protocol.GetStatusResponse, error) {
	return executeInto[protocol.GetStatusResponse](ctx, s, protocol.CommandGetStatus)
}

func (s *Session) SetSamplingRate(ctx context.Context, rate int) (protocol.SetSamplingRateResponse, error) {
	return executeInto[protocol.SetSamplingRateResponse](ctx, s, protocol.CommandSetSamplingRate, rate)
}

func (s *Session) Calibrate(ctx context.Context, low, high, weight int) (protocol.StatusResponse, error) {
	return executeInto[protocol.StatusResponse](ctx, s, protocol.CommandCalibrate, low, high, weight)
}

func (s *Session) Reset(ctx context.Context) (protocol.StatusResponse, error) {
	return executeInto[protocol.StatusResponse](ctx, s, protocol.CommandReset)
}

func (s *Session) SetLogLevel(ctx context.Context, printer string, level int) (protocol.SetLogLevelResponse, error) {
	return executeInto[protocol.SetLogLevelResponse](ctx, s, protocol.CommandSetLogLevel, printer, level)
}

func (s *Session) DropRecords(ctx context.Context, offset, length int) (protocol.DropRecordsResponse, error) {
	return executeInto[protocol.DropRecordsResponse](ctx, s, protocol.CommandDropRecords, offset, length)
}

func executeInto[T any](ctx context.Context, s *Session, cmd protocol.Command, args ...any) (T, error) {
	var out T
	resp, err := s.Execute(ctx, cmd, args...)
	if err != nil {
		return out, err
	}
	if !resp.Valid() {
		return out, fmt.Errorf("%s: %w: %q", cmd, protocol.ErrMalformedResponse, resp.Raw)
	}
	if err := protocol.CheckStatus(cmd, resp); err != nil {
		return out, err
	}
	if err := resp.Into(&out); err != nil {
		return out, fmt.Errorf("%s: %w", cmd, err)
	}

	return out, nil
}
