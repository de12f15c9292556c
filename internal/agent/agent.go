// Package agent runs one measurement cycle: invoke the speedtest tool, parse
// its output and hand the resulting record to the store writer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vesaa/speedtest2dynamodb/internal/models"
	"github.com/vesaa/speedtest2dynamodb/internal/speedtest"
)

var (
	// ErrMeasurementFailed means the speedtest tool did not exit cleanly;
	// nothing was written.
	ErrMeasurementFailed = errors.New("measurement failed")
	// ErrWriteFailed means the record was measured but could not be stored.
	ErrWriteFailed = errors.New("write failed")
)

// Measurer produces raw speedtest output. speedtest.Command implements it.
type Measurer interface {
	Run(ctx context.Context) (string, error)
}

// Recorder persists a record. store.Writer implements it.
type Recorder interface {
	Write(ctx context.Context, m models.Measurement) error
}

// Observer receives run results, e.g. for metrics. Optional.
type Observer interface {
	ObserveMeasurement(m models.Measurement)
	ObserveParseFailure(field string)
}

// Options carries the optional collaborators of an Agent.
type Options struct {
	Observer Observer
	Host     *speedtest.Host  // nil = speedtest.DescribeHost()
	Now      func() time.Time // nil = time.Now
	NewID    func() string    // nil = uuid.NewString
}

// Agent performs measurement runs.
type Agent struct {
	measurer Measurer
	recorder Recorder
	observer Observer
	logger   zerolog.Logger
	host     speedtest.Host
	now      func() time.Time
	newID    func() string
}

// New wires an Agent from explicit dependencies.
func New(measurer Measurer, recorder Recorder, logger zerolog.Logger, opts Options) *Agent {
	a := &Agent{
		measurer: measurer,
		recorder: recorder,
		observer: opts.Observer,
		logger:   logger,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if opts.Host != nil {
		a.host = *opts.Host
	} else {
		a.host = speedtest.DescribeHost()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a
}

// RunOnce measures, parses and writes one record. It returns the record even
// when writing failed, alongside an error wrapping ErrWriteFailed.
func (a *Agent) RunOnce(ctx context.Context) (*models.Measurement, error) {
	a.logger.Info().
		Str("hostname", a.host.Hostname).
		Str("platform", a.host.Platform).
		Str("arch", a.host.KernelArch).
		Msg("Starting ...")

	output, err := a.measurer.Run(ctx)
	if err != nil {
		ev := a.logger.Error().Err(err)
		var cmdErr *speedtest.CommandError
		if errors.As(err, &cmdErr) {
			ev = ev.Str("command", cmdErr.Command).Int("exit_code", cmdErr.ExitCode).Str("output", cmdErr.Output)
		}
		ev.Msg("Speedtest command failed")
		return nil, fmt.Errorf("%w: %w", ErrMeasurementFailed, err)
	}
	capturedAt := a.now()
	a.logger.Debug().Str("output", output).Msg("Speedtest output")

	result := speedtest.ParseOutput(output)
	for _, field := range result.Missing() {
		a.logger.Debug().Str("field", field).Msg("Unable to parse - using default value")
		if a.observer != nil {
			a.observer.ObserveParseFailure(field)
		}
	}

	m := models.Measurement{
		ID:                   a.newID(),
		Timestamp:            capturedAt.Unix(),
		PingMS:               result.PingMS(),
		DownloadBitPerSecond: result.DownloadBitPerSecond(),
		UploadBitPerSecond:   result.UploadBitPerSecond(),
	}
	a.logger.Debug().
		Str("id", m.ID).
		Float64("ping_ms", m.PingMS).
		Float64("download_bit_per_second", m.DownloadBitPerSecond).
		Float64("upload_bit_per_second", m.UploadBitPerSecond).
		Msg("Parsed")

	if a.observer != nil {
		a.observer.ObserveMeasurement(m)
	}

	if err := a.recorder.Write(ctx, m); err != nil {
		a.logger.Error().Err(err).Str("id", m.ID).Msg("Record not stored")
		return &m, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	a.logger.Info().Str("id", m.ID).Msg("Finished.")
	return &m, nil
}
