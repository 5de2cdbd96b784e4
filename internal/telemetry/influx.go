// Package telemetry exports dispatch outcomes as InfluxDB time series.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/CaioWing/iotgateway/internal/config"
	"github.com/CaioWing/iotgateway/internal/domain"
)

const (
	measurementDispatch = "dispatch"
	pingTimeout         = 10 * time.Second
)

var ErrConnectionFailed = errors.New("influxdb connection failed")

type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxRecorder writes one "dispatch" point per recorded dispatch. Writes are
// batched and asynchronous; a slow or absent server never blocks dispatch.
type InfluxRecorder struct {
	client influxdb2.Client
	writer pointWriter
	log    *slog.Logger
}

func Connect(ctx context.Context, cfg config.InfluxDBConfig, log *slog.Logger) (*InfluxRecorder, error) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000),
	)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			log.Warn("influxdb write failed", "err", err)
		}
	}()

	return &InfluxRecorder{client: client, writer: writeAPI, log: log}, nil
}

func (r *InfluxRecorder) ObserveDispatch(kind domain.EventKind, result domain.Result, deviceID string, elapsed time.Duration) {
	r.writer.WritePoint(dispatchPoint(kind, result, deviceID, elapsed, time.Now()))
}

// Close flushes buffered points and releases the client.
func (r *InfluxRecorder) Close() {
	r.writer.Flush()
	if r.client != nil {
		r.client.Close()
	}
}

func dispatchPoint(kind domain.EventKind, result domain.Result, deviceID string, elapsed time.Duration, at time.Time) *write.Point {
	tags := map[string]string{
		"kind":   string(kind),
		"result": string(result),
	}
	fields := map[string]interface{}{
		"count":      1,
		"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
	}
	// Device ids come from callers, unknown ones included, so they stay out
	// of the series key.
	if deviceID != "" {
		fields["device_id"] = deviceID
	}
	return influxdb2.NewPoint(measurementDispatch, tags, fields, at)
}
