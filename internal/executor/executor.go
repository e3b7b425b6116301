// Package executor runs one operation against many devices in parallel, isolating
// failures per device.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"tplinker/internal/device"
	"tplinker/internal/endpoint"
	"tplinker/internal/errors"
	"tplinker/internal/logging"
)

// maxConcurrency is the hard cap on parallel device tasks
const maxConcurrency = 1000

// Config holds configuration parameters for the executor
type Config struct {
	Concurrency int // Maximum number of devices queried at once (0 for auto)
}

// ParseConcurrency parses concurrency configuration from string
func ParseConcurrency(concurrencyStr string) (int, error) {
	if concurrencyStr == "" || concurrencyStr == "auto" {
		return 0, nil // 0 indicates auto mode
	}

	concurrency, err := strconv.Atoi(concurrencyStr)
	if err != nil {
		return 0, fmt.Errorf("invalid concurrency value '%s': must be a number or 'auto'", concurrencyStr)
	}

	if concurrency < 1 {
		return 0, fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}

	if concurrency > maxConcurrency {
		return 0, fmt.Errorf("concurrency too high: %d (maximum %d)", concurrency, maxConcurrency)
	}

	return concurrency, nil
}

// Resolver turns an endpoint into a typed device handle
type Resolver interface {
	Resolve(ctx context.Context, ep endpoint.Endpoint) (device.Device, device.SysInfo, error)
}

// DiagnosticSink receives per-device failures as they are partitioned out of a batch
type DiagnosticSink interface {
	Record(ep endpoint.Endpoint, err error)
}

// ActionResult is the outcome of an action command on one device
type ActionResult struct {
	Label string
	Err   error
}

// Value is the rendered result: true on success, the error text otherwise
func (a ActionResult) Value() any {
	if a.Err == nil {
		return true
	}
	return "Error: " + a.Err.Error()
}

// Outcome is everything gathered about one successfully resolved device
type Outcome struct {
	Endpoint endpoint.Endpoint
	Device   device.Device
	SysInfo  device.SysInfo

	On       *bool
	Location *device.Location
	Action   *ActionResult
}

// Executor fans an operation out over a bounded set of workers
type Executor struct {
	config   Config
	resolver Resolver
	sink     DiagnosticSink
	logger   *logging.Logger
}

// New creates an executor. sink and logger may be nil.
func New(resolver Resolver, sink DiagnosticSink, logger *logging.Logger, config Config) *Executor {
	return &Executor{
		config:   config,
		resolver: resolver,
		sink:     sink,
		logger:   logger,
	}
}

// slot is one task's private result; tasks never touch each other's slot
type slot struct {
	done       bool
	outcome    Outcome
	resolveErr error
	opErr      error
}

// Run resolves every endpoint and applies op to it. Endpoints that fail to resolve
// are reported to the sink and left out; operation failures are reported too but
// keep their outcome. The returned outcomes are in input order.
func (e *Executor) Run(ctx context.Context, endpoints []endpoint.Endpoint, op Operation) []Outcome {
	concurrency := calculateConcurrency(e.config.Concurrency, len(endpoints))
	if e.logger != nil {
		e.logger.LogExecutorStart(op.Name(), len(endpoints), concurrency)
	}
	startTime := time.Now()

	slots := make([]slot, len(endpoints))
	jobs := make(chan int)

	var g errgroup.Group
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for idx := range jobs {
				slots[idx] = e.runOne(ctx, endpoints[idx], op)
			}
			return nil
		})
	}

feed:
	for idx := range endpoints {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- idx:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	_ = g.Wait()

	return e.partition(endpoints, slots, op, startTime)
}

func (e *Executor) runOne(ctx context.Context, ep endpoint.Endpoint, op Operation) slot {
	dev, info, err := e.resolver.Resolve(ctx, ep)
	if err != nil {
		return slot{done: true, resolveErr: err}
	}

	s := slot{
		done:    true,
		outcome: Outcome{Endpoint: ep, Device: dev, SysInfo: info},
	}
	s.opErr = op.Apply(ctx, dev, &s.outcome)
	return s
}

// partition splits finished slots into outcomes and diagnostics
func (e *Executor) partition(endpoints []endpoint.Endpoint, slots []slot, op Operation, startTime time.Time) []Outcome {
	collector := errors.NewErrorCollector()
	outcomes := make([]Outcome, 0, len(slots))

	for idx, s := range slots {
		ep := endpoints[idx]
		switch {
		case !s.done:
			e.record(collector, ep, &device.QueryError{
				Endpoint: ep,
				Op:       "probe",
				Err:      errors.NewTimeoutError("batch cancelled before the device was queried", nil),
			})
		case s.resolveErr != nil:
			e.record(collector, ep, s.resolveErr)
		default:
			if s.opErr != nil {
				e.record(collector, ep, s.opErr)
			}
			outcomes = append(outcomes, s.outcome)
		}
	}

	if e.logger != nil {
		resolved := len(outcomes)
		e.logger.LogExecutorComplete(op.Name(), len(endpoints), resolved, len(endpoints)-resolved, time.Since(startTime))
		if collector.HasErrors() {
			e.logger.Warn("batch finished with errors", "operation", op.Name(), "summary", collector.Summary())
		}
	}

	return outcomes
}

func (e *Executor) record(collector *errors.ErrorCollector, ep endpoint.Endpoint, err error) {
	collector.Add(err)
	if e.sink != nil {
		e.sink.Record(ep, err)
	}
}

// calculateConcurrency determines the actual concurrency based on configuration and endpoint count
func calculateConcurrency(configConcurrency int, endpointCount int) int {
	if configConcurrency < 0 {
		return 1
	}

	if configConcurrency == 0 {
		// Auto mode: min(32, num_devices)
		if endpointCount <= 0 {
			return 1
		}
		if endpointCount <= 32 {
			return endpointCount
		}
		return 32
	}

	effectiveConcurrency := configConcurrency
	if effectiveConcurrency > maxConcurrency {
		effectiveConcurrency = maxConcurrency
	}

	if endpointCount > 0 && effectiveConcurrency > endpointCount {
		return endpointCount
	}

	return effectiveConcurrency
}
