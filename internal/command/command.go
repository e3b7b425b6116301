// Package command wires each subcommand to the resolve, execute and render pipeline.
package command

import (
	"context"
	"io"
	"os"
	"time"

	"tplinker/internal/device"
	"tplinker/internal/endpoint"
	"tplinker/internal/errors"
	"tplinker/internal/executor"
	"tplinker/internal/inventory"
	"tplinker/internal/logging"
	"tplinker/internal/output"
	"tplinker/internal/protocol"
)

// DiscoverFunc runs one discovery listen window
type DiscoverFunc func(ctx context.Context, opts protocol.DiscoverOptions, dial device.Dialer, logger *logging.Logger) ([]device.Discovered, error)

// Options holds the collaborators a Dispatcher is built from. Zero fields get the
// production defaults.
type Options struct {
	Mode        output.OutputMode
	Concurrency int
	IOTimeout   time.Duration
	Output      io.Writer
	Logger      *logging.Logger

	Dialer   device.Dialer
	Resolver executor.Resolver
	Sink     executor.DiagnosticSink
	Discover DiscoverFunc
}

// Dispatcher runs subcommands and renders exactly one document per call
type Dispatcher struct {
	formatter *output.Formatter
	executor  *executor.Executor
	dial      device.Dialer
	discover  DiscoverFunc
	logger    *logging.Logger
}

// New creates a dispatcher
func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Mode == "" {
		opts.Mode = output.ShortMode
	}
	if opts.Dialer == nil {
		opts.Dialer = device.TCPDialer(opts.IOTimeout, opts.Logger)
	}
	if opts.Resolver == nil {
		opts.Resolver = device.NewResolver(opts.Dialer, opts.Logger)
	}
	if opts.Sink == nil {
		opts.Sink = opts.Logger
	}
	if opts.Discover == nil {
		opts.Discover = device.Discover
	}

	return &Dispatcher{
		formatter: output.NewFormatter(opts.Mode, opts.Output),
		executor:  executor.New(opts.Resolver, opts.Sink, opts.Logger, executor.Config{Concurrency: opts.Concurrency}),
		dial:      opts.Dialer,
		discover:  opts.Discover,
		logger:    opts.Logger,
	}
}

// Discover listens for device announcements and renders every distinct device seen
func (d *Dispatcher) Discover(ctx context.Context, opts protocol.DiscoverOptions) error {
	found, err := d.discover(ctx, opts, d.dial, d.logger)
	if err != nil {
		return err
	}

	mode := d.formatter.Mode()
	records := make([]output.Record, 0, len(found))
	for _, dev := range found {
		records = append(records, output.DiscoverRecord(mode, dev))
	}
	return d.formatter.Render(records)
}

// Status queries every endpoint and renders the devices that answered
func (d *Dispatcher) Status(ctx context.Context, endpoints []endpoint.Endpoint) error {
	mode := d.formatter.Mode()
	op := executor.StatusOperation{WithLocation: mode != output.ShortMode}
	outcomes := d.executor.Run(ctx, endpoints, op)

	records := make([]output.Record, 0, len(outcomes))
	for _, o := range outcomes {
		records = append(records, output.StatusRecord(mode, o))
	}
	return d.formatter.Render(records)
}

// Reboot schedules a reboot of every endpoint after delay
func (d *Dispatcher) Reboot(ctx context.Context, endpoints []endpoint.Endpoint, delay time.Duration) error {
	return d.action(ctx, endpoints, executor.RebootOperation{Delay: delay})
}

// Power switches every endpoint on or off
func (d *Dispatcher) Power(ctx context.Context, endpoints []endpoint.Endpoint, on bool) error {
	return d.action(ctx, endpoints, executor.PowerOperation{On: on})
}

func (d *Dispatcher) action(ctx context.Context, endpoints []endpoint.Endpoint, op executor.Operation) error {
	mode := d.formatter.Mode()
	outcomes := d.executor.Run(ctx, endpoints, op)

	records := make([]output.Record, 0, len(outcomes))
	for _, o := range outcomes {
		records = append(records, output.ActionRecord(mode, o))
	}
	return d.formatter.Render(records)
}

// Targets parses the address arguments and appends the inventory's devices, or
// only those of group when it is set. Any invalid address fails the whole call.
func Targets(args []string, inv inventory.Provider, group string) ([]endpoint.Endpoint, error) {
	endpoints, err := endpoint.ParseAll(args)
	if err != nil {
		return nil, errors.NewSetupError("", err)
	}

	if inv != nil {
		var fromInventory []endpoint.Endpoint
		if group != "" {
			fromInventory, err = inv.EndpointsByGroup(group)
		} else {
			fromInventory, err = inv.Endpoints()
		}
		if err != nil {
			return nil, errors.NewSetupError("failed to load inventory devices", err)
		}
		endpoints = append(endpoints, fromInventory...)
	}

	if len(endpoints) == 0 {
		return nil, errors.NewSetupError("no device addresses given", nil)
	}
	return endpoints, nil
}
