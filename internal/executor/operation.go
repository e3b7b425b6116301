package executor

import (
	"context"
	stderrors "errors"
	"time"

	"tplinker/internal/device"
	"tplinker/internal/errors"
)

// Action labels shown as the result column of action commands
const (
	LabelRebooted    = "Rebooted?"
	LabelSwitchedOn  = "Switched on?"
	LabelSwitchedOff = "Switched off?"
)

// Operation is the per-device work applied once an endpoint has resolved. A returned
// error is reported as a diagnostic; the outcome is kept either way.
type Operation interface {
	Name() string
	Apply(ctx context.Context, dev device.Device, out *Outcome) error
}

// StatusOperation gathers the power state and, optionally, the geolocation.
// Capabilities a device kind lacks are left empty without complaint.
type StatusOperation struct {
	WithLocation bool
}

func (StatusOperation) Name() string { return "status" }

func (op StatusOperation) Apply(ctx context.Context, dev device.Device, out *Outcome) error {
	var errs []error

	on, err := device.IsOn(ctx, dev)
	switch {
	case err == nil:
		out.On = &on
	case errors.TypeOf(err) != errors.CapabilityErrorType:
		errs = append(errs, err)
	}

	if op.WithLocation {
		loc, err := device.LocationOf(ctx, dev)
		switch {
		case err == nil:
			out.Location = &loc
		case errors.TypeOf(err) == errors.CapabilityErrorType, errors.TypeOf(err) == errors.DeviceErrorType:
			// unsupported, or no location configured
		default:
			errs = append(errs, err)
		}
	}

	return stderrors.Join(errs...)
}

// RebootOperation schedules a reboot after Delay
type RebootOperation struct {
	Delay time.Duration
}

func (RebootOperation) Name() string { return "reboot" }

func (op RebootOperation) Apply(ctx context.Context, dev device.Device, out *Outcome) error {
	err := device.Reboot(ctx, dev, op.Delay)
	out.Action = &ActionResult{Label: LabelRebooted, Err: err}
	return err
}

// PowerOperation switches the device output on or off
type PowerOperation struct {
	On bool
}

func (op PowerOperation) Name() string {
	if op.On {
		return "on"
	}
	return "off"
}

func (op PowerOperation) Apply(ctx context.Context, dev device.Device, out *Outcome) error {
	label := LabelSwitchedOff
	if op.On {
		label = LabelSwitchedOn
	}
	err := device.SetPower(ctx, dev, op.On)
	out.Action = &ActionResult{Label: label, Err: err}
	return err
}
