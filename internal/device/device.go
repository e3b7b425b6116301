// Package device resolves device addresses into typed, capability-bearing handles.
//
// The set of handles is closed: HS100, HS110, LB110 and Unknown. Every handle can
// report its sysinfo. Only recognized kinds implement Switch, Locator and Actions;
// Unknown is read-only.
package device

import (
	"context"
	"fmt"
	"time"

	"tplinker/internal/endpoint"
	"tplinker/internal/errors"
)

// Device is a handle on one device, tagged with its resolved kind
type Device interface {
	Kind() Kind
	Endpoint() endpoint.Endpoint
	SysInfo(ctx context.Context) (SysInfo, error)

	// sealed keeps the set of handle types closed to this package
	sealed()
}

// Switch reports whether a device's output is on
type Switch interface {
	IsOn(ctx context.Context) (bool, error)
}

// Locator reports a device's configured geolocation
type Locator interface {
	Location(ctx context.Context) (Location, error)
}

// Actions are the commands a recognized device accepts
type Actions interface {
	RebootWithDelay(ctx context.Context, delay time.Duration) error
	SetPower(ctx context.Context, on bool) error
}

// plug implements the capabilities shared by the HS1xx smart plugs
type plug struct {
	raw *Raw
}

func (p plug) Endpoint() endpoint.Endpoint { return p.raw.Endpoint() }

func (p plug) SysInfo(ctx context.Context) (SysInfo, error) { return p.raw.SysInfo(ctx) }

func (p plug) IsOn(ctx context.Context) (bool, error) {
	info, err := p.raw.SysInfo(ctx)
	if err != nil {
		return false, err
	}
	if info.RelayState == nil {
		return false, errors.NewProtocolError("sysinfo lacks relay_state", nil)
	}
	return *info.RelayState == 1, nil
}

func (p plug) Location(ctx context.Context) (Location, error) {
	return locationFromSysInfo(ctx, p.raw)
}

func (p plug) RebootWithDelay(ctx context.Context, delay time.Duration) error {
	return p.raw.call(ctx, "system", "reboot", map[string]int{"delay": delaySeconds(delay)}, nil)
}

func (p plug) SetPower(ctx context.Context, on bool) error {
	return p.raw.call(ctx, "system", "set_relay_state", map[string]int{"state": boolToInt(on)}, nil)
}

// bulb implements the capabilities of the LB1xx smart bulbs, which keep their
// commands in the smartlife namespaces
type bulb struct {
	raw *Raw
}

func (b bulb) Endpoint() endpoint.Endpoint { return b.raw.Endpoint() }

func (b bulb) SysInfo(ctx context.Context) (SysInfo, error) { return b.raw.SysInfo(ctx) }

func (b bulb) IsOn(ctx context.Context) (bool, error) {
	info, err := b.raw.SysInfo(ctx)
	if err != nil {
		return false, err
	}
	if info.LightState == nil {
		return false, errors.NewProtocolError("sysinfo lacks light_state", nil)
	}
	return info.LightState.OnOff == 1, nil
}

func (b bulb) Location(ctx context.Context) (Location, error) {
	return locationFromSysInfo(ctx, b.raw)
}

func (b bulb) RebootWithDelay(ctx context.Context, delay time.Duration) error {
	return b.raw.call(ctx, "smartlife.iot.common.system", "reboot", map[string]int{"delay": delaySeconds(delay)}, nil)
}

func (b bulb) SetPower(ctx context.Context, on bool) error {
	return b.raw.call(ctx, "smartlife.iot.smartbulb.lightingservice", "transition_light_state",
		map[string]int{"on_off": boolToInt(on)}, nil)
}

// HS100 is a smart plug
type HS100 struct{ plug }

// HS110 is a smart plug with an energy meter
type HS110 struct{ plug }

// LB110 is a dimmable white smart bulb
type LB110 struct{ bulb }

// Unknown is a device whose model matched no known prefix. It only reports sysinfo.
type Unknown struct {
	raw *Raw
}

// NewHS100 takes ownership of raw and exposes it as an HS100
func NewHS100(raw *Raw) *HS100 { return &HS100{plug{raw: raw}} }

// NewHS110 takes ownership of raw and exposes it as an HS110
func NewHS110(raw *Raw) *HS110 { return &HS110{plug{raw: raw}} }

// NewLB110 takes ownership of raw and exposes it as an LB110
func NewLB110(raw *Raw) *LB110 { return &LB110{bulb{raw: raw}} }

// NewUnknown takes ownership of raw without adding capabilities
func NewUnknown(raw *Raw) *Unknown { return &Unknown{raw: raw} }

func (*HS100) Kind() Kind   { return KindHS100 }
func (*HS110) Kind() Kind   { return KindHS110 }
func (*LB110) Kind() Kind   { return KindLB110 }
func (*Unknown) Kind() Kind { return KindUnknown }

func (*HS100) sealed()   {}
func (*HS110) sealed()   {}
func (*LB110) sealed()   {}
func (*Unknown) sealed() {}

func (u *Unknown) Endpoint() endpoint.Endpoint { return u.raw.Endpoint() }

func (u *Unknown) SysInfo(ctx context.Context) (SysInfo, error) { return u.raw.SysInfo(ctx) }

// IsOn asks a device for its power state
func IsOn(ctx context.Context, d Device) (bool, error) {
	sw, ok := d.(Switch)
	if !ok {
		return false, unsupported(d, "power state queries")
	}
	return sw.IsOn(ctx)
}

// LocationOf asks a device for its geolocation
func LocationOf(ctx context.Context, d Device) (Location, error) {
	loc, ok := d.(Locator)
	if !ok {
		return Location{}, unsupported(d, "location queries")
	}
	return loc.Location(ctx)
}

// Reboot schedules a device reboot after delay
func Reboot(ctx context.Context, d Device, delay time.Duration) error {
	act, ok := d.(Actions)
	if !ok {
		return unsupported(d, "reboot")
	}
	return act.RebootWithDelay(ctx, delay)
}

// SetPower switches a device on or off
func SetPower(ctx context.Context, d Device, on bool) error {
	act, ok := d.(Actions)
	if !ok {
		return unsupported(d, "switching power")
	}
	return act.SetPower(ctx, on)
}

func unsupported(d Device, what string) error {
	return errors.NewCapabilityError(fmt.Sprintf("%s devices do not support %s", d.Kind(), what))
}

func locationFromSysInfo(ctx context.Context, raw *Raw) (Location, error) {
	info, err := raw.SysInfo(ctx)
	if err != nil {
		return Location{}, err
	}
	loc, ok := info.Location()
	if !ok {
		return Location{}, errors.NewDeviceError("device does not report a location", nil)
	}
	return loc, nil
}

func delaySeconds(delay time.Duration) int {
	if delay < 0 {
		return 0
	}
	return int(delay / time.Second)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
