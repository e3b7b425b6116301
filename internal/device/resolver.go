package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tplinker/internal/endpoint"
	"tplinker/internal/logging"
	"tplinker/internal/protocol"
)

// rule maps a model prefix to the constructor of its typed handle
type rule struct {
	prefix string
	kind   Kind
	upcast func(*Raw) Device
}

// rules are tried in order and the first matching prefix wins
var rules = []rule{
	{prefix: "HS100", kind: KindHS100, upcast: func(r *Raw) Device { return NewHS100(r) }},
	{prefix: "HS110", kind: KindHS110, upcast: func(r *Raw) Device { return NewHS110(r) }},
	{prefix: "LB110", kind: KindLB110, upcast: func(r *Raw) Device { return NewLB110(r) }},
}

// KindForModel returns the kind a reported model string resolves to
func KindForModel(model string) Kind {
	if r, ok := match(model); ok {
		return r.kind
	}
	return KindUnknown
}

func match(model string) (rule, bool) {
	for _, r := range rules {
		if strings.HasPrefix(model, r.prefix) {
			return r, true
		}
	}
	return rule{}, false
}

// FromSysInfo builds the typed handle for an already known sysinfo, without asking
// the device again
func FromSysInfo(raw *Raw, info SysInfo) Device {
	if r, ok := match(info.Model); ok {
		return r.upcast(raw)
	}
	return NewUnknown(raw)
}

// QueryError is a failure to resolve one endpoint
type QueryError struct {
	Endpoint endpoint.Endpoint
	Op       string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Dialer opens the transport used to reach one endpoint
type Dialer func(ep endpoint.Endpoint) protocol.Transport

// TCPDialer returns a Dialer producing protocol clients with the given per-request timeout
func TCPDialer(timeout time.Duration, logger *logging.Logger) Dialer {
	return func(ep endpoint.Endpoint) protocol.Transport {
		return protocol.NewClientWithLogger(ep, timeout, logger)
	}
}

// Resolver turns endpoints into typed device handles
type Resolver struct {
	dial   Dialer
	logger *logging.Logger
}

// NewResolver creates a resolver. logger may be nil.
func NewResolver(dial Dialer, logger *logging.Logger) *Resolver {
	return &Resolver{dial: dial, logger: logger}
}

// Resolve probes ep, picks its kind from the reported model and returns the typed
// handle with the sysinfo it reports through that handle.
func (r *Resolver) Resolve(ctx context.Context, ep endpoint.Endpoint) (Device, SysInfo, error) {
	raw := NewRaw(ep, r.dial(ep))

	info, err := raw.SysInfo(ctx)
	if err != nil {
		return nil, SysInfo{}, &QueryError{Endpoint: ep, Op: "probe", Err: err}
	}

	rl, ok := match(info.Model)
	if !ok {
		r.logResolved(ep, KindUnknown, info.Model)
		return NewUnknown(raw), info, nil
	}

	dev := rl.upcast(raw)
	info, err = dev.SysInfo(ctx)
	if err != nil {
		return nil, SysInfo{}, &QueryError{Endpoint: ep, Op: "sysinfo", Err: err}
	}

	r.logResolved(ep, dev.Kind(), info.Model)
	return dev, info, nil
}

func (r *Resolver) logResolved(ep endpoint.Endpoint, kind Kind, model string) {
	if r.logger != nil {
		r.logger.LogResolved(ep, kind.String(), model)
	}
}
