package device

import (
	"context"
	"encoding/json"

	"tplinker/internal/endpoint"
	"tplinker/internal/errors"
	"tplinker/internal/protocol"
)

// sysinfoRequest is the query every device kind answers
var sysinfoRequest = []byte(`{"system":{"get_sysinfo":{}}}`)

// SysInfoRequest returns the plaintext sysinfo query, as broadcast during discovery
func SysInfoRequest() []byte {
	return append([]byte(nil), sysinfoRequest...)
}

// Raw is an untyped connection to one device. It can only ask for sysinfo; typed
// handles are built on top of it once the model is known.
type Raw struct {
	endpoint  endpoint.Endpoint
	transport protocol.Transport
}

// NewRaw wraps a transport bound to ep
func NewRaw(ep endpoint.Endpoint, transport protocol.Transport) *Raw {
	return &Raw{endpoint: ep, transport: transport}
}

// Endpoint returns the device address
func (r *Raw) Endpoint() endpoint.Endpoint {
	return r.endpoint
}

// SysInfo queries the device status record
func (r *Raw) SysInfo(ctx context.Context) (SysInfo, error) {
	var info SysInfo
	if err := r.call(ctx, "system", "get_sysinfo", nil, &info); err != nil {
		return SysInfo{}, err
	}
	return info, nil
}

// call sends {namespace: {method: args}} and decodes the matching reply section into out.
func (r *Raw) call(ctx context.Context, namespace, method string, args any, out any) error {
	if args == nil {
		args = struct{}{}
	}
	request, err := json.Marshal(map[string]map[string]any{namespace: {method: args}})
	if err != nil {
		return errors.NewProtocolError("failed to encode request", err)
	}

	reply, err := r.transport.Send(ctx, request)
	if err != nil {
		return err
	}

	return decodeReply(reply, namespace, method, out)
}
