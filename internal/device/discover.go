package device

import (
	"context"

	"tplinker/internal/endpoint"
	"tplinker/internal/logging"
	"tplinker/internal/protocol"
)

// Discovered is one device that answered a discovery broadcast
type Discovered struct {
	Endpoint endpoint.Endpoint
	Device   Device
	Data     DeviceData
}

// Discover listens for sysinfo announcements and shapes every distinct, decodable
// reply into a typed handle. Undecodable replies are reported to logger and skipped.
func Discover(ctx context.Context, opts protocol.DiscoverOptions, dial Dialer, logger *logging.Logger) ([]Discovered, error) {
	if opts.Request == nil {
		opts.Request = SysInfoRequest()
	}

	replies, err := protocol.Discover(ctx, opts, logger)
	if err != nil {
		return nil, err
	}

	found := make([]Discovered, 0, len(replies))
	for _, reply := range replies {
		data, err := ParseDeviceData(reply.Payload)
		if err != nil {
			if logger != nil {
				logger.LogQueryError(reply.From, err)
			}
			continue
		}
		raw := NewRaw(reply.From, dial(reply.From))
		found = append(found, Discovered{
			Endpoint: reply.From,
			Device:   FromSysInfo(raw, data.SysInfo),
			Data:     data,
		})
	}

	return found, nil
}
