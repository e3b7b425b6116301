package protocol

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"tplinker/internal/endpoint"
	"tplinker/internal/errors"
	"tplinker/internal/logging"
)

// DefaultBroadcastAddr is the limited broadcast address discovery queries are sent to
const DefaultBroadcastAddr = "255.255.255.255"

// pollInterval bounds each blocking read so the listen loop notices the end of the
// window and context cancellation
const pollInterval = 250 * time.Millisecond

// DiscoverOptions configures a discovery listen window
type DiscoverOptions struct {
	Request       []byte        // Plaintext query broadcast at the start of the window
	BroadcastAddr string        // Destination address for the query
	Port          int           // Destination port for the query
	Timeout       time.Duration // Length of the listen window; zero listens until ctx is done
}

// Reply is one decrypted announcement received during discovery
type Reply struct {
	From    endpoint.Endpoint
	Payload []byte
}

// Discover broadcasts opts.Request and collects the first reply from every distinct
// source address until the window closes. Cancellation of ctx ends the window early
// and is not an error; the replies seen so far are returned.
func Discover(ctx context.Context, opts DiscoverOptions, logger *logging.Logger) ([]Reply, error) {
	if opts.BroadcastAddr == "" {
		opts.BroadcastAddr = DefaultBroadcastAddr
	}
	if opts.Port == 0 {
		opts.Port = endpoint.DefaultPort
	}

	dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(opts.BroadcastAddr, strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, errors.NewSetupError(fmt.Sprintf("invalid broadcast address %q", opts.BroadcastAddr), err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, errors.NewConnectionError("failed to open discovery socket", err)
	}
	defer conn.Close()

	if logger != nil {
		logger.LogDiscoveryStart(dest.String(), opts.Timeout)
	}

	if _, err := conn.WriteToUDP(Encrypt(opts.Request), dest); err != nil {
		return nil, errors.Network(fmt.Sprintf("failed to send discovery query to %s", dest), err)
	}

	var windowEnd time.Time
	if opts.Timeout > 0 {
		windowEnd = time.Now().Add(opts.Timeout)
	}

	seen := make(map[string]bool)
	var replies []Reply
	buf := make([]byte, 64*1024)

	for {
		if ctx.Err() != nil {
			break
		}
		now := time.Now()
		if !windowEnd.IsZero() && !now.Before(windowEnd) {
			break
		}

		readDeadline := now.Add(pollInterval)
		if !windowEnd.IsZero() && windowEnd.Before(readDeadline) {
			readDeadline = windowEnd
		}
		if err := conn.SetReadDeadline(readDeadline); err != nil {
			return replies, errors.NewConnectionError("failed to set read deadline", err)
		}

		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return replies, errors.NewConnectionError("discovery read failed", err)
		}

		key := src.String()
		if seen[key] {
			continue
		}
		seen[key] = true

		reply := Reply{From: endpoint.FromUDPAddr(src), Payload: Decrypt(buf[:n])}
		replies = append(replies, reply)

		if logger != nil {
			logger.LogDiscoveryReply(reply.From, n)
		}
	}

	if logger != nil {
		logger.LogDiscoveryComplete(len(replies))
	}

	return replies, nil
}
