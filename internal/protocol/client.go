package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"tplinker/internal/endpoint"
	"tplinker/internal/errors"
	"tplinker/internal/logging"
)

// maxFrameSize bounds the length header of a TCP reply
const maxFrameSize = 1 << 20

// Transport sends one plaintext request to a device and returns the plaintext reply
type Transport interface {
	Send(ctx context.Context, request []byte) ([]byte, error)
}

// Client talks to a single device over TCP. Every request uses its own connection,
// which is how the devices expect to be driven.
type Client struct {
	endpoint endpoint.Endpoint
	timeout  time.Duration
	logger   *logging.Logger
}

// NewClient creates a client for ep. timeout bounds each request; zero disables it.
func NewClient(ep endpoint.Endpoint, timeout time.Duration) *Client {
	return &Client{endpoint: ep, timeout: timeout}
}

// NewClientWithLogger creates a client that logs every request at debug level
func NewClientWithLogger(ep endpoint.Endpoint, timeout time.Duration, logger *logging.Logger) *Client {
	return &Client{endpoint: ep, timeout: timeout, logger: logger}
}

// Endpoint returns the device address this client talks to
func (c *Client) Endpoint() endpoint.Endpoint {
	return c.endpoint
}

// Send writes one framed, encrypted request and reads the framed reply
func (c *Client) Send(ctx context.Context, request []byte) ([]byte, error) {
	startTime := time.Now()
	address := c.endpoint.String()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Network(fmt.Sprintf("failed to connect to %s", address), err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, errors.NewConnectionError("failed to set deadline", err)
		}
	}

	if err := WriteFrame(conn, Encrypt(request)); err != nil {
		return nil, errors.Network(fmt.Sprintf("failed to send request to %s", address), err)
	}

	frame, err := ReadFrame(conn)
	if err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.LogRequest(c.endpoint, len(request), len(frame), time.Since(startTime))
	}

	return Decrypt(frame), nil
}

// WriteFrame writes payload prefixed with its big-endian 32-bit length
func WriteFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}

// ReadFrame reads one length-prefixed payload
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Network("failed to read reply header", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, errors.NewProtocolError(fmt.Sprintf("reply of %d bytes exceeds limit of %d", size, maxFrameSize), nil)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Network("failed to read reply body", err)
	}

	return payload, nil
}
