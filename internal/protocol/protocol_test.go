package protocol

import (
	"bytes"
	"context"
	"encoding/hex"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tplinker/internal/endpoint"
	"tplinker/internal/errors"
)

const sysinfoQuery = `{"system":{"get_sysinfo":{}}}`

func TestEncryptKnownVector(t *testing.T) {
	got := Encrypt([]byte(sysinfoQuery))
	assert.Equal(t, "d0f281f88bff9af7d5ef94b6d1b4c09fec95e68fe187e8caf08bf68bf6", hex.EncodeToString(got))
}

func TestDecryptReversesEncrypt(t *testing.T) {
	plain := []byte(`{"system":{"reboot":{"delay":1}}}`)
	assert.Equal(t, plain, Decrypt(Encrypt(plain)))
	assert.Empty(t, Decrypt(nil))
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	assert.Equal(t, []byte{0, 0, 0, 5}, buf.Bytes()[:4])

	payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))
	require.Error(t, err)
	assert.Equal(t, errors.ProtocolErrorType, errors.TypeOf(err))
}

func TestReadFrameTruncatedBody(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 9, 'a'}))
	require.Error(t, err)
	assert.Equal(t, errors.ConnectionErrorType, errors.TypeOf(err))
}

// serveTCP runs a fake device that answers every framed request with reply.
func serveTCP(t *testing.T, reply string) endpoint.Endpoint {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				if _, err := ReadFrame(c); err != nil {
					return
				}
				_ = WriteFrame(c, Encrypt([]byte(reply)))
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return endpoint.Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

func TestClientSend(t *testing.T) {
	reply := `{"system":{"get_sysinfo":{"alias":"Plug1","err_code":0}}}`
	ep := serveTCP(t, reply)

	client := NewClient(ep, 2*time.Second)
	assert.Equal(t, ep, client.Endpoint())

	got, err := client.Send(context.Background(), []byte(sysinfoQuery))
	require.NoError(t, err)
	assert.JSONEq(t, reply, string(got))
}

func TestClientSendConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	client := NewClient(endpoint.Endpoint{Host: "127.0.0.1", Port: port}, time.Second)
	_, err = client.Send(context.Background(), []byte(sysinfoQuery))
	require.Error(t, err)
	assert.Equal(t, errors.ConnectionErrorType, errors.TypeOf(err))
}

func TestClientSendTimesOutOnSilentDevice(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	client := NewClient(endpoint.Endpoint{Host: "127.0.0.1", Port: port}, 100*time.Millisecond)
	_, err = client.Send(context.Background(), []byte(sysinfoQuery))
	require.Error(t, err)
	assert.Equal(t, errors.TimeoutErrorType, errors.TypeOf(err))
}

// serveUDP runs a fake device that answers each datagram with reply, count times.
func serveUDP(t *testing.T, reply string, count int) int {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 4096)
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if string(Decrypt(buf[:n])) != sysinfoQuery {
			return
		}
		for i := 0; i < count; i++ {
			_, _ = conn.WriteToUDP(Encrypt([]byte(reply)), src)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestDiscoverCollectsDistinctReplies(t *testing.T) {
	reply := `{"system":{"get_sysinfo":{"alias":"Plug1"}}}`
	port := serveUDP(t, reply, 3)

	replies, err := Discover(context.Background(), DiscoverOptions{
		Request:       []byte(sysinfoQuery),
		BroadcastAddr: "127.0.0.1",
		Port:          port,
		Timeout:       500 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(port), replies[0].From.String())
	assert.JSONEq(t, reply, string(replies[0].Payload))
}

func TestDiscoverUnboundedEndsOnCancel(t *testing.T) {
	port := serveUDP(t, `{"system":{"get_sysinfo":{}}}`, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	start := time.Now()
	replies, err := Discover(ctx, DiscoverOptions{
		Request:       []byte(sysinfoQuery),
		BroadcastAddr: "127.0.0.1",
		Port:          port,
	}, nil)
	require.NoError(t, err)
	assert.Len(t, replies, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDiscoverInvalidBroadcastAddress(t *testing.T) {
	_, err := Discover(context.Background(), DiscoverOptions{BroadcastAddr: "[bad", Timeout: time.Millisecond}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.SetupErrorType, errors.TypeOf(err))
}
