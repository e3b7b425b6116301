package executor

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tplinker/internal/device"
	"tplinker/internal/endpoint"
	"tplinker/internal/errors"
)

const plugInfo = `{"system":{"get_sysinfo":{"alias":"Plug","dev_name":"Wi-Fi Smart Plug","model":"HS110(UK)","rssi":-50,"relay_state":0,"latitude":1.5,"longitude":2.5,"err_code":0}}}`

// scriptedTransport answers any request containing a key with the mapped reply
type scriptedTransport map[string]string

func (s scriptedTransport) Send(_ context.Context, request []byte) ([]byte, error) {
	for key, reply := range s {
		if strings.Contains(string(request), key) {
			return []byte(reply), nil
		}
	}
	return []byte(`{}`), nil
}

type fakeResolver struct {
	transport scriptedTransport
	unknown   map[string]bool
	failing   map[string]bool
	delay     func(ep endpoint.Endpoint) time.Duration

	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeResolver) Resolve(ctx context.Context, ep endpoint.Endpoint) (device.Device, device.SysInfo, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay != nil {
		time.Sleep(f.delay(ep))
	}

	if f.failing[ep.Host] {
		return nil, device.SysInfo{}, &device.QueryError{
			Endpoint: ep,
			Op:       "probe",
			Err:      errors.NewConnectionError("failed to connect", nil),
		}
	}

	raw := device.NewRaw(ep, f.transport)
	info := device.SysInfo{Alias: ep.Host, Model: "HS110(UK)"}
	if f.unknown[ep.Host] {
		info.Model = "KP400"
		return device.NewUnknown(raw), info, nil
	}
	return device.NewHS110(raw), info, nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries map[string]error
}

func (r *recordingSink) Record(ep endpoint.Endpoint, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = map[string]error{}
	}
	r.entries[ep.Host] = err
}

func endpoints(t *testing.T, hosts ...string) []endpoint.Endpoint {
	t.Helper()
	eps, err := endpoint.ParseAll(hosts)
	require.NoError(t, err)
	return eps
}

func hostsOf(outcomes []Outcome) []string {
	hosts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		hosts = append(hosts, o.Endpoint.Host)
	}
	return hosts
}

func TestParseConcurrency(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"auto", 0, false},
		{"1", 1, false},
		{"1000", 1000, false},
		{"0", 0, true},
		{"1001", 0, true},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConcurrency(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateConcurrency(t *testing.T) {
	assert.Equal(t, 1, calculateConcurrency(0, 0))
	assert.Equal(t, 5, calculateConcurrency(0, 5))
	assert.Equal(t, 32, calculateConcurrency(0, 100))
	assert.Equal(t, 3, calculateConcurrency(10, 3))
	assert.Equal(t, 10, calculateConcurrency(10, 50))
	assert.Equal(t, 1000, calculateConcurrency(5000, 2000))
	assert.Equal(t, 1, calculateConcurrency(-1, 10))
}

func TestRun_DropsFailedResolutionsAndKeepsInputOrder(t *testing.T) {
	resolver := &fakeResolver{
		transport: scriptedTransport{"get_sysinfo": plugInfo},
		failing:   map[string]bool{"10.0.0.2": true, "10.0.0.4": true},
		// later endpoints finish first
		delay: func(ep endpoint.Endpoint) time.Duration {
			return time.Duration(6-int(ep.Host[len(ep.Host)-1]-'0')) * 5 * time.Millisecond
		},
	}
	sink := &recordingSink{}
	ex := New(resolver, sink, nil, Config{})

	outcomes := ex.Run(context.Background(), endpoints(t, "10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"), StatusOperation{})

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.3", "10.0.0.5"}, hostsOf(outcomes))
	require.Len(t, sink.entries, 2)
	assert.Contains(t, sink.entries, "10.0.0.2")
	assert.Contains(t, sink.entries, "10.0.0.4")

	var qe *device.QueryError
	assert.ErrorAs(t, sink.entries["10.0.0.2"], &qe)
}

func TestRun_StatusFillsCapabilities(t *testing.T) {
	resolver := &fakeResolver{
		transport: scriptedTransport{"get_sysinfo": plugInfo},
		unknown:   map[string]bool{"10.0.0.2": true},
	}
	sink := &recordingSink{}

	outcomes := New(resolver, sink, nil, Config{}).Run(context.Background(), endpoints(t, "10.0.0.1", "10.0.0.2"), StatusOperation{WithLocation: true})
	require.Len(t, outcomes, 2)

	plug := outcomes[0]
	require.NotNil(t, plug.On)
	assert.False(t, *plug.On)
	require.NotNil(t, plug.Location)
	assert.Equal(t, device.Location{Latitude: 1.5, Longitude: 2.5}, *plug.Location)
	assert.Nil(t, plug.Action)

	unknown := outcomes[1]
	assert.Nil(t, unknown.On)
	assert.Nil(t, unknown.Location)

	assert.Empty(t, sink.entries, "missing capabilities are not failures")
}

func TestRun_StatusWithoutLocationSkipsQuery(t *testing.T) {
	resolver := &fakeResolver{transport: scriptedTransport{"get_sysinfo": plugInfo}}
	outcomes := New(resolver, nil, nil, Config{}).Run(context.Background(), endpoints(t, "10.0.0.1"), StatusOperation{})
	require.Len(t, outcomes, 1)
	assert.NotNil(t, outcomes[0].On)
	assert.Nil(t, outcomes[0].Location)
}

func TestRun_RebootKeepsActionFailures(t *testing.T) {
	resolver := &fakeResolver{
		transport: scriptedTransport{"reboot": `{"system":{"reboot":{"err_code":0}}}`},
		failing:   map[string]bool{"10.0.0.3": true},
		unknown:   map[string]bool{"10.0.0.2": true},
	}
	sink := &recordingSink{}

	outcomes := New(resolver, sink, nil, Config{Concurrency: 2}).Run(context.Background(),
		endpoints(t, "10.0.0.1", "10.0.0.2", "10.0.0.3"), RebootOperation{Delay: time.Second})

	require.Len(t, outcomes, 2)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, hostsOf(outcomes))

	require.NotNil(t, outcomes[0].Action)
	assert.Equal(t, LabelRebooted, outcomes[0].Action.Label)
	assert.Equal(t, true, outcomes[0].Action.Value())

	require.NotNil(t, outcomes[1].Action)
	value, ok := outcomes[1].Action.Value().(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(value, "Error: "))
	assert.Equal(t, errors.CapabilityErrorType, errors.TypeOf(outcomes[1].Action.Err))

	assert.Len(t, sink.entries, 2)
	assert.Contains(t, sink.entries, "10.0.0.2")
	assert.Contains(t, sink.entries, "10.0.0.3")
}

func TestRun_PowerLabels(t *testing.T) {
	resolver := &fakeResolver{transport: scriptedTransport{"set_relay_state": `{"system":{"set_relay_state":{"err_code":0}}}`}}
	ex := New(resolver, nil, nil, Config{})

	on := ex.Run(context.Background(), endpoints(t, "10.0.0.1"), PowerOperation{On: true})
	require.Len(t, on, 1)
	assert.Equal(t, LabelSwitchedOn, on[0].Action.Label)
	assert.Equal(t, true, on[0].Action.Value())

	off := ex.Run(context.Background(), endpoints(t, "10.0.0.1"), PowerOperation{On: false})
	require.Len(t, off, 1)
	assert.Equal(t, LabelSwitchedOff, off[0].Action.Label)
	assert.Equal(t, "off", PowerOperation{}.Name())
}

func TestRun_BoundsParallelism(t *testing.T) {
	resolver := &fakeResolver{
		transport: scriptedTransport{"get_sysinfo": plugInfo},
		delay:     func(endpoint.Endpoint) time.Duration { return 10 * time.Millisecond },
	}
	hosts := make([]string, 0, 12)
	for i := 1; i <= 12; i++ {
		hosts = append(hosts, "10.0.1."+strconv.Itoa(i))
	}

	outcomes := New(resolver, nil, nil, Config{Concurrency: 3}).Run(context.Background(), endpoints(t, hosts...), StatusOperation{})
	assert.Len(t, outcomes, 12)
	assert.LessOrEqual(t, resolver.maxSeen.Load(), int32(3))
}

func TestRun_CancelledContextReportsUnqueried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resolver := &fakeResolver{transport: scriptedTransport{}}
	sink := &recordingSink{}
	outcomes := New(resolver, sink, nil, Config{Concurrency: 1}).Run(ctx, endpoints(t, "10.0.0.1", "10.0.0.2", "10.0.0.3"), StatusOperation{})

	assert.Empty(t, outcomes)
	require.Len(t, sink.entries, 3)
	assert.Equal(t, errors.TimeoutErrorType, errors.TypeOf(sink.entries["10.0.0.2"]))
}

func TestRun_Empty(t *testing.T) {
	outcomes := New(&fakeResolver{}, nil, nil, Config{}).Run(context.Background(), nil, StatusOperation{})
	assert.Empty(t, outcomes)
}
