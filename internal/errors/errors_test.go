package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{name: "net timeout", err: timeoutErr{}, want: TimeoutErrorType},
		{name: "op error", err: &net.OpError{Op: "dial", Net: "tcp", Err: stderrors.New("boom")}, want: ConnectionErrorType},
		{name: "deadline keyword", err: context.DeadlineExceeded, want: TimeoutErrorType},
		{name: "refused keyword", err: stderrors.New("dial tcp 10.0.0.5:9999: connect: connection refused"), want: ConnectionErrorType},
		{name: "already classified", err: fmt.Errorf("wrapped: %w", NewCapabilityError("no reboot")), want: CapabilityErrorType},
		{name: "unknown", err: stderrors.New("something odd"), want: UnknownErrorType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := ClassifyError(tt.err)
			require.NotNil(t, ce)
			assert.Equal(t, tt.want, ce.Type)
		})
	}

	assert.Nil(t, ClassifyError(nil))
}

func TestClassifiedErrorMessage(t *testing.T) {
	orig := stderrors.New("connection refused")
	err := NewConnectionError("failed to reach device", orig)

	assert.Equal(t, "failed to reach device: connection refused", err.Error())
	assert.ErrorIs(t, err, orig)
	assert.Equal(t, "no reboot", NewCapabilityError("no reboot").Error())
	assert.Equal(t, "unknown error", (&ClassifiedError{}).Error())
}

func TestNetwork(t *testing.T) {
	assert.Equal(t, TimeoutErrorType, Network("read", timeoutErr{}).Type)
	assert.Equal(t, ConnectionErrorType, Network("read", stderrors.New("eof")).Type)
}

func TestErrorCollector(t *testing.T) {
	ec := NewErrorCollector()
	assert.False(t, ec.HasErrors())
	assert.Equal(t, "no errors", ec.Summary())

	ec.Add(nil)
	ec.Add(NewConnectionError("a", nil))
	ec.Add(NewConnectionError("b", nil))
	ec.Add(NewCapabilityError("c"))

	assert.True(t, ec.HasErrors())
	assert.Equal(t, 3, ec.Count())
	assert.Equal(t, 2, ec.CountByType(ConnectionErrorType))
	assert.Equal(t, "total: 3 errors (2 connection, 1 capability)", ec.Summary())
}
