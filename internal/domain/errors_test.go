package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransportErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *TransportError
		want string
	}{
		{"status only", &TransportError{Op: "submit analysis", StatusCode: http.StatusBadGateway}, "submit analysis: unexpected status 502 Bad Gateway"},
		{"cause only", &TransportError{Op: "poll status", Err: errors.New("connection refused")}, "poll status: connection refused"},
		{"status and cause", &TransportError{Op: "check auth", StatusCode: http.StatusOK, Err: errors.New("bad json")}, "check auth: OK: bad json"},
		{"empty", &TransportError{Op: "login"}, "login: request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorsMatchByType(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", &TransportError{Op: "submit analysis", StatusCode: http.StatusUnauthorized})

	require.True(t, errors.Is(wrapped, &TransportError{}))
	require.False(t, errors.Is(wrapped, &AuthError{}))
	require.True(t, errors.Is(&ValidationError{Reason: "empty"}, &ValidationError{}))
	require.True(t, errors.Is(&AuthError{Reason: "missing"}, &AuthError{}))
	require.True(t, errors.Is(&UntrustedMessageError{Origin: "https://evil.example"}, &UntrustedMessageError{}))

	var transportErr *TransportError
	require.True(t, errors.As(wrapped, &transportErr))
	require.True(t, transportErr.Unauthorized())
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := &TransportError{Op: "poll status", Err: cause}
	require.ErrorIs(t, err, cause)
}

func TestOverallStatusTerminal(t *testing.T) {
	require.False(t, OverallStatusProcessing.IsTerminal())
	require.True(t, OverallStatusComplete.IsTerminal())
	require.True(t, OverallStatusFailed.IsTerminal())
	require.False(t, OverallStatus("pending").Valid())
}

func TestJobResultLinks(t *testing.T) {
	job := Job{Tasks: []TaskStatus{
		{TaskNumber: 1, Status: TaskStateDone, ResultLink: "https://sheet/1"},
		{TaskNumber: 2, Status: TaskStateFailed, Error: "quota"},
		{TaskNumber: 3, Status: TaskStateDone, ResultLink: "https://sheet/3"},
	}}
	require.Equal(t, []string{"https://sheet/1", "https://sheet/3"}, job.ResultLinks())
	require.Nil(t, Job{}.ResultLinks())
}
