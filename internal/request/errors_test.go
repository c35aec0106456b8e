package request

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestOfflineClassification(t *testing.T) {
	policy := OfflinePolicy{Markers: []string{"network"}}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport error", &TransportError{Err: errors.New("dial tcp: timeout")}, true},
		{"connection refused", fmt.Errorf("send: %w", syscall.ECONNREFUSED), true},
		{"connection reset", fmt.Errorf("send: %w", syscall.ECONNRESET), true},
		{"marker match", errors.New("Network request failed"), true},
		{"server 500", &StatusError{Code: 500, Body: "oops"}, false},
		{"server 409", &StatusError{Code: 409, Body: "conflict"}, false},
		{"plain error", errors.New("validation failed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Offline(tt.err); got != tt.want {
				t.Errorf("Offline(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestOfflineWhenConnectivityDown(t *testing.T) {
	policy := OfflinePolicy{Connectivity: func() bool { return false }}
	if !policy.Offline(errors.New("anything")) {
		t.Error("any error counts as offline while connectivity is down")
	}
}

func TestStatusErrorTransient(t *testing.T) {
	if !(&StatusError{Code: 503}).Transient() {
		t.Error("5xx should be transient")
	}
	if (&StatusError{Code: 404}).Transient() {
		t.Error("4xx should not be transient")
	}
}
