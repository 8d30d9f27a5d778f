package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"disconnect", ErrTransportDisconnect, "transport_disconnect"},
		{"wrapped backend", fmt.Errorf("gemini: %w", ErrBackendUnavailable), "backend_unavailable"},
		{"synthesis over transcode", fmt.Errorf("%w: %w", ErrSynthesisFailure, ErrTranscodeFailure), "transcode_failure"},
		{"synthesis over backend", fmt.Errorf("%w: %w", ErrSynthesisFailure, ErrBackendUnavailable), "backend_unavailable"},
		{"synthesis only", ErrSynthesisFailure, "synthesis_failure"},
		{"parse", ErrParseFailure, "parse_failure"},
		{"persist", errors.Join(errors.New("timeout"), ErrPersistFailure), "persist_failure"},
		{"other", errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
