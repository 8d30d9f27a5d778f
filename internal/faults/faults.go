// Package faults defines the failure taxonomy shared by the call pipeline.
//
// Every component wraps its errors around one of these sentinels so the
// session can pick the degraded fallback for the failure without knowing
// which concrete backend produced it.
package faults

import "errors"

var (
	// ErrTransportDisconnect means the remote side closed the duplex channel.
	// It is the only failure that ends a call session.
	ErrTransportDisconnect = errors.New("transport disconnected")

	// ErrBackendUnavailable means a speech, language or synthesis backend is
	// missing credentials or unreachable.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrTranscodeFailure means audio conversion to the telephony codec failed.
	ErrTranscodeFailure = errors.New("transcode failed")

	// ErrSynthesisFailure means a reply could not be turned into telephony audio.
	ErrSynthesisFailure = errors.New("synthesis failed")

	// ErrParseFailure means the language backend output held no usable record.
	ErrParseFailure = errors.New("parse failed")

	// ErrPersistFailure means a storage write failed after its retry.
	ErrPersistFailure = errors.New("persist failed")
)

// Kind returns a short label for the most specific taxonomy entry found in
// err's chain. Used as a metrics label.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTransportDisconnect):
		return "transport_disconnect"
	case errors.Is(err, ErrTranscodeFailure):
		return "transcode_failure"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrSynthesisFailure):
		return "synthesis_failure"
	case errors.Is(err, ErrParseFailure):
		return "parse_failure"
	case errors.Is(err, ErrPersistFailure):
		return "persist_failure"
	default:
		return "unknown"
	}
}
