// Package twilio implements the call-setup webhook document and the media
// stream WebSocket message format.
package twilio

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Media stream event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
)

// CallerIDParameter is the custom stream parameter carrying the caller's number.
const CallerIDParameter = "callerId"

// InboundMessage is one JSON frame received from the media stream.
type InboundMessage struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Protocol       string        `json:"protocol,omitempty"`
	Version        string        `json:"version,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
}

// StartPayload describes the stream.
type StartPayload struct {
	StreamSid        string            `json:"streamSid,omitempty"`
	AccountSid       string            `json:"accountSid,omitempty"`
	CallSid          string            `json:"callSid,omitempty"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      *MediaFormat      `json:"mediaFormat,omitempty"`
}

// MediaFormat is the encoding of media payloads, audio/x-mulaw at 8000 Hz.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries base64 μ-law audio.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// MarkPayload names a playback marker.
type MarkPayload struct {
	Name string `json:"name"`
}

// StopPayload identifies the stopped call.
type StopPayload struct {
	AccountSid string `json:"accountSid,omitempty"`
	CallSid    string `json:"callSid,omitempty"`
}

// DecodeInbound parses one frame.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var m InboundMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return InboundMessage{}, fmt.Errorf("decode media stream frame: %w", err)
	}
	return m, nil
}

// StreamID returns the top-level streamSid, falling back to start.streamSid.
func (m InboundMessage) StreamID() string {
	if m.StreamSid != "" {
		return m.StreamSid
	}
	if m.Start != nil {
		return m.Start.StreamSid
	}
	return ""
}

// CallerID returns the callerId custom parameter of a start event.
func (m InboundMessage) CallerID() string {
	if m.Start == nil {
		return ""
	}
	return m.Start.CustomParameters[CallerIDParameter]
}

// Audio decodes the media payload.
func (m InboundMessage) Audio() ([]byte, error) {
	if m.Media == nil {
		return nil, fmt.Errorf("media event without payload")
	}
	b, err := base64.StdEncoding.DecodeString(m.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode media payload: %w", err)
	}
	return b, nil
}

// OutboundMessage is one JSON frame sent back over the media stream.
type OutboundMessage struct {
	Event     string                `json:"event"`
	StreamSid string                `json:"streamSid"`
	Media     *OutboundMediaPayload `json:"media,omitempty"`
	Mark      *MarkPayload          `json:"mark,omitempty"`
}

// OutboundMediaPayload carries base64 μ-law audio to play.
type OutboundMediaPayload struct {
	Payload string `json:"payload"`
}

// NewMediaMessage wraps μ-law audio for playback on streamSid.
func NewMediaMessage(streamSid string, mulaw []byte) OutboundMessage {
	return OutboundMessage{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     &OutboundMediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	}
}

// NewMarkMessage asks the remote side to report when playback reaches name.
func NewMarkMessage(streamSid, name string) OutboundMessage {
	return OutboundMessage{
		Event:     EventMark,
		StreamSid: streamSid,
		Mark:      &MarkPayload{Name: name},
	}
}
