// Package models defines the data structures for call events.
package models

// Event types, also used as the Kafka eventType header.
const (
	EventEmergencyRecorded = "call.emergency.recorded"
	EventCallCompleted     = "call.completed"
)

// EmergencyRecorded is published after an emergency record was stored.
type EmergencyRecorded struct {
	EventType string  `json:"eventType"`
	SessionID string  `json:"sessionId"`
	StreamSID string  `json:"streamSid"`
	CallerID  string  `json:"callerId,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Location  *string `json:"location,omitempty"`
	Emergency *string `json:"emergency,omitempty"`
	Output    string  `json:"output,omitempty"`
	Reduced   bool    `json:"reduced"`
}

// Turn is one transcript line of a completed call.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// CallCompleted summarizes a call once its session closes.
type CallCompleted struct {
	EventType    string `json:"eventType"`
	SessionID    string `json:"sessionId"`
	StreamSID    string `json:"streamSid"`
	CallerID     string `json:"callerId,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	StartedAt    int64  `json:"startedAt"`
	DurationMs   int64  `json:"durationMs"`
	Cycles       int    `json:"cycles"`
	AudioBytes   int    `json:"audioBytes"`
	CloseCause   string `json:"closeCause"`
	RecordingURI string `json:"recordingUri,omitempty"`
	Transcript   []Turn `json:"transcript"`
}
