package twilio

import (
	"github.com/twilio/twilio-go/twiml"
)

// VoiceConfig is the content of the call-setup document.
type VoiceConfig struct {
	Greeting  string
	StreamURL string
	Goodbye   string
}

// VoiceResponse renders TwiML that greets the caller, connects a
// bidirectional media stream to StreamURL (passing callerID as a custom
// parameter when known) and says goodbye once the stream ends.
func VoiceResponse(cfg VoiceConfig, callerID string) (string, error) {
	var params []twiml.Element
	if callerID != "" {
		params = append(params, &twiml.VoiceParameter{Name: CallerIDParameter, Value: callerID})
	}

	verbs := []twiml.Element{}
	if cfg.Greeting != "" {
		verbs = append(verbs, &twiml.VoiceSay{Message: cfg.Greeting})
	}
	verbs = append(verbs, &twiml.VoiceConnect{
		InnerElements: []twiml.Element{
			&twiml.VoiceStream{Url: cfg.StreamURL, InnerElements: params},
		},
	})
	if cfg.Goodbye != "" {
		verbs = append(verbs, &twiml.VoiceSay{Message: cfg.Goodbye})
	}
	return twiml.Voice(verbs)
}
