package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"ai-voice-bridge-service/internal/app"
	"ai-voice-bridge-service/internal/twilio"
)

// voiceWebhook answers the call-setup request with TwiML that connects the
// call to the media stream.
func voiceWebhook(application *app.Application) http.HandlerFunc {
	field := application.Cfg.Twilio.CallerField
	if field == "" {
		field = "From"
	}
	voice := application.VoiceConfig()

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		callerID := r.PostForm.Get(field)

		doc, err := twilio.VoiceResponse(voice, callerID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to render voice response")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		log.Info().
			Str("callSid", r.PostForm.Get("CallSid")).
			Bool("callerKnown", callerID != "").
			Msg("Incoming call connected to media stream")

		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(doc))
	}
}

// storageHealth probes the record store.
func storageHealth(application *app.Application) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := application.Store.Health(r.Context())

		status := http.StatusOK
		if !h.OK {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(h)
	}
}
