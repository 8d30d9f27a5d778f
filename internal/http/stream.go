package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"ai-voice-bridge-service/internal/app"
	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/service/call"
	"ai-voice-bridge-service/internal/twilio"
)

const (
	writeTimeout = 10 * time.Second
	// CloseTimeout bounds the final cycle and teardown after the stream ends.
	CloseTimeout = 2 * time.Minute
	// maxFrameBytes caps one inbound JSON frame.
	maxFrameBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // media streams come from the telephony provider, not browsers
	},
}

// streamHandler serves one media-stream WebSocket per call. The connection
// goroutine reads frames, drives the session and writes replies, so events
// of a call are strictly ordered.
type streamHandler struct {
	app *app.Application
}

func newStreamHandler(application *app.Application) *streamHandler {
	return &streamHandler{app: application}
}

// wsSender writes outbound frames from the connection goroutine.
type wsSender struct {
	conn *websocket.Conn
}

func (s *wsSender) Send(ctx context.Context, msg twilio.OutboundMessage) error {
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

func (h *streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	session, err := h.app.NewSession(&wsSender{conn: conn})
	if err != nil {
		log.Warn().Err(err).Msg("Media stream refused")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"),
			time.Now().Add(writeTimeout))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cause := h.serve(ctx, conn, session)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), CloseTimeout)
	defer closeCancel()
	h.app.CloseSession(closeCtx, session, cause)
}

// serve runs until the stream stops or the connection fails and returns the
// close cause, nil for a clean stop.
func (h *streamHandler) serve(ctx context.Context, conn *websocket.Conn, session *call.Session) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("%w: closed by peer", faults.ErrTransportDisconnect)
			}
			return fmt.Errorf("%w: %v", faults.ErrTransportDisconnect, err)
		}

		msg, err := twilio.DecodeInbound(data)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID()).Msg("Ignoring malformed frame")
			continue
		}

		err = session.HandleEvent(ctx, msg)
		switch {
		case err == nil:
		case errors.Is(err, call.ErrStreamStopped):
			return nil
		case errors.Is(err, faults.ErrTransportDisconnect), errors.Is(err, call.ErrSessionClosed):
			return err
		default:
			log.Warn().Err(err).Str("sessionId", session.ID()).Msg("Event handling failed")
		}
	}
}
