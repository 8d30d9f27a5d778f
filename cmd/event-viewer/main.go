// Command event-viewer shows call events as they happen. It consumes the
// emergency and call-completed topics from Kafka and pushes every event to
// connected browsers over a WebSocket.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"ai-voice-bridge-service/internal/models"
)

//go:embed static/*
var staticFiles embed.FS

// envelope is the part of every event the viewer inspects; the full JSON is
// forwarded untouched.
type envelope struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// Hub fans events out to WebSocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Int("clients", n).Msg("Client connected")
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		conn.Close()
		log.Info().Int("clients", n).Msg("Client disconnected")
	}
}

// broadcast writes raw to every client, dropping clients that fail.
func (h *Hub) broadcast(raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			log.Warn().Err(err).Msg("Write error")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		hub.add(conn)

		// Reads only detect disconnects.
		go func() {
			defer hub.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, topic string, since time.Duration) error {
	// Partition reader without a consumer group, so every viewer sees every event.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Could not rewind, reading from the current offset")
	}
	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		var env envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			log.Warn().Err(err).Msg("JSON unmarshal error")
			continue
		}
		logEvent(env, msg.Value)
		hub.broadcast(msg.Value)
	}
}

func logEvent(env envelope, raw []byte) {
	ev := log.Info().Str("eventType", env.EventType).Str("sessionId", env.SessionID)
	switch env.EventType {
	case models.EventEmergencyRecorded:
		var e models.EmergencyRecorded
		if json.Unmarshal(raw, &e) == nil && e.Emergency != nil {
			ev = ev.Str("emergency", *e.Emergency)
		}
	case models.EventCallCompleted:
		var e models.CallCompleted
		if json.Unmarshal(raw, &e) == nil {
			ev = ev.Int("turns", len(e.Transcript)).Int64("durationMs", e.DurationMs)
		}
	}
	ev.Msg("Event received")
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicEmergency := flag.String("topic-emergency", models.EventEmergencyRecorded, "Emergency record topic")
	topicCall := flag.String("topic-call", models.EventCallCompleted, "Call completed topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	brokerList := strings.Split(*brokers, ",")

	staticFS, _ := fs.Sub(staticFiles, "static")
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", wsHandler(hub))
	srv := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumeKafka(gctx, hub, brokerList, *topicEmergency, *since) })
	g.Go(func() error { return consumeKafka(gctx, hub, brokerList, *topicCall, *since) })
	g.Go(func() error {
		log.Info().Str("url", "http://localhost:"+*port).Strs("brokers", brokerList).Msg("Event viewer starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Event viewer failed")
	}
}
