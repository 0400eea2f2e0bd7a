package simulator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local development gateway
	},
	EnableCompression: true,
}

// Gateway is the socket endpoint of the legacy flow. It upgrades the
// connection, starts the pipeline on the start_generation envelope and
// routes client_response envelopes to the running script.
type Gateway struct {
	store   *Store
	logger  *slog.Logger
	stepLag time.Duration
}

func NewGateway(store *Store, logger *slog.Logger, stepLag time.Duration) *Gateway {
	return &Gateway{
		store:   store,
		logger:  logger.With("module", "simulator.gateway"),
		stepLag: stepLag,
	}
}

// Handler serves the websocket endpoint; process_id and user_id arrive as
// query parameters.
func (g *Gateway) Handler(w http.ResponseWriter, r *http.Request) {
	processID := r.URL.Query().Get("process_id")

	proc, ok := g.store.Get(processID)
	if !ok {
		http.Error(w, "process not found", http.StatusNotFound)

		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("Upgrade failed", "error", err)

		return
	}

	g.logger.Info("Socket connected", "process_id", processID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex

	emit := func(payload map[string]any) {
		writeMu.Lock()
		defer writeMu.Unlock()

		envelope := map[string]any{"type": "server_event", "payload": payload}
		if err := conn.WriteJSON(envelope); err != nil {
			g.logger.Debug("Socket write failed", "error", err)
		}
	}

	var started sync.Once

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			g.logger.Info("Socket closed", "process_id", processID)

			return
		}

		var msg struct {
			Type         string         `json:"type"`
			ResponseType string         `json:"response_type"`
			Payload      map[string]any `json:"payload"`
		}

		if err := json.Unmarshal(data, &msg); err != nil {
			g.logger.Debug("Dropped malformed client message", "error", err)

			continue
		}

		switch msg.Type {
		case "start_generation":
			started.Do(func() {
				pipeline := NewPipeline(g.store, proc, emit, g.logger, g.stepLag)
				go pipeline.Run(ctx)
			})
		case "client_response":
			select {
			case proc.Responses <- ClientInput{ResponseType: msg.ResponseType, Payload: msg.Payload}:
			default:
				g.logger.Warn("Response dropped, script not waiting",
					"response_type", msg.ResponseType)
			}
		default:
			g.logger.Debug("Unknown message type", "type", msg.Type)
		}
	}
}

// ListenAndServe runs the gateway on its own listener.
func (g *Gateway) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/article-generation", g.Handler)

	return http.ListenAndServe(addr, mux)
}
