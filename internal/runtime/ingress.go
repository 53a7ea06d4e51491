package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ablelabs/able-core/internal/devices"
	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/router"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 16 * 1024 * 1024 // media payloads arrive inline
)

// ingress is the HTTP and WebSocket surface of the daemon.
type ingress struct {
	router   *router.Router
	registry *devices.Registry
	metrics  http.Handler
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func newIngress(r *router.Router, registry *devices.Registry, metrics http.Handler, logger *slog.Logger) *ingress {
	return &ingress{
		router:   r,
		registry: registry,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "ingress")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (i *ingress) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/input", i.handleInput)
	mux.HandleFunc("GET /v1/devices", i.handleDevices)
	mux.HandleFunc("GET /v1/stream", i.handleStream)
	if i.metrics != nil {
		mux.Handle("GET /metrics", i.metrics)
	}
}

// handleInput processes one envelope synchronously. A parse failure is the
// only 4xx; everything after parsing comes back as a structured result.
func (i *ingress) handleInput(w http.ResponseWriter, r *http.Request) {
	var env input.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": []string{"malformed envelope: " + err.Error()},
		})
		return
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}

	res := i.router.Process(r.Context(), &env)
	writeJSON(w, http.StatusOK, res)
}

func (i *ingress) handleDevices(w http.ResponseWriter, _ *http.Request) {
	var snapshot []devices.Device
	if i.registry != nil {
		snapshot = i.registry.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": snapshot})
}

// handleStream upgrades to a WebSocket; every text frame is an envelope and
// every reply frame the processed result.
func (i *ingress) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	var writeMu sync.Mutex
	writeResult := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				i.logger.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}

		var env input.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			res := &input.Result{
				Errors:    []string{"malformed envelope: " + err.Error()},
				Timestamp: time.Now().UTC(),
			}
			if writeErr := writeResult(res); writeErr != nil {
				return
			}
			continue
		}
		if env.ID == "" {
			env.ID = uuid.NewString()
		}

		res := i.router.Process(r.Context(), &env)
		if err := writeResult(res); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
