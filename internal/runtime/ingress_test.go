package runtime

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ablelabs/able-core/internal/channel"
	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/router"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testMux(t *testing.T) *http.ServeMux {
	t.Helper()
	r := router.New(router.DefaultConfig(), testLogger(), channel.NewTextProcessor())
	mux := http.NewServeMux()
	newIngress(r, nil, nil, testLogger()).routes(mux)
	return mux
}

func TestHandleInput(t *testing.T) {
	mux := testMux(t)
	env := input.Envelope{Channel: input.ChannelText, Text: "hello", Timestamp: time.Now().UTC()}
	body, _ := json.Marshal(env)

	req := httptest.NewRequest(http.MethodPost, "/v1/input", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res input.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Content != "hello" || res.Confidence != 1.0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestHandleInputMalformedJSON(t *testing.T) {
	mux := testMux(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/input", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed envelope, got %d", rec.Code)
	}
	var payload struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if len(payload.Errors) == 0 {
		t.Fatal("expected error list")
	}
}

func TestHandleInputInvalidEnvelopeStillOK(t *testing.T) {
	mux := testMux(t)
	// Parses fine but fails structural validation; comes back as a result.
	req := httptest.NewRequest(http.MethodPost, "/v1/input", strings.NewReader(`{"channel":"text"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res input.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Errors) == 0 || res.Confidence != 0 {
		t.Fatalf("expected zero-confidence error result: %+v", res)
	}
}

func TestHandleDevicesWithoutRegistry(t *testing.T) {
	mux := testMux(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/devices", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	srv := httptest.NewServer(testMux(t))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Malformed frame comes back as an error result, connection stays up.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var errRes input.Result
	if err := conn.ReadJSON(&errRes); err != nil {
		t.Fatalf("read error result: %v", err)
	}
	if len(errRes.Errors) == 0 {
		t.Fatalf("expected error result, got %+v", errRes)
	}

	env := input.Envelope{Channel: input.ChannelText, Text: "stream me", Timestamp: time.Now().UTC()}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
	var res input.Result
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read result: %v", err)
	}
	if res.Content != "stream me" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
