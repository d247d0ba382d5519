package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newChatRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/chat", HandleChat)
	r.POST("/api/chat/stream", HandleChatStream)
	r.GET("/api/chat/models", HandleChatModels)
	return r
}

func TestChatBufferedRelaysResponse(t *testing.T) {
	var gotPayload ollamaChatPayload
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected upstream path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode upstream payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "Hello from the model"},
		})
	}))
	defer upstream.Close()
	t.Setenv("OLLAMA_API", upstream.URL)

	router := newChatRouter()
	w := postJSON(router, "/api/chat", `{"message":"hi there"}`)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success  bool   `json:"success"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Response != "Hello from the model" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	if gotPayload.Stream {
		t.Fatalf("expected buffered upstream request")
	}
	if gotPayload.Model != "llama2" {
		t.Fatalf("expected default model, got %q", gotPayload.Model)
	}
	if len(gotPayload.Messages) != 2 || gotPayload.Messages[1].Content != "hi there" {
		t.Fatalf("unexpected upstream messages: %+v", gotPayload.Messages)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	router := newChatRouter()

	for _, body := range []string{`{}`, `{"message":"   "}`, `{"message":42}`} {
		w := postJSON(router, "/api/chat", body)
		if w.Code != 400 {
			t.Fatalf("body %s: expected 400, got %d", body, w.Code)
		}
		if !strings.Contains(w.Body.String(), "Message is required") {
			t.Fatalf("body %s: unexpected response %s", body, w.Body.String())
		}
	}
}

func TestChatUpstreamErrorSurfacesAs500(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", 500)
	}))
	defer upstream.Close()
	t.Setenv("OLLAMA_API", upstream.URL)

	router := newChatRouter()
	w := postJSON(router, "/api/chat", `{"message":"hi"}`)
	if w.Code != 500 {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"success":false`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestChatUpstreamUnreachableSurfacesAs500(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()
	t.Setenv("OLLAMA_API", upstream.URL)

	router := newChatRouter()
	w := postJSON(router, "/api/chat", `{"message":"hi"}`)
	if w.Code != 500 {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestChatStreamRelaysFramesInOrder(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"message":{"content":"Hi"},"done":false}`)
		flusher.Flush()
		fmt.Fprintln(w, `{"message":{"content":"!"},"done":false}`)
		flusher.Flush()
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
	}))
	defer upstream.Close()
	t.Setenv("OLLAMA_API", upstream.URL)

	router := newChatRouter()
	w := postJSON(router, "/api/chat/stream", `{"message":"hi"}`)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("expected no-cache, got %q", got)
	}

	body := w.Body.String()
	first := strings.Index(body, `data: {"content":"Hi","done":false}`)
	second := strings.Index(body, `data: {"content":"!","done":false}`)
	done := strings.Index(body, "data: [DONE]")
	if first < 0 || second < 0 || done < 0 {
		t.Fatalf("missing frames in body: %s", body)
	}
	if !(first < second && second < done) {
		t.Fatalf("frames out of order: %s", body)
	}
}

func TestChatStreamForwardsUnparsableChunks(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `not-json`)
		fmt.Fprintln(w, `{"message":{"content":"ok"},"done":true}`)
	}))
	defer upstream.Close()
	t.Setenv("OLLAMA_API", upstream.URL)

	router := newChatRouter()
	w := postJSON(router, "/api/chat/stream", `{"message":"hi"}`)

	body := w.Body.String()
	var rawFrame string
	for _, line := range strings.Split(body, "\n") {
		if strings.Contains(line, `"content":"not-json"`) {
			rawFrame = line
		}
	}
	if rawFrame == "" {
		t.Fatalf("expected raw chunk to be forwarded, body: %s", body)
	}
	if !strings.Contains(rawFrame, `"error"`) {
		t.Fatalf("expected error annotation on raw chunk, got: %s", rawFrame)
	}
	if !strings.Contains(body, `"content":"ok"`) {
		t.Fatalf("expected valid frame after raw chunk, body: %s", body)
	}
	if !strings.Contains(body, "data: [DONE]") {
		t.Fatalf("expected terminal frame, body: %s", body)
	}
}

func TestChatStreamErrorBeforeBodySurfacesAs500(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no model", 500)
	}))
	defer upstream.Close()
	t.Setenv("OLLAMA_API", upstream.URL)

	router := newChatRouter()
	w := postJSON(router, "/api/chat/stream", `{"message":"hi"}`)
	if w.Code != 500 {
		t.Fatalf("expected 500 before any bytes are committed, got %d", w.Code)
	}
}

func TestChatStreamStopsWhenClientDisconnects(t *testing.T) {
	upstreamDone := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"message":{"content":"Hi"},"done":false}`)
		flusher.Flush()
		select {
		case <-r.Context().Done():
			close(upstreamDone)
		case <-time.After(5 * time.Second):
		}
	}))
	defer upstream.Close()
	t.Setenv("OLLAMA_API", upstream.URL)

	server := httptest.NewServer(newChatRouter())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, "POST", server.URL+"/api/chat/stream", strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("start stream: %v", err)
	}
	defer resp.Body.Close()

	// Read the first committed frame, then walk away mid-stream.
	buf := make([]byte, 1)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("read first byte: %v", err)
	}
	cancel()

	select {
	case <-upstreamDone:
	case <-time.After(3 * time.Second):
		t.Fatalf("upstream read loop was not cancelled after client disconnect")
	}
}

func TestChatModelsProxiesUpstreamListing(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected upstream path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]string{{"name": "llama2"}, {"name": "mistral"}},
		})
	}))
	defer upstream.Close()
	t.Setenv("OLLAMA_API", upstream.URL)

	router := newChatRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/chat/models", nil)
	router.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success bool     `json:"success"`
		Models  []string `json:"models"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || len(resp.Models) != 2 || resp.Models[0] != "llama2" || resp.Models[1] != "mistral" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
