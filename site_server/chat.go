package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultSystemPrompt = "You are a helpful assistant for the Russian Orthodox School of St. Nicholas. " +
	"Provide accurate, helpful information about Orthodox education, school programs, and general inquiries. " +
	"Keep responses respectful, educational, and appropriate for all ages."

// No client timeout: streamed responses stay open as long as the model
// generates. Cancellation rides on the request context instead.
var chatHTTPClient = &http.Client{}

func chatUpstreamURL() string {
	return envOrDefault("OLLAMA_API", "http://ollama:11434")
}

func defaultChatModel() string {
	return envOrDefault("OLLAMA_DEFAULT_MODEL", "llama2")
}

func newUpstreamChatRequest(ctx context.Context, model, message string, stream bool) (*http.Request, error) {
	payload := ollamaChatPayload{
		Model: model,
		Messages: []ollamaMessage{
			{Role: "system", Content: envOrDefault("CHAT_SYSTEM_PROMPT", defaultSystemPrompt)},
			{Role: "user", Content: message},
		},
		Options: ollamaOptions{Temperature: 0.7, TopK: 50, TopP: 0.95, NumPredict: 500},
		Stream:  stream,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatUpstreamURL()+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func bindChatRequest(c *gin.Context) (*ChatRequest, bool) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(400, gin.H{"success": false, "message": "Message is required"})
		return nil, false
	}
	if req.Model == "" {
		req.Model = defaultChatModel()
	}
	if !isProduction() {
		log.Printf("Chat request: %q", truncate(req.Message, 50))
	}
	return &req, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// HandleChat forwards one message upstream and relays the complete
// response in a single JSON body.
func HandleChat(c *gin.Context) {
	req, ok := bindChatRequest(c)
	if !ok {
		return
	}

	upstreamReq, err := newUpstreamChatRequest(c.Request.Context(), req.Model, req.Message, false)
	if err != nil {
		log.Println("Chat request build error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Failed to communicate with the chat service"})
		return
	}

	resp, err := chatHTTPClient.Do(upstreamReq)
	if err != nil {
		log.Println("Chat proxy error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Failed to communicate with the chat service"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Chat upstream returned %d: %s", resp.StatusCode, resp.Status)
		c.JSON(500, gin.H{"success": false, "message": "Failed to communicate with the chat service"})
		return
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Println("Chat response decode error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Failed to communicate with the chat service"})
		return
	}

	c.JSON(200, gin.H{"success": true, "response": parsed.Message.Content})
}

// HandleChatStream forwards one message upstream with streaming enabled
// and relays each content token as a server-sent event frame. Once the
// stream has started, failures are reported as a final in-stream error
// frame since the response status is already committed.
func HandleChatStream(c *gin.Context) {
	req, ok := bindChatRequest(c)
	if !ok {
		return
	}

	upstreamReq, err := newUpstreamChatRequest(c.Request.Context(), req.Model, req.Message, true)
	if err != nil {
		log.Println("Chat request build error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Failed to communicate with the chat service"})
		return
	}

	resp, err := chatHTTPClient.Do(upstreamReq)
	if err != nil {
		log.Println("Chat stream error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Failed to communicate with the chat service"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Chat upstream returned %d: %s", resp.StatusCode, resp.Status)
		c.JSON(500, gin.H{"success": false, "message": "Failed to communicate with the chat service"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(200)
	c.Writer.Flush()

	writeFrame := func(payload gin.H) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		c.Writer.Flush()
	}

	// The upstream emits newline-delimited JSON fragments. Relay them in
	// arrival order; a fragment that fails to parse is forwarded raw in
	// an error-annotated frame rather than dropped.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaStreamChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			writeFrame(gin.H{"content": line, "done": false, "error": err.Error()})
			continue
		}
		if chunk.Message.Content != "" {
			writeFrame(gin.H{"content": chunk.Message.Content, "done": false})
		}
	}
	if err := scanner.Err(); err != nil {
		// Covers upstream failures mid-stream and the downstream client
		// going away, which cancels the upstream read.
		log.Println("Chat stream read error:", err)
		writeFrame(gin.H{"error": "Stream processing error", "done": true})
		return
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// HandleChatModels proxies the upstream model listing.
func HandleChatModels(c *gin.Context) {
	models, err := listUpstreamModels(c.Request.Context())
	if err != nil {
		log.Println("Chat model listing error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Failed to communicate with the chat service"})
		return
	}
	c.JSON(200, gin.H{"success": true, "models": models})
}

func listUpstreamModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chatUpstreamURL()+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := chatHTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// checkChatUpstream logs chat service availability at startup. Never
// fatal: the site works without the chatbot.
func checkChatUpstream() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	models, err := listUpstreamModels(ctx)
	if err != nil {
		log.Println("Chat upstream connection error:", err)
		log.Println("Chatbot functionality will be limited until the chat service is available")
		return
	}
	if len(models) == 0 {
		log.Println("Chat upstream connected but no models found. Pull a model to enable the chatbot.")
		return
	}
	log.Println("Chat upstream connected. Available models:", strings.Join(models, ", "))
}
