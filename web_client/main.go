package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Terminal chat client for the school site. Probes the site proxy first,
// then the chat upstream directly; with neither reachable it answers from
// a fixed set of canned replies.

type chatMode int

const (
	modeProxy chatMode = iota
	modeDirect
	modeOffline
)

type cannedReply struct {
	keywords []string
	reply    string
}

var cannedReplies = []cannedReply{
	{
		keywords: []string{"hour", "schedule", "time", "when"},
		reply:    "Classes are held on Saturdays from 10:00 to 14:00 during the school year.",
	},
	{
		keywords: []string{"where", "location", "address", "directions"},
		reply:    "The school meets at the St. Nicholas parish hall. See the Contact page for the address and directions.",
	},
	{
		keywords: []string{"enroll", "register", "admission", "sign up"},
		reply:    "Enrollment is open year-round. Please send your details through the contact form and we will reach out.",
	},
	{
		keywords: []string{"contact", "email", "phone", "call"},
		reply:    "You can reach us through the contact form on the website, or by email at info@stnicholasorthodoxschool.org.",
	},
}

const offlineFallbackReply = "I'm offline right now. Please use the contact form on the website and we will get back to you soon."

var probeClient = &http.Client{Timeout: 3 * time.Second}

func probe(url string) bool {
	resp, err := probeClient.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func detectMode(serverURL, upstreamURL string) chatMode {
	if probe(serverURL + "/api/health") {
		return modeProxy
	}
	if probe(upstreamURL + "/api/tags") {
		return modeDirect
	}
	return modeOffline
}

func offlineReply(message string) string {
	lower := strings.ToLower(message)
	for _, canned := range cannedReplies {
		for _, keyword := range canned.keywords {
			if strings.Contains(lower, keyword) {
				return canned.reply
			}
		}
	}
	return offlineFallbackReply
}

type streamFrame struct {
	Content string `json:"content"`
	Error   string `json:"error"`
	Done    bool   `json:"done"`
}

// streamChat reads the proxy's event stream and prints content frames as
// they arrive, until the terminal [DONE] frame.
func streamChat(serverURL, model, message string) error {
	body, err := json.Marshal(map[string]string{"message": message, "model": model})
	if err != nil {
		return err
	}
	resp, err := http.Post(serverURL+"/api/chat/stream", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("chat proxy returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var frame streamFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			continue
		}
		if frame.Error != "" && frame.Done {
			fmt.Println()
			return fmt.Errorf("stream error: %s", frame.Error)
		}
		fmt.Print(frame.Content)
	}
	fmt.Println()
	return scanner.Err()
}

// directChat talks to the chat upstream without the proxy, buffered.
func directChat(upstreamURL, model, message string) error {
	payload := map[string]interface{}{
		"model":    model,
		"messages": []map[string]string{{"role": "user", "content": message}},
		"stream":   false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(upstreamURL+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("chat upstream returned %d", resp.StatusCode)
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	fmt.Println(parsed.Message.Content)
	return nil
}

func main() {
	serverURL := flag.String("server", "http://localhost:5000", "base URL of the site server")
	upstreamURL := flag.String("upstream", "http://localhost:11434", "base URL of the chat upstream, used when the site server is unreachable")
	model := flag.String("model", "llama2", "chat model name")
	flag.Parse()

	mode := detectMode(*serverURL, *upstreamURL)
	switch mode {
	case modeProxy:
		fmt.Println("Connected to the school site chat. Type a message, or Ctrl-D to quit.")
	case modeDirect:
		fmt.Println("Site server unreachable, talking to the chat service directly. Type a message, or Ctrl-D to quit.")
	case modeOffline:
		fmt.Println("Chat is offline. Answers come from a small set of canned replies. Type a message, or Ctrl-D to quit.")
	}

	stdin := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !stdin.Scan() {
			break
		}
		message := strings.TrimSpace(stdin.Text())
		if message == "" {
			continue
		}

		switch mode {
		case modeProxy:
			if err := streamChat(*serverURL, *model, message); err != nil {
				fmt.Println("Connection lost:", err)
				fmt.Println(offlineReply(message))
				mode = detectMode(*serverURL, *upstreamURL)
			}
		case modeDirect:
			if err := directChat(*upstreamURL, *model, message); err != nil {
				fmt.Println("Connection lost:", err)
				fmt.Println(offlineReply(message))
				mode = detectMode(*serverURL, *upstreamURL)
			}
		case modeOffline:
			fmt.Println(offlineReply(message))
		}
	}
	fmt.Println()
}
