package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/studylens/pkg/provider/llm"
	"github.com/MrWong99/studylens/pkg/provider/llm/ollama"
	"github.com/MrWong99/studylens/pkg/types"
)

func userReq(prompt string) llm.CompletionRequest {
	return llm.CompletionRequest{Messages: []types.Message{{Role: "user", Content: prompt}}}
}

func newProvider(t *testing.T, srv *httptest.Server) *ollama.Provider {
	t.Helper()
	p, err := ollama.New(srv.URL, "llama3.1:8b")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_Defaults(t *testing.T) {
	p, err := ollama.New("", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Model() != ollama.DefaultModel {
		t.Errorf("Model() = %q, want %q", p.Model(), ollama.DefaultModel)
	}
	if _, err := ollama.New("localhost:11434", ""); err == nil {
		t.Error("New with schemeless URL: expected error")
	}
}

func TestNew_TimeoutLeavesSharedClientAlone(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	shared := &http.Client{Timeout: time.Minute}
	p, err := ollama.New(srv.URL, "", ollama.WithHTTPClient(shared), ollama.WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if shared.Timeout != time.Minute {
		t.Errorf("shared client timeout = %v, want 1m", shared.Timeout)
	}
	if _, err := p.Complete(context.Background(), userReq("slow")); err == nil {
		t.Error("Complete against a stalled server should time out")
	}
}

func TestComplete_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":"## Summary\nGraphs.","done":true,"prompt_eval_count":12,"eval_count":5}`)
	}))
	defer srv.Close()

	resp, err := newProvider(t, srv).Complete(context.Background(), userReq("make notes"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "## Summary\nGraphs." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("TotalTokens = %d, want 17", resp.Usage.TotalTokens)
	}
	if got["model"] != "llama3.1:8b" || got["prompt"] != "make notes" || got["stream"] != false {
		t.Errorf("request body = %v", got)
	}
	if _, ok := got["options"]; ok {
		t.Errorf("options should be omitted when unset, got %v", got["options"])
	}
}

func TestComplete_MissingResponse(t *testing.T) {
	for _, body := range []string{`{"response":null}`, `{}`, `{"response":""}`} {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			_, err := newProvider(t, srv).Complete(context.Background(), userReq("x"))
			if !errors.Is(err, llm.ErrMissingResponse) {
				t.Fatalf("error = %v, want ErrMissingResponse", err)
			}
			if !strings.Contains(err.Error(), "missing model response") {
				t.Errorf("error text = %q", err.Error())
			}
		})
	}
}

func TestComplete_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newProvider(t, srv).Complete(context.Background(), userReq("x"))
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want status code in message", err)
	}
}

func TestComplete_ServerReportedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"out of memory"}`)
	}))
	defer srv.Close()

	_, err := newProvider(t, srv).Complete(context.Background(), userReq("x"))
	if err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("error = %v, want server error text", err)
	}
}

func TestComplete_Options(t *testing.T) {
	var got struct {
		System  string `json:"system"`
		Options struct {
			Temperature float64 `json:"temperature"`
			NumPredict  int     `json:"num_predict"`
		} `json:"options"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"response":"ok"}`)
	}))
	defer srv.Close()

	req := userReq("x")
	req.SystemPrompt = "be brief"
	req.Temperature = 0.2
	req.MaxTokens = 64
	if _, err := newProvider(t, srv).Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.System != "be brief" || got.Options.Temperature != 0.2 || got.Options.NumPredict != 64 {
		t.Errorf("request = %+v", got)
	}
}

func TestStreamCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != true {
			t.Errorf("stream = %v, want true", req["stream"])
		}
		fmt.Fprintln(w, `{"response":"Hel","done":false}`)
		fmt.Fprintln(w, `{"response":"lo","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true,"done_reason":"stop"}`)
	}))
	defer srv.Close()

	ch, err := newProvider(t, srv).StreamCompletion(context.Background(), userReq("hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var text strings.Builder
	var last llm.Chunk
	for c := range ch {
		text.WriteString(c.Text)
		last = c
	}
	if text.String() != "Hello" {
		t.Errorf("streamed text = %q, want Hello", text.String())
	}
	if last.FinishReason != "stop" {
		t.Errorf("final FinishReason = %q, want stop", last.FinishReason)
	}
}

func TestStreamCompletion_ErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"a"}`)
		fmt.Fprintln(w, `{"error":"boom"}`)
	}))
	defer srv.Close()

	ch, err := newProvider(t, srv).StreamCompletion(context.Background(), userReq("hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var last llm.Chunk
	for c := range ch {
		last = c
	}
	if last.FinishReason != "error" || last.Text != "boom" {
		t.Errorf("last chunk = %+v, want error chunk", last)
	}
}

func TestHealth(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(int(status.Load()))
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer srv.Close()

	p := newProvider(t, srv)
	if err := p.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
	status.Store(http.StatusServiceUnavailable)
	if err := p.Health(context.Background()); err == nil {
		t.Error("Health with 503: expected error")
	}
}

func TestCountTokens(t *testing.T) {
	p, _ := ollama.New("", "")
	n, err := p.CountTokens([]types.Message{{Role: "user", Content: "12345678"}})
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 3 {
		t.Errorf("CountTokens = %d, want 3", n)
	}
}
