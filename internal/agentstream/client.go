// Package agentstream speaks the agent server's thread/run streaming protocol.
// One run streams at a time; there is no reconnection or retry.
package agentstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/timeline"
)

const errorBodyLimit = 2048

var errStreamEnded = errors.New("stream ended")

type Config struct {
	BaseURL        string
	AssistantID    string
	ConnectTimeout time.Duration
}

// SubmitRequest is one user turn. Messages is the full conversation,
// including the new human message.
type SubmitRequest struct {
	Messages         []timeline.Message
	SearchQueryCount int
	MaxResearchLoops int
	ReasoningModel   string
}

type runInput struct {
	Messages                []wireMessage `json:"messages"`
	InitialSearchQueryCount int           `json:"initial_search_query_count"`
	MaxResearchLoops        int           `json:"max_research_loops"`
	ReasoningModel          string        `json:"reasoning_model,omitempty"`
}

type runRequest struct {
	AssistantID string   `json:"assistant_id"`
	Input       runInput `json:"input"`
	StreamMode  []string `json:"stream_mode"`
}

// Client manages the agent thread of one session and the run streaming on it.
type Client struct {
	baseURL      string
	assistantID  string
	client       *http.Client
	streamClient *http.Client

	mu         sync.Mutex
	threadID   string
	runID      string
	loading    bool
	messages   []timeline.Message
	cancel     context.CancelFunc
	generation uint64

	// Event handlers
	onUpdate      func(map[string]any)
	onStateChange func(bool, []timeline.Message)
	onError       func(error)
}

// handlers are the callbacks bound to one run. A run keeps delivering to the
// handlers that were set when it was submitted.
type handlers struct {
	update func(map[string]any)
	state  func(bool, []timeline.Message)
	err    func(error)
}

func NewClient(cfg Config) *Client {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	assistantID := cfg.AssistantID
	if assistantID == "" {
		assistantID = "agent"
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		assistantID: assistantID,
		client:      &http.Client{Timeout: timeout},
		streamClient: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
		}},
	}
}

// OnUpdate sets the handler for "updates" frames of runs submitted after the
// call.
func (c *Client) OnUpdate(fn func(map[string]any)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// OnStateChange sets the handler called whenever the loading flag or the
// message list changes.
func (c *Client) OnStateChange(fn func(loading bool, messages []timeline.Message)) {
	c.mu.Lock()
	c.onStateChange = fn
	c.mu.Unlock()
}

// OnError sets the handler for errors raised while a run is streaming.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *Client) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Client) Messages() []timeline.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.messages)
}

// Submit starts a run and returns once the stream is open. Frames are then
// delivered from a single goroutine until the run ends or Stop is called.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.loading = true
	c.messages = cloneMessages(req.Messages)
	c.runID = ""
	c.generation++
	gen := c.generation
	threadID := c.threadID
	h := handlers{update: c.onUpdate, state: c.onStateChange, err: c.onError}
	c.mu.Unlock()

	fail := func(err error) error {
		c.mu.Lock()
		if c.generation == gen {
			c.loading = false
		}
		c.mu.Unlock()
		return err
	}

	if threadID == "" {
		id, err := c.createThread(ctx)
		if err != nil {
			return fail(fmt.Errorf("create thread: %w", err))
		}
		c.mu.Lock()
		if c.generation == gen {
			c.threadID = id
		}
		c.mu.Unlock()
		threadID = id
	}

	body, err := json.Marshal(runRequest{
		AssistantID: c.assistantID,
		Input: runInput{
			Messages:                toWire(req.Messages),
			InitialSearchQueryCount: req.SearchQueryCount,
			MaxResearchLoops:        req.MaxResearchLoops,
			ReasoningModel:          req.ReasoningModel,
		},
		StreamMode: []string{"values", "updates"},
	})
	if err != nil {
		return fail(err)
	}

	// The run outlives the caller's request.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/threads/"+url.PathEscape(threadID)+"/runs/stream", bytes.NewReader(body))
	if err != nil {
		cancel()
		return fail(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		cancel()
		return fail(fmt.Errorf("open stream: %w", err))
	}
	if resp.StatusCode >= 400 {
		snippet := readSnippet(resp.Body)
		resp.Body.Close()
		cancel()
		return fail(ErrStreamStatus{Op: "open stream", Status: resp.StatusCode, Body: snippet})
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		resp.Body.Close()
		cancel()
		return nil
	}
	c.cancel = cancel
	c.mu.Unlock()

	go c.consume(gen, h, resp.Body, cancel)
	return nil
}

// Stop aborts the streaming run, if any, and asks the server to cancel it.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	wasLoading := c.loading
	threadID, runID := c.threadID, c.runID
	c.cancel = nil
	c.loading = false
	c.generation++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !wasLoading || threadID == "" || runID == "" {
		return nil
	}
	endpoint := c.baseURL + "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/cancel"
	if err := c.post(ctx, endpoint, nil, nil); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	log.Printf("[agentstream] cancelled run %s on thread %s", runID, threadID)
	return nil
}

// Reset forgets the thread and conversation. The next Submit opens a fresh
// thread.
func (c *Client) Reset() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.loading = false
	c.threadID = ""
	c.runID = ""
	c.messages = nil
	c.generation++
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Ping checks that the agent server is up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ok", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ErrStreamStatus{Op: "ping", Status: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
	return nil
}

func (c *Client) createThread(ctx context.Context) (string, error) {
	var parsed struct {
		ThreadID string `json:"thread_id"`
	}
	if err := c.post(ctx, c.baseURL+"/threads", map[string]any{}, &parsed); err != nil {
		return "", err
	}
	if parsed.ThreadID == "" {
		return "", errors.New("server returned no thread id")
	}
	return parsed.ThreadID, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ErrStreamStatus{Op: "POST " + strings.TrimPrefix(endpoint, c.baseURL), Status: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) consume(gen uint64, h handlers, body io.ReadCloser, cancel context.CancelFunc) {
	defer cancel()
	defer body.Close()

	err := readFrames(body, func(f frame) error {
		return c.handleFrame(gen, h, f)
	})
	if err != nil && !errors.Is(err, errStreamEnded) && c.current(gen) {
		log.Printf("[agentstream] stream read failed: %v", err)
		metrics.RecordStreamError()
		c.emitError(gen, h, fmt.Errorf("read agent stream: %w", err))
	}
	c.finish(gen, h)
}

func (c *Client) handleFrame(gen uint64, h handlers, f frame) error {
	if !c.current(gen) {
		return context.Canceled
	}
	metrics.RecordStreamEvent(f.Event)

	switch f.Event {
	case "metadata":
		var meta struct {
			RunID string `json:"run_id"`
		}
		if err := json.Unmarshal([]byte(f.Data), &meta); err != nil {
			log.Printf("[agentstream] bad metadata frame: %v", err)
			return nil
		}
		c.mu.Lock()
		if c.generation == gen && meta.RunID != "" {
			c.runID = meta.RunID
		}
		c.mu.Unlock()
	case "updates":
		var update map[string]any
		if err := json.Unmarshal([]byte(f.Data), &update); err != nil {
			log.Printf("[agentstream] bad updates frame: %v", err)
			return nil
		}
		if h.update != nil {
			h.update(update)
		}
	case "values":
		var state map[string]any
		if err := json.Unmarshal([]byte(f.Data), &state); err != nil {
			log.Printf("[agentstream] bad values frame: %v", err)
			return nil
		}
		messages, ok := fromState(state)
		if !ok {
			return nil
		}
		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return context.Canceled
		}
		c.messages = messages
		c.mu.Unlock()
		if h.state != nil {
			h.state(true, cloneMessages(messages))
		}
	case "error":
		metrics.RecordStreamError()
		c.emitError(gen, h, parseRunError(f.Data))
	case "end":
		return errStreamEnded
	}
	return nil
}

func (c *Client) finish(gen uint64, h handlers) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.loading = false
	c.cancel = nil
	messages := cloneMessages(c.messages)
	c.mu.Unlock()
	if h.state != nil {
		h.state(false, messages)
	}
}

func (c *Client) emitError(gen uint64, h handlers, err error) {
	if !c.current(gen) {
		return
	}
	if h.err != nil {
		h.err(err)
	}
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

func parseRunError(data string) error {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return RunError{Message: strings.TrimSpace(data)}
	}
	return RunError{Kind: parsed.Error, Message: parsed.Message}
}

func readSnippet(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
	return strings.TrimSpace(string(raw))
}

func cloneMessages(messages []timeline.Message) []timeline.Message {
	if messages == nil {
		return nil
	}
	return append(make([]timeline.Message, 0, len(messages)), messages...)
}
