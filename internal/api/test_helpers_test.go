package api

import (
	"bufio"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/agentstream"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/effort"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/session"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/timeline"
)

type MockTransport struct {
	mock.Mock

	mu            sync.Mutex
	onUpdate      func(map[string]any)
	onStateChange func(bool, []timeline.Message)
	onError       func(error)
}

func (m *MockTransport) Submit(ctx context.Context, req agentstream.SubmitRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockTransport) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransport) Reset() {
	m.Called()
}

func (m *MockTransport) IsLoading() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockTransport) Messages() []timeline.Message {
	args := m.Called()
	if value := args.Get(0); value != nil {
		return value.([]timeline.Message)
	}
	return nil
}

func (m *MockTransport) OnUpdate(fn func(map[string]any)) {
	m.mu.Lock()
	m.onUpdate = fn
	m.mu.Unlock()
}

func (m *MockTransport) OnStateChange(fn func(bool, []timeline.Message)) {
	m.mu.Lock()
	m.onStateChange = fn
	m.mu.Unlock()
}

func (m *MockTransport) OnError(fn func(error)) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

func (m *MockTransport) emitUpdate(update map[string]any) {
	m.mu.Lock()
	fn := m.onUpdate
	m.mu.Unlock()
	fn(update)
}

func (m *MockTransport) emitState(loading bool, messages []timeline.Message) {
	m.mu.Lock()
	fn := m.onStateChange
	m.mu.Unlock()
	fn(loading, messages)
}

type MockAgentProbe struct {
	mock.Mock
}

func (m *MockAgentProbe) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type testEnv struct {
	server     *httptest.Server
	manager    *session.Manager
	broker     *events.Broker
	mu         sync.Mutex
	transports []*MockTransport
}

func (e *testEnv) transport(i int) *MockTransport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transports[i]
}

// newTestServer wires a real session manager and broker around mock
// transports. setup configures each transport as it is created.
func newTestServer(t *testing.T, probe AgentProbe, setup func(*MockTransport)) *testEnv {
	t.Helper()
	env := &testEnv{broker: events.NewBroker(0)}
	env.manager = session.NewManager(func() session.Transport {
		transport := &MockTransport{}
		transport.On("Stop", mock.Anything).Return(nil).Maybe()
		transport.On("Reset").Return().Maybe()
		if setup != nil {
			setup(transport)
		}
		env.mu.Lock()
		env.transports = append(env.transports, transport)
		env.mu.Unlock()
		return transport
	}, env.broker, session.Options{DefaultEffort: effort.Medium, DefaultReasoningModel: "gemini-2.5-flash"})

	cfg := config.Defaults()
	server := NewServer(env.manager, env.broker, probe, cfg)
	env.server = httptest.NewServer(server.Router())
	t.Cleanup(env.server.Close)
	return env
}

type sseFrame struct {
	ID    string
	Event string
	Data  string
}

func readSSEFrame(t *testing.T, reader *bufio.Reader) sseFrame {
	t.Helper()
	var frame sseFrame
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if frame.Event == "" && frame.Data == "" {
				continue
			}
			return frame
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ": ")
		switch field {
		case "id":
			frame.ID = value
		case "event":
			frame.Event = value
		case "data":
			frame.Data = value
		}
	}
}
