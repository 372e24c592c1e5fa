// Package session serializes everything that happens to one conversation:
// transport callbacks, submissions and cancellation all apply to the
// timeline reconciler under a single lock, in arrival order.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/agentstream"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/effort"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/timeline"
)

var (
	ErrBusy         = agentstream.ErrBusy
	ErrNotFound     = errors.New("session not found")
	ErrEmptyMessage = errors.New("message content is empty")
)

// Transport is the streaming connection to the agent.
type Transport interface {
	Submit(ctx context.Context, req agentstream.SubmitRequest) error
	Stop(ctx context.Context) error
	Reset()
	IsLoading() bool
	Messages() []timeline.Message
	OnUpdate(fn func(map[string]any))
	OnStateChange(fn func(loading bool, messages []timeline.Message))
	OnError(fn func(error))
}

type Publisher interface {
	Publish(event events.SessionEvent)
}

type Options struct {
	DefaultEffort         effort.Level
	DefaultReasoningModel string
}

type SubmitInput struct {
	Text           string `json:"content"`
	Effort         string `json:"effort"`
	ReasoningModel string `json:"reasoning_model"`
}

// Snapshot is the complete renderable state of a session.
type Snapshot struct {
	SessionID string                      `json:"session_id"`
	Loading   bool                        `json:"loading"`
	Phase     string                      `json:"phase"`
	Messages  []timeline.Message          `json:"messages"`
	Live      []timeline.Entry            `json:"live"`
	Archive   map[string][]timeline.Entry `json:"archive"`
	Error     string                      `json:"error,omitempty"`
}

type Session struct {
	id        string
	transport Transport
	publisher Publisher
	opts      Options

	mu         sync.Mutex
	reconciler *timeline.Reconciler
	messages   []timeline.Message
	loading    bool
	cancelling bool
	err        error
	seq        int64
	turn       uint64
	closed     bool
}

func New(id string, transport Transport, publisher Publisher, opts Options) *Session {
	if opts.DefaultEffort == "" {
		opts.DefaultEffort = effort.Medium
	}
	s := &Session{
		id:         id,
		transport:  transport,
		publisher:  publisher,
		opts:       opts,
		reconciler: timeline.NewReconciler(),
		messages:   []timeline.Message{},
	}
	s.bindLocked(s.turn)
	return s
}

// bindLocked points the transport callbacks at turn. Callbacks carrying an
// older turn are ignored, so a stream that outlives its turn cannot touch
// the next one.
func (s *Session) bindLocked(turn uint64) {
	s.transport.OnUpdate(func(update map[string]any) { s.handleUpdate(turn, update) })
	s.transport.OnStateChange(func(loading bool, messages []timeline.Message) {
		s.handleStateChange(turn, loading, messages)
	})
	s.transport.OnError(func(err error) { s.handleError(turn, err) })
}

func (s *Session) ID() string {
	return s.id
}

// Submit starts a new turn. The previous turn's live timeline is discarded
// before the request leaves, so no event of the new turn lands on it.
func (s *Session) Submit(ctx context.Context, in SubmitInput) error {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return ErrEmptyMessage
	}
	level := s.opts.DefaultEffort
	if strings.TrimSpace(in.Effort) != "" {
		parsed, err := effort.Parse(in.Effort)
		if err != nil {
			return err
		}
		level = parsed
	}
	budget, err := level.Budget()
	if err != nil {
		return err
	}
	model := strings.TrimSpace(in.ReasoningModel)
	if model == "" {
		model = s.opts.DefaultReasoningModel
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.loading || s.cancelling {
		s.mu.Unlock()
		return ErrBusy
	}
	s.turn++
	turn := s.turn
	s.bindLocked(turn)
	s.reconciler.BeginTurn()
	s.err = nil
	s.messages = append(s.messages, timeline.Message{ID: uuid.NewString(), Role: timeline.RoleHuman, Content: text})
	s.loading = true
	req := agentstream.SubmitRequest{
		Messages:         cloneMessages(s.messages),
		SearchQueryCount: budget.SearchQueryCount,
		MaxResearchLoops: budget.MaxResearchLoops,
		ReasoningModel:   model,
	}
	s.publishLocked()
	s.mu.Unlock()

	if err := s.transport.Submit(ctx, req); err != nil {
		log.Printf("[session] %s submit failed: %v", s.id, err)
		s.mu.Lock()
		if s.turn == turn {
			s.loading = false
			s.err = err
			s.publishLocked()
		}
		s.mu.Unlock()
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// Cancel aborts the running turn and drops the whole conversation, archive
// included. The session itself stays open.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	s.turn++
	s.cancelling = true
	s.mu.Unlock()

	// Stop runs unlocked; it may wait on the agent server.
	stopErr := s.transport.Stop(ctx)

	s.mu.Lock()
	s.transport.Reset()
	s.reconciler.Reset()
	s.messages = []timeline.Message{}
	s.loading = false
	s.cancelling = false
	s.err = nil
	s.publishLocked()
	s.mu.Unlock()

	if stopErr != nil {
		log.Printf("[session] %s stop failed: %v", s.id, stopErr)
		return fmt.Errorf("cancel: %w", stopErr)
	}
	return nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Timeline returns the live entries and the finalize phase.
func (s *Session) Timeline() ([]timeline.Entry, timeline.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Live(), s.reconciler.Phase()
}

func (s *Session) Archived(messageID string) ([]timeline.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Archived(messageID)
}

func (s *Session) close(ctx context.Context) error {
	err := s.Cancel(ctx)
	s.mu.Lock()
	s.closed = true
	if s.publisher != nil {
		s.seq++
		s.publisher.Publish(events.SessionEvent{
			SessionID: s.id,
			Seq:       s.seq,
			Type:      events.TypeSessionClosed,
			Ts:        time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
	s.mu.Unlock()
	return err
}

func (s *Session) handleUpdate(turn uint64, update map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn != s.turn || !s.loading {
		return
	}
	event := timeline.Decode(update)
	result := timeline.ClassifyEvent(event)
	s.reconciler.Apply(result)
	if result.Entry == nil {
		return
	}
	metrics.RecordTimelineEntry(string(event.Stage()))
	s.publishLocked()
}

func (s *Session) handleStateChange(turn uint64, loading bool, messages []timeline.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn != s.turn || !s.loading {
		return
	}
	if len(messages) > 0 {
		s.messages = cloneMessages(messages)
	}
	s.loading = loading
	if id, ok := s.reconciler.StreamStateChanged(loading, s.messages); ok {
		metrics.RecordArchive()
		log.Printf("[session] %s archived timeline for message %s", s.id, id)
	}
	s.publishLocked()
}

func (s *Session) handleError(turn uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn != s.turn || !s.loading {
		return
	}
	s.err = err
	s.publishLocked()
}

func (s *Session) publishLocked() {
	if s.publisher == nil {
		return
	}
	s.seq++
	s.publisher.Publish(events.SessionEvent{
		SessionID: s.id,
		Seq:       s.seq,
		Type:      events.TypeSessionUpdate,
		Ts:        time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   s.snapshotLocked(),
	})
}

func (s *Session) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		SessionID: s.id,
		Loading:   s.loading,
		Phase:     s.reconciler.Phase().String(),
		Messages:  cloneMessages(s.messages),
		Live:      s.reconciler.Live(),
		Archive:   s.reconciler.Archive(),
	}
	if s.err != nil {
		snapshot.Error = s.err.Error()
	}
	return snapshot
}

func cloneMessages(messages []timeline.Message) []timeline.Message {
	return append(make([]timeline.Message, 0, len(messages)), messages...)
}
