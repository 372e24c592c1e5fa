package timeline

// Phase is the finalize latch of the reconciler.
type Phase int

const (
	// PhaseAwaitingFinalize: no finalize signal seen for the current turn.
	PhaseAwaitingFinalize Phase = iota
	// PhaseAwaitingArchive: finalize seen; archive once the stream is idle
	// and an agent message closes the turn.
	PhaseAwaitingArchive
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingFinalize:
		return "awaiting_finalize"
	case PhaseAwaitingArchive:
		return "awaiting_archive"
	default:
		return "unknown"
	}
}

type Role string

const (
	RoleHuman Role = "human"
	RoleAgent Role = "agent"
)

// Message is the slice of a chat message the reconciler inspects.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Reconciler keeps the live activity timeline of the turn in flight and the
// archive of finished timelines keyed by the agent message they explain.
// It is not safe for concurrent use.
type Reconciler struct {
	live    []Entry
	phase   Phase
	archive map[string][]Entry
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		live:    []Entry{},
		archive: map[string][]Entry{},
	}
}

// HandleEvent classifies one update and applies it to the live timeline.
func (r *Reconciler) HandleEvent(raw map[string]any) Result {
	result := Classify(raw)
	r.Apply(result)
	return result
}

// Apply records a classifier result: entries are appended in arrival order
// and a finalize result arms the archive.
func (r *Reconciler) Apply(result Result) {
	if result.Entry != nil {
		r.live = append(r.live, *result.Entry)
	}
	if result.Finalize {
		r.phase = PhaseAwaitingArchive
	}
}

// StreamStateChanged is evaluated whenever the transport's loading flag or
// message list changes. It archives the live timeline under the last message
// id when finalize was seen, the stream is idle and that message is an agent
// message with an id. The live timeline itself is left in place until the
// next turn begins.
func (r *Reconciler) StreamStateChanged(streaming bool, messages []Message) (string, bool) {
	if r.phase != PhaseAwaitingArchive || streaming || len(messages) == 0 {
		return "", false
	}
	last := messages[len(messages)-1]
	if last.Role != RoleAgent || last.ID == "" {
		return "", false
	}
	r.archive[last.ID] = cloneEntries(r.live)
	r.phase = PhaseAwaitingFinalize
	return last.ID, true
}

// BeginTurn clears the live timeline and the latch. Call it before the new
// request is dispatched so no event of the new turn lands on stale entries.
func (r *Reconciler) BeginTurn() {
	r.live = []Entry{}
	r.phase = PhaseAwaitingFinalize
}

// Reset discards every piece of state, archive included.
func (r *Reconciler) Reset() {
	r.BeginTurn()
	r.archive = map[string][]Entry{}
}

func (r *Reconciler) Phase() Phase {
	return r.phase
}

func (r *Reconciler) Live() []Entry {
	return cloneEntries(r.live)
}

func (r *Reconciler) Archived(messageID string) ([]Entry, bool) {
	entries, ok := r.archive[messageID]
	if !ok {
		return nil, false
	}
	return cloneEntries(entries), true
}

func (r *Reconciler) Archive() map[string][]Entry {
	out := make(map[string][]Entry, len(r.archive))
	for id, entries := range r.archive {
		out[id] = cloneEntries(entries)
	}
	return out
}

func cloneEntries(entries []Entry) []Entry {
	return append(make([]Entry, 0, len(entries)), entries...)
}
