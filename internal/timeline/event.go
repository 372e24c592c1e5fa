package timeline

import "sort"

// Stage names one step of the agent pipeline as it appears in update events.
type Stage string

const (
	StageInputGuardrail           Stage = "input_guardrail"
	StageGuardrailBlock           Stage = "guardrail_block"
	StageQueryGeneration          Stage = "generate_query"
	StageKnowledgeQueryGeneration Stage = "generate_knowledge_query"
	StageWebResearch              Stage = "web_research"
	StageQueryClassification      Stage = "classify_query"
	StageKnowledgeSearch          Stage = "knowledge_search"
	StageReflection               Stage = "reflection"
	StageKnowledgeReflection      Stage = "knowledge_reflection"
	StageFinalize                 Stage = "finalize_answer"
	StageKnowledgeFinalize        Stage = "finalize_knowledge_answer"
	StageIntentClarify            Stage = "intent_clarify"
	StageDirectAnswer             Stage = "direct_answer"
	StageUnknown                  Stage = "unknown"
)

// stagePriority is the order in which keys are examined when an event carries
// more than one recognised stage. The first match wins.
var stagePriority = []Stage{
	StageInputGuardrail,
	StageGuardrailBlock,
	StageQueryGeneration,
	StageKnowledgeQueryGeneration,
	StageWebResearch,
	StageQueryClassification,
	StageKnowledgeSearch,
	StageReflection,
	StageKnowledgeReflection,
	StageFinalize,
	StageKnowledgeFinalize,
	StageIntentClarify,
	StageDirectAnswer,
}

// stageAliases maps normalized event keys onto stages. Backend node names and
// descriptive stage names are both accepted.
var stageAliases = map[string]Stage{
	"input_guardrail":            StageInputGuardrail,
	"guardrail_block":            StageGuardrailBlock,
	"generate_query":             StageQueryGeneration,
	"query_generation":           StageQueryGeneration,
	"generate_knowledge_query":   StageKnowledgeQueryGeneration,
	"knowledge_query_generation": StageKnowledgeQueryGeneration,
	"web_research":               StageWebResearch,
	"classify_query":             StageQueryClassification,
	"query_classification":       StageQueryClassification,
	"knowledge_search":           StageKnowledgeSearch,
	"reflection":                 StageReflection,
	"knowledge_reflection":       StageKnowledgeReflection,
	"finalize_answer":            StageFinalize,
	"finalize":                   StageFinalize,
	"finalize_knowledge_answer":  StageKnowledgeFinalize,
	"finalize_knowledge":         StageKnowledgeFinalize,
	"knowledge_finalize":         StageKnowledgeFinalize,
	"intent_clarify":             StageIntentClarify,
	"direct_answer":              StageDirectAnswer,
}

// LookupStage resolves an event key in any supported spelling.
func LookupStage(key string) (Stage, bool) {
	stage, ok := stageAliases[normalizeKey(key)]
	return stage, ok
}

// Event is the decoded form of one raw update. The concrete type identifies
// the stage; UnknownEvent covers updates with no recognised key.
type Event interface {
	Stage() Stage
}

type InputGuardrailEvent struct {
	IsSafe        bool
	Violations    []string
	OriginalInput string
}

type GuardrailBlockEvent struct{}

// QueryGenerationEvent covers both the web and the knowledge query writers.
type QueryGenerationEvent struct {
	Knowledge bool
	Queries   []string
}

type Source struct {
	Label string
}

type WebResearchEvent struct {
	Sources []Source
}

type QueryClassificationEvent struct {
	NeedsWebSearch       bool
	NeedsKnowledgeSearch bool
}

type KnowledgeSearchEvent struct {
	Queries     []string
	ResultCount int
}

// ReflectionEvent covers both reflection nodes. FollowUpListed is false when
// the payload carried no list-like follow-up field at all.
type ReflectionEvent struct {
	Knowledge       bool
	IsSufficient    bool
	KnowledgeGap    string
	FollowUpQueries []string
	FollowUpListed  bool
}

type FinalizeEvent struct {
	Knowledge bool
}

type IntentClarifyEvent struct {
	NeedsClarification bool
	Questions          []string
}

type DirectAnswerEvent struct{}

type UnknownEvent struct {
	Keys []string
}

func (InputGuardrailEvent) Stage() Stage { return StageInputGuardrail }
func (GuardrailBlockEvent) Stage() Stage { return StageGuardrailBlock }
func (e QueryGenerationEvent) Stage() Stage {
	if e.Knowledge {
		return StageKnowledgeQueryGeneration
	}
	return StageQueryGeneration
}
func (WebResearchEvent) Stage() Stage         { return StageWebResearch }
func (QueryClassificationEvent) Stage() Stage { return StageQueryClassification }
func (KnowledgeSearchEvent) Stage() Stage     { return StageKnowledgeSearch }
func (e ReflectionEvent) Stage() Stage {
	if e.Knowledge {
		return StageKnowledgeReflection
	}
	return StageReflection
}
func (e FinalizeEvent) Stage() Stage {
	if e.Knowledge {
		return StageKnowledgeFinalize
	}
	return StageFinalize
}
func (IntentClarifyEvent) Stage() Stage { return StageIntentClarify }
func (DirectAnswerEvent) Stage() Stage  { return StageDirectAnswer }
func (UnknownEvent) Stage() Stage       { return StageUnknown }

// Decode turns a raw update into its typed variant. Keys are matched in
// stagePriority order regardless of map iteration order; when one stage
// appears under several spellings, the lexically first key wins. Nested
// payload fields that are missing or mistyped fall back to zero values.
func Decode(raw map[string]any) Event {
	if len(raw) == 0 {
		return UnknownEvent{}
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	present := make(map[Stage]map[string]any, 1)
	for _, key := range keys {
		stage, ok := LookupStage(key)
		if !ok {
			continue
		}
		if _, seen := present[stage]; seen {
			continue
		}
		payload := asMap(normalizePayload(raw[key]))
		if payload == nil {
			payload = map[string]any{}
		}
		present[stage] = payload
	}
	for _, stage := range stagePriority {
		payload, ok := present[stage]
		if !ok {
			continue
		}
		return decodeStage(stage, payload)
	}
	return UnknownEvent{Keys: keys}
}

func decodeStage(stage Stage, payload map[string]any) Event {
	switch stage {
	case StageInputGuardrail:
		safe, ok := firstBool(payload, "is_safe_input", "is_safe")
		if !ok {
			safe = true
		}
		violations, _ := readQueryList(payload, "guardrail_violations", "violations")
		return InputGuardrailEvent{
			IsSafe:        safe,
			Violations:    violations,
			OriginalInput: rawString(payload, "original_input", "input"),
		}
	case StageGuardrailBlock:
		return GuardrailBlockEvent{}
	case StageQueryGeneration, StageKnowledgeQueryGeneration:
		queries, _ := readQueryList(payload, "query_list", "search_query", "queries", "query")
		return QueryGenerationEvent{
			Knowledge: stage == StageKnowledgeQueryGeneration,
			Queries:   queries,
		}
	case StageWebResearch:
		raw, _ := readList(payload, "sources_gathered", "sources")
		sources := make([]Source, 0, len(raw))
		for _, item := range raw {
			switch typed := item.(type) {
			case map[string]any:
				sources = append(sources, Source{Label: firstString(typed, "label", "title")})
			default:
				sources = append(sources, Source{})
			}
		}
		return WebResearchEvent{Sources: sources}
	case StageQueryClassification:
		web, _ := firstBool(payload, "needs_web_search")
		knowledge, _ := firstBool(payload, "needs_knowledge_search")
		return QueryClassificationEvent{
			NeedsWebSearch:       web,
			NeedsKnowledgeSearch: knowledge,
		}
	case StageKnowledgeSearch:
		queries, _ := readQueryList(payload, "search_query", "query")
		if len(queries) == 0 {
			if single := firstString(payload, "search_query", "query"); single != "" {
				queries = []string{single}
			}
		}
		results, _ := readList(payload, "knowledge_search_result", "results")
		return KnowledgeSearchEvent{
			Queries:     queries,
			ResultCount: countResults(results),
		}
	case StageReflection, StageKnowledgeReflection:
		sufficient, _ := firstBool(payload, "is_sufficient")
		followUps, listed := readQueryList(payload, "follow_up_queries")
		return ReflectionEvent{
			Knowledge:       stage == StageKnowledgeReflection,
			IsSufficient:    sufficient,
			KnowledgeGap:    firstString(payload, "knowledge_gap"),
			FollowUpQueries: followUps,
			FollowUpListed:  listed,
		}
	case StageFinalize, StageKnowledgeFinalize:
		return FinalizeEvent{Knowledge: stage == StageKnowledgeFinalize}
	case StageIntentClarify:
		needs, _ := firstBool(payload, "needs_clarification")
		questions, _ := readQueryList(payload, "clarification_questions", "questions")
		return IntentClarifyEvent{NeedsClarification: needs, Questions: questions}
	case StageDirectAnswer:
		return DirectAnswerEvent{}
	default:
		return UnknownEvent{}
	}
}
