package timeline

import (
	"fmt"
	"strings"
)

const (
	guardrailPreviewRunes = 50
	webResearchLabelLimit = 3

	guardrailBlockSummary    = "This request was blocked because it violates the content safety policy."
	finalizeSummary          = "Composing and presenting the final answer."
	knowledgeFinalizeSummary = "Composing the final answer from the knowledge base results."
	directAnswerSummary      = "Answering directly without running a search."
)

// Entry is one line of the activity timeline.
type Entry struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Result is the classifier output for a single update. Entry is nil when the
// update carries no recognised stage.
type Result struct {
	Entry    *Entry
	Finalize bool
}

// Classify projects a raw update event into a timeline entry. It never fails:
// malformed payloads yield entries with default wording.
func Classify(raw map[string]any) Result {
	return ClassifyEvent(Decode(raw))
}

// ClassifyEvent projects an already decoded event.
func ClassifyEvent(event Event) Result {
	switch ev := event.(type) {
	case InputGuardrailEvent:
		if ev.IsSafe {
			if ev.OriginalInput == "" {
				return entry("Input Security Check", "Input passed the security check.")
			}
			return entry("Input Security Check", fmt.Sprintf("Input \"%s\" passed the security check.", preview(ev.OriginalInput, guardrailPreviewRunes)))
		}
		violations := "none reported"
		if len(ev.Violations) > 0 {
			violations = strings.Join(ev.Violations, ", ")
		}
		return entry("Security Violation Detected", fmt.Sprintf("Violations: %s (input length: %d characters)", violations, len([]rune(ev.OriginalInput))))
	case GuardrailBlockEvent:
		return entry("Request Blocked", guardrailBlockSummary)
	case QueryGenerationEvent:
		title := "Generating Search Queries"
		if ev.Knowledge {
			title = "Generating Knowledge Search Queries"
		}
		return entry(title, strings.Join(ev.Queries, ", "))
	case WebResearchEvent:
		labels := uniqueLabels(ev.Sources, webResearchLabelLimit)
		related := "N/A"
		if len(labels) > 0 {
			related = strings.Join(labels, ", ")
		}
		return entry("Web Research", fmt.Sprintf("Gathered %d sources. Related to: %s.", len(ev.Sources), related))
	case QueryClassificationEvent:
		return entry("Query Classification", "Search strategy: "+SearchStrategy(ev.NeedsWebSearch, ev.NeedsKnowledgeSearch))
	case KnowledgeSearchEvent:
		noun := "results"
		if ev.ResultCount == 1 {
			noun = "result"
		}
		if len(ev.Queries) == 0 {
			return entry("Knowledge Search", fmt.Sprintf("Searched the knowledge base and found %d %s.", ev.ResultCount, noun))
		}
		return entry("Knowledge Search", fmt.Sprintf("Searched the knowledge base for \"%s\" and found %d %s.", ev.Queries[0], ev.ResultCount, noun))
	case ReflectionEvent:
		return entry(reflectionTitle(ev.Knowledge), reflectionSummary(ev))
	case FinalizeEvent:
		if ev.Knowledge {
			return Result{Entry: &Entry{Title: "Finalizing Knowledge Answer", Summary: knowledgeFinalizeSummary}, Finalize: true}
		}
		return Result{Entry: &Entry{Title: "Finalizing Answer", Summary: finalizeSummary}, Finalize: true}
	case IntentClarifyEvent:
		if !ev.NeedsClarification {
			return entry("Intent Clarification", "Intent is clear.")
		}
		if len(ev.Questions) == 0 {
			return entry("Intent Clarification", "Clarification needed.")
		}
		return entry("Intent Clarification", "Clarification needed: "+strings.Join(ev.Questions, ", "))
	case DirectAnswerEvent:
		return entry("Direct Answer", directAnswerSummary)
	default:
		return Result{}
	}
}

// SearchStrategy labels the route chosen by query classification.
func SearchStrategy(needsWeb bool, needsKnowledge bool) string {
	switch {
	case needsWeb && needsKnowledge:
		return "Web + Knowledge Search"
	case needsWeb:
		return "Web Search"
	case needsKnowledge:
		return "Knowledge Search"
	default:
		return "Direct Answer"
	}
}

func entry(title string, summary string) Result {
	return Result{Entry: &Entry{Title: title, Summary: summary}}
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func uniqueLabels(sources []Source, limit int) []string {
	seen := make(map[string]struct{}, len(sources))
	labels := make([]string, 0, limit)
	for _, source := range sources {
		if source.Label == "" {
			continue
		}
		if _, ok := seen[source.Label]; ok {
			continue
		}
		seen[source.Label] = struct{}{}
		labels = append(labels, source.Label)
		if len(labels) == limit {
			break
		}
	}
	return labels
}

func reflectionTitle(knowledge bool) string {
	if knowledge {
		return "Knowledge Reflection"
	}
	return "Reflection"
}

func reflectionSummary(ev ReflectionEvent) string {
	sufficiency := "Insufficient"
	if ev.IsSufficient {
		sufficiency = "Sufficient"
	}
	gap := ev.KnowledgeGap
	if gap == "" {
		gap = "No gap identified"
	}
	sufficiencyLabel, followUpLabel, noFollowUps := "Sufficiency", "Follow-up queries", "No follow-up queries"
	if ev.Knowledge {
		sufficiencyLabel, followUpLabel, noFollowUps = "Knowledge sufficiency", "Follow-up knowledge queries", "No follow-up knowledge queries"
	}
	followUps := noFollowUps
	if ev.FollowUpListed && len(ev.FollowUpQueries) > 0 {
		followUps = strings.Join(ev.FollowUpQueries, ", ")
	}
	return fmt.Sprintf("%s: %s\nKnowledge gap: %s\n%s: %s", sufficiencyLabel, sufficiency, gap, followUpLabel, followUps)
}
