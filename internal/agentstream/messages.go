package agentstream

import (
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/timeline"
)

// wireMessage is a chat message as the agent server serializes it.
type wireMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Content any    `json:"content"`
}

func toWire(messages []timeline.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		kind := "human"
		if msg.Role == timeline.RoleAgent {
			kind = "ai"
		}
		out = append(out, wireMessage{ID: msg.ID, Type: kind, Content: msg.Content})
	}
	return out
}

// fromState extracts the message list from a "values" frame. ok is false when
// the state carries no messages field.
func fromState(state map[string]any) ([]timeline.Message, bool) {
	raw, ok := state["messages"].([]any)
	if !ok {
		return nil, false
	}
	out := make([]timeline.Message, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := entry["type"].(string)
		role := timeline.RoleHuman
		switch kind {
		case "ai", "AIMessage", "AIMessageChunk", "assistant":
			role = timeline.RoleAgent
		case "human", "HumanMessage", "user":
		default:
			continue
		}
		id, _ := entry["id"].(string)
		out = append(out, timeline.Message{ID: id, Role: role, Content: contentText(entry["content"])})
	}
	return out, true
}

// contentText flattens string content and multi-part content lists.
func contentText(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []any:
		parts := make([]string, 0, len(typed))
		for _, part := range typed {
			switch p := part.(type) {
			case string:
				parts = append(parts, p)
			case map[string]any:
				if text, ok := p["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "")
	default:
		return ""
	}
}
