package zadavalnik

import (
	openai "github.com/sashabaranov/go-openai"
)

// History is the ordered, append-only message log handed to the model on
// every turn. Appends return a new History backed by a fresh slice, so a
// caller holding the pre-call value is never affected by a failed turn.
type History struct {
	messages []openai.ChatCompletionMessage
}

// NewHistory creates a history seeded with a system message
func NewHistory(systemPrompt string) History {
	return History{messages: []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	}}}
}

// AppendUser appends one user-role text entry
func (h History) AppendUser(text string) History {
	return h.append(openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
}

// AppendUserParts appends one user-role entry carrying multi-part content,
// used for image turns
func (h History) AppendUserParts(parts []openai.ChatMessagePart) History {
	return h.append(openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

// AppendAssistant appends the assistant reply verbatim, even when it is
// empty or unparsable. The model conditions on its own prior turn, so the
// log must record exactly what it said.
func (h History) AppendAssistant(raw string) History {
	return h.append(openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: raw,
	})
}

// Messages returns a copy of the message log in append order
func (h History) Messages() []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of entries in the log
func (h History) Len() int {
	return len(h.messages)
}

func (h History) append(msg openai.ChatCompletionMessage) History {
	out := make([]openai.ChatCompletionMessage, len(h.messages), len(h.messages)+1)
	copy(out, h.messages)
	return History{messages: append(out, msg)}
}
