package zadavalnik

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestHistoryAppendOrder(t *testing.T) {
	h := NewHistory("system prompt")
	h = h.AppendUser("first answer")
	h = h.AppendAssistant(`{"not":"parsable"`)
	h = h.AppendUser("second answer")
	h = h.AppendAssistant("raw reply")

	msgs := h.Messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(msgs))
	}

	wantRoles := []string{
		openai.ChatMessageRoleSystem,
		openai.ChatMessageRoleUser,
		openai.ChatMessageRoleAssistant,
		openai.ChatMessageRoleUser,
		openai.ChatMessageRoleAssistant,
	}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Fatalf("entry %d: got role %q, want %q", i, msgs[i].Role, role)
		}
	}

	// Unparsable assistant output must be recorded verbatim
	if msgs[2].Content != `{"not":"parsable"` {
		t.Fatalf("assistant entry mutated: %q", msgs[2].Content)
	}
}

func TestHistoryAppendDoesNotMutatePrior(t *testing.T) {
	base := NewHistory("system")
	before := base.Messages()

	extended := base.AppendUser("hello")
	extended = extended.AppendAssistant("reply")

	if base.Len() != 1 {
		t.Fatalf("append mutated the original history: len=%d", base.Len())
	}
	after := base.Messages()
	for i := range before {
		if before[i].Role != after[i].Role || before[i].Content != after[i].Content {
			t.Fatalf("entry %d changed after append", i)
		}
	}
	if extended.Len() != 3 {
		t.Fatalf("expected extended history of 3, got %d", extended.Len())
	}
}

func TestHistoryTwoBranchesStayIndependent(t *testing.T) {
	base := NewHistory("system").AppendUser("topic")

	a := base.AppendAssistant("reply A")
	b := base.AppendAssistant("reply B")

	if a.Messages()[2].Content != "reply A" || b.Messages()[2].Content != "reply B" {
		t.Fatal("branches of the same history interfered with each other")
	}
}

func TestHistoryMessagesReturnsCopy(t *testing.T) {
	h := NewHistory("system")
	msgs := h.Messages()
	msgs[0].Content = "tampered"

	if h.Messages()[0].Content != "system" {
		t.Fatal("Messages must return a copy, not the backing slice")
	}
}
