package zadavalnik

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// QuizMaster drives one call-and-parse round trip against the chat
// completion backend. It holds only static configuration, carries no
// per-session state, and is safe to share across concurrent sessions.
type QuizMaster struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewQuizMaster creates a client for the given backend. baseURL may be empty
// to use the default OpenAI endpoint, or point at any OpenAI-compatible
// proxy. The backend is a trust boundary, so every call runs under the
// given timeout and a timed-out call surfaces as a transport failure.
func NewQuizMaster(apiKey, baseURL, model string, maxTokens int, timeout time.Duration) *QuizMaster {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &QuizMaster{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
	}
}

// StartSession opens a new quiz conversation for a text topic and returns
// the first question
func (qm *QuizMaster) StartSession(ctx context.Context, topic string, logger *TranscriptLogger) (*TurnRecord, History, error) {
	history := NewHistory(qm.buildSystemPrompt(topicIntro(topic)))
	return qm.roundTrip(ctx, history, history, logger)
}

// StartFromImage opens a new quiz conversation seeded with an image. The
// model infers the topic from the image itself; format is the image format
// without the leading "image/", e.g. "jpeg".
func (qm *QuizMaster) StartFromImage(ctx context.Context, image []byte, format string, logger *TranscriptLogger) (*TurnRecord, History, error) {
	dataURL := fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(image))
	history := NewHistory(qm.buildSystemPrompt(imageIntro)).AppendUserParts([]openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: "Here is the material for the test. Please determine the topic from this image and begin.",
		},
		{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
		},
	})
	return qm.roundTrip(ctx, history, history, logger)
}

// StartFromDocument opens a new quiz conversation seeded with the text of a
// user-supplied document
func (qm *QuizMaster) StartFromDocument(ctx context.Context, text string, logger *TranscriptLogger) (*TurnRecord, History, error) {
	history := NewHistory(qm.buildSystemPrompt(documentIntro)).
		AppendUser("Here is the material for the test:\n\n" + text)
	return qm.roundTrip(ctx, history, history, logger)
}

// ContinueSession appends the user's answer to the history and returns the
// model's next turn
func (qm *QuizMaster) ContinueSession(ctx context.Context, history History, userText string, logger *TranscriptLogger) (*TurnRecord, History, error) {
	return qm.roundTrip(ctx, history, history.AppendUser(userText), logger)
}

// roundTrip sends outbound to the backend. On transport failure the caller
// gets base back untouched, without even the attempted user turn, so a
// failed call can never corrupt session state. Once the backend replied,
// the raw assistant text is appended to the returned history even when
// unparsable, so the next turn stays consistent with what the model said.
func (qm *QuizMaster) roundTrip(ctx context.Context, base, outbound History, logger *TranscriptLogger) (*TurnRecord, History, error) {
	if logger != nil {
		logger.LogRequest(lastContent(outbound))
	}

	resp, err := qm.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     qm.model,
		Messages:  outbound.Messages(),
		MaxTokens: qm.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, base, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, base, errors.New("no choices in chat completion response")
	}

	choice := resp.Choices[0]
	raw := choice.Message.Content
	updated := outbound.AppendAssistant(raw)

	if logger != nil {
		logger.LogResponse(raw, string(choice.FinishReason))
	}

	if choice.FinishReason == openai.FinishReasonLength {
		return TruncatedTurnRecord(), updated, nil
	}

	record, err := ParseTurnRecord(raw)
	if err != nil {
		return nil, updated, err
	}
	return record, updated, nil
}

const imageIntro = "The user will send an image. Determine the test topic from the image content yourself and mention it in your first message."

const documentIntro = "The user will send the text of a document. Build the test from that material and mention the inferred topic in your first message."

func topicIntro(topic string) string {
	return fmt.Sprintf("The topic of the test is: %s.", topic)
}

func (qm *QuizMaster) buildSystemPrompt(intro string) string {
	var sb strings.Builder

	sb.WriteString("You are a tutor running a short knowledge test, one question at a time. ")
	sb.WriteString(intro)
	sb.WriteString("\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Decide how many questions the test needs (between 3 and 10) and keep that total fixed for the whole test\n")
	sb.WriteString("- Ask exactly one question per turn\n")
	sb.WriteString("- After each answer, say whether it was right, give a short explanation, then ask the next question in the same message\n")
	sb.WriteString("- After the last answer, produce a final summary with the overall result instead of a new question\n\n")
	sb.WriteString("Reply with a single JSON object and nothing else, using exactly these fields:\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"message_to_user\": string, the full text to show the user,\n")
	sb.WriteString("  \"current_question_number\": integer, the question being asked (or the last one answered in the final summary),\n")
	sb.WriteString("  \"total_questions_in_test\": integer, fixed for the whole test,\n")
	sb.WriteString("  \"is_final_summary\": boolean, true only on the final summary turn\n")
	sb.WriteString("}\n")

	return sb.String()
}

func lastContent(history History) string {
	msgs := history.Messages()
	if len(msgs) == 0 {
		return ""
	}
	last := msgs[len(msgs)-1]
	if last.Content != "" {
		return last.Content
	}
	for _, part := range last.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText {
			return part.Text + " [plus attached content]"
		}
	}
	return "[attached content]"
}
