package zadavalnik

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FlexBool is a boolean that also accepts the 0/1 integer encoding some
// backends use for boolean-like fields. Callers only ever see a bool.
type FlexBool bool

// UnmarshalJSON accepts true/false as well as 0/1
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*b = true
	case "false", "0":
		*b = false
	default:
		return fmt.Errorf("cannot decode %s as boolean", strings.TrimSpace(string(data)))
	}
	return nil
}

// MarshalJSON always emits a plain JSON boolean
func (b FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

// MalformedResponseError reports model output that could not be converted
// into a TurnRecord. It carries the raw text and, where the decoder provided
// one, the byte offset and surrounding characters of the failure.
type MalformedResponseError struct {
	Raw     string
	Offset  int64
	Context string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("malformed model response at offset %d (near %q): %v", e.Offset, e.Context, e.Err)
	}
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// ParseTurnRecord converts raw model output into a validated TurnRecord.
// The whole trimmed text is decoded first; if that fails, the substring
// between the first '{' and the last '}' is tried, which rescues replies
// wrapped in prose or markdown fences. No retries and no side effects.
func ParseTurnRecord(raw string) (*TurnRecord, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &MalformedResponseError{Raw: raw, Err: errors.New("empty response")}
	}

	record, err := decodeTurnRecord(trimmed)
	if err == nil {
		return record, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if record, rescueErr := decodeTurnRecord(trimmed[start : end+1]); rescueErr == nil {
			return record, nil
		}
	}

	return nil, malformedError(raw, err)
}

// TruncatedTurnRecord is the synthetic terminal record substituted when the
// backend reports the generation was cut off by the length limit. Forcing a
// final summary ends the session cleanly instead of letting it hang.
func TruncatedTurnRecord() *TurnRecord {
	return &TurnRecord{
		MessageToUser:   "Sorry, my reply was cut off before I could finish. Let's wrap up this test here - send /newtest to start a fresh one.",
		CurrentQuestion: 1,
		TotalQuestions:  1,
		IsFinalSummary:  true,
	}
}

func decodeTurnRecord(s string) (*TurnRecord, error) {
	var probe struct {
		MessageToUser   *string   `json:"message_to_user"`
		CurrentQuestion *int      `json:"current_question_number"`
		TotalQuestions  *int      `json:"total_questions_in_test"`
		IsFinalSummary  *FlexBool `json:"is_final_summary"`
	}

	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil, err
	}

	switch {
	case probe.MessageToUser == nil:
		return nil, errors.New("missing field message_to_user")
	case probe.CurrentQuestion == nil:
		return nil, errors.New("missing field current_question_number")
	case probe.TotalQuestions == nil:
		return nil, errors.New("missing field total_questions_in_test")
	case probe.IsFinalSummary == nil:
		return nil, errors.New("missing field is_final_summary")
	}

	if *probe.CurrentQuestion < 1 {
		return nil, fmt.Errorf("current_question_number must be >= 1, got %d", *probe.CurrentQuestion)
	}
	if *probe.TotalQuestions < 1 {
		return nil, fmt.Errorf("total_questions_in_test must be >= 1, got %d", *probe.TotalQuestions)
	}

	return &TurnRecord{
		MessageToUser:   *probe.MessageToUser,
		CurrentQuestion: *probe.CurrentQuestion,
		TotalQuestions:  *probe.TotalQuestions,
		IsFinalSummary:  *probe.IsFinalSummary,
	}, nil
}

// malformedError wraps a decode error, pulling out the offset and the
// characters around it when the json package reported one
func malformedError(raw string, err error) *MalformedResponseError {
	mErr := &MalformedResponseError{Raw: raw, Err: err}

	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) {
		offset = syntaxErr.Offset
	} else if errors.As(err, &typeErr) {
		offset = typeErr.Offset
	}

	if offset > 0 && offset <= int64(len(raw)) {
		lo := offset - 20
		if lo < 0 {
			lo = 0
		}
		hi := offset + 20
		if hi > int64(len(raw)) {
			hi = int64(len(raw))
		}
		mErr.Offset = offset
		mErr.Context = raw[lo:hi]
	}

	return mErr
}
