package zadavalnik

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseTurnRecordRoundTrip(t *testing.T) {
	original := &TurnRecord{
		MessageToUser:   "Question 1: what do plants absorb from the air?",
		CurrentQuestion: 1,
		TotalQuestions:  3,
		IsFinalSummary:  false,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	parsed, err := ParseTurnRecord(string(data))
	if err != nil {
		t.Fatalf("ParseTurnRecord failed: %v", err)
	}
	if *parsed != *original {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, original)
	}
}

func TestParseTurnRecordIntegerBoolean(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want bool
	}{
		{`{"message_to_user":"done","current_question_number":3,"total_questions_in_test":3,"is_final_summary":1}`, true},
		{`{"message_to_user":"next","current_question_number":2,"total_questions_in_test":3,"is_final_summary":0}`, false},
		{`{"message_to_user":"done","current_question_number":3,"total_questions_in_test":3,"is_final_summary":true}`, true},
		{`{"message_to_user":"next","current_question_number":2,"total_questions_in_test":3,"is_final_summary":false}`, false},
	} {
		record, err := ParseTurnRecord(tc.raw)
		if err != nil {
			t.Fatalf("ParseTurnRecord(%s) failed: %v", tc.raw, err)
		}
		if bool(record.IsFinalSummary) != tc.want {
			t.Fatalf("is_final_summary: got %v, want %v for %s", record.IsFinalSummary, tc.want, tc.raw)
		}
	}
}

func TestParseTurnRecordSurroundingProse(t *testing.T) {
	bare := `{"message_to_user":"Q1: name the pigment.","current_question_number":1,"total_questions_in_test":3,"is_final_summary":false}`
	wrapped := "Sure! Here is the JSON you asked for:\n```json\n" + bare + "\n```\nLet me know if you need anything else."

	fromBare, err := ParseTurnRecord(bare)
	if err != nil {
		t.Fatalf("parse of bare JSON failed: %v", err)
	}
	fromWrapped, err := ParseTurnRecord(wrapped)
	if err != nil {
		t.Fatalf("parse of prose-wrapped JSON failed: %v", err)
	}
	if *fromBare != *fromWrapped {
		t.Fatalf("prose extraction mismatch: %+v vs %+v", fromBare, fromWrapped)
	}
}

func TestParseTurnRecordMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"   \n\t ",
		"not json at all",
		`{"message_to_user":"hi"`,
		`{"message_to_user":"hi","current_question_number":"one","total_questions_in_test":3,"is_final_summary":false}`,
	} {
		record, err := ParseTurnRecord(raw)
		if err == nil {
			t.Fatalf("expected error for %q, got record %+v", raw, record)
		}
		var mErr *MalformedResponseError
		if !errors.As(err, &mErr) {
			t.Fatalf("expected MalformedResponseError for %q, got %T", raw, err)
		}
		if mErr.Raw != raw {
			t.Fatalf("error should carry the raw text, got %q", mErr.Raw)
		}
	}
}

func TestParseTurnRecordMissingFields(t *testing.T) {
	for _, raw := range []string{
		`{"current_question_number":1,"total_questions_in_test":3,"is_final_summary":false}`,
		`{"message_to_user":"hi","total_questions_in_test":3,"is_final_summary":false}`,
		`{"message_to_user":"hi","current_question_number":1,"is_final_summary":false}`,
		`{"message_to_user":"hi","current_question_number":1,"total_questions_in_test":3}`,
	} {
		if _, err := ParseTurnRecord(raw); err == nil {
			t.Fatalf("expected missing-field error for %s", raw)
		}
	}
}

func TestParseTurnRecordRejectsNonPositiveNumbers(t *testing.T) {
	for _, raw := range []string{
		`{"message_to_user":"hi","current_question_number":0,"total_questions_in_test":3,"is_final_summary":false}`,
		`{"message_to_user":"hi","current_question_number":1,"total_questions_in_test":0,"is_final_summary":false}`,
	} {
		if _, err := ParseTurnRecord(raw); err == nil {
			t.Fatalf("expected validation error for %s", raw)
		}
	}
}

func TestParseTurnRecordDecodeDiagnostics(t *testing.T) {
	raw := `{"message_to_user":"hi","current_question_number":zzz}`
	_, err := ParseTurnRecord(raw)
	if err == nil {
		t.Fatal("expected error")
	}
	var mErr *MalformedResponseError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MalformedResponseError, got %T", err)
	}
	if mErr.Offset == 0 || mErr.Context == "" {
		t.Fatalf("expected decode position diagnostics, got offset=%d context=%q", mErr.Offset, mErr.Context)
	}
}

func TestTruncatedTurnRecord(t *testing.T) {
	record := TruncatedTurnRecord()
	if !record.IsFinalSummary {
		t.Fatal("truncated record must force a final summary")
	}
	if record.CurrentQuestion != 1 || record.TotalQuestions != 1 {
		t.Fatalf("truncated record must report question 1/1, got %d/%d", record.CurrentQuestion, record.TotalQuestions)
	}
	if record.MessageToUser == "" {
		t.Fatal("truncated record must carry a user-facing apology")
	}
}

func TestFlexBoolMarshalsAsPlainBoolean(t *testing.T) {
	data, err := json.Marshal(FlexBool(true))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != "true" {
		t.Fatalf("expected true, got %s", data)
	}
}
