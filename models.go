package zadavalnik

import "time"

// SessionState represents where a user is in the quiz flow
type SessionState string

const (
	StateStart         SessionState = "start"
	StateAwaitingTopic SessionState = "awaiting_topic"
	StateInTest        SessionState = "in_test"
	StateTestCompleted SessionState = "test_completed"
)

// Modality identifies what kind of input seeded the current quiz
type Modality string

const (
	ModalityTopic    Modality = "topic"
	ModalityImage    Modality = "image"
	ModalityDocument Modality = "document"
)

// Session holds the in-memory conversational state for one user.
// At most one Session is active per user; it is reset whenever the user
// re-enters topic intake and dropped entirely on completion.
type Session struct {
	UserID          int64        `json:"user_id"`
	State           SessionState `json:"state"`
	Topic           string       `json:"topic"`
	Modality        Modality     `json:"modality"`
	History         History      `json:"-"`
	CurrentQuestion int          `json:"current_question"`
	TotalQuestions  int          `json:"total_questions"`
	AttemptID       int64        `json:"attempt_id"`
}

// AttemptStatus represents the lifecycle of a persisted test attempt
type AttemptStatus string

const (
	AttemptStarted     AttemptStatus = "STARTED"
	AttemptCompleted   AttemptStatus = "COMPLETED"
	AttemptAborted     AttemptStatus = "ABORTED"
	AttemptRateLimited AttemptStatus = "RATE_LIMITED"
)

// Attempt is one persisted record of a user's quiz, independent of the
// in-memory session that produced it
type Attempt struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	Topic     string        `json:"topic"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Status    AttemptStatus `json:"status"`
}

// User is a Telegram identity as persisted in the audit store
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
	IsBot        bool   `json:"is_bot"`
}

// TurnRecord is the four-field contract extracted from model output on
// every turn of the conversation
type TurnRecord struct {
	MessageToUser   string   `json:"message_to_user"`
	CurrentQuestion int      `json:"current_question_number"`
	TotalQuestions  int      `json:"total_questions_in_test"`
	IsFinalSummary  FlexBool `json:"is_final_summary"`
}
