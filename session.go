package zadavalnik

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// MinTopicLength is the shortest topic text accepted
const MinTopicLength = 3

// User-facing messages. Diagnostic detail never leaks into these.
const (
	msgAskTopic      = "What topic would you like to be tested on? You can also send an image or a plain text document instead."
	msgTopicTooShort = "That topic is too short. Please send at least 3 characters."
	msgRetry         = "Something went wrong while talking to the quiz master. Please try again."
	msgQuotaReached  = "You have reached your daily test limit. Come back tomorrow!"
	msgCompleted     = "This test is finished. Send /newtest to start a new one."
	msgNoSession     = "Send /start or /newtest to begin a test."
	msgIntegrity     = "Something went wrong with your test session, so it was reset. Please send a new topic."
	msgInternal      = "An internal error occurred and your session was reset. Send /newtest to start over."
	msgAnswerInText  = "Please answer the current question with a text message."
)

// ModelClient is the model session collaborator as consumed by the state
// machine. *QuizMaster implements it.
type ModelClient interface {
	StartSession(ctx context.Context, topic string, logger *TranscriptLogger) (*TurnRecord, History, error)
	StartFromImage(ctx context.Context, image []byte, format string, logger *TranscriptLogger) (*TurnRecord, History, error)
	StartFromDocument(ctx context.Context, text string, logger *TranscriptLogger) (*TurnRecord, History, error)
	ContinueSession(ctx context.Context, history History, userText string, logger *TranscriptLogger) (*TurnRecord, History, error)
}

// AttemptStore is the persistence collaborator as consumed by the state
// machine. *DB implements it.
type AttemptStore interface {
	UpsertUser(user User) error
	StartAttempt(userID int64, topic string) (int64, error)
	CompleteAttempt(attemptID int64, status AttemptStatus, endTime *time.Time) error
	CountAttemptsSince(userID int64, since time.Time) (int, error)
	LogRateLimited(userID int64) error
}

// SessionManager owns the per-user session table and sequences topic intake,
// the question loop, and completion. All persistence side effects happen at
// state entry/exit boundaries.
type SessionManager struct {
	client           ModelClient
	store            AttemptStore
	maxTestsPerDay   int
	unrestrictedUser int64
	transcriptDir    string

	mu    sync.Mutex
	slots map[int64]*sessionSlot
}

// sessionSlot serializes all handling for one user. Successive actions from
// the same user must never overlap; the slot mutex is what enforces that.
type sessionSlot struct {
	mu      sync.Mutex
	session *Session
	logger  *TranscriptLogger
}

// NewSessionManager creates a session manager around its collaborators
func NewSessionManager(client ModelClient, store AttemptStore, cfg *Config) *SessionManager {
	return &SessionManager{
		client:           client,
		store:            store,
		maxTestsPerDay:   cfg.MaxTestsPerDay,
		unrestrictedUser: cfg.UnrestrictedUser,
		transcriptDir:    cfg.TranscriptDir,
		slots:            make(map[int64]*sessionSlot),
	}
}

// StartNewTest handles /start and /newtest: it reaps any still-open attempt,
// checks the daily quota, and moves the user into topic intake
func (m *SessionManager) StartNewTest(ctx context.Context, user User) string {
	if err := m.store.UpsertUser(user); err != nil {
		log.Printf("Failed to upsert user %d: %v", user.ID, err)
	}

	slot := m.slot(user.ID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	// A new test replaces any still-open attempt; mark it aborted so at
	// most one attempt per user is ever open
	if s := slot.session; s != nil && s.State == StateInTest && s.AttemptID != 0 {
		now := time.Now()
		if err := m.store.CompleteAttempt(s.AttemptID, AttemptAborted, &now); err != nil {
			log.Printf("Failed to abort attempt %d: %v", s.AttemptID, err)
		}
	}
	slot.closeLogger()

	if user.ID != m.unrestrictedUser {
		count, err := m.store.CountAttemptsSince(user.ID, localMidnight(time.Now()))
		if err != nil {
			log.Printf("Failed to count attempts for user %d: %v", user.ID, err)
			slot.session = nil
			return msgRetry
		}
		if count >= m.maxTestsPerDay {
			if err := m.store.LogRateLimited(user.ID); err != nil {
				log.Printf("Failed to log rate limited attempt for user %d: %v", user.ID, err)
			}
			slot.session = nil
			return msgQuotaReached
		}
	}

	slot.session = &Session{UserID: user.ID, State: StateAwaitingTopic}
	return msgAskTopic
}

// HandleText routes a free-text message through the state machine
func (m *SessionManager) HandleText(ctx context.Context, userID int64, text string) string {
	slot := m.slot(userID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	session := slot.session
	if session == nil {
		return msgNoSession
	}

	switch session.State {
	case StateStart:
		return msgNoSession

	case StateAwaitingTopic:
		topic := strings.TrimSpace(text)
		if utf8.RuneCountInString(topic) < MinTopicLength {
			return msgTopicTooShort
		}
		record, history, err := m.client.StartSession(ctx, topic, nil)
		if err != nil {
			log.Printf("Start session failed for user %d: %v", userID, err)
			return msgRetry
		}
		return m.beginTest(slot, topic, ModalityTopic, record, history)

	case StateInTest:
		return m.continueTest(ctx, slot, text)

	case StateTestCompleted:
		return msgCompleted

	default:
		log.Printf("User %d in unknown state %q, resetting session", userID, session.State)
		slot.session = &Session{UserID: userID, State: StateStart}
		slot.closeLogger()
		return msgInternal
	}
}

// HandleImage routes an image attachment through the state machine. Images
// only seed new tests; during a test, answers must be text.
func (m *SessionManager) HandleImage(ctx context.Context, userID int64, image []byte, format string) string {
	slot := m.slot(userID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	session := slot.session
	if session == nil || session.State == StateStart {
		return msgNoSession
	}

	switch session.State {
	case StateAwaitingTopic:
		record, history, err := m.client.StartFromImage(ctx, image, format, nil)
		if err != nil {
			log.Printf("Start from image failed for user %d: %v", userID, err)
			return msgRetry
		}
		return m.beginTest(slot, "[image]", ModalityImage, record, history)

	case StateInTest:
		return msgAnswerInText

	case StateTestCompleted:
		return msgCompleted

	default:
		log.Printf("User %d in unknown state %q, resetting session", userID, session.State)
		slot.session = &Session{UserID: userID, State: StateStart}
		slot.closeLogger()
		return msgInternal
	}
}

// HandleDocument routes a downloaded document attachment through the state
// machine. Content validation happens here, before any backend call.
func (m *SessionManager) HandleDocument(ctx context.Context, userID int64, data []byte, filename string) string {
	slot := m.slot(userID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	session := slot.session
	if session == nil || session.State == StateStart {
		return msgNoSession
	}

	switch session.State {
	case StateAwaitingTopic:
		text, err := DocumentText(data)
		if err != nil {
			var docErr *DocumentError
			if errors.As(err, &docErr) {
				return docErr.Reason
			}
			return msgRetry
		}
		record, history, err := m.client.StartFromDocument(ctx, text, nil)
		if err != nil {
			log.Printf("Start from document failed for user %d: %v", userID, err)
			return msgRetry
		}
		return m.beginTest(slot, fmt.Sprintf("[document: %s]", filename), ModalityDocument, record, history)

	case StateInTest:
		return msgAnswerInText

	case StateTestCompleted:
		return msgCompleted

	default:
		log.Printf("User %d in unknown state %q, resetting session", userID, session.State)
		slot.session = &Session{UserID: userID, State: StateStart}
		slot.closeLogger()
		return msgInternal
	}
}

// beginTest applies the first successful record: it persists the attempt
// start, opens the transcript, and enters the question loop. Called with the
// slot locked.
func (m *SessionManager) beginTest(slot *sessionSlot, topic string, modality Modality, record *TurnRecord, history History) string {
	session := slot.session

	attemptID, err := m.store.StartAttempt(session.UserID, topic)
	if err != nil {
		log.Printf("Failed to start attempt for user %d: %v", session.UserID, err)
		return msgRetry
	}

	logger, err := NewTranscriptLogger(m.transcriptDir, attemptID, topic, modality)
	if err != nil {
		log.Printf("Failed to create transcript for attempt %d: %v", attemptID, err)
		// Continue without transcript logging rather than failing
	} else {
		slot.logger = logger
		logFirstExchange(logger, history)
	}

	session.Topic = topic
	session.Modality = modality
	session.History = history
	session.AttemptID = attemptID
	session.TotalQuestions = record.TotalQuestions
	session.CurrentQuestion = record.CurrentQuestion
	session.State = StateInTest

	VerboseLog("User %d started attempt %d (%s, %d questions)", session.UserID, attemptID, modality, record.TotalQuestions)

	if record.IsFinalSummary {
		m.completeTest(slot)
	}
	return record.MessageToUser
}

// continueTest handles one answer inside the question loop. Called with the
// slot locked.
func (m *SessionManager) continueTest(ctx context.Context, slot *sessionSlot, answer string) string {
	session := slot.session

	// Session-integrity recovery: IN_TEST without an open attempt cannot
	// be trusted, force the user back to topic intake
	if session.AttemptID == 0 {
		log.Printf("User %d in test with no active attempt, resetting to topic intake", session.UserID)
		slot.session = &Session{UserID: session.UserID, State: StateAwaitingTopic}
		slot.closeLogger()
		return msgIntegrity
	}

	record, history, err := m.client.ContinueSession(ctx, session.History, answer, slot.logger)
	if err != nil {
		// Non-fatal: state, history and counters stay exactly as they
		// were before the failed call
		log.Printf("Continue session failed for user %d: %v", session.UserID, err)
		if slot.logger != nil {
			slot.logger.LogParseFailure(err)
		}
		return msgRetry
	}

	session.History = history
	m.applyRecord(session, record)
	VerboseLog("User %d on question %d/%d (final: %v)", session.UserID, session.CurrentQuestion, session.TotalQuestions, bool(record.IsFinalSummary))

	if record.IsFinalSummary {
		m.completeTest(slot)
	}
	return record.MessageToUser
}

// applyRecord folds a turn record into the session, enforcing that the
// question number never decreases and the total never changes after the
// first record. Violations are a data-quality condition, logged and ignored.
func (m *SessionManager) applyRecord(session *Session, record *TurnRecord) {
	if record.TotalQuestions != session.TotalQuestions {
		log.Printf("User %d: model changed total questions %d -> %d, keeping original",
			session.UserID, session.TotalQuestions, record.TotalQuestions)
	}
	if record.CurrentQuestion < session.CurrentQuestion {
		log.Printf("User %d: model moved question number backwards %d -> %d, keeping current",
			session.UserID, session.CurrentQuestion, record.CurrentQuestion)
		return
	}
	session.CurrentQuestion = record.CurrentQuestion
}

// completeTest persists attempt completion and parks the session in the
// completed state. Called with the slot locked.
func (m *SessionManager) completeTest(slot *sessionSlot) {
	session := slot.session
	now := time.Now()
	if err := m.store.CompleteAttempt(session.AttemptID, AttemptCompleted, &now); err != nil {
		log.Printf("Failed to complete attempt %d: %v", session.AttemptID, err)
	}
	slot.closeLogger()

	// Conversation state is dropped; only the completed-state marker stays
	// behind to absorb further messages with a /newtest hint
	slot.session = &Session{UserID: session.UserID, State: StateTestCompleted}
}

// slot returns the slot for a user, creating it on first contact
func (m *SessionManager) slot(userID int64) *sessionSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[userID]
	if !ok {
		s = &sessionSlot{}
		m.slots[userID] = s
	}
	return s
}

func (s *sessionSlot) closeLogger() {
	if s.logger != nil {
		s.logger.Close()
		s.logger = nil
	}
}

// logFirstExchange records the opening turn retroactively: the transcript
// only exists once the attempt row does, which is after the first reply
func logFirstExchange(logger *TranscriptLogger, history History) {
	msgs := history.Messages()
	for _, msg := range msgs {
		switch msg.Role {
		case "system":
			logger.LogRequest("[system] " + msg.Content)
		case "assistant":
			logger.LogResponse(msg.Content, "")
		}
	}
}

// localMidnight returns the start of the day containing t, in t's location
func localMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
