package domain

import "time"

// Phase is the lifecycle state of a live session.
type Phase string

const (
	PhaseWaiting        Phase = "waiting"
	PhaseQuestionActive Phase = "question_active"
	PhaseQuestionClosed Phase = "question_closed"
	PhaseCompleted      Phase = "completed"
)

// QuestionType determines the expected response shape and scoring rule.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionMultipleSelect QuestionType = "multiple_select"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionPoll           QuestionType = "poll"
	QuestionOpenEnded      QuestionType = "open_ended"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
	Color   string `json:"color,omitempty"`
}

// Question is quiz content consumed by the session engine, not owned by it.
type Question struct {
	ID        string       `json:"id"`
	Prompt    string       `json:"prompt"`
	Type      QuestionType `json:"type"`
	Options   []Option     `json:"options"`
	Points    int          `json:"points"`       // base points, defaults to 100 if zero
	TimeLimit int          `json:"timeLimitSec"` // seconds; 0 means no deadline
}

// Quiz is the ordered question set a session runs through.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// Response is a participant's raw answer to the active question.
// Exactly one of OptionIDs or FreeText is populated depending on question type.
type Response struct {
	OptionIDs []string `json:"optionIds,omitempty"`
	FreeText  string   `json:"freeText,omitempty"`
}

// AnswerSubmission records one accepted answer. SubmittedAt is the offset from
// the question's start, so re-scoring from the stored record is reproducible.
type AnswerSubmission struct {
	SessionID     string        `json:"sessionId"`
	ParticipantID string        `json:"participantId"`
	QuestionID    string        `json:"questionId"`
	Response      Response      `json:"response"`
	SubmittedAt   time.Duration `json:"submittedAt"`
	Correct       bool          `json:"correct"`
	Awarded       int           `json:"awarded"`
}

// AnswerResult summarizes the outcome of a submission for the submitting client.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
}

// LeaderboardEntry is one ranked row of a session's standings.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Score         int    `json:"score"`
}

// Leaderboard captures the ordered standings for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	Final     bool               `json:"final"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Tally holds live per-option response counts for the active question.
type Tally struct {
	QuestionID string         `json:"questionId"`
	Counts     map[string]int `json:"counts"`
	Answered   int            `json:"answered"`
	Expected   int            `json:"expected"`
}

// EventKind classifies fan-out events.
type EventKind string

const (
	EventPhaseChanged      EventKind = "phase_changed"
	EventTallyUpdate       EventKind = "tally_update"
	EventLeaderboardUpdate EventKind = "leaderboard_update"
)

// Event is the fan-out payload pushed to session subscribers. Seq is a
// monotonically increasing per-session sequence number clients use to detect
// gaps and request replay.
type Event struct {
	SessionID string      `json:"sessionId"`
	Seq       uint64      `json:"seq"`
	Kind      EventKind   `json:"kind"`
	Payload   interface{} `json:"payload"`
}

// PhaseChange is the payload of EventPhaseChanged. Question carries the
// participant-facing view of the active question with correctness stripped.
type PhaseChange struct {
	Phase         Phase     `json:"phase"`
	QuestionIndex int       `json:"questionIndex"`
	Question      *Question `json:"question,omitempty"`
	DeadlineMs    int64     `json:"deadlineMs,omitempty"`
	ServerTime    int64     `json:"serverTime"`
}

// SessionInfo is the host-facing description of a created session. JoinCode
// and QRPayload are the only identifiers handed to end users.
type SessionInfo struct {
	SessionID string `json:"sessionId"`
	QuizID    string `json:"quizId"`
	JoinCode  string `json:"joinCode"`
	QRPayload string `json:"qrPayload"`
}

// Snapshot is the read contract for dashboards and reconnecting clients.
type Snapshot struct {
	SessionID     string      `json:"sessionId"`
	Phase         Phase       `json:"phase"`
	QuestionIndex int         `json:"questionIndex"`
	Participants  int         `json:"participants"`
	Leaderboard   Leaderboard `json:"leaderboard"`
	Tally         *Tally      `json:"tally,omitempty"`
	Seq           uint64      `json:"seq"`
}

// FinalResult is the archival record handed off when a session completes.
type FinalResult struct {
	SessionID   string             `json:"sessionId"`
	QuizID      string             `json:"quizId"`
	HostID      string             `json:"hostId"`
	StartedAt   *time.Time         `json:"startedAt"`
	EndedAt     time.Time          `json:"endedAt"`
	Standings   []LeaderboardEntry `json:"standings"`
	Submissions []AnswerSubmission `json:"submissions"`
}
