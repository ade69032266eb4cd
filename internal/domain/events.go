package domain

import "time"

// Event types fanned out to every subscriber of a room. The order a subscriber
// observes them is the order the room accepted the causing operations.
const (
	EventRoomState          = "roomState"
	EventMembershipChanged  = "membershipChanged"
	EventPhaseChanged       = "phaseChanged"
	EventSubmissionAccepted = "submissionAccepted"
	EventResultsRevealed    = "resultsRevealed"
	EventSessionEnded       = "sessionEnded"
)

// Event is a single outbound broadcast message for a room.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// RoomState is the initial snapshot sent to a fresh subscriber so reconnecting
// clients can resync without replaying history.
type RoomState struct {
	Code          string            `json:"code"`
	QuizTitle     string            `json:"quizTitle"`
	Phase         Phase             `json:"phase"`
	QuestionIndex int               `json:"questionIndex"`
	QuestionCount int               `json:"questionCount"`
	Question      *QuestionView     `json:"question,omitempty"`
	Deadline      *time.Time        `json:"deadline,omitempty"`
	Participants  []ParticipantView `json:"participants"`
	Leaderboard   Leaderboard       `json:"leaderboard"`
}

// MembershipChanged carries the full roster after a join, leave or disconnect.
type MembershipChanged struct {
	Participants []ParticipantView  `json:"participants"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
}

// PhaseChanged announces a phase transition. Question and Deadline are set
// only on transitions into the active phase.
type PhaseChanged struct {
	Phase         Phase         `json:"phase"`
	QuestionIndex int           `json:"questionIndex"`
	Question      *QuestionView `json:"question,omitempty"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
}

// SubmissionAccepted acknowledges a recorded answer without revealing
// correctness before the reveal phase.
type SubmissionAccepted struct {
	UserID        string `json:"userId"`
	QuestionIndex int    `json:"questionIndex"`
}

// ResultsRevealed exposes the canonical answers and per-participant outcomes
// once the question is scored.
type ResultsRevealed struct {
	QuestionIndex  int            `json:"questionIndex"`
	CorrectAnswers []string       `json:"correctAnswers"`
	Explanation    string         `json:"explanation,omitempty"`
	Results        []AnswerResult `json:"results"`
	Leaderboard    Leaderboard    `json:"leaderboard"`
}

// SessionEnded is the final event a room emits before its subscribers close.
type SessionEnded struct {
	Code        string      `json:"code"`
	Leaderboard Leaderboard `json:"leaderboard"`
}
