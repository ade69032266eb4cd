package domain

import "time"

// Phase is the lifecycle stage of the current question in a session room.
type Phase string

const (
	// PhaseWaiting means the room exists but the first question has not started.
	PhaseWaiting Phase = "waiting"
	// PhaseActive means a question is visible and answers are accepted.
	PhaseActive Phase = "active"
	// PhaseLocked means the question closed (deadline or everyone answered).
	PhaseLocked Phase = "locked"
	// PhaseRevealed means results and the canonical answer are broadcastable.
	PhaseRevealed Phase = "revealed"
	// PhaseFinished is terminal; the room lingers for leaderboard viewing only.
	PhaseFinished Phase = "finished"
)

// Quiz is an immutable collection of questions, supplied by the authoring store.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Question models a single timed question. Once a session starts the engine
// treats it as read-only.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options,omitempty"`
	Answers      []string `json:"answers"` // acceptable answers, matched literally
	Points       int      `json:"points"`
	TimeLimitSec int      `json:"timeLimitSec"`
	Hint         string   `json:"hint,omitempty"`
	Explanation  string   `json:"explanation,omitempty"`
}

// TimeLimit returns the answering window, falling back when authoring left it zero.
func (q Question) TimeLimit(fallback time.Duration) time.Duration {
	if q.TimeLimitSec <= 0 {
		return fallback
	}
	return time.Duration(q.TimeLimitSec) * time.Second
}

// QuestionView is the participant-facing shape of a question. It never carries
// the acceptable answers or the explanation.
type QuestionView struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options,omitempty"`
	Points       int      `json:"points"`
	TimeLimitSec int      `json:"timeLimitSec"`
	Hint         string   `json:"hint,omitempty"`
}

// View strips answer material from a question for broadcast.
func (q Question) View() QuestionView {
	return QuestionView{
		ID:           q.ID,
		Text:         q.Text,
		Options:      q.Options,
		Points:       q.Points,
		TimeLimitSec: q.TimeLimitSec,
		Hint:         q.Hint,
	}
}

// Submission is one recorded answer attempt for one question by one participant.
type Submission struct {
	UserID        string    `json:"userId"`
	QuestionIndex int       `json:"questionIndex"`
	Answer        string    `json:"answer"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// ParticipantView is a snapshot-friendly view of a room member.
type ParticipantView struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Connected   bool   `json:"connected"`
}

// LeaderboardEntry pairs a participant with their rank at snapshot time.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank"`
}

// Leaderboard captures the ordered scoreboard for a session room.
type Leaderboard struct {
	Code      string             `json:"code"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AnswerResult summarizes the outcome of one question for one participant.
type AnswerResult struct {
	UserID     string `json:"userId"`
	Answer     string `json:"answer,omitempty"`
	Answered   bool   `json:"answered"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
}
