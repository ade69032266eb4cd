package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

// Room is one live run of a quiz. It aggregates the participant registry, the
// question phase machine and the leaderboard, and is the unit of mutual
// exclusion: a single mutex serializes every operation against the room while
// different rooms proceed independently. All observable mutations are fanned
// out to subscribers in the order the room accepted them.
type Room struct {
	code          string
	quiz          domain.Quiz
	hostID        string
	policy        Policy
	clock         Clock
	fallbackLimit time.Duration
	log           zerolog.Logger

	mu            sync.Mutex
	phase         domain.Phase
	questionIndex int
	deadline      time.Time
	timer         Timer
	reg           *registry
	submissions   map[string]domain.Submission // userID -> answer for the current question
	subscribers   map[chan domain.Event]struct{}
	closed        bool
	emptySince    time.Time // zero while at least one participant is connected
}

func newRoom(code string, quiz domain.Quiz, hostID string, policy Policy, clock Clock, fallbackLimit time.Duration, log zerolog.Logger) *Room {
	return &Room{
		code:          code,
		quiz:          quiz,
		hostID:        hostID,
		policy:        policy,
		clock:         clock,
		fallbackLimit: fallbackLimit,
		log:           log.With().Str("room", code).Logger(),
		phase:         domain.PhaseWaiting,
		questionIndex: -1,
		reg:           newRegistry(),
		submissions:   make(map[string]domain.Submission),
		subscribers:   make(map[chan domain.Event]struct{}),
		emptySince:    clock.Now(),
	}
}

// Code returns the room's join code.
func (r *Room) Code() string { return r.code }

// HostID returns the user ID that created the session.
func (r *Room) HostID() string { return r.hostID }

// Join registers a participant or reattaches a reconnecting one. Scores are
// keyed by user ID, so a new connection for a known user keeps its score.
func (r *Room) Join(userID, connID, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrRoomNotFound
	}

	_, reconnected := r.reg.join(userID, connID, displayName, r.clock.Now())
	r.emptySince = time.Time{}
	r.log.Debug().Str("user", userID).Bool("reconnect", reconnected).Msg("participant joined")
	r.emitMembershipLocked()
	return nil
}

// Disconnect detaches a connection without removing the participant, keeping
// the score available for a later reconnect.
func (r *Room) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	p, ok := r.reg.markDisconnected(connID)
	if !ok {
		return
	}
	r.log.Debug().Str("user", p.userID).Msg("participant disconnected")
	r.noteIfEmptyLocked()
	r.emitMembershipLocked()
	// Remaining connected participants may now all have answered.
	if r.phase == domain.PhaseActive && r.allActiveAnsweredLocked() {
		r.lockAndRevealLocked()
	}
}

// Leave permanently removes a participant.
func (r *Room) Leave(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if !r.reg.remove(userID) {
		return
	}
	delete(r.submissions, userID)
	r.noteIfEmptyLocked()
	r.emitMembershipLocked()
	if r.phase == domain.PhaseActive && r.allActiveAnsweredLocked() {
		r.lockAndRevealLocked()
	}
}

// Submit records an answer for the current question. At most one submission
// per participant and question is accepted; later ones are rejected, never
// overwritten. Accepting the last outstanding answer locks the question early.
func (r *Room) Submit(userID string, questionIndex int, answer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrRoomNotFound
	}
	p, ok := r.reg.get(userID)
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if r.phase != domain.PhaseActive || questionIndex != r.questionIndex {
		return domain.ErrLateSubmission
	}
	now := r.clock.Now()
	if !r.deadline.IsZero() && now.After(r.deadline) {
		return domain.ErrLateSubmission
	}
	if _, dup := r.submissions[userID]; dup {
		return domain.ErrDuplicateSubmission
	}

	r.submissions[userID] = domain.Submission{
		UserID:        userID,
		QuestionIndex: questionIndex,
		Answer:        answer,
		SubmittedAt:   now,
	}
	r.emitLocked(domain.Event{Type: domain.EventSubmissionAccepted, Payload: domain.SubmissionAccepted{
		UserID:        p.userID,
		QuestionIndex: questionIndex,
	}})

	if r.allActiveAnsweredLocked() {
		r.lockAndRevealLocked()
	}
	return nil
}

// Advance is the host-driven transition: waiting -> first question, or
// revealed -> next question / finished. Any other phase is an ordering error.
func (r *Room) Advance(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrRoomNotFound
	}
	if userID != r.hostID {
		return domain.ErrUnauthorized
	}

	switch r.phase {
	case domain.PhaseWaiting:
		if len(r.quiz.Questions) == 0 {
			r.finishLocked()
			return nil
		}
		r.startQuestionLocked(0)
	case domain.PhaseRevealed:
		next := r.questionIndex + 1
		if next >= len(r.quiz.Questions) {
			r.finishLocked()
			return nil
		}
		r.startQuestionLocked(next)
	default:
		r.log.Warn().Str("phase", string(r.phase)).Str("user", userID).Msg("advance called in illegal phase")
		return domain.ErrInvalidTransition
	}
	return nil
}

// end closes the session on behalf of the host and returns the final
// leaderboard. The manager removes the room afterwards.
func (r *Room) end(userID string) (domain.Leaderboard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.Leaderboard{}, domain.ErrRoomNotFound
	}
	if userID != r.hostID {
		return domain.Leaderboard{}, domain.ErrUnauthorized
	}
	final := r.leaderboardLocked()
	r.emitLocked(domain.Event{Type: domain.EventSessionEnded, Payload: domain.SessionEnded{
		Code:        r.code,
		Leaderboard: final,
	}})
	r.closeLocked()
	return final, nil
}

// shutdown tears the room down without a host action (idle sweep).
func (r *Room) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

// emptyLongerThan reports whether no participant has been connected for at
// least the grace period.
func (r *Room) emptyLongerThan(grace time.Duration, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.emptySince.IsZero() && now.Sub(r.emptySince) >= grace
}

// Subscribe registers a new event channel and primes it with a state snapshot.
// The caller must invoke the returned cancel function to avoid leaks.
func (r *Room) Subscribe() (<-chan domain.Event, func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, domain.ErrRoomNotFound
	}
	// The snapshot goes out under the lock so no later event can precede it.
	ch := make(chan domain.Event, 16)
	r.subscribers[ch] = struct{}{}
	ch <- domain.Event{Type: domain.EventRoomState, Payload: r.stateLocked()}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel, nil
}

// State returns a consistent snapshot of the room's observable state.
func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// onDeadline fires when the answering window elapses. A stale timer, one that
// outlived its question or the room itself, must be a silent no-op.
func (r *Room) onDeadline(questionIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.phase != domain.PhaseActive || r.questionIndex != questionIndex {
		return
	}
	r.log.Debug().Int("question", questionIndex).Msg("deadline reached")
	r.lockAndRevealLocked()
}

func (r *Room) startQuestionLocked(index int) {
	r.stopTimerLocked()
	q := r.quiz.Questions[index]
	limit := q.TimeLimit(r.fallbackLimit)

	r.phase = domain.PhaseActive
	r.questionIndex = index
	r.submissions = make(map[string]domain.Submission)
	r.deadline = r.clock.Now().Add(limit)
	r.timer = r.clock.AfterFunc(limit, func() { r.onDeadline(index) })

	view := q.View()
	deadline := r.deadline
	r.emitLocked(domain.Event{Type: domain.EventPhaseChanged, Payload: domain.PhaseChanged{
		Phase:         domain.PhaseActive,
		QuestionIndex: index,
		Question:      &view,
		Deadline:      &deadline,
	}})
}

// lockAndRevealLocked closes the question and immediately scores it. The
// locked phase is broadcast before the reveal so every subscriber observes
// the same total order of transitions.
func (r *Room) lockAndRevealLocked() {
	r.stopTimerLocked()
	r.deadline = time.Time{}

	r.phase = domain.PhaseLocked
	r.emitLocked(domain.Event{Type: domain.EventPhaseChanged, Payload: domain.PhaseChanged{
		Phase:         domain.PhaseLocked,
		QuestionIndex: r.questionIndex,
	}})

	q := r.quiz.Questions[r.questionIndex]
	now := r.clock.Now()
	results := make([]domain.AnswerResult, 0, r.reg.size())
	for _, p := range r.reg.order {
		sub, answered := r.submissions[p.userID]
		awarded := 0
		correct := false
		if answered {
			awarded = r.policy(q, sub.Answer)
			correct = Matches(q, sub.Answer)
			if awarded > 0 {
				p.score += awarded
				p.scoredAt = now
			}
		}
		results = append(results, domain.AnswerResult{
			UserID:     p.userID,
			Answer:     sub.Answer,
			Answered:   answered,
			Correct:    correct,
			Awarded:    awarded,
			TotalScore: p.score,
		})
	}

	r.phase = domain.PhaseRevealed
	r.emitLocked(domain.Event{Type: domain.EventPhaseChanged, Payload: domain.PhaseChanged{
		Phase:         domain.PhaseRevealed,
		QuestionIndex: r.questionIndex,
	}})
	r.emitLocked(domain.Event{Type: domain.EventResultsRevealed, Payload: domain.ResultsRevealed{
		QuestionIndex:  r.questionIndex,
		CorrectAnswers: q.Answers,
		Explanation:    q.Explanation,
		Results:        results,
		Leaderboard:    r.leaderboardLocked(),
	}})
}

func (r *Room) finishLocked() {
	r.stopTimerLocked()
	r.deadline = time.Time{}
	r.phase = domain.PhaseFinished
	r.emitLocked(domain.Event{Type: domain.EventPhaseChanged, Payload: domain.PhaseChanged{
		Phase:         domain.PhaseFinished,
		QuestionIndex: r.questionIndex,
	}})
}

func (r *Room) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	r.stopTimerLocked()
	for ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = make(map[chan domain.Event]struct{})
}

func (r *Room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) noteIfEmptyLocked() {
	if r.reg.connected() == 0 && r.emptySince.IsZero() {
		r.emptySince = r.clock.Now()
	}
}

// allActiveAnsweredLocked reports whether every connected participant has a
// recorded submission for the current question. An empty room never locks
// early; only the deadline closes it.
func (r *Room) allActiveAnsweredLocked() bool {
	active := r.reg.active()
	if len(active) == 0 {
		return false
	}
	for _, p := range active {
		if _, ok := r.submissions[p.userID]; !ok {
			return false
		}
	}
	return true
}

func (r *Room) emitMembershipLocked() {
	r.emitLocked(domain.Event{Type: domain.EventMembershipChanged, Payload: domain.MembershipChanged{
		Participants: r.reg.views(),
		Leaderboard:  r.leaderboardLocked().Entries,
	}})
}

func (r *Room) emitLocked(ev domain.Event) {
	for ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest pending event rather than
			// blocking the room's serialized path.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (r *Room) stateLocked() domain.RoomState {
	state := domain.RoomState{
		Code:          r.code,
		QuizTitle:     r.quiz.Title,
		Phase:         r.phase,
		QuestionIndex: r.questionIndex,
		QuestionCount: len(r.quiz.Questions),
		Participants:  r.reg.views(),
		Leaderboard:   r.leaderboardLocked(),
	}
	if r.phase == domain.PhaseActive {
		view := r.quiz.Questions[r.questionIndex].View()
		deadline := r.deadline
		state.Question = &view
		state.Deadline = &deadline
	}
	return state
}

// leaderboardLocked ranks participants by score descending, ties broken by
// who reached the score first, then by join order. The ordering is a strict
// function of room state, so re-rendering without intervening events is
// always identical.
func (r *Room) leaderboardLocked() domain.Leaderboard {
	ranked := make([]*participant, len(r.reg.order))
	copy(ranked, r.reg.order)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.scoredAt.Equal(b.scoredAt) {
			return a.scoredAt.Before(b.scoredAt)
		}
		return a.joinSeq < b.joinSeq
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      p.userID,
			DisplayName: p.displayName,
			Score:       p.score,
			Rank:        i + 1,
		})
	}
	return domain.Leaderboard{
		Code:      r.code,
		Entries:   entries,
		UpdatedAt: r.clock.Now(),
	}
}
