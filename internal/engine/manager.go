package engine

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

// QuizRepository loads quiz content from the authoring store (read path only).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Presence is the optional liveness collaborator (e.g. Redis markers). Calls
// are best-effort and must not block the event path.
type Presence interface {
	RoomOpened(ctx context.Context, code string)
	RoomClosed(ctx context.Context, code string)
	SessionEnded(ctx context.Context, code string, final domain.Leaderboard)
}

// NopPresence is used when no liveness backend is configured.
type NopPresence struct{}

func (NopPresence) RoomOpened(context.Context, string)                       {}
func (NopPresence) RoomClosed(context.Context, string)                       {}
func (NopPresence) SessionEnded(context.Context, string, domain.Leaderboard) {}

// Options tune manager behavior; zero values fall back to sane defaults.
type Options struct {
	// GracePeriod is how long a room may sit with zero connected
	// participants before a sweep removes it. Long enough to ride out a
	// brief reconnect window.
	GracePeriod time.Duration
	// DefaultTimeLimit applies when a question carries no time limit.
	DefaultTimeLimit time.Duration
	// Policy overrides the scoring policy; defaults to ExactMatch.
	Policy Policy
	// Clock overrides the wall clock, for tests.
	Clock Clock
}

// Manager owns the set of live rooms and routes inbound operations to the
// matching room by code. Codes are case-insensitive. The manager never
// reaches into a room's state directly; all mutation goes through the room's
// own serialized entry points, so operations on different rooms run in
// parallel.
type Manager struct {
	quizzes  QuizRepository
	presence Presence
	clock    Clock
	policy   Policy
	grace    time.Duration
	limit    time.Duration
	log      zerolog.Logger
	rnd      *rand.Rand

	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewManager(quizzes QuizRepository, presence Presence, log zerolog.Logger, opts Options) *Manager {
	if presence == nil {
		presence = NopPresence{}
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 2 * time.Minute
	}
	if opts.DefaultTimeLimit <= 0 {
		opts.DefaultTimeLimit = 30 * time.Second
	}
	if opts.Policy == nil {
		opts.Policy = ExactMatch
	}
	if opts.Clock == nil {
		opts.Clock = NewClock()
	}
	return &Manager{
		quizzes:  quizzes,
		presence: presence,
		clock:    opts.Clock,
		policy:   opts.Policy,
		grace:    opts.GracePeriod,
		limit:    opts.DefaultTimeLimit,
		log:      log,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		rooms:    make(map[string]*Room),
	}
}

// CreateRoom loads the quiz and opens a room for it. An empty code asks the
// manager to generate one. Exactly one room exists per active code.
func (m *Manager) CreateRoom(ctx context.Context, code, quizID, hostID string) (string, error) {
	quiz, err := m.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if code == "" {
		code = m.generateCodeLocked()
	} else {
		code = NormalizeCode(code)
		if _, taken := m.rooms[code]; taken {
			return "", domain.ErrRoomExists
		}
	}

	room := newRoom(code, quiz, hostID, m.policy, m.clock, m.limit, m.log)
	m.rooms[code] = room
	m.presence.RoomOpened(ctx, code)
	m.log.Info().Str("room", code).Str("quiz", quizID).Str("host", hostID).Msg("room created")
	return code, nil
}

// Join routes a join event to the room.
func (m *Manager) Join(code, userID, connID, displayName string) error {
	room, err := m.lookup(code)
	if err != nil {
		return err
	}
	return room.Join(userID, connID, displayName)
}

// SubmitAnswer routes an answer submission to the room.
func (m *Manager) SubmitAnswer(code, userID string, questionIndex int, answer string) error {
	room, err := m.lookup(code)
	if err != nil {
		return err
	}
	return room.Submit(userID, questionIndex, answer)
}

// Advance routes the host's advance action to the room.
func (m *Manager) Advance(code, userID string) error {
	room, err := m.lookup(code)
	if err != nil {
		return err
	}
	return room.Advance(userID)
}

// Disconnect routes a dropped connection to the room. Unknown codes are
// ignored: the room may already have been swept.
func (m *Manager) Disconnect(code, connID string) {
	room, err := m.lookup(code)
	if err != nil {
		return
	}
	room.Disconnect(connID)
}

// Leave routes an explicit leave to the room.
func (m *Manager) Leave(code, userID string) {
	room, err := m.lookup(code)
	if err != nil {
		return
	}
	room.Leave(userID)
}

// Subscribe attaches an event channel to the room.
func (m *Manager) Subscribe(code string) (<-chan domain.Event, func(), error) {
	room, err := m.lookup(code)
	if err != nil {
		return nil, nil, err
	}
	return room.Subscribe()
}

// State returns a snapshot of the room's observable state.
func (m *Manager) State(code string) (domain.RoomState, error) {
	room, err := m.lookup(code)
	if err != nil {
		return domain.RoomState{}, err
	}
	return room.State(), nil
}

// End closes a session on the host's request. The deadline timer is cancelled
// and every later dispatch for the code gets ErrRoomNotFound. The final
// leaderboard is pushed to the presence collaborator fire-and-forget.
func (m *Manager) End(ctx context.Context, code, userID string) error {
	room, err := m.lookup(code)
	if err != nil {
		return err
	}
	final, err := room.end(userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.rooms, room.Code())
	m.mu.Unlock()

	m.presence.RoomClosed(ctx, room.Code())
	m.presence.SessionEnded(ctx, room.Code(), final)
	m.log.Info().Str("room", room.Code()).Msg("session ended by host")
	return nil
}

// Sweep removes rooms that sat empty beyond the grace period. Called on a
// ticker rather than per event so a brief reconnect window doesn't tear a
// room down.
func (m *Manager) Sweep() int {
	now := m.clock.Now()

	m.mu.RLock()
	candidates := make([]*Room, 0)
	for _, room := range m.rooms {
		if room.emptyLongerThan(m.grace, now) {
			candidates = append(candidates, room)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, room := range candidates {
		m.mu.Lock()
		current, ok := m.rooms[room.Code()]
		if !ok || current != room || !room.emptyLongerThan(m.grace, m.clock.Now()) {
			m.mu.Unlock()
			continue
		}
		delete(m.rooms, room.Code())
		m.mu.Unlock()

		room.shutdown()
		m.presence.RoomClosed(context.Background(), room.Code())
		m.log.Info().Str("room", room.Code()).Msg("idle room swept")
		removed++
	}
	return removed
}

// RunSweeper blocks, sweeping at the given interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) lookup(code string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[NormalizeCode(code)]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// codeAlphabet omits characters players confuse when reading a code aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (m *Manager) generateCodeLocked() string {
	for {
		buf := make([]byte, 6)
		for i := range buf {
			buf[i] = codeAlphabet[m.rnd.Intn(len(codeAlphabet))]
		}
		code := string(buf)
		if _, taken := m.rooms[code]; !taken {
			return code
		}
	}
}

// NormalizeCode maps user-entered codes to their canonical form; codes are
// case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
