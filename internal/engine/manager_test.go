package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"livequiz-service/internal/domain"
)

type staticQuizzes map[string]domain.Quiz

func (s staticQuizzes) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := s[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

type recordingPresence struct {
	mu     sync.Mutex
	opened []string
	closed []string
	ended  []string
}

func (p *recordingPresence) RoomOpened(_ context.Context, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened = append(p.opened, code)
}

func (p *recordingPresence) RoomClosed(_ context.Context, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, code)
}

func (p *recordingPresence) SessionEnded(_ context.Context, code string, _ domain.Leaderboard) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, code)
}

func newTestManager(t *testing.T) (*Manager, *fakeClock, *recordingPresence) {
	t.Helper()
	clock := newFakeClock()
	presence := &recordingPresence{}
	mgr := NewManager(staticQuizzes{"quiz-1": testQuiz()}, presence, zerolog.Nop(), Options{
		GracePeriod: 2 * time.Minute,
		Clock:       clock,
	})
	return mgr, clock, presence
}

func TestCreateRoomRejectsActiveCode(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	code, err := mgr.CreateRoom(ctx, "ABC123", "quiz-1", "host")
	require.NoError(t, err)
	require.Equal(t, "ABC123", code)

	_, err = mgr.CreateRoom(ctx, "abc123", "quiz-1", "other-host")
	require.ErrorIs(t, err, domain.ErrRoomExists)
}

func TestCreateRoomUnknownQuiz(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := mgr.CreateRoom(context.Background(), "", "quiz-nope", "host")
	require.ErrorIs(t, err, domain.ErrQuizNotFound)
}

func TestDispatchRoutesCaseInsensitively(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.CreateRoom(ctx, "ABC123", "quiz-1", "host")
	require.NoError(t, err)

	require.NoError(t, mgr.Join("abc123", "alice", "conn-a", "Alice"))
	require.NoError(t, mgr.Advance(" Abc123 ", "host"))
	require.NoError(t, mgr.SubmitAnswer("ABC123", "alice", 0, "var x = 5;"))
}

func TestDispatchUnknownRoom(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	require.ErrorIs(t, mgr.Join("NOPE", "alice", "conn-a", "Alice"), domain.ErrRoomNotFound)
	require.ErrorIs(t, mgr.SubmitAnswer("NOPE", "alice", 0, "x"), domain.ErrRoomNotFound)
	require.ErrorIs(t, mgr.Advance("NOPE", "host"), domain.ErrRoomNotFound)
	_, _, err := mgr.Subscribe("NOPE")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestEndIsHostOnlyAndTearsDown(t *testing.T) {
	mgr, _, presence := newTestManager(t)
	ctx := context.Background()

	code, err := mgr.CreateRoom(ctx, "", "quiz-1", "host")
	require.NoError(t, err)
	require.NoError(t, mgr.Join(code, "alice", "conn-a", "Alice"))

	require.ErrorIs(t, mgr.End(ctx, code, "alice"), domain.ErrUnauthorized)
	require.NoError(t, mgr.End(ctx, code, "host"))

	// Every later dispatch for the code fails with room-not-found.
	require.ErrorIs(t, mgr.Join(code, "bob", "conn-b", "Bob"), domain.ErrRoomNotFound)
	require.Contains(t, presence.ended, code)
	require.Contains(t, presence.closed, code)
}

func TestSweepRemovesIdleRoomsAfterGrace(t *testing.T) {
	mgr, clock, presence := newTestManager(t)
	ctx := context.Background()

	idle, err := mgr.CreateRoom(ctx, "IDLE42", "quiz-1", "host")
	require.NoError(t, err)

	busy, err := mgr.CreateRoom(ctx, "BUSY42", "quiz-1", "host")
	require.NoError(t, err)
	require.NoError(t, mgr.Join(busy, "alice", "conn-a", "Alice"))

	// Inside the grace window nothing is torn down.
	clock.advance(time.Minute)
	require.Zero(t, mgr.Sweep())

	clock.advance(2 * time.Minute)
	require.Equal(t, 1, mgr.Sweep())

	require.ErrorIs(t, mgr.Join(idle, "bob", "conn-b", "Bob"), domain.ErrRoomNotFound)
	require.NoError(t, mgr.SubmitAnswerProbe(busy))
	require.Contains(t, presence.closed, idle)
}

// SubmitAnswerProbe verifies a room still routes without mutating it.
func (m *Manager) SubmitAnswerProbe(code string) error {
	_, err := m.lookup(code)
	return err
}

func TestSweepWaitsOutReconnectWindow(t *testing.T) {
	mgr, clock, _ := newTestManager(t)
	ctx := context.Background()

	code, err := mgr.CreateRoom(ctx, "RECON1", "quiz-1", "host")
	require.NoError(t, err)
	require.NoError(t, mgr.Join(code, "alice", "conn-1", "Alice"))

	// Alice drops briefly; the room empties but comes back before the grace
	// period elapses.
	mgr.Disconnect(code, "conn-1")
	clock.advance(time.Minute)
	require.Zero(t, mgr.Sweep())

	require.NoError(t, mgr.Join(code, "alice", "conn-2", "Alice"))
	clock.advance(10 * time.Minute)
	require.Zero(t, mgr.Sweep())
}

func TestGeneratedCodesAreNormalizedAndRoutable(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	code, err := mgr.CreateRoom(context.Background(), "", "quiz-1", "host")
	require.NoError(t, err)
	require.Len(t, code, 6)
	require.Equal(t, NormalizeCode(code), code)
	require.NoError(t, mgr.Join(code, "alice", "conn-a", "Alice"))
}
