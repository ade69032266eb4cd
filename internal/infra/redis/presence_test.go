package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

func TestPresenceSetsAndClearsMarkers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	presence := NewPresence(client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	presence.RoomOpened(ctx, "ABC123")
	if !mr.Exists("livequiz:room:ABC123") {
		t.Fatalf("expected liveness marker")
	}

	presence.RoomClosed(ctx, "ABC123")
	if mr.Exists("livequiz:room:ABC123") {
		t.Fatalf("expected liveness marker removed")
	}
}

func TestPresencePublishesSessionEnded(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	presence := NewPresence(client, time.Minute, zerolog.Nop())

	sub := client.Subscribe(context.Background(), "livequiz:sessions:ended")
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	presence.SessionEnded(context.Background(), "ABC123", domain.Leaderboard{
		Code: "ABC123",
		Entries: []domain.LeaderboardEntry{
			{UserID: "alice", DisplayName: "Alice", Score: 10, Rank: 1},
		},
	})

	select {
	case msg := <-sub.Channel():
		if msg.Payload == "" {
			t.Fatalf("expected payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected session-ended notification")
	}
}
