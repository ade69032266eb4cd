package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

const endedChannel = "livequiz:sessions:ended"

// Presence mirrors room liveness into Redis so external dashboards can list
// active codes, and publishes the final leaderboard when a host ends a
// session. Every call is best-effort: rooms are authoritative in-process and
// a Redis hiccup must never block or corrupt the event path.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewPresence(client *redis.Client, ttl time.Duration, log zerolog.Logger) *Presence {
	return &Presence{client: client, ttl: ttl, log: log}
}

func (p *Presence) RoomOpened(ctx context.Context, code string) {
	if err := p.client.Set(ctx, p.key(code), "1", p.ttl).Err(); err != nil {
		p.log.Warn().Err(err).Str("room", code).Msg("presence marker not set")
	}
}

func (p *Presence) RoomClosed(ctx context.Context, code string) {
	if err := p.client.Del(ctx, p.key(code)).Err(); err != nil {
		p.log.Warn().Err(err).Str("room", code).Msg("presence marker not cleared")
	}
}

func (p *Presence) SessionEnded(ctx context.Context, code string, final domain.Leaderboard) {
	payload, err := json.Marshal(domain.SessionEnded{Code: code, Leaderboard: final})
	if err != nil {
		p.log.Warn().Err(err).Str("room", code).Msg("session-ended payload not marshalled")
		return
	}
	if err := p.client.Publish(ctx, endedChannel, payload).Err(); err != nil {
		p.log.Warn().Err(err).Str("room", code).Msg("session-ended notification not published")
	}
}

func (p *Presence) key(code string) string {
	return "livequiz:room:" + code
}
