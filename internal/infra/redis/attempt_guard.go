package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-content-service/internal/domain"
)

// releaseIfOwner deletes KEYS[1] only while it still holds ARGV[1].
var releaseIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// AttemptGuard marks in-flight gradings with a Redis key so that every service
// instance sees them. The TTL bounds how long a crashed grader can hold a pair.
// SET quiz:attempt:{quizID}:{userID} {token} NX EX ttl
type AttemptGuard struct {
	client   *redis.Client
	ttl      time.Duration
	newToken func() string
}

func NewAttemptGuard(client *redis.Client, ttl time.Duration) *AttemptGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &AttemptGuard{client: client, ttl: ttl, newToken: domain.NewID}
}

func (g *AttemptGuard) Acquire(ctx context.Context, quizID, userID string) (string, bool, error) {
	token := g.newToken()
	ok, err := g.client.SetNX(ctx, g.key(quizID, userID), token, g.ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Release leaves the key alone when it expired and another grader took it.
func (g *AttemptGuard) Release(ctx context.Context, quizID, userID, token string) {
	// best-effort; the TTL cleans up if this fails
	_ = releaseIfOwner.Run(context.WithoutCancel(ctx), g.client, []string{g.key(quizID, userID)}, token).Err()
}

func (g *AttemptGuard) key(quizID, userID string) string {
	return "quiz:attempt:" + quizID + ":" + userID
}
