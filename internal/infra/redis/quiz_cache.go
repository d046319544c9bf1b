package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"quiz-content-service/internal/domain"
)

// generationTTL outlives any in-flight load; an expired generation reads as
// "0" and only ever makes a stale write-back fail.
const generationTTL = 24 * time.Hour

// setIfGeneration writes the tree only when KEYS[2] still holds ARGV[1].
// ARGV[3] is the TTL in milliseconds, 0 for none.
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// QuizLoader fetches live trees from the content store.
type QuizLoader interface {
	LoadLiveTree(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache keeps live trees in Redis for the take path and falls back to a loader on miss.
// Trees are stored as JSON: SET quiz:{quizID}:tree {json} EX ttl
// Status and audit columns are not serialized; cached trees are for display only.
// Invalidate bumps quiz:{quizID}:gen, and a load only writes back when the
// generation it started under is still current.
type QuizCache struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuizCache(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.lookup(ctx, quizID); ok {
			return quiz, nil
		}

		generation, genOK := c.generation(ctx, quizID)
		quiz, err := c.loader.LoadLiveTree(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		if !genOK {
			return quiz, nil
		}
		if raw, err := json.Marshal(quiz); err == nil {
			keys := []string{c.key(quizID), c.genKey(quizID)}
			_ = setIfGeneration.Run(ctx, c.client, keys, generation, raw, c.ttlWithJitter().Milliseconds()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate deletes the cached tree and fences off loads already in flight.
func (c *QuizCache) Invalidate(ctx context.Context, quizID string) error {
	c.sf.Forget(quizID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey(quizID))
		pipe.Expire(ctx, c.genKey(quizID), generationTTL)
		pipe.Del(ctx, c.key(quizID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (c *QuizCache) generation(ctx context.Context, quizID string) (string, bool) {
	gen, err := c.client.Get(ctx, c.genKey(quizID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	if err != nil {
		return "", false
	}
	return gen, true
}

func (c *QuizCache) lookup(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (c *QuizCache) key(quizID string) string {
	return "quiz:" + quizID + ":tree"
}

func (c *QuizCache) genKey(quizID string) string {
	return "quiz:" + quizID + ":gen"
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
