package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"quiz-content-service/internal/domain"
)

// QuizLoader fetches live trees from the content store.
type QuizLoader interface {
	LoadLiveTree(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache caches live trees with TTL to avoid repeated store hits on the take path.
type QuizCache struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuiz
	// generations is bumped by Invalidate; a load started under an older
	// generation is returned to its callers but not cached.
	generations map[string]uint64
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizCache(loader QuizLoader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		loader:      loader,
		ttl:         ttl,
		clock:       time.Now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:       make(map[string]cachedQuiz),
		generations: make(map[string]uint64),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := c.lookup(quizID); ok {
			return quiz, nil
		}

		c.mu.RLock()
		generation := c.generations[quizID]
		c.mu.RUnlock()

		quiz, err := c.loader.LoadLiveTree(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		c.mu.Lock()
		if c.generations[quizID] == generation {
			c.cache[quizID] = cachedQuiz{
				quiz:      quiz.Clone(),
				expiresAt: c.clock().Add(c.ttlWithJitter()),
			}
		}
		c.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz).Clone(), nil
}

// Invalidate drops the cached tree so the next read reloads it.
func (c *QuizCache) Invalidate(_ context.Context, quizID string) error {
	c.mu.Lock()
	delete(c.cache, quizID)
	c.generations[quizID]++
	c.mu.Unlock()
	c.sf.Forget(quizID)
	return nil
}

func (c *QuizCache) lookup(quizID string) (domain.Quiz, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
		return entry.quiz.Clone(), true
	}
	return domain.Quiz{}, false
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	return jitter(c.ttl, c.rnd, &c.rndMu)
}

// jitter adds up to 10% to ttl to spread expirations.
func jitter(ttl time.Duration, rnd *rand.Rand, mu *sync.Mutex) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitterMax := int64(ttl) / 10
	mu.Lock()
	defer mu.Unlock()
	return ttl + time.Duration(rnd.Int63n(jitterMax+1))
}
