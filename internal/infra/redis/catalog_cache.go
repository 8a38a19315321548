package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"kidlearn-progress-service/internal/domain"
)

// CatalogLoader fetches catalog content from the backing store.
type CatalogLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	LoadQuest(ctx context.Context, questID string) (domain.Quest, error)
	LoadAchievements(ctx context.Context) ([]domain.Achievement, error)
}

// CatalogCache is a read-through Redis cache over the catalog loader. Entries
// are stored as JSON with a jittered TTL; concurrent misses for the same key
// collapse through singleflight. Cache failures fall back to the loader.
type CatalogCache struct {
	client *redis.Client
	loader CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCatalogCache(client *redis.Client, loader CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := "catalog:quiz:" + quizID

	var quiz domain.Quiz
	if c.readJSON(ctx, key, &quiz) {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		var cached domain.Quiz
		if c.readJSON(ctx, key, &cached) {
			return cached, nil
		}
		quiz, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		c.writeJSON(ctx, key, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *CatalogCache) GetQuest(ctx context.Context, questID string) (domain.Quest, error) {
	key := "catalog:quest:" + questID

	var quest domain.Quest
	if c.readJSON(ctx, key, &quest) {
		return quest, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		var cached domain.Quest
		if c.readJSON(ctx, key, &cached) {
			return cached, nil
		}
		quest, err := c.loader.LoadQuest(ctx, questID)
		if err != nil {
			return domain.Quest{}, err
		}
		c.writeJSON(ctx, key, quest)
		return quest, nil
	})
	if err != nil {
		return domain.Quest{}, err
	}
	return result.(domain.Quest), nil
}

func (c *CatalogCache) ListActive(ctx context.Context) ([]domain.Achievement, error) {
	defs, err := c.achievementList(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Achievement
	for _, a := range defs {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListByTypeUpTo ignores the active flag on purpose; see app.AchievementCatalog.
func (c *CatalogCache) ListByTypeUpTo(ctx context.Context, typ domain.AchievementType, limit int) ([]domain.Achievement, error) {
	defs, err := c.achievementList(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Achievement
	for _, a := range defs {
		if a.Type == typ && a.Threshold <= limit {
			out = append(out, a)
		}
	}
	return out, nil
}

// achievementList caches the full definition list under one key; both views
// filter it in process so the active-flag divergence stays in one place.
func (c *CatalogCache) achievementList(ctx context.Context) ([]domain.Achievement, error) {
	const key = "catalog:achievements"

	var defs []domain.Achievement
	if c.readJSON(ctx, key, &defs) {
		return defs, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		var cached []domain.Achievement
		if c.readJSON(ctx, key, &cached) {
			return cached, nil
		}
		defs, err := c.loader.LoadAchievements(ctx)
		if err != nil {
			return nil, err
		}
		c.writeJSON(ctx, key, defs)
		return defs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Achievement), nil
}

func (c *CatalogCache) readJSON(ctx context.Context, key string, dest any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// writeJSON is best-effort; a failed cache write only costs a reload later.
func (c *CatalogCache) writeJSON(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
