package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"flashquiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// BankLoader fetches a question bank from a backing store (e.g. Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context, topic string) (domain.QuestionBank, error)
}

// BankRepository caches whole banks in Redis as JSON under bank:{topic} and
// falls back to the loader on a miss. Correctness flags stay server-side: the
// cache is only ever read by the host process.
type BankRepository struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewBankRepository(client *redis.Client, loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (r *BankRepository) GetBank(ctx context.Context, topic string) (domain.QuestionBank, error) {
	key := r.key(topic)

	if raw, err := r.client.Get(ctx, key).Result(); err == nil {
		var bank domain.QuestionBank
		if err := json.Unmarshal([]byte(raw), &bank); err == nil {
			return bank, nil
		}
		// Corrupt entry: fall through and rebuild it from the loader.
	}

	result, err, _ := r.sf.Do(topic, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, key).Result(); err == nil {
			var bank domain.QuestionBank
			if err := json.Unmarshal([]byte(raw), &bank); err == nil {
				return bank, nil
			}
		}

		bank, err := r.loader.LoadBank(ctx, topic)
		if err != nil {
			return domain.QuestionBank{}, err
		}

		if raw, err := json.Marshal(bank); err == nil {
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

func (r *BankRepository) key(topic string) string {
	return "bank:" + topic
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// the global source is locked, so concurrent loads of different topics
	// are safe
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
