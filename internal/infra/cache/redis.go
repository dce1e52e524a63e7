package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

const (
	scoreKeyPrefix = "mood:score:"
	trendKeyPrefix = "mood:trend:"
)

// RedisScoreStore реализует domain.ScoreStore и domain.TrendCache через Redis.
type RedisScoreStore struct {
	client *redis.Client
}

var _ domain.ScoreStore = (*RedisScoreStore)(nil)
var _ domain.TrendCache = (*RedisScoreStore)(nil)

// NewRedisScoreStore создаёт хранилище оценок.
func NewRedisScoreStore(client *redis.Client) *RedisScoreStore {
	return &RedisScoreStore{client: client}
}

func scoreKey(userID int64) string {
	return scoreKeyPrefix + strconv.FormatInt(userID, 10)
}

func trendKey(userID int64) string {
	return trendKeyPrefix + strconv.FormatInt(userID, 10)
}

// Get возвращает текущую оценку настроения.
func (s *RedisScoreStore) Get(ctx context.Context, userID int64) (int, error) {
	start := time.Now()
	value, err := s.client.Get(ctx, scoreKey(userID)).Int()
	metrics.ObserveNetworkRequest("redis", "score_get", "score", start, err)
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrScoreNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("чтение оценки: %w", err)
	}
	return value, nil
}

// Set задаёт оценку. Диапазон значения хранилище не проверяет.
func (s *RedisScoreStore) Set(ctx context.Context, userID int64, value int) error {
	start := time.Now()
	err := s.client.Set(ctx, scoreKey(userID), value, 0).Err()
	metrics.ObserveNetworkRequest("redis", "score_set", "score", start, err)
	return err
}

// Increment сдвигает оценку на delta и возвращает новое значение.
func (s *RedisScoreStore) Increment(ctx context.Context, userID int64, delta int) (int, error) {
	start := time.Now()
	value, err := s.client.IncrBy(ctx, scoreKey(userID), int64(delta)).Result()
	metrics.ObserveNetworkRequest("redis", "score_incr", "score", start, err)
	if err != nil {
		return 0, fmt.Errorf("сдвиг оценки: %w", err)
	}
	return int(value), nil
}

// Delete удаляет оценку пользователя.
func (s *RedisScoreStore) Delete(ctx context.Context, userID int64) error {
	start := time.Now()
	err := s.client.Del(ctx, scoreKey(userID)).Err()
	metrics.ObserveNetworkRequest("redis", "score_del", "score", start, err)
	return err
}

// Exists сообщает, заведена ли оценка для пользователя.
func (s *RedisScoreStore) Exists(ctx context.Context, userID int64) (bool, error) {
	start := time.Now()
	n, err := s.client.Exists(ctx, scoreKey(userID)).Result()
	metrics.ObserveNetworkRequest("redis", "score_exists", "score", start, err)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAll удаляет все оценки. Вызывается ночным сбросом.
func (s *RedisScoreStore) DeleteAll(ctx context.Context) error {
	start := time.Now()
	iter := s.client.Scan(ctx, 0, scoreKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		metrics.ObserveNetworkRequest("redis", "score_reset", "score", start, err)
		return fmt.Errorf("перебор оценок: %w", err)
	}
	var err error
	if len(keys) > 0 {
		err = s.client.Del(ctx, keys...).Err()
	}
	metrics.ObserveNetworkRequest("redis", "score_reset", "score", start, err)
	return err
}

// SetTrend перезаписывает недельный тренд пользователя.
func (s *RedisScoreStore) SetTrend(ctx context.Context, userID int64, trend domain.WeeklyTrend) error {
	payload, err := json.Marshal(trend)
	if err != nil {
		return fmt.Errorf("сериализация тренда: %w", err)
	}
	start := time.Now()
	err = s.client.Set(ctx, trendKey(userID), payload, 0).Err()
	metrics.ObserveNetworkRequest("redis", "trend_set", "trend", start, err)
	return err
}

// GetTrend возвращает последний рассчитанный тренд.
func (s *RedisScoreStore) GetTrend(ctx context.Context, userID int64) (domain.WeeklyTrend, error) {
	start := time.Now()
	raw, err := s.client.Get(ctx, trendKey(userID)).Bytes()
	metrics.ObserveNetworkRequest("redis", "trend_get", "trend", start, err)
	if err != nil {
		return domain.WeeklyTrend{}, err
	}
	var trend domain.WeeklyTrend
	if err := json.Unmarshal(raw, &trend); err != nil {
		return domain.WeeklyTrend{}, fmt.Errorf("разбор тренда: %w", err)
	}
	return trend, nil
}
