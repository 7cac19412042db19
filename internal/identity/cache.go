package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrCacheMiss はキャッシュにキーが存在しない場合のエラー。
var ErrCacheMiss = errors.New("cache miss")

// Cache はユーザー情報のキャッシュストア。
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache はRedisをバックエンドとするCache。
type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache はREDIS_URL形式のURLからRedisCacheを生成し、疎通を確認する。
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis URLの解析に失敗: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisへの接続に失敗: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get はキーの値を返す。存在しなければErrCacheMissを返す。
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// Set はキーに値を有効期限付きで保存する。
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Close は接続を閉じる。
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// cacheKeyPrefix はユーザー情報のキャッシュキーの接頭辞。
const cacheKeyPrefix = "relay:identity:user:"

// CachedResolver は解決結果をキャッシュするResolver。
// キャッシュの読み書きに失敗しても内側のResolverで解決を続ける。
type CachedResolver struct {
	inner  Resolver
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

var _ Resolver = (*CachedResolver)(nil)

// NewCachedResolver はCachedResolverを生成する。
func NewCachedResolver(inner Resolver, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedResolver {
	return &CachedResolver{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

// ResolveUser はキャッシュを参照し、なければ内側のResolverで解決して保存する。
// 存在しないユーザーはキャッシュしない。
func (r *CachedResolver) ResolveUser(ctx context.Context, id string) (User, error) {
	key := cacheKeyPrefix + id

	cached, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		var user User
		if jsonErr := json.Unmarshal([]byte(cached), &user); jsonErr == nil {
			return user, nil
		}
		r.logger.Warn().Str("user_id", id).Msg("キャッシュ上のユーザー情報が壊れています")
	case !errors.Is(err, ErrCacheMiss):
		r.logger.Warn().Err(err).Str("user_id", id).Msg("ユーザー情報キャッシュの読み込みに失敗しました")
	}

	user, err := r.inner.ResolveUser(ctx, id)
	if err != nil {
		return User{}, err
	}

	b, err := json.Marshal(user)
	if err != nil {
		return user, nil
	}
	if err := r.cache.Set(ctx, key, string(b), r.ttl); err != nil {
		r.logger.Warn().Err(err).Str("user_id", id).Msg("ユーザー情報キャッシュの書き込みに失敗しました")
	}
	return user, nil
}
