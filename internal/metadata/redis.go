package metadata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tmpshare/internal/lifecycle"
)

// RedisStore keeps each record in a hash and indexes armed records in a
// sorted set scored by expire_at. Insert and Arm run as Lua scripts so the
// existence check and the write are one atomic step on the server.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds connection settings for NewRedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces all keys; defaults to "tmpshare".
	Prefix string
}

var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'stored_name', ARGV[1], 'original_name', ARGV[2], 'download_name', ARGV[3], 'created_at', ARGV[4])
if ARGV[5] ~= '' then
	redis.call('HSET', KEYS[1], 'first_download_at', ARGV[5], 'expire_at', ARGV[6])
	redis.call('ZADD', KEYS[2], ARGV[6], ARGV[7])
end
return 1
`)

var armScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
if redis.call('HEXISTS', KEYS[1], 'first_download_at') == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'first_download_at', ARGV[1], 'expire_at', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tmpshare"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) fileKey(fileID string) string { return s.prefix + ":file:" + fileID }
func (s *RedisStore) expiryKey() string             { return s.prefix + ":expiry" }

// Insert adds a record unless the id exists.
func (s *RedisStore) Insert(ctx context.Context, rec lifecycle.FileRecord) error {
	first, expire := "", ""
	if rec.FirstDownloadAt != nil && rec.ExpireAt != nil {
		first = strconv.FormatInt(rec.FirstDownloadAt.Unix(), 10)
		expire = strconv.FormatInt(rec.ExpireAt.Unix(), 10)
	}
	n, err := insertScript.Run(ctx, s.client,
		[]string{s.fileKey(rec.FileID), s.expiryKey()},
		rec.StoredName,
		rec.OriginalName,
		rec.DownloadName,
		rec.CreatedAt.Unix(),
		first,
		expire,
		rec.FileID,
	).Int()
	if err != nil {
		return fmt.Errorf("redis insert: %w", err)
	}
	if n == 0 {
		return lifecycle.ErrAlreadyExists
	}
	return nil
}

// Get loads one record.
func (s *RedisStore) Get(ctx context.Context, fileID string) (lifecycle.FileRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.fileKey(fileID)).Result()
	if err != nil {
		return lifecycle.FileRecord{}, fmt.Errorf("redis get: %w", err)
	}
	if len(fields) == 0 {
		return lifecycle.FileRecord{}, lifecycle.ErrNotFound
	}
	return decodeHash(fileID, fields)
}

// Arm runs the compare-and-set script.
func (s *RedisStore) Arm(ctx context.Context, fileID string, firstDownloadAt, expireAt time.Time) (bool, error) {
	n, err := armScript.Run(ctx, s.client,
		[]string{s.fileKey(fileID), s.expiryKey()},
		firstDownloadAt.Unix(),
		expireAt.Unix(),
		fileID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis arm: %w", err)
	}
	return n == 1, nil
}

// Delete removes the hash and its expiry index entry together.
func (s *RedisStore) Delete(ctx context.Context, fileID string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.fileKey(fileID))
		pipe.ZRem(ctx, s.expiryKey(), fileID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis delete: %w", err)
	}
	return del.Val() == 1, nil
}

// ListExpired reads the expiry index up to now. Index entries whose hash
// has disappeared are dropped.
func (s *RedisStore) ListExpired(ctx context.Context, now time.Time) ([]lifecycle.FileRecord, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list expired: %w", err)
	}

	out := make([]lifecycle.FileRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, lifecycle.ErrNotFound) {
			_ = s.client.ZRem(ctx, s.expiryKey(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ping checks server connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeHash(fileID string, fields map[string]string) (lifecycle.FileRecord, error) {
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return lifecycle.FileRecord{}, fmt.Errorf("redis record %s: bad created_at: %w", fileID, err)
	}
	rec := lifecycle.FileRecord{
		FileID:       fileID,
		StoredName:   fields["stored_name"],
		OriginalName: fields["original_name"],
		DownloadName: fields["download_name"],
		CreatedAt:    unixTime(createdAt),
	}
	if rec.FirstDownloadAt, err = optionalUnix(fields, "first_download_at"); err != nil {
		return lifecycle.FileRecord{}, fmt.Errorf("redis record %s: %w", fileID, err)
	}
	if rec.ExpireAt, err = optionalUnix(fields, "expire_at"); err != nil {
		return lifecycle.FileRecord{}, fmt.Errorf("redis record %s: %w", fileID, err)
	}
	return rec, nil
}

func optionalUnix(fields map[string]string, name string) (*time.Time, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return nil, nil
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad %s: %w", name, err)
	}
	t := unixTime(sec)
	return &t, nil
}
