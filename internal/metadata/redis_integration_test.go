//go:build integration

package metadata

import (
	"context"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"

	"tmpshare/internal/lifecycle"
)

func TestRedisStoreContract(t *testing.T) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("could not connect to docker: %v", err)
	}

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		t.Fatalf("could not start redis: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(res) })

	addr := "localhost:" + res.GetPort("6379/tcp")
	ctx := context.Background()

	var store *RedisStore
	if err := pool.Retry(func() error {
		s, err := NewRedisStore(ctx, RedisConfig{Addr: addr, Prefix: "contract"})
		if err != nil {
			return err
		}
		store = s
		return nil
	}); err != nil {
		t.Fatalf("redis not ready: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	runStoreContract(t, func(t *testing.T) lifecycle.MetadataStore {
		if err := client.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flushdb: %v", err)
		}
		return store
	})
}
