//go:build integration

package redis

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisAddr string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		panic(err)
	}
	redisAddr = fmt.Sprintf("%s:%s", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newCache(t *testing.T) *RedisCache {
	t.Helper()
	rc := NewRedisCache(redis.NewClient(&redis.Options{Addr: redisAddr}), 2, 4)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	rc := newCache(t)
	require.NoError(t, rc.Ping(ctx))

	key := ConversationListKey("cn", "alice", "")
	require.NoError(t, rc.Set(ctx, key, "[]", time.Minute))
	got, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "[]", got)

	require.NoError(t, rc.Delete(ctx, key))
	got, err = rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got, "不存在的键返回空字符串")
}

func TestDeleteByPatternScopesToUserAndRegion(t *testing.T) {
	ctx := context.Background()
	rc := newCache(t)

	for _, ws := range []string{"", "W1", "W2"} {
		require.NoError(t, rc.Set(ctx, ConversationListKey("cn", "alice", ws), "x", time.Minute))
	}
	require.NoError(t, rc.Set(ctx, ConversationListKey("cn", "alice2", ""), "x", time.Minute))
	require.NoError(t, rc.Set(ctx, ConversationListKey("global", "alice", ""), "x", time.Minute))

	require.NoError(t, rc.DeleteByPattern(ctx, ConversationListPattern("cn", "alice")))

	for _, ws := range []string{"", "W1", "W2"} {
		got, err := rc.Get(ctx, ConversationListKey("cn", "alice", ws))
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	got, _ := rc.Get(ctx, ConversationListKey("cn", "alice2", ""))
	assert.Equal(t, "x", got, "用户 id 前缀相同不会被误删")
	got, _ = rc.Get(ctx, ConversationListKey("global", "alice", ""))
	assert.Equal(t, "x", got)
}

func TestSubmitTaskDrainsOnClose(t *testing.T) {
	rc := NewRedisCache(redis.NewClient(&redis.Options{Addr: redisAddr}), 1, 1)
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		rc.SubmitTask(func() { ran.Add(1) })
	}
	rc.SubmitTask(func() { panic("boom") })
	require.NoError(t, rc.Close())
	assert.Equal(t, int32(10), ran.Load())
}
