package redis

import (
	"context"
	"fmt"
	"strconv"

	"regionchat_server/internal/config"

	"github.com/redis/go-redis/v9"
)

// Init 创建 Redis 客户端并启动缓存任务 worker
// 连接不可用时返回错误，由调用方决定是否降级为无缓存运行
func Init(ctx context.Context, cfg *config.RedisConfig) (*RedisCache, error) {
	workers, buffer := cfg.Workers, cfg.Buffer
	if workers <= 0 {
		workers = 15
	}
	if buffer <= 0 {
		buffer = 3000
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Db,
		// 连接池配置
		PoolSize:     50,      // 最大连接数
		MinIdleConns: workers, // 最小空闲连接，与 Worker 数量匹配
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisCache(client, workers, buffer), nil
}
